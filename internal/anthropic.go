package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient adapts the Messages API to the Client contract. The
// max_tokens stop reason is mapped onto FinishLength so retry behaves the same
// across providers.
type AnthropicClient struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
}

func NewAnthropicClient(cfg ProviderConfig) *AnthropicClient {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaude3_5Sonnet20241022)
	}

	return &AnthropicClient{
		client:  anthropic.NewClient(opts...),
		model:   model,
		timeout: defaultCallTimeout,
	}
}

func (c *AnthropicClient) Call(ctx context.Context, req CallRequest) (*CallResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Op: "anthropic completion", Elapsed: time.Since(start)}
		}
		return nil, &ServiceError{Op: "anthropic completion", Err: err}
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.AsText().Text
		}
	}
	if content == "" {
		return nil, &ServiceError{Op: "anthropic completion", Err: fmt.Errorf("no text content")}
	}

	finish := string(resp.StopReason)
	if finish == "max_tokens" {
		finish = FinishLength
	}

	return &CallResponse{Content: content, FinishReason: finish}, nil
}
