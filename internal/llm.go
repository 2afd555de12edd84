package internal

import (
	"context"
	"fmt"
)

// Roles understood by every client adapter.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// FinishLength is the finish reason signalling the model ran out of output
// tokens and the result may be truncated.
const FinishLength = "length"

type Message struct {
	Role    string
	Content string
}

type CallRequest struct {
	Messages  []Message
	MaxTokens int
}

type CallResponse struct {
	Content      string
	FinishReason string
}

// Client is the injected LLM collaborator. Implementations map provider
// specific stop reasons onto FinishLength and convert deadline expiry into a
// *TimeoutError.
type Client interface {
	Call(ctx context.Context, req CallRequest) (*CallResponse, error)
}

type RetryOptions struct {
	TokenStep    int
	MaxTokensCap int
}

func DefaultRetryOptions() RetryOptions {
	return RetryOptions{TokenStep: 1024, MaxTokensCap: 8192}
}

// CallWithRetry bumps MaxTokens by TokenStep while the response reports the
// length-limit finish reason, stopping at MaxTokensCap and returning the last
// (possibly still truncated) result.
func CallWithRetry(ctx context.Context, c Client, req CallRequest, opts RetryOptions) (*CallResponse, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = opts.TokenStep
	}

	for {
		resp, err := c.Call(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.FinishReason != FinishLength || req.MaxTokens >= opts.MaxTokensCap {
			return resp, nil
		}
		req.MaxTokens = min(req.MaxTokens+opts.TokenStep, opts.MaxTokensCap)
	}
}

// NewProviderClient builds the configured client adapter.
func NewProviderClient(cfg ProviderConfig) (Client, error) {
	switch cfg.Name {
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "anthropic":
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Name)
	}
}
