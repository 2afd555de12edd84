package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const summarySystemPrompt = `You are the archivist for a coding agent's working memory.
Summarize the session transcript you are given.
Respond with a single JSON object containing exactly these keys:
narrative (string), decisions, discoveries, whatWorked, whatFailed,
openQuestions, nextSteps, tasks, files (each an array of strings).
No other keys, no markdown, no commentary.`

const mergeSystemPrompt = `You are the archivist for a coding agent's working memory.
You are given several partial session summaries as JSON objects, one per line.
Merge them into one summary covering everything, dropping duplicates.
Respond with a single JSON object containing exactly these keys:
narrative (string), decisions, discoveries, whatWorked, whatFailed,
openQuestions, nextSteps, tasks, files (each an array of strings).
No other keys, no markdown, no commentary.`

var summaryKeys = []string{
	"narrative", "decisions", "discoveries", "whatWorked", "whatFailed",
	"openQuestions", "nextSteps", "tasks", "files",
}

// LLMSummarizer produces summaries through the injected client. Oversized
// transcripts go through chunk/merge reduction: each chunk is summarized
// independently and the partial summaries are folded together in budgeted
// passes.
type LLMSummarizer struct {
	client Client
	retry  RetryOptions

	// Reduction budgets. ChunkChars/ChunkLines bound one chunk, PassBudget
	// bounds one merge group in estimated tokens.
	ChunkChars int
	ChunkLines int
	PassBudget int
}

func NewLLMSummarizer(client Client) *LLMSummarizer {
	return &LLMSummarizer{
		client:     client,
		retry:      DefaultRetryOptions(),
		ChunkChars: 16000,
		ChunkLines: 400,
		PassBudget: 4000,
	}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, doc *NowDocument) (*SessionSummary, error) {
	body := doc.Body

	if EstimateTokens(body) <= s.PassBudget {
		return s.summarizeText(ctx, body)
	}

	chunks := SplitChunks(body, s.ChunkChars, s.ChunkLines)
	partials := make([]*SessionSummary, len(chunks))
	for i, chunk := range chunks {
		part, err := s.summarizeText(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("summarize chunk %d/%d: %w", i+1, len(chunks), err)
		}
		partials[i] = part
	}

	return ReduceMerge(ctx, partials, s.PassBudget, summaryCost, s.mergeGroup)
}

func (s *LLMSummarizer) summarizeText(ctx context.Context, text string) (*SessionSummary, error) {
	resp, err := CallWithRetry(ctx, s.client, CallRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: summarySystemPrompt},
			{Role: RoleUser, Content: text},
		},
		MaxTokens: s.retry.TokenStep,
	}, s.retry)
	if err != nil {
		return nil, err
	}

	return ParseSummaryJSON(resp.Content)
}

func (s *LLMSummarizer) mergeGroup(ctx context.Context, group []*SessionSummary) (*SessionSummary, error) {
	var sb strings.Builder
	for _, part := range group {
		data, err := json.Marshal(part)
		if err != nil {
			return nil, fmt.Errorf("serialize partial summary: %w", err)
		}
		sb.Write(data)
		sb.WriteString("\n")
	}

	resp, err := CallWithRetry(ctx, s.client, CallRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: mergeSystemPrompt},
			{Role: RoleUser, Content: sb.String()},
		},
		MaxTokens: s.retry.TokenStep,
	}, s.retry)
	if err != nil {
		return nil, err
	}

	return ParseSummaryJSON(resp.Content)
}

func summaryCost(s *SessionSummary) int {
	data, _ := json.Marshal(s)
	return EstimateTokens(string(data))
}

// ParseSummaryJSON decodes a model response into a SessionSummary. The
// response must be a JSON object with exactly the required keys; anything else
// is a hard *SummaryFormatError, never a silently degraded summary.
func ParseSummaryJSON(content string) (*SessionSummary, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = stripCodeFence(trimmed)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, &SummaryFormatError{Detail: "not a JSON object: " + err.Error(), Raw: content}
	}

	for _, key := range summaryKeys {
		if _, ok := raw[key]; !ok {
			return nil, &SummaryFormatError{Detail: fmt.Sprintf("missing key %q", key), Raw: content}
		}
	}
	if len(raw) != len(summaryKeys) {
		for key := range raw {
			if !isSummaryKey(key) {
				return nil, &SummaryFormatError{Detail: fmt.Sprintf("unexpected key %q", key), Raw: content}
			}
		}
	}

	var summary SessionSummary
	if err := json.Unmarshal([]byte(trimmed), &summary); err != nil {
		return nil, &SummaryFormatError{Detail: "wrong value types: " + err.Error(), Raw: content}
	}

	return &summary, nil
}

func isSummaryKey(key string) bool {
	for _, k := range summaryKeys {
		if k == key {
			return true
		}
	}
	return false
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if _, rest, found := strings.Cut(s, "\n"); found {
		s = rest
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
