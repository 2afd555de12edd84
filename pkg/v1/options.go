package v1

import "github.com/tiermem/tiermem/internal"

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	scope      string
	summarizer internal.Summarizer
	silent     bool
}

// WithScope forces a specific scope (global or project).
func WithScope(scope string) Option {
	return func(c *clientConfig) {
		c.scope = scope
	}
}

// WithSummarizer overrides the configured summarizer. Useful for embedding the
// client in an agent that already holds a model connection.
func WithSummarizer(s internal.Summarizer) Option {
	return func(c *clientConfig) {
		c.summarizer = s
	}
}

// WithSilentLogging discards internal log output.
func WithSilentLogging() Option {
	return func(c *clientConfig) {
		c.silent = true
	}
}
