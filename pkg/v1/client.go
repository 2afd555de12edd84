package v1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tiermem/tiermem/internal"
)

// Client provides programmatic access to a memory root.
type Client struct {
	scope   internal.Scope
	cfg     *internal.Config
	capture *internal.SessionCapture
	engine  *internal.ConsolidationEngine
	scanner *internal.RecoveryScanner
}

// New creates a new Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	resolver := internal.NewScopeResolver()
	scope := resolver.Resolve(cfg.scope)
	if !scope.Initialized() {
		return nil, internal.ErrNotInitialized
	}

	conf, err := internal.LoadConfig(scope)
	if err != nil {
		return nil, err
	}

	summarizer := cfg.summarizer
	if summarizer == nil {
		summarizer, err = defaultSummarizer(conf)
		if err != nil {
			return nil, err
		}
	}

	var logOut io.Writer = os.Stderr
	if cfg.silent {
		logOut = io.Discard
	}

	locks := internal.NewLockManager()
	engine := internal.NewConsolidationEngine(scope, conf, locks, summarizer,
		internal.NewLogger(logOut, false))

	if conf.MirrorHistory {
		if mirror, err := internal.OpenMirror(scope); err == nil {
			engine.SetMirror(mirror)
		}
	}

	return &Client{
		scope:   scope,
		cfg:     conf,
		capture: internal.NewSessionCapture(scope, conf, locks, engine),
		engine:  engine,
		scanner: internal.NewRecoveryScanner(scope, conf, engine),
	}, nil
}

func defaultSummarizer(conf *internal.Config) (internal.Summarizer, error) {
	if conf.Provider.Name == "" {
		return internal.MechanicalSummarizer{}, nil
	}
	client, err := internal.NewProviderClient(conf.Provider)
	if err != nil {
		return nil, err
	}
	return internal.NewLLMSummarizer(client), nil
}

// StartSession begins a new transcript and makes it active.
func (c *Client) StartSession(ctx context.Context) (*Session, error) {
	doc, err := c.capture.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return toSession(doc), nil
}

// Append records one transcript entry, starting a session if none is active.
// It reports whether the entry triggered a rollover.
func (c *Client) Append(ctx context.Context, kind, text string) (bool, error) {
	result, err := c.capture.Append(ctx, kind, text)
	if err != nil {
		return false, fmt.Errorf("append: %w", err)
	}
	return result.RolledOver, nil
}

// EndSession stamps the end timestamp on the active session.
func (c *Client) EndSession(ctx context.Context) (*Session, error) {
	doc, err := c.capture.End(ctx)
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	return toSession(doc), nil
}

// Consolidate moves the active session into durable memory.
func (c *Client) Consolidate(ctx context.Context) (*Consolidation, error) {
	report, err := c.engine.Consolidate(ctx, internal.ConsolidateOptions{})
	if err != nil {
		return nil, fmt.Errorf("consolidate: %w", err)
	}
	return toConsolidation(report), nil
}

// Recover consolidates every stale transcript past the configured age.
func (c *Client) Recover(ctx context.Context) ([]Consolidation, error) {
	results, err := c.scanner.Recover(ctx, true, 0)
	if err != nil {
		return nil, fmt.Errorf("recover: %w", err)
	}

	out := make([]Consolidation, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			return out, r.Err
		}
		out = append(out, *toConsolidation(r.Report))
	}
	return out, nil
}

// Status returns a snapshot of the memory root.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	status := &Status{
		Scope: string(c.scope.Type),
		Root:  c.scope.MemPath,
	}

	doc, err := c.capture.Current()
	switch {
	case errors.Is(err, internal.ErrNoActiveSession):
	case err != nil:
		return nil, err
	default:
		status.Active = toSession(doc)
	}

	nowFiles, err := c.scope.NowFiles()
	if err != nil {
		return nil, err
	}
	status.Transcripts = len(nowFiles)

	shards, err := filepath.Glob(filepath.Join(c.scope.MemPath, "MEMORY-*.md"))
	if err != nil {
		return nil, err
	}
	status.Shards = len(shards)

	return status, nil
}

// Validate checks tier files for integrity issues.
func (c *Client) Validate(ctx context.Context) error {
	report, err := internal.NewValidator(c.scope).Validate()
	if err != nil {
		return err
	}
	return report.Err()
}

// Close releases any resources held by the client.
func (c *Client) Close() error {
	return nil
}

func toSession(doc *internal.NowDocument) *Session {
	s := &Session{
		ID:    doc.SessionID,
		Path:  doc.Path,
		Start: doc.TimestampStart,
		Lines: doc.LineCount(),
	}
	if doc.TimestampEnd != nil {
		end := *doc.TimestampEnd
		s.End = &end
	}
	return s
}

func toConsolidation(report *internal.ConsolidationReport) *Consolidation {
	return &Consolidation{
		SessionID: report.SessionID,
		Anchor:    report.Anchor,
		Section:   report.Section,
		ShardPath: report.ShardPath,
		DryRun:    report.DryRun,
	}
}
