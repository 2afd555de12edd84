package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const nowFilenameLayout = "20060102-150405"

// NowDocument is the live transcript of one session. At most one document per
// root is "current", tracked by the .current pointer file on disk. No
// in-process copy is authoritative: every operation re-reads from disk.
type NowDocument struct {
	Path            string
	SessionID       string
	TimestampStart  time.Time
	TimestampEnd    *time.Time
	DurationMinutes int
	ProjectPath     string
	Tags            []string
	ParentSession   string
	RelatedTasks    []string
	Body            string
}

func (d *NowDocument) Frontmatter() *Frontmatter {
	fm := &Frontmatter{}
	fm.Set("session_id", d.SessionID)
	fm.Set("timestamp_start", d.TimestampStart.UTC().Format(time.RFC3339))
	if d.TimestampEnd != nil {
		fm.Set("timestamp_end", d.TimestampEnd.UTC().Format(time.RFC3339))
	} else {
		fm.Set("timestamp_end", nil)
	}
	if d.DurationMinutes > 0 {
		fm.Set("duration_minutes", d.DurationMinutes)
	} else {
		fm.Set("duration_minutes", nil)
	}
	fm.Set("project_path", d.ProjectPath)
	fm.Set("tags", emptyIfNil(d.Tags))
	if d.ParentSession != "" {
		fm.Set("parent_session", d.ParentSession)
	} else {
		fm.Set("parent_session", nil)
	}
	fm.Set("related_tasks", emptyIfNil(d.RelatedTasks))
	fm.Set("memory_type", "now")
	return fm
}

func (d *NowDocument) Render() string {
	return d.Frontmatter().Render() + d.Body
}

// Heading returns the leading heading line of the body.
func (d *NowDocument) Heading() string {
	line, _, _ := strings.Cut(d.Body, "\n")
	return line
}

// Cleared reports whether the transcript was already consolidated: nothing
// but the heading line remains.
func (d *NowDocument) Cleared() bool {
	_, rest, _ := strings.Cut(d.Body, "\n")
	return strings.TrimSpace(rest) == ""
}

func (d *NowDocument) LineCount() int {
	return countLines(d.Render())
}

// Age returns time since session start.
func (d *NowDocument) Age(now time.Time) time.Duration {
	return now.Sub(d.TimestampStart)
}

// Duration computes session length in whole minutes, clamped to at least 1.
func (d *NowDocument) Duration(now time.Time) int {
	end := now
	if d.TimestampEnd != nil {
		end = *d.TimestampEnd
	}
	minutes := int(end.Sub(d.TimestampStart).Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func ParseNow(path string) (*NowDocument, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNowNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read NOW file: %w", err)
	}

	fm, body, err := ParseFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if fm == nil {
		return nil, fmt.Errorf("parse %s: missing frontmatter", path)
	}

	doc := &NowDocument{
		Path:          path,
		SessionID:     fm.GetString("session_id"),
		ProjectPath:   fm.GetString("project_path"),
		Tags:          fm.GetList("tags"),
		ParentSession: fm.GetString("parent_session"),
		RelatedTasks:  fm.GetList("related_tasks"),
		Body:          body,
	}

	if start, err := time.Parse(time.RFC3339, fm.GetString("timestamp_start")); err == nil {
		doc.TimestampStart = start
	}
	if raw := fm.GetString("timestamp_end"); raw != "" {
		if end, err := time.Parse(time.RFC3339, raw); err == nil {
			doc.TimestampEnd = &end
		}
	}
	if n, ok := fm.GetInt("duration_minutes"); ok {
		doc.DurationMinutes = n
	}

	return doc, nil
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// EntryKinds accepted by append.
var EntryKinds = map[string]bool{"user": true, "agent": true, "tool": true}

type AppendResult struct {
	Path       string
	RolledOver bool
	Rollover   *ConsolidationReport
}

// SessionCapture owns the active NOW document.
type SessionCapture struct {
	scope  Scope
	cfg    *Config
	locks  *LockManager
	engine *ConsolidationEngine
	clock  func() time.Time
	newID  func() string
}

func NewSessionCapture(scope Scope, cfg *Config, locks *LockManager, engine *ConsolidationEngine) *SessionCapture {
	return &SessionCapture{
		scope:  scope,
		cfg:    cfg,
		locks:  locks,
		engine: engine,
		clock:  time.Now,
		newID:  func() string { return uuid.NewString()[:8] },
	}
}

// Start allocates a session, writes its header and frontmatter, and points
// .current at it.
func (c *SessionCapture) Start(ctx context.Context) (*NowDocument, error) {
	if !c.scope.Initialized() {
		return nil, ErrNotInitialized
	}

	var doc *NowDocument
	err := c.locks.WithLock(ctx, c.scope.NowLockPath(), DefaultLockOptions(), func() error {
		var err error
		doc, err = c.startLocked()
		return err
	})
	return doc, err
}

func (c *SessionCapture) startLocked() (*NowDocument, error) {
	now := c.clock().UTC()
	id := c.newID()

	// The session id in the filename keeps two sessions started within the
	// same second (a rollover, typically) on distinct paths.
	doc := &NowDocument{
		Path:           c.scope.NowPath(now.Format(nowFilenameLayout) + "-" + id),
		SessionID:      id,
		TimestampStart: now,
		ProjectPath:    c.scope.Path,
		Tags:           []string{},
		RelatedTasks:   []string{},
		Body:           fmt.Sprintf("# Session %s\n\n", id),
	}

	if err := os.WriteFile(doc.Path, []byte(doc.Render()), 0644); err != nil {
		return nil, fmt.Errorf("write NOW file: %w", err)
	}
	if err := c.setCurrent(doc.Path); err != nil {
		return nil, err
	}

	return doc, nil
}

// Current resolves the active NOW document, re-reading the pointer from disk.
// A missing or dangling pointer falls back to the most recently modified NOW
// file.
func (c *SessionCapture) Current() (*NowDocument, error) {
	path, err := c.currentPath()
	if err != nil {
		return nil, err
	}
	return ParseNow(path)
}

func (c *SessionCapture) currentPath() (string, error) {
	data, err := os.ReadFile(c.scope.CurrentPath())
	if err == nil {
		path := filepath.Join(c.scope.MemPath, strings.TrimSpace(string(data)))
		if fileExists(path) {
			return path, nil
		}
	}

	// Pointer missing or dangling: newest NOW file wins.
	files, err := c.scope.NowFiles()
	if err != nil || len(files) == 0 {
		return "", ErrNoActiveSession
	}

	newest := ""
	var newestMod time.Time
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = f
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", ErrNoActiveSession
	}
	return newest, nil
}

func (c *SessionCapture) setCurrent(path string) error {
	data := filepath.Base(path) + "\n"
	if err := os.WriteFile(c.scope.CurrentPath(), []byte(data), 0644); err != nil {
		return fmt.Errorf("write current pointer: %w", err)
	}
	return nil
}

// Append adds one transcript entry. Rollover and append happen under a single
// lock acquisition: when the current document is past its line or age limit
// it is ended and consolidated, a fresh session starts, and only then does the
// entry land, so no writer observes a split rollover.
func (c *SessionCapture) Append(ctx context.Context, kind, text string) (*AppendResult, error) {
	if !EntryKinds[kind] {
		return nil, fmt.Errorf("%w: %q (want user, agent, or tool)", ErrInvalidKind, kind)
	}
	if !c.scope.Initialized() {
		return nil, ErrNotInitialized
	}

	var result *AppendResult
	err := c.locks.WithLock(ctx, c.scope.NowLockPath(), DefaultLockOptions(), func() error {
		var err error
		result, err = c.appendLocked(ctx, kind, text)
		return err
	})
	return result, err
}

func (c *SessionCapture) appendLocked(ctx context.Context, kind, text string) (*AppendResult, error) {
	doc, err := c.Current()
	if err == ErrNoActiveSession {
		doc, err = c.startLocked()
	}
	if err != nil {
		return nil, err
	}

	result := &AppendResult{}

	if c.shouldRoll(doc) {
		report, err := c.rollOver(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("rollover: %w", err)
		}
		result.RolledOver = true
		result.Rollover = report

		doc, err = c.startLocked()
		if err != nil {
			return nil, err
		}
	}

	doc.Body += fmt.Sprintf("- [%s] %s\n", kind, text)
	if err := os.WriteFile(doc.Path, []byte(doc.Render()), 0644); err != nil {
		return nil, fmt.Errorf("write NOW file: %w", err)
	}

	result.Path = doc.Path
	return result, nil
}

func (c *SessionCapture) shouldRoll(doc *NowDocument) bool {
	if doc.LineCount() >= c.cfg.NowMaxLines {
		return true
	}
	return doc.Age(c.clock().UTC()).Hours() >= c.cfg.NowMaxHours
}

func (c *SessionCapture) rollOver(ctx context.Context, doc *NowDocument) (*ConsolidationReport, error) {
	if err := c.stampEnd(doc); err != nil {
		return nil, err
	}
	// The now lock is already held by Append; only the memory lock remains.
	return c.engine.consolidateHoldingNowLock(ctx, ConsolidateOptions{NowPath: doc.Path})
}

// End stamps the end time and duration. Fails when no session is current.
func (c *SessionCapture) End(ctx context.Context) (*NowDocument, error) {
	if !c.scope.Initialized() {
		return nil, ErrNotInitialized
	}

	var doc *NowDocument
	err := c.locks.WithLock(ctx, c.scope.NowLockPath(), DefaultLockOptions(), func() error {
		var err error
		doc, err = c.Current()
		if err != nil {
			return err
		}
		return c.stampEnd(doc)
	})
	return doc, err
}

func (c *SessionCapture) stampEnd(doc *NowDocument) error {
	now := c.clock().UTC()
	doc.TimestampEnd = &now
	doc.DurationMinutes = doc.Duration(now)
	if err := os.WriteFile(doc.Path, []byte(doc.Render()), 0644); err != nil {
		return fmt.Errorf("stamp session end: %w", err)
	}
	return nil
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
