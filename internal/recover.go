package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// StaleSession is an abandoned NOW file past the staleness threshold.
type StaleSession struct {
	Path      string
	SessionID string
	Start     time.Time
	AgeHours  float64
}

type RecoveryResult struct {
	Session StaleSession
	Report  *ConsolidationReport
	Err     error
}

// RecoveryScanner finds abandoned NOW sessions and re-drives them through the
// consolidation engine.
type RecoveryScanner struct {
	scope  Scope
	cfg    *Config
	engine *ConsolidationEngine
	clock  func() time.Time
}

func NewRecoveryScanner(scope Scope, cfg *Config, engine *ConsolidationEngine) *RecoveryScanner {
	return &RecoveryScanner{
		scope:  scope,
		cfg:    cfg,
		engine: engine,
		clock:  time.Now,
	}
}

// ScanStale lists NOW files past the age threshold, excluding the current
// pointer and anything matched by .tmemignore, sorted oldest first (descending
// age). maxHoursOverride <= 0 uses the configured rollover age.
func (s *RecoveryScanner) ScanStale(maxHoursOverride float64) ([]StaleSession, error) {
	if !s.scope.Initialized() {
		return nil, ErrNotInitialized
	}

	maxHours := s.cfg.NowMaxHours
	if maxHoursOverride > 0 {
		maxHours = maxHoursOverride
	}

	files, err := s.scope.NowFiles()
	if err != nil {
		return nil, fmt.Errorf("list NOW files: %w", err)
	}

	active := ""
	if data, err := os.ReadFile(s.scope.CurrentPath()); err == nil {
		active = filepath.Join(s.scope.MemPath, strings.TrimSpace(string(data)))
	}

	matcher, err := NewIgnoreMatcher(s.scope.MemPath)
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	var stale []StaleSession
	for _, f := range files {
		if f == active || matcher.Match(f) {
			continue
		}

		start, sessionID := s.effectiveStart(f)
		age := now.Sub(start).Hours()
		if age < maxHours {
			continue
		}

		stale = append(stale, StaleSession{
			Path:      f,
			SessionID: sessionID,
			Start:     start,
			AgeHours:  age,
		})
	}

	sort.Slice(stale, func(i, j int) bool { return stale[i].AgeHours > stale[j].AgeHours })
	return stale, nil
}

// effectiveStart prefers the frontmatter timestamp, falling back to mtime.
func (s *RecoveryScanner) effectiveStart(path string) (time.Time, string) {
	if doc, err := ParseNow(path); err == nil && !doc.TimestampStart.IsZero() {
		return doc.TimestampStart, doc.SessionID
	}

	info, err := os.Stat(path)
	if err != nil {
		return s.clock().UTC(), ""
	}
	return info.ModTime().UTC(), ""
}

// Recover re-drives each stale file through the engine sequentially with
// cleanup skipped, so a recovery pass never prunes files it has not looked at.
// With consolidate false it only reports what it found.
func (s *RecoveryScanner) Recover(ctx context.Context, consolidate bool, maxHoursOverride float64) ([]RecoveryResult, error) {
	stale, err := s.ScanStale(maxHoursOverride)
	if err != nil {
		return nil, err
	}

	results := make([]RecoveryResult, 0, len(stale))
	for _, sess := range stale {
		result := RecoveryResult{Session: sess}
		if consolidate {
			result.Report, result.Err = s.engine.Consolidate(ctx, ConsolidateOptions{
				NowPath:     sess.Path,
				SkipCleanup: true,
			})
		}
		results = append(results, result)
	}

	return results, nil
}
