package internal

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, cfg *Config) (Scope, *ConsolidationEngine, *SessionCapture) {
	t.Helper()
	scope := testScope(t)
	if cfg == nil {
		cfg = DefaultConfig()
	}

	locks := NewLockManager()
	engine := NewConsolidationEngine(scope, cfg, locks, MechanicalSummarizer{}, NewLogger(io.Discard, false))
	capture := NewSessionCapture(scope, cfg, locks, engine)
	return scope, engine, capture
}

func startSessionWith(t *testing.T, capture *SessionCapture, entries ...string) *NowDocument {
	t.Helper()
	ctx := context.Background()

	doc, err := capture.Start(ctx)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	for _, e := range entries {
		kind, text, _ := strings.Cut(e, " ")
		if _, err := capture.Append(ctx, kind, text); err != nil {
			t.Fatalf("append %q: %v", e, err)
		}
	}
	return doc
}

func TestConsolidateWritesEveryTier(t *testing.T) {
	scope, engine, capture := newTestEngine(t, nil)
	doc := startSessionWith(t, capture,
		"user Goal alignment: ship the importer",
		"agent @decision: batch rows in groups of 500",
		"agent @discovery: the CSV header varies by export version",
	)

	report, err := engine.Consolidate(context.Background(), ConsolidateOptions{})
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	if report.SessionID != doc.SessionID {
		t.Errorf("report session = %q, want %q", report.SessionID, doc.SessionID)
	}
	if report.Section != "Decisions" {
		t.Errorf("section = %q, want Decisions", report.Section)
	}

	recent := readFileT(t, scope.RecentPath())
	if !strings.HasPrefix(recent, "# Recent Sessions\n") {
		t.Errorf("RECENT header missing:\n%s", recent)
	}
	if !strings.Contains(recent, report.Anchor) {
		t.Error("RECENT entry has no anchor link")
	}
	if !strings.Contains(recent, "batch rows in groups of 500") {
		t.Error("RECENT entry missing decision")
	}

	shard := readFileT(t, report.ShardPath)
	if !strings.Contains(shard, shardAnchorTag(report.Anchor)) {
		t.Error("shard section has no anchor tag")
	}
	if !strings.Contains(shard, "total_sessions_consolidated: 1") {
		t.Errorf("shard frontmatter:\n%s", shard)
	}
	if !strings.Contains(shard, "consolidated_by: "+ConsolidatedBy) {
		t.Error("shard missing consolidated_by")
	}

	index := readFileT(t, scope.IndexPath())
	if !strings.Contains(index, "## Decisions") {
		t.Errorf("index missing Decisions section:\n%s", index)
	}
	if !strings.Contains(index, "#"+report.Anchor+")") {
		t.Error("index entry missing anchor link")
	}

	logContent := readFileT(t, scope.LogPath())
	if !strings.Contains(logContent, "session="+doc.SessionID) {
		t.Errorf("audit log:\n%s", logContent)
	}

	// The transcript is cleared down to its heading but stays parseable.
	after, err := ParseNow(doc.Path)
	if err != nil {
		t.Fatalf("parse cleared NOW: %v", err)
	}
	if !after.Cleared() {
		t.Errorf("NOW not cleared:\n%s", after.Body)
	}
	if after.TimestampEnd == nil {
		t.Error("cleared NOW has no end timestamp")
	}
}

func TestConsolidateIdempotent(t *testing.T) {
	scope, engine, capture := newTestEngine(t, nil)
	startSessionWith(t, capture, "agent @decision: keep sqlite")

	ctx := context.Background()
	if _, err := engine.Consolidate(ctx, ConsolidateOptions{}); err != nil {
		t.Fatalf("first consolidate: %v", err)
	}

	recent1 := readFileT(t, scope.RecentPath())
	index1 := readFileT(t, scope.IndexPath())

	report, err := engine.Consolidate(ctx, ConsolidateOptions{})
	if err != nil {
		t.Fatalf("second consolidate: %v", err)
	}
	if !report.AlreadyCleared {
		t.Error("second run should report already cleared")
	}

	if got := readFileT(t, scope.RecentPath()); got != recent1 {
		t.Error("second run changed RECENT")
	}
	if got := readFileT(t, scope.IndexPath()); got != index1 {
		t.Error("second run changed index")
	}
}

func TestConsolidateNoActiveSession(t *testing.T) {
	_, engine, _ := newTestEngine(t, nil)

	_, err := engine.Consolidate(context.Background(), ConsolidateOptions{})
	if err != ErrNoActiveSession {
		t.Fatalf("err = %v, want ErrNoActiveSession", err)
	}
}

func TestConsolidateDryRunWritesNothing(t *testing.T) {
	scope, engine, capture := newTestEngine(t, nil)
	doc := startSessionWith(t, capture, "agent @decision: go with yaml config")

	report, err := engine.Consolidate(context.Background(), ConsolidateOptions{
		DryRun:      true,
		PreviewDiff: true,
	})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}

	if !report.DryRun {
		t.Error("report not marked dry run")
	}
	if report.RecentLines == 0 {
		t.Error("dry run produced no projection")
	}
	if !strings.Contains(report.RecentDiff, "+") {
		t.Errorf("diff preview:\n%s", report.RecentDiff)
	}

	for _, path := range []string{scope.RecentPath(), scope.IndexPath(), scope.LogPath()} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("dry run created %s", filepath.Base(path))
		}
	}

	after, err := ParseNow(doc.Path)
	if err != nil {
		t.Fatalf("parse NOW: %v", err)
	}
	if after.Cleared() {
		t.Error("dry run cleared the transcript")
	}
}

func TestConsolidateMergesSameDayShard(t *testing.T) {
	scope, engine, capture := newTestEngine(t, nil)
	ctx := context.Background()

	first := startSessionWith(t, capture, "agent @decision: adopt worker pool")
	firstReport, err := engine.Consolidate(ctx, ConsolidateOptions{NowPath: first.Path})
	if err != nil {
		t.Fatalf("consolidate first: %v", err)
	}

	second := startSessionWith(t, capture, "agent @discovery: pool size above 8 stops helping")
	report, err := engine.Consolidate(ctx, ConsolidateOptions{NowPath: second.Path})
	if err != nil {
		t.Fatalf("consolidate second: %v", err)
	}

	shard := readFileT(t, report.ShardPath)
	if !strings.Contains(shard, "total_sessions_consolidated: 2") {
		t.Errorf("shard count:\n%s", shard)
	}
	if !strings.Contains(shard, first.SessionID) || !strings.Contains(shard, second.SessionID) {
		t.Error("shard missing a session id")
	}
	if strings.Count(shard, "<a name=") != 2 {
		t.Errorf("shard anchors = %d, want 2", strings.Count(shard, "<a name="))
	}

	// Both sessions stay reachable from the index in their own sections.
	index := readFileT(t, scope.IndexPath())
	if !strings.Contains(index, "#"+firstReport.Anchor+")") {
		t.Error("index lost first session")
	}
	if !strings.Contains(index, "#"+report.Anchor+")") {
		t.Error("index lost second session")
	}
	if firstReport.Section != "Decisions" || report.Section != "Discoveries" {
		t.Errorf("sections = %q, %q", firstReport.Section, report.Section)
	}
}

func TestRecentBoundedBySessionCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecentSessionCount = 2
	scope, engine, capture := newTestEngine(t, cfg)
	ctx := context.Background()

	var anchors []string
	for i := 0; i < 3; i++ {
		doc := startSessionWith(t, capture, "agent @decision: iteration decision")
		report, err := engine.Consolidate(ctx, ConsolidateOptions{NowPath: doc.Path})
		if err != nil {
			t.Fatalf("consolidate %d: %v", i, err)
		}
		anchors = append(anchors, report.Anchor)
	}

	recent := readFileT(t, scope.RecentPath())
	if strings.Contains(recent, anchors[0]) {
		t.Error("oldest entry not evicted")
	}
	if !strings.Contains(recent, anchors[1]) || !strings.Contains(recent, anchors[2]) {
		t.Error("newest entries missing")
	}
	if !strings.HasPrefix(recent, "# Recent Sessions\n") {
		t.Error("header lost during eviction")
	}
}

func TestRecentLineBudgetKeepsAtLeastOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecentMaxLines = 5 // far below one entry's size
	scope, engine, capture := newTestEngine(t, cfg)

	doc := startSessionWith(t, capture,
		"agent @decision: one",
		"agent @decision: two",
		"agent @decision: three",
	)
	if _, err := engine.Consolidate(context.Background(), ConsolidateOptions{NowPath: doc.Path}); err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	recent := readFileT(t, scope.RecentPath())
	if strings.Count(recent, "\n## ") != 1 {
		t.Errorf("entries = %d, want the newest kept despite budget", strings.Count(recent, "\n## "))
	}
}

func TestAuditLogRotation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogMaxLines = 2
	scope, engine, capture := newTestEngine(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		doc := startSessionWith(t, capture, "agent @decision: fill the log")
		if _, err := engine.Consolidate(ctx, ConsolidateOptions{NowPath: doc.Path}); err != nil {
			t.Fatalf("consolidate %d: %v", i, err)
		}
	}

	logContent := readFileT(t, scope.LogPath())
	if countLines(logContent) != 1 {
		t.Errorf("fresh log lines = %d, want 1 after rotation", countLines(logContent))
	}
	rotated := readFileT(t, scope.LogPath()+".1")
	if countLines(rotated) != 2 {
		t.Errorf("rotated log lines = %d, want 2", countLines(rotated))
	}
}

func TestPruneNowFiles(t *testing.T) {
	scope, engine, capture := newTestEngine(t, nil)
	ctx := context.Background()

	// An old, already consolidated transcript past retention.
	old := &NowDocument{
		Path:           scope.NowPath("20260101-010101"),
		SessionID:      "oldsess1",
		TimestampStart: time.Now().UTC().AddDate(0, 0, -30),
		ProjectPath:    scope.Path,
		Tags:           []string{},
		RelatedTasks:   []string{},
		Body:           "# Session oldsess1\n\n",
	}
	end := old.TimestampStart.Add(time.Hour)
	old.TimestampEnd = &end
	if err := os.WriteFile(old.Path, []byte(old.Render()), 0644); err != nil {
		t.Fatalf("seed old NOW: %v", err)
	}

	doc := startSessionWith(t, capture, "agent @decision: prune check")
	if _, err := engine.Consolidate(ctx, ConsolidateOptions{NowPath: doc.Path}); err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	if _, err := os.Stat(old.Path); !os.IsNotExist(err) {
		t.Error("old consolidated NOW not pruned")
	}
	// The just-consolidated transcript is current and must survive.
	if _, err := os.Stat(doc.Path); err != nil {
		t.Errorf("active NOW pruned: %v", err)
	}
}

func TestConsolidateBlockedByNowLock(t *testing.T) {
	scope, engine, capture := newTestEngine(t, nil)
	engine.lockOpts = testLockOptions()
	ctx := context.Background()

	startSessionWith(t, capture, "agent @decision: hold the line")

	// Another writer mid-append holds the now lock; consolidation must not
	// read the transcript underneath it.
	if err := os.WriteFile(scope.NowLockPath(), []byte("writer\n"), 0644); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	defer os.Remove(scope.NowLockPath())

	_, err := engine.Consolidate(ctx, ConsolidateOptions{})
	var busy *LockBusyError
	if !errors.As(err, &busy) {
		t.Fatalf("err = %v, want LockBusyError", err)
	}

	// Nothing consolidated while the lock was held.
	if _, statErr := os.Stat(scope.RecentPath()); !os.IsNotExist(statErr) {
		t.Error("RECENT written despite held now lock")
	}
}

func TestChooseSection(t *testing.T) {
	sections := DefaultConfig().MemorySections

	tests := []struct {
		name     string
		summary  SessionSummary
		sections []string
		want     string
	}{
		{"decisions win", SessionSummary{Decisions: []string{"d"}, Discoveries: []string{"x"}}, nil, "Decisions"},
		{"discoveries next", SessionSummary{Discoveries: []string{"x"}}, nil, "Discoveries"},
		{"patterns from what worked", SessionSummary{WhatWorked: []string{"w"}}, nil, "Patterns"},
		{"catch-all", SessionSummary{}, nil, SectionSessions},
		{
			"taxonomy without decisions cascades",
			SessionSummary{Decisions: []string{"d"}, Discoveries: []string{"x"}},
			[]string{"Discoveries", "Patterns", SectionSessions},
			"Discoveries",
		},
		{
			"taxonomy without decisions or discoveries cascades to patterns",
			SessionSummary{Decisions: []string{"d"}, WhatWorked: []string{"w"}},
			[]string{"Patterns", "Archive", SectionSessions},
			"Patterns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active := tt.sections
			if active == nil {
				active = sections
			}
			if got := chooseSection(&tt.summary, active); got != tt.want {
				t.Errorf("section = %q, want %q", got, tt.want)
			}
		})
	}
}
