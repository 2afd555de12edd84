package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	ConsolidatedBy = "tmem"
	focusMaxLen    = 80
)

type ConsolidateOptions struct {
	NowPath     string
	DryRun      bool
	SkipCleanup bool
	// PreviewDiff renders a unified diff of the projected RECENT change into
	// the report. Only meaningful together with DryRun.
	PreviewDiff bool
}

// ConsolidationReport describes one engine run. For dry runs the line counts
// are projections; nothing was written.
type ConsolidationReport struct {
	SessionID      string
	Anchor         string
	Section        string
	ShardPath      string
	RecentLines    int
	ShardLines     int
	IndexLines     int
	DryRun         bool
	AlreadyCleared bool
	RecentDiff     string
}

// ConsolidationEngine moves one session from NOW into RECENT, its date shard,
// and the index, committing every tier file atomically.
type ConsolidationEngine struct {
	scope      Scope
	cfg        *Config
	locks      *LockManager
	summarizer Summarizer
	committer  *AtomicCommitter
	mirror     *HistoryMirror
	clock      func() time.Time
	lockOpts   LockOptions
	logger     *slog.Logger
}

func NewConsolidationEngine(scope Scope, cfg *Config, locks *LockManager, summarizer Summarizer, logger *slog.Logger) *ConsolidationEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsolidationEngine{
		scope:      scope,
		cfg:        cfg,
		locks:      locks,
		summarizer: summarizer,
		committer:  NewAtomicCommitter(),
		clock:      time.Now,
		lockOpts:   DefaultLockOptions(),
		logger:     logger,
	}
}

// SetMirror enables post-commit history mirroring.
func (e *ConsolidationEngine) SetMirror(m *HistoryMirror) { e.mirror = m }

// Consolidate runs the full NOW to RECENT/MEMORY/INDEX pipeline for one
// session. Non-dry-run calls take the now lock and then the memory lock for
// the whole run, so a concurrent append cannot write into the transcript
// between parse and clear. Dry runs are lock-free and never touch disk.
func (e *ConsolidationEngine) Consolidate(ctx context.Context, opts ConsolidateOptions) (*ConsolidationReport, error) {
	if !e.scope.Initialized() {
		return nil, ErrNotInitialized
	}

	if opts.DryRun {
		return e.run(ctx, opts)
	}

	var report *ConsolidationReport
	err := e.locks.WithLock(ctx, e.scope.NowLockPath(), e.lockOpts, func() error {
		var err error
		report, err = e.consolidateHoldingNowLock(ctx, opts)
		return err
	})
	return report, err
}

// consolidateHoldingNowLock is the entry point for callers that already hold
// the now lock (the rollover path nests now before memory, and so does
// Consolidate; the ordering must stay uniform to be deadlock-free).
func (e *ConsolidationEngine) consolidateHoldingNowLock(ctx context.Context, opts ConsolidateOptions) (*ConsolidationReport, error) {
	var report *ConsolidationReport
	err := e.locks.WithLock(ctx, e.scope.MemoryLockPath(), e.lockOpts, func() error {
		var err error
		report, err = e.run(ctx, opts)
		return err
	})
	return report, err
}

func (e *ConsolidationEngine) run(ctx context.Context, opts ConsolidateOptions) (*ConsolidationReport, error) {
	now := e.clock().UTC()

	// 1. Resolve and parse the NOW document.
	nowPath := opts.NowPath
	if nowPath == "" {
		capture := NewSessionCapture(e.scope, e.cfg, e.locks, e)
		var err error
		nowPath, err = capture.currentPath()
		if err != nil {
			return nil, err
		}
	}

	doc, err := ParseNow(nowPath)
	if err != nil {
		return nil, err
	}

	anchor := SessionAnchor(doc.TimestampStart, doc.SessionID)
	date := now.Format("2006-01-02")
	shardPath := e.scope.ShardPath(date)

	if doc.Cleared() {
		// Transcript already consolidated; nothing to do, and a second run
		// must leave every byte untouched.
		return &ConsolidationReport{
			SessionID:      doc.SessionID,
			Anchor:         anchor,
			ShardPath:      shardPath,
			DryRun:         opts.DryRun,
			AlreadyCleared: true,
		}, nil
	}

	duration := doc.Duration(now)

	// 2. Summarize before any durable write: a malformed summary aborts the
	// whole run.
	summary, err := e.summarizer.Summarize(ctx, doc)
	if err != nil {
		return nil, err
	}

	// 3-4. Build the tier entries around the first-class anchor.
	shardFile := filepath.Base(shardPath)
	section := chooseSection(summary, e.cfg.MemorySections)

	recentEntry := buildRecentEntry(doc, summary, anchor, shardFile)
	shardSection := buildShardSection(doc, summary, anchor, duration)
	indexLine := buildIndexLine(doc, summary, date, shardFile, anchor)

	// 5-7. Upsert each tier.
	recentBefore := readFileOr(e.scope.RecentPath(), "")
	recentContent := upsertRecent(recentBefore, recentEntry, e.cfg)

	shardContent, err := upsertShard(readFileOr(shardPath, ""), doc, anchor, shardSection, date)
	if err != nil {
		return nil, err
	}

	indexContent := upsertIndex(readFileOr(e.scope.IndexPath(), ""), indexLine, anchor, section, e.cfg.MemorySections)

	// 8. Clear the transcript; the document stays reusable.
	cleared := *doc
	cleared.TimestampEnd = &now
	if doc.TimestampEnd != nil {
		cleared.TimestampEnd = doc.TimestampEnd
	}
	cleared.DurationMinutes = duration
	cleared.Body = doc.Heading() + "\n\n"

	// 9. Audit log entry, rotating on overflow.
	logLine := fmt.Sprintf("%s session=%s anchor=%s section=%s duration_min=%d shard=%s\n",
		now.Format(time.RFC3339), doc.SessionID, anchor, section, duration, shardFile)
	logBefore := readFileOr(e.scope.LogPath(), "")
	logTarget := CommitTarget{Path: e.scope.LogPath(), Content: logBefore + logLine}
	if countLines(logBefore) >= e.cfg.LogMaxLines {
		logTarget = CommitTarget{
			Path:     e.scope.LogPath(),
			Content:  logLine,
			RotateTo: e.scope.LogPath() + ".1",
		}
	}

	report := &ConsolidationReport{
		SessionID:   doc.SessionID,
		Anchor:      anchor,
		Section:     section,
		ShardPath:   shardPath,
		RecentLines: countLines(recentContent),
		ShardLines:  countLines(shardContent),
		IndexLines:  countLines(indexContent),
		DryRun:      opts.DryRun,
	}

	if opts.DryRun {
		if opts.PreviewDiff {
			report.RecentDiff = UnifiedPreview(recentBefore, recentContent)
		}
		return report, nil
	}

	// 10. Land every tier at once.
	targets := []CommitTarget{
		{Path: e.scope.RecentPath(), Content: recentContent},
		{Path: shardPath, Content: shardContent},
		{Path: e.scope.IndexPath(), Content: indexContent},
		{Path: doc.Path, Content: cleared.Render()},
		logTarget,
	}
	if err := e.committer.CommitAll(targets); err != nil {
		return nil, err
	}

	if !opts.SkipCleanup {
		e.pruneNowFiles(now)
	}

	if e.mirror != nil {
		if _, err := e.mirror.Commit(ctx, fmt.Sprintf("consolidate: session %s", doc.SessionID)); err != nil {
			e.logger.Warn("history mirror commit failed", "error", err)
		}
	}

	e.logger.Info("consolidated session",
		"session", doc.SessionID, "anchor", anchor, "section", section, "shard", shardFile)

	return report, nil
}

// pruneNowFiles removes consolidated NOW files past the retention window,
// always skipping the active one.
func (e *ConsolidationEngine) pruneNowFiles(now time.Time) {
	files, err := e.scope.NowFiles()
	if err != nil {
		return
	}

	active := ""
	if data, err := os.ReadFile(e.scope.CurrentPath()); err == nil {
		active = filepath.Join(e.scope.MemPath, strings.TrimSpace(string(data)))
	}

	cutoff := now.AddDate(0, 0, -e.cfg.NowRetentionDays)
	for _, f := range files {
		if f == active {
			continue
		}
		doc, err := ParseNow(f)
		if err != nil || !doc.Cleared() {
			continue
		}
		stamp := doc.TimestampStart
		if doc.TimestampEnd != nil {
			stamp = *doc.TimestampEnd
		}
		if stamp.Before(cutoff) {
			if rmErr := os.Remove(f); rmErr == nil {
				e.logger.Debug("pruned NOW file", "path", f)
			}
		}
	}
}

// chooseSection files a session by priority: decisions, then discoveries,
// then patterns (reusable approaches that worked), then the catch-all. A
// section absent from the configured taxonomy is skipped, and the next
// priority with content still gets its chance.
func chooseSection(summary *SessionSummary, sections []string) string {
	pick := func(name string) bool {
		for _, s := range sections {
			if s == name {
				return true
			}
		}
		return false
	}

	if len(summary.Decisions) > 0 && pick("Decisions") {
		return "Decisions"
	}
	if len(summary.Discoveries) > 0 && pick("Discoveries") {
		return "Discoveries"
	}
	if len(summary.WhatWorked) > 0 && pick("Patterns") {
		return "Patterns"
	}
	return SectionSessions
}

// RECENT tier

const recentHeader = "# Recent Sessions\n"

// RecentEntry carries its anchor as a first-class field; the markdown text is
// a pure projection of the already-deduplicated entry.
type RecentEntry struct {
	Anchor string
	Text   string
}

func buildRecentEntry(doc *NowDocument, summary *SessionSummary, anchor, shardFile string) RecentEntry {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s Session %s\n", doc.TimestampStart.Format("2006-01-02 15:04"), doc.SessionID)
	fmt.Fprintf(&sb, "[Details](%s#%s)\n\n", shardFile, anchor)
	sb.WriteString(summary.Narrative)
	sb.WriteString("\n")

	writeItemList(&sb, "Decisions", summary.Decisions)
	writeItemList(&sb, "Discoveries", summary.Discoveries)
	writeItemList(&sb, "Next steps", summary.NextSteps)

	return RecentEntry{Anchor: anchor, Text: sb.String()}
}

func writeItemList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n**%s:**\n", title)
	for _, item := range items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
}

var entryAnchorPattern = regexp.MustCompile(`\(([^()#]+\.md)#(session-[a-z0-9-]+)\)`)

func parseRecentEntries(content string) []RecentEntry {
	var entries []RecentEntry
	for _, block := range strings.Split(content, "\n## ") {
		if !strings.Contains(block, "](") {
			continue
		}
		text := "## " + strings.TrimRight(block, "\n") + "\n"
		anchor := ""
		if m := entryAnchorPattern.FindStringSubmatch(block); m != nil {
			anchor = m[2]
		}
		entries = append(entries, RecentEntry{Anchor: anchor, Text: text})
	}
	return entries
}

func renderRecent(entries []RecentEntry) string {
	var sb strings.Builder
	sb.WriteString(recentHeader)
	for _, e := range entries {
		sb.WriteString("\n")
		sb.WriteString(e.Text)
	}
	return sb.String()
}

// upsertRecent prepends the new entry, dedupes by anchor (new entry wins),
// truncates to the session count, then drops oldest entries until the line
// budget holds, never going below one entry.
func upsertRecent(existing string, entry RecentEntry, cfg *Config) string {
	out := []RecentEntry{entry}
	for _, e := range parseRecentEntries(existing) {
		if e.Anchor != entry.Anchor {
			out = append(out, e)
		}
	}

	if len(out) > cfg.RecentSessionCount {
		out = out[:cfg.RecentSessionCount]
	}

	content := renderRecent(out)
	for countLines(content) > cfg.RecentMaxLines && len(out) > 1 {
		out = out[:len(out)-1]
		content = renderRecent(out)
	}
	return content
}

// MEMORY shard tier

func buildShardSection(doc *NowDocument, summary *SessionSummary, anchor string, duration int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Session %s (%s, %d min)\n", doc.SessionID, doc.TimestampStart.Format("15:04"), duration)
	fmt.Fprintf(&sb, "<a name=%q></a>\n\n", anchor)
	sb.WriteString(summary.Narrative)
	sb.WriteString("\n")

	writeItemList(&sb, "Decisions", summary.Decisions)
	writeItemList(&sb, "Discoveries", summary.Discoveries)
	writeItemList(&sb, "What worked", summary.WhatWorked)
	writeItemList(&sb, "What failed", summary.WhatFailed)
	writeItemList(&sb, "Open questions", summary.OpenQuestions)
	writeItemList(&sb, "Next steps", summary.NextSteps)
	writeItemList(&sb, "Tasks", summary.Tasks)
	writeItemList(&sb, "Files", summary.Files)

	return sb.String()
}

func shardAnchorTag(anchor string) string {
	return fmt.Sprintf("<a name=%q></a>", anchor)
}

// upsertShard creates a shard with fresh frontmatter or merges into an
// existing one: union of sessions and tags, recomputed count, dedup pass over
// pre-existing duplicate anchors, then the new section appended.
func upsertShard(existing string, doc *NowDocument, anchor, section, date string) (string, error) {
	if existing == "" {
		fm := &Frontmatter{}
		fm.Set("consolidation_date", date)
		fm.Set("source_sessions", []string{doc.SessionID})
		fm.Set("total_sessions_consolidated", 1)
		fm.Set("tags", emptyIfNil(doc.Tags))
		fm.Set("consolidated_by", ConsolidatedBy)
		return fm.Render() + "# Memory " + date + "\n\n" + section, nil
	}

	fm, body, err := ParseFrontmatter(existing)
	if err != nil || fm == nil {
		return "", fmt.Errorf("parse shard frontmatter: %v", err)
	}

	sessions := unionStrings(fm.GetList("source_sessions"), []string{doc.SessionID})
	tags := unionStrings(fm.GetList("tags"), doc.Tags)

	fm.Set("consolidation_date", date)
	fm.Set("source_sessions", sessions)
	fm.Set("total_sessions_consolidated", len(sessions))
	fm.Set("tags", tags)
	fm.Set("consolidated_by", ConsolidatedBy)

	body = dedupShardSections(body, anchor)
	if !strings.HasSuffix(body, "\n\n") {
		body = strings.TrimRight(body, "\n") + "\n\n"
	}
	body += section

	return fm.Render() + body, nil
}

var shardAnchorPattern = regexp.MustCompile(`<a name="([^"]+)"></a>`)

// dedupShardSections removes duplicate-anchored sections (first occurrence
// wins) and any section matching newAnchor so the fresh one replaces it. This
// also repairs legacy duplication left by older writers.
func dedupShardSections(body, newAnchor string) string {
	parts := strings.Split(body, "\n## ")
	if len(parts) == 1 {
		return body
	}

	head := parts[0]
	seen := map[string]bool{newAnchor: true}

	var kept []string
	for _, part := range parts[1:] {
		sectionAnchor := ""
		if m := shardAnchorPattern.FindStringSubmatch(part); m != nil {
			sectionAnchor = m[1]
		}
		if sectionAnchor != "" && seen[sectionAnchor] {
			continue
		}
		if sectionAnchor != "" {
			seen[sectionAnchor] = true
		}
		kept = append(kept, part)
	}

	out := head
	for _, part := range kept {
		out += "\n## " + part
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// MEMORY index tier

const indexHeader = "# Memory Index\n"

func buildIndexLine(doc *NowDocument, summary *SessionSummary, date, shardFile, anchor string) string {
	return fmt.Sprintf("- [%s %s](%s#%s)", date, summary.Focus(focusMaxLen), shardFile, anchor)
}

type indexSection struct {
	Name  string
	Lines []string
}

var indexAnchorPattern = regexp.MustCompile(`#(session-[a-z0-9-]+)\)`)

func parseIndex(content string, configured []string) []indexSection {
	byName := map[string]*indexSection{}
	var order []string

	add := func(name string) *indexSection {
		if s, ok := byName[name]; ok {
			return s
		}
		s := &indexSection{Name: name}
		byName[name] = s
		order = append(order, name)
		return s
	}

	for _, name := range configured {
		add(name)
	}

	var cur *indexSection
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "## "):
			cur = add(strings.TrimSpace(strings.TrimPrefix(line, "## ")))
		case strings.HasPrefix(line, "- ") && cur != nil:
			cur.Lines = append(cur.Lines, line)
		}
	}

	out := make([]indexSection, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

func renderIndex(sections []indexSection) string {
	var sb strings.Builder
	sb.WriteString(indexHeader)
	for _, s := range sections {
		sb.WriteString("\n## " + s.Name + "\n")
		for _, line := range s.Lines {
			sb.WriteString(line + "\n")
		}
	}
	return sb.String()
}

// upsertIndex dedupes anchors within every section, then inserts the new line
// into the chosen section unless its anchor is already present there.
func upsertIndex(existing, line, anchor, sectionName string, configured []string) string {
	sections := parseIndex(existing, configured)

	for i := range sections {
		seen := map[string]bool{}
		var kept []string
		for _, l := range sections[i].Lines {
			a := ""
			if m := indexAnchorPattern.FindStringSubmatch(l); m != nil {
				a = m[1]
			}
			if a != "" && seen[a] {
				continue
			}
			if a != "" {
				seen[a] = true
			}
			kept = append(kept, l)
		}
		sections[i].Lines = kept
	}

	for i := range sections {
		if sections[i].Name != sectionName {
			continue
		}
		exists := false
		for _, l := range sections[i].Lines {
			if strings.Contains(l, "#"+anchor+")") {
				exists = true
				break
			}
		}
		if !exists {
			sections[i].Lines = append(sections[i].Lines, line)
		}
	}

	return renderIndex(sections)
}

func readFileOr(path, fallback string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}
	return string(data)
}
