package internal

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// SessionSummary is the canonical summary shape. The LLM strategy fills every
// field; the mechanical strategy is a degraded subset that leaves whatWorked,
// whatFailed, openQuestions, and nextSteps empty.
type SessionSummary struct {
	Narrative     string   `json:"narrative"`
	Decisions     []string `json:"decisions"`
	Discoveries   []string `json:"discoveries"`
	WhatWorked    []string `json:"whatWorked"`
	WhatFailed    []string `json:"whatFailed"`
	OpenQuestions []string `json:"openQuestions"`
	NextSteps     []string `json:"nextSteps"`
	Tasks         []string `json:"tasks"`
	Files         []string `json:"files"`
}

// Summarizer turns a NOW body into a structured summary.
type Summarizer interface {
	Summarize(ctx context.Context, doc *NowDocument) (*SessionSummary, error)
}

const fallbackNarrative = "Session captured without summary."

var (
	decisionPattern  = regexp.MustCompile(`(?m)@decision:\s*(.+)$`)
	discoveryPattern = regexp.MustCompile(`(?m)@discovery:\s*(.+)$`)
	goalPattern      = regexp.MustCompile(`(?m)^.*Goal alignment:\s*(.+)$`)
	userLinePattern  = regexp.MustCompile(`(?m)^- \[user\]\s*(.+)$`)
	filePattern      = regexp.MustCompile(`\b[\w./~-]*[\w-]+\.(?:go|md|ts|tsx|js|py|rs|json|yaml|yml|toml|sh|sql)\b`)
	taskPattern      = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b|@task:\s*(\S+)`)
)

// MechanicalSummarizer extracts marker lines without calling any service. It
// is the fallback strategy when no provider is configured.
type MechanicalSummarizer struct{}

func (MechanicalSummarizer) Summarize(_ context.Context, doc *NowDocument) (*SessionSummary, error) {
	body := doc.Body

	s := &SessionSummary{
		Decisions:   captureAll(decisionPattern, body),
		Discoveries: captureAll(discoveryPattern, body),
		Files:       uniqueMatches(filePattern, body),
		Tasks:       taskMatches(body),
	}

	switch {
	case goalPattern.MatchString(body):
		s.Narrative = "Goal alignment: " + strings.TrimSpace(goalPattern.FindStringSubmatch(body)[1])
	case userLinePattern.MatchString(body):
		s.Narrative = strings.TrimSpace(userLinePattern.FindStringSubmatch(body)[1])
	default:
		s.Narrative = fallbackNarrative
	}

	return s, nil
}

func captureAll(re *regexp.Regexp, body string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(body, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

func uniqueMatches(re *regexp.Regexp, body string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range re.FindAllString(body, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func taskMatches(body string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range taskPattern.FindAllStringSubmatch(body, -1) {
		task := m[0]
		if m[1] != "" {
			task = m[1]
		}
		if !seen[task] {
			seen[task] = true
			out = append(out, task)
		}
	}
	return out
}

var anchorSanitizer = regexp.MustCompile(`[^a-z0-9-]+`)

// SessionAnchor derives the stable identifier used for linking and
// deduplication: session-{date}-{HH-MM}-{sessionId}, sanitized.
func SessionAnchor(start time.Time, sessionID string) string {
	id := anchorSanitizer.ReplaceAllString(strings.ToLower(sessionID), "-")
	id = strings.Trim(id, "-")
	return "session-" + start.Format("2006-01-02-15-04") + "-" + id
}

// Focus returns the short line the index files a session under, truncated to
// at most max characters.
func (s *SessionSummary) Focus(max int) string {
	focus := strings.TrimSpace(s.Narrative)
	if focus == "" {
		focus = fallbackNarrative
	}
	if line, _, found := strings.Cut(focus, "\n"); found {
		focus = line
	}
	if len(focus) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(focus[cut]) {
			cut--
		}
		focus = focus[:cut]
	}
	return focus
}
