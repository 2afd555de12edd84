package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Validator checks persisted tier files for integrity: frontmatter schema
// conformance and link validity. It reports every issue and repairs nothing.
type Validator struct {
	scope Scope
}

func NewValidator(scope Scope) *Validator {
	return &Validator{scope: scope}
}

type IntegrityReport struct {
	Issues []ValidationIssue
}

func (r *IntegrityReport) OK() bool { return len(r.Issues) == 0 }

func (r *IntegrityReport) Err() error {
	if r.OK() {
		return nil
	}
	return &IntegrityError{Issues: r.Issues}
}

func (v *Validator) Validate() (*IntegrityReport, error) {
	if !v.scope.Initialized() {
		return nil, ErrNotInitialized
	}

	report := &IntegrityReport{}

	nowFiles, err := v.scope.NowFiles()
	if err != nil {
		return nil, fmt.Errorf("list NOW files: %w", err)
	}
	for _, f := range nowFiles {
		report.Issues = append(report.Issues, v.checkFrontmatter(f, NowFieldSpecs)...)
	}

	shards, err := filepath.Glob(filepath.Join(v.scope.MemPath, "MEMORY-*.md"))
	if err != nil {
		return nil, fmt.Errorf("list shards: %w", err)
	}
	for _, f := range shards {
		report.Issues = append(report.Issues, v.checkFrontmatter(f, ShardFieldSpecs)...)
	}

	for _, f := range []string{v.scope.IndexPath(), v.scope.RecentPath()} {
		report.Issues = append(report.Issues, v.checkLinks(f)...)
	}

	report.Issues = append(report.Issues, v.checkCurrentPointer()...)

	return report, nil
}

func (v *Validator) checkFrontmatter(path string, specs []FieldSpec) []ValidationIssue {
	data, err := os.ReadFile(path)
	if err != nil {
		return []ValidationIssue{{File: path, Detail: "unreadable: " + err.Error()}}
	}

	fm, _, err := ParseFrontmatter(string(data))
	if err != nil {
		return []ValidationIssue{{File: path, Detail: err.Error()}}
	}

	return ValidateFields(fm, specs, path)
}

var linkPattern = regexp.MustCompile(`\]\(([^()#]+\.md)#([a-zA-Z0-9-]+)\)`)

// checkLinks verifies every FILE.md#anchor reference resolves: the target file
// must exist and contain either a matching anchor tag or a heading that
// slugifies to the anchor.
func (v *Validator) checkLinks(path string) []ValidationIssue {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return []ValidationIssue{{File: path, Detail: "unreadable: " + err.Error()}}
	}

	var issues []ValidationIssue
	for i, line := range strings.Split(string(data), "\n") {
		for _, m := range linkPattern.FindAllStringSubmatch(line, -1) {
			target, anchor := m[1], m[2]
			targetPath := filepath.Join(v.scope.MemPath, target)

			content, err := os.ReadFile(targetPath)
			if err != nil {
				issues = append(issues, ValidationIssue{
					File: path, Line: i + 1,
					Detail: fmt.Sprintf("dangling link: %s does not exist", target),
				})
				continue
			}
			if !anchorResolves(string(content), anchor) {
				issues = append(issues, ValidationIssue{
					File: path, Line: i + 1,
					Detail: fmt.Sprintf("dangling link: no anchor %q in %s", anchor, target),
				})
			}
		}
	}
	return issues
}

func anchorResolves(content, anchor string) bool {
	if strings.Contains(content, fmt.Sprintf("<a name=%q></a>", anchor)) {
		return true
	}
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "#") {
			heading := strings.TrimLeft(line, "# ")
			if slugify(heading) == anchor {
				return true
			}
		}
	}
	return false
}

var slugStrip = regexp.MustCompile(`[^a-z0-9 -]`)

func slugify(heading string) string {
	s := strings.ToLower(strings.TrimSpace(heading))
	s = slugStrip.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), "-")
	return s
}

func (v *Validator) checkCurrentPointer() []ValidationIssue {
	data, err := os.ReadFile(v.scope.CurrentPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return []ValidationIssue{{File: v.scope.CurrentPath(), Detail: "unreadable: " + err.Error()}}
	}

	target := filepath.Join(v.scope.MemPath, strings.TrimSpace(string(data)))
	if !fileExists(target) {
		return []ValidationIssue{{
			File:   v.scope.CurrentPath(),
			Detail: fmt.Sprintf("points to missing file %s", filepath.Base(target)),
		}}
	}
	return nil
}
