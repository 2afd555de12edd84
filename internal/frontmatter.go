package internal

import (
	"fmt"
	"strconv"
	"strings"
)

// Frontmatter is an ordered key/value block delimited by --- lines. Values are
// scalars, null, or inline [a, b, c] arrays. Key order is significant: each
// document kind renders its keys in a fixed order, so Fields preserves
// insertion order and rendering is a pure projection.
type Frontmatter struct {
	Fields []Field
}

// Field holds one frontmatter entry. Value is nil, a string, or a []string.
type Field struct {
	Key   string
	Value any
}

func (fm *Frontmatter) Set(key string, value any) {
	for i := range fm.Fields {
		if fm.Fields[i].Key == key {
			fm.Fields[i].Value = value
			return
		}
	}
	fm.Fields = append(fm.Fields, Field{Key: key, Value: value})
}

func (fm *Frontmatter) Get(key string) (any, bool) {
	for _, f := range fm.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func (fm *Frontmatter) GetString(key string) string {
	v, ok := fm.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (fm *Frontmatter) GetList(key string) []string {
	v, ok := fm.Get(key)
	if !ok || v == nil {
		return nil
	}
	l, _ := v.([]string)
	return l
}

func (fm *Frontmatter) GetInt(key string) (int, bool) {
	s := fm.GetString(key)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseFrontmatter splits content into its frontmatter block and body. Content
// without a leading --- line yields a nil frontmatter and the whole input as
// body.
func ParseFrontmatter(content string) (*Frontmatter, string, error) {
	if !strings.HasPrefix(content, "---\n") {
		return nil, content, nil
	}

	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, "", fmt.Errorf("unterminated frontmatter block")
	}

	block := rest[:end]
	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")

	fm := &Frontmatter{}
	for _, line := range strings.Split(block, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, raw, found := strings.Cut(line, ":")
		if !found {
			return nil, "", fmt.Errorf("frontmatter line %q has no key", line)
		}
		fm.Fields = append(fm.Fields, Field{
			Key:   strings.TrimSpace(key),
			Value: parseValue(strings.TrimSpace(raw)),
		})
	}

	return fm, body, nil
}

func parseValue(raw string) any {
	switch {
	case raw == "null" || raw == "":
		return nil
	case strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]"):
		inner := strings.TrimSpace(raw[1 : len(raw)-1])
		if inner == "" {
			return []string{}
		}
		parts := strings.Split(inner, ",")
		list := make([]string, 0, len(parts))
		for _, p := range parts {
			list = append(list, strings.TrimSpace(p))
		}
		return list
	default:
		return raw
	}
}

// Render serializes the block including both --- delimiters and a trailing
// newline.
func (fm *Frontmatter) Render() string {
	var sb strings.Builder
	sb.WriteString("---\n")
	for _, f := range fm.Fields {
		sb.WriteString(f.Key)
		sb.WriteString(": ")
		sb.WriteString(renderValue(f.Value))
		sb.WriteString("\n")
	}
	sb.WriteString("---\n")
	return sb.String()
}

func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case []string:
		return "[" + strings.Join(val, ", ") + "]"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Declarative frontmatter schema. One generic routine validates any document
// kind against its field records instead of per-field branches.

type FieldKind int

const (
	KindString FieldKind = iota
	KindInt
	KindNumber
	KindList
)

type FieldSpec struct {
	Key      string
	Kind     FieldKind
	Nullable bool
	Allowed  []string
}

// NowFieldSpecs is the fixed NOW document key order.
var NowFieldSpecs = []FieldSpec{
	{Key: "session_id", Kind: KindString},
	{Key: "timestamp_start", Kind: KindString},
	{Key: "timestamp_end", Kind: KindString, Nullable: true},
	{Key: "duration_minutes", Kind: KindInt, Nullable: true},
	{Key: "project_path", Kind: KindString},
	{Key: "tags", Kind: KindList},
	{Key: "parent_session", Kind: KindString, Nullable: true},
	{Key: "related_tasks", Kind: KindList},
	{Key: "memory_type", Kind: KindString, Allowed: []string{"now"}},
}

// ShardFieldSpecs is the fixed MEMORY shard key order.
var ShardFieldSpecs = []FieldSpec{
	{Key: "consolidation_date", Kind: KindString},
	{Key: "source_sessions", Kind: KindList},
	{Key: "total_sessions_consolidated", Kind: KindInt},
	{Key: "tags", Kind: KindList},
	{Key: "consolidated_by", Kind: KindString},
}

// ValidateFields checks fm against specs and reports every mismatch. file is
// used only to label issues.
func ValidateFields(fm *Frontmatter, specs []FieldSpec, file string) []ValidationIssue {
	var issues []ValidationIssue

	if fm == nil {
		return []ValidationIssue{{File: file, Detail: "missing frontmatter"}}
	}

	for _, spec := range specs {
		v, ok := fm.Get(spec.Key)
		if !ok {
			issues = append(issues, ValidationIssue{File: file, Detail: fmt.Sprintf("missing key %q", spec.Key)})
			continue
		}
		if v == nil {
			if !spec.Nullable {
				issues = append(issues, ValidationIssue{File: file, Detail: fmt.Sprintf("key %q must not be null", spec.Key)})
			}
			continue
		}
		if issue, ok := checkKind(spec, v, file); !ok {
			issues = append(issues, issue)
			continue
		}
		if len(spec.Allowed) > 0 {
			s, _ := v.(string)
			allowed := false
			for _, a := range spec.Allowed {
				if s == a {
					allowed = true
					break
				}
			}
			if !allowed {
				issues = append(issues, ValidationIssue{File: file, Detail: fmt.Sprintf("key %q has disallowed value %q", spec.Key, s)})
			}
		}
	}

	return issues
}

func checkKind(spec FieldSpec, v any, file string) (ValidationIssue, bool) {
	bad := func(want string) (ValidationIssue, bool) {
		return ValidationIssue{File: file, Detail: fmt.Sprintf("key %q is not a %s", spec.Key, want)}, false
	}

	switch spec.Kind {
	case KindList:
		if _, ok := v.([]string); !ok {
			return bad("list")
		}
	case KindInt:
		if _, ok := v.(int); ok {
			break
		}
		s, ok := v.(string)
		if !ok {
			return bad("integer")
		}
		if _, err := strconv.Atoi(s); err != nil {
			return bad("integer")
		}
	case KindNumber:
		if _, ok := v.(int); ok {
			break
		}
		s, ok := v.(string)
		if !ok {
			return bad("number")
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return bad("number")
		}
	case KindString:
		if _, ok := v.(string); !ok {
			return bad("string")
		}
	}

	return ValidationIssue{}, true
}
