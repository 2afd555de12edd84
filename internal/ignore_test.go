package internal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIgnoreMatcher(t *testing.T) {
	dir := t.TempDir()
	ignore := "# scratch sessions\nNOW-2026*\n*.draft.md\n"
	if err := os.WriteFile(filepath.Join(dir, IgnoreFilename), []byte(ignore), 0644); err != nil {
		t.Fatalf("write ignore: %v", err)
	}

	m, err := NewIgnoreMatcher(dir)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}

	tests := []struct {
		name string
		want bool
	}{
		{"NOW-20260824-100000.md", true},
		{"NOW-20251231-235959.md", false},
		{"notes.draft.md", true},
		{"RECENT.md", false},
	}
	for _, tt := range tests {
		if got := m.Match(filepath.Join(dir, tt.name)); got != tt.want {
			t.Errorf("Match(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIgnoreMatcherNoFile(t *testing.T) {
	dir := t.TempDir()

	m, err := NewIgnoreMatcher(dir)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	if m.Match(filepath.Join(dir, "NOW-20260824-100000.md")) {
		t.Error("matched with no ignore file")
	}
}
