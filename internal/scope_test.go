package internal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScopePaths(t *testing.T) {
	scope := Scope{MemPath: "/home/user/.tmem"}

	tests := []struct {
		got, want string
	}{
		{scope.ConfigPath(), "/home/user/.tmem/config.yaml"},
		{scope.RecentPath(), "/home/user/.tmem/RECENT.md"},
		{scope.IndexPath(), "/home/user/.tmem/MEMORY.md"},
		{scope.LogPath(), "/home/user/.tmem/consolidation.log"},
		{scope.CurrentPath(), "/home/user/.tmem/.current"},
		{scope.MemoryLockPath(), "/home/user/.tmem/.memory.lock"},
		{scope.NowLockPath(), "/home/user/.tmem/.now.lock"},
		{scope.ShardPath("2026-08-24"), "/home/user/.tmem/MEMORY-2026-08-24.md"},
		{scope.NowPath("20260824-100000"), "/home/user/.tmem/NOW-20260824-100000.md"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, tt.got)
		}
	}
}

func TestScopeResolverGlobal(t *testing.T) {
	resolver := NewScopeResolver()
	scope := resolver.Global()

	if scope.Type != ScopeGlobal {
		t.Errorf("expected ScopeGlobal, got %q", scope.Type)
	}

	home, _ := os.UserHomeDir()
	expectedMemPath := filepath.Join(home, ".tmem")
	if scope.MemPath != expectedMemPath {
		t.Errorf("expected MemPath %q, got %q", expectedMemPath, scope.MemPath)
	}
}

func TestScopeResolverProjectNotFound(t *testing.T) {
	tmp := t.TempDir()
	orig, _ := os.Getwd()
	defer func() { _ = os.Chdir(orig) }()

	_ = os.Chdir(tmp)

	resolver := NewScopeResolver()
	_, found := resolver.Project()
	if found {
		t.Error("expected Project() to return false when no .tmem exists")
	}
}

func TestScopeResolverProjectInParent(t *testing.T) {
	tmp := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmp, ".tmem"), 0755); err != nil {
		t.Fatal(err)
	}
	subDir := filepath.Join(tmp, "sub", "dir")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	orig, _ := os.Getwd()
	defer func() { _ = os.Chdir(orig) }()

	_ = os.Chdir(subDir)

	resolver := NewScopeResolver()
	scope, found := resolver.Project()
	if !found {
		t.Fatal("expected Project() to find .tmem in parent")
	}

	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedPath, _ := filepath.EvalSymlinks(tmp)
	actualPath, _ := filepath.EvalSymlinks(scope.Path)
	if actualPath != expectedPath {
		t.Errorf("expected Path %q, got %q", expectedPath, actualPath)
	}
}

func TestScopeResolverResolveExplicitGlobal(t *testing.T) {
	resolver := NewScopeResolver()
	scope := resolver.Resolve("global")
	if scope.Type != ScopeGlobal {
		t.Errorf("expected ScopeGlobal, got %q", scope.Type)
	}
}

func TestScopeResolverCascade(t *testing.T) {
	tmp := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmp, ".tmem"), 0755); err != nil {
		t.Fatal(err)
	}

	orig, _ := os.Getwd()
	defer func() { _ = os.Chdir(orig) }()

	_ = os.Chdir(tmp)

	resolver := NewScopeResolver()
	scopes := resolver.Cascade()

	if len(scopes) != 2 {
		t.Fatalf("expected 2 scopes, got %d", len(scopes))
	}
	if scopes[0].Type != ScopeProject {
		t.Errorf("expected first scope to be ScopeProject, got %q", scopes[0].Type)
	}
	if scopes[1].Type != ScopeGlobal {
		t.Errorf("expected second scope to be ScopeGlobal, got %q", scopes[1].Type)
	}
}
