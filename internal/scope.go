package internal

import (
	"os"
	"path/filepath"
)

type ScopeType string

const (
	ScopeGlobal  ScopeType = "global"
	ScopeProject ScopeType = "project"
)

// Scope locates one memory root. All tier files live flat inside MemPath.
type Scope struct {
	Type    ScopeType
	Path    string // working directory root
	MemPath string // .tmem directory path
}

func (s Scope) ConfigPath() string     { return filepath.Join(s.MemPath, "config.yaml") }
func (s Scope) RecentPath() string     { return filepath.Join(s.MemPath, "RECENT.md") }
func (s Scope) IndexPath() string      { return filepath.Join(s.MemPath, "MEMORY.md") }
func (s Scope) LogPath() string        { return filepath.Join(s.MemPath, "consolidation.log") }
func (s Scope) CurrentPath() string    { return filepath.Join(s.MemPath, ".current") }
func (s Scope) MemoryLockPath() string { return filepath.Join(s.MemPath, ".memory.lock") }
func (s Scope) NowLockPath() string    { return filepath.Join(s.MemPath, ".now.lock") }
func (s Scope) IgnorePath() string     { return filepath.Join(s.MemPath, IgnoreFilename) }

// ShardPath returns the per-date MEMORY file, date formatted 2006-01-02.
func (s Scope) ShardPath(date string) string {
	return filepath.Join(s.MemPath, "MEMORY-"+date+".md")
}

// NowPath returns the NOW file for a filename timestamp (20060102-150405).
func (s Scope) NowPath(ts string) string {
	return filepath.Join(s.MemPath, "NOW-"+ts+".md")
}

// NowFiles lists every NOW-*.md in the root, unsorted.
func (s Scope) NowFiles() ([]string, error) {
	return filepath.Glob(filepath.Join(s.MemPath, "NOW-*.md"))
}

// Initialized reports whether the memory root exists.
func (s Scope) Initialized() bool {
	info, err := os.Stat(s.MemPath)
	return err == nil && info.IsDir()
}

type ScopeResolver struct {
	homeDir string
}

func NewScopeResolver() *ScopeResolver {
	home, _ := os.UserHomeDir()
	return &ScopeResolver{homeDir: home}
}

func (r *ScopeResolver) Global() Scope {
	memPath := filepath.Join(r.homeDir, ".tmem")
	return Scope{
		Type:    ScopeGlobal,
		Path:    r.homeDir,
		MemPath: memPath,
	}
}

func (r *ScopeResolver) Project() (Scope, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return Scope{}, false
	}
	return r.findProjectScope(cwd)
}

func (r *ScopeResolver) findProjectScope(dir string) (Scope, bool) {
	for {
		memPath := filepath.Join(dir, ".tmem")
		info, err := os.Stat(memPath)
		if err == nil && info.IsDir() {
			return Scope{Type: ScopeProject, Path: dir, MemPath: memPath}, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Scope{}, false
		}
		dir = parent
	}
}

func (r *ScopeResolver) Resolve(explicit string) Scope {
	if explicit == "global" {
		return r.Global()
	}
	if scope, ok := r.Project(); ok {
		return scope
	}
	return r.Global()
}

func (r *ScopeResolver) Cascade() []Scope {
	scopes := []Scope{}
	if scope, ok := r.Project(); ok {
		scopes = append(scopes, scope)
	}
	scopes = append(scopes, r.Global())
	return scopes
}
