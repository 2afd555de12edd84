package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScope(t *testing.T) Scope {
	t.Helper()
	dir := t.TempDir()
	scope := Scope{
		Type:    ScopeProject,
		Path:    dir,
		MemPath: filepath.Join(dir, ".tmem"),
	}
	require.NoError(t, os.MkdirAll(scope.MemPath, 0755))
	return scope
}

func TestLoadConfigDefaults(t *testing.T) {
	scope := testScope(t)

	cfg, err := LoadConfig(scope)
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.NowMaxLines)
	assert.Equal(t, 6.0, cfg.NowMaxHours)
	assert.Equal(t, 3, cfg.RecentSessionCount)
	assert.Equal(t, 500, cfg.RecentMaxLines)
	assert.Equal(t, 7, cfg.NowRetentionDays)
	assert.Equal(t, 1000, cfg.LogMaxLines)
	assert.Contains(t, cfg.MemorySections, SectionSessions)
}

func TestLoadConfigOverrides(t *testing.T) {
	scope := testScope(t)
	yaml := `now_max_lines: 50
now_max_hours: 2.5
recent_session_count: 5
provider:
  name: openai
  model: gpt-4o-mini
`
	require.NoError(t, os.WriteFile(scope.ConfigPath(), []byte(yaml), 0644))

	cfg, err := LoadConfig(scope)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.NowMaxLines)
	assert.Equal(t, 2.5, cfg.NowMaxHours)
	assert.Equal(t, 5, cfg.RecentSessionCount)
	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "gpt-4o-mini", cfg.Provider.Model)

	// Untouched keys keep their defaults.
	assert.Equal(t, 500, cfg.RecentMaxLines)
}

func TestLoadConfigAppendsSessionsSection(t *testing.T) {
	scope := testScope(t)
	yaml := `memory_sections: [Decisions, Discoveries, Patterns]
`
	require.NoError(t, os.WriteFile(scope.ConfigPath(), []byte(yaml), 0644))

	cfg, err := LoadConfig(scope)
	require.NoError(t, err)
	assert.Equal(t, []string{"Decisions", "Discoveries", "Patterns", SectionSessions}, cfg.MemorySections)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero lines", "now_max_lines: 0\n"},
		{"negative hours", "now_max_hours: -1\n"},
		{"zero recent count", "recent_session_count: 0\n"},
		{"too few sections", "memory_sections: [Decisions]\n"},
		{"zero retention", "now_retention_days: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := testScope(t)
			require.NoError(t, os.WriteFile(scope.ConfigPath(), []byte(tt.yaml), 0644))

			_, err := LoadConfig(scope)
			assert.Error(t, err)
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	scope := testScope(t)

	cfg := DefaultConfig()
	cfg.NowMaxLines = 77
	cfg.MirrorHistory = true
	require.NoError(t, SaveConfig(scope, cfg))

	loaded, err := LoadConfig(scope)
	require.NoError(t, err)
	assert.Equal(t, 77, loaded.NowMaxLines)
	assert.True(t, loaded.MirrorHistory)
}
