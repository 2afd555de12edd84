package internal

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

const SectionSessions = "Sessions"

type ProviderConfig struct {
	Name    string `yaml:"name,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

type Config struct {
	NowMaxLines        int            `yaml:"now_max_lines"`
	NowMaxHours        float64        `yaml:"now_max_hours"`
	RecentSessionCount int            `yaml:"recent_session_count"`
	RecentMaxLines     int            `yaml:"recent_max_lines"`
	MemorySections     []string       `yaml:"memory_sections"`
	NowRetentionDays   int            `yaml:"now_retention_days"`
	LogMaxLines        int            `yaml:"log_max_lines"`
	MirrorHistory      bool           `yaml:"mirror_history,omitempty"`
	Provider           ProviderConfig `yaml:"provider,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		NowMaxLines:        200,
		NowMaxHours:        6,
		RecentSessionCount: 3,
		RecentMaxLines:     500,
		MemorySections:     []string{"Decisions", "Discoveries", "Patterns", SectionSessions},
		NowRetentionDays:   7,
		LogMaxLines:        1000,
	}
}

func LoadConfig(scope Scope) (*Config, error) {
	path := scope.ConfigPath()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if !slices.Contains(cfg.MemorySections, SectionSessions) {
		cfg.MemorySections = append(cfg.MemorySections, SectionSessions)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

func SaveConfig(scope Scope, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(scope.ConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

func (c *Config) validate() error {
	if c.NowMaxLines <= 0 {
		return fmt.Errorf("now_max_lines must be > 0, got %d", c.NowMaxLines)
	}
	if c.NowMaxHours <= 0 {
		return fmt.Errorf("now_max_hours must be > 0, got %v", c.NowMaxHours)
	}
	if c.RecentSessionCount <= 0 {
		return fmt.Errorf("recent_session_count must be > 0, got %d", c.RecentSessionCount)
	}
	if c.RecentMaxLines <= 0 {
		return fmt.Errorf("recent_max_lines must be > 0, got %d", c.RecentMaxLines)
	}
	if len(c.MemorySections) < 3 {
		return fmt.Errorf("memory_sections needs at least 3 entries, got %d", len(c.MemorySections))
	}
	if c.NowRetentionDays <= 0 {
		return fmt.Errorf("now_retention_days must be > 0, got %d", c.NowRetentionDays)
	}
	if c.LogMaxLines <= 0 {
		return fmt.Errorf("log_max_lines must be > 0, got %d", c.LogMaxLines)
	}
	return nil
}
