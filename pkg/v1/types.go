package v1

import "time"

// Session describes one transcript, active or ended.
type Session struct {
	ID    string     `json:"id"`
	Path  string     `json:"path"`
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
	Lines int        `json:"lines"`
}

// Consolidation describes one completed (or projected) consolidation.
type Consolidation struct {
	SessionID string `json:"session_id"`
	Anchor    string `json:"anchor"`
	Section   string `json:"section"`
	ShardPath string `json:"shard_path"`
	DryRun    bool   `json:"dry_run"`
}

// Status is a snapshot of one memory root.
type Status struct {
	Scope       string   `json:"scope"`
	Root        string   `json:"root"`
	Active      *Session `json:"active,omitempty"`
	Transcripts int      `json:"transcripts"`
	Shards      int      `json:"shards"`
}
