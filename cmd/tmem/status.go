package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tiermem/tiermem/internal"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show memory root status",
		Long:  `Show the resolved scope, the active session, and the size of each memory tier.`,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}

	status := map[string]any{
		"scope":    string(e.scope.Type),
		"root":     e.scope.MemPath,
		"provider": e.cfg.Provider.Name,
	}

	doc, err := e.capture.Current()
	switch {
	case errors.Is(err, internal.ErrNoActiveSession):
		status["session"] = nil
	case err != nil:
		return fmt.Errorf("read active session: %w", err)
	default:
		status["session"] = map[string]any{
			"id":        doc.SessionID,
			"lines":     doc.LineCount(),
			"age_hours": doc.Age(time.Now().UTC()).Hours(),
		}
	}

	nowFiles, err := e.scope.NowFiles()
	if err != nil {
		return fmt.Errorf("list transcripts: %w", err)
	}
	status["transcripts"] = len(nowFiles)

	shards, err := filepath.Glob(filepath.Join(e.scope.MemPath, "MEMORY-*.md"))
	if err != nil {
		return fmt.Errorf("list shards: %w", err)
	}
	status["shards"] = len(shards)

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scope:       %s (%s)\n", status["scope"], status["root"])
	if sess, ok := status["session"].(map[string]any); ok {
		fmt.Fprintf(out, "Session:     %s (%d lines, %.1fh old)\n",
			sess["id"], sess["lines"], sess["age_hours"])
	} else {
		fmt.Fprintln(out, "Session:     none")
	}
	fmt.Fprintf(out, "Transcripts: %d\n", status["transcripts"])
	fmt.Fprintf(out, "Shards:      %d\n", status["shards"])
	if e.cfg.Provider.Name != "" {
		fmt.Fprintf(out, "Provider:    %s\n", e.cfg.Provider.Name)
	}
	return nil
}
