package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tiermem/tiermem/internal"
)

func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List session transcripts",
		Long:    `List every transcript in the memory root with its age and state.`,
		RunE:    runList,
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}

	files, err := e.scope.NowFiles()
	if err != nil {
		return fmt.Errorf("list transcripts: %w", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	now := time.Now().UTC()

	type row struct {
		Name     string  `json:"name"`
		ID       string  `json:"session_id"`
		Lines    int     `json:"lines"`
		AgeHours float64 `json:"age_hours"`
		State    string  `json:"state"`
	}

	rows := make([]row, 0, len(files))
	for _, f := range files {
		doc, err := internal.ParseNow(f)
		if err != nil {
			rows = append(rows, row{Name: filepath.Base(f), State: "corrupt"})
			continue
		}

		state := "open"
		if doc.Cleared() {
			state = "consolidated"
		} else if doc.TimestampEnd != nil {
			state = "ended"
		}

		rows = append(rows, row{
			Name:     filepath.Base(f),
			ID:       doc.SessionID,
			Lines:    doc.LineCount(),
			AgeHours: doc.Age(now).Hours(),
			State:    state,
		})
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	for _, r := range rows {
		fmt.Fprintf(cmd.OutOrStdout(), "%-42s %-12s %4d lines  %5.1fh\n", r.Name, r.State, r.Lines, r.AgeHours)
	}
	return nil
}
