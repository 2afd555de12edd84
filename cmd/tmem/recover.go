package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tiermem/tiermem/internal"
)

func NewRecoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Find and consolidate abandoned sessions",
		Long:  `Scan for transcript files left behind by crashed or abandoned sessions and drive them through consolidation.`,
		RunE:  runRecover,
	}

	cmd.Flags().Float64("hours", 0, "Staleness threshold in hours (default: configured rollover age)")
	cmd.Flags().Bool("consolidate", false, "Consolidate stale sessions instead of only listing them")
	return cmd
}

func runRecover(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}

	hours, _ := cmd.Flags().GetFloat64("hours")
	consolidate, _ := cmd.Flags().GetBool("consolidate")
	asJSON, _ := cmd.Flags().GetBool("json")

	results, err := e.scanner.Recover(cmd.Context(), consolidate, hours)
	if err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	if asJSON {
		return outputRecoverJSON(cmd, results)
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No stale sessions found")
		return nil
	}

	failed := 0
	for _, r := range results {
		name := filepath.Base(r.Session.Path)
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(out, "%-42s %.1fh  FAILED: %v\n", name, r.Session.AgeHours, r.Err)
		case r.Report != nil:
			fmt.Fprintf(out, "%-42s %.1fh  consolidated as %s\n", name, r.Session.AgeHours, r.Report.Anchor)
		default:
			fmt.Fprintf(out, "%-42s %.1fh  stale\n", name, r.Session.AgeHours)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d recoveries failed", failed, len(results))
	}
	return nil
}

func outputRecoverJSON(cmd *cobra.Command, results []internal.RecoveryResult) error {
	data := make([]map[string]any, 0, len(results))
	for _, r := range results {
		entry := map[string]any{
			"path":       r.Session.Path,
			"session_id": r.Session.SessionID,
			"age_hours":  r.Session.AgeHours,
		}
		if r.Err != nil {
			entry["error"] = r.Err.Error()
		}
		if r.Report != nil {
			entry["anchor"] = r.Report.Anchor
		}
		data = append(data, entry)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
