package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tiermem/tiermem/internal"
)

func NewConsolidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Consolidate the active session into durable memory",
		Long:  `Summarize the active session and commit it to the recency digest, its date shard, and the index in one atomic step.`,
		RunE:  runConsolidate,
	}

	cmd.Flags().String("file", "", "Consolidate a specific transcript file instead of the active one")
	cmd.Flags().Bool("dry-run", false, "Report what would change without writing anything")
	cmd.Flags().Bool("diff", false, "Show a unified diff of the recency digest (implies --dry-run)")
	return cmd
}

func runConsolidate(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}

	file, _ := cmd.Flags().GetString("file")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	diff, _ := cmd.Flags().GetBool("diff")

	report, err := e.engine.Consolidate(cmd.Context(), internal.ConsolidateOptions{
		NowPath:     file,
		DryRun:      dryRun || diff,
		PreviewDiff: diff,
	})
	if err != nil {
		return fmt.Errorf("consolidate: %w", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		return outputReportJSON(cmd, report)
	}

	printReport(cmd, report)
	if diff && report.RecentDiff != "" {
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprint(cmd.OutOrStdout(), report.RecentDiff)
	}
	return nil
}

func printReport(cmd *cobra.Command, report *internal.ConsolidationReport) {
	out := cmd.OutOrStdout()

	if report.AlreadyCleared {
		fmt.Fprintf(out, "Session %s already consolidated, nothing to do\n", report.SessionID)
		return
	}

	verb := "Consolidated"
	if report.DryRun {
		verb = "Would consolidate"
	}
	fmt.Fprintf(out, "%s session %s as %s\n", verb, report.SessionID, report.Anchor)
	fmt.Fprintf(out, "  section: %s\n", report.Section)
	fmt.Fprintf(out, "  shard:   %s\n", report.ShardPath)
	fmt.Fprintf(out, "  lines:   recent=%d shard=%d index=%d\n",
		report.RecentLines, report.ShardLines, report.IndexLines)
}

func outputReportJSON(cmd *cobra.Command, report *internal.ConsolidationReport) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"session_id":      report.SessionID,
		"anchor":          report.Anchor,
		"section":         report.Section,
		"shard_path":      report.ShardPath,
		"recent_lines":    report.RecentLines,
		"shard_lines":     report.ShardLines,
		"index_lines":     report.IndexLines,
		"dry_run":         report.DryRun,
		"already_cleared": report.AlreadyCleared,
	})
}
