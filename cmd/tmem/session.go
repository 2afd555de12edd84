package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tiermem/tiermem/internal"
)

func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the active session transcript",
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	cmd.AddCommand(newSessionStartCmd(), newSessionEndCmd())
	return cmd
}

func newSessionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a new session",
		Long:  `Start a new session transcript and make it the active one.`,
		RunE:  runSessionStart,
	}
}

func runSessionStart(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}

	doc, err := e.capture.Start(cmd.Context())
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		return outputSessionJSON(cmd, doc)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Started session %s\n", doc.SessionID)
	return nil
}

func newSessionEndCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "end",
		Short: "End the active session",
		Long:  `Stamp the end timestamp on the active session, optionally consolidating it.`,
		RunE:  runSessionEnd,
	}

	cmd.Flags().Bool("consolidate", false, "Consolidate the session after ending it")
	return cmd
}

func runSessionEnd(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}

	doc, err := e.capture.End(cmd.Context())
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	consolidate, _ := cmd.Flags().GetBool("consolidate")
	asJSON, _ := cmd.Flags().GetBool("json")

	if consolidate {
		report, err := e.engine.Consolidate(cmd.Context(), internal.ConsolidateOptions{NowPath: doc.Path})
		if err != nil {
			return fmt.Errorf("consolidate session: %w", err)
		}
		if asJSON {
			return outputReportJSON(cmd, report)
		}
		printReport(cmd, report)
		return nil
	}

	if asJSON {
		return outputSessionJSON(cmd, doc)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ended session %s (%d min)\n", doc.SessionID, doc.DurationMinutes)
	return nil
}

func outputSessionJSON(cmd *cobra.Command, doc *internal.NowDocument) error {
	data := map[string]any{
		"session_id":      doc.SessionID,
		"path":            doc.Path,
		"timestamp_start": doc.TimestampStart,
	}
	if doc.TimestampEnd != nil {
		data["timestamp_end"] = *doc.TimestampEnd
		data["duration_minutes"] = doc.DurationMinutes
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
