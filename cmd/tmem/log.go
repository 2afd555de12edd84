package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tiermem/tiermem/internal"
)

func NewLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show consolidation history",
		Long:  `Show the git history mirror when enabled, otherwise the tail of the audit log.`,
		RunE:  runLog,
	}

	cmd.Flags().IntP("lines", "n", 20, "Number of entries to show")
	return cmd
}

func runLog(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("lines")
	out := cmd.OutOrStdout()

	if e.cfg.MirrorHistory {
		mirror, err := internal.OpenMirror(e.scope)
		if err != nil {
			return err
		}
		commits, err := mirror.Log(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("read mirror history: %w", err)
		}
		for _, c := range commits {
			fmt.Fprintf(out, "%s %s %s\n", c.Hash[:7], c.Timestamp.Format("2006-01-02 15:04"), c.Message)
		}
		return nil
	}

	data, err := os.ReadFile(e.scope.LogPath())
	if os.IsNotExist(err) {
		fmt.Fprintln(out, "No consolidation history yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	return nil
}
