package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewAppendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "append <kind> <text>...",
		Short: "Append an entry to the active session",
		Long:  `Append a transcript entry (user, agent, or tool) to the active session, starting one if needed. Rolls the session over when it exceeds its size or age budget.`,
		Args:  cobra.MinimumNArgs(2),
		RunE:  runAppend,
	}
}

func runAppend(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}

	kind := args[0]
	text := strings.Join(args[1:], " ")

	result, err := e.capture.Append(cmd.Context(), kind, text)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}

	if result.RolledOver {
		fmt.Fprintf(cmd.OutOrStdout(), "Session rolled over (consolidated as %s)\n", result.Rollover.Anchor)
	}
	return nil
}
