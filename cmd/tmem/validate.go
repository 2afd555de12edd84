package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tiermem/tiermem/internal"
)

func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check tier files for integrity",
		Long:  `Validate frontmatter schemas, anchor links, and the active-session pointer. Exits non-zero when issues are found.`,
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}

	report, err := internal.NewValidator(e.scope).Validate()
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report.Issues); err != nil {
			return err
		}
		return report.Err()
	}

	if report.OK() {
		fmt.Fprintln(cmd.OutOrStdout(), "OK")
		return nil
	}

	for _, issue := range report.Issues {
		fmt.Fprintln(cmd.OutOrStdout(), issue.String())
	}
	return report.Err()
}
