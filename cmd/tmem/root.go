package main

import (
	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tmem",
		Short:         "Tiered working memory for coding agents",
		Long:          `File-based working memory with an ephemeral session transcript, a bounded recency digest, and durable indexed knowledge.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)

	rootCmd.AddCommand(
		NewInitCmd(),
		NewSessionCmd(),
		NewAppendCmd(),
		NewConsolidateCmd(),
		NewRecoverCmd(),
		NewStatusCmd(),
		NewListCmd(),
		NewValidateCmd(),
		NewLogCmd(),
		NewWatchCmd(),
	)

	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("scope", "", "Target scope (global|project)")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
}
