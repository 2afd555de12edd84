package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tiermem/tiermem/internal"
)

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new memory root",
		Long:  `Initialize a .tmem directory with default configuration and empty tier files.`,
		RunE:  runInit,
	}

	cmd.Flags().Bool("global", false, "Initialize global scope (~/.tmem)")
	cmd.Flags().Bool("mirror", false, "Enable the git history mirror")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	isGlobal, _ := cmd.Flags().GetBool("global")
	mirror, _ := cmd.Flags().GetBool("mirror")

	resolver := internal.NewScopeResolver()

	var scope internal.Scope
	if isGlobal {
		scope = resolver.Global()
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		scope = internal.Scope{
			Type:    internal.ScopeProject,
			Path:    cwd,
			MemPath: filepath.Join(cwd, ".tmem"),
		}
	}

	if scope.Initialized() {
		return fmt.Errorf("already initialized at %s", scope.MemPath)
	}

	if err := os.MkdirAll(scope.MemPath, 0755); err != nil {
		return fmt.Errorf("create memory root: %w", err)
	}

	cfg := internal.DefaultConfig()
	cfg.MirrorHistory = mirror
	if err := internal.SaveConfig(scope, cfg); err != nil {
		return err
	}

	if mirror {
		if err := internal.InitMirror(scope); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized memory root at %s\n", scope.MemPath)
	return nil
}
