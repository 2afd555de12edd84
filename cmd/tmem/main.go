package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/tiermem/tiermem/internal"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	ctx := context.Background()

	rootCmd := NewRootCmd(version)
	if err := fang.Execute(ctx, rootCmd); err != nil {
		os.Exit(1)
	}
}

// env bundles everything a command needs against one memory root. It is
// rebuilt per invocation: no state survives between calls.
type env struct {
	scope   internal.Scope
	cfg     *internal.Config
	locks   *internal.LockManager
	engine  *internal.ConsolidationEngine
	capture *internal.SessionCapture
	scanner *internal.RecoveryScanner
}

func openEnv(cmd *cobra.Command) (*env, error) {
	scopeHint, _ := cmd.Flags().GetString("scope")
	verbose, _ := cmd.Flags().GetBool("verbose")

	resolver := internal.NewScopeResolver()
	scope := resolver.Resolve(scopeHint)
	if !scope.Initialized() {
		return nil, internal.ErrNotInitialized
	}

	cfg, err := internal.LoadConfig(scope)
	if err != nil {
		return nil, err
	}

	summarizer, err := buildSummarizer(cfg)
	if err != nil {
		return nil, err
	}

	logger := internal.NewLogger(cmd.ErrOrStderr(), verbose)
	locks := internal.NewLockManager()
	engine := internal.NewConsolidationEngine(scope, cfg, locks, summarizer, logger)

	if cfg.MirrorHistory {
		mirror, err := internal.OpenMirror(scope)
		if err != nil {
			logger.Warn("history mirror unavailable", "error", err)
		} else {
			engine.SetMirror(mirror)
		}
	}

	return &env{
		scope:   scope,
		cfg:     cfg,
		locks:   locks,
		engine:  engine,
		capture: internal.NewSessionCapture(scope, cfg, locks, engine),
		scanner: internal.NewRecoveryScanner(scope, cfg, engine),
	}, nil
}

func buildSummarizer(cfg *internal.Config) (internal.Summarizer, error) {
	if cfg.Provider.Name == "" {
		return internal.MechanicalSummarizer{}, nil
	}

	client, err := internal.NewProviderClient(cfg.Provider)
	if err != nil {
		return nil, err
	}
	return internal.NewLLMSummarizer(client), nil
}
