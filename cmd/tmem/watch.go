package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch for stale sessions and auto-recover",
		Long:  `Watch the memory root for transcript activity and consolidate sessions that go stale.`,
		RunE:  runWatch,
	}

	cmd.Flags().Duration("debounce", 2*time.Second, "Debounce window for batching changes")
	cmd.Flags().Duration("interval", 10*time.Minute, "Periodic staleness sweep interval")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}

	debounce, _ := cmd.Flags().GetDuration("debounce")
	interval, _ := cmd.Flags().GetDuration("interval")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(e.scope.MemPath); err != nil {
		return fmt.Errorf("watch memory root: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for stale sessions...\n", e.scope.MemPath)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep := func() {
		results, err := e.scanner.Recover(cmd.Context(), true, 0)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "recovery sweep: %v\n", err)
			return
		}
		for _, r := range results {
			name := filepath.Base(r.Session.Path)
			if r.Err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "recover %s: %v\n", name, r.Err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recovered %s as %s\n", name, r.Report.Anchor)
		}
	}

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if shouldIgnoreEvent(event) {
				continue
			}
			if !pending {
				timer.Reset(debounce)
				pending = true
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
		case <-timer.C:
			pending = false
			sweep()
		case <-ticker.C:
			sweep()
		}
	}
}

// shouldIgnoreEvent drops everything but writes to transcript files. Lock
// files, temp files, and the mirror's own churn would otherwise cause loops.
func shouldIgnoreEvent(event fsnotify.Event) bool {
	base := filepath.Base(event.Name)
	if !strings.HasPrefix(base, "NOW-") || !strings.HasSuffix(base, ".md") {
		return true
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return true
	}

	return false
}
