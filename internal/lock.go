package internal

import (
	"context"
	"fmt"
	"os"
	"time"
)

// LockManager serializes mutating operations on one memory root through
// advisory lock files. A lock older than its staleness window is assumed to
// belong to a crashed writer and is reclaimed without consuming a retry.
type LockManager struct {
	clock func() time.Time
}

func NewLockManager() *LockManager {
	return &LockManager{clock: time.Now}
}

type LockOptions struct {
	Retries    int
	RetryDelay time.Duration
	Staleness  time.Duration
}

func DefaultLockOptions() LockOptions {
	return LockOptions{
		Retries:    10,
		RetryDelay: 200 * time.Millisecond,
		Staleness:  60 * time.Second,
	}
}

// WithLock runs fn while holding the lock file at path. The lock is always
// removed afterward, even when fn fails. Exhausting retries returns a
// *LockBusyError, which callers may treat as retryable.
func (m *LockManager) WithLock(ctx context.Context, path string, opts LockOptions, fn func() error) error {
	if err := m.acquire(ctx, path, opts); err != nil {
		return err
	}
	defer os.Remove(path)

	return fn()
}

func (m *LockManager) acquire(ctx context.Context, path string, opts LockOptions) error {
	attempts := 0
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d %s\n", os.Getpid(), m.clock().UTC().Format(time.RFC3339))
			f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create lock %s: %w", path, err)
		}

		if m.isStale(path, opts.Staleness) {
			// Crashed holder: reclaim immediately, no retry consumed.
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return fmt.Errorf("reclaim stale lock %s: %w", path, rmErr)
			}
			continue
		}

		attempts++
		if attempts > opts.Retries {
			return &LockBusyError{Path: path, Attempts: attempts}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.RetryDelay):
		}
	}
}

func (m *LockManager) isStale(path string, staleness time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		// Holder released between the failed create and this stat.
		return os.IsNotExist(err)
	}
	return m.clock().Sub(info.ModTime()) > staleness
}
