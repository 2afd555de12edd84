package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

const (
	mirrorAuthor = "tmem"
	mirrorEmail  = "tmem@local"
)

// HistoryMirror keeps an embedded git repository inside the memory root so
// every consolidation leaves an inspectable snapshot trail.
type HistoryMirror struct {
	repo     *git.Repository
	worktree *git.Worktree
}

type HistoryCommit struct {
	Hash      string
	Message   string
	Timestamp time.Time
}

// InitMirror creates the mirror repository in the memory root.
func InitMirror(scope Scope) error {
	if _, err := git.PlainInit(scope.MemPath, false); err != nil {
		return fmt.Errorf("init history mirror: %w", err)
	}
	return nil
}

func OpenMirror(scope Scope) (*HistoryMirror, error) {
	repo, err := git.PlainOpen(scope.MemPath)
	if err != nil {
		return nil, fmt.Errorf("open history mirror: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}

	return &HistoryMirror{repo: repo, worktree: worktree}, nil
}

// Commit stages everything and records a snapshot. A clean worktree is not an
// error; it returns nil commit.
func (m *HistoryMirror) Commit(ctx context.Context, message string) (*HistoryCommit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := m.worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, fmt.Errorf("stage mirror: %w", err)
	}

	status, err := m.worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("mirror status: %w", err)
	}
	if status.IsClean() {
		return nil, nil
	}

	hash, err := m.worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  mirrorAuthor,
			Email: mirrorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mirror commit: %w", err)
	}

	return &HistoryCommit{Hash: hash.String(), Message: message, Timestamp: time.Now()}, nil
}

func (m *HistoryMirror) Log(ctx context.Context, limit int) ([]*HistoryCommit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	iter, err := m.repo.Log(&git.LogOptions{})
	if err != nil {
		return nil, fmt.Errorf("mirror log: %w", err)
	}
	defer iter.Close()

	var commits []*HistoryCommit
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(commits) >= limit {
			return storer.ErrStop
		}
		commits = append(commits, &HistoryCommit{
			Hash:      c.Hash.String(),
			Message:   c.Message,
			Timestamp: c.Author.When,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return commits, nil
}
