package internal

import (
	"fmt"
	"io"
	"os"
)

// CommitTarget is one file in an all-or-nothing multi-file write. RotateTo,
// when set, moves the current file aside first (log overflow rotation) so the
// new content starts a fresh file.
type CommitTarget struct {
	Path     string
	Content  string
	RotateTo string
}

// AtomicCommitter lands a set of targets so that readers observe either the
// pre- or the post-commit state, never a torn one. The plan is staged-write:
// temp files first, then rotations, then backups, then renames, with a
// compensating action recorded as each step succeeds and run in reverse on
// failure. Durability across an OS crash between temp-write and rename is not
// guaranteed.
type AtomicCommitter struct{}

func NewAtomicCommitter() *AtomicCommitter {
	return &AtomicCommitter{}
}

func (c *AtomicCommitter) CommitAll(targets []CommitTarget) error {
	var undo []func()
	fail := func(err error) error {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return fmt.Errorf("commit rolled back: %w", err)
	}

	// Stage every new content next to its destination.
	tmps := make([]string, len(targets))
	for i, t := range targets {
		tmp := t.Path + ".tmp"
		if err := os.WriteFile(tmp, []byte(t.Content), 0644); err != nil {
			return fail(fmt.Errorf("stage %s: %w", t.Path, err))
		}
		tmps[i] = tmp
		undo = append(undo, func() { os.Remove(tmp) })
	}

	// Rotations before backups: the rotated file keeps its full history.
	for _, t := range targets {
		if t.RotateTo == "" || !fileExists(t.Path) {
			continue
		}
		path, rotateTo := t.Path, t.RotateTo
		if err := os.Rename(path, rotateTo); err != nil {
			return fail(fmt.Errorf("rotate %s: %w", path, err))
		}
		undo = append(undo, func() {
			if !fileExists(path) {
				os.Rename(rotateTo, path)
			}
		})
	}

	// Back up pre-existing content, rotating any prior .bak aside. Targets
	// with nothing on disk get no backup; their pre-commit state is absence.
	existed := make([]bool, len(targets))
	for i, t := range targets {
		if !fileExists(t.Path) {
			continue
		}
		existed[i] = true
		bak := t.Path + ".bak"
		if fileExists(bak) {
			if err := os.Rename(bak, bak+".old"); err != nil {
				return fail(fmt.Errorf("rotate backup %s: %w", bak, err))
			}
		}
		if err := copyFile(t.Path, bak); err != nil {
			return fail(fmt.Errorf("back up %s: %w", t.Path, err))
		}
		path := t.Path
		undo = append(undo, func() { copyFile(bak, path) })
	}

	// Land everything. A landed rename onto a fresh path is undone by
	// removing it again; backed-up targets are restored from .bak instead.
	for i, t := range targets {
		if err := os.Rename(tmps[i], t.Path); err != nil {
			return fail(fmt.Errorf("rename %s: %w", t.Path, err))
		}
		if !existed[i] {
			path := t.Path
			undo = append(undo, func() { os.Remove(path) })
		}
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
