// Package workspace owns the local download root: where it lives, who may write
// to it and which paths in it are managed by the user instead of the manifest.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/modsync/internal/utils"
)

const (
	LockFile   = ".modsync.lock"
	IgnoreFile = ".modsyncignore"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
)

type Workspace struct {
	Root string

	flock *flock.Flock
}

func New(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	return &Workspace{
		Root:  root,
		flock: flock.New(filepath.Join(root, LockFile)),
	}, nil
}

// Lock creates the root and takes an exclusive lock on it, so two updaters
// never write the same tree at once.
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.Root); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.Root, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrWorkspaceLocked, w.flock.Path())
	}

	return nil
}

func (w *Workspace) Unlock() error {
	// if this process hasn't locked the workspace, then don't delete the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	if err := os.Remove(w.flock.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// LocalPath maps a normalized manifest path to its location under Root.
func (w *Workspace) LocalPath(relPath string) string {
	return filepath.Join(w.Root, filepath.FromSlash(relPath))
}

// IsInternal reports whether relPath is one of the files modsync keeps in the root.
func IsInternal(relPath string) bool {
	return relPath == LockFile || relPath == IgnoreFile
}
