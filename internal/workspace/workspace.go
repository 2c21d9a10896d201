package workspace

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gosimple/slug"

	"github.com/kingrea/marker/internal/git"
	"github.com/kingrea/marker/internal/logbook"
)

// Manager hands out one scratch directory per submission.
type Manager struct {
	// Root is the parent for workspaces; empty means os.TempDir().
	Root   string
	Git    git.Runner
	Logger logbook.Logger
}

// NewManager wires a workspace manager to a git runner.
func NewManager(root string, runner git.Runner, logger logbook.Logger) *Manager {
	return &Manager{Root: root, Git: runner, Logger: logbook.OrDiscard(logger)}
}

// Workspace is a directory exclusively owned by one submission's processing.
type Workspace struct {
	Path   string
	git    git.Runner
	logger logbook.Logger
}

// Acquire creates a fresh, empty directory for the submission identified by
// id. Callers must defer Release immediately.
func (m *Manager) Acquire(id string) (*Workspace, error) {
	if m.Root != "" {
		if err := os.MkdirAll(m.Root, 0o755); err != nil {
			return nil, fmt.Errorf("workspace: ensure root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(m.Root, prefixFor(id))
	if err != nil {
		return nil, fmt.Errorf("workspace: create: %w", err)
	}
	logger := logbook.OrDiscard(m.Logger)
	logger.Debugf("Created temporary directory, '%s'", dir)
	return &Workspace{Path: dir, git: m.Git, logger: logger}, nil
}

// Release removes the workspace recursively. It is safe to call more than once.
func (w *Workspace) Release() error {
	if w == nil || w.Path == "" {
		return nil
	}
	if err := os.RemoveAll(w.Path); err != nil {
		w.logger.Warnf("Failed to remove workspace '%s': %v", w.Path, err)
		return fmt.Errorf("workspace: remove %s: %w", w.Path, err)
	}
	w.logger.Debugf("Removed temporary directory, '%s'", w.Path)
	return nil
}

// Clone clones url into the workspace root. Failures come back as *git.Error.
func (w *Workspace) Clone(ctx context.Context, url string) error {
	_, err := w.git.Run(ctx, w.Path, "clone", "--quiet", url, ".")
	return err
}

// ResetTo hard-resets the checkout to commit.
func (w *Workspace) ResetTo(ctx context.Context, commit string) error {
	_, err := w.git.Run(ctx, w.Path, "reset", "--hard", "--quiet", commit)
	return err
}

// Dir returns the checkout directory.
func (w *Workspace) Dir() string {
	return w.Path
}

// Git exposes the runner so later pipeline steps operate on the same clone.
func (w *Workspace) Git() git.Runner {
	return w.git
}

func prefixFor(id string) string {
	s := slug.Make(strings.TrimSpace(id))
	if s == "" {
		s = "submission"
	}
	if len(s) > 40 {
		s = s[:40]
	}
	return "marker-" + s + "-"
}
