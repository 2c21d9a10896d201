package workspace

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/marker/internal/git"
)

type recordingRunner struct {
	calls [][]string
	err   error
}

func (r *recordingRunner) Run(_ context.Context, dir string, args ...string) (string, error) {
	r.calls = append(r.calls, append([]string{dir}, args...))
	return "", r.err
}

func TestAcquireCreatesEmptyDirUnderRoot(t *testing.T) {
	root := t.TempDir()
	mgr := NewManager(root, &recordingRunner{}, nil)
	ws, err := mgr.Acquire("Jane Doe")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer ws.Release()
	if filepath.Dir(ws.Path) != root {
		t.Fatalf("workspace %s not under root %s", ws.Path, root)
	}
	if !strings.HasPrefix(filepath.Base(ws.Path), "marker-jane-doe-") {
		t.Fatalf("unexpected workspace name %s", filepath.Base(ws.Path))
	}
	entries, err := os.ReadDir(ws.Path)
	if err != nil {
		t.Fatalf("read workspace: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty workspace, got %d entries", len(entries))
	}
}

func TestAcquireIsUniquePerCall(t *testing.T) {
	mgr := NewManager(t.TempDir(), &recordingRunner{}, nil)
	a, err := mgr.Acquire("same")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer a.Release()
	b, err := mgr.Acquire("same")
	if err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	defer b.Release()
	if a.Path == b.Path {
		t.Fatalf("expected distinct workspaces, both %s", a.Path)
	}
}

func TestReleaseRemovesContentsAndIsIdempotent(t *testing.T) {
	mgr := NewManager(t.TempDir(), &recordingRunner{}, nil)
	ws, err := mgr.Acquire("x")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	nested := filepath.Join(ws.Path, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "f.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ws.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(ws.Path); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, stat err = %v", err)
	}
	if err := ws.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
}

func TestCloneAndResetIssueGitCommands(t *testing.T) {
	runner := &recordingRunner{}
	mgr := NewManager(t.TempDir(), runner, nil)
	ws, err := mgr.Acquire("x")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer ws.Release()
	if err := ws.Clone(context.Background(), "https://example.com/r.git"); err != nil {
		t.Fatalf("clone: %v", err)
	}
	if err := ws.ResetTo(context.Background(), "abc123"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	want := [][]string{
		{ws.Path, "clone", "--quiet", "https://example.com/r.git", "."},
		{ws.Path, "reset", "--hard", "--quiet", "abc123"},
	}
	if len(runner.calls) != len(want) {
		t.Fatalf("calls = %v", runner.calls)
	}
	for i := range want {
		if strings.Join(runner.calls[i], " ") != strings.Join(want[i], " ") {
			t.Fatalf("call %d = %v, want %v", i, runner.calls[i], want[i])
		}
	}
}

func TestCloneFailureSurfacesGitError(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available on PATH")
	}
	mgr := NewManager(t.TempDir(), git.NewCLI(nil), nil)
	ws, err := mgr.Acquire("missing")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer ws.Release()
	err = ws.Clone(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	var gitErr *git.Error
	if !errors.As(err, &gitErr) {
		t.Fatalf("expected *git.Error, got %v", err)
	}
}
