package git

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available on PATH")
	}
}

func TestRunReturnsStdout(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	runner := NewCLI(nil)
	if _, err := runner.Run(context.Background(), dir, "init", "-q"); err != nil {
		t.Fatalf("git init: %v", err)
	}
	out, err := runner.Run(context.Background(), dir, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		t.Fatalf("rev-parse: %v", err)
	}
	if strings.TrimSpace(out) != "true" {
		t.Fatalf("rev-parse output = %q, want true", out)
	}
}

func TestRunWrapsFailureInError(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	_, err := NewCLI(nil).Run(context.Background(), dir, "rev-parse", "HEAD")
	if err == nil {
		t.Fatalf("expected rev-parse outside a repository to fail")
	}
	var gitErr *Error
	if !errors.As(err, &gitErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if gitErr.Stderr == "" {
		t.Fatalf("expected captured stderr")
	}
	if !strings.HasPrefix(err.Error(), "git rev-parse HEAD failed:") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestErrorFallsBackToCause(t *testing.T) {
	cause := errors.New("exit status 128")
	err := &Error{Args: []string{"push"}, Err: cause}
	if got := err.Error(); got != "git push failed: exit status 128" {
		t.Fatalf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to reach the cause")
	}
}
