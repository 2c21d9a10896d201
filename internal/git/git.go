// Package git runs the git command line tool on behalf of the grading
// pipeline. Every failure is reported as *Error so callers can tell git
// trouble apart from grading trouble.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kingrea/marker/internal/logbook"
)

// Error describes a failed git invocation with the diagnostics git printed.
type Error struct {
	Args   []string
	Dir    string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("git %s failed: %s", strings.Join(e.Args, " "), msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Runner executes git subcommands inside a directory and returns stdout.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// CLI is the Runner backed by the git binary on PATH.
type CLI struct {
	// Binary defaults to "git".
	Binary string
	// Env is appended to the inherited environment.
	Env    []string
	Logger logbook.Logger
}

// NewCLI returns a Runner that logs every command at debug level.
func NewCLI(logger logbook.Logger) *CLI {
	return &CLI{Logger: logbook.OrDiscard(logger)}
}

// Run executes `git args...` in dir. Git operations are not time-bounded
// beyond ctx.
func (c *CLI) Run(ctx context.Context, dir string, args ...string) (string, error) {
	binary := c.Binary
	if binary == "" {
		binary = "git"
	}
	logger := logbook.OrDiscard(c.Logger)
	logger.Debugf("Running 'git %s' in %s", strings.Join(args, " "), dir)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Never block on a credential prompt while running unattended.
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, c.Env...)
	if err := cmd.Run(); err != nil {
		gitErr := &Error{Args: args, Dir: dir, Stderr: stderr.String(), Err: err}
		logger.Errorf("Failed to run 'git %s': %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
		return stdout.String(), gitErr
	}
	if out := strings.TrimSpace(stdout.String()); out != "" {
		logger.Debugf("%s", out)
	}
	return stdout.String(), nil
}
