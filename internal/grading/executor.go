package grading

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kingrea/marker/internal/logbook"
)

// DefaultTimeout bounds a grading script when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// diagnosticLines is how much trailing output a ScriptError keeps.
const diagnosticLines = 20

// ExecutionResult captures one run of the grading script.
type ExecutionResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
	TimedOut bool
}

// Executor runs a grading script against a checked-out submission.
type Executor interface {
	Execute(ctx context.Context, script, dir string) (ExecutionResult, error)
}

// ScriptExecutor runs `<script> <dir>` as a child process in its own process
// group so a timeout can take down anything the script spawned.
type ScriptExecutor struct {
	Timeout time.Duration
	Logger  logbook.Logger
	Now     func() time.Time
}

// NewScriptExecutor returns an executor bounded by timeout (DefaultTimeout
// when zero or negative).
func NewScriptExecutor(timeout time.Duration, logger logbook.Logger) *ScriptExecutor {
	return &ScriptExecutor{Timeout: timeout, Logger: logbook.OrDiscard(logger)}
}

// Execute runs the script. The returned result is populated even when an error
// is returned: *TimeoutError on expiry, *ScriptError on non-zero exit.
func (e *ScriptExecutor) Execute(ctx context.Context, script, dir string) (ExecutionResult, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	now := e.Now
	if now == nil {
		now = time.Now
	}
	logger := logbook.OrDiscard(e.Logger)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, script, dir)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}
	// Grandchildren holding the pipes open must not stall Wait forever.
	cmd.WaitDelay = 2 * time.Second

	logger.Debugf("Running '%s %s' (timeout %s)", script, dir, timeout)
	start := now()
	runErr := cmd.Run()
	result := ExecutionResult{
		ExitCode: exitCode(cmd, runErr),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Elapsed:  now().Sub(start),
	}

	if runErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		logger.Errorf("Script '%s' timed out after %s", script, timeout)
		return result, &TimeoutError{Script: script, Timeout: timeout}
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// The script never started: missing file, not executable, bad shebang.
			return result, &ScriptError{Script: script, ExitCode: -1, NotStarted: true, Tail: runErr.Error(), Err: runErr}
		}
		tail := trailingLines(result.Stderr, diagnosticLines)
		if tail == "" {
			tail = trailingLines(result.Stdout, diagnosticLines)
		}
		logger.Errorf("Failed to run '%s %s' (code %d): %s", script, dir, result.ExitCode, tail)
		return result, &ScriptError{Script: script, ExitCode: result.ExitCode, Tail: tail, Err: runErr}
	}
	logger.Debugf("Script '%s' finished in %s", script, result.Elapsed.Round(time.Millisecond))
	return result, nil
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func trailingLines(text string, n int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// TimeoutError reports a script that exceeded its wall-clock budget.
type TimeoutError struct {
	Script  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("grading: %s timed out after %s", e.Script, e.Timeout)
}

// ScriptError reports a script that failed to run or exited non-zero.
type ScriptError struct {
	Script   string
	ExitCode int
	// NotStarted is set when the process could not be launched at all.
	NotStarted bool
	// Tail holds the trailing diagnostic output.
	Tail string
	Err  error
}

func (e *ScriptError) Error() string {
	if e.NotStarted {
		return fmt.Sprintf("grading: could not run %s: %s", e.Script, e.Tail)
	}
	return fmt.Sprintf("grading: %s exited with code %d", e.Script, e.ExitCode)
}

func (e *ScriptError) Unwrap() error { return e.Err }
