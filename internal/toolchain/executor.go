// Package toolchain materializes extracted files into a scratch workspace and
// runs the formatter, type checker and linter against it.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ashureev/codebot/internal/domain"
)

// ErrTimeout is returned when a tool exceeds its time budget.
var ErrTimeout = errors.New("tool timed out")

// Command is a single tool invocation.
type Command struct {
	Tool domain.Source
	Name string
	Args []string
	Dir  string
	Env  []string
}

// String renders the command line for logs and notifications.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is what a tool reported. A non-zero ExitCode is not an error.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Executor runs tool commands. Run returns an error only when the tool could
// not be executed at all (missing binary, permission denied, timeout, daemon
// unavailable). Result carries whatever output was captured either way.
type Executor interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// LocalExecutor runs tools as host processes.
type LocalExecutor struct {
	Timeout time.Duration
}

// NewLocalExecutor creates an executor with a per-invocation timeout.
func NewLocalExecutor(timeout time.Duration) *LocalExecutor {
	return &LocalExecutor{Timeout: timeout}
}

// Run executes cmd in cmd.Dir.
func (e *LocalExecutor) Run(ctx context.Context, c Command) (Result, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.ExitCode = -1
		return res, fmt.Errorf("%w: %s after %s", ErrTimeout, c.Name, e.Timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	res.ExitCode = -1
	return res, fmt.Errorf("run %s: %w", c.Name, err)
}
