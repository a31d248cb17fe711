// Package executor runs shell commands with a hard timeout and bounded output.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/ports"
)

// TimeoutError reports that a command was killed after exceeding its limit.
type TimeoutError struct {
	Command string
	Limit   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %s", e.Limit)
}

// Timeout lets callers detect the error without importing this package.
func (e *TimeoutError) Timeout() bool {
	return true
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// LocalExecutor runs commands on the host shell.
type LocalExecutor struct {
	shell     string
	waitDelay time.Duration
	logger    ports.Logger
}

// Option customizes a LocalExecutor.
type Option func(*LocalExecutor)

// WithLogger attaches a logger.
func WithLogger(logger ports.Logger) Option {
	return func(e *LocalExecutor) {
		e.logger = logger
	}
}

// WithWaitDelay bounds how long pipes may stay open after the process group is killed.
func WithWaitDelay(d time.Duration) Option {
	return func(e *LocalExecutor) {
		e.waitDelay = d
	}
}

// NewLocalExecutor builds a new executor, shell defaults to /bin/sh.
func NewLocalExecutor(shell string, opts ...Option) *LocalExecutor {
	if shell == "" {
		shell = "/bin/sh"
	}
	e := &LocalExecutor{shell: shell, waitDelay: domain.DefaultKillGrace}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute implements ports.CommandExecutor.
//
// A non-zero exit is reported through ExecutionResult.ExitCode with a nil error.
// Errors are reserved for commands that could not start, a *TimeoutError when
// limits.Timeout elapsed, and ctx.Err() when the caller cancelled.
func (e *LocalExecutor) Execute(ctx context.Context, command string, limits domain.ExecutionLimits) (domain.ExecutionResult, error) {
	result := domain.ExecutionResult{Command: command}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	runCtx := ctx
	cancel := func() {}
	if limits.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, limits.Timeout)
	}
	defer cancel()

	stdout := newLimitedBuffer(limits.MaxOutputBytes)
	stderr := newLimitedBuffer(limits.MaxOutputBytes)

	cmd := exec.CommandContext(runCtx, e.shell, "-c", command)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	configureProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = e.waitDelay

	start := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Truncated = stdout.Truncated() || stderr.Truncated()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case ctx.Err() != nil:
		e.debug("command cancelled", command, result)
		return result, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		e.debug("command timed out", command, result)
		return result, &TimeoutError{Command: command, Limit: limits.Timeout}
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return result, fmt.Errorf("run command: %w", err)
	}
	e.debug("command finished", command, result)
	return result, nil
}

func (e *LocalExecutor) debug(msg, command string, result domain.ExecutionResult) {
	if e.logger == nil {
		return
	}
	e.logger.Debug(msg, map[string]interface{}{
		"command":   command,
		"exit_code": result.ExitCode,
		"duration":  result.Duration.String(),
		"truncated": result.Truncated,
	})
}

var _ ports.CommandExecutor = (*LocalExecutor)(nil)
