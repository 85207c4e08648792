// Package cmdexec runs the external commands the reconciliation engine
// delegates to (dnf, apt, flatpak, systemctl, podman, nmcli, useradd and
// friends). Child output is streamed live so a failing command is
// diagnosable from the run output without re-running in a debug mode.
package cmdexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Runner executes blocking subprocess calls. There are deliberately no
// timeouts: a hung external command blocks the run until the operator
// interrupts it, which cancels ctx.
type Runner struct {
	logger zerolog.Logger

	// stdout/stderr receive the child's streamed output. They default to
	// the process's own stdout/stderr.
	stdout io.Writer
	stderr io.Writer
}

// NewRunner creates a runner that streams child output to this process's
// stdout and stderr.
func NewRunner(logger zerolog.Logger) *Runner {
	return &Runner{
		logger: logger.With().Str("component", "cmdexec").Logger(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// NewRunnerWithOutput creates a runner streaming to the given writers.
// Used by tests to capture output.
func NewRunnerWithOutput(logger zerolog.Logger, stdout, stderr io.Writer) *Runner {
	return &Runner{logger: logger, stdout: stdout, stderr: stderr}
}

// ExitError reports a command that ran but exited non-zero. The tail of
// stderr is carried in the error chain for diagnosis.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
}

// Run executes a command, streaming its output live. Stderr is additionally
// captured so failures carry context.
func (r *Runner) Run(ctx context.Context, name string, args ...string) error {
	r.logger.Debug().Str("cmd", name).Strs("args", args).Msg("Running command")

	var stderrBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.stdout
	cmd.Stderr = io.MultiWriter(r.stderr, &stderrBuf)
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{
				Command:  name,
				ExitCode: exitErr.ExitCode(),
				Stderr:   lastLines(stderrBuf.String(), 5),
			}
		}
		return fmt.Errorf("failed to execute %s: %w", name, err)
	}
	return nil
}

// Sudo executes a command through sudo. Callers are expected to have
// passwordless sudo or an active sudo timestamp; the prompt, if any, goes
// straight to the terminal because stdin is inherited.
func (r *Runner) Sudo(ctx context.Context, name string, args ...string) error {
	return r.Run(ctx, "sudo", append([]string{name}, args...)...)
}

// Shell executes a command line through /bin/sh -c, streaming output.
func (r *Runner) Shell(ctx context.Context, command string) error {
	return r.Run(ctx, "/bin/sh", "-c", command)
}

// Output executes a command and returns its trimmed stdout. Unlike Run,
// stdout is captured rather than streamed; stderr still streams.
func (r *Runner) Output(ctx context.Context, name string, args ...string) (string, error) {
	r.logger.Debug().Str("cmd", name).Strs("args", args).Msg("Querying command")

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = io.MultiWriter(r.stderr, &stderrBuf)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExitError{
				Command:  name,
				ExitCode: exitErr.ExitCode(),
				Stderr:   lastLines(stderrBuf.String(), 5),
			}
		}
		return "", fmt.Errorf("failed to execute %s: %w", name, err)
	}
	return strings.TrimSpace(stdoutBuf.String()), nil
}

// LookPath reports whether an executable is available on PATH.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func lastLines(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
