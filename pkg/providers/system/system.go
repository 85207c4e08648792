// Package system holds the one-shot steps that bracket a reconciliation
// run: the hostname check before the domain loop and the custom command list
// after it.
package system

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/deskforge/deskforge/pkg/engine"
)

// Runner is the subprocess surface the one-shot steps need.
type Runner interface {
	Sudo(ctx context.Context, name string, args ...string) error
	Shell(ctx context.Context, command string) error
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// Confirmer resolves a yes/no prompt, normally an engine confirmation
// policy.
type Confirmer interface {
	Resolve(prompt string) bool
}

// Steps runs the pre and post reconciliation one-shots.
type Steps struct {
	exec   Runner
	logger zerolog.Logger
}

// NewSteps builds the one-shot step runner.
func NewSteps(exec Runner, logger zerolog.Logger) *Steps {
	return &Steps{exec: exec, logger: logger.With().Str("component", "system").Logger()}
}

// EnsureHostname compares the static hostname against the declared one and
// sets it on mismatch, gated by the confirmation policy. An empty declared
// hostname leaves the machine alone.
func (s *Steps) EnsureHostname(ctx context.Context, want string, confirm Confirmer) error {
	if want == "" {
		return nil
	}
	current, err := s.exec.Output(ctx, "hostnamectl", "--static")
	if err != nil {
		return engine.NewApplyError("failed to read current hostname", err)
	}
	if current == want {
		s.logger.Debug().Str("hostname", want).Msg("Hostname already set")
		return nil
	}
	if !confirm.Resolve(fmt.Sprintf("Set hostname to %q (currently %q)", want, current)) {
		s.logger.Info().Str("hostname", want).Msg("Hostname change declined")
		return nil
	}
	if err := s.exec.Sudo(ctx, "hostnamectl", "set-hostname", want); err != nil {
		return engine.NewApplyError("failed to set hostname", err)
	}
	s.logger.Info().Str("from", current).Str("to", want).Msg("Hostname updated")
	return nil
}

// RunCommands executes the custom command list in order through the shell,
// aborting on the first failure. Output streams live.
func (s *Steps) RunCommands(ctx context.Context, commands []string) error {
	for i, command := range commands {
		s.logger.Info().Int("index", i).Str("command", command).Msg("Running custom command")
		if err := s.exec.Shell(ctx, command); err != nil {
			return engine.NewApplyError(fmt.Sprintf("custom command %d failed: %s", i+1, command), err)
		}
	}
	return nil
}
