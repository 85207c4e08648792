package engine

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// PolicyMode selects how the engine resolves confirmation prompts.
type PolicyMode string

const (
	// PolicyInteractive asks the operator on stdin for every mutation.
	PolicyInteractive PolicyMode = "interactive"

	// PolicyAutoYes approves every prompt without asking (--yes).
	PolicyAutoYes PolicyMode = "auto-yes"

	// PolicyAutoNo declines every prompt without asking (--no).
	PolicyAutoNo PolicyMode = "auto-no"
)

// Policy resolves confirmation prompts for mutating actions. Every
// resolution, interactive or automatic, is echoed to out and to the
// structured log so non-interactive runs leave the same audit trail an
// operator session would.
type Policy struct {
	mode   PolicyMode
	in     *bufio.Reader
	out    io.Writer
	logger zerolog.Logger
}

// NewPolicy builds the confirmation policy from the CLI flags. --yes and
// --no are mutually exclusive; passing both is a configuration error caught
// before any reconciliation starts.
func NewPolicy(autoYes, autoNo bool, in io.Reader, out io.Writer, logger zerolog.Logger) (*Policy, error) {
	if autoYes && autoNo {
		return nil, NewConfigError("--yes and --no are mutually exclusive", nil)
	}
	mode := PolicyInteractive
	switch {
	case autoYes:
		mode = PolicyAutoYes
	case autoNo:
		mode = PolicyAutoNo
	}
	return &Policy{
		mode:   mode,
		in:     bufio.NewReader(in),
		out:    out,
		logger: logger.With().Str("component", "confirm").Logger(),
	}, nil
}

// Mode returns the resolved policy mode.
func (p *Policy) Mode() PolicyMode {
	return p.mode
}

// Resolve answers one confirmation prompt. In interactive mode it loops
// until the operator types y/yes or n/no (case-insensitive). In automatic
// modes the prompt and the forced answer are still printed.
func (p *Policy) Resolve(prompt string) bool {
	switch p.mode {
	case PolicyAutoYes:
		fmt.Fprintf(p.out, "%s [y/n]: y (auto-approved)\n", prompt)
		p.logger.Info().Str("prompt", prompt).Str("answer", "yes").Str("mode", string(p.mode)).
			Msg("Prompt auto-approved")
		return true
	case PolicyAutoNo:
		fmt.Fprintf(p.out, "%s [y/n]: n (auto-declined)\n", prompt)
		p.logger.Info().Str("prompt", prompt).Str("answer", "no").Str("mode", string(p.mode)).
			Msg("Prompt auto-declined")
		return false
	}

	for {
		fmt.Fprintf(p.out, "%s [y/n]: ", prompt)
		line, err := p.in.ReadString('\n')
		if err != nil && line == "" {
			// Stdin closed: treat as a decline rather than looping forever.
			fmt.Fprintln(p.out, "n (input closed)")
			p.logger.Warn().Str("prompt", prompt).Msg("Input closed, declining prompt")
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			p.logger.Info().Str("prompt", prompt).Str("answer", "yes").Msg("Prompt approved")
			return true
		case "n", "no":
			p.logger.Info().Str("prompt", prompt).Str("answer", "no").Msg("Prompt declined")
			return false
		default:
			fmt.Fprintln(p.out, "Please answer y or n.")
		}
	}
}
