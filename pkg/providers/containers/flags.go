package containers

import (
	"fmt"
	"strings"
)

// FlagSet is the typed view of a container's free-form flag string. The
// original tokens are kept for podman create; the typed fields feed the
// autostart unit translation.
type FlagSet struct {
	Publish      []string
	Volumes      []string
	Env          []string
	Devices      []string
	SecurityOpts []string
	CapAdd       []string
	ShmSize      string

	// Unknown holds flags outside the translation table. They still reach
	// podman create untouched; only the generated unit drops them.
	Unknown []string

	tokens []string
}

// Tokens returns the original flag tokens in order, for podman create.
func (f *FlagSet) Tokens() []string {
	return f.tokens
}

// valueFlags maps recognized flags to the FlagSet field they fill.
var valueFlags = map[string]func(*FlagSet, string){
	"-p":             func(f *FlagSet, v string) { f.Publish = append(f.Publish, v) },
	"--publish":      func(f *FlagSet, v string) { f.Publish = append(f.Publish, v) },
	"-v":             func(f *FlagSet, v string) { f.Volumes = append(f.Volumes, v) },
	"--volume":       func(f *FlagSet, v string) { f.Volumes = append(f.Volumes, v) },
	"-e":             func(f *FlagSet, v string) { f.Env = append(f.Env, v) },
	"--env":          func(f *FlagSet, v string) { f.Env = append(f.Env, v) },
	"--device":       func(f *FlagSet, v string) { f.Devices = append(f.Devices, v) },
	"--security-opt": func(f *FlagSet, v string) { f.SecurityOpts = append(f.SecurityOpts, v) },
	"--cap-add":      func(f *FlagSet, v string) { f.CapAdd = append(f.CapAdd, v) },
	"--shm-size":     func(f *FlagSet, v string) { f.ShmSize = v },
}

// ParseFlags splits a raw flag string into a typed FlagSet. Splitting
// respects single and double quotes; flag=value and flag value forms are
// both accepted.
func ParseFlags(raw string) (*FlagSet, error) {
	tokens, err := splitTokens(raw)
	if err != nil {
		return nil, err
	}

	fs := &FlagSet{tokens: tokens}
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		name, value, hasValue := strings.Cut(tok, "=")

		assign, known := valueFlags[name]
		if !known {
			fs.Unknown = append(fs.Unknown, tok)
			// Swallow a detached value so it is not misread as a flag.
			if !hasValue && strings.HasPrefix(tok, "-") &&
				i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") {
				i++
			}
			continue
		}

		if !hasValue {
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("flag %s is missing its value", name)
			}
			i++
			value = tokens[i]
		}
		assign(fs, value)
	}
	return fs, nil
}

// splitTokens splits on whitespace outside quotes, stripping the quotes.
func splitTokens(raw string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		quote   rune
		pending bool
	)
	for _, r := range raw {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			pending = true
		case r == ' ' || r == '\t' || r == '\n':
			if pending || current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
				pending = false
			}
		default:
			current.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in flags %q", raw)
	}
	if pending || current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}
