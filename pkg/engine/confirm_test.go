package engine

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewPolicyRejectsYesAndNo(t *testing.T) {
	_, err := NewPolicy(true, true, strings.NewReader(""), &bytes.Buffer{}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for --yes with --no")
	}
	if !IsConfig(err) {
		t.Errorf("error class = %v, want config", err)
	}
}

func TestPolicyAutoYes(t *testing.T) {
	var out bytes.Buffer
	p, err := NewPolicy(true, false, strings.NewReader(""), &out, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if !p.Resolve("Create package \"htop\"") {
		t.Error("auto-yes policy declined")
	}
	// Prompt and answer must still be echoed for the audit trail.
	if !strings.Contains(out.String(), "Create package") || !strings.Contains(out.String(), "auto-approved") {
		t.Errorf("prompt not echoed: %q", out.String())
	}
}

func TestPolicyAutoNo(t *testing.T) {
	var out bytes.Buffer
	p, err := NewPolicy(false, true, strings.NewReader(""), &out, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if p.Resolve("Delete container \"web\"") {
		t.Error("auto-no policy approved")
	}
	if !strings.Contains(out.String(), "auto-declined") {
		t.Errorf("answer not echoed: %q", out.String())
	}
}

func TestPolicyInteractiveAnswers(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"yes\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"no\n", false},
		{"  yes  \n", true},
	}
	for _, tc := range cases {
		var out bytes.Buffer
		p, err := NewPolicy(false, false, strings.NewReader(tc.input), &out, zerolog.Nop())
		if err != nil {
			t.Fatal(err)
		}
		if got := p.Resolve("Proceed"); got != tc.want {
			t.Errorf("Resolve(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestPolicyInteractiveReprompts(t *testing.T) {
	var out bytes.Buffer
	p, err := NewPolicy(false, false, strings.NewReader("maybe\nok\ny\n"), &out, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if !p.Resolve("Proceed") {
		t.Error("expected eventual approval")
	}
	if got := strings.Count(out.String(), "Proceed [y/n]:"); got != 3 {
		t.Errorf("prompt printed %d times, want 3", got)
	}
}

func TestPolicyClosedStdinDeclines(t *testing.T) {
	var out bytes.Buffer
	p, err := NewPolicy(false, false, strings.NewReader(""), &out, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if p.Resolve("Proceed") {
		t.Error("closed stdin should decline")
	}
}

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")
	err := NewApplyError("failed to create resource", base).
		WithDomain("containers").WithResource("web")

	if !IsApply(err) {
		t.Error("IsApply() = false")
	}
	if IsConfig(err) {
		t.Error("IsConfig() = true for apply error")
	}
	if !errors.Is(err, base) {
		t.Error("cause not reachable through Unwrap")
	}

	msg := err.Error()
	for _, want := range []string{"apply", "containers", "web", "boom"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}
}

func TestErrorIsMatchesByClass(t *testing.T) {
	err := NewSnapshotError("podman unavailable", nil).WithDomain("containers")
	if !errors.Is(err, &Error{Class: ErrorClassSnapshot}) {
		t.Error("errors.Is should match by class")
	}
	if errors.Is(err, &Error{Class: ErrorClassApply}) {
		t.Error("errors.Is matched a different class")
	}
}
