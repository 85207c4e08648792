package system

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/deskforge/deskforge/pkg/engine"
)

type fakeRunner struct {
	hostname string
	failOn   string
	calls    []string
}

func (f *fakeRunner) Sudo(ctx context.Context, name string, args ...string) error {
	call := "sudo " + name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)
	if f.failOn != "" && strings.Contains(call, f.failOn) {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeRunner) Shell(ctx context.Context, command string) error {
	f.calls = append(f.calls, "sh -c "+command)
	if f.failOn != "" && strings.Contains(command, f.failOn) {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	return f.hostname, nil
}

type fakeConfirmer struct {
	answer  bool
	prompts []string
}

func (f *fakeConfirmer) Resolve(prompt string) bool {
	f.prompts = append(f.prompts, prompt)
	return f.answer
}

func TestEnsureHostnameNoDeclaration(t *testing.T) {
	exec := &fakeRunner{hostname: "old"}
	s := NewSteps(exec, zerolog.Nop())

	if err := s.EnsureHostname(context.Background(), "", &fakeConfirmer{answer: true}); err != nil {
		t.Fatal(err)
	}
	if len(exec.calls) != 0 {
		t.Errorf("calls = %v", exec.calls)
	}
}

func TestEnsureHostnameAlreadyMatches(t *testing.T) {
	exec := &fakeRunner{hostname: "desk"}
	s := NewSteps(exec, zerolog.Nop())
	confirm := &fakeConfirmer{answer: true}

	if err := s.EnsureHostname(context.Background(), "desk", confirm); err != nil {
		t.Fatal(err)
	}
	if len(confirm.prompts) != 0 {
		t.Errorf("prompted despite matching hostname: %v", confirm.prompts)
	}
	for _, call := range exec.calls {
		if strings.Contains(call, "set-hostname") {
			t.Errorf("hostname set despite match: %v", exec.calls)
		}
	}
}

func TestEnsureHostnameSetsOnMismatch(t *testing.T) {
	exec := &fakeRunner{hostname: "old"}
	s := NewSteps(exec, zerolog.Nop())

	if err := s.EnsureHostname(context.Background(), "desk", &fakeConfirmer{answer: true}); err != nil {
		t.Fatal(err)
	}
	want := "sudo hostnamectl set-hostname desk"
	if exec.calls[len(exec.calls)-1] != want {
		t.Errorf("calls = %v, want last %q", exec.calls, want)
	}
}

func TestEnsureHostnameDeclined(t *testing.T) {
	exec := &fakeRunner{hostname: "old"}
	s := NewSteps(exec, zerolog.Nop())

	if err := s.EnsureHostname(context.Background(), "desk", &fakeConfirmer{answer: false}); err != nil {
		t.Fatal(err)
	}
	for _, call := range exec.calls {
		if strings.Contains(call, "set-hostname") {
			t.Errorf("hostname set despite decline: %v", exec.calls)
		}
	}
}

func TestEnsureHostnameSetFailure(t *testing.T) {
	exec := &fakeRunner{hostname: "old", failOn: "set-hostname"}
	s := NewSteps(exec, zerolog.Nop())

	err := s.EnsureHostname(context.Background(), "desk", &fakeConfirmer{answer: true})
	if !engine.IsApply(err) {
		t.Errorf("err = %v, want apply error", err)
	}
}

func TestRunCommandsInOrder(t *testing.T) {
	exec := &fakeRunner{}
	s := NewSteps(exec, zerolog.Nop())

	if err := s.RunCommands(context.Background(), []string{"echo one", "echo two"}); err != nil {
		t.Fatal(err)
	}
	want := []string{"sh -c echo one", "sh -c echo two"}
	if len(exec.calls) != 2 || exec.calls[0] != want[0] || exec.calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", exec.calls, want)
	}
}

func TestRunCommandsAbortsOnFailure(t *testing.T) {
	exec := &fakeRunner{failOn: "fail-here"}
	s := NewSteps(exec, zerolog.Nop())

	err := s.RunCommands(context.Background(), []string{"echo one", "fail-here", "echo never"})
	if !engine.IsApply(err) {
		t.Fatalf("err = %v, want apply error", err)
	}
	if len(exec.calls) != 2 {
		t.Errorf("calls = %v, want stop after failure", exec.calls)
	}
}
