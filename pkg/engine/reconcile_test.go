package engine

import (
	"testing"

	"github.com/deskforge/deskforge/pkg/state"
)

type fakeDescriptor struct {
	version string
	inPlace bool
}

func fakeInput() Input[fakeDescriptor] {
	return Input[fakeDescriptor]{
		Declared:    map[string]fakeDescriptor{},
		Current:     map[string]bool{},
		Prior:       map[string]state.Record{},
		Fingerprint: func(d fakeDescriptor) string { return "fp:" + d.version },
		Converged:   func(key string, d fakeDescriptor) bool { return true },
		InPlace:     func(d fakeDescriptor) bool { return d.inPlace },
	}
}

func decisionFor(t *testing.T, decisions []Decision, key string) Decision {
	t.Helper()
	for _, d := range decisions {
		if d.Key == key {
			return d
		}
	}
	t.Fatalf("no decision for key %q in %v", key, decisions)
	return Decision{}
}

func TestClassifyDeclaredAbsentIsCreate(t *testing.T) {
	in := fakeInput()
	in.Declared["htop"] = fakeDescriptor{version: "1", inPlace: true}

	got := decisionFor(t, Classify(in), "htop")
	if got.Action != ActionCreate {
		t.Errorf("action = %s, want create", got.Action)
	}
}

func TestClassifyConvergedIsSkip(t *testing.T) {
	in := fakeInput()
	in.Declared["htop"] = fakeDescriptor{version: "1", inPlace: true}
	in.Current["htop"] = true
	in.Prior["htop"] = state.NewRecord("fp:1", nil)

	got := decisionFor(t, Classify(in), "htop")
	if got.Action != ActionSkip {
		t.Errorf("action = %s, want skip", got.Action)
	}
}

func TestClassifyFingerprintChangeIsUpdate(t *testing.T) {
	in := fakeInput()
	in.Declared["sshd"] = fakeDescriptor{version: "2", inPlace: true}
	in.Current["sshd"] = true
	in.Prior["sshd"] = state.NewRecord("fp:1", nil)

	got := decisionFor(t, Classify(in), "sshd")
	if got.Action != ActionUpdate {
		t.Errorf("action = %s, want update", got.Action)
	}
}

func TestClassifyFingerprintChangeNotInPlaceIsRecreate(t *testing.T) {
	// Containers are never updated in place: an image change recreates.
	in := fakeInput()
	in.Declared["web"] = fakeDescriptor{version: "nginx:1.25", inPlace: false}
	in.Current["web"] = true
	in.Prior["web"] = state.NewRecord("fp:nginx:1.24", nil)

	got := decisionFor(t, Classify(in), "web")
	if got.Action != ActionRecreate {
		t.Errorf("action = %s, want recreate", got.Action)
	}
}

func TestClassifyLiveDriftDespiteFingerprintMatch(t *testing.T) {
	in := fakeInput()
	in.Declared["bluetooth"] = fakeDescriptor{version: "1", inPlace: true}
	in.Current["bluetooth"] = true
	in.Prior["bluetooth"] = state.NewRecord("fp:1", nil)
	in.Converged = func(key string, d fakeDescriptor) bool { return false }

	got := decisionFor(t, Classify(in), "bluetooth")
	if got.Action != ActionUpdate {
		t.Errorf("action = %s, want update for out-of-band drift", got.Action)
	}
}

func TestClassifyUnmanagedPreexistingIsUpdate(t *testing.T) {
	// Present but never applied by us: current configuration is untrusted,
	// so it converges to the declared state instead of being skipped.
	in := fakeInput()
	in.Declared["sshd"] = fakeDescriptor{version: "1", inPlace: true}
	in.Current["sshd"] = true

	got := decisionFor(t, Classify(in), "sshd")
	if got.Action != ActionUpdate {
		t.Errorf("action = %s, want update for unmanaged pre-existing resource", got.Action)
	}
}

func TestClassifyOrphan(t *testing.T) {
	in := fakeInput()
	in.Current["old-vpn"] = true
	in.Prior["old-vpn"] = state.NewRecord("fp:1", nil)

	got := decisionFor(t, Classify(in), "old-vpn")
	if got.Action != ActionDelete || !got.Orphan {
		t.Errorf("decision = %+v, want orphan delete", got)
	}
	if !got.Live {
		t.Error("orphan still present on the system should be marked live")
	}
}

func TestClassifyOrphanAlreadyGone(t *testing.T) {
	in := fakeInput()
	in.Prior["old-vpn"] = state.NewRecord("fp:1", nil)

	got := decisionFor(t, Classify(in), "old-vpn")
	if !got.Orphan || got.Live {
		t.Errorf("decision = %+v, want non-live orphan", got)
	}
}

func TestClassifyUndeclaredOnlyWhenSweeping(t *testing.T) {
	in := fakeInput()
	in.Current["stray"] = true

	if got := Classify(in); len(got) != 0 {
		t.Errorf("sweep disabled but got decisions: %v", got)
	}

	in.Sweep = true
	got := decisionFor(t, Classify(in), "stray")
	if got.Action != ActionAdopt || !got.Undeclared {
		t.Errorf("decision = %+v, want undeclared adopt", got)
	}
}

func TestClassifyRecordedResourceNeverSurfacesAsUndeclared(t *testing.T) {
	in := fakeInput()
	in.Sweep = true
	in.Current["vim"] = true
	in.Prior["vim"] = state.NewRecord("fp:1", nil)

	got := decisionFor(t, Classify(in), "vim")
	if got.Undeclared {
		t.Error("recorded orphan must not also surface as undeclared")
	}
}

func TestClassifyForceRecreateOverride(t *testing.T) {
	in := fakeInput()
	in.Declared["web"] = fakeDescriptor{version: "1", inPlace: false}
	in.Current["web"] = true
	in.Prior["web"] = state.NewRecord("fp:1", nil)
	in.Recreate = RecreateAlways

	got := decisionFor(t, Classify(in), "web")
	if got.Action != ActionRecreate {
		t.Errorf("action = %s, want recreate under --force-recreate", got.Action)
	}
}

func TestClassifyNoRecreateOverride(t *testing.T) {
	in := fakeInput()
	in.Declared["web"] = fakeDescriptor{version: "2", inPlace: false}
	in.Current["web"] = true
	in.Prior["web"] = state.NewRecord("fp:1", nil)
	in.Declared["db"] = fakeDescriptor{version: "1", inPlace: false}
	in.Recreate = RecreateNever

	decisions := Classify(in)
	if got := decisionFor(t, decisions, "web"); got.Action != ActionSkip {
		t.Errorf("web action = %s, want skip under --no-recreate", got.Action)
	}
	// Absent resources are still created even under --no-recreate.
	if got := decisionFor(t, decisions, "db"); got.Action != ActionCreate {
		t.Errorf("db action = %s, want create under --no-recreate", got.Action)
	}
}

func TestClassifyOutputSorted(t *testing.T) {
	in := fakeInput()
	in.Declared["zsh"] = fakeDescriptor{version: "1", inPlace: true}
	in.Declared["git"] = fakeDescriptor{version: "1", inPlace: true}
	in.Declared["vim"] = fakeDescriptor{version: "1", inPlace: true}

	got := Classify(in)
	want := []string{"git", "vim", "zsh"}
	for i, key := range want {
		if got[i].Key != key {
			t.Fatalf("decision order = %v, want %v", got, want)
		}
	}
}

func TestClassifyNilCallbackPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil Fingerprint callback")
		}
	}()
	Classify(Input[fakeDescriptor]{
		Converged: func(string, fakeDescriptor) bool { return true },
		InPlace:   func(fakeDescriptor) bool { return true },
	})
}
