package engine

import (
	"sort"

	"github.com/deskforge/deskforge/pkg/state"
)

// RecreateOverride short-circuits the container diff from the CLI.
type RecreateOverride int

const (
	// RecreateAuto lets the normal classification rules decide.
	RecreateAuto RecreateOverride = iota

	// RecreateAlways forces every declared-and-present resource to be
	// recreated regardless of fingerprints (--force-recreate).
	RecreateAlways

	// RecreateNever forces every declared-and-present resource to be
	// skipped regardless of fingerprints (--no-recreate). Absent resources
	// are still created.
	RecreateNever
)

// Input is everything Classify needs to diff one domain. Declared maps
// resource keys to their descriptors; Current is the set of keys present on
// the live system; Prior is the managed-record map from the last run.
type Input[D any] struct {
	Declared map[string]D
	Current  map[string]bool
	Prior    map[string]state.Record

	// Fingerprint hashes a declared descriptor. Required.
	Fingerprint func(d D) string

	// Converged reports whether a present resource already matches its
	// descriptor on the live system. Consulted only when the stored
	// fingerprint matches, to catch out-of-band drift. Required.
	Converged func(key string, d D) bool

	// InPlace reports whether a drifted resource can be mutated in place.
	// When false the resource is recreated instead of updated. Required.
	InPlace func(d D) bool

	// Sweep enables surfacing live resources that are neither declared nor
	// recorded. Domains with unbounded live sets leave this off.
	Sweep bool

	// Recreate is the CLI override, RecreateAuto outside the container
	// domain.
	Recreate RecreateOverride
}

// Decision is the classification of one resource key.
type Decision struct {
	Key    string
	Action Action

	// Reason is a short human explanation, used in plan output and logs.
	Reason string

	// Orphan marks a resource that has a managed record but is no longer
	// declared. Its Action is ActionDelete, gated by confirmation.
	Orphan bool

	// Undeclared marks a live resource with neither declaration nor record.
	// Its Action is ActionAdopt; the engine walks the adopt/delete/skip
	// prompt cascade for it.
	Undeclared bool

	// Live is false for an orphan whose resource already vanished from the
	// system; its record is pruned without a prompt.
	Live bool
}

// Classify diffs declared configuration against live state and prior
// managed records, producing one Decision per involved key, sorted by key.
// Declared resources always come before orphans and undeclared resources.
//
// The callbacks are programming contracts, not runtime conditions: a nil
// callback panics.
func Classify[D any](in Input[D]) []Decision {
	if in.Fingerprint == nil || in.Converged == nil || in.InPlace == nil {
		panic("engine: Classify requires Fingerprint, Converged and InPlace callbacks")
	}

	decisions := make([]Decision, 0, len(in.Declared))
	for _, key := range sortedKeys(in.Declared) {
		decisions = append(decisions, classifyDeclared(in, key, in.Declared[key]))
	}

	// Orphans: recorded but no longer declared.
	for _, key := range sortedRecordKeys(in.Prior) {
		if _, ok := in.Declared[key]; ok {
			continue
		}
		decisions = append(decisions, Decision{
			Key:    key,
			Action: ActionDelete,
			Reason: "recorded as managed but no longer declared",
			Orphan: true,
			Live:   in.Current[key],
		})
	}

	// Undeclared: present on the system with neither declaration nor record.
	if in.Sweep {
		for _, key := range sortedBoolKeys(in.Current) {
			if !in.Current[key] {
				continue
			}
			if _, ok := in.Declared[key]; ok {
				continue
			}
			if _, ok := in.Prior[key]; ok {
				continue
			}
			decisions = append(decisions, Decision{
				Key:        key,
				Action:     ActionAdopt,
				Reason:     "present on the system but not declared",
				Undeclared: true,
				Live:       true,
			})
		}
	}
	return decisions
}

func classifyDeclared[D any](in Input[D], key string, d D) Decision {
	present := in.Current[key]
	if !present {
		return Decision{Key: key, Action: ActionCreate, Reason: "declared but absent", Live: false}
	}

	// CLI overrides bypass the fingerprint diff entirely.
	switch in.Recreate {
	case RecreateAlways:
		return Decision{Key: key, Action: ActionRecreate, Reason: "recreate forced", Live: true}
	case RecreateNever:
		return Decision{Key: key, Action: ActionSkip, Reason: "recreate suppressed", Live: true}
	}

	record, managed := in.Prior[key]
	if !managed {
		// The resource pre-exists but was never applied by us. Its current
		// configuration is untrusted, so it is brought to the declared
		// state rather than skipped.
		return updateOrRecreate(in, key, d, "present but not managed")
	}

	if record.Fingerprint != in.Fingerprint(d) {
		return updateOrRecreate(in, key, d, "declaration changed since last apply")
	}
	if !in.Converged(key, d) {
		return updateOrRecreate(in, key, d, "drifted from declared state")
	}
	return Decision{Key: key, Action: ActionSkip, Reason: "converged", Live: true}
}

func updateOrRecreate[D any](in Input[D], key string, d D, reason string) Decision {
	if in.InPlace(d) {
		return Decision{Key: key, Action: ActionUpdate, Reason: reason, Live: true}
	}
	return Decision{Key: key, Action: ActionRecreate, Reason: reason, Live: true}
}

func sortedKeys[D any](m map[string]D) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRecordKeys(m map[string]state.Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedBoolKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
