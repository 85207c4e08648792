package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/deskforge/deskforge/pkg/state"
	"github.com/deskforge/deskforge/pkg/telemetry"
)

// Domain is the capability set a resource domain implements. D is the
// domain's declared descriptor type; the engine never inspects it beyond
// the callbacks below.
type Domain[D any] interface {
	// Name is the domain identifier used for state files, logs and metrics.
	Name() string

	// Kind is the singular human noun used in prompts ("package",
	// "container").
	Kind() string

	// Declared returns the descriptors from the loaded configuration.
	Declared() map[string]D

	// Validate checks one declared descriptor before any mutation. A
	// validation failure skips that resource; its siblings proceed.
	Validate(key string, d D) error

	// Snapshot reads which resource keys are present on the live system.
	// Failure here skips the whole domain with a warning.
	Snapshot(ctx context.Context) (map[string]bool, error)

	// Fingerprint hashes the managed attributes of a descriptor.
	Fingerprint(d D) string

	// Converged reports whether a present resource already matches its
	// descriptor. Only consulted when the stored fingerprint matches.
	Converged(ctx context.Context, key string, d D) bool

	// InPlaceUpdatable reports whether the resource can be mutated without
	// recreating it.
	InPlaceUpdatable(d D) bool

	// RecreateOverridable reports whether the CLI recreate override applies
	// to this domain. Only containers honor --force-recreate/--no-recreate;
	// every other domain classifies as if the override were absent.
	RecreateOverridable() bool

	// Sweep reports whether undeclared live resources should surface for
	// the adopt/delete/skip cascade.
	Sweep() bool

	// Describe renders a short human description of the declared resource
	// for confirmation prompts.
	Describe(key string, d D) string

	// Attributes returns descriptor attributes worth persisting in the
	// managed record. May return nil.
	Attributes(d D) map[string]string

	Create(ctx context.Context, key string, d D) error
	Update(ctx context.Context, key string, d D) error
	Remove(ctx context.Context, key string) error

	// Adopt takes an undeclared live resource under management: it writes
	// the resource back into the configuration file and returns the
	// descriptor that was written, so the engine can record its
	// fingerprint.
	Adopt(ctx context.Context, key string) (D, error)
}

// RunContext carries the shared collaborators of one reconciliation run
// into each domain runner.
type RunContext struct {
	RunID    string
	State    *state.Store
	Policy   *Policy
	Deps     *Deps
	Recreate RecreateOverride
}

// DomainResult summarizes what one domain did during a run.
type DomainResult struct {
	Domain    string
	Decisions []Decision
	Applied   int
	Skipped   int
	Declined  int
	Invalid   int

	// SnapshotFailed is true when the live system could not be read and the
	// domain was skipped entirely.
	SnapshotFailed bool
}

// DomainRunner is the non-generic face of a Domain[D], so the engine can
// hold a heterogeneous ordered list of domains.
type DomainRunner interface {
	Name() string

	// Plan classifies without applying anything.
	Plan(ctx context.Context, rc *RunContext) (*DomainResult, error)

	// Apply classifies, confirms and applies, persisting managed records
	// immediately after each successful mutation.
	Apply(ctx context.Context, rc *RunContext) (*DomainResult, error)
}

// NewRunner wraps a Domain[D] into a DomainRunner. Reconciliation logic is
// generic over the descriptor type; methods cannot introduce type
// parameters, so the wrapping happens through this free function.
func NewRunner[D any](dom Domain[D]) DomainRunner {
	return &runner[D]{dom: dom}
}

type runner[D any] struct {
	dom Domain[D]
}

func (r *runner[D]) Name() string {
	return r.dom.Name()
}

func (r *runner[D]) Plan(ctx context.Context, rc *RunContext) (*DomainResult, error) {
	result, _, _, err := r.classify(ctx, rc)
	return result, err
}

func (r *runner[D]) Apply(ctx context.Context, rc *RunContext) (*DomainResult, error) {
	result, declared, records, err := r.classify(ctx, rc)
	if err != nil || result.SnapshotFailed {
		return result, err
	}

	log := rc.Deps.Logger.NewComponentLogger(r.dom.Name()).WithRunID(rc.RunID)
	for _, dec := range result.Decisions {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		switch {
		case dec.Action == ActionSkip:
			result.Skipped++
			log.WithResource(dec.Key).Debugf("Skipping: %s", dec.Reason)
		case dec.Undeclared:
			if err := r.applyUndeclared(ctx, rc, result, records, dec, log); err != nil {
				return result, err
			}
		case dec.Orphan:
			if err := r.applyOrphan(ctx, rc, result, records, dec, log); err != nil {
				return result, err
			}
		default:
			if err := r.applyDeclared(ctx, rc, result, declared, records, dec, log); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

// classify runs the read-only half of a domain pass: validation, snapshot,
// state load and classification.
func (r *runner[D]) classify(ctx context.Context, rc *RunContext) (*DomainResult, map[string]D, map[string]state.Record, error) {
	name := r.dom.Name()
	result := &DomainResult{Domain: name}
	log := rc.Deps.Logger.NewComponentLogger(name).WithRunID(rc.RunID)

	start := time.Now()
	defer func() {
		rc.Deps.Metrics.RecordDomainDuration(name, time.Since(start))
	}()

	declared := make(map[string]D, len(r.dom.Declared()))
	for key, d := range r.dom.Declared() {
		if err := r.dom.Validate(key, d); err != nil {
			result.Invalid++
			log.WithResource(key).WithError(
				NewValidationError("invalid declaration", err).WithDomain(name).WithResource(key),
			).Error("Skipping invalid resource")
			continue
		}
		declared[key] = d
	}

	current, err := r.dom.Snapshot(ctx)
	if err != nil {
		result.SnapshotFailed = true
		log.WithError(NewSnapshotError("failed to read live state", err).WithDomain(name)).
			Warn("Skipping domain, live state unreadable")
		return result, nil, nil, nil
	}

	records := rc.State.Load(name)

	recreate := rc.Recreate
	if !r.dom.RecreateOverridable() {
		recreate = RecreateAuto
	}

	result.Decisions = Classify(Input[D]{
		Declared:    declared,
		Current:     current,
		Prior:       records,
		Fingerprint: r.dom.Fingerprint,
		Converged: func(key string, d D) bool {
			return r.dom.Converged(ctx, key, d)
		},
		InPlace:  r.dom.InPlaceUpdatable,
		Sweep:    r.dom.Sweep(),
		Recreate: recreate,
	})
	return result, declared, records, nil
}

func (r *runner[D]) applyDeclared(ctx context.Context, rc *RunContext, result *DomainResult,
	declared map[string]D, records map[string]state.Record, dec Decision, log *telemetry.Logger) error {

	d := declared[dec.Key]
	prompt := fmt.Sprintf("%s %s (%s)", verb(dec.Action), r.dom.Describe(dec.Key, d), dec.Reason)
	if !r.confirm(rc, prompt) {
		result.Declined++
		rc.Deps.Metrics.RecordAction(r.dom.Name(), string(dec.Action), "declined")
		return nil
	}

	actCtx, span := rc.Deps.Tracer.StartActionSpan(ctx, r.dom.Name(), dec.Key, string(dec.Action))
	err := r.mutate(actCtx, dec, d)
	if err != nil {
		recordSpanError(span, err)
		rc.Deps.Metrics.RecordApplyFailure(r.dom.Name(), string(dec.Action))
		r.journalAction(ctx, rc, dec, "failed", err.Error())
		return NewApplyError(fmt.Sprintf("failed to %s resource", dec.Action), err).
			WithDomain(r.dom.Name()).WithResource(dec.Key)
	}
	recordSpanOK(span)

	records[dec.Key] = state.NewRecord(r.dom.Fingerprint(d), r.dom.Attributes(d))
	if err := rc.State.Save(r.dom.Name(), records); err != nil {
		return NewApplyError("failed to persist managed record", err).
			WithDomain(r.dom.Name()).WithResource(dec.Key)
	}
	result.Applied++
	rc.Deps.Metrics.RecordAction(r.dom.Name(), string(dec.Action), "applied")
	r.journalAction(ctx, rc, dec, "applied", dec.Reason)
	log.WithResource(dec.Key).Infof("%s applied", dec.Action)
	return nil
}

// mutate performs the live-system side of a declared decision. Recreate is
// exactly one Remove followed by one Create; the managed record is only
// rewritten by the caller after Create succeeds, so a failure between the
// two leaves the next run seeing a plain Create.
func (r *runner[D]) mutate(ctx context.Context, dec Decision, d D) error {
	switch dec.Action {
	case ActionCreate:
		return r.dom.Create(ctx, dec.Key, d)
	case ActionUpdate:
		return r.dom.Update(ctx, dec.Key, d)
	case ActionRecreate:
		if err := r.dom.Remove(ctx, dec.Key); err != nil {
			return err
		}
		return r.dom.Create(ctx, dec.Key, d)
	default:
		panic(fmt.Sprintf("engine: unexpected declared action %s", dec.Action))
	}
}

func (r *runner[D]) applyOrphan(ctx context.Context, rc *RunContext, result *DomainResult,
	records map[string]state.Record, dec Decision, log *telemetry.Logger) error {

	name := r.dom.Name()
	if !dec.Live {
		// The resource already vanished out-of-band. Nothing destructive is
		// left to do, so the stale record is pruned without a prompt.
		delete(records, dec.Key)
		if err := rc.State.Save(name, records); err != nil {
			return NewApplyError("failed to prune stale record", err).
				WithDomain(name).WithResource(dec.Key)
		}
		log.WithResource(dec.Key).Info("Pruned record for resource that no longer exists")
		result.Applied++
		return nil
	}

	prompt := fmt.Sprintf("Delete %s %q (%s)", r.dom.Kind(), dec.Key, dec.Reason)
	if !r.confirm(rc, prompt) {
		// Declined: the record stays, so the same prompt returns next run.
		result.Declined++
		rc.Deps.Metrics.RecordAction(name, string(ActionDelete), "declined")
		return nil
	}

	actCtx, span := rc.Deps.Tracer.StartActionSpan(ctx, name, dec.Key, string(ActionDelete))
	if err := r.dom.Remove(actCtx, dec.Key); err != nil {
		recordSpanError(span, err)
		rc.Deps.Metrics.RecordApplyFailure(name, string(ActionDelete))
		r.journalAction(ctx, rc, dec, "failed", err.Error())
		return NewApplyError("failed to delete resource", err).WithDomain(name).WithResource(dec.Key)
	}
	recordSpanOK(span)

	delete(records, dec.Key)
	if err := rc.State.Save(name, records); err != nil {
		return NewApplyError("failed to persist managed record", err).
			WithDomain(name).WithResource(dec.Key)
	}
	result.Applied++
	rc.Deps.Metrics.RecordAction(name, string(ActionDelete), "applied")
	r.journalAction(ctx, rc, dec, "applied", dec.Reason)
	log.WithResource(dec.Key).Info("delete applied")
	return nil
}

// applyUndeclared walks the adopt → delete → skip cascade. A confirmed
// adopt or delete that then fails aborts the run like any other apply
// failure: the operator approved a mutation that did not happen.
func (r *runner[D]) applyUndeclared(ctx context.Context, rc *RunContext, result *DomainResult,
	records map[string]state.Record, dec Decision, log *telemetry.Logger) error {

	name := r.dom.Name()
	if r.confirm(rc, fmt.Sprintf("Adopt %s %q into the configuration", r.dom.Kind(), dec.Key)) {
		d, err := r.dom.Adopt(ctx, dec.Key)
		if err != nil {
			rc.Deps.Metrics.RecordApplyFailure(name, string(ActionAdopt))
			r.journalAction(ctx, rc, Decision{Key: dec.Key, Action: ActionAdopt}, "failed", err.Error())
			return NewApplyError("failed to adopt resource", err).WithDomain(name).WithResource(dec.Key)
		}
		records[dec.Key] = state.NewRecord(r.dom.Fingerprint(d), r.dom.Attributes(d))
		if err := rc.State.Save(name, records); err != nil {
			return NewApplyError("failed to persist adopted record", err).
				WithDomain(name).WithResource(dec.Key)
		}
		result.Applied++
		rc.Deps.Metrics.RecordAction(name, string(ActionAdopt), "applied")
		r.journalAction(ctx, rc, Decision{Key: dec.Key, Action: ActionAdopt}, "applied", dec.Reason)
		log.WithResource(dec.Key).Info("adopt applied")
		return nil
	}

	if r.confirm(rc, fmt.Sprintf("Delete unmanaged %s %q", r.dom.Kind(), dec.Key)) {
		if err := r.dom.Remove(ctx, dec.Key); err != nil {
			rc.Deps.Metrics.RecordApplyFailure(name, string(ActionDelete))
			r.journalAction(ctx, rc, Decision{Key: dec.Key, Action: ActionDelete}, "failed", err.Error())
			return NewApplyError("failed to delete unmanaged resource", err).
				WithDomain(name).WithResource(dec.Key)
		}
		result.Applied++
		rc.Deps.Metrics.RecordAction(name, string(ActionDelete), "applied")
		r.journalAction(ctx, rc, Decision{Key: dec.Key, Action: ActionDelete}, "applied", dec.Reason)
		log.WithResource(dec.Key).Info("delete applied")
		return nil
	}

	result.Skipped++
	log.WithResource(dec.Key).Info("Leaving unmanaged resource alone")
	return nil
}

func (r *runner[D]) confirm(rc *RunContext, prompt string) bool {
	answer := rc.Policy.Resolve(prompt)
	rc.Deps.Metrics.RecordPromptResolved(string(rc.Policy.Mode()), answer)
	return answer
}

func (r *runner[D]) journalAction(ctx context.Context, rc *RunContext, dec Decision, status, detail string) {
	if rc.Deps.Journal == nil {
		return
	}
	entry := ActionRecord{
		RunID:    rc.RunID,
		Domain:   r.dom.Name(),
		Resource: dec.Key,
		Action:   dec.Action,
		Status:   status,
		Detail:   detail,
		At:       time.Now().UTC(),
	}
	if err := rc.Deps.Journal.RecordAction(ctx, entry); err != nil {
		rc.Deps.Logger.WithError(err).Warn("Failed to journal action")
	}
}

func verb(a Action) string {
	switch a {
	case ActionCreate:
		return "Create"
	case ActionUpdate:
		return "Update"
	case ActionRecreate:
		return "Recreate"
	case ActionDelete:
		return "Delete"
	case ActionAdopt:
		return "Adopt"
	default:
		return string(a)
	}
}
