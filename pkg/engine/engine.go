package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/deskforge/deskforge/pkg/state"
	"github.com/deskforge/deskforge/pkg/telemetry"
)

// Journal receives a durable audit trail of runs and applied actions.
// Implementations must tolerate being called for every action of a run.
type Journal interface {
	BeginRun(ctx context.Context, run RunRecord) error
	FinishRun(ctx context.Context, runID string, status RunStatus, finishedAt time.Time) error
	RecordAction(ctx context.Context, entry ActionRecord) error
}

// RunRecord describes one reconciliation run for the journal.
type RunRecord struct {
	ID        string
	Mode      PolicyMode
	DryRun    bool
	StartedAt time.Time
}

// ActionRecord describes one resolved action for the journal.
type ActionRecord struct {
	RunID    string
	Domain   string
	Resource string
	Action   Action
	Status   string
	Detail   string
	At       time.Time
}

// Deps bundles the observability collaborators threaded through a run.
type Deps struct {
	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
	Journal Journal
}

// NopDeps returns dependencies with disabled metrics and tracing and a
// no-op logger. Used by tests.
func NopDeps() *Deps {
	logger, _ := telemetry.NewLogger(telemetry.LoggingConfig{Level: "disabled", Format: "json"})
	metrics, _ := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: false})
	tracer, _ := telemetry.NewTracer(telemetry.TracingConfig{Enabled: false}, "test", "dev")
	return &Deps{Logger: logger, Metrics: metrics, Tracer: tracer}
}

// Engine runs the ordered domain list against the confirmation policy and
// the managed-record store.
type Engine struct {
	domains  []DomainRunner
	store    *state.Store
	policy   *Policy
	deps     *Deps
	recreate RecreateOverride
}

// Options configures an Engine.
type Options struct {
	// Domains is the ordered domain list. Order is fixed by the caller and
	// honored exactly; domains that depend on others (users on groups,
	// containers on packages) rely on it.
	Domains []DomainRunner

	Store    *state.Store
	Policy   *Policy
	Deps     *Deps
	Recreate RecreateOverride
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, NewConfigError("state store is required", nil)
	}
	if opts.Policy == nil {
		return nil, NewConfigError("confirmation policy is required", nil)
	}
	if opts.Deps == nil {
		opts.Deps = NopDeps()
	}
	return &Engine{
		domains:  opts.Domains,
		store:    opts.Store,
		policy:   opts.Policy,
		deps:     opts.Deps,
		recreate: opts.Recreate,
	}, nil
}

// RunResult is the outcome of a full reconciliation or plan run.
type RunResult struct {
	RunID    string
	Status   RunStatus
	Domains  []*DomainResult
	Duration time.Duration
}

// Run reconciles every domain in order. The first apply error aborts the
// run; snapshot and validation failures degrade to skips. The returned
// result is valid even when err is non-nil.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	return e.execute(ctx, false)
}

// Plan classifies every domain without mutating anything.
func (e *Engine) Plan(ctx context.Context) (*RunResult, error) {
	return e.execute(ctx, true)
}

func (e *Engine) execute(ctx context.Context, dryRun bool) (*RunResult, error) {
	runID := uuid.NewString()
	start := time.Now()
	result := &RunResult{RunID: runID, Status: RunStatusSucceeded}
	log := e.deps.Logger.WithRunID(runID)

	e.deps.Metrics.RecordRunStarted()
	ctx, span := e.deps.Tracer.StartRunSpan(ctx, runID)
	defer span.End()

	if e.deps.Journal != nil && !dryRun {
		run := RunRecord{ID: runID, Mode: e.policy.Mode(), DryRun: dryRun, StartedAt: start.UTC()}
		if err := e.deps.Journal.BeginRun(ctx, run); err != nil {
			log.WithError(err).Warn("Failed to journal run start")
		}
	}

	rc := &RunContext{
		RunID:    runID,
		State:    e.store,
		Policy:   e.policy,
		Deps:     e.deps,
		Recreate: e.recreate,
	}

	var runErr error
	for _, dom := range e.domains {
		if err := ctx.Err(); err != nil {
			result.Status = RunStatusCancelled
			runErr = err
			break
		}

		domCtx, domSpan := e.deps.Tracer.StartDomainSpan(ctx, dom.Name())
		var (
			dr  *DomainResult
			err error
		)
		if dryRun {
			dr, err = dom.Plan(domCtx, rc)
		} else {
			dr, err = dom.Apply(domCtx, rc)
		}
		if dr != nil {
			result.Domains = append(result.Domains, dr)
			if dr.SnapshotFailed || dr.Invalid > 0 {
				result.Status = RunStatusPartial
			}
		}
		if err != nil {
			recordSpanError(domSpan, err)
			if errors.Is(err, context.Canceled) {
				result.Status = RunStatusCancelled
			} else {
				result.Status = RunStatusFailed
			}
			runErr = err
			break
		}
		recordSpanOK(domSpan)
	}

	result.Duration = time.Since(start)
	e.deps.Metrics.RecordRunCompleted(string(result.Status), result.Duration)
	if runErr != nil {
		telemetry.RecordError(span, runErr)
	} else {
		telemetry.RecordSuccess(span)
	}

	if e.deps.Journal != nil && !dryRun {
		if err := e.deps.Journal.FinishRun(ctx, runID, result.Status, time.Now().UTC()); err != nil {
			log.WithError(err).Warn("Failed to journal run completion")
		}
	}

	log.WithField("status", string(result.Status)).
		WithField("duration", result.Duration.String()).
		Info("Run finished")
	return result, runErr
}

func recordSpanError(span trace.Span, err error) {
	telemetry.RecordError(span, err)
	span.End()
}

func recordSpanOK(span trace.Span) {
	telemetry.RecordSuccess(span)
	span.End()
}
