package engine

import "fmt"

// Action is the operation the engine decided to perform on one resource.
type Action string

const (
	// ActionSkip indicates the resource is already converged.
	ActionSkip Action = "skip"

	// ActionCreate indicates a declared resource is absent and will be created.
	ActionCreate Action = "create"

	// ActionUpdate indicates an existing resource will be mutated in place.
	ActionUpdate Action = "update"

	// ActionRecreate indicates an existing resource will be removed and
	// created again, for resource kinds that cannot be updated in place.
	ActionRecreate Action = "recreate"

	// ActionDelete indicates a managed resource is no longer declared and
	// will be removed.
	ActionDelete Action = "delete"

	// ActionAdopt indicates an undeclared live resource will be taken under
	// management: written back into the config and given a managed record.
	ActionAdopt Action = "adopt"
)

// IsMutating returns true if the action changes live system state or the
// configuration file.
func (a Action) IsMutating() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionRecreate ||
		a == ActionDelete || a == ActionAdopt
}

// IsDestructive returns true if the action removes live state.
func (a Action) IsDestructive() bool {
	return a == ActionDelete || a == ActionRecreate
}

// Validate checks the action is one of the known values.
func (a Action) Validate() error {
	switch a {
	case ActionSkip, ActionCreate, ActionUpdate, ActionRecreate, ActionDelete, ActionAdopt:
		return nil
	default:
		return fmt.Errorf("invalid action: %s", a)
	}
}

// RunStatus is the overall outcome of a reconciliation run.
type RunStatus string

const (
	// RunStatusSucceeded indicates every domain completed.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the run aborted on an apply error.
	RunStatusFailed RunStatus = "failed"

	// RunStatusPartial indicates the run completed but skipped at least one
	// domain or resource (snapshot or validation failures).
	RunStatusPartial RunStatus = "partial"

	// RunStatusCancelled indicates the run was interrupted.
	RunStatusCancelled RunStatus = "cancelled"
)
