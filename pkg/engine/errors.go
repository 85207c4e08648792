// Package engine implements the reconciliation core: snapshotting live
// system state, diffing it against the declared configuration and the
// managed-record state, classifying each resource into an action, gating
// mutations behind the confirmation policy, and applying the result.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an error for the engine's recovery rules.
type ErrorClass string

const (
	// ErrorClassConfig indicates the declared configuration is unusable.
	// Fatal: nothing runs, the process exits non-zero.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassSnapshot indicates live system state for a domain could not
	// be read. The domain is skipped with a warning; other domains proceed.
	ErrorClassSnapshot ErrorClass = "snapshot"

	// ErrorClassValidation indicates a single declared resource is invalid.
	// The resource is skipped; its siblings proceed.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassApply indicates a mutation failed mid-run. The run aborts
	// and the process exits non-zero; records written so far are kept.
	ErrorClassApply ErrorClass = "apply"

	// ErrorClassState indicates a managed-record file could not be read.
	// Recovered as empty state with a warning.
	ErrorClassState ErrorClass = "state"
)

// Error is a classified engine error with domain and resource context.
type Error struct {
	Class    ErrorClass `json:"class"`
	Message  string     `json:"message"`
	Domain   string     `json:"domain,omitempty"`
	Resource string     `json:"resource,omitempty"`
	Err      error      `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Domain != "" && e.Resource != "":
		return fmt.Sprintf("[%s] %s (domain=%s, resource=%s)%s",
			e.Class, e.Message, e.Domain, e.Resource, e.causeSuffix())
	case e.Domain != "":
		return fmt.Sprintf("[%s] %s (domain=%s)%s", e.Class, e.Message, e.Domain, e.causeSuffix())
	default:
		return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.causeSuffix())
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) causeSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is matches two engine errors by class, for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewConfigError creates a fatal configuration error.
func NewConfigError(message string, err error) *Error {
	return &Error{Class: ErrorClassConfig, Message: message, Err: err}
}

// NewSnapshotError creates a snapshot error for a domain.
func NewSnapshotError(message string, err error) *Error {
	return &Error{Class: ErrorClassSnapshot, Message: message, Err: err}
}

// NewValidationError creates a per-resource validation error.
func NewValidationError(message string, err error) *Error {
	return &Error{Class: ErrorClassValidation, Message: message, Err: err}
}

// NewApplyError creates a run-aborting apply error.
func NewApplyError(message string, err error) *Error {
	return &Error{Class: ErrorClassApply, Message: message, Err: err}
}

// NewStateError creates a state I/O error.
func NewStateError(message string, err error) *Error {
	return &Error{Class: ErrorClassState, Message: message, Err: err}
}

// WithDomain adds domain context to an error.
func (e *Error) WithDomain(domain string) *Error {
	e.Domain = domain
	return e
}

// WithResource adds resource context to an error.
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// IsConfig returns true if the error is classified as a config error.
func IsConfig(err error) bool { return hasClass(err, ErrorClassConfig) }

// IsSnapshot returns true if the error is classified as a snapshot error.
func IsSnapshot(err error) bool { return hasClass(err, ErrorClassSnapshot) }

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool { return hasClass(err, ErrorClassValidation) }

// IsApply returns true if the error is classified as an apply error.
func IsApply(err error) bool { return hasClass(err, ErrorClassApply) }

// IsState returns true if the error is classified as a state error.
func IsState(err error) bool { return hasClass(err, ErrorClassState) }

func hasClass(err error, class ErrorClass) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}
