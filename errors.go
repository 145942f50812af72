package policykit

import (
	"errors"
	"fmt"

	"github.com/fernandezvara/dbkit"
)

// Sentinel errors for policykit operations.
var (
	// ErrNotFound is returned when a principal, resource, role, action or
	// assignment does not exist.
	ErrNotFound = errors.New("policykit: not found")

	// ErrInvalidInput is returned for malformed ids, empty actions and
	// invalid schedules.
	ErrInvalidInput = errors.New("policykit: invalid input")

	// ErrConflict is returned when a duplicate active assignment for the same
	// (principal, role, scope) already exists.
	ErrConflict = errors.New("policykit: conflict")

	// ErrPermissionDenied is returned when a delegator lacks the rights to
	// grant a role.
	ErrPermissionDenied = errors.New("policykit: permission denied")

	// ErrUnavailable is returned when the graph store is unreachable.
	// A check that hits it fails closed: no decision is produced.
	ErrUnavailable = errors.New("policykit: store unavailable")

	// ErrNoActorID is returned when a mutation requires an actor in the
	// context for delegation provenance or audit and none is present.
	ErrNoActorID = errors.New("policykit: no actor ID in context")
)

// Error wraps a sentinel error with additional context.
type Error struct {
	Err         error  // Underlying sentinel error
	Message     string // Additional context
	PrincipalID string // Principal involved (if applicable)
	ResourceID  string // Resource / scope involved (if applicable)
	Action      string // Action involved (if applicable)
	Role        string // Role involved (if applicable)
	ActorID     string // Actor who triggered the error (if applicable)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithPrincipal adds principal information to the error.
func (e *Error) WithPrincipal(principalID string) *Error {
	e.PrincipalID = principalID
	return e
}

// WithResource adds resource information to the error.
func (e *Error) WithResource(resourceID string) *Error {
	e.ResourceID = resourceID
	return e
}

// WithAction adds action information to the error.
func (e *Error) WithAction(action string) *Error {
	e.Action = action
	return e
}

// WithRole adds role information to the error.
func (e *Error) WithRole(role string) *Error {
	e.Role = role
	return e
}

// WithActor adds actor information to the error.
func (e *Error) WithActor(actorID string) *Error {
	e.ActorID = actorID
	return e
}

// IsNotFound checks if an error means a missing principal/resource/role.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if an error is due to malformed input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConflict checks if an error is a duplicate active assignment.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsPermissionDenied checks if an error is a delegation rights failure.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsUnavailable checks if an error means the backing store was unreachable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// classifyStoreErr maps a non-nil dbkit error onto the policykit taxonomy.
// Missing rows become ErrNotFound, unique violations ErrConflict, and
// anything else ErrUnavailable so that checks fail closed.
func classifyStoreErr(err error, message string) *Error {
	switch {
	case dbkit.IsNotFound(err):
		return NewError(ErrNotFound, message)
	case dbkit.IsDuplicate(err):
		return NewError(ErrConflict, message)
	default:
		return NewError(ErrUnavailable, message+": "+err.Error())
	}
}
