package pipeline

import (
	"errors"
	"fmt"
)

// FailureKind classifies gateway failures for reconciliation handling.
type FailureKind string

// FailureKind values. NotFound and InvalidTransition are non-retryable;
// Transient moves are safe to retry because MoveItem is idempotent.
const (
	FailureNotFound          FailureKind = "not_found"
	FailureInvalidTransition FailureKind = "invalid_transition"
	FailureTransient         FailureKind = "transient"
)

// Controller state errors.
var (
	ErrDragActive = errors.New("drag already in progress")
	ErrNoDrag     = errors.New("no drag in progress")
)

// GatewayError wraps one remote failure with its reconciliation class.
type GatewayError struct {
	Kind FailureKind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the wrapped cause.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// FailureKindOf returns the failure class of err. Unclassified errors are
// treated as transient: retrying an idempotent move is always safe, while
// mislabeling a transient fault non-retryable strands the user.
func FailureKindOf(err error) FailureKind {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return FailureTransient
}

// Retryable reports whether the failed operation may be safely re-issued.
func Retryable(err error) bool {
	return FailureKindOf(err) == FailureTransient
}
