package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a scheduling failure so callers can map it to transport
// semantics without string matching.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindSlotConflict      Kind = "SLOT_CONFLICT"
	KindPatientConflict   Kind = "PATIENT_CONFLICT"
	KindCapacityExceeded  Kind = "CAPACITY_EXCEEDED"
	KindInvalidState      Kind = "INVALID_STATE"
	KindAlreadyCancelled  Kind = "ALREADY_CANCELLED"
	KindTransientConflict Kind = "TRANSIENT_CONFLICT"
	KindValidation        Kind = "VALIDATION"
)

// Error carries a stable kind plus a human-readable reason.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// MessageOf returns the human-readable reason, falling back to err.Error().
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// Retryable reports whether the caller may safely retry the operation.
// Only transient isolation-layer aborts qualify; every other kind is
// deterministic and will fail the same way again.
func Retryable(err error) bool {
	return KindOf(err) == KindTransientConflict
}
