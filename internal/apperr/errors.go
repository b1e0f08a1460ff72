package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for the caller-visible response.
type Kind int

const (
	// ExecutionError: the database rejected the statement.
	ExecutionError Kind = iota
	// ConnectionError: the database could not be reached or authenticated to.
	ConnectionError
	// ValidationError: arguments failed the schema or an operation precondition.
	ValidationError
	// PolicyViolation: a mutating operation was attempted in read-only mode.
	PolicyViolation
	// UnknownOperation: the name is not in the catalog.
	UnknownOperation
	// Timeout: the statement did not finish within the configured bound.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case ConnectionError:
		return "connection_error"
	case ValidationError:
		return "validation_error"
	case PolicyViolation:
		return "policy_violation"
	case ExecutionError:
		return "execution_error"
	case UnknownOperation:
		return "unknown_operation"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error carries a Kind alongside the underlying cause.
type Error struct {
	Kind Kind
	Op   string // operation name, empty below the dispatcher
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to err. A nil err yields nil. If err already carries
// a Kind, that kind is kept.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// WithOp stamps the operation name onto err, keeping its kind.
func WithOp(op string, err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return &Error{Kind: ae.Kind, Op: op, Err: ae.Err}
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}

// KindOf reports the kind carried by err. Context deadline errors map to
// Timeout; anything untagged is an ExecutionError.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return ExecutionError
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
