// Package errx provides the coded error type used across pixellens.
package errx

import (
	"errors"
	"fmt"
)

// Kind classifies an error for reporting and failure policy.
type Kind string

const (
	// KindConfig is fatal for the whole run and only raised at load time.
	KindConfig Kind = "CONFIG_ERROR"
	// KindAction means the action delegate failed to complete a step's action.
	KindAction Kind = "ACTION_ERROR"
	// KindNavigation means the initial page load of a step failed.
	KindNavigation Kind = "NAVIGATION_ERROR"
	// KindTimeout means a step exceeded its time bound.
	KindTimeout Kind = "TIMEOUT_ERROR"
	// KindSession means a browsing session could not be created for a case.
	KindSession Kind = "SESSION_ERROR"
	// KindInternal marks a recovered panic or an invariant violation.
	KindInternal Kind = "INTERNAL_ERROR"
	// KindCancelled means the run was interrupted while a step was in flight.
	KindCancelled Kind = "CANCELLED"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error { return &Error{Kind: kind, Msg: msg, Err: err} }

// Is reports whether any error in err's chain is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal
// when err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
