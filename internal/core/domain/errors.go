package domain

import (
	"errors"
	"fmt"
)

// taggedError wraps an error with an explicit kind assigned at the origin.
// Tagging beats any heuristic the classifier would otherwise apply.
type taggedError struct {
	kind ErrorKind
	err  error
}

func (e *taggedError) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

func (e *taggedError) Unwrap() error {
	return e.err
}

// Tag wraps err with an explicit error kind. Returns nil when err is nil.
func Tag(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &taggedError{kind: kind, err: err}
}

// KindOf extracts an explicit kind tag from err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var tagged *taggedError
	if errors.As(err, &tagged) {
		return tagged.kind, true
	}
	return KindUnknown, false
}

// ClassifiedError is the terminal error returned by the orchestrator. It
// carries everything a caller needs to render diagnostics without
// re-deriving them.
type ClassifiedError struct {
	Kind            ErrorKind
	Severity        Severity
	Attempts        int
	RecoveryActions []string
	Err             error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s (severity=%s, attempts=%d): %v",
		e.Kind, e.Severity, e.Attempts, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// ErrAborted marks a blocking failure: the enclosing multi-stage process
// must stop, not merely fail this step. Always wrapped around a
// ClassifiedError.
var ErrAborted = errors.New("execution aborted")
