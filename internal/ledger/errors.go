package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the stable machine-readable classification of a ledger failure.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindTimeout        Kind = "timeout"
	KindPartialFailure Kind = "partial_failure"
	KindInternal       Kind = "internal"
)

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

func (e *Error) Unwrap() error { return e.Err }

func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the classification of err, or KindInternal for errors
// the ledger did not produce.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	var pf *PartialFailureError
	if errors.As(err, &pf) {
		return KindPartialFailure
	}
	return KindInternal
}

// Retryable reports whether the caller may safely re-submit the same
// operation. Conflict and timeout failures leave no committed state behind.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindConflict || k == KindTimeout
}

// MemberFailure records one group member whose grant could not be applied.
type MemberFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// PartialFailureError reports a group grant where some members failed while
// the rest stayed committed. There is no global rollback of the batch.
type PartialFailureError struct {
	Failures []MemberFailure
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.StudentID
	}
	return fmt.Sprintf("partial_failure: group grant failed for %d member(s): %s",
		len(e.Failures), strings.Join(ids, ", "))
}
