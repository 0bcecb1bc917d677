// Package errs holds the error taxonomy shared by the mutation, availability and tool layers.
// Every error carries a plain-language message and, through Hint, a corrective action.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers that only need a coarse decision.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindNetwork    Kind = "network"
	KindInternal   Kind = "internal"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict is matched by every *ConflictError.
	ErrConflict = errors.New("resource conflict")
	// ErrNetwork is matched by every *NetworkError.
	ErrNetwork = errors.New("network failure")
	// ErrIntegrity is matched by every *IntegrityError.
	ErrIntegrity = errors.New("integrity check failed")
)

// ValidationError reports malformed or missing caller input. It is always produced before any
// network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validation builds a *ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that no resource with the given identifier exists in the searched
// collections.
type NotFoundError struct {
	UID         string
	Collections []string
}

func (e *NotFoundError) Error() string {
	if len(e.Collections) == 0 {
		return fmt.Sprintf("no resource with uid %q", e.UID)
	}
	return fmt.Sprintf("no resource with uid %q in %s", e.UID, strings.Join(e.Collections, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictReason narrows down why a precondition could not be satisfied.
type ConflictReason string

const (
	// ReasonStale means the version token no longer matches the server's current one.
	ReasonStale ConflictReason = "stale"
	// ReasonDuplicate means a create hit an existing resource at the target location.
	ReasonDuplicate ConflictReason = "duplicate"
	// ReasonGone means an update targeted a resource that was removed concurrently.
	ReasonGone ConflictReason = "gone"
	// ReasonMissingToken means no version token could be obtained to guard the mutation.
	ReasonMissingToken ConflictReason = "missing-token"
)

// ConflictError reports a failed optimistic-concurrency precondition. It is never retried
// automatically; the caller re-fetches and decides.
type ConflictError struct {
	ResourceURL string
	StaleToken  string
	Reason      ConflictReason
	Message     string
}

func (e *ConflictError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "the resource was modified by someone else"
	}
	return fmt.Sprintf("conflict on %s: %s", e.ResourceURL, msg)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NetworkError is surfaced only after the retry budget is exhausted.
type NetworkError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// IntegrityError aborts a mutation that would have destroyed data, such as a patch that lost
// the recurrence rule of a series.
type IntegrityError struct {
	ResourceURL string
	Message     string
}

func (e *IntegrityError) Error() string {
	if e.ResourceURL == "" {
		return "integrity check failed: " + e.Message
	}
	return fmt.Sprintf("integrity check failed for %s: %s", e.ResourceURL, e.Message)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// SchedulingSideEffectWarning is returned next to a successful result when the written record
// lists third-party participants, so the server may notify them on its own.
type SchedulingSideEffectWarning struct {
	UID       string
	Attendees []string
}

func (w SchedulingSideEffectWarning) String() string {
	return fmt.Sprintf("event %s lists %d attendee(s) (%s); the server may send them invitations or updates",
		w.UID, len(w.Attendees), strings.Join(w.Attendees, ", "))
}

// KindOf maps any error to its Kind. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	default:
		return KindInternal
	}
}

// Hint returns a suggested corrective action for err.
func Hint(err error) string {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		switch conflict.Reason {
		case ReasonDuplicate:
			return "a resource with this identifier already exists; update it instead of creating it again"
		case ReasonGone:
			return "the resource was deleted by another client; create it again if it is still needed"
		case ReasonMissingToken:
			return "the server did not report a version for this resource; re-fetch it and retry later"
		default:
			return "re-fetch the current version and resubmit your change"
		}
	}
	switch KindOf(err) {
	case KindValidation:
		return "correct the highlighted field and try again"
	case KindNotFound:
		return "check the identifier or search the other collections"
	case KindNetwork:
		return "the server could not be reached; try again later"
	case KindInternal:
		if errors.Is(err, ErrIntegrity) {
			return "the change was aborted to protect existing data; no modification was made"
		}
		return "an unexpected error occurred; no further action is required from you"
	}
	return ""
}
