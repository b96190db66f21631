package core

import (
	"context"
	"errors"
)

// Common errors.
var (
	// ErrNoOpCreation signals a create request with a blank title and content.
	// It is an expected outcome, not a failure.
	ErrNoOpCreation = errors.New("blank note discarded")

	ErrNotFound           = errors.New("note not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrStoreUnavailable   = errors.New("document store unavailable")
	ErrUnauthenticated    = errors.New("not signed in")
	ErrNotInRecycleBin    = errors.New("note is not in the recycle bin")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrInvalidQuery       = errors.New("invalid query")
)

// ErrorKind classifies an operation failure for user-visible reporting.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindNoOpCreation     ErrorKind = "NoOpCreation"
	KindNotFound         ErrorKind = "NotFound"
	KindPermissionDenied ErrorKind = "PermissionDenied"
	KindStoreUnavailable ErrorKind = "StoreUnavailable"
	KindAuthError        ErrorKind = "AuthError"
	KindInvalidState     ErrorKind = "InvalidState"
	KindInternal         ErrorKind = "Internal"
)

// KindOf maps any error returned by this module onto an ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNoOpCreation):
		return KindNoOpCreation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrPreconditionFailed):
		return KindPermissionDenied
	case errors.Is(err, ErrUnauthenticated):
		return KindAuthError
	case errors.Is(err, ErrNotInRecycleBin):
		return KindInvalidState
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}

// Result is the structured outcome of a single intent, handed to the
// presentation layer. A blank create is reported as OK with NoOp set.
type Result struct {
	OK      bool      `json:"ok"`
	NoOp    bool      `json:"noop,omitempty"`
	ID      string    `json:"id,omitempty"`
	Kind    ErrorKind `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
}

// ResultOf converts an operation outcome into a Result.
func ResultOf(id string, err error) Result {
	kind := KindOf(err)
	switch kind {
	case KindNone:
		return Result{OK: true, ID: id}
	case KindNoOpCreation:
		return Result{OK: true, NoOp: true}
	}
	return Result{ID: id, Kind: kind, Message: err.Error()}
}
