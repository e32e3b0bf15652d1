// Package pipelineerr defines the error kinds the orchestrator (§7)
// distinguishes when a stage fails: Empty preconditions are fatal for
// the run, NotFound means the Book vanished mid-stage and must be
// handled silently, and Precondition maps to an HTTP status at the
// server boundary. There is no Unauthorized kind. Transport and SchemaValidation errors need no
// dedicated type: they are handled per-item inside concurrency.Result
// and never propagate past a stage.
package pipelineerr

import "errors"

// Empty wraps a fatal missing-precondition error (no chunks, no claims
// of a needed label, no chapters). The orchestrator marks the Book
// failed with Error() as the human-readable reason.
type Empty struct {
	Reason string
}

func (e *Empty) Error() string { return e.Reason }

// NewEmpty builds an Empty error with reason.
func NewEmpty(reason string) error { return &Empty{Reason: reason} }

// IsEmpty reports whether err is (or wraps) an Empty error.
func IsEmpty(err error) bool {
	var e *Empty
	return errors.As(err, &e)
}

// ErrGone signals the Book record vanished during processing (a
// concurrent delete). The orchestrator logs and exits without touching
// the record; it is never surfaced to the caller.
var ErrGone = errors.New("pipelineerr: book record no longer exists")

// Precondition signals a trigger attempted from a non-uploaded,
// non-failed Book status. The server maps this to HTTP 400.
type Precondition struct {
	Reason string
}

func (e *Precondition) Error() string { return e.Reason }

// NewPrecondition builds a Precondition error with reason.
func NewPrecondition(reason string) error { return &Precondition{Reason: reason} }
