package readiness

import (
	"errors"
	"fmt"

	"github.com/kilianp07/gridready/core/model"
)

var (
	// ErrNotFound is matched by every lookup failure.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is matched when an operation is not allowed in
	// the record's current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrConflict is matched when optimistic concurrency retries are exhausted.
	ErrConflict = errors.New("concurrent modification")
	// ErrSignalUnavailable is matched when a signal source did not respond.
	ErrSignalUnavailable = errors.New("signal unavailable")
	// ErrVersionMismatch is returned by stores when the expected version of
	// a record no longer matches. The service retries on it.
	ErrVersionMismatch = errors.New("record version mismatch")
	// ErrInvalidArgument is matched by malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// NotFoundError reports an unknown plant or notification.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidTransitionError reports an operation rejected by the state machine.
type InvalidTransitionError struct {
	PlantID string
	Op      string
	From    model.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s not allowed for plant %s in status %s", e.Op, e.PlantID, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ConflictError is returned after the read-decide-write cycle lost the race
// repeatedly.
type ConflictError struct {
	Key      model.RecordKey
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("record %s modified concurrently (%d attempts)", e.Key, e.Attempts)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// SignalUnavailableError wraps a failing signal source.
type SignalUnavailableError struct {
	PlantID string
	Err     error
}

func (e *SignalUnavailableError) Error() string {
	return fmt.Sprintf("signals for plant %s unavailable: %v", e.PlantID, e.Err)
}

func (e *SignalUnavailableError) Is(target error) bool { return target == ErrSignalUnavailable }

func (e *SignalUnavailableError) Unwrap() error { return e.Err }
