package engine

import (
	"fmt"

	"motorpool/internal/domain"
)

// ValidationError covers malformed input the caller can correct: a bad
// window, a missing reason, an odometer reading that goes backwards.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) ValidationError {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError indicates a window overlap with another blocking
// reservation, a vehicle unavailable for booking, or reference-number
// collision after retry exhaustion.
type ConflictError struct {
	Msg string
	// ReservationID identifies the conflicting reservation when the
	// conflict came from an overlap.
	ReservationID string
}

func (e ConflictError) Error() string { return e.Msg }

// InvalidTransitionError indicates a transition attempted from a state it
// is not legal in. It names the current and the required status.
type InvalidTransitionError struct {
	ReservationID string
	Op            string
	Current       domain.ReservationStatus
	Required      string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s reservation %s: status is %s, requires %s", e.Op, e.ReservationID, e.Current, e.Required)
}

// ContentionError indicates a lock or transaction timeout. The operation
// did not commit; the caller should retry.
type ContentionError struct {
	Err error
}

func (e ContentionError) Error() string {
	return fmt.Sprintf("storage contention, retry: %v", e.Err)
}

func (e ContentionError) Unwrap() error { return e.Err }
