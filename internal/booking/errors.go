package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the referenced event does not exist.
	ErrNotFound = errors.New("event not found")
	// ErrBookingNotFound is returned when a booking does not exist or is not visible to the caller.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrNoCapacity is returned when the event has no remaining spots.
	ErrNoCapacity = errors.New("no spots available for this event")
	// ErrAlreadyBooked is returned when the user already holds an active booking for the event.
	ErrAlreadyBooked = errors.New("user has already booked this event")
	// ErrDuplicateBooking is the registry-level uniqueness failure behind ErrAlreadyBooked.
	ErrDuplicateBooking = errors.New("active booking already exists for user and event")
	// ErrInvalidRequest is returned for missing identifiers.
	ErrInvalidRequest = errors.New("invalid booking request")
	// ErrTransactionFailed marks infrastructure failures that survived every retry.
	ErrTransactionFailed = errors.New("booking transaction failed")
	// ErrInvariantViolation means a capacity mutation would break 0 <= remaining <= total.
	ErrInvariantViolation = errors.New("capacity invariant violated")
)

// TransactionError carries the last infrastructure error of a retried operation.
type TransactionError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

func (e *TransactionError) Is(target error) bool {
	return target == ErrTransactionFailed
}

// isTerminal reports errors that must not be retried.
func isTerminal(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrNoCapacity) ||
		errors.Is(err, ErrAlreadyBooked) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvariantViolation)
}
