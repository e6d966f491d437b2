package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/cenkalti/backoff/v4"
)

type Options struct {
	MaxAttempts          int
	RetryInitialInterval time.Duration
	AttemptTimeout       time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:          3,
		RetryInitialInterval: 50 * time.Millisecond,
		AttemptTimeout:       5 * time.Second,
	}
}

// Service is the admission coordinator: the only writer that touches both
// the ledger and the registry.
type Service struct {
	Store     Store
	Cache     StatsCache
	Publisher EventPublisher
	Logger    *logger.Logger
	opts      Options
}

// NewService wires the coordinator. cache and publisher may be nil.
func NewService(store Store, cache StatsCache, publisher EventPublisher, log *logger.Logger, opts Options) *Service {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.RetryInitialInterval <= 0 {
		opts.RetryInitialInterval = DefaultOptions().RetryInitialInterval
	}
	return &Service{Store: store, Cache: cache, Publisher: publisher, Logger: log, opts: opts}
}

// Book admits userID to eventID. It returns the confirmed booking or one of
// ErrNotFound, ErrNoCapacity, ErrAlreadyBooked, ErrInvalidRequest or a
// *TransactionError.
func (s *Service) Book(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	if userID == "" || eventID == "" {
		return nil, fmt.Errorf("%w: user id and event id are required", ErrInvalidRequest)
	}

	var booked *models.Booking
	err := s.withRetry(ctx, "book", func(ctx context.Context) error {
		booked = nil
		if _, err := s.Store.Ledger().GetEvent(ctx, eventID); err != nil {
			return err
		}

		return s.Store.RunInTx(ctx, func(ctx context.Context, ledger Ledger, registry Registry) error {
			reservation, err := ledger.TryReserve(ctx, eventID)
			if err != nil {
				return err
			}
			if !reservation.Granted {
				return ErrNoCapacity
			}

			b, err := registry.Create(ctx, userID, eventID)
			if errors.Is(err, ErrDuplicateBooking) {
				return ErrAlreadyBooked
			}
			if err != nil {
				return err
			}

			s.Logger.Debug("LEDGER", fmt.Sprintf("Reserved spot on event %s, %d remaining", eventID, reservation.Remaining))
			booked = b
			return nil
		})
	})
	if err != nil {
		s.Logger.Info("BOOKING", fmt.Sprintf("Booking rejected for user %s on event %s: %v", userID, eventID, err))
		return nil, err
	}

	s.Logger.LogBooking("CREATE", booked.ID, fmt.Sprintf("user %s confirmed on event %s", userID, eventID))
	s.afterCommit(ctx, *booked, models.BookingEventCreated)
	return booked, nil
}

// Cancel moves an active booking to cancelled and gives its spot back to the
// ledger in the same transaction. Cancelling a cancelled booking is a no-op.
// Callers other than the owner get ErrBookingNotFound unless they are admins.
func (s *Service) Cancel(ctx context.Context, caller models.Identity, bookingID string) (*models.Booking, error) {
	if bookingID == "" || caller.UserID == "" {
		return nil, fmt.Errorf("%w: booking id and user id are required", ErrInvalidRequest)
	}

	var (
		cancelled *models.Booking
		released  bool
	)
	err := s.withRetry(ctx, "cancel", func(ctx context.Context) error {
		cancelled, released = nil, false

		return s.Store.RunInTx(ctx, func(ctx context.Context, ledger Ledger, registry Registry) error {
			current, err := registry.GetByID(ctx, bookingID)
			if err != nil {
				return err
			}
			if current.UserID != caller.UserID && !caller.IsAdmin() {
				return ErrBookingNotFound
			}

			transitioned, err := registry.Cancel(ctx, bookingID)
			if err != nil {
				return err
			}
			// Only confirmed bookings hold a spot in the ledger.
			if transitioned && current.Status == models.BookingConfirmed {
				remaining, err := ledger.Release(ctx, current.EventID)
				if err != nil {
					return err
				}
				s.Logger.Debug("LEDGER", fmt.Sprintf("Released spot on event %s, %d remaining", current.EventID, remaining))
				released = true
			}

			cancelled, err = registry.GetByID(ctx, bookingID)
			return err
		})
	})
	if err != nil {
		s.Logger.Info("BOOKING", fmt.Sprintf("Cancellation of %s failed: %v", bookingID, err))
		return nil, err
	}

	if released {
		s.Logger.LogBooking("CANCEL", bookingID, fmt.Sprintf("spot released on event %s", cancelled.EventID))
		s.afterCommit(ctx, *cancelled, models.BookingEventCancelled)
	} else {
		s.Logger.LogBooking("CANCEL", bookingID, "already cancelled")
	}
	return cancelled, nil
}

// withRetry runs fn with a per-attempt timeout and retries infrastructure
// failures with exponential backoff, at most MaxAttempts times in total.
func (s *Service) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := 0
	operation := func() error {
		attempts++

		attemptCtx := ctx
		if s.opts.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, s.opts.AttemptTimeout)
			defer cancel()
		}

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if isTerminal(err) {
			if errors.Is(err, ErrInvariantViolation) {
				s.Logger.Error("INVARIANT", fmt.Sprintf("%s: %v", op, err))
			}
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		s.Logger.Warn("BOOKING", fmt.Sprintf("%s attempt %d/%d failed: %v", op, attempts, s.opts.MaxAttempts, err))
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.RetryInitialInterval
	policy.MaxInterval = 20 * s.opts.RetryInitialInterval
	policy.MaxElapsedTime = 0
	policy.Reset()

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.opts.MaxAttempts-1)), ctx))
	if err == nil {
		return nil
	}
	if isTerminal(err) {
		return err
	}

	s.Logger.Error("BOOKING", fmt.Sprintf("%s gave up after %d attempt(s): %v", op, attempts, err))
	return &TransactionError{Op: op, Attempts: attempts, Err: err}
}

// afterCommit runs the side effects of a committed change. The change is
// already durable, so failures here are logged and swallowed.
func (s *Service) afterCommit(ctx context.Context, b models.Booking, eventType string) {
	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx, b.EventID); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Failed to invalidate stats for event %s: %v", b.EventID, err))
		}
	}

	if s.Publisher == nil {
		return
	}

	var err error
	switch eventType {
	case models.BookingEventCreated:
		err = s.Publisher.PublishBookingCreated(ctx, b)
	case models.BookingEventCancelled:
		err = s.Publisher.PublishBookingCancelled(ctx, b)
	}
	if err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for booking %s: %v", eventType, b.ID, err))
	}
}
