package otp

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means no record matched; callers treat it as "no valid OTP".
	ErrNotFound = errors.New("otp record not found")
	// ErrStoreUnavailable wraps backend failures. It is transient, never a policy outcome.
	ErrStoreUnavailable = errors.New("otp store unavailable")
)

// History exposes code creation times for rate limiting.
type History interface {
	// CreatedSince returns creation times of the user's codes (all types)
	// at or after since, oldest first.
	CreatedSince(ctx context.Context, userID string, since time.Time) ([]time.Time, error)
}

// Store persists OTP records. Implementations must make each method atomic with
// respect to concurrent calls on the same user.
type Store interface {
	History

	// Insert persists rec and marks every other unused record of
	// (rec.UserID, rec.Type) as used.
	Insert(ctx context.Context, rec *Record) error

	// FindActive returns the newest unused record of (userID, typ) that expires
	// after now, or ErrNotFound.
	FindActive(ctx context.Context, userID string, typ Type, now time.Time) (*Record, error)

	// IncrementAttempts adds one failed attempt to an unused record and returns
	// the new count. Reaching maxAttempts marks the record used in the same step.
	// A missing or already used record yields ErrNotFound.
	IncrementAttempts(ctx context.Context, id string, maxAttempts int) (int, error)

	// MarkUsed sets used and usedAt if the record is still unused and reports
	// whether this call made the transition.
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)

	// DeleteExpired removes records that expired before now and used records
	// whose usedAt is before usedBefore. Records created within Window of now
	// are kept because CreatedSince still counts them. It returns the number
	// removed.
	DeleteExpired(ctx context.Context, now, usedBefore time.Time) (int64, error)
}
