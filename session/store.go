package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no session matches the lookup.
	ErrNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps backend failures. Callers should treat it as transient.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrRefreshReuse reports that an already-rotated refresh token was presented.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrSubjectRejected is returned by a SubjectResolver for a missing or inactive user.
	ErrSubjectRejected = errors.New("session subject rejected")
)

// Store persists sessions. Implementations must make Rotate an atomic
// compare-and-swap.
type Store interface {
	Create(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// FindByRefreshHash returns the record whose current refresh hash is hash,
	// in any state.
	FindByRefreshHash(ctx context.Context, hash string) (*Session, error)
	// FindByPreviousHash returns the record that was rotated away from hash.
	FindByPreviousHash(ctx context.Context, hash string) (*Session, error)
	// Rotate replaces the refresh hash of id only when it still equals
	// currentHash and the record is valid and unexpired at next.At. It reports
	// whether the swap happened.
	Rotate(ctx context.Context, id, currentHash string, next Rotation) (bool, error)
	// Invalidate flips IsValid off. It reports whether a valid record changed.
	Invalidate(ctx context.Context, id string, at time.Time) (bool, error)
	// InvalidateAllForUser revokes every valid session of userID and returns how many changed.
	InvalidateAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	// ListForUser returns every stored session of userID in any state.
	ListForUser(ctx context.Context, userID string) ([]*Session, error)
	// DeleteExpiredOrInvalid purges revoked records and records expired at now.
	DeleteExpiredOrInvalid(ctx context.Context, now time.Time) (int64, error)
}

// SubjectResolver reloads the claims of a user at refresh time. It returns an
// error wrapping ErrSubjectRejected when the user may no longer refresh.
type SubjectResolver interface {
	ResolveSubject(ctx context.Context, userID string) (Subject, error)
}
