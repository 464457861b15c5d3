package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goOTP/session"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionStore implements session.Store on the sessions table.
type SessionStore struct {
	db *gorm.DB
}

var _ session.Store = (*SessionStore)(nil)

// NewSessionStore returns a SessionStore over db.
func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, sess *session.Session) error {
	if !sess.ExpiresAt.After(sess.CreatedAt) {
		return errors.New("session expiry must be after creation")
	}
	row := sessionRow(sess)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("session %s already exists", sess.ID)
		}
		return fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, session.ErrNotFound
	}
	return s.take(ctx, "id = ?", id)
}

func (s *SessionStore) FindByRefreshHash(ctx context.Context, hash string) (*session.Session, error) {
	return s.take(ctx, "refresh_token_hash = ?", hash)
}

func (s *SessionStore) FindByPreviousHash(ctx context.Context, hash string) (*session.Session, error) {
	if hash == "" {
		return nil, session.ErrNotFound
	}
	return s.take(ctx, "previous_refresh_token_hash = ?", hash)
}

func (s *SessionStore) take(ctx context.Context, query string, arg string) (*session.Session, error) {
	var row SessionRecord
	if err := s.db.WithContext(ctx).Where(query, arg).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return row.session(), nil
}

// Rotate swaps the refresh hash only while it still equals currentHash and the
// session is live. Losing the race leaves RowsAffected at zero.
func (s *SessionStore) Rotate(ctx context.Context, id, currentHash string, next session.Rotation) (bool, error) {
	res := s.db.WithContext(ctx).Model(&SessionRecord{}).
		Where("id = ? AND refresh_token_hash = ? AND is_valid = ? AND expires_at > ?", id, currentHash, true, next.At).
		Updates(map[string]interface{}{
			"refresh_token_hash":          next.RefreshHash,
			"previous_refresh_token_hash": currentHash,
			"access_token":                next.AccessToken,
			"email":                       next.Email,
			"role":                        next.Role,
			"updated_at":                  next.At,
		})
	if res.Error != nil {
		return false, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *SessionStore) Invalidate(ctx context.Context, id string, at time.Time) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	n, err := s.revoke(ctx, s.db.Where("id = ?", id), at)
	return n == 1, err
}

func (s *SessionStore) InvalidateAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	return s.revoke(ctx, s.db.Where("user_id = ?", userID), at)
}

func (s *SessionStore) revoke(ctx context.Context, scope *gorm.DB, at time.Time) (int64, error) {
	res := scope.WithContext(ctx).Model(&SessionRecord{}).
		Where("is_valid = ?", true).
		Updates(map[string]interface{}{"is_valid": false, "updated_at": at})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *SessionStore) ListForUser(ctx context.Context, userID string) ([]*session.Session, error) {
	var rows []SessionRecord
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	out := make([]*session.Session, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].session())
	}
	return out, nil
}

func (s *SessionStore) DeleteExpiredOrInvalid(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("is_valid = ? OR expires_at <= ?", false, now).
		Delete(&SessionRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}

// Ping checks the database connection.
func (s *SessionStore) Ping(ctx context.Context) error {
	if err := ping(ctx, s.db); err != nil {
		return fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}
	return nil
}

func sessionRow(sess *session.Session) SessionRecord {
	return SessionRecord{
		ID:                       sess.ID,
		UserID:                   sess.UserID,
		Email:                    sess.Email,
		Role:                     sess.Role,
		AccessToken:              sess.AccessToken,
		RefreshTokenHash:         sess.RefreshTokenHash,
		PreviousRefreshTokenHash: sess.PreviousRefreshHash,
		UserAgent:                sess.UserAgent,
		IPAddress:                sess.IPAddress,
		IsValid:                  sess.IsValid,
		CreatedAt:                sess.CreatedAt,
		UpdatedAt:                sess.UpdatedAt,
		ExpiresAt:                sess.ExpiresAt,
	}
}

func (r SessionRecord) session() *session.Session {
	return &session.Session{
		ID:                  r.ID,
		UserID:              r.UserID,
		Email:               r.Email,
		Role:                r.Role,
		AccessToken:         r.AccessToken,
		RefreshTokenHash:    r.RefreshTokenHash,
		PreviousRefreshHash: r.PreviousRefreshTokenHash,
		UserAgent:           r.UserAgent,
		IPAddress:           r.IPAddress,
		IsValid:             r.IsValid,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		ExpiresAt:           r.ExpiresAt,
	}
}
