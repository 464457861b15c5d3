package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goOTP/otp"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OTPStore implements otp.Store on the otp_codes table.
type OTPStore struct {
	db *gorm.DB
}

var _ otp.Store = (*OTPStore)(nil)

// NewOTPStore returns an OTPStore over db.
func NewOTPStore(db *gorm.DB) *OTPStore {
	return &OTPStore{db: db}
}

// Insert supersedes the unused codes of (user, type) and writes rec in one
// transaction. The advisory lock keeps two concurrent inserts from both
// surviving as active.
func (s *OTPStore) Insert(ctx context.Context, rec *otp.Record) error {
	row := otpRow(rec)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", rec.UserID+":"+string(rec.Type)).Error; err != nil {
			return err
		}
		if err := tx.Model(&OTPCode{}).
			Where("user_id = ? AND type = ? AND used = ?", rec.UserID, string(rec.Type), false).
			Update("used", true).Error; err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *OTPStore) FindActive(ctx context.Context, userID string, typ otp.Type, now time.Time) (*otp.Record, error) {
	var row OTPCode
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND used = ? AND expires_at > ?", userID, string(typ), false, now).
		Order("created_at DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, otp.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
	}
	return row.record(), nil
}

// IncrementAttempts bumps the counter and locks the code at the cap in a single
// UPDATE. The right-hand side reads the pre-update attempts value.
func (s *OTPStore) IncrementAttempts(ctx context.Context, id string, maxAttempts int) (int, error) {
	var row OTPCode
	res := s.db.WithContext(ctx).Model(&row).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "attempts"}}}).
		Where("id = ? AND used = ?", id, false).
		Updates(map[string]interface{}{
			"attempts": gorm.Expr("attempts + 1"),
			"used":     gorm.Expr("attempts + 1 >= ?", maxAttempts),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, otp.ErrNotFound
	}
	return row.Attempts, nil
}

func (s *OTPStore) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&OTPCode{}).
		Where("id = ? AND used = ?", id, false).
		Updates(map[string]interface{}{"used": true, "used_at": at})
	if res.Error != nil {
		return false, fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *OTPStore) CreatedSince(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	var times []time.Time
	err := s.db.WithContext(ctx).Model(&OTPCode{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at ASC").
		Pluck("created_at", &times).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, err)
	}
	return times, nil
}

// DeleteExpired leaves rows younger than otp.Window in place: the hourly cap is
// counted from this table, so sweeping them would reset it.
func (s *OTPStore) DeleteExpired(ctx context.Context, now, usedBefore time.Time) (int64, error) {
	cutoff := now.Add(-otp.Window)
	res := s.db.WithContext(ctx).
		Where("(expires_at < ? OR (used = ? AND used_at < ?)) AND created_at < ?", now, true, usedBefore, cutoff).
		Delete(&OTPCode{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", otp.ErrStoreUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}

func otpRow(rec *otp.Record) OTPCode {
	return OTPCode{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Type:      string(rec.Type),
		CodeHash:  rec.CodeHash,
		Attempts:  rec.Attempts,
		Used:      rec.Used,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
		UsedAt:    rec.UsedAt,
	}
}

func (r OTPCode) record() *otp.Record {
	return &otp.Record{
		ID:        r.ID,
		UserID:    r.UserID,
		CodeHash:  r.CodeHash,
		Type:      otp.Type(r.Type),
		Attempts:  r.Attempts,
		Used:      r.Used,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
		UsedAt:    r.UsedAt,
	}
}
