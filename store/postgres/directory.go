package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Directory implements goOTP.Directory on the users table.
type Directory struct {
	db  *gorm.DB
	now func() time.Time
}

var _ goOTP.Directory = (*Directory)(nil)

// NewDirectory returns a Directory over db.
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db, now: time.Now}
}

// FindOrCreateByEmail inserts an active USER row unless the email exists, then
// reads whichever row won.
func (d *Directory) FindOrCreateByEmail(ctx context.Context, email string) (*goOTP.User, error) {
	email, err := goOTP.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	now := d.now().UTC()
	row := UserRecord{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      string(goOTP.RoleUser),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = d.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", goOTP.ErrDirectoryUnavailable, err)
	}
	return d.take(ctx, "email = ?", email)
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (*goOTP.User, error) {
	email, err := goOTP.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return d.take(ctx, "email = ?", email)
}

func (d *Directory) FindByID(ctx context.Context, id string) (*goOTP.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, goOTP.ErrUserNotFound
	}
	return d.take(ctx, "id = ?", id)
}

func (d *Directory) RecordLogin(ctx context.Context, id string, at time.Time) error {
	return d.update(ctx, id, map[string]interface{}{
		"last_login_at":  at,
		"email_verified": true,
		"updated_at":     d.now().UTC(),
	})
}

// SetActive activates or deactivates a user.
func (d *Directory) SetActive(ctx context.Context, id string, active bool) error {
	return d.update(ctx, id, map[string]interface{}{"is_active": active, "updated_at": d.now().UTC()})
}

// SetRole changes a user's role.
func (d *Directory) SetRole(ctx context.Context, id string, role goOTP.Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	return d.update(ctx, id, map[string]interface{}{"role": string(role), "updated_at": d.now().UTC()})
}

func (d *Directory) update(ctx context.Context, id string, fields map[string]interface{}) error {
	if _, err := uuid.Parse(id); err != nil {
		return goOTP.ErrUserNotFound
	}
	res := d.db.WithContext(ctx).Model(&UserRecord{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", goOTP.ErrDirectoryUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return goOTP.ErrUserNotFound
	}
	return nil
}

func (d *Directory) take(ctx context.Context, query string, arg string) (*goOTP.User, error) {
	var row UserRecord
	if err := d.db.WithContext(ctx).Where(query, arg).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, goOTP.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", goOTP.ErrDirectoryUnavailable, err)
	}
	return &goOTP.User{
		ID:            row.ID,
		Email:         row.Email,
		Role:          goOTP.Role(row.Role),
		Active:        row.IsActive,
		EmailVerified: row.EmailVerified,
		LastLoginAt:   row.LastLoginAt,
	}, nil
}
