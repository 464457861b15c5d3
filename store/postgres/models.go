package postgres

import "time"

// OTPCode is a row of otp_codes. Only the keyed hash of the code is stored.
type OTPCode struct {
	ID        string     `gorm:"type:uuid;primaryKey"`
	UserID    string     `gorm:"type:varchar(64);not null;index:idx_otp_active,priority:1;index:idx_otp_history,priority:1"`
	Type      string     `gorm:"type:varchar(32);not null;index:idx_otp_active,priority:2"`
	CodeHash  string     `gorm:"type:varchar(64);not null"`
	Attempts  int        `gorm:"not null"`
	Used      bool       `gorm:"not null;index:idx_otp_active,priority:3"`
	CreatedAt time.Time  `gorm:"type:timestamptz;not null;index:idx_otp_history,priority:2"`
	ExpiresAt time.Time  `gorm:"type:timestamptz;not null;index:idx_otp_active,priority:4"`
	UsedAt    *time.Time `gorm:"type:timestamptz"`
}

func (OTPCode) TableName() string { return "otp_codes" }

// SessionRecord is a row of sessions.
type SessionRecord struct {
	ID                       string    `gorm:"type:uuid;primaryKey"`
	UserID                   string    `gorm:"type:varchar(64);not null;index"`
	Email                    string    `gorm:"type:varchar(254);not null"`
	Role                     string    `gorm:"type:varchar(32);not null"`
	AccessToken              string    `gorm:"type:text;not null"`
	RefreshTokenHash         string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	PreviousRefreshTokenHash string    `gorm:"type:varchar(64);not null;index"`
	UserAgent                string    `gorm:"type:text;not null"`
	IPAddress                string    `gorm:"type:varchar(64);not null"`
	IsValid                  bool      `gorm:"not null"`
	CreatedAt                time.Time `gorm:"type:timestamptz;not null"`
	UpdatedAt                time.Time `gorm:"type:timestamptz;not null"`
	ExpiresAt                time.Time `gorm:"type:timestamptz;not null;index"`
}

func (SessionRecord) TableName() string { return "sessions" }

// UserRecord is a row of users.
type UserRecord struct {
	ID            string     `gorm:"type:uuid;primaryKey"`
	Email         string     `gorm:"type:varchar(254);not null;uniqueIndex"`
	Role          string     `gorm:"type:varchar(32);not null"`
	IsActive      bool       `gorm:"not null"`
	EmailVerified bool       `gorm:"not null"`
	LastLoginAt   *time.Time `gorm:"type:timestamptz"`
	CreatedAt     time.Time  `gorm:"type:timestamptz;not null"`
	UpdatedAt     time.Time  `gorm:"type:timestamptz;not null"`
}

func (UserRecord) TableName() string { return "users" }
