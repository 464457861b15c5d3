package session

import (
	"time"

	"github.com/MrEthical07/goOTP/token"
)

// Session is one device-scoped login.
type Session struct {
	ID     string
	UserID string
	// Email and Role snapshot the claims used when re-minting access tokens.
	Email string
	Role  string
	// AccessToken is the last access token issued for the session. Informational.
	AccessToken         string
	RefreshTokenHash    string
	PreviousRefreshHash string
	UserAgent           string
	IPAddress           string
	IsValid             bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ExpiresAt           time.Time
}

// Active reports whether the session can authorize requests at now.
func (s *Session) Active(now time.Time) bool {
	return s.IsValid && now.Before(s.ExpiresAt)
}

// Subject is the identity a session is opened for.
type Subject struct {
	UserID string
	Email  string
	Role   string
}

// Device describes the client that opened the session. Both fields are optional.
type Device struct {
	UserAgent string
	IPAddress string
}

// Created is the result of opening a session. Tokens.RefreshToken is the only
// place the plaintext refresh token ever appears.
type Created struct {
	Session *Session
	Tokens  token.Pair
}

// Status is the outcome of a successful session validation.
type Status struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	IsValid   bool      `json:"isValid"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Rotation carries the fields a refresh overwrites.
type Rotation struct {
	AccessToken string
	RefreshHash string
	Email       string
	Role        string
	At          time.Time
}
