package otp

import (
	"fmt"
	"time"
)

// Type scopes a code to the action it authorizes.
type Type string

const (
	TypeLogin           Type = "LOGIN"
	TypeVerifyEmail     Type = "VERIFY_EMAIL"
	TypeAccountRecovery Type = "ACCOUNT_RECOVERY"
)

// Valid reports whether t is one of the known code types.
func (t Type) Valid() bool {
	switch t {
	case TypeLogin, TypeVerifyEmail, TypeAccountRecovery:
		return true
	}
	return false
}

// ParseType maps a wire value to a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown otp type %q", s)
	}
	return t, nil
}

// Record is a stored one-time code. CodeHash is the hex SHA-256 of the code and
// the server secret; the plaintext is never kept.
type Record struct {
	ID        string
	UserID    string
	CodeHash  string
	Type      Type
	Attempts  int
	Used      bool
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Active reports whether r can still be verified at now.
func (r *Record) Active(now time.Time) bool {
	return r != nil && !r.Used && r.ExpiresAt.After(now)
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	CanRequest  bool   `json:"canRequest"`
	WaitSeconds int    `json:"waitSeconds,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Reason classifies a failed verification.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNotFound         Reason = "not_found"
	ReasonAttemptsExceeded Reason = "attempts_exceeded"
	ReasonMismatch         Reason = "mismatch"
)

// Result is the outcome of a verification. Error holds the user-facing message.
type Result struct {
	Success           bool   `json:"success"`
	Error             string `json:"error,omitempty"`
	Reason            Reason `json:"-"`
	RemainingAttempts int    `json:"-"`
}

const (
	msgNoValidOTP       = "No valid OTP found. Please request a new code."
	msgAttemptsExceeded = "Maximum verification attempts exceeded. Please request a new code."
	msgHourlyCap        = "Too many OTP requests. Please try again in an hour."
)

func cooldownMessage(wait int) string {
	return fmt.Sprintf("Please wait %d seconds before requesting a new code", wait)
}

func mismatchMessage(remaining int) string {
	noun := "attempts"
	if remaining == 1 {
		noun = "attempt"
	}
	return fmt.Sprintf("Invalid OTP code. %d %s remaining.", remaining, noun)
}
