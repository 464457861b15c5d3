package goOTP

import "time"

// SecurityReport summarizes the effective security posture of an Engine. The
// server logs it once at startup.
type SecurityReport struct {
	SigningAlgorithm      string
	AccessTTL             time.Duration
	SessionTTL            time.Duration
	OTPLength             int
	OTPExpiry             time.Duration
	OTPMaxAttempts        int
	OTPCooldown           time.Duration
	OTPMaxPerHour         int
	SeparateOTPSecret     bool
	RateLimitBackend      RateLimitBackend
	RefreshReuseRevokes   bool
	SubjectReloadOnRotate bool
	AuditEnabled          bool
	DeliveryConfigured    bool
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config
	return SecurityReport{
		SigningAlgorithm:      string(c.signingMethod()),
		AccessTTL:             c.JWT.AccessTTL,
		SessionTTL:            c.Session.TTL,
		OTPLength:             c.OTP.Length,
		OTPExpiry:             time.Duration(c.OTP.ExpiryMinutes) * time.Minute,
		OTPMaxAttempts:        c.OTP.MaxAttempts,
		OTPCooldown:           time.Duration(c.OTP.CooldownSeconds) * time.Second,
		OTPMaxPerHour:         c.OTP.MaxPerHour,
		SeparateOTPSecret:     c.OTP.Secret != "",
		RateLimitBackend:      c.RateLimit.Backend,
		RefreshReuseRevokes:   c.Session.RevokeOnReuse,
		SubjectReloadOnRotate: c.Session.ReloadSubject,
		AuditEnabled:          e.audit != nil,
		DeliveryConfigured:    e.sender != nil,
	}
}
