package token

import (
	"time"

	"github.com/MrEthical07/goOTP/jwt"
	"github.com/MrEthical07/goOTP/refresh"
	"go.uber.org/zap"
)

// Subject identifies who an access token is minted for.
type Subject struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
}

// Pair is a freshly minted access/refresh token pair. ExpiresAt is the access
// token expiry.
type Pair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Service mints and verifies tokens.
type Service struct {
	access *jwt.Manager
	logger *zap.Logger
}

// NewService wraps an access-token manager. A nil logger disables debug output.
func NewService(access *jwt.Manager, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{access: access, logger: logger}
}

// GenerateTokens signs an access token for sub and draws a new refresh token.
// It returns the pair and the hash to persist for the refresh token.
func (s *Service) GenerateTokens(sub Subject) (Pair, string, error) {
	access, expiresAt, err := s.access.CreateAccess(sub.UserID, sub.Email, sub.Role, sub.SessionID)
	if err != nil {
		return Pair{}, "", err
	}
	plain, hash, err := refresh.New()
	if err != nil {
		return Pair{}, "", err
	}
	return Pair{
		AccessToken:  access,
		RefreshToken: plain,
		ExpiresAt:    expiresAt,
	}, hash, nil
}

// VerifyAccessToken returns the claims of a valid token and nil otherwise.
// Callers see a uniform "unauthenticated" outcome; the reason is logged at debug.
func (s *Service) VerifyAccessToken(token string) *jwt.AccessClaims {
	if token == "" {
		return nil
	}
	claims, err := s.access.ParseAccess(token)
	if err != nil {
		if jwt.IsExpired(err) {
			s.logger.Debug("access token expired")
		} else {
			s.logger.Debug("access token invalid", zap.Error(err))
		}
		return nil
	}
	return claims
}

// AccessTTL reports the configured access-token lifetime.
func (s *Service) AccessTTL() time.Duration {
	return s.access.TTL()
}
