package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod names the algorithm used for access tokens.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256 over the shared secret. Default.
	MethodHS256 SigningMethod = "HS256"
	// MethodHS384 signs with HMAC-SHA384.
	MethodHS384 SigningMethod = "HS384"
	// MethodHS512 signs with HMAC-SHA512.
	MethodHS512 SigningMethod = "HS512"
	// MethodEdDSA signs with an Ed25519 key pair.
	MethodEdDSA SigningMethod = "EdDSA"
)

// minSecretLen is the shortest HMAC secret NewManager accepts.
const minSecretLen = 32

// ErrTokenExpired is returned (wrapped) by ParseAccess for tokens past exp.
var ErrTokenExpired = jwt.ErrTokenExpired

// Config holds access-token issuance and validation settings.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	// Secret is the HMAC key for the HS* methods.
	Secret []byte
	// PrivateKey and PublicKey are Ed25519 keys (raw or PEM) for MethodEdDSA.
	PrivateKey   []byte
	PublicKey    []byte
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	KeyID        string
	// Now overrides the clock used for iat/exp and validation.
	Now func() time.Time
}

// Manager issues and verifies access tokens.
//
// Manager is safe for concurrent use; its configuration is fixed at construction.
type Manager struct {
	config Config
}

// AccessClaims is the access-token payload.
type AccessClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Role  string `json:"role"`
	SID   string `json:"sid"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256, MethodHS384, MethodHS512:
		if len(cfg.Secret) == 0 {
			return nil, errors.New("hmac signing requires a secret")
		}
		if len(cfg.Secret) < minSecretLen {
			return nil, fmt.Errorf("hmac secret must be at least %d bytes", minSecretLen)
		}
	case MethodEdDSA:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	return &Manager{config: cfg}, nil
}

// TTL returns the configured access-token lifetime.
func (j *Manager) TTL() time.Duration {
	return j.config.AccessTTL
}

// CreateAccess signs a token for the given subject and session. It returns the
// token and its expiry.
func (j *Manager) CreateAccess(uid, email, role, sid string) (string, time.Time, error) {
	now := j.config.Now()
	expiresAt := now.Add(j.config.AccessTTL)

	claims := AccessClaims{
		UID:   uid,
		Email: email,
		Role:  role,
		SID:   sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return "", time.Time{}, err
	}

	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseAccess verifies signature, algorithm, expiry and the optional issuer and
// audience. Expired tokens yield an error matching ErrTokenExpired.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithTimeFunc(j.config.Now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return j.getVerifyKey()
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UID == "" || claims.SID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil {
		maxAllowed := j.config.Now().Add(j.config.MaxFutureIAT)
		if claims.IssuedAt.Time.After(maxAllowed) {
			return nil, errors.New("token iat too far in the future")
		}
	}

	return claims, nil
}

// IsExpired reports whether err came from an expired token.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS384:
		return jwt.SigningMethodHS384
	case MethodHS512:
		return jwt.SigningMethodHS512
	case MethodEdDSA:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	if j.config.SigningMethod == MethodEdDSA {
		return parseEdPrivateKey(j.config.PrivateKey)
	}
	return j.config.Secret, nil
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	if j.config.SigningMethod != MethodEdDSA {
		return j.config.Secret, nil
	}
	if len(j.config.PublicKey) > 0 {
		return parseEdPublicKey(j.config.PublicKey)
	}
	priv, err := parseEdPrivateKey(j.config.PrivateKey)
	if err != nil {
		return nil, err
	}
	return priv.Public(), nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
