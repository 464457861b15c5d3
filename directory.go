package goOTP

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/MrEthical07/goOTP/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Role is a user's authorization role, carried in access tokens.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleMentor     Role = "MENTOR"
	RoleStudent    Role = "STUDENT"
	RoleAlumni     Role = "ALUMNI"
	RoleUser       Role = "USER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleMentor, RoleStudent, RoleAlumni, RoleUser:
		return true
	}
	return false
}

// User is the directory view of an account.
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Role          Role       `json:"role"`
	Active        bool       `json:"isActive"`
	EmailVerified bool       `json:"emailVerified"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
}

// Directory resolves users by email. Implementations return ErrUserNotFound for
// unknown users and wrap backend failures in ErrDirectoryUnavailable.
type Directory interface {
	// FindOrCreateByEmail returns the user for email, provisioning an active
	// RoleUser account on first sight.
	FindOrCreateByEmail(ctx context.Context, email string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	// RecordLogin stamps LastLoginAt and marks the email verified.
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

// NormalizeEmail trims and lowercases a bare address. It rejects display-name
// forms and anything net/mail cannot parse.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > 254 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// directoryResolver lets the session manager reload claims from a Directory.
type directoryResolver struct {
	dir Directory
}

func (r directoryResolver) ResolveSubject(ctx context.Context, userID string) (session.Subject, error) {
	u, err := r.dir.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return session.Subject{}, fmt.Errorf("%w: %v", session.ErrSubjectRejected, err)
		}
		return session.Subject{}, err
	}
	if !u.Active {
		return session.Subject{}, fmt.Errorf("%w: %v", session.ErrSubjectRejected, ErrUserInactive)
	}
	return session.Subject{UserID: u.ID, Email: u.Email, Role: string(u.Role)}, nil
}

// provisionUserScript creates the user unless the email is already indexed and
// returns the id either way.
// KEYS[1] = email index, KEYS[2] = new user hash
// ARGV: id, email, role, created_ms
const provisionUserScript = `
local existing = redis.call("GET", KEYS[1])
if existing then
  return existing
end
redis.call("HSET", KEYS[2],
  "email", ARGV[2], "role", ARGV[3], "active", "1",
  "email_verified", "0", "last_login_at", "", "created_at", ARGV[4])
redis.call("SET", KEYS[1], ARGV[1])
return ARGV[1]
`

var provisionUserLua = redis.NewScript(provisionUserScript)

// RedisDirectory keeps users in Redis hashes with an email index. It backs
// deployments that run without a relational database.
type RedisDirectory struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisDirectory returns a Redis-backed Directory.
func NewRedisDirectory(client redis.UniversalClient, prefix string) *RedisDirectory {
	if prefix == "" {
		prefix = "usr"
	}
	return &RedisDirectory{redis: client, prefix: prefix, now: time.Now}
}

func (d *RedisDirectory) userKey(id string) string { return d.prefix + ":id:" + id }

func (d *RedisDirectory) emailKey(email string) string { return d.prefix + ":email:" + email }

func (d *RedisDirectory) FindOrCreateByEmail(ctx context.Context, email string) (*User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	candidate := uuid.NewString()
	id, err := provisionUserLua.Run(ctx, d.redis,
		[]string{d.emailKey(email), d.userKey(candidate)},
		candidate, email, string(RoleUser), d.now().UnixMilli(),
	).Text()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	return d.FindByID(ctx, id)
}

func (d *RedisDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	id, err := d.redis.Get(ctx, d.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	return d.FindByID(ctx, id)
}

func (d *RedisDirectory) FindByID(ctx context.Context, id string) (*User, error) {
	f, err := d.redis.HGetAll(ctx, d.userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if len(f) == 0 {
		return nil, ErrUserNotFound
	}
	u := &User{
		ID:            id,
		Email:         f["email"],
		Role:          Role(f["role"]),
		Active:        f["active"] == "1",
		EmailVerified: f["email_verified"] == "1",
	}
	if raw := f["last_login_at"]; raw != "" {
		var ms int64
		if _, err := fmt.Sscan(raw, &ms); err == nil {
			at := time.UnixMilli(ms)
			u.LastLoginAt = &at
		}
	}
	return u, nil
}

func (d *RedisDirectory) RecordLogin(ctx context.Context, id string, at time.Time) error {
	n, err := d.redis.Exists(ctx, d.userKey(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	if err := d.redis.HSet(ctx, d.userKey(id), "last_login_at", at.UnixMilli(), "email_verified", "1").Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	return nil
}

// SetActive activates or deactivates a user.
func (d *RedisDirectory) SetActive(ctx context.Context, id string, active bool) error {
	flag := "0"
	if active {
		flag = "1"
	}
	n, err := d.redis.Exists(ctx, d.userKey(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	if err := d.redis.HSet(ctx, d.userKey(id), "active", flag).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	return nil
}

// SetRole changes a user's role.
func (d *RedisDirectory) SetRole(ctx context.Context, id string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	n, err := d.redis.Exists(ctx, d.userKey(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	if err := d.redis.HSet(ctx, d.userKey(id), "role", string(role)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	return nil
}
