package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newHSManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodHS256,
		Secret:        testSecret,
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestCreateAndParseRoundTripsClaims(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	token, exp, err := m.CreateAccess("u1", "a@example.com", "STUDENT", "s1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if !exp.Equal(clock.now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UID != "u1" || claims.Email != "a@example.com" || claims.Role != "STUDENT" || claims.SID != "s1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.IssuedAt == nil || !claims.IssuedAt.Time.Equal(clock.now) {
		t.Fatalf("unexpected iat %v", claims.IssuedAt)
	}
}

func TestParseAccessExpiresWithClock(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newHSManager(t, clock)

	token, _, err := m.CreateAccess("u1", "a@example.com", "USER", "s1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	clock.now = clock.now.Add(14 * time.Minute)
	if _, err := m.ParseAccess(token); err != nil {
		t.Fatalf("expected token valid before expiry: %v", err)
	}

	clock.now = clock.now.Add(2 * time.Minute)
	_, err = m.ParseAccess(token)
	if err == nil {
		t.Fatal("expected expired token to fail")
	}
	if !IsExpired(err) {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	claims := AccessClaims{UID: "u1", SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(clock.now),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}

	none, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := m.ParseAccess(none); err == nil {
		t.Fatal("expected alg=none to be rejected")
	}
}

func TestParseAccessRejectsTamperedSignature(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	token, _, err := m.CreateAccess("u1", "a@example.com", "USER", "s1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	other, err := NewManager(Config{AccessTTL: time.Minute, Secret: []byte(strings.Repeat("x", 32)), Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := other.ParseAccess(token); err == nil {
		t.Fatal("expected foreign secret to fail verification")
	}
	if IsExpired(func() error { _, err := other.ParseAccess(token); return err }()) {
		t.Fatal("signature failure must not be reported as expiry")
	}

	if _, err := m.ParseAccess(token[:len(token)-2] + "xx"); err == nil {
		t.Fatal("expected tampered token to fail")
	}
}

func TestParseAccessIssuerAndAudience(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, err := NewManager(Config{
		AccessTTL: time.Minute,
		Secret:    testSecret,
		Issuer:    "goOTP",
		Audience:  "api",
		Leeway:    30 * time.Second,
		Now:       clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, _, err := m.CreateAccess("u", "e", "USER", "s1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(token); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	wrongIssuer := AccessClaims{UID: "u", SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(clock.now),
	}}
	bad, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, wrongIssuer).SignedString(testSecret)
	if _, err := m.ParseAccess(bad); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := wrongIssuer
	wrongAudience.Issuer = "goOTP"
	wrongAudience.Audience = gjwt.ClaimStrings{"other-api"}
	bad, _ = gjwt.NewWithClaims(gjwt.SigningMethodHS256, wrongAudience).SignedString(testSecret)
	if _, err := m.ParseAccess(bad); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
}

func TestParseAccessRequiresSessionClaim(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	claims := AccessClaims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(clock.now),
	}}
	token, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected token without sid to fail")
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []Config{
		{AccessTTL: 0, Secret: testSecret},
		{AccessTTL: time.Minute},
		{AccessTTL: time.Minute, Secret: []byte("short")},
		{AccessTTL: time.Minute, Secret: testSecret, SigningMethod: "RS256"},
		{AccessTTL: time.Minute, Secret: testSecret, Leeway: time.Hour},
		{AccessTTL: time.Minute, SigningMethod: MethodEdDSA},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}

func TestEdDSARoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEdDSA, PrivateKey: priv, PublicKey: pub, KeyID: "k1"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, err := m.CreateAccess("u1", "a@example.com", "ADMIN", "s1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Role != "ADMIN" {
		t.Fatalf("unexpected role %q", claims.Role)
	}
}
