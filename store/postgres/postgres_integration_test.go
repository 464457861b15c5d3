//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/otp"
	"github.com/MrEthical07/goOTP/session"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("GOOTP_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("GOOTP_TEST_DATABASE_DSN not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, Options{DSN: dsn, MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	for _, table := range []string{"otp_codes", "sessions", "users"} {
		if err := db.Exec("TRUNCATE " + table).Error; err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func newRecord(userID string, typ otp.Type, created time.Time) *otp.Record {
	return &otp.Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		CodeHash:  "hash-" + uuid.NewString()[:8],
		Type:      typ,
		CreatedAt: created,
		ExpiresAt: created.Add(10 * time.Minute),
	}
}

func TestOTPStoreSingleActiveCode(t *testing.T) {
	db := openTestDB(t)
	store := NewOTPStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	first := newRecord("u1", otp.TypeLogin, now.Add(-2*time.Minute))
	second := newRecord("u1", otp.TypeLogin, now.Add(-time.Minute))
	other := newRecord("u1", otp.TypeVerifyEmail, now.Add(-time.Minute))
	for _, rec := range []*otp.Record{first, second, other} {
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	active, err := store.FindActive(ctx, "u1", otp.TypeLogin, now)
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if active.ID != second.ID {
		t.Fatalf("expected newest code active, got %s", active.ID)
	}
	if _, err := store.FindActive(ctx, "u1", otp.TypeVerifyEmail, now); err != nil {
		t.Fatalf("other type should stay active: %v", err)
	}

	times, err := store.CreatedSince(ctx, "u1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CreatedSince: %v", err)
	}
	if len(times) != 3 {
		t.Fatalf("expected 3 creation times, got %d", len(times))
	}
}

func TestOTPStoreAttemptsLockAtCap(t *testing.T) {
	db := openTestDB(t)
	store := NewOTPStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := newRecord("u2", otp.TypeLogin, now)
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	for want := 1; want <= 3; want++ {
		got, err := store.IncrementAttempts(ctx, rec.ID, 3)
		if err != nil {
			t.Fatalf("IncrementAttempts #%d: %v", want, err)
		}
		if got != want {
			t.Fatalf("attempts = %d, want %d", got, want)
		}
	}
	if _, err := store.IncrementAttempts(ctx, rec.ID, 3); !errors.Is(err, otp.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after cap, got %v", err)
	}
	if _, err := store.FindActive(ctx, "u2", otp.TypeLogin, now); !errors.Is(err, otp.ErrNotFound) {
		t.Fatalf("locked code must not be active, got %v", err)
	}
}

func TestOTPStoreMarkUsedOnce(t *testing.T) {
	db := openTestDB(t)
	store := NewOTPStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := newRecord("u3", otp.TypeLogin, now)
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.MarkUsed(ctx, rec.ID, now)
			if err != nil {
				t.Errorf("MarkUsed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one MarkUsed winner, got %d", winners)
	}

	n, err := store.DeleteExpired(ctx, now, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 0 {
		t.Fatalf("code inside the rate window must survive, got %d deleted", n)
	}

	later := now.Add(otp.Window + time.Minute)
	n, err = store.DeleteExpired(ctx, later, later)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected stale used code deleted, got %d", n)
	}
}

func TestOTPStoreSweepKeepsHourlyHistory(t *testing.T) {
	db := openTestDB(t)
	store := NewOTPStore(db)
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Millisecond).Add(-2 * time.Hour)

	for i := 0; i < 5; i++ {
		if err := store.Insert(ctx, newRecord("u4", otp.TypeLogin, start.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	// Every code has expired by the time the janitor runs.
	sweep := start.Add(15 * time.Minute)
	if n, err := store.DeleteExpired(ctx, sweep, sweep); err != nil || n != 0 {
		t.Fatalf("DeleteExpired = %d, %v; want 0", n, err)
	}
	times, err := store.CreatedSince(ctx, "u4", sweep.Add(-otp.Window))
	if err != nil {
		t.Fatalf("CreatedSince: %v", err)
	}
	if len(times) != 5 {
		t.Fatalf("hourly history lost after sweep: %d entries", len(times))
	}
	limiter := otp.NewHistoryLimiter(store, otp.Policy{Cooldown: time.Minute, MaxPerHour: 5})
	if d, err := limiter.Allow(ctx, "u4", sweep); err != nil || d.CanRequest {
		t.Fatalf("hourly cap must hold after sweep: %+v %v", d, err)
	}

	// The boundary itself still counts.
	if times, _ := store.CreatedSince(ctx, "u4", start); len(times) != 5 {
		t.Fatalf("CreatedSince must include since, got %d", len(times))
	}

	sweep = start.Add(otp.Window + time.Minute)
	if n, err := store.DeleteExpired(ctx, sweep, sweep); err != nil || n != 1 {
		t.Fatalf("DeleteExpired = %d, %v; want 1", n, err)
	}
}

func newSession(userID string, now time.Time) *session.Session {
	return &session.Session{
		ID:               uuid.NewString(),
		UserID:           userID,
		Email:            userID + "@example.com",
		Role:             "USER",
		AccessToken:      "access",
		RefreshTokenHash: uuid.NewString(),
		IsValid:          true,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        now.Add(time.Hour),
	}
}

func TestSessionStoreRotateCAS(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	sess := newSession("u4", now)
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}

	next := session.Rotation{AccessToken: "a2", RefreshHash: "h2", Email: sess.Email, Role: "ADMIN", At: now}
	ok, err := store.Rotate(ctx, sess.ID, sess.RefreshTokenHash, next)
	if err != nil || !ok {
		t.Fatalf("Rotate = %v, %v", ok, err)
	}
	ok, err = store.Rotate(ctx, sess.ID, sess.RefreshTokenHash, next)
	if err != nil || ok {
		t.Fatalf("second Rotate with stale hash = %v, %v", ok, err)
	}

	prev, err := store.FindByPreviousHash(ctx, sess.RefreshTokenHash)
	if err != nil || prev.ID != sess.ID {
		t.Fatalf("FindByPreviousHash = %v, %v", prev, err)
	}
	cur, err := store.FindByRefreshHash(ctx, "h2")
	if err != nil || cur.Role != "ADMIN" {
		t.Fatalf("FindByRefreshHash = %v, %v", cur, err)
	}
}

func TestSessionStoreInvalidateAndPurge(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	a := newSession("u5", now)
	b := newSession("u5", now)
	c := newSession("u6", now)
	for _, s := range []*session.Session{a, b, c} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	n, err := store.InvalidateAllForUser(ctx, "u5", now)
	if err != nil || n != 2 {
		t.Fatalf("InvalidateAllForUser = %d, %v", n, err)
	}
	changed, err := store.Invalidate(ctx, a.ID, now)
	if err != nil || changed {
		t.Fatalf("re-invalidate = %v, %v", changed, err)
	}

	list, err := store.ListForUser(ctx, "u5")
	if err != nil || len(list) != 2 {
		t.Fatalf("ListForUser = %d, %v", len(list), err)
	}

	purged, err := store.DeleteExpiredOrInvalid(ctx, now)
	if err != nil || purged != 2 {
		t.Fatalf("DeleteExpiredOrInvalid = %d, %v", purged, err)
	}
	if _, err := store.Get(ctx, c.ID); err != nil {
		t.Fatalf("live session should survive: %v", err)
	}
	if _, err := store.Get(ctx, "not-a-uuid"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestDirectoryProvisioning(t *testing.T) {
	db := openTestDB(t)
	dir := NewDirectory(db)
	ctx := context.Background()

	u, err := dir.FindOrCreateByEmail(ctx, " Alice@Example.com ")
	if err != nil {
		t.Fatalf("FindOrCreateByEmail: %v", err)
	}
	if u.Email != "alice@example.com" || u.Role != goOTP.RoleUser || !u.Active {
		t.Fatalf("unexpected user %+v", u)
	}
	again, err := dir.FindOrCreateByEmail(ctx, "alice@example.com")
	if err != nil || again.ID != u.ID {
		t.Fatalf("second FindOrCreateByEmail = %v, %v", again, err)
	}

	at := time.Now().UTC().Truncate(time.Microsecond)
	if err := dir.RecordLogin(ctx, u.ID, at); err != nil {
		t.Fatalf("RecordLogin: %v", err)
	}
	if err := dir.SetActive(ctx, u.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	got, err := dir.FindByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Active || !got.EmailVerified || got.LastLoginAt == nil || !got.LastLoginAt.Equal(at) {
		t.Fatalf("unexpected user after updates %+v", got)
	}

	if _, err := dir.FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, goOTP.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := dir.RecordLogin(ctx, uuid.NewString(), at); !errors.Is(err, goOTP.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
