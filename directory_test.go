package goOTP

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"alice@example.com":     "alice@example.com",
		"  Bob@Example.COM\t":   "bob@example.com",
		"first.last@sub.ex.org": "first.last@sub.ex.org",
	}
	for in, want := range cases {
		got, err := NormalizeEmail(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeEmail(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "   ", "no-at-sign", "a@", "Name <a@b.c>", "a@b.c, d@e.f"} {
		if _, err := NormalizeEmail(bad); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("NormalizeEmail(%q) expected ErrInvalidEmail, got %v", bad, err)
		}
	}
}

func TestRedisDirectoryProvisionOnce(t *testing.T) {
	_, rdb := newTestRedis(t)
	dir := NewRedisDirectory(rdb, "")
	ctx := context.Background()

	const n = 8
	ids := make(chan string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			u, err := dir.FindOrCreateByEmail(ctx, "Same@Example.com")
			if err != nil {
				t.Errorf("provision: %v", err)
				return
			}
			ids <- u.ID
		}()
	}
	wg.Wait()
	close(ids)

	var first string
	for id := range ids {
		if first == "" {
			first = id
		}
		if id != first {
			t.Fatalf("concurrent provisioning created two users: %s and %s", first, id)
		}
	}

	u, err := dir.FindByEmail(ctx, "same@example.com")
	if err != nil || u.ID != first || u.Role != RoleUser || !u.Active {
		t.Fatalf("unexpected user %+v err=%v", u, err)
	}
}

func TestRedisDirectoryRecordLogin(t *testing.T) {
	_, rdb := newTestRedis(t)
	dir := NewRedisDirectory(rdb, "usr")
	ctx := context.Background()

	u, err := dir.FindOrCreateByEmail(ctx, "x@example.com")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := dir.RecordLogin(ctx, u.ID, at); err != nil {
		t.Fatalf("record login: %v", err)
	}
	got, err := dir.FindByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.EmailVerified || got.LastLoginAt == nil || !got.LastLoginAt.Equal(at) {
		t.Fatalf("unexpected user after login %+v", got)
	}

	if err := dir.RecordLogin(ctx, "missing", at); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := dir.SetRole(ctx, u.ID, Role("ROOT")); err == nil {
		t.Fatal("expected unknown role to be rejected")
	}
}

func TestRedisDirectoryUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	dir := NewRedisDirectory(rdb, "")
	mr.Close()

	if _, err := dir.FindByID(context.Background(), "id"); !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("expected ErrDirectoryUnavailable, got %v", err)
	}
}

func TestDirectoryResolver(t *testing.T) {
	_, rdb := newTestRedis(t)
	dir := NewRedisDirectory(rdb, "")
	ctx := context.Background()
	r := directoryResolver{dir: dir}

	u, _ := dir.FindOrCreateByEmail(ctx, "r@example.com")
	sub, err := r.ResolveSubject(ctx, u.ID)
	if err != nil || sub.Email != "r@example.com" || sub.Role != string(RoleUser) {
		t.Fatalf("unexpected subject %+v err=%v", sub, err)
	}

	if _, err := r.ResolveSubject(ctx, "missing"); err == nil {
		t.Fatal("expected rejection for unknown user")
	}
	_ = dir.SetActive(ctx, u.ID, false)
	if _, err := r.ResolveSubject(ctx, u.ID); err == nil {
		t.Fatal("expected rejection for inactive user")
	}
}
