package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// insertScript retires the previous active record of (user, type), writes the
// new record hash, repoints the active key, and appends to the creation history.
// KEYS[1] = active pointer, KEYS[2] = record, KEYS[3] = history, KEYS[4] = expiry index
// ARGV: id, user, type, code_hash, created_ms, expires_ms, record_prefix, history_floor_ms, record_ttl_ms
var insertLua = redis.NewScript(`
local prev = redis.call("GET", KEYS[1])
if prev and prev ~= ARGV[1] then
  local pkey = ARGV[7] .. prev
  if redis.call("HGET", pkey, "used") == "0" then
    redis.call("HSET", pkey, "used", "1")
  end
end
redis.call("HSET", KEYS[2],
  "user_id", ARGV[2], "type", ARGV[3], "code_hash", ARGV[4],
  "attempts", "0", "used", "0",
  "created_at", ARGV[5], "expires_at", ARGV[6], "used_at", "")
redis.call("PEXPIRE", KEYS[2], ARGV[9])
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[9])
redis.call("ZADD", KEYS[3], ARGV[5], ARGV[1])
redis.call("ZREMRANGEBYSCORE", KEYS[3], "-inf", "(" .. ARGV[8])
redis.call("PEXPIRE", KEYS[3], 3601000)
redis.call("ZADD", KEYS[4], ARGV[6], ARGV[1])
return 1
`)

// incrementAttemptsLua returns the new count, -1 when the record is missing and
// -2 when it is already used.
// KEYS[1] = record; ARGV[1] = max attempts
var incrementAttemptsLua = redis.NewScript(`
local used = redis.call("HGET", KEYS[1], "used")
if not used then
  return -1
end
if used ~= "0" then
  return -2
end
local n = redis.call("HINCRBY", KEYS[1], "attempts", 1)
if n >= tonumber(ARGV[1]) then
  redis.call("HSET", KEYS[1], "used", "1")
end
return n
`)

// markUsedLua flips used once. KEYS[1] = record, KEYS[2] = used index.
// ARGV[1] = id, ARGV[2] = used_ms
var markUsedLua = redis.NewScript(`
if redis.call("HGET", KEYS[1], "used") ~= "0" then
  return 0
end
redis.call("HSET", KEYS[1], "used", "1", "used_at", ARGV[2])
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[1])
return 1
`)

// RedisStore keeps OTP records in Redis hashes with an active pointer per
// (user, type) and a per-user creation history sorted set.
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisStore returns a Redis-backed Store. Record keys outlive their expiry
// by retention so used codes stay visible until cleanup.
func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "otp"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisStore{redis: client, prefix: prefix, retention: retention}
}

func (s *RedisStore) recordPrefix() string { return s.prefix + ":rec:" }

func (s *RedisStore) recordKey(id string) string { return s.recordPrefix() + id }

func (s *RedisStore) activeKey(userID string, typ Type) string {
	return s.prefix + ":active:" + userID + ":" + string(typ)
}

func (s *RedisStore) historyKey(userID string) string { return s.prefix + ":hist:" + userID }

func (s *RedisStore) expiryIndexKey() string { return s.prefix + ":idx:exp" }

func (s *RedisStore) usedIndexKey() string { return s.prefix + ":idx:used" }

func (s *RedisStore) Insert(ctx context.Context, rec *Record) error {
	ttl := rec.ExpiresAt.Sub(rec.CreatedAt) + s.retention
	_, err := insertLua.Run(ctx, s.redis,
		[]string{s.activeKey(rec.UserID, rec.Type), s.recordKey(rec.ID), s.historyKey(rec.UserID), s.expiryIndexKey()},
		rec.ID,
		rec.UserID,
		string(rec.Type),
		rec.CodeHash,
		rec.CreatedAt.UnixMilli(),
		rec.ExpiresAt.UnixMilli(),
		s.recordPrefix(),
		rec.CreatedAt.Add(-Window).UnixMilli(),
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) FindActive(ctx context.Context, userID string, typ Type, now time.Time) (*Record, error) {
	id, err := s.redis.Get(ctx, s.activeKey(userID, typ)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Active(now) {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *RedisStore) IncrementAttempts(ctx context.Context, id string, maxAttempts int) (int, error) {
	n, err := incrementAttemptsLua.Run(ctx, s.redis, []string{s.recordKey(id)}, maxAttempts).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n < 0 {
		return 0, ErrNotFound
	}
	return int(n), nil
}

func (s *RedisStore) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := markUsedLua.Run(ctx, s.redis, []string{s.recordKey(id), s.usedIndexKey()}, id, at.UnixMilli()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

func (s *RedisStore) CreatedSince(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	scores, err := s.redis.ZRangeByScoreWithScores(ctx, s.historyKey(userID), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	out := make([]time.Time, 0, len(scores))
	for _, z := range scores {
		out = append(out, time.UnixMilli(int64(z.Score)))
	}
	return out, nil
}

// DeleteExpired removes records indexed as expired or stale-used. Each batch is
// one pipeline; it is not atomic across records, which cleanup does not need.
func (s *RedisStore) DeleteExpired(ctx context.Context, now, usedBefore time.Time) (int64, error) {
	expired, err := s.redis.ZRangeByScore(ctx, s.expiryIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	stale, err := s.redis.ZRangeByScore(ctx, s.usedIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(usedBefore.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ids := make(map[string]struct{}, len(expired)+len(stale))
	for _, id := range expired {
		ids[id] = struct{}{}
	}
	for _, id := range stale {
		ids[id] = struct{}{}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.redis.TxPipeline()
	dels := make([]*redis.IntCmd, 0, len(ids))
	members := make([]interface{}, 0, len(ids))
	for id := range ids {
		dels = append(dels, pipe.Del(ctx, s.recordKey(id)))
		members = append(members, id)
	}
	pipe.ZRem(ctx, s.expiryIndexKey(), members...)
	pipe.ZRem(ctx, s.usedIndexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var deleted int64
	for _, cmd := range dels {
		deleted += cmd.Val()
	}
	return deleted, nil
}

// Get loads a record by id regardless of state.
func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	return s.get(ctx, id)
}

func (s *RedisStore) get(ctx context.Context, id string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeRecord(id, fields)
}

func decodeRecord(id string, f map[string]string) (*Record, error) {
	attempts, err := strconv.Atoi(f["attempts"])
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt attempts for %s", ErrStoreUnavailable, id)
	}
	created, err := strconv.ParseInt(f["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt created_at for %s", ErrStoreUnavailable, id)
	}
	expires, err := strconv.ParseInt(f["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt expires_at for %s", ErrStoreUnavailable, id)
	}

	rec := &Record{
		ID:        id,
		UserID:    f["user_id"],
		CodeHash:  f["code_hash"],
		Type:      Type(f["type"]),
		Attempts:  attempts,
		Used:      f["used"] != "0",
		CreatedAt: time.UnixMilli(created),
		ExpiresAt: time.UnixMilli(expires),
	}
	if raw := f["used_at"]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			usedAt := time.UnixMilli(ms)
			rec.UsedAt = &usedAt
		}
	}
	return rec, nil
}
