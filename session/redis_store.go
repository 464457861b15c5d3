package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// createSessionScript writes the record, its refresh index and its user and
// expiry index entries in one step.
// KEYS[1] = record, KEYS[2] = refresh index, KEYS[3] = user set, KEYS[4] = expiry index
// ARGV: id, user_id, email, role, access_token, refresh_hash, user_agent,
// ip_address, created_ms, expires_ms, ttl_ms
const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "user_id", ARGV[2], "email", ARGV[3], "role", ARGV[4],
  "access_token", ARGV[5], "refresh_hash", ARGV[6], "prev_refresh_hash", "",
  "user_agent", ARGV[7], "ip_address", ARGV[8], "is_valid", "1",
  "created_at", ARGV[9], "updated_at", ARGV[9], "expires_at", ARGV[10])
redis.call("PEXPIRE", KEYS[1], ARGV[11])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[11])
redis.call("SADD", KEYS[3], ARGV[1])
redis.call("ZADD", KEYS[4], ARGV[10], ARGV[1])
return 1
`

var createSessionLua = redis.NewScript(createSessionScript)

// rotateRefreshScript is the refresh compare-and-swap. It returns 1 when the
// hash moved and 0 when the record is gone, revoked, expired or already rotated.
// KEYS[1] = record
// ARGV: key_prefix, id, presented_hash, next_hash, access_token, email, role, now_ms
const rotateRefreshScript = `
local f = redis.call("HMGET", KEYS[1], "refresh_hash", "is_valid", "expires_at", "prev_refresh_hash")
if not f[1] then
  return 0
end
if f[1] ~= ARGV[3] or f[2] ~= "1" or tonumber(f[3]) <= tonumber(ARGV[8]) then
  return 0
end

local ttl = redis.call("PTTL", KEYS[1])
redis.call("DEL", ARGV[1] .. "rh:" .. ARGV[3])
if f[4] and f[4] ~= "" then
  redis.call("DEL", ARGV[1] .. "ph:" .. f[4])
end

redis.call("HSET", KEYS[1],
  "refresh_hash", ARGV[4], "prev_refresh_hash", ARGV[3],
  "access_token", ARGV[5], "email", ARGV[6], "role", ARGV[7],
  "updated_at", ARGV[8])

local next_key = ARGV[1] .. "rh:" .. ARGV[4]
local prev_key = ARGV[1] .. "ph:" .. ARGV[3]
if ttl > 0 then
  redis.call("SET", next_key, ARGV[2], "PX", ttl)
  redis.call("SET", prev_key, ARGV[2], "PX", ttl)
else
  redis.call("SET", next_key, ARGV[2])
  redis.call("SET", prev_key, ARGV[2])
end
return 1
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// invalidateScript flips is_valid for every id in ARGV[3..] and queues them for
// purge. With a user set, members whose record is gone are dropped from it.
// KEYS[1] = revoked set, KEYS[2] = user set (optional)
// ARGV: key_prefix, now_ms, ids...
const invalidateScript = `
local changed = 0
for i = 3, #ARGV do
  local id = ARGV[i]
  local key = ARGV[1] .. "s:" .. id
  local valid = redis.call("HGET", key, "is_valid")
  if not valid then
    if KEYS[2] then
      redis.call("SREM", KEYS[2], id)
    end
  elseif valid == "1" then
    redis.call("HSET", key, "is_valid", "0", "updated_at", ARGV[2])
    redis.call("SADD", KEYS[1], id)
    changed = changed + 1
  end
end
return changed
`

var invalidateLua = redis.NewScript(invalidateScript)

// purgeScript deletes one record and every index entry pointing at it.
// KEYS[1] = record, KEYS[2] = expiry index, KEYS[3] = revoked set
// ARGV: key_prefix, id
const purgeScript = `
local f = redis.call("HMGET", KEYS[1], "user_id", "refresh_hash", "prev_refresh_hash")
redis.call("ZREM", KEYS[2], ARGV[2])
redis.call("SREM", KEYS[3], ARGV[2])
if not f[1] then
  return 0
end
redis.call("SREM", ARGV[1] .. "u:" .. f[1], ARGV[2])
if f[2] and f[2] ~= "" then
  redis.call("DEL", ARGV[1] .. "rh:" .. f[2])
end
if f[3] and f[3] ~= "" then
  redis.call("DEL", ARGV[1] .. "ph:" .. f[3])
end
return redis.call("DEL", KEYS[1])
`

var purgeLua = redis.NewScript(purgeScript)

// RedisStore keeps each session in a hash with lookup keys for the current and
// previous refresh hash, a per-user id set and an expiry index. Record keys
// expire with the session.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a Redis-backed Store. prefix namespaces every key.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sess"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) keyPrefix() string { return s.prefix + ":" }

func (s *RedisStore) key(id string) string { return s.keyPrefix() + "s:" + id }

func (s *RedisStore) refreshKey(hash string) string { return s.keyPrefix() + "rh:" + hash }

func (s *RedisStore) previousKey(hash string) string { return s.keyPrefix() + "ph:" + hash }

func (s *RedisStore) userKey(userID string) string { return s.keyPrefix() + "u:" + userID }

func (s *RedisStore) expiryIndexKey() string { return s.keyPrefix() + "idx:exp" }

func (s *RedisStore) revokedKey() string { return s.keyPrefix() + "idx:revoked" }

// Create writes sess. It fails if a record with the same id already exists.
func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	ttl := sess.ExpiresAt.Sub(sess.CreatedAt)
	if ttl <= 0 {
		return errors.New("session expiry must be after creation")
	}

	n, err := createSessionLua.Run(ctx, s.redis,
		[]string{s.key(sess.ID), s.refreshKey(sess.RefreshTokenHash), s.userKey(sess.UserID), s.expiryIndexKey()},
		sess.ID,
		sess.UserID,
		sess.Email,
		sess.Role,
		sess.AccessToken,
		sess.RefreshTokenHash,
		sess.UserAgent,
		sess.IPAddress,
		sess.CreatedAt.UnixMilli(),
		sess.ExpiresAt.UnixMilli(),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeSession(id, fields)
}

func (s *RedisStore) FindByRefreshHash(ctx context.Context, hash string) (*Session, error) {
	sess, err := s.lookup(ctx, s.refreshKey(hash))
	if err != nil {
		return nil, err
	}
	if sess.RefreshTokenHash != hash {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *RedisStore) FindByPreviousHash(ctx context.Context, hash string) (*Session, error) {
	sess, err := s.lookup(ctx, s.previousKey(hash))
	if err != nil {
		return nil, err
	}
	if sess.PreviousRefreshHash != hash {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *RedisStore) lookup(ctx context.Context, indexKey string) (*Session, error) {
	id, err := s.redis.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s.Get(ctx, id)
}

func (s *RedisStore) Rotate(ctx context.Context, id, currentHash string, next Rotation) (bool, error) {
	n, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{s.key(id)},
		s.keyPrefix(),
		id,
		currentHash,
		next.RefreshHash,
		next.AccessToken,
		next.Email,
		next.Role,
		next.At.UnixMilli(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

func (s *RedisStore) Invalidate(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := s.invalidate(ctx, []string{s.revokedKey()}, at, []string{id})
	return n == 1, err
}

// InvalidateAllForUser revokes the user's sessions in a single script run, so
// a session rotated concurrently is still revoked.
func (s *RedisStore) InvalidateAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return s.invalidate(ctx, []string{s.revokedKey(), s.userKey(userID)}, at, ids)
}

func (s *RedisStore) invalidate(ctx context.Context, keys []string, at time.Time, ids []string) (int64, error) {
	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, s.keyPrefix(), at.UnixMilli())
	for _, id := range ids {
		args = append(args, id)
	}
	n, err := invalidateLua.Run(ctx, s.redis, keys, args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// ListForUser loads every stored session of userID. Ids whose record already
// expired out of Redis are skipped.
func (s *RedisStore) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]*Session, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		sess, err := decodeSession(ids[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteExpiredOrInvalid purges one record per script run; the batch as a
// whole is not atomic.
func (s *RedisStore) DeleteExpiredOrInvalid(ctx context.Context, now time.Time) (int64, error) {
	expired, err := s.redis.ZRangeByScore(ctx, s.expiryIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	revoked, err := s.redis.SMembers(ctx, s.revokedKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	seen := make(map[string]struct{}, len(expired)+len(revoked))
	var deleted int64
	for _, batch := range [][]string{expired, revoked} {
		for _, id := range batch {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			n, err := purgeLua.Run(ctx, s.redis,
				[]string{s.key(id), s.expiryIndexKey(), s.revokedKey()},
				s.keyPrefix(), id,
			).Int64()
			if err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			deleted += n
		}
	}
	return deleted, nil
}

func decodeSession(id string, f map[string]string) (*Session, error) {
	created, err := parseMillis(f["created_at"])
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt created_at for %s", ErrStoreUnavailable, id)
	}
	updated, err := parseMillis(f["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt updated_at for %s", ErrStoreUnavailable, id)
	}
	expires, err := parseMillis(f["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt expires_at for %s", ErrStoreUnavailable, id)
	}

	return &Session{
		ID:                  id,
		UserID:              f["user_id"],
		Email:               f["email"],
		Role:                f["role"],
		AccessToken:         f["access_token"],
		RefreshTokenHash:    f["refresh_hash"],
		PreviousRefreshHash: f["prev_refresh_hash"],
		UserAgent:           f["user_agent"],
		IPAddress:           f["ip_address"],
		IsValid:             f["is_valid"] == "1",
		CreatedAt:           created,
		UpdatedAt:           updated,
		ExpiresAt:           expires,
	}, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
