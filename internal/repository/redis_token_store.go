package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/library-auth/internal/model"
)

// rotateScript performs the active -> rotated transition and writes the
// successor in one server-side step.  Returns 1 on success, 0 when the
// presented record is missing or not active.
var rotateScript = redis.NewScript(`
	local state = redis.call('HGET', KEYS[1], 'state')
	if state ~= 'active' then
		return 0
	end
	local ttl = tonumber(ARGV[6])
	redis.call('HSET', KEYS[1], 'state', 'rotated', 'rotated_to', ARGV[1])
	redis.call('HSET', KEYS[2], 'token_hash', ARGV[1], 'user_id', ARGV[2], 'family_id', ARGV[3],
		'state', 'active', 'created_at', ARGV[4], 'expires_at', ARGV[5], 'user_agent', ARGV[7], 'ip', ARGV[8])
	redis.call('PEXPIRE', KEYS[2], ttl)
	redis.call('SADD', KEYS[3], ARGV[1])
	redis.call('PEXPIRE', KEYS[3], ttl)
	redis.call('SADD', KEYS[4], ARGV[1])
	redis.call('PEXPIRE', KEYS[4], ttl)
	return 1
`)

var revokeScript = redis.NewScript(`
	if redis.call('HGET', KEYS[1], 'state') == 'active' then
		redis.call('HSET', KEYS[1], 'state', 'revoked', 'revoked_at', ARGV[1])
		return 1
	end
	return 0
`)

// revokeSetScript revokes every active record listed in the index set
// KEYS[1]; ARGV[1] is the record key prefix.
var revokeSetScript = redis.NewScript(`
	local n = 0
	for _, h in ipairs(redis.call('SMEMBERS', KEYS[1])) do
		local key = ARGV[1] .. h
		if redis.call('HGET', key, 'state') == 'active' then
			redis.call('HSET', key, 'state', 'revoked', 'revoked_at', ARGV[2])
			n = n + 1
		end
	end
	return n
`)

// RedisTokenStore is a refresh token ledger on Redis.  Each record is a hash
// expiring with the token, indexed by family and by user through sets so
// lineage and per-user revocation stay server side.
type RedisTokenStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisTokenStore(rdb redis.UniversalClient, prefix string) *RedisTokenStore {
	return &RedisTokenStore{rdb: rdb, prefix: prefix}
}

func (s *RedisTokenStore) tokenKeyPrefix() string     { return s.prefix + "rt:" }
func (s *RedisTokenStore) tokenKey(hash string) string { return s.tokenKeyPrefix() + hash }
func (s *RedisTokenStore) familyKey(id string) string  { return s.prefix + "rtf:" + id }
func (s *RedisTokenStore) userKey(id uint64) string {
	return s.prefix + "rtu:" + strconv.FormatUint(id, 10)
}

// recordTTL is the key lifetime of t, measured from its CreatedAt.
func recordTTL(t model.RefreshToken) time.Duration {
	from := t.CreatedAt
	if from.IsZero() {
		from = time.Now()
	}
	if d := t.ExpiresAt.Sub(from); d > time.Millisecond {
		return d
	}
	return time.Millisecond
}

func (s *RedisTokenStore) Insert(ctx context.Context, t model.RefreshToken) error {
	ttl := recordTTL(t)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		key := s.tokenKey(t.TokenHash)
		p.HSet(ctx, key,
			"token_hash", t.TokenHash,
			"user_id", t.UserID,
			"family_id", t.FamilyID,
			"state", string(t.State),
			"created_at", t.CreatedAt.UnixMilli(),
			"expires_at", t.ExpiresAt.UnixMilli(),
			"user_agent", t.UserAgent,
			"ip", t.IP,
		)
		p.PExpire(ctx, key, ttl)
		p.SAdd(ctx, s.familyKey(t.FamilyID), t.TokenHash)
		p.PExpire(ctx, s.familyKey(t.FamilyID), ttl)
		p.SAdd(ctx, s.userKey(t.UserID), t.TokenHash)
		p.PExpire(ctx, s.userKey(t.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis insert refresh token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Get(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	m, err := s.rdb.HGetAll(ctx, s.tokenKey(tokenHash)).Result()
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("redis get refresh token: %w", err)
	}
	if len(m) == 0 {
		return model.RefreshToken{}, ErrNotFound
	}
	return decodeToken(m)
}

func (s *RedisTokenStore) Rotate(ctx context.Context, tokenHash string, next model.RefreshToken) error {
	keys := []string{
		s.tokenKey(tokenHash),
		s.tokenKey(next.TokenHash),
		s.familyKey(next.FamilyID),
		s.userKey(next.UserID),
	}
	ok, err := rotateScript.Run(ctx, s.rdb, keys,
		next.TokenHash,
		next.UserID,
		next.FamilyID,
		next.CreatedAt.UnixMilli(),
		next.ExpiresAt.UnixMilli(),
		recordTTL(next).Milliseconds(),
		next.UserAgent,
		next.IP,
	).Int()
	if err != nil {
		return fmt.Errorf("redis rotate refresh token: %w", err)
	}
	if ok == 0 {
		return ErrNotActive
	}
	return nil
}

func (s *RedisTokenStore) Revoke(ctx context.Context, tokenHash string, at time.Time) error {
	if err := revokeScript.Run(ctx, s.rdb, []string{s.tokenKey(tokenHash)}, at.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("redis revoke refresh token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	return s.revokeSet(ctx, s.familyKey(familyID), at)
}

func (s *RedisTokenStore) RevokeAllForUser(ctx context.Context, userID uint64, at time.Time) (int64, error) {
	return s.revokeSet(ctx, s.userKey(userID), at)
}

func (s *RedisTokenStore) revokeSet(ctx context.Context, setKey string, at time.Time) (int64, error) {
	n, err := revokeSetScript.Run(ctx, s.rdb, []string{setKey}, s.tokenKeyPrefix(), at.UnixMilli()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis revoke refresh tokens: %w", err)
	}
	return n, nil
}

// DeleteExpired is a no-op: records carry a TTL equal to their expiry.
func (s *RedisTokenStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func decodeToken(m map[string]string) (model.RefreshToken, error) {
	userID, err := strconv.ParseUint(m["user_id"], 10, 64)
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("decode user_id: %w", err)
	}
	created, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("decode created_at: %w", err)
	}
	expires, err := strconv.ParseInt(m["expires_at"], 10, 64)
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("decode expires_at: %w", err)
	}
	t := model.RefreshToken{
		TokenHash: m["token_hash"],
		UserID:    userID,
		FamilyID:  m["family_id"],
		State:     model.TokenState(m["state"]),
		CreatedAt: time.UnixMilli(created).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
		UserAgent: m["user_agent"],
		IP:        m["ip"],
	}
	if v := m["rotated_to"]; v != "" {
		t.RotatedTo = &v
	}
	if v := m["revoked_at"]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return model.RefreshToken{}, fmt.Errorf("decode revoked_at: %w", err)
		}
		at := time.UnixMilli(ms).UTC()
		t.RevokedAt = &at
	}
	return t, nil
}
