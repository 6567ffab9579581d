package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

const sessionKeyPrefix = "sess:"

// RedisRegistry keeps sessions in Redis. Entries expire through the key TTL,
// and Resolve also checks the stored ExpiresAt.
type RedisRegistry struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewRedisRegistry(rdb *redis.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{rdb: rdb, ttl: ttl, now: time.Now}
}

func (r *RedisRegistry) Create(ctx context.Context, accountID string) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(Session{AccountID: accountID, ExpiresAt: r.now().Add(r.ttl).UTC()})
	if err != nil {
		return "", oops.In("redis_registry").Wrap(err)
	}

	ok, err := r.rdb.SetNX(ctx, sessionKey(token), payload, r.ttl).Result()
	if err != nil {
		return "", oops.In("redis_registry").With("account_id", accountID).Wrapf(err, "storing session")
	}
	if !ok {
		return "", oops.In("redis_registry").With("account_id", accountID).Errorf("session token collision")
	}
	return token, nil
}

func (r *RedisRegistry) Resolve(ctx context.Context, token string) (string, error) {
	data, err := r.rdb.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionNotFound
		}
		return "", oops.In("redis_registry").Wrapf(err, "loading session")
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return "", oops.In("redis_registry").Wrapf(err, "decoding session")
	}
	if s.IsExpiredAt(r.now()) {
		_ = r.Destroy(ctx, token)
		return "", ErrSessionNotFound
	}
	return s.AccountID, nil
}

func (r *RedisRegistry) Destroy(ctx context.Context, token string) error {
	if err := r.rdb.Del(ctx, sessionKey(token)).Err(); err != nil {
		return oops.In("redis_registry").Wrapf(err, "deleting session")
	}
	return nil
}

func sessionKey(token string) string {
	return sessionKeyPrefix + hashToken(token)
}
