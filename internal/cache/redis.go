package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// envelope is the persisted form of an entry: the serialized value plus its
// expiry, so a reader can tell fresh from stale without trusting key TTLs.
type envelope struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Redis implements Cache on top of Redis. The fresh tier lives under
// prefix+key with a Redis TTL; the stale tier under prefix+"stale:"+key
// without one.
type Redis struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

func NewRedis(client *redis.Client, prefix string, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, prefix: prefix, logger: logger, now: time.Now}
}

func (r *Redis) freshKey(key string) string { return r.prefix + key }
func (r *Redis) staleKey(key string) string { return r.prefix + "stale:" + key }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	env, ok := r.load(ctx, r.freshKey(key))
	if !ok {
		return nil, false
	}
	if !r.now().Before(env.ExpiresAt) {
		_ = r.client.Del(ctx, r.freshKey(key)).Err()
		return nil, false
	}
	return env.Value, true
}

func (r *Redis) Stale(ctx context.Context, key string) ([]byte, bool) {
	env, ok := r.load(ctx, r.staleKey(key))
	if !ok {
		return nil, false
	}
	return env.Value, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b, err := json.Marshal(envelope{Value: value, ExpiresAt: r.now().Add(ttl)})
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.freshKey(key), b, ttl)
	pipe.Set(ctx, r.staleKey(key), b, 0)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) Invalidate(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.freshKey(key), r.staleKey(key)).Err()
}

func (r *Redis) Expire(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.freshKey(key)).Err()
}

// load treats every Redis failure as a miss; the caller falls through to
// the remote store.
func (r *Redis) load(ctx context.Context, k string) (envelope, bool) {
	b, err := r.client.Get(ctx, k).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("cache read failed", "key", k, "error", err)
		}
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		r.logger.Warn("cache entry corrupt", "key", k, "error", err)
		return envelope{}, false
	}
	return env, true
}
