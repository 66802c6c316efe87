package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/example/carwash-booking/internal/apperr"
	"github.com/example/carwash-booking/internal/observability"
	"github.com/example/carwash-booking/internal/retry"
)

// Loader is the read path shared by cached lists: fresh cache, then the
// remote fetch under the retry policy, then the stale tier.
type Loader struct {
	Cache  Cache
	Retry  retry.Policy
	Logger *slog.Logger
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// Load returns the value under key. With useCache false the fresh tier is
// skipped, but a successful fetch still repopulates it and a failed one may
// still be answered from the stale tier. Only network failures fall back to
// stale data; any other error is returned unchanged.
func Load[T any](ctx context.Context, l *Loader, key string, ttl time.Duration, useCache bool, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if useCache {
		if b, ok := l.Cache.Get(ctx, key); ok {
			var v T
			if err := json.Unmarshal(b, &v); err == nil {
				observability.CacheLookups.WithLabelValues("hit").Inc()
				return v, nil
			}
			l.logger().Warn("cache entry undecodable, refetching", "key", key)
		}
		observability.CacheLookups.WithLabelValues("miss").Inc()
	}

	op := family(key)
	v, err := retry.Value(ctx, l.Retry, op, fetch)
	if err == nil {
		if b, merr := json.Marshal(v); merr == nil {
			if serr := l.Cache.Set(ctx, key, b, ttl); serr != nil {
				l.logger().Warn("cache write failed", "key", key, "error", serr)
			}
		}
		return v, nil
	}

	observability.RemoteFailures.WithLabelValues(op).Inc()
	if !apperr.Retryable(err) {
		return zero, err
	}
	if b, ok := l.Cache.Stale(ctx, key); ok {
		var stale T
		if uerr := json.Unmarshal(b, &stale); uerr == nil {
			observability.CacheLookups.WithLabelValues("stale").Inc()
			l.logger().Warn("serving stale cache after fetch failure", "key", key, "error", err)
			return stale, nil
		}
	}
	return zero, apperr.Unavailable(key, err)
}

// family strips the per-user or per-service suffix so metric labels stay bounded.
func family(key string) string {
	f, _, _ := strings.Cut(key, "_")
	return f
}
