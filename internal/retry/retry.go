package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/carwash-booking/internal/apperr"
	"github.com/example/carwash-booking/internal/observability"
)

// Policy retries idempotent reads. Writes must never go through it:
// replaying a create can leave duplicate rows on the remote store.
type Policy struct {
	Attempts int
	Delay    time.Duration // doubled after every failed attempt
	Logger   *slog.Logger
}

func Default() Policy { return Policy{Attempts: 3, Delay: 200 * time.Millisecond} }

// Do runs op until it succeeds or runs out of attempts. Only network errors
// are retried. The error of the final attempt is returned unchanged.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.Delay
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !apperr.Retryable(err) || i == attempts-1 {
			break
		}
		observability.RetriesTotal.WithLabelValues(name).Inc()
		if p.Logger != nil {
			p.Logger.Debug("read failed, retrying", "op", name, "attempt", i+1, "error", err)
		}
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			delay *= 2
		}
	}
	return err
}

// Value is Do for operations returning a result.
func Value[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, name, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
