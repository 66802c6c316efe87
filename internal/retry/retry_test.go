package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/carwash-booking/internal/apperr"
)

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	p := Policy{Attempts: 3, Delay: 5 * time.Millisecond}
	start := time.Now()
	err := p.Do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return apperr.Network(errors.New("flaky"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatalf("expected backoff between attempts")
	}
}

func TestDoReturnsFinalErrorWhenExhausted(t *testing.T) {
	calls := 0
	final := apperr.Network(errors.New("attempt 3"))
	err := Policy{Attempts: 3}.Do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls == 3 {
			return final
		}
		return apperr.Network(errors.New("earlier"))
	})
	if !errors.Is(err, final) {
		t.Fatalf("expected final error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Policy{Attempts: 5}.Do(context.Background(), "test", func(context.Context) error {
		calls++
		return apperr.ErrAuth
	})
	if !errors.Is(err, apperr.ErrAuth) || calls != 1 {
		t.Fatalf("expected single auth failure, got %v after %d calls", err, calls)
	}
}

func TestDoDoesNotRetryNonNetworkErrors(t *testing.T) {
	for _, fail := range []error{
		errors.New(`pq: syntax error at or near "FORM"`),
		apperr.ErrNotFound,
		apperr.Invalid("date", "expected YYYY-MM-DD"),
	} {
		calls := 0
		err := Policy{Attempts: 5}.Do(context.Background(), "test", func(context.Context) error {
			calls++
			return fail
		})
		if err != fail || calls != 1 {
			t.Fatalf("%v: expected one call returning the error unchanged, got %v after %d calls", fail, err, calls)
		}
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Policy{Attempts: 3, Delay: time.Hour}.Do(ctx, "test", func(context.Context) error {
		calls++
		cancel()
		return apperr.Network(errors.New("boom"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestValueReturnsResult(t *testing.T) {
	v, err := Value(context.Background(), Policy{Attempts: 2}, "test", func(context.Context) (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Fatalf("got %d, %v", v, err)
	}
}
