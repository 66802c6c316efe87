package session

import (
	"context"
	"strings"

	"github.com/example/carwash-booking/internal/apperr"
)

type contextKey string

const userIDKey contextKey = "user-id"

// WithUserID attaches the signed-in user to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, strings.TrimSpace(userID))
}

// CurrentUserID returns the signed-in user or ErrAuth.
func CurrentUserID(ctx context.Context) (string, error) {
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		return v, nil
	}
	return "", apperr.ErrAuth
}

// Identity resolves the current user. Stores satisfy it by delegating to
// CurrentUserID; tests substitute fixed identities.
type Identity interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// ContextIdentity reads the user placed on the context by WithUserID.
type ContextIdentity struct{}

func (ContextIdentity) CurrentUserID(ctx context.Context) (string, error) { return CurrentUserID(ctx) }

// Fixed always reports the same user. An empty Fixed reports ErrAuth.
type Fixed string

func (f Fixed) CurrentUserID(context.Context) (string, error) {
	if f == "" {
		return "", apperr.ErrAuth
	}
	return string(f), nil
}
