package middleware

import (
	"context"
	"net/http"

	"example.com/blogfeed/internal/models"
)

type contextKey string

const identityCtxKey = contextKey("identity")

// TokenVerifier maps an Authorization header to a caller identity.
type TokenVerifier interface {
	VerifyToken(header string) models.Identity
}

// Identity attaches the caller identity to every request. It never rejects:
// a missing or bad token just yields the anonymous identity, and each
// operation decides whether that is enough.
func Identity(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := v.VerifyToken(r.Header.Get("Authorization"))
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, id)
}

// IdentityFromContext returns the identity set by Identity, or Anonymous.
func IdentityFromContext(ctx context.Context) models.Identity {
	id, ok := ctx.Value(identityCtxKey).(models.Identity)
	if !ok {
		return models.Anonymous
	}
	return id
}
