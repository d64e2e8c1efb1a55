// Package auth provides authentication middleware, API key handling and
// wallet sign-in for DAO authorities.
package auth

import (
	"context"
	"net/http"

	"github.com/pendergraft/splitledger/internal/storage"
)

// Context key type for avoiding collisions
type contextKey string

const (
	apiKeyContextKey contextKey = "apiKey"
	actorContextKey  contextKey = "actor"
)

// TokenVerifier resolves a session token to the wallet address it was issued to.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// GetAPIKeyFromContext retrieves the API key info from context.
func GetAPIKeyFromContext(ctx context.Context) *storage.APIKey {
	if key, ok := ctx.Value(apiKeyContextKey).(*storage.APIKey); ok {
		return key
	}
	return nil
}

// WithActor returns a context carrying the authenticated wallet address.
func WithActor(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, actorContextKey, address)
}

// ActorFromContext returns the authenticated wallet address, or "".
func ActorFromContext(ctx context.Context) string {
	if a, ok := ctx.Value(actorContextKey).(string); ok {
		return a
	}
	return ""
}

// Middleware returns an HTTP middleware that requires either a valid API key
// or a valid session token. tokens may be nil when wallet sign-in is disabled.
func Middleware(store storage.APIKeyStore, tokens TokenVerifier, writeError func(w http.ResponseWriter, status int, code, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, bearer := credentials(r)

			if apiKey == "" && bearer == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key or session token required")
				return
			}

			ctx := r.Context()
			if apiKey != "" {
				key, err := store.ValidateAPIKey(ctx, apiKey)
				if err != nil {
					writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
					return
				}
				ctx = context.WithValue(ctx, apiKeyContextKey, key)
			}

			if bearer != "" {
				if tokens == nil {
					writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Session tokens are not enabled")
					return
				}
				actor, err := tokens.Verify(bearer)
				if err != nil {
					writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid session token")
					return
				}
				ctx = WithActor(ctx, actor)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalMiddleware returns an HTTP middleware that validates credentials if
// present, but allows requests without them to proceed.
func OptionalMiddleware(store storage.APIKeyStore, tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, bearer := credentials(r)
			ctx := r.Context()

			if apiKey != "" && store != nil {
				key, err := store.ValidateAPIKey(ctx, apiKey)
				if err == nil && key != nil {
					ctx = context.WithValue(ctx, apiKeyContextKey, key)
				}
			}
			if bearer != "" && tokens != nil {
				if actor, err := tokens.Verify(bearer); err == nil {
					ctx = WithActor(ctx, actor)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
