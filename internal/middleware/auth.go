package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/teacurran/planning-poker/internal/auth"
)

// ContextKey is a custom type for context keys
type ContextKey string

const (
	IdentityKey ContextKey = "identity"
)

// BearerAuth is middleware that validates bearer tokens on the REST surface
// and stores the verified identity on the request context.
func BearerAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error": "missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				http.Error(w, `{"error": "invalid authorization header format"}`, http.StatusUnauthorized)
				return
			}

			identity, err := verifier.Verify(parts[1])
			if err != nil {
				if err == auth.ErrExpiredToken {
					http.Error(w, `{"error": "token expired"}`, http.StatusUnauthorized)
					return
				}
				http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity gets the verified identity from the context, nil outside the
// authenticated routes.
func GetIdentity(ctx context.Context) *auth.Identity {
	if identity, ok := ctx.Value(IdentityKey).(*auth.Identity); ok {
		return identity
	}
	return nil
}

// RequireUser is middleware that rejects anonymous identities; used on
// routes that act on account-owned resources like export jobs.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := GetIdentity(r.Context())
		if identity == nil || identity.Anonymous() {
			http.Error(w, `{"error": "account required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
