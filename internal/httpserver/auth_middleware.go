package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/security"
)

type contextKey string

const principalContextKey contextKey = "principal"

// WithPrincipal returns a new context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// CurrentPrincipal extracts the authenticated principal from the request
// context, if any.
func CurrentPrincipal(r *http.Request) *domain.Principal {
	if v := r.Context().Value(principalContextKey); v != nil {
		if p, ok := v.(*domain.Principal); ok {
			return p
		}
	}
	return nil
}

// AuthMiddleware validates the Bearer token and attaches the principal to the
// request context.
func AuthMiddleware(tokens *security.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing or invalid Authorization header"})
				return
			}
			tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

			principal, err := tokens.Parse(tokenStr)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token"})
				return
			}
			if principal.Status == "suspended" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "account suspended"})
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
