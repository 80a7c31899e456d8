package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/unklstewy/skytrack/internal/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// claimsFrom returns the authenticated caller, or nil when auth is disabled.
func claimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey).(*auth.Claims)
	return c
}

// caller names the authenticated user for logs.
func caller(r *http.Request) string {
	if c := claimsFrom(r.Context()); c != nil {
		return c.Username
	}
	return "anonymous"
}

// requireRole rejects requests without a valid bearer token for role or
// higher. It lets everything through when auth is disabled.
func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.authSvc == nil {
				next.ServeHTTP(w, r)
				return
			}

			// Extract token (format: "Bearer <token>")
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "missing authorization header")
				return
			}
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid authorization header format")
				return
			}

			claims, err := s.authSvc.ValidateToken(token)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			if !auth.HasRole(claims.Role, role) {
				respondError(w, http.StatusForbidden, "forbidden", auth.ErrUnauthorized.Error())
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
