package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/vbonduro/shopscan/internal/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// requireAuth validates the bearer token and adds its claims to the context.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			jsonError(w, s.logger, http.StatusUnauthorized, "missing or invalid authorization header")
			return
		}

		verifyCtx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
		claims, err := s.auth.Verify(verifyCtx, strings.TrimPrefix(header, "Bearer "))
		cancel()
		if err != nil {
			s.logger.Debug("token rejected", "error", err)
			jsonError(w, s.logger, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// getClaims retrieves the token claims from the context.
func getClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}
