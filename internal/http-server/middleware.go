package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const userIDKey contextKey = "user_id"

// AuthMiddleware validates the bearer token and stores the caller's user
// id in the request context
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			s.respondError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			s.respondError(w, http.StatusUnauthorized, "Authorization header must be a bearer token")
			return
		}

		claims, err := s.jwtService.ValidateToken(tokenString)
		if err != nil {
			s.log.Warn("Rejected invalid token", "error", err)
			s.respondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userFromContext returns the authenticated user id set by AuthMiddleware
func userFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}
