package signage

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// requireAuth validates the Bearer token and forwards the identity to
// handlers via the X-User-Id header. Any inbound value of that header is
// discarded first.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del("X-User-Id")

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "invalid Authorization header")
			return
		}

		claims := &TokenClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid || claims.TokenType != "access" {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		r.Header.Set("X-User-Id", claims.UserID)
		next.ServeHTTP(w, r)
	})
}

func currentUserID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

// rateLimitByIP is a fixed-window counter in redis. With no redis client
// configured the limiter is a no-op (single-binary dev setup).
func (s *Server) rateLimitByIP(prefix string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.rdb == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			key := fmt.Sprintf("ratelimit:%s:%s", prefix, clientIP(r))
			count, err := s.rdb.Incr(ctx, key).Result()
			if err != nil {
				log.Printf("signage-service: rate limiter: %v", err)
				writeError(w, http.StatusInternalServerError, "rate limiter error")
				return
			}
			if count == 1 {
				s.rdb.Expire(ctx, key, window)
			}
			if count > int64(limit) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
