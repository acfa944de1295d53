package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Rrens/checkpoint-recovery/internal/api/response"
	"github.com/Rrens/checkpoint-recovery/internal/repository/redis"
	"github.com/rs/zerolog/log"
)

// Limiter decides whether a keyed request fits its budget
type Limiter interface {
	Allow(ctx context.Context, key string) (redis.RateLimitResult, error)
}

// RateLimitMiddleware handles rate limiting
type RateLimitMiddleware struct {
	limiter Limiter
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

// Limit applies rate limiting per user, or per client IP for anonymous callers
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)

		res, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			// Limiter outages must not take the API down
			log.Warn().Err(err).Str("key", key).Msg("Rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", res.ResetAt.UTC().Format(time.RFC3339))

		if !res.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(res.ResetAt)))
			response.TooManyRequests(w, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if userID, ok := GetUserID(r.Context()); ok && userID != "anonymous" {
		return "user:" + userID
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func retryAfterSeconds(resetAt time.Time) int {
	secs := int(time.Until(resetAt).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}
