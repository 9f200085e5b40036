package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomworks/loom/internal/metrics"
	"github.com/loomworks/loom/internal/store"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimiter implements fixed-window rate limiting backed by Redis.
// The WebSocket endpoint is deliberately exempt: hub connections are
// long-lived and their traffic is bounded by the send buffers.
type RateLimiter struct {
	redis  *store.RedisStore
	logger zerolog.Logger
	limits map[string]RateLimit
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(redis *store.RedisStore, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  redis,
		logger: logger,
		limits: map[string]RateLimit{
			"POST /api/agents":         {30, time.Hour},
			"POST /api/collaborations": {30, time.Hour},
			"GET /api/memories":        {120, time.Minute},
			"GET /api/messages":        {120, time.Minute},
		},
	}
}

// Middleware returns the rate limiting middleware. When Redis is not
// configured it passes every request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.redis == nil {
			next.ServeHTTP(w, r)
			return
		}

		endpoint := r.Method + " " + r.URL.Path
		limit, ok := rl.limits[endpoint]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := "ratelimit:ip:" + RealIP(r) + ":" + endpoint
		count, err := rl.redis.IncrementCounter(r.Context(), key, limit.Window)
		if err != nil {
			// Fail open: a Redis outage must not take the API down.
			rl.logger.Warn().Err(err).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		remaining := limit.Requests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > int64(limit.Requests) {
			metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
