package gateway

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimiter applies a fixed-window rate limit backed by Redis, keyed by
// client IP. A nil cache disables limiting, which keeps the gateway usable
// in local/test environments with no Redis reachable.
type rateLimiter struct {
	cache  *redis.Client
	limit  int
	window time.Duration
}

func newRateLimiter(cache *redis.Client, limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{cache: cache, limit: limit, window: window}
}

func (rl *rateLimiter) limitHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.cache == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
		key := fmt.Sprintf("simcash:ratelimit:%s", ip)

		count, err := rl.cache.Incr(r.Context(), key).Result()
		if err != nil {
			http.Error(w, `{"error":"internal_error"}`, http.StatusInternalServerError)
			return
		}
		if count == 1 {
			if err := rl.cache.Expire(r.Context(), key, rl.window).Err(); err != nil {
				http.Error(w, `{"error":"internal_error"}`, http.StatusInternalServerError)
				return
			}
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.limit))
		if count > int64(rl.limit) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			http.Error(w, `{"error":"rate_limited"}`, http.StatusTooManyRequests)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", rl.limit-int(count)))

		next.ServeHTTP(w, r)
	})
}
