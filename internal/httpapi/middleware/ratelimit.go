package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces fixed-window request budgets backed by Redis, so the
// budget holds across replicas.
type RateLimiter struct {
	client    *redis.Client
	namespace string
}

// NewRateLimiter creates a limiter using the given Redis client.
func NewRateLimiter(client *redis.Client, namespace string) *RateLimiter {
	return &RateLimiter{client: client, namespace: namespace}
}

// Limit returns middleware allowing at most max requests per window per key.
// On Redis failure the request is allowed through; throttling is protection,
// not a correctness dependency.
func (l *RateLimiter) Limit(name string, max int64, window time.Duration, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket := time.Now().Unix() / int64(window.Seconds())
			key := fmt.Sprintf("%s:rl:%s:%s:%d", l.namespace, name, keyFn(r), bucket)

			count, err := l.client.Incr(r.Context(), key).Result()
			if err == nil {
				if count == 1 {
					l.client.Expire(r.Context(), key, window)
				}
				if count > max {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusTooManyRequests)
					_ = json.NewEncoder(w).Encode(map[string]any{
						"error": "rate limit exceeded",
						"code":  "rate_limited",
					})
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
