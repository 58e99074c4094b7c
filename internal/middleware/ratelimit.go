package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerWindow int           // Number of requests allowed per window
	Window            time.Duration // Time window for rate limiting
	KeyPrefix         string        // Redis key prefix
}

// memoryLimiter is a per-client token bucket used when redis is not
// configured or not answering.
type memoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newMemoryLimiter(config RateLimitConfig) *memoryLimiter {
	return &memoryLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(config.Window / time.Duration(config.RequestsPerWindow)),
		burst:    config.RequestsPerWindow,
	}
}

func (m *memoryLimiter) allow(key string) bool {
	m.mu.Lock()
	limiter, ok := m.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(m.limit, m.burst)
		m.limiters[key] = limiter
	}
	m.mu.Unlock()

	return limiter.Allow()
}

// clientKey prefers the authenticated user, then the remote IP.
func clientKey(r *http.Request) string {
	if userID, ok := GetUserID(r.Context()); ok {
		return userID.String()
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimitMiddleware implements fixed-window rate limiting using Redis.
// A nil client, or a Redis error, falls back to an in-process limiter.
func RateLimitMiddleware(redisClient *redis.Client, config RateLimitConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	if config.RequestsPerWindow < 1 {
		config.RequestsPerWindow = 100
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	fallback := newMemoryLimiter(config)

	tooMany := func(w http.ResponseWriter, ttl time.Duration) {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))
		w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
		RespondWithError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := clientKey(r)

			if redisClient == nil {
				if !fallback.allow(clientID) {
					tooMany(w, config.Window)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			key := fmt.Sprintf("%s:%s", config.KeyPrefix, clientID)
			ctx := r.Context()

			count, err := redisClient.Incr(ctx, key).Result()
			if err != nil {
				logger.Error("Failed to increment rate limit counter",
					zap.Error(err),
					zap.String("key", key),
				)
				if !fallback.allow(clientID) {
					tooMany(w, config.Window)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if count == 1 {
				redisClient.Expire(ctx, key, config.Window)
			}

			if count > int64(config.RequestsPerWindow) {
				ttl, err := redisClient.TTL(ctx, key).Result()
				if err != nil || ttl < 0 {
					ttl = config.Window
				}

				logger.Warn("Rate limit exceeded",
					zap.String("client_id", clientID),
					zap.Int64("count", count),
					zap.Int("limit", config.RequestsPerWindow),
				)

				tooMany(w, ttl)
				return
			}

			remaining := config.RequestsPerWindow - int(count)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			next.ServeHTTP(w, r)
		})
	}
}
