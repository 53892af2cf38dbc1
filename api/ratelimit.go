package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/civicreport/civic-issue-api/config"
)

const rateLimitKeyPrefix = "issue-limit"

// RateLimiter caps how many issues a single user may file per window. Backed
// by a per-user redis counter with a TTL; a nil limiter passes every request
// through, so deployments without redis just run uncapped.
type RateLimiter struct {
	Client *redis.Client
	Max    int64
	Window time.Duration
}

// NewRateLimiter builds a limiter from the config, or nil when no redis
// address is configured
func NewRateLimiter(conf *config.Config, max int64, window time.Duration) *RateLimiter {
	if conf.RedisAddress == "" {
		zap.S().Info("no redis address configured, issue rate limiting disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.RedisAddress,
		Password: conf.RedisPassword,
		DB:       0,
	})
	return &RateLimiter{Client: client, Max: max, Window: window}
}

// Limit enforces the per-user cap. It must run inside Authenticate.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			config.ErrorStatus("not authorized", http.StatusUnauthorized, w, errors.New("missing identity"))
			return
		}

		userKey := rateLimitKeyPrefix + ":" + identity.ID.Hex()

		count, err := rl.Client.Incr(r.Context(), userKey).Result()
		if err != nil {
			// redis being down should not block reports
			zap.S().Warnw("rate limit counter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		// set the TTL only on the first increment of the window
		if count == 1 {
			if err := rl.Client.Expire(r.Context(), userKey, rl.Window).Err(); err != nil {
				zap.S().Warnw("failed to set rate limit TTL", "error", err)
			}
		}

		if count > rl.Max {
			retryAfter, _ := rl.Client.TTL(r.Context(), userKey).Result()
			w.WriteHeader(http.StatusTooManyRequests)
			body, _ := json.Marshal(map[string]interface{}{
				"success":    false,
				"message":    "rate limit exceeded",
				"retryAfter": retryAfter.Seconds(),
			})
			w.Write(body)
			return
		}

		next.ServeHTTP(w, r)
	})
}
