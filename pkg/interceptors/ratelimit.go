package interceptors

import (
	"net/http"
	"strconv"
	"time"

	"dispatch/pkg/logger"
	"dispatch/pkg/ratelimit"
)

// RateLimitMiddleware создаёт middleware для rate limiting
func RateLimitMiddleware(limiter ratelimit.Limiter, keyExtractor ratelimit.KeyExtractor) func(http.Handler) http.Handler {
	if keyExtractor == nil {
		keyExtractor = ratelimit.DefaultKeyExtractor
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			route := r.Method + " " + r.URL.Path

			md := headerMetadata(r)
			key := keyExtractor(ctx, route, md)

			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				logger.Log.Warn("Rate limit check failed", "error", err, "key", key)
				// При ошибке пропускаем (fail open)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				limitInfo, infoErr := limiter.GetInfo(ctx, key)
				if infoErr != nil {
					logger.Log.Warn("Failed to get rate limit info", "error", infoErr, "key", key)
					limitInfo = &ratelimit.LimitInfo{
						Limit:   0,
						ResetAt: time.Now().Add(time.Minute),
					}
				}

				logger.Log.Warn("Rate limit exceeded", "key", key, "limit", limitInfo.Limit)

				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limitInfo.Limit))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", limitInfo.ResetAt.Format(time.RFC3339))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func headerMetadata(r *http.Request) map[string]string {
	md := make(map[string]string, 4)
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		md["x-forwarded-for"] = v
	}
	if v := r.Header.Get("X-Real-IP"); v != "" {
		md["x-real-ip"] = v
	}
	if v := r.Header.Get("X-User-ID"); v != "" {
		md["x-user-id"] = v
	}
	md[":authority"] = r.Host
	return md
}
