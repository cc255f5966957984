package interceptors

import (
	"net/http"

	"dispatch/pkg/audit"
	"dispatch/pkg/logger"
	"dispatch/pkg/passhash"
	"dispatch/pkg/ratelimit"
	"dispatch/pkg/telemetry"
)

// ServerConfig конфигурация серверных middleware
type ServerConfig struct {
	ServiceName   string
	EnableTracing bool
	EnableAudit   bool
	RateLimiter   ratelimit.Limiter
	AuditLogger   audit.Logger
	AuditExclude  map[string]bool
	KeyExtractor  ratelimit.KeyExtractor
	JWTManager    *passhash.JWTManager
}

// Build returns the standard HTTP middleware chain applied to every route.
// Order (outermost first): recovery, rate limiting, auth, tracing, metrics,
// logging, audit.
func Build(cfg *ServerConfig) []Middleware {
	mws := []Middleware{RecoveryMiddleware()}

	if cfg.RateLimiter != nil {
		mws = append(mws, RateLimitMiddleware(cfg.RateLimiter, cfg.KeyExtractor))
	}

	if cfg.JWTManager != nil {
		mws = append(mws, AuthMiddleware(cfg.JWTManager))
	}

	if cfg.EnableTracing {
		mws = append(mws, telemetry.HTTPServerMiddleware())
	}

	mws = append(mws, MetricsMiddleware(), LoggingMiddleware())

	if cfg.EnableAudit && cfg.AuditLogger != nil {
		mws = append(mws, AuditMiddleware(&AuditConfig{
			ServiceName:    cfg.ServiceName,
			ExcludeMethods: cfg.AuditExclude,
			Logger:         cfg.AuditLogger,
		}))
	}

	return mws
}

// RecoveryMiddleware recovers from panics in downstream handlers and returns
// a 500 instead of crashing the server.
func RecoveryMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Log.Error("panic recovered", "panic", rec, "path", r.URL.Path)
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
