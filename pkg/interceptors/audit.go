package interceptors

import (
	"context"
	"net/http"
	"strings"
	"time"

	"dispatch/pkg/audit"
	"dispatch/pkg/logger"
)

// AuditConfig конфигурация аудит middleware
type AuditConfig struct {
	ServiceName    string
	ExcludeMethods map[string]bool
	Logger         audit.Logger
}

// AuditMiddleware создаёт middleware для аудит логирования HTTP запросов
func AuditMiddleware(cfg *AuditConfig) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = audit.Get()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.Method + " " + r.URL.Path
			if cfg.ExcludeMethods != nil && cfg.ExcludeMethods[route] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()

			clientIP := extractClientIP(r)
			userID, username := extractUserInfo(r)
			requestID := extractRequestID(r)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			duration := time.Since(start)

			builder := audit.NewEntry().
				Service(cfg.ServiceName).
				Method(route).
				Action(methodToAction(r.Method, r.URL.Path)).
				User(userID, username).
				Client(clientIP, r.UserAgent()).
				RequestID(requestID).
				Duration(duration)

			if rec.status >= 400 {
				builder.Outcome(audit.OutcomeFailure).
					Error(http.StatusText(rec.status), "")
			} else {
				builder.Outcome(audit.OutcomeSuccess)
			}

			entry := builder.Build()

			go func() {
				if logErr := cfg.Logger.Log(context.Background(), entry); logErr != nil {
					logger.Log.Warn("Failed to write audit log", "error", logErr)
				}
			}()
		})
	}
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func extractUserInfo(r *http.Request) (userID, username string) {
	return r.Header.Get("X-User-ID"), r.Header.Get("X-Username")
}

func extractRequestID(r *http.Request) string {
	return r.Header.Get("X-Request-ID")
}

// methodToAction maps an HTTP method and path to an audit action.
func methodToAction(method, path string) audit.Action {
	switch {
	case strings.Contains(path, "/optimize") && !strings.Contains(path, "/reoptimize"):
		return audit.ActionOptimize
	case strings.Contains(path, "/reoptimize"):
		return audit.ActionReoptimize
	case strings.Contains(path, "/export") || strings.Contains(path, "/report"):
		return audit.ActionExport
	case strings.Contains(path, "/login"):
		return audit.ActionLogin
	case strings.Contains(path, "/logout"):
		return audit.ActionLogout
	case strings.Contains(path, "/status"):
		return audit.ActionStatusChange
	case method == http.MethodPost:
		return audit.ActionCreate
	case method == http.MethodPut || method == http.MethodPatch:
		return audit.ActionUpdate
	case method == http.MethodDelete:
		return audit.ActionDelete
	default:
		return audit.ActionRead
	}
}
