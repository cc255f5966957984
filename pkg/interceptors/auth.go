package interceptors

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"dispatch/pkg/apperror"
	"dispatch/pkg/passhash"
)

type contextKey string

const claimsContextKey contextKey = "auth_claims"

// ClaimsFromContext returns the JWT claims attached by AuthMiddleware, if any.
func ClaimsFromContext(ctx context.Context) (*passhash.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*passhash.Claims)
	return claims, ok
}

// AuthMiddleware verifies a bearer JWT on every mutating request (POST, PUT,
// PATCH, DELETE); GET/HEAD requests pass through unauthenticated, matching
// this codebase's convention of leaving read paths open for dashboards and
// monitoring. /healthz is always excluded.
func AuthMiddleware(manager *passhash.JWTManager) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isMutating(r.Method) || r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims, err := manager.ValidateToken(token)
			if err != nil {
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	body := apperror.New(apperror.CodeInvalidInput, message).HTTPBody()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(body)
}
