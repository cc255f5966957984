package interceptors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"dispatch/pkg/passhash"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid bearer", "Bearer abc123", "abc123"},
		{"missing prefix", "abc123", ""},
		{"empty header", "", ""},
		{"only prefix", "Bearer ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bearerToken(tt.header); got != tt.want {
				t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestIsMutating(t *testing.T) {
	tests := []struct {
		method string
		want   bool
	}{
		{http.MethodGet, false},
		{http.MethodHead, false},
		{http.MethodPost, true},
		{http.MethodPut, true},
		{http.MethodPatch, true},
		{http.MethodDelete, true},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			if got := isMutating(tt.method); got != tt.want {
				t.Errorf("isMutating(%q) = %v, want %v", tt.method, got, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_AllowsReadsWithoutToken(t *testing.T) {
	manager := passhash.NewJWTManager(passhash.DefaultJWTConfig())
	called := false
	handler := AuthMiddleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/routes", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("GET should pass through unauthenticated, called=%v code=%d", called, rec.Code)
	}
}

func TestAuthMiddleware_RejectsMutatingRequestWithoutToken(t *testing.T) {
	manager := passhash.NewJWTManager(passhash.DefaultJWTConfig())
	handler := AuthMiddleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached without a token")
	}))

	req := httptest.NewRequest(http.MethodPost, "/routes/optimize", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddleware_RejectsInvalidToken(t *testing.T) {
	manager := passhash.NewJWTManager(passhash.DefaultJWTConfig())
	handler := AuthMiddleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached with an invalid token")
	}))

	req := httptest.NewRequest(http.MethodPost, "/routes/optimize", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddleware_AcceptsValidToken(t *testing.T) {
	manager := passhash.NewJWTManager(passhash.DefaultJWTConfig())
	token, err := manager.GenerateAccessToken("u1", "dispatcher", "admin")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	var gotClaims *passhash.Claims
	handler := AuthMiddleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/routes/optimize", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotClaims == nil || gotClaims.UserID != "u1" {
		t.Fatalf("claims = %+v, want UserID u1", gotClaims)
	}
}

func TestAuthMiddleware_AlwaysAllowsHealthz(t *testing.T) {
	manager := passhash.NewJWTManager(passhash.DefaultJWTConfig())
	called := false
	handler := AuthMiddleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("/healthz should always pass through, called=%v code=%d", called, rec.Code)
	}
}
