package interceptors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"dispatch/pkg/logger"
)

func init() {
	logger.Init("error")
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("response"))
}

func errorHandler(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func panicHandler(_ http.ResponseWriter, _ *http.Request) {
	panic("test panic")
}

func TestRecoveryMiddleware(t *testing.T) {
	mw := RecoveryMiddleware()

	t.Run("normal execution", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()

		mw(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if rec.Body.String() != "response" {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("panic recovery", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rec := httptest.NewRecorder()

		mw(http.HandlerFunc(panicHandler)).ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestLoggingMiddleware(t *testing.T) {
	mw := LoggingMiddleware()

	t.Run("successful request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/routes", nil)
		rec := httptest.NewRecorder()

		mw(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("failed request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/routes", nil)
		rec := httptest.NewRecorder()

		mw(http.HandlerFunc(errorHandler)).ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestChain(t *testing.T) {
	var order []string

	mw1 := Middleware(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "1-before")
			next.ServeHTTP(w, r)
			order = append(order, "1-after")
		})
	})

	mw2 := Middleware(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "2-before")
			next.ServeHTTP(w, r)
			order = append(order, "2-after")
		})
	})

	handler := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		order = append(order, "handler")
	})

	chained := Chain(handler, mw1, mw2)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	chained.ServeHTTP(rec, req)

	expected := []string{"1-before", "2-before", "handler", "2-after", "1-after"}
	if len(order) != len(expected) {
		t.Fatalf("order length = %d, want %d", len(order), len(expected))
	}

	for i, v := range expected {
		if order[i] != v {
			t.Errorf("order[%d] = %s, want %s", i, order[i], v)
		}
	}
}

func TestMethodToAction(t *testing.T) {
	tests := []struct {
		method   string
		path     string
		expected string
	}{
		{http.MethodPost, "/api/v1/routes/optimize", "OPTIMIZE"},
		{http.MethodPost, "/api/v1/routes/route-1/reoptimize", "REOPTIMIZE"},
		{http.MethodGet, "/api/v1/reports/route-1/export", "EXPORT"},
		{http.MethodPost, "/api/v1/auth/login", "LOGIN"},
		{http.MethodPost, "/api/v1/auth/logout", "LOGOUT"},
		{http.MethodPatch, "/api/v1/stops/stop-1/status", "STATUS_CHANGE"},
		{http.MethodPost, "/api/v1/orders", "CREATE"},
		{http.MethodPut, "/api/v1/orders/order-1", "UPDATE"},
		{http.MethodDelete, "/api/v1/orders/order-1", "DELETE"},
		{http.MethodGet, "/api/v1/orders/order-1", "READ"},
	}

	for _, tt := range tests {
		action := methodToAction(tt.method, tt.path)
		if string(action) != tt.expected {
			t.Errorf("methodToAction(%s, %s) = %s, want %s", tt.method, tt.path, action, tt.expected)
		}
	}
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	if ip := extractClientIP(req); ip != "203.0.113.5" {
		t.Errorf("extractClientIP() = %s, want 203.0.113.5", ip)
	}
}

func TestHeaderMetadata(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-User-ID", "user-42")

	md := headerMetadata(req)
	if md["x-user-id"] != "user-42" {
		t.Errorf("headerMetadata()[x-user-id] = %s, want user-42", md["x-user-id"])
	}
}
