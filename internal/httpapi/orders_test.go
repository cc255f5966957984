package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/solver"
	"dispatch/internal/store"
)

func newTestAPI(st store.Store) *API {
	return New(st, &solver.Solver{}, nil, nil, nil, nil, nil, domain.Coordinate{})
}

func TestHandleOrderTimeWindow_UpdatesWindow(t *testing.T) {
	st := store.NewMemStore()
	ctx := t.Context()
	if err := st.SaveOrder(ctx, domain.Order{ID: "o1", Status: domain.OrderStatusPending}); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}

	a := newTestAPI(st)
	mux := newTestMux(a)

	start := time.Now().Add(time.Hour).Format(time.RFC3339)
	end := time.Now().Add(2 * time.Hour).Format(time.RFC3339)
	body, _ := json.Marshal(timeWindowRequest{Start: start, End: end})

	req := httptest.NewRequest("PUT", "/orders/o1/time-window", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}

	got, err := st.GetOrder(ctx, "o1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Window.Start.Format(time.RFC3339) != start {
		t.Errorf("window start = %v, want %v", got.Window.Start.Format(time.RFC3339), start)
	}
}

func TestHandleOrderTimeWindow_InvalidWindow(t *testing.T) {
	st := store.NewMemStore()
	ctx := t.Context()
	st.SaveOrder(ctx, domain.Order{ID: "o1", Status: domain.OrderStatusPending})

	a := newTestAPI(st)
	mux := newTestMux(a)

	start := time.Now().Add(2 * time.Hour).Format(time.RFC3339)
	end := time.Now().Add(time.Hour).Format(time.RFC3339)
	body, _ := json.Marshal(timeWindowRequest{Start: start, End: end})

	req := httptest.NewRequest("PUT", "/orders/o1/time-window", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleOrderTimeWindow_UnknownOrder(t *testing.T) {
	st := store.NewMemStore()
	a := newTestAPI(st)
	mux := newTestMux(a)

	start := time.Now().Add(time.Hour).Format(time.RFC3339)
	end := time.Now().Add(2 * time.Hour).Format(time.RFC3339)
	body, _ := json.Marshal(timeWindowRequest{Start: start, End: end})

	req := httptest.NewRequest("PUT", "/orders/missing/time-window", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRouteIDForOrder_NoMatchingStop(t *testing.T) {
	st := store.NewMemStore()
	ctx := t.Context()

	driverID := "d1"
	if err := st.CreateRoute(ctx, domain.Route{ID: "r1", DriverID: driverID, Status: domain.RouteStatusPlanned}, nil); err != nil {
		t.Fatalf("CreateRoute: %v", err)
	}

	routeID, err := routeIDForOrder(ctx, st, driverID, "missing-stop")
	if err != nil {
		t.Fatalf("routeIDForOrder: %v", err)
	}
	if routeID != "" {
		t.Errorf("routeID = %q, want empty", routeID)
	}
}
