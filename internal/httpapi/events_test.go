package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/store"
)

func TestHandleListEvents_FiltersByRouteID(t *testing.T) {
	st := store.NewMemStore()
	ctx := t.Context()

	if err := st.SaveEvent(ctx, domain.Event{ID: "e1", RouteID: "r1", Kind: domain.EventKindTrafficDelay, Timestamp: time.Now()}); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}
	if err := st.SaveEvent(ctx, domain.Event{ID: "e2", RouteID: "r2", Kind: domain.EventKindTrafficDelay, Timestamp: time.Now()}); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}

	a := newTestAPI(st)
	mux := newTestMux(a)

	req := httptest.NewRequest("GET", "/events?route_id=r1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}

	var events []domain.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(events) != 1 || events[0].ID != "e1" {
		t.Fatalf("events = %+v, want only e1", events)
	}
}

func TestHandleListEvents_RejectsNonIntegerLimit(t *testing.T) {
	st := store.NewMemStore()
	a := newTestAPI(st)
	mux := newTestMux(a)

	req := httptest.NewRequest("GET", "/events?limit=notanumber", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
}
