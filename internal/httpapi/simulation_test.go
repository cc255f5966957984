package httpapi

import (
	"net/http/httptest"
	"testing"

	"dispatch/internal/eventbus"
	"dispatch/internal/simulator"
	"dispatch/internal/store"
)

func TestHandleSimulationStart_NoSimulatorConfigured(t *testing.T) {
	a := newTestAPI(store.NewMemStore())
	mux := newTestMux(a)

	req := httptest.NewRequest("POST", "/simulation/start", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != 503 {
		t.Fatalf("status = %d, want 503, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSimulationStart_StartsSimulator(t *testing.T) {
	bus := eventbus.New(8)
	sim := simulator.New(bus, 1)
	a := New(store.NewMemStore(), nil, nil, nil, sim, bus, nil, simulator.DefaultParams().GeoCenter)
	mux := newTestMux(a)

	req := httptest.NewRequest("POST", "/simulation/start", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	sim.Stop()
}

func TestHandleSimulationForceEvent_RequiresKind(t *testing.T) {
	bus := eventbus.New(8)
	sim := simulator.New(bus, 1)
	a := New(store.NewMemStore(), nil, nil, nil, sim, bus, nil, simulator.DefaultParams().GeoCenter)
	mux := newTestMux(a)

	req := httptest.NewRequest("POST", "/simulation/force-event", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
}
