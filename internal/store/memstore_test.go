package store

import (
	"context"
	"testing"
	"time"

	"dispatch/internal/domain"
	"dispatch/pkg/apperror"
)

func TestMemStore_OrderRoundTrip(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	o := domain.Order{ID: "o1", Status: domain.OrderStatusPending}
	if err := m.SaveOrder(ctx, o); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}

	got, err := m.GetOrder(ctx, "o1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.ID != "o1" {
		t.Fatalf("ID = %v, want o1", got.ID)
	}

	if _, err := m.GetOrder(ctx, "missing"); err == nil {
		t.Fatal("expected not-found error for missing order")
	} else if appErr, ok := err.(*apperror.Error); !ok || appErr.Code != apperror.CodeResourceNotFound {
		t.Fatalf("err = %v, want ResourceNotFound apperror", err)
	}
}

func TestMemStore_ListPendingOrders_OnlyPending(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	m.SaveOrder(ctx, domain.Order{ID: "o1", Status: domain.OrderStatusPending})
	m.SaveOrder(ctx, domain.Order{ID: "o2", Status: domain.OrderStatusAssigned})
	m.SaveOrder(ctx, domain.Order{ID: "o3", Status: domain.OrderStatusPending})

	out, err := m.ListPendingOrders(ctx)
	if err != nil {
		t.Fatalf("ListPendingOrders: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("pending orders = %d, want 2", len(out))
	}
	if out[0].ID != "o1" || out[1].ID != "o3" {
		t.Fatalf("out = %+v, want o1 then o3", out)
	}
}

func TestMemStore_ListAvailableVehicles_ExcludesSelfAndBusy(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	m.SaveVehicle(ctx, domain.Vehicle{ID: "v1", Status: domain.VehicleStatusAvailable})
	m.SaveVehicle(ctx, domain.Vehicle{ID: "v2", Status: domain.VehicleStatusAvailable})
	m.SaveVehicle(ctx, domain.Vehicle{ID: "v3", Status: domain.VehicleStatusMaintenance})

	avail, err := m.ListAvailableVehicles(ctx, "v1")
	if err != nil {
		t.Fatalf("ListAvailableVehicles: %v", err)
	}
	if len(avail) != 1 || avail[0].ID != "v2" {
		t.Fatalf("avail = %+v, want only v2", avail)
	}
}

func TestMemStore_CreateRoute_ThenGetStops(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	route := domain.Route{ID: "r1", Status: domain.RouteStatusPlanned}
	stops := []domain.Stop{
		{ID: "s1", RouteID: "r1", Sequence: 0},
		{ID: "s2", RouteID: "r1", Sequence: 1},
	}
	if err := m.CreateRoute(ctx, route, stops); err != nil {
		t.Fatalf("CreateRoute: %v", err)
	}

	got, err := m.GetStops(ctx, "r1")
	if err != nil {
		t.Fatalf("GetStops: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("stops = %d, want 2", len(got))
	}
}

func TestMemStore_CommitRouteUpdate_IsAtomicAndBumpsCounters(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	route := domain.Route{ID: "r1", Status: domain.RouteStatusActive, ReoptimizationCount: 2}
	if err := m.CreateRoute(ctx, route, []domain.Stop{{ID: "s1", RouteID: "r1"}}); err != nil {
		t.Fatalf("CreateRoute: %v", err)
	}

	update := RouteUpdate{
		Route: domain.Route{ID: "r1", Status: domain.RouteStatusActive, ReoptimizationCount: 2},
		Stops: []domain.Stop{{ID: "s2", RouteID: "r1"}, {ID: "s3", RouteID: "r1"}},
		Event: domain.Event{ID: "e1", Kind: domain.EventKindReoptimizationCompleted, RouteID: "r1"},
	}
	if err := m.CommitRouteUpdate(ctx, update); err != nil {
		t.Fatalf("CommitRouteUpdate: %v", err)
	}

	got, err := m.GetRoute(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRoute: %v", err)
	}
	if got.ReoptimizationCount != 3 {
		t.Fatalf("ReoptimizationCount = %d, want 3", got.ReoptimizationCount)
	}
	if got.LastReoptimizationTime == nil {
		t.Fatal("expected LastReoptimizationTime to be stamped")
	}

	stops, err := m.GetStops(ctx, "r1")
	if err != nil {
		t.Fatalf("GetStops: %v", err)
	}
	if len(stops) != 2 {
		t.Fatalf("stops = %d, want 2 (replaced)", len(stops))
	}

	events, err := m.ListEvents(ctx, "r1", 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].ID != "e1" {
		t.Fatalf("events = %+v, want single committed event", events)
	}
}

func TestMemStore_CommitRouteUpdate_UnknownRoute(t *testing.T) {
	m := NewMemStore()
	err := m.CommitRouteUpdate(context.Background(), RouteUpdate{Route: domain.Route{ID: "missing"}})
	if err == nil {
		t.Fatal("expected not-found error for unknown route")
	}
}

func TestMemStore_ListRoutes_FiltersByStatusAndDate(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	day1 := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)

	m.CreateRoute(ctx, domain.Route{ID: "r1", Status: domain.RouteStatusPlanned, PlannedDate: day1}, nil)
	m.CreateRoute(ctx, domain.Route{ID: "r2", Status: domain.RouteStatusCompleted, PlannedDate: day1}, nil)
	m.CreateRoute(ctx, domain.Route{ID: "r3", Status: domain.RouteStatusPlanned, PlannedDate: day2}, nil)

	planned := domain.RouteStatusPlanned
	out, err := m.ListRoutes(ctx, RouteFilter{Status: &planned, Date: &day1})
	if err != nil {
		t.Fatalf("ListRoutes: %v", err)
	}
	if len(out) != 1 || out[0].ID != "r1" {
		t.Fatalf("out = %+v, want only r1", out)
	}
}

func TestMemStore_ListActiveRoutes(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	m.CreateRoute(ctx, domain.Route{ID: "r1", Status: domain.RouteStatusPlanned}, nil)
	m.CreateRoute(ctx, domain.Route{ID: "r2", Status: domain.RouteStatusActive}, nil)
	m.CreateRoute(ctx, domain.Route{ID: "r3", Status: domain.RouteStatusCompleted}, nil)

	out, err := m.ListActiveRoutes(ctx)
	if err != nil {
		t.Fatalf("ListActiveRoutes: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("active routes = %d, want 2", len(out))
	}
}
