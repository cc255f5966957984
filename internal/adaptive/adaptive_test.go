package adaptive

import (
	"context"
	"testing"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/eventbus"
	"dispatch/internal/geo"
	"dispatch/internal/solver"
	"dispatch/internal/store"
)

func mustTime(t *testing.T, hhmm string) time.Time {
	t.Helper()
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		t.Fatalf("parsing time %q: %v", hhmm, err)
	}
	return time.Date(2026, 7, 31, parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

// TestLocalReoptimize_CommitsOnImprovement builds a classic crossing-path
// 2-opt scenario: visiting the four stops in the given order crosses
// itself, so a single segment reversal strictly shortens the path.
func TestLocalReoptimize_CommitsOnImprovement(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()

	route := domain.Route{
		ID:          "r1",
		VehicleID:   "v1",
		DriverID:    "d1",
		PlannedDate: mustTime(t, "00:00"),
		Status:      domain.RouteStatusActive,
	}
	stops := []domain.Stop{
		{ID: "s1", RouteID: "r1", Sequence: 0, Coordinate: domain.Coordinate{Lat: 0.000, Lon: 0.000}, Status: domain.StopStatusPending},
		{ID: "s2", RouteID: "r1", Sequence: 1, Coordinate: domain.Coordinate{Lat: 0.001, Lon: 0.001}, Status: domain.StopStatusPending},
		{ID: "s3", RouteID: "r1", Sequence: 2, Coordinate: domain.Coordinate{Lat: 0.000, Lon: 0.001}, Status: domain.StopStatusPending},
		{ID: "s4", RouteID: "r1", Sequence: 3, Coordinate: domain.Coordinate{Lat: 0.001, Lon: 0.000}, Status: domain.StopStatusPending},
	}
	if err := st.CreateRoute(ctx, route, stops); err != nil {
		t.Fatal(err)
	}

	o := newTestOptimizer(st)
	handle, events := o.eventBusForTest().Subscribe(nil)
	defer o.eventBusForTest().Unsubscribe(handle)

	o.reoptimizeRoute(ctx, route, []Trigger{customerRescheduleTrigger(route.ID)})

	got, err := st.GetRoute(ctx, route.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReoptimizationCount != 1 {
		t.Errorf("ReoptimizationCount = %d, want 1", got.ReoptimizationCount)
	}
	if got.LastReoptimizationTime == nil {
		t.Fatal("LastReoptimizationTime should be stamped after a commit")
	}

	newStops, err := st.GetStops(ctx, route.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(newStops) != 4 {
		t.Fatalf("stops = %d, want 4", len(newStops))
	}
	if newStops[1].ID != "s3" || newStops[2].ID != "s2" {
		t.Errorf("expected the middle pair reversed (s1,s3,s2,s4), got order %v",
			[]string{newStops[0].ID, newStops[1].ID, newStops[2].ID, newStops[3].ID})
	}
	for i, s := range newStops {
		if s.Sequence != i {
			t.Errorf("stop %d Sequence = %d, want %d", i, s.Sequence, i)
		}
	}

	select {
	case e := <-events:
		if e.Kind != domain.EventKindReoptimizationTriggered {
			t.Errorf("first event kind = %v, want reoptimization_triggered", e.Kind)
		}
	default:
		t.Error("expected a reoptimization_triggered event on the bus")
	}

	select {
	case e := <-events:
		if e.Kind != domain.EventKindReoptimizationCompleted {
			t.Errorf("second event kind = %v, want reoptimization_completed", e.Kind)
		}
	default:
		t.Error("expected a reoptimization_completed event on the bus")
	}

	evs, err := st.ListEvents(ctx, route.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 {
		t.Fatalf("persisted events = %d, want exactly 2 (triggered + completed, commit must not double-persist the completion)", len(evs))
	}
}

// TestManualReoptimize_BypassesCooldown verifies an operator-triggered
// reoptimize runs even though the route is well within its cooldown
// window. A manual trigger always carries severity 1.0, which escalates
// to the global strategy, so the fixture needs a full vehicle/driver/
// order set for the re-solve to succeed.
func TestManualReoptimize_BypassesCooldown(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	depot := domain.Coordinate{Lat: 55.75, Lon: 37.61}

	if err := st.SaveVehicle(ctx, domain.Vehicle{ID: "v1", Status: domain.VehicleStatusAvailable, MaxWeightKg: 100, MaxVolumeM3: 10, MaxWorkingMinutes: 480}); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveDriver(ctx, domain.Driver{ID: "d1", Status: domain.DriverStatusAvailable, ShiftStart: mustTime(t, "08:00"), ShiftEnd: mustTime(t, "18:00"), MaxStopsPerRoute: 10}); err != nil {
		t.Fatal(err)
	}

	order := domain.Order{ID: "o1", Coordinate: domain.Coordinate{Lat: 55.76, Lon: 37.62}, Window: domain.TimeWindow{Start: mustTime(t, "08:00"), End: mustTime(t, "18:00")}, WeightKg: 5, ServiceDuration: 10 * time.Minute, Priority: domain.PriorityMedium, Status: domain.OrderStatusAssigned, DriverID: strPtr("d1"), StopID: strPtr("s1")}
	if err := st.SaveOrder(ctx, order); err != nil {
		t.Fatal(err)
	}

	recent := time.Now().Add(-time.Minute)
	route := domain.Route{
		ID:                     "r1",
		VehicleID:              "v1",
		DriverID:               "d1",
		PlannedDate:            mustTime(t, "00:00"),
		Status:                 domain.RouteStatusActive,
		LastReoptimizationTime: &recent,
	}
	oid := order.ID
	stops := []domain.Stop{
		{ID: "s1", RouteID: "r1", Sequence: 0, OrderID: &oid, Coordinate: order.Coordinate, Status: domain.StopStatusPending},
	}
	if err := st.CreateRoute(ctx, route, stops); err != nil {
		t.Fatal(err)
	}

	if !newTestOptimizer(st).withinCooldown(route) {
		t.Fatal("test setup invalid: route should be within cooldown")
	}

	slv := solver.New(geo.NewHaversineProvider(), nil)
	bus := eventbus.New(0)
	o := New(st, slv, bus, depot, Params{})

	if err := o.ManualReoptimize(ctx, route.ID, "operator requested"); err != nil {
		t.Fatalf("ManualReoptimize: %v", err)
	}

	got, err := st.GetRoute(ctx, route.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReoptimizationCount != 1 {
		t.Errorf("ReoptimizationCount = %d, want 1 (manual reoptimize must ignore cooldown)", got.ReoptimizationCount)
	}
}

// TestEmergencyReoptimize_DetachesAndReassigns drives a full breakdown
// scenario: the primary vehicle goes out of service, its unfinished
// orders detach to pending, and an alternate vehicle/driver pair picks
// them back up.
func TestEmergencyReoptimize_DetachesAndReassigns(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()

	depot := domain.Coordinate{Lat: 55.75, Lon: 37.61}
	if err := st.SaveVehicle(ctx, domain.Vehicle{ID: "v1", Status: domain.VehicleStatusOutOfService, MaxWeightKg: 100, MaxVolumeM3: 10, MaxWorkingMinutes: 480}); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveDriver(ctx, domain.Driver{ID: "d1", Status: domain.DriverStatusAvailable, ShiftStart: mustTime(t, "08:00"), ShiftEnd: mustTime(t, "18:00"), MaxStopsPerRoute: 10}); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveVehicle(ctx, domain.Vehicle{ID: "v2", Status: domain.VehicleStatusAvailable, MaxWeightKg: 100, MaxVolumeM3: 10, MaxWorkingMinutes: 480}); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveDriver(ctx, domain.Driver{ID: "d2", Status: domain.DriverStatusAvailable, ShiftStart: mustTime(t, "08:00"), ShiftEnd: mustTime(t, "18:00"), MaxStopsPerRoute: 10}); err != nil {
		t.Fatal(err)
	}

	orders := []domain.Order{
		{ID: "o1", Coordinate: domain.Coordinate{Lat: 55.76, Lon: 37.62}, Window: domain.TimeWindow{Start: mustTime(t, "08:00"), End: mustTime(t, "18:00")}, WeightKg: 5, ServiceDuration: 10 * time.Minute, Priority: domain.PriorityMedium, Status: domain.OrderStatusAssigned, DriverID: strPtr("d1"), StopID: strPtr("s2")},
		{ID: "o2", Coordinate: domain.Coordinate{Lat: 55.74, Lon: 37.60}, Window: domain.TimeWindow{Start: mustTime(t, "08:00"), End: mustTime(t, "18:00")}, WeightKg: 5, ServiceDuration: 10 * time.Minute, Priority: domain.PriorityMedium, Status: domain.OrderStatusAssigned, DriverID: strPtr("d1"), StopID: strPtr("s3")},
	}
	for _, o := range orders {
		if err := st.SaveOrder(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	route := domain.Route{ID: "r1", VehicleID: "v1", DriverID: "d1", PlannedDate: mustTime(t, "00:00"), Status: domain.RouteStatusActive, CurrentStopIndex: 1}
	o1, o2 := orders[0].ID, orders[1].ID
	stops := []domain.Stop{
		{ID: "depot", RouteID: "r1", Sequence: 0, Coordinate: depot, Status: domain.StopStatusCompleted},
		{ID: "s2", RouteID: "r1", Sequence: 1, OrderID: &o1, Coordinate: orders[0].Coordinate, Status: domain.StopStatusPending},
		{ID: "s3", RouteID: "r1", Sequence: 2, OrderID: &o2, Coordinate: orders[1].Coordinate, Status: domain.StopStatusPending},
	}
	if err := st.CreateRoute(ctx, route, stops); err != nil {
		t.Fatal(err)
	}

	slv := solver.New(geo.NewHaversineProvider(), nil)
	bus := eventbus.New(0)
	opt := New(st, slv, bus, depot, Params{EmergencySolveBudget: 2 * time.Second})

	trig, ok, err := opt.checkVehicleBreakdown(ctx, route)
	if err != nil || !ok {
		t.Fatalf("expected the breakdown trigger to fire, ok=%v err=%v", ok, err)
	}
	if selectStrategy([]Trigger{trig}) != StrategyEmergency {
		t.Fatal("a vehicle breakdown trigger must select the emergency strategy")
	}

	opt.reoptimizeRoute(ctx, route, []Trigger{trig})

	primary, err := st.GetRoute(ctx, route.ID)
	if err != nil {
		t.Fatal(err)
	}
	if primary.VehicleID == "v1" {
		t.Error("the primary route should have been reassigned off the broken-down vehicle")
	}
	if primary.Status != domain.RouteStatusActive && primary.Status != domain.RouteStatusDisrupted {
		t.Errorf("unexpected route status after emergency reassignment: %v", primary.Status)
	}

	updated1, err := st.GetOrder(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	updated2, err := st.GetOrder(ctx, "o2")
	if err != nil {
		t.Fatal(err)
	}
	if updated1.Status != domain.OrderStatusAssigned || updated2.Status != domain.OrderStatusAssigned {
		t.Error("both detached orders should have been reassigned to a stop by the end of emergency repair")
	}
}

// TestOptimizer_StartStopMonitoring exercises the monitor loop's lifecycle
// without waiting for a real tick: start, then stop, and confirm the
// status flips cleanly both ways.
func TestOptimizer_StartStopMonitoring(t *testing.T) {
	o := newTestOptimizer(store.NewMemStore())
	o.params.MonitorInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o.StartMonitoring(ctx)
	if !o.GetMonitoringStatus().Running {
		t.Fatal("status should report Running after StartMonitoring")
	}

	o.StopMonitoring()
	if o.GetMonitoringStatus().Running {
		t.Fatal("status should report not Running after StopMonitoring")
	}
}

// eventBusForTest exposes the optimizer's bus for assertions; adaptive's
// bus field is unexported but tests live in the same package.
func (o *Optimizer) eventBusForTest() *eventbus.Bus { return o.bus }
