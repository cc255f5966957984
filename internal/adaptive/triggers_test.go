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

func newTestOptimizer(st store.Store) *Optimizer {
	slv := solver.New(geo.NewHaversineProvider(), nil)
	bus := eventbus.New(0)
	depot := domain.Coordinate{Lat: 0, Lon: 0}
	return New(st, slv, bus, depot, Params{Cooldown: 30 * time.Minute, DelayThreshold: 10 * time.Minute})
}

func TestWithinCooldown(t *testing.T) {
	o := newTestOptimizer(store.NewMemStore())
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	o.SetClock(func() time.Time { return now })

	route := domain.Route{ID: "r1"}
	if o.withinCooldown(route) {
		t.Fatal("a route with no LastReoptimizationTime should never be in cooldown")
	}

	recent := now.Add(-5 * time.Minute)
	route.LastReoptimizationTime = &recent
	if !o.withinCooldown(route) {
		t.Fatal("a route re-solved 5 minutes ago with a 30 minute cooldown should still be in cooldown")
	}

	old := now.Add(-45 * time.Minute)
	route.LastReoptimizationTime = &old
	if o.withinCooldown(route) {
		t.Fatal("a route re-solved 45 minutes ago with a 30 minute cooldown should have cleared it")
	}
}

func TestCheckDelay(t *testing.T) {
	o := newTestOptimizer(store.NewMemStore())
	base := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)

	stops := []domain.Stop{
		{ID: "s1", PlannedArrival: base, Status: domain.StopStatusPending},
	}
	route := domain.Route{ID: "r1", CurrentStopIndex: 0}

	o.SetClock(func() time.Time { return base })
	if _, ok := o.checkDelay(route, stops); ok {
		t.Fatal("no delay yet, should not fire")
	}

	o.SetClock(func() time.Time { return base.Add(40 * time.Minute) })
	trig, ok := o.checkDelay(route, stops)
	if !ok {
		t.Fatal("40 minutes late against a 10 minute threshold should fire")
	}
	if trig.Kind != TriggerDelay {
		t.Errorf("Kind = %v, want TriggerDelay", trig.Kind)
	}
	if trig.Severity != 1 {
		t.Errorf("Severity = %v, want 1 (clamped)", trig.Severity)
	}
	if !trig.Immediate {
		t.Error("40 minutes late is more than 2x the threshold, should be immediate")
	}

	stops[0].Status = domain.StopStatusCompleted
	if _, ok := o.checkDelay(route, stops); ok {
		t.Fatal("a completed stop should never raise a delay trigger")
	}
}

func TestCheckVehicleBreakdown(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	if err := st.SaveVehicle(ctx, domain.Vehicle{ID: "v1", Status: domain.VehicleStatusAvailable}); err != nil {
		t.Fatal(err)
	}
	o := newTestOptimizer(st)
	route := domain.Route{ID: "r1", VehicleID: "v1"}

	if _, ok, err := o.checkVehicleBreakdown(ctx, route); err != nil || ok {
		t.Fatalf("available vehicle should not fire, ok=%v err=%v", ok, err)
	}

	if err := st.SaveVehicle(ctx, domain.Vehicle{ID: "v1", Status: domain.VehicleStatusOutOfService}); err != nil {
		t.Fatal(err)
	}
	trig, ok, err := o.checkVehicleBreakdown(ctx, route)
	if err != nil || !ok {
		t.Fatalf("out-of-service vehicle should fire, ok=%v err=%v", ok, err)
	}
	if trig.Kind != TriggerVehicleBreakdown || !trig.Immediate || trig.Severity != 1.0 {
		t.Errorf("unexpected trigger: %+v", trig)
	}
}

func TestCheckDriverUnavailable(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	if err := st.SaveDriver(ctx, domain.Driver{ID: "d1", Status: domain.DriverStatusOnRoute}); err != nil {
		t.Fatal(err)
	}
	o := newTestOptimizer(st)
	route := domain.Route{ID: "r1", DriverID: "d1"}

	if _, ok, err := o.checkDriverUnavailable(ctx, route); err != nil || ok {
		t.Fatalf("on-route driver should not fire, ok=%v err=%v", ok, err)
	}

	if err := st.SaveDriver(ctx, domain.Driver{ID: "d1", Status: domain.DriverStatusOffDuty}); err != nil {
		t.Fatal(err)
	}
	trig, ok, err := o.checkDriverUnavailable(ctx, route)
	if err != nil || !ok {
		t.Fatalf("off-duty driver should fire, ok=%v err=%v", ok, err)
	}
	if trig.Kind != TriggerDriverUnavailable || !trig.Immediate {
		t.Errorf("unexpected trigger: %+v", trig)
	}
}

func TestCheckNewUrgentOrders(t *testing.T) {
	o := newTestOptimizer(store.NewMemStore())
	route := domain.Route{ID: "r1", CurrentStopIndex: 0}
	stops := []domain.Stop{
		{Coordinate: domain.Coordinate{Lat: 0, Lon: 0}, Status: domain.StopStatusPending},
	}
	pending := []domain.Order{
		{ID: "near-urgent", Priority: domain.PriorityUrgent, Coordinate: domain.Coordinate{Lat: 0.01, Lon: 0}},
		{ID: "far-urgent", Priority: domain.PriorityUrgent, Coordinate: domain.Coordinate{Lat: 10, Lon: 10}},
		{ID: "near-low", Priority: domain.PriorityLow, Coordinate: domain.Coordinate{Lat: 0.01, Lon: 0}},
	}

	triggers := o.checkNewUrgentOrders(route, stops, pending)
	if len(triggers) != 1 {
		t.Fatalf("triggers = %d, want 1", len(triggers))
	}
	if triggers[0].OrderID != "near-urgent" {
		t.Errorf("OrderID = %q, want near-urgent", triggers[0].OrderID)
	}
}

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name     string
		triggers []Trigger
		want     Strategy
	}{
		{
			name:     "breakdown always escalates to emergency",
			triggers: []Trigger{{Kind: TriggerVehicleBreakdown, Severity: 0.1}},
			want:     StrategyEmergency,
		},
		{
			name:     "driver unavailable always escalates to emergency",
			triggers: []Trigger{{Kind: TriggerDriverUnavailable, Severity: 0.1}},
			want:     StrategyEmergency,
		},
		{
			name:     "high severity escalates to global",
			triggers: []Trigger{{Kind: TriggerDelay, Severity: 0.9}},
			want:     StrategyGlobal,
		},
		{
			name: "three simultaneous triggers escalate to global",
			triggers: []Trigger{
				{Kind: TriggerDelay, Severity: 0.3},
				{Kind: TriggerTraffic, Severity: 0.3},
				{Kind: TriggerCustomerReschedule, Severity: 0.3},
			},
			want: StrategyGlobal,
		},
		{
			name:     "a single low severity trigger stays local",
			triggers: []Trigger{{Kind: TriggerCustomerReschedule, Severity: 0.5}},
			want:     StrategyLocal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := selectStrategy(tt.triggers); got != tt.want {
				t.Errorf("selectStrategy() = %v, want %v", got, tt.want)
			}
		})
	}
}
