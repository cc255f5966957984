package adaptive

import (
	"context"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
	"dispatch/internal/simulator"
)

// TriggerKind classifies what provoked a re-optimization candidate.
type TriggerKind string

const (
	TriggerDelay              TriggerKind = "delay"
	TriggerTraffic            TriggerKind = "traffic"
	TriggerVehicleBreakdown   TriggerKind = "vehicle_breakdown"
	TriggerDriverUnavailable  TriggerKind = "driver_unavailable"
	TriggerNewUrgentOrder     TriggerKind = "new_urgent_order"
	TriggerCustomerReschedule TriggerKind = "customer_reschedule"
	TriggerManual             TriggerKind = "manual"
)

// triggerWeights scale a trigger's severity in priority(), which orders the
// triggers raised for one route before a strategy is picked; higher first.
var triggerWeights = map[TriggerKind]float64{
	TriggerVehicleBreakdown:   1.0,
	TriggerDriverUnavailable:  0.9,
	TriggerDelay:              0.8,
	TriggerNewUrgentOrder:     0.8,
	TriggerTraffic:            0.6,
	TriggerCustomerReschedule: 0.5,
	TriggerManual:             0.7,
}

// Trigger is one detected condition calling a route's re-optimization
// into question.
type Trigger struct {
	Kind      TriggerKind
	RouteID   string
	Severity  float64
	Immediate bool
	Reason    string
	OrderID   string // populated for new_urgent_order
}

// priority orders triggers for aggregation: immediate triggers first,
// then by severity*weight descending.
func (t Trigger) priority() float64 {
	w := triggerWeights[t.Kind]
	p := t.Severity * w
	if t.Immediate {
		p += 10
	}
	return p
}

// evaluateRoute runs every trigger check against one route and its
// current stops, returning every trigger that fired. pending is the set
// of unassigned orders, consulted only by the new-urgent-order check.
func (o *Optimizer) evaluateRoute(ctx context.Context, route domain.Route, stops []domain.Stop, pending []domain.Order) ([]Trigger, error) {
	var triggers []Trigger

	if t, ok := o.checkDelay(route, stops); ok {
		triggers = append(triggers, t)
	}
	if t, ok := o.checkTraffic(route, stops); ok {
		triggers = append(triggers, t)
	}
	if t, ok, err := o.checkVehicleBreakdown(ctx, route); err != nil {
		return nil, err
	} else if ok {
		triggers = append(triggers, t)
	}
	if t, ok, err := o.checkDriverUnavailable(ctx, route); err != nil {
		return nil, err
	} else if ok {
		triggers = append(triggers, t)
	}
	triggers = append(triggers, o.checkNewUrgentOrders(route, stops, pending)...)

	return triggers, nil
}

// checkDelay fires when the current stop's planned arrival has already
// slipped past the configured delay threshold.
func (o *Optimizer) checkDelay(route domain.Route, stops []domain.Stop) (Trigger, bool) {
	idx := route.CurrentStopIndex
	if idx < 0 || idx >= len(stops) {
		return Trigger{}, false
	}
	current := stops[idx]
	if current.Status == domain.StopStatusCompleted {
		return Trigger{}, false
	}

	threshold := o.params.DelayThreshold
	delay := o.now().Sub(current.PlannedArrival)
	if delay <= threshold {
		return Trigger{}, false
	}

	severity := delay.Minutes() / (3 * threshold.Minutes())
	if severity > 1 {
		severity = 1
	}
	return Trigger{
		Kind:      TriggerDelay,
		RouteID:   route.ID,
		Severity:  severity,
		Immediate: delay > 2*threshold,
		Reason:    "current stop is behind its planned arrival",
	}, true
}

// checkTraffic fires when any remaining segment's live traffic factor
// exceeds the configured threshold. Segment conditions come from the
// condition simulator when one is wired; with none configured this check
// is a no-op, matching the spec's "optional" framing for C6.
func (o *Optimizer) checkTraffic(route domain.Route, stops []domain.Stop) (Trigger, bool) {
	if o.conditions == nil {
		return Trigger{}, false
	}
	snapshot := o.conditions()

	idx := route.CurrentStopIndex
	worst := 1.0
	for i := idx; i < len(stops); i++ {
		if stops[i].Status == domain.StopStatusCompleted {
			continue
		}
		factor := trafficFactorAt(snapshot, stops[i].Coordinate)
		if factor > worst {
			worst = factor
		}
	}
	if worst <= o.params.TrafficThreshold {
		return Trigger{}, false
	}

	severity := worst - 1
	if severity > 1 {
		severity = 1
	}
	return Trigger{
		Kind:     TriggerTraffic,
		RouteID:  route.ID,
		Severity: severity,
		Reason:   "remaining segment traffic factor exceeds threshold",
	}, true
}

func trafficFactorAt(snapshot simulator.Snapshot, at domain.Coordinate) float64 {
	best := 1.0
	for _, tc := range snapshot.TrafficConditions {
		if geo.HaversineDistanceM(tc.Location, at) > tc.RadiusKM*1000 {
			continue
		}
		factor := 1.0 / tc.SpeedMultiplier
		if factor > best {
			best = factor
		}
	}
	return best
}

// checkVehicleBreakdown fires when the route's vehicle is neither
// available nor in use (i.e. broken down or pulled from service).
func (o *Optimizer) checkVehicleBreakdown(ctx context.Context, route domain.Route) (Trigger, bool, error) {
	v, err := o.store.GetVehicle(ctx, route.VehicleID)
	if err != nil {
		return Trigger{}, false, err
	}
	if v.Status == domain.VehicleStatusAvailable || v.Status == domain.VehicleStatusInUse {
		return Trigger{}, false, nil
	}
	return Trigger{
		Kind:      TriggerVehicleBreakdown,
		RouteID:   route.ID,
		Severity:  1.0,
		Immediate: true,
		Reason:    "vehicle " + route.VehicleID + " is " + string(v.Status),
	}, true, nil
}

// checkDriverUnavailable fires when the route's driver has gone off
// duty or otherwise stopped being available mid-route.
func (o *Optimizer) checkDriverUnavailable(ctx context.Context, route domain.Route) (Trigger, bool, error) {
	d, err := o.store.GetDriver(ctx, route.DriverID)
	if err != nil {
		return Trigger{}, false, err
	}
	if d.Status == domain.DriverStatusAvailable || d.Status == domain.DriverStatusOnRoute {
		return Trigger{}, false, nil
	}
	return Trigger{
		Kind:      TriggerDriverUnavailable,
		RouteID:   route.ID,
		Severity:  0.9,
		Immediate: true,
		Reason:    "driver " + route.DriverID + " is " + string(d.Status),
	}, true, nil
}

const newUrgentOrderRadiusKM = 5.0

// checkNewUrgentOrders fires once per pending high/urgent-priority order
// that falls within range of any of the route's remaining stops.
func (o *Optimizer) checkNewUrgentOrders(route domain.Route, stops []domain.Stop, pending []domain.Order) []Trigger {
	var triggers []Trigger
	for _, ord := range pending {
		if ord.Priority != domain.PriorityHigh && ord.Priority != domain.PriorityUrgent {
			continue
		}
		if !nearAnyStop(ord.Coordinate, route.CurrentStopIndex, stops) {
			continue
		}
		triggers = append(triggers, Trigger{
			Kind:     TriggerNewUrgentOrder,
			RouteID:  route.ID,
			Severity: 0.8,
			Reason:   "unassigned high-priority order within range",
			OrderID:  ord.ID,
		})
	}
	return triggers
}

func nearAnyStop(at domain.Coordinate, fromIdx int, stops []domain.Stop) bool {
	for i := fromIdx; i < len(stops); i++ {
		if geo.HaversineDistanceM(at, stops[i].Coordinate) <= newUrgentOrderRadiusKM*1000 {
			return true
		}
	}
	return false
}

// customerRescheduleTrigger builds the trigger for a time-window change
// that the API layer has determined impacts feasibility. There is no
// periodic check for this one: it is raised synchronously by whichever
// caller updates the order's window (see internal/httpapi), not
// discovered during a monitor cycle.
func customerRescheduleTrigger(routeID string) Trigger {
	return Trigger{
		Kind:     TriggerCustomerReschedule,
		RouteID:  routeID,
		Severity: 0.5,
		Reason:   "customer-requested time window change impacts feasibility",
	}
}

func manualTrigger(routeID, reason string) Trigger {
	return Trigger{
		Kind:      TriggerManual,
		RouteID:   routeID,
		Severity:  1.0,
		Immediate: true,
		Reason:    reason,
	}
}

// withinCooldown reports whether route last re-solved within the
// configured cooldown window.
func (o *Optimizer) withinCooldown(route domain.Route) bool {
	if route.LastReoptimizationTime == nil {
		return false
	}
	return o.now().Sub(*route.LastReoptimizationTime) < o.params.Cooldown
}

// selectStrategy implements the authoritative strategy-selection rule:
// breakdown/unavailable triggers always escalate to emergency; three or
// more simultaneous triggers, or any severity above 0.8, escalate to
// global; otherwise a cheap local repair is attempted first.
func selectStrategy(triggers []Trigger) Strategy {
	maxSeverity := 0.0
	for _, t := range triggers {
		if t.Kind == TriggerVehicleBreakdown || t.Kind == TriggerDriverUnavailable {
			return StrategyEmergency
		}
		if t.Severity > maxSeverity {
			maxSeverity = t.Severity
		}
	}
	if maxSeverity > 0.8 || len(triggers) >= 3 {
		return StrategyGlobal
	}
	return StrategyLocal
}
