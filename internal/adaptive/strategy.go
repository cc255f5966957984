package adaptive

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/solver"
	"dispatch/internal/store"
	"dispatch/pkg/logger"
)

// reoptimizeRoute is the top-level orchestrator: it acquires the route's
// lock (serializing against any other mutation of the same route),
// registers a cancellable solve context, picks a strategy from the
// aggregated triggers, and runs it. A later trigger for the same route
// waits on the lock; it does not cancel the solve in progress.
func (o *Optimizer) reoptimizeRoute(ctx context.Context, route domain.Route, triggers []Trigger) {
	sort.Slice(triggers, func(i, j int) bool { return triggers[i].priority() > triggers[j].priority() })

	strategy := selectStrategy(triggers)

	o.locker.WithLock(route.ID, func() {
		solveCtx, token := o.beginSolve(ctx, route.ID)
		defer o.endSolve(route.ID, token)

		stops, err := o.store.GetStops(solveCtx, route.ID)
		if err != nil {
			logger.Error("adaptive: failed to reload stops before re-solve", "route_id", route.ID, "error", err)
			return
		}

		var solveErr error
		switch strategy {
		case StrategyEmergency:
			solveErr = o.emergencyReoptimize(solveCtx, route, stops, triggers)
		case StrategyGlobal:
			o.publishEvent(o.triggeredEvent(route.ID, triggers, strategy))
			solveErr = o.globalReoptimize(solveCtx, route, stops, triggers)
		default:
			o.publishEvent(o.triggeredEvent(route.ID, triggers, strategy))
			solveErr = o.localReoptimize(solveCtx, route, stops, triggers)
		}

		if solveErr != nil {
			if solveCtx.Err() != nil {
				logger.Info("adaptive: re-solve cancelled",
					"route_id", route.ID, "strategy", strategy)
				return
			}
			logger.Error("adaptive: re-solve failed", "route_id", route.ID, "strategy", strategy, "error", solveErr)
			o.publishEvent(o.failureEvent(route.ID, triggers, solveErr.Error()))
		}
	})
}

// splitStops partitions a route's stops into the locked prefix (already
// visited or in progress — never reordered, per §4.6's invariants) and
// the pending tail a re-solve is allowed to touch.
func splitStops(currentIdx int, stops []domain.Stop) (locked, pending []domain.Stop) {
	for i, st := range stops {
		if i < currentIdx || st.Status != domain.StopStatusPending {
			locked = append(locked, st)
			continue
		}
		pending = append(pending, st)
	}
	return locked, pending
}

// renumber concatenates locked and tail, reassigning Sequence so the
// result is a contiguous 0..n-1 run.
func renumber(locked, tail []domain.Stop) []domain.Stop {
	out := make([]domain.Stop, 0, len(locked)+len(tail))
	out = append(out, locked...)
	out = append(out, tail...)
	for i := range out {
		out[i].Sequence = i
	}
	return out
}

// localReoptimize invokes C4's bounded 2-opt repair on the route's
// pending tail and commits only if it finds a strict improvement.
func (o *Optimizer) localReoptimize(ctx context.Context, route domain.Route, stops []domain.Stop, triggers []Trigger) error {
	locked, pending := splitStops(route.CurrentStopIndex, stops)

	reordered, improvementKM, ok := solver.ReoptimizeSegment(pending)
	if !ok || improvementKM <= 0 {
		logger.Info("adaptive: local repair found no improving reorder", "route_id", route.ID)
		return nil
	}

	newStops := renumber(locked, reordered)
	event := o.completionEvent(route.ID, triggers, map[string]any{
		"strategy":       string(StrategyLocal),
		"improvement_km": improvementKM,
	})
	return o.commit(ctx, store.RouteUpdate{Route: route, Stops: newStops, Event: event})
}

// globalReoptimize re-solves the affected route together with up to
// GlobalNeighborRoutes same-day neighbors, committing only if the new
// aggregate objective does not regress past the configured margin.
func (o *Optimizer) globalReoptimize(ctx context.Context, route domain.Route, stops []domain.Stop, triggers []Trigger) error {
	neighbors, err := o.sameDayNeighbors(ctx, route)
	if err != nil {
		return err
	}

	type affected struct {
		route  domain.Route
		locked []domain.Stop
		tail   []domain.Stop
	}
	group := []affected{{route: route}}
	group[0].locked, group[0].tail = splitStops(route.CurrentStopIndex, stops)
	for _, n := range neighbors {
		nStops, err := o.store.GetStops(ctx, n.ID)
		if err != nil {
			return err
		}
		locked, tail := splitStops(n.CurrentStopIndex, nStops)
		group = append(group, affected{route: n, locked: locked, tail: tail})
	}

	vehicles := make([]domain.Vehicle, 0, len(group))
	drivers := make([]domain.Driver, 0, len(group))
	oldObjective := 0.0
	var orders []domain.Order
	seenOrders := make(map[string]bool)

	for _, g := range group {
		v, err := o.store.GetVehicle(ctx, g.route.VehicleID)
		if err != nil {
			return err
		}
		d, err := o.store.GetDriver(ctx, g.route.DriverID)
		if err != nil {
			return err
		}
		vehicles = append(vehicles, v)
		drivers = append(drivers, d)
		oldObjective += g.route.OptimizationScore

		for _, st := range g.tail {
			if st.OrderID == nil || seenOrders[*st.OrderID] {
				continue
			}
			ord, err := o.store.GetOrder(ctx, *st.OrderID)
			if err != nil {
				return err
			}
			orders = append(orders, ord)
			seenOrders[ord.ID] = true
		}
	}

	for _, t := range triggers {
		if t.Kind != TriggerNewUrgentOrder || t.OrderID == "" || seenOrders[t.OrderID] {
			continue
		}
		ord, err := o.store.GetOrder(ctx, t.OrderID)
		if err != nil {
			continue
		}
		orders = append(orders, ord)
		seenOrders[ord.ID] = true
	}

	if len(orders) == 0 {
		logger.Info("adaptive: global re-solve skipped, no reassignable orders", "route_id", route.ID)
		return nil
	}

	result, err := o.solver.Solve(ctx, solver.Input{
		Orders:    orders,
		Vehicles:  vehicles,
		Drivers:   drivers,
		Depot:     o.depot,
		TimeLimit: o.params.GlobalSolveBudget,
	})
	if err != nil {
		return err
	}

	newObjective := result.Stats.ObjectiveValue
	if oldObjective > 0 && newObjective > oldObjective*(1+o.params.ObjectiveMargin) {
		o.publishEvent(domain.Event{
			ID:       uuid.NewString(),
			Kind:     domain.EventKindReoptimizationRejected,
			Severity: domain.SeverityMedium,
			Status:   domain.EventStatusActive,
			Timestamp: o.now(),
			RouteID:  route.ID,
			Payload: map[string]any{
				"old_objective": oldObjective,
				"new_objective": newObjective,
				"margin":        o.params.ObjectiveMargin,
			},
		})
		logger.Info("adaptive: global re-solve rejected, objective regressed past margin",
			"route_id", route.ID, "old_objective", oldObjective, "new_objective", newObjective)
		return nil
	}

	byVehicle := make(map[string]solver.RouteResult, len(result.Routes))
	for _, r := range result.Routes {
		byVehicle[r.VehicleID] = r
	}

	for _, g := range group {
		rr, ok := byVehicle[g.route.VehicleID]
		var tail []domain.Stop
		if ok {
			tail = stampStopIDs(rr.Stops, g.route.ID)
		}
		newStops := renumber(g.locked, tail)
		event := o.completionEvent(g.route.ID, triggers, map[string]any{
			"strategy":      string(StrategyGlobal),
			"old_objective": oldObjective,
			"new_objective": newObjective,
		})
		if err := o.commit(ctx, store.RouteUpdate{Route: g.route, Stops: newStops, Event: event}); err != nil {
			return err
		}
		if err := o.syncOrderLinks(ctx, newStops, g.route.DriverID); err != nil {
			return err
		}
	}
	return nil
}

// sameDayNeighbors returns up to GlobalNeighborRoutes other active routes
// planned for the same day as route, excluding route itself.
func (o *Optimizer) sameDayNeighbors(ctx context.Context, route domain.Route) ([]domain.Route, error) {
	all, err := o.store.ListActiveRoutes(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Route
	for _, r := range all {
		if r.ID == route.ID {
			continue
		}
		if !r.PlannedDate.Equal(route.PlannedDate) {
			continue
		}
		out = append(out, r)
		if len(out) >= o.params.GlobalNeighborRoutes {
			break
		}
	}
	return out, nil
}

// stampStopIDs assigns fresh ids and the owning route id to solver
// output stops, which carry neither (they are built fresh by C4).
func stampStopIDs(stops []domain.Stop, routeID string) []domain.Stop {
	out := make([]domain.Stop, len(stops))
	for i, st := range stops {
		st.ID = uuid.NewString()
		st.RouteID = routeID
		out[i] = st
	}
	return out
}

// syncOrderLinks keeps each order's denormalized DriverID/StopID pointed
// at its current stop after a re-solve moves it onto a new Stop record.
func (o *Optimizer) syncOrderLinks(ctx context.Context, stops []domain.Stop, driverID string) error {
	for _, st := range stops {
		if st.OrderID == nil {
			continue
		}
		ord, err := o.store.GetOrder(ctx, *st.OrderID)
		if err != nil {
			return err
		}
		id := st.ID
		ord.StopID = &id
		dID := driverID
		ord.DriverID = &dID
		ord.Status = domain.OrderStatusAssigned
		if err := o.store.SaveOrder(ctx, ord); err != nil {
			return err
		}
	}
	return nil
}

// emergencyReoptimize handles vehicle-breakdown and driver-unavailable
// triggers: the route is marked disrupted, its unfinished orders are
// detached back into the pending pool, and an alternate vehicle/driver
// pair is sought under a short time budget.
func (o *Optimizer) emergencyReoptimize(ctx context.Context, route domain.Route, stops []domain.Stop, triggers []Trigger) error {
	locked, tail := splitStops(route.CurrentStopIndex, stops)

	var orders []domain.Order
	for _, st := range tail {
		if st.OrderID == nil {
			continue
		}
		ord, err := o.store.GetOrder(ctx, *st.OrderID)
		if err != nil {
			return err
		}
		ord.Status = domain.OrderStatusPending
		ord.DriverID = nil
		ord.StopID = nil
		if err := o.store.SaveOrder(ctx, ord); err != nil {
			return err
		}
		orders = append(orders, ord)
	}

	disrupted := route
	disrupted.Status = domain.RouteStatusDisrupted
	disruptEvent := o.completionEvent(route.ID, triggers, map[string]any{"strategy": string(StrategyEmergency), "phase": "detached"})
	disruptEvent.Kind = domain.EventKindReoptimizationTriggered
	if err := o.commit(ctx, store.RouteUpdate{Route: disrupted, Stops: locked, Event: disruptEvent}); err != nil {
		return err
	}

	if len(orders) == 0 {
		return nil
	}

	altVehicles, err := o.store.ListAvailableVehicles(ctx, route.VehicleID)
	if err != nil {
		return err
	}
	altDrivers, err := o.store.ListAvailableDrivers(ctx, route.DriverID)
	if err != nil {
		return err
	}
	altVehicles = limitVehicles(altVehicles, 3)
	altDrivers = limitDrivers(altDrivers, 3)

	if len(altVehicles) == 0 || len(altDrivers) == 0 {
		o.publishEvent(o.manualInterventionEvent(route.ID, "no alternate vehicle/driver available for emergency reassignment"))
		return nil
	}

	result, err := o.solver.Solve(ctx, solver.Input{
		Orders:    orders,
		Vehicles:  altVehicles,
		Drivers:   altDrivers,
		Depot:     o.depot,
		TimeLimit: o.params.EmergencySolveBudget,
	})
	if err != nil {
		o.publishEvent(o.manualInterventionEvent(route.ID, "emergency re-solve failed: "+err.Error()))
		return nil
	}

	for i, rr := range result.Routes {
		if i == 0 {
			newStops := stampStopIDs(rr.Stops, route.ID)
			reassigned := route
			reassigned.VehicleID = rr.VehicleID
			reassigned.DriverID = rr.DriverID
			reassigned.Status = domain.RouteStatusActive
			event := o.completionEvent(route.ID, triggers, map[string]any{"strategy": string(StrategyEmergency), "phase": "reassigned"})
			if err := o.commit(ctx, store.RouteUpdate{Route: reassigned, Stops: newStops, Event: event}); err != nil {
				return err
			}
			if err := o.syncOrderLinks(ctx, newStops, reassigned.DriverID); err != nil {
				return err
			}
			continue
		}

		newRoute := domain.Route{
			ID:          uuid.NewString(),
			VehicleID:   rr.VehicleID,
			DriverID:    rr.DriverID,
			PlannedDate: route.PlannedDate,
			Status:      domain.RouteStatusActive,
		}
		newStops := stampStopIDs(rr.Stops, newRoute.ID)
		if err := o.store.CreateRoute(ctx, newRoute, newStops); err != nil {
			return err
		}
		if err := o.syncOrderLinks(ctx, newStops, newRoute.DriverID); err != nil {
			return err
		}
		o.publishEvent(o.completionEvent(newRoute.ID, triggers, map[string]any{"strategy": string(StrategyEmergency), "phase": "spawned"}))
	}
	return nil
}

func limitVehicles(v []domain.Vehicle, n int) []domain.Vehicle {
	if len(v) > n {
		return v[:n]
	}
	return v
}

func limitDrivers(d []domain.Driver, n int) []domain.Driver {
	if len(d) > n {
		return d[:n]
	}
	return d
}

// commit runs the shared commit protocol: CommitRouteUpdate persists the
// new stops, the event, the bumped reoptimization_count and the cooldown
// marker in one transaction; only the bus publish happens outside it.
func (o *Optimizer) commit(ctx context.Context, update store.RouteUpdate) error {
	if err := o.store.CommitRouteUpdate(ctx, update); err != nil {
		return err
	}
	if o.bus != nil {
		o.bus.Publish(update.Event)
	}
	return nil
}

// triggeredEvent marks the start of a local or global re-solve, published
// before the solve runs so subscribers see reoptimization_triggered ahead
// of the eventual completion/failure event, per §4.6's commit protocol.
func (o *Optimizer) triggeredEvent(routeID string, triggers []Trigger, strategy Strategy) domain.Event {
	return domain.Event{
		ID:                     uuid.NewString(),
		Kind:                   domain.EventKindReoptimizationTriggered,
		Severity:               maxTriggerSeverity(triggers),
		Status:                 domain.EventStatusActive,
		Timestamp:              o.now(),
		RouteID:                routeID,
		TriggersReoptimization: true,
		Payload:                map[string]any{"strategy": string(strategy), "triggers": triggerKinds(triggers)},
	}
}

func (o *Optimizer) completionEvent(routeID string, triggers []Trigger, payload map[string]any) domain.Event {
	payload["triggers"] = triggerKinds(triggers)
	return domain.Event{
		ID:                     uuid.NewString(),
		Kind:                   domain.EventKindReoptimizationCompleted,
		Severity:               maxTriggerSeverity(triggers),
		Status:                 domain.EventStatusActive,
		Timestamp:              o.now(),
		RouteID:                routeID,
		TriggersReoptimization: false,
		Payload:                payload,
	}
}

func (o *Optimizer) failureEvent(routeID string, triggers []Trigger, reason string) domain.Event {
	return domain.Event{
		ID:        uuid.NewString(),
		Kind:      domain.EventKindReoptimizationFailed,
		Severity:  domain.SeverityHigh,
		Status:    domain.EventStatusActive,
		Timestamp: o.now(),
		RouteID:   routeID,
		Payload:   map[string]any{"reason": reason, "triggers": triggerKinds(triggers)},
	}
}

func (o *Optimizer) manualInterventionEvent(routeID, reason string) domain.Event {
	return domain.Event{
		ID:        uuid.NewString(),
		Kind:      domain.EventKindManualInterventionNeeded,
		Severity:  domain.SeverityCritical,
		Status:    domain.EventStatusActive,
		Timestamp: o.now(),
		RouteID:   routeID,
		Payload:   map[string]any{"reason": reason},
	}
}

func (o *Optimizer) publishEvent(e domain.Event) {
	if err := o.store.SaveEvent(context.Background(), e); err != nil {
		logger.Error("adaptive: failed to persist event", "event_id", e.ID, "error", err)
	}
	if o.bus != nil {
		o.bus.Publish(e)
	}
}

func triggerKinds(triggers []Trigger) []string {
	out := make([]string, len(triggers))
	for i, t := range triggers {
		out[i] = string(t.Kind)
	}
	return out
}

func maxTriggerSeverity(triggers []Trigger) domain.EventSeverity {
	max := 0.0
	for _, t := range triggers {
		if t.Severity > max {
			max = t.Severity
		}
	}
	switch {
	case max >= 0.9:
		return domain.SeverityCritical
	case max >= 0.6:
		return domain.SeverityHigh
	case max >= 0.3:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}
