// Package solver implements the Static VRPTW Solver (C4): given orders,
// vehicles, drivers and a depot, it builds a feasible low-cost set of
// routes under a weighted multi-term objective, and exposes a bounded
// local re-solve used by the adaptive optimizer (C7) for single-route
// repairs.
package solver

import (
	"context"
	"sort"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
	"dispatch/internal/matrixcache"
	"dispatch/pkg/apperror"
	"dispatch/pkg/logger"
)

// DefaultTimeLimit bounds a static solve when the caller supplies none.
const DefaultTimeLimit = 30 * time.Second

// Input is the problem instance submitted to Solve.
type Input struct {
	Orders    []domain.Order
	Vehicles  []domain.Vehicle
	Drivers   []domain.Driver
	Depot     domain.Coordinate
	TimeLimit time.Duration
	Weights   ObjectiveWeights
	BaseCost  float64
}

// RouteResult is one constructed route, ready for persistence.
type RouteResult struct {
	VehicleID  string
	DriverID   string
	Stops      []domain.Stop
	DistanceKM float64
	DurationM  float64
}

// Stats reports solve-level metrics alongside the routes.
type Stats struct {
	ObjectiveValue  float64
	TotalDistanceKM float64
	TotalWaitingMin float64
	VehiclesUsed    int
	OrdersAssigned  int
	ComputationTime time.Duration
}

// Result is the outcome of a successful Solve call.
type Result struct {
	Routes []RouteResult
	Stats  Stats
}

// Solver orchestrates matrix construction (via the mapping provider and
// its cache), initial route construction and local-search improvement.
type Solver struct {
	Provider geo.Provider
	Cache    *matrixcache.Cache
}

// New builds a Solver backed by the given mapping provider and distance
// matrix cache. Cache may be nil to always compute matrices fresh.
func New(provider geo.Provider, cache *matrixcache.Cache) *Solver {
	return &Solver{Provider: provider, Cache: cache}
}

// Solve computes a static route set for the given problem instance.
func (s *Solver) Solve(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()

	if err := validateInput(in); err != nil {
		return nil, err
	}

	timeLimit := in.TimeLimit
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}
	weights := in.Weights
	if weights == (ObjectiveWeights{}) {
		weights = NewObjectiveWeights(0.6, 0.3, 0.1)
	}

	raw, err := s.buildMatrix(ctx, in.Depot, in.Orders)
	if err != nil {
		return nil, err
	}
	m := buildNodeMatrix(in.Orders, raw)

	if ctx.Err() != nil {
		return nil, apperror.Wrap(ctx.Err(), apperror.CodeOptimizationTimeout,
			"solver time budget elapsed before a first feasible solution")
	}

	shiftStart := earliestShiftStart(in.Drivers)
	plans, unassigned := construct(m, in.Vehicles, in.Drivers, shiftStart)

	if len(unassigned) > 0 {
		return nil, apperror.New(apperror.CodeNoFeasibleSolution,
			"no feasible route set satisfies the given constraints").
			WithDetails("unassigned_orders", len(unassigned)).
			WithDetails("total_orders", len(in.Orders))
	}

	deadline := start.Add(timeLimit)
	improve(plans, m, in.Vehicles, in.Drivers, shiftStart, deadline)

	routes, totalDistanceM, totalWaitingMin, vehiclesUsed := extractRoutes(plans, m, in.Vehicles, in.Drivers, in.Depot, shiftStart)

	objective := weights.objective(totalDistanceM/1000.0, totalWaitingMin, 0, in.BaseCost)

	logger.Info("solver: static optimization completed",
		"orders", len(in.Orders), "vehicles_used", vehiclesUsed,
		"objective", objective, "elapsed", time.Since(start))

	return &Result{
		Routes: routes,
		Stats: Stats{
			ObjectiveValue:  objective,
			TotalDistanceKM: totalDistanceM / 1000.0,
			TotalWaitingMin: totalWaitingMin,
			VehiclesUsed:    vehiclesUsed,
			OrdersAssigned:  len(in.Orders),
			ComputationTime: time.Since(start),
		},
	}, nil
}

func (s *Solver) buildMatrix(ctx context.Context, depot domain.Coordinate, orders []domain.Order) (*geo.MatrixResult, error) {
	locs := locations(depot, orders)

	if s.Cache != nil {
		if cached, ok := s.Cache.Get(ctx, locs, geo.VehicleKindCar); ok {
			return cached, nil
		}
	}

	result, err := s.Provider.Matrix(ctx, locs, locs, geo.VehicleKindCar)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeServiceUnavailable, "building distance matrix")
	}

	if s.Cache != nil {
		_ = s.Cache.Set(ctx, locs, geo.VehicleKindCar, result)
	}
	return result, nil
}

func validateInput(in Input) error {
	if len(in.Orders) == 0 {
		return apperror.New(apperror.CodeInvalidInput, "no orders provided")
	}
	if len(in.Vehicles) == 0 {
		return apperror.New(apperror.CodeInvalidInput, "no vehicles provided")
	}
	if len(in.Drivers) == 0 {
		return apperror.New(apperror.CodeInvalidInput, "no drivers provided")
	}

	var totalDemand, totalCapacity float64
	for _, v := range in.Vehicles {
		totalCapacity += v.MaxWeightKg
	}

	depotOpen, depotClose := depotHours(in.Drivers)

	for _, o := range in.Orders {
		if !o.Window.Valid() {
			return apperror.NewWithField(apperror.CodeInvalidInput,
				"order has an invalid time window", "window")
		}
		if o.Window.End.Before(depotOpen) || o.Window.Start.After(depotClose) {
			return apperror.New(apperror.CodeTimeWindowViolation,
				"order time window falls outside depot operating hours").
				WithDetails("order_id", o.ID)
		}
		totalDemand += o.WeightKg
	}

	if totalDemand > totalCapacity {
		return apperror.New(apperror.CodeCapacityViolation,
			"total vehicle capacity is insufficient for all orders").
			WithDetails("total_capacity", totalCapacity).
			WithDetails("total_demand", totalDemand)
	}

	return nil
}

// depotHours derives the depot's operating window from the widest span
// across the given drivers' shifts, since the data model has no separate
// depot-hours entity.
func depotHours(drivers []domain.Driver) (open, close time.Time) {
	open = drivers[0].ShiftStart
	close = drivers[0].ShiftEnd
	for _, d := range drivers[1:] {
		if d.ShiftStart.Before(open) {
			open = d.ShiftStart
		}
		if d.ShiftEnd.After(close) {
			close = d.ShiftEnd
		}
	}
	return open, close
}

func earliestShiftStart(drivers []domain.Driver) time.Time {
	start := drivers[0].ShiftStart
	for _, d := range drivers[1:] {
		if d.ShiftStart.Before(start) {
			start = d.ShiftStart
		}
	}
	return start
}

// extractRoutes converts each non-empty plan into a RouteResult with
// depot stops bracketing its deliveries.
func extractRoutes(plans []*plan, m *nodeMatrix, vehicles []domain.Vehicle, drivers []domain.Driver, depot domain.Coordinate, shiftStart time.Time) ([]RouteResult, float64, float64, int) {
	var routes []RouteResult
	var totalDistanceM, totalWaitingMin float64
	vehiclesUsed := 0

	for _, p := range plans {
		if len(p.nodes) == 0 {
			continue
		}
		vehiclesUsed++

		vehicle := vehicles[p.vehicleIdx]
		driver := drivers[p.driverIdx]
		depart := shiftStart
		if driver.ShiftStart.After(depart) {
			depart = driver.ShiftStart
		}

		stops := make([]domain.Stop, 0, len(p.nodes)+2)
		stops = append(stops, domain.Stop{
			Sequence:         0,
			Coordinate:       depot,
			PlannedDeparture: depart,
			Status:           domain.StopStatusPending,
		})

		prevNode := 0
		current := depart
		var distanceM float64
		for i, node := range p.nodes {
			order := m.orders[node-1]
			orderID := order.ID
			arrival := p.arrival[i]
			noWaitArrival := current.Add(time.Duration(m.travelTime(prevNode, node)) * time.Second)
			if arrival.After(noWaitArrival) {
				totalWaitingMin += arrival.Sub(noWaitArrival).Minutes()
			}
			seg := m.distance(prevNode, node)
			distanceM += seg
			stops = append(stops, domain.Stop{
				Sequence:              i + 1,
				OrderID:               &orderID,
				Coordinate:            order.Coordinate,
				PlannedArrival:        arrival,
				PlannedDeparture:      arrival.Add(order.ServiceDuration),
				Status:                domain.StopStatusPending,
				DistanceFromPrevKM:    seg / 1000.0,
				TravelTimeFromPrevMin: m.travelTime(prevNode, node) / 60.0,
			})
			current = arrival.Add(order.ServiceDuration)
			prevNode = node
		}

		finalLeg := m.distance(prevNode, 0)
		finalLegTime := time.Duration(m.travelTime(prevNode, 0)) * time.Second
		distanceM += finalLeg
		stops = append(stops, domain.Stop{
			Sequence:              len(stops),
			Coordinate:            depot,
			PlannedArrival:        current.Add(finalLegTime),
			Status:                domain.StopStatusPending,
			DistanceFromPrevKM:    finalLeg / 1000.0,
			TravelTimeFromPrevMin: m.travelTime(prevNode, 0) / 60.0,
		})

		totalDistanceM += distanceM

		routes = append(routes, RouteResult{
			VehicleID:  vehicle.ID,
			DriverID:   driver.ID,
			Stops:      stops,
			DistanceKM: distanceM / 1000.0,
			DurationM:  current.Sub(depart).Minutes(),
		})
	}

	sort.Slice(routes, func(i, j int) bool { return routes[i].VehicleID < routes[j].VehicleID })
	return routes, totalDistanceM, totalWaitingMin, vehiclesUsed
}
