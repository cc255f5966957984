package solver

import (
	"sort"
	"time"

	"dispatch/internal/domain"
)

// waitingSlackMinutes bounds how long a vehicle may idle at a stop waiting
// for its time window to open, mirroring the construction model's allowed
// slack on the time dimension.
const waitingSlackMinutes = 30

// plan is one vehicle/driver's route under construction: a sequence of
// node indices (1-based into the order list; node 0 is the depot is
// implicit at both ends) along with running totals used for feasibility
// checks during construction and local search.
type plan struct {
	vehicleIdx int
	driverIdx  int
	nodes      []int
	arrival    []time.Time // arrival time at each node in nodes
	weightKg   float64
	volumeM3   float64
}

func (p *plan) lastNode() int {
	if len(p.nodes) == 0 {
		return 0 // depot
	}
	return p.nodes[len(p.nodes)-1]
}

func (p *plan) lastDeparture(orders []domain.Order) time.Time {
	if len(p.nodes) == 0 {
		return time.Time{}
	}
	idx := len(p.nodes) - 1
	order := orders[p.nodes[idx]-1]
	return p.arrival[idx].Add(order.ServiceDuration)
}

// construct builds an initial feasible solution with a nearest-feasible
// insertion heuristic: for each vehicle/driver pair in turn, repeatedly
// append the cheapest still-unassigned order that keeps the route
// feasible, until no such order exists, then move to the next vehicle.
// Vehicle/driver pairs are zipped by index, as the input already pairs
// compatible capacity/experience off-matrix.
func construct(m *nodeMatrix, vehicles []domain.Vehicle, drivers []domain.Driver, shiftStart time.Time) ([]*plan, map[int]bool) {
	unassigned := make(map[int]bool, len(m.orders))
	for i := range m.orders {
		unassigned[i] = true
	}

	numPairs := len(vehicles)
	if len(drivers) < numPairs {
		numPairs = len(drivers)
	}

	var plans []*plan
	for v := 0; v < numPairs; v++ {
		p := &plan{vehicleIdx: v, driverIdx: v}
		start := shiftStart
		if drivers[v].ShiftStart.After(start) {
			start = drivers[v].ShiftStart
		}
		extendPlan(p, m, vehicles[v], drivers[v], unassigned, start)
		plans = append(plans, p)
	}

	return plans, unassigned
}

// extendPlan greedily appends feasible orders to p until none remain that
// fit its vehicle's capacity and working-minutes budget, its driver's stop
// limit, and the candidate's own time window (with bounded waiting).
func extendPlan(p *plan, m *nodeMatrix, vehicle domain.Vehicle, driver domain.Driver, unassigned map[int]bool, depart time.Time) {
	currentTime := depart
	maxWorking := time.Duration(vehicle.MaxWorkingMinutes) * time.Minute
	routeDeadline := depart.Add(maxWorking)

	for {
		if len(p.nodes) >= driver.MaxStopsPerRoute {
			return
		}

		bestOrderIdx := -1
		var bestArrival time.Time
		var bestCost float64

		candidates := sortedUnassignedIndices(unassigned)
		for _, oi := range candidates {
			order := m.orders[oi]

			if p.weightKg+order.WeightKg > vehicle.MaxWeightKg {
				continue
			}
			if p.volumeM3+order.VolumeM3 > vehicle.MaxVolumeM3 {
				continue
			}

			fromNode := p.lastNode()
			toNode := oi + 1
			travel := time.Duration(m.travelTime(fromNode, toNode)) * time.Second
			rawArrival := currentTime.Add(travel)

			arrival := rawArrival
			if arrival.Before(order.Window.Start) {
				slack := order.Window.Start.Sub(arrival)
				if slack > waitingSlackMinutes*time.Minute {
					continue // wait would exceed the configured slack cap
				}
				arrival = order.Window.Start
			}
			if arrival.After(order.Window.End) {
				continue
			}

			departure := arrival.Add(order.ServiceDuration)
			if departure.After(routeDeadline) {
				continue
			}

			cost := m.distance(fromNode, toNode)
			if bestOrderIdx == -1 || cost < bestCost ||
				(cost == bestCost && order.ID < m.orders[bestOrderIdx].ID) {
				bestOrderIdx = oi
				bestArrival = arrival
				bestCost = cost
			}
		}

		if bestOrderIdx == -1 {
			return
		}

		order := m.orders[bestOrderIdx]
		p.nodes = append(p.nodes, bestOrderIdx+1)
		p.arrival = append(p.arrival, bestArrival)
		p.weightKg += order.WeightKg
		p.volumeM3 += order.VolumeM3
		currentTime = bestArrival.Add(order.ServiceDuration)
		delete(unassigned, bestOrderIdx)
	}
}

// sortedUnassignedIndices returns unassigned order indices in a stable
// order so construction is deterministic across runs.
func sortedUnassignedIndices(unassigned map[int]bool) []int {
	out := make([]int, 0, len(unassigned))
	for i := range unassigned {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
