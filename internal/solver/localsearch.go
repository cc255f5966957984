package solver

import (
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
)

// improve runs 2-opt and Or-opt local search over every plan's stop
// sequence until the deadline passes or a full pass finds no improving
// move, mirroring guided-local-search-style refinement without pulling in
// a constraint-programming dependency: each candidate move is accepted
// only if it still respects every order's time window and the route's
// capacity/working-hours budget.
func improve(plans []*plan, m *nodeMatrix, vehicles []domain.Vehicle, drivers []domain.Driver, shiftStart time.Time, deadline time.Time) {
	for _, p := range plans {
		if len(p.nodes) < 3 {
			continue
		}
		vehicle := vehicles[p.vehicleIdx]
		driver := drivers[p.driverIdx]
		depart := shiftStart
		if driver.ShiftStart.After(depart) {
			depart = driver.ShiftStart
		}

		for time.Now().Before(deadline) {
			moved := twoOptPass(p, m, vehicle, driver, depart)
			moved = orOptPass(p, m, vehicle, driver, depart) || moved
			if !moved {
				break
			}
		}
	}
}

// twoOptPass tries every segment-reversal once, applying the first move
// that improves total distance while remaining feasible. Returns true if a
// move was applied, so the caller can keep iterating until a pass yields
// no improvement.
func twoOptPass(p *plan, m *nodeMatrix, vehicle domain.Vehicle, driver domain.Driver, depart time.Time) bool {
	n := len(p.nodes)
	baseline := routeDistance(p.nodes, m)

	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			candidate := reversedCopy(p.nodes, i, j)
			if routeDistance(candidate, m) >= baseline {
				continue
			}
			arrivals, feasible := simulate(candidate, m, vehicle, driver, depart)
			if !feasible {
				continue
			}
			p.nodes = candidate
			p.arrival = arrivals
			return true
		}
	}
	return false
}

// orOptPass tries relocating every run of 1-3 consecutive nodes to every
// other position in the sequence once, applying the first relocation that
// improves total distance while remaining feasible. Returns true if a move
// was applied, so the caller can keep iterating until a pass yields no
// improvement.
func orOptPass(p *plan, m *nodeMatrix, vehicle domain.Vehicle, driver domain.Driver, depart time.Time) bool {
	n := len(p.nodes)
	baseline := routeDistance(p.nodes, m)

	for segLen := 1; segLen <= 3 && segLen < n; segLen++ {
		for i := 0; i+segLen <= n; i++ {
			for j := 0; j <= n; j++ {
				if j >= i && j <= i+segLen {
					continue
				}
				candidate := relocatedCopy(p.nodes, i, segLen, j)
				if routeDistance(candidate, m) >= baseline {
					continue
				}
				arrivals, feasible := simulate(candidate, m, vehicle, driver, depart)
				if !feasible {
					continue
				}
				p.nodes = candidate
				p.arrival = arrivals
				return true
			}
		}
	}
	return false
}

// relocatedCopy returns nodes with the segment [i, i+segLen) removed and
// reinserted just before the node originally at position j (at the end
// when j == len(nodes)).
func relocatedCopy(nodes []int, i, segLen, j int) []int {
	seg := make([]int, segLen)
	copy(seg, nodes[i:i+segLen])

	rest := make([]int, 0, len(nodes)-segLen)
	rest = append(rest, nodes[:i]...)
	rest = append(rest, nodes[i+segLen:]...)

	if j > i {
		j -= segLen
	}

	out := make([]int, 0, len(nodes))
	out = append(out, rest[:j]...)
	out = append(out, seg...)
	out = append(out, rest[j:]...)
	return out
}

func reversedCopy(nodes []int, i, j int) []int {
	out := make([]int, len(nodes))
	copy(out, nodes)
	for lo, hi := i, j; lo < hi; lo, hi = lo+1, hi-1 {
		out[lo], out[hi] = out[hi], out[lo]
	}
	return out
}

func routeDistance(nodes []int, m *nodeMatrix) float64 {
	total := 0.0
	prev := 0
	for _, n := range nodes {
		total += m.distance(prev, n)
		prev = n
	}
	total += m.distance(prev, 0)
	return total
}

// simulate recomputes arrival times for a candidate node sequence and
// reports whether every order's time window, the vehicle's capacity, and
// the vehicle's working-minutes budget are honored.
func simulate(nodes []int, m *nodeMatrix, vehicle domain.Vehicle, driver domain.Driver, depart time.Time) ([]time.Time, bool) {
	arrivals := make([]time.Time, len(nodes))
	current := depart
	prev := 0
	var weight, volume float64
	maxWorking := time.Duration(vehicle.MaxWorkingMinutes) * time.Minute
	deadline := depart.Add(maxWorking)

	for idx, node := range nodes {
		order := m.orders[node-1]
		weight += order.WeightKg
		volume += order.VolumeM3
		if weight > vehicle.MaxWeightKg || volume > vehicle.MaxVolumeM3 {
			return nil, false
		}

		travel := time.Duration(m.travelTime(prev, node)) * time.Second
		arrival := current.Add(travel)
		if arrival.Before(order.Window.Start) {
			if order.Window.Start.Sub(arrival) > waitingSlackMinutes*time.Minute {
				return nil, false
			}
			arrival = order.Window.Start
		}
		if arrival.After(order.Window.End) {
			return nil, false
		}

		arrivals[idx] = arrival
		current = arrival.Add(order.ServiceDuration)
		if current.After(deadline) {
			return nil, false
		}
		prev = node
	}

	return arrivals, true
}

// ReoptimizeSegment reorders a run of pending stops via 2-opt, returning
// the improved sequence and the distance improvement in kilometers. It
// never reorders stops outside the given slice, so callers are responsible
// for passing only the pending tail of a route — the current stop index is
// never perturbed by construction. Only the summed straight-line distance
// between consecutive stops is compared; time windows, capacity and working
// hours are not checked. Returns ok=false if no reordering shortens that
// distance.
func ReoptimizeSegment(stops []domain.Stop) (reordered []domain.Stop, improvementKM float64, ok bool) {
	if len(stops) < 3 {
		return nil, 0, false
	}

	baseline := stopsDistance(stops)
	best := stops
	bestDist := baseline

	n := len(stops)
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			candidate := reverseStops(stops, i, j)
			d := stopsDistance(candidate)
			if d < bestDist {
				bestDist = d
				best = candidate
			}
		}
	}

	if bestDist >= baseline {
		return nil, 0, false
	}
	return best, (baseline - bestDist) / 1000.0, true
}

func stopsDistance(stops []domain.Stop) float64 {
	total := 0.0
	for i := 1; i < len(stops); i++ {
		total += geo.HaversineDistanceM(stops[i-1].Coordinate, stops[i].Coordinate)
	}
	return total
}

func reverseStops(stops []domain.Stop, i, j int) []domain.Stop {
	out := make([]domain.Stop, len(stops))
	copy(out, stops)
	for lo, hi := i, j; lo < hi; lo, hi = lo+1, hi-1 {
		out[lo], out[hi] = out[hi], out[lo]
	}
	return out
}
