package solver

import (
	"dispatch/internal/domain"
	"dispatch/internal/geo"
)

// node 0 is always the depot; nodes 1..n correspond to orders[0..n-1].
type nodeMatrix struct {
	orders    []domain.Order
	distanceM [][]float64 // meters
	timeS     [][]float64 // seconds, free-flow
}

// buildNodeMatrix shapes a geo.MatrixResult (already computed over
// depot+orders, in that order) into the node-indexed form the constructor
// and local search operate on.
func buildNodeMatrix(orders []domain.Order, raw *geo.MatrixResult) *nodeMatrix {
	return &nodeMatrix{
		orders:    orders,
		distanceM: raw.D,
		timeS:     raw.T,
	}
}

func (m *nodeMatrix) numNodes() int {
	return len(m.orders) + 1
}

func (m *nodeMatrix) distance(i, j int) float64 {
	return m.distanceM[i][j]
}

func (m *nodeMatrix) travelTime(i, j int) float64 {
	return m.timeS[i][j]
}

// locations builds the depot+orders coordinate list in node order, the
// shape callers must feed into geo.Provider.Matrix / matrixcache.Cache.
func locations(depot domain.Coordinate, orders []domain.Order) []domain.Coordinate {
	locs := make([]domain.Coordinate, 0, len(orders)+1)
	locs = append(locs, depot)
	for _, o := range orders {
		locs = append(locs, o.Coordinate)
	}
	return locs
}
