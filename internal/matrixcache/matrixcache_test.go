package matrixcache

import (
	"context"
	"testing"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/geo"
	"dispatch/pkg/cache"
)

func newTestCache() *Cache {
	backend := cache.NewMemoryCache(cache.DefaultOptions())
	return New(backend, time.Minute)
}

func sampleLocations() []domain.Coordinate {
	return []domain.Coordinate{
		{Lat: 55.7558, Lon: 37.6176},
		{Lat: 55.76, Lon: 37.62},
		{Lat: 55.74, Lon: 37.60},
	}
}

func sampleResult() *geo.MatrixResult {
	return &geo.MatrixResult{
		D: [][]float64{{0, 100, 200}, {100, 0, 150}, {200, 150, 0}},
		T: [][]float64{{0, 10, 20}, {10, 0, 15}, {20, 15, 0}},
	}
}

func TestCache_SetGet_RoundTrip(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	locs := sampleLocations()
	result := sampleResult()

	if err := c.Set(ctx, locs, geo.VehicleKindCar, result); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := c.Get(ctx, locs, geo.VehicleKindCar)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.D[0][1] != result.D[0][1] {
		t.Errorf("D[0][1] = %v, want %v", got.D[0][1], result.D[0][1])
	}
}

func TestCache_OrderInvariant(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	locs := sampleLocations()
	result := sampleResult()

	if err := c.Set(ctx, locs, geo.VehicleKindCar, result); err != nil {
		t.Fatalf("Set: %v", err)
	}

	shuffled := []domain.Coordinate{locs[2], locs[0], locs[1]}
	got, ok := c.Get(ctx, shuffled, geo.VehicleKindCar)
	if !ok {
		t.Fatal("expected cache hit for shuffled location order")
	}

	for i, want := range shuffled {
		for j, want2 := range shuffled {
			origI := indexOf(locs, want)
			origJ := indexOf(locs, want2)
			if got.D[i][j] != result.D[origI][origJ] {
				t.Errorf("D[%d][%d] = %v, want %v", i, j, got.D[i][j], result.D[origI][origJ])
			}
		}
	}
}

func TestCache_Miss_DifferentVehicleKind(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	locs := sampleLocations()

	if err := c.Set(ctx, locs, geo.VehicleKindCar, sampleResult()); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, ok := c.Get(ctx, locs, geo.VehicleKindTruck); ok {
		t.Error("expected cache miss for a different vehicle kind")
	}
}

func TestCache_Miss_DifferentLocationSet(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	if err := c.Set(ctx, sampleLocations(), geo.VehicleKindCar, sampleResult()); err != nil {
		t.Fatalf("Set: %v", err)
	}

	other := []domain.Coordinate{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}
	if _, ok := c.Get(ctx, other, geo.VehicleKindCar); ok {
		t.Error("expected cache miss for an unrelated location set")
	}
}

func TestLocationSetHash_OrderInvariant(t *testing.T) {
	locs := sampleLocations()
	shuffled := []domain.Coordinate{locs[2], locs[0], locs[1]}

	if LocationSetHash(locs) != LocationSetHash(shuffled) {
		t.Error("LocationSetHash must be invariant to input order")
	}
}

func indexOf(locs []domain.Coordinate, target domain.Coordinate) int {
	for i, l := range locs {
		if l == target {
			return i
		}
	}
	return -1
}
