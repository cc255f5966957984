package geo

import (
	"context"
	"math"
	"testing"

	"dispatch/internal/domain"
)

func TestHaversineDistanceM_SamePoint(t *testing.T) {
	p := domain.Coordinate{Lat: 55.7558, Lon: 37.6176}
	if d := HaversineDistanceM(p, p); d != 0 {
		t.Errorf("distance between identical points = %v, want 0", d)
	}
}

func TestHaversineDistanceM_KnownDistance(t *testing.T) {
	// Moscow depot to a point roughly 0.5km away.
	a := domain.Coordinate{Lat: 55.7558, Lon: 37.6176}
	b := domain.Coordinate{Lat: 55.76, Lon: 37.62}
	d := HaversineDistanceM(a, b)
	if d <= 0 || d > 20000 {
		t.Errorf("distance = %v meters, want a small positive value", d)
	}
}

func TestHaversineDistanceM_Symmetric(t *testing.T) {
	a := domain.Coordinate{Lat: 55.7558, Lon: 37.6176}
	b := domain.Coordinate{Lat: 55.74, Lon: 37.60}
	if math.Abs(HaversineDistanceM(a, b)-HaversineDistanceM(b, a)) > 1e-6 {
		t.Error("haversine distance must be symmetric")
	}
}

func TestHaversineProvider_Matrix(t *testing.T) {
	p := NewHaversineProvider()
	depot := domain.Coordinate{Lat: 55.7558, Lon: 37.6176}
	points := []domain.Coordinate{
		depot,
		{Lat: 55.76, Lon: 37.62},
		{Lat: 55.74, Lon: 37.60},
	}

	res, err := p.Matrix(context.Background(), points, points, VehicleKindCar)
	if err != nil {
		t.Fatalf("Matrix returned error: %v", err)
	}
	if !res.Degraded {
		t.Error("haversine matrix result should be flagged Degraded")
	}
	if res.D[0][0] != 0 {
		t.Errorf("D[0][0] = %v, want 0", res.D[0][0])
	}
	for i := range points {
		for j := range points {
			if res.D[i][j] != res.D[j][i] {
				t.Errorf("matrix not symmetric at (%d,%d)", i, j)
			}
		}
	}
}

func TestHaversineProvider_Geocode_NotSupported(t *testing.T) {
	p := NewHaversineProvider()
	if _, err := p.Geocode(context.Background(), "Red Square"); err != ErrNotFound {
		t.Errorf("Geocode error = %v, want ErrNotFound", err)
	}
}
