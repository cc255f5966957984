package geo

import (
	"context"
	"math"

	"dispatch/internal/domain"
)

// earthRadiusM is the mean Earth radius in meters, matching the original
// Python solver's haversine implementation (6371 km).
const earthRadiusM = 6371000.0

// AverageSpeedKMH is the constant average speed used to derive a travel
// time estimate from a Haversine distance when no provider speed is set.
const AverageSpeedKMH = 40.0

// HaversineDistanceM returns the great-circle distance between two
// coordinates in meters.
func HaversineDistanceM(a, b domain.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// HaversineProvider implements Provider using only great-circle distance and
// a configured average speed. It is symmetric by construction, used when the
// real mapping provider returns ErrUnavailable.
type HaversineProvider struct {
	AvgSpeedKMH float64
}

// NewHaversineProvider builds a HaversineProvider with the default average
// speed, grounded on vrptw_solver.py's 40 km/h assumption.
func NewHaversineProvider() *HaversineProvider {
	return &HaversineProvider{AvgSpeedKMH: AverageSpeedKMH}
}

// Geocode is not supported by the fallback: it has no address database.
func (p *HaversineProvider) Geocode(ctx context.Context, text string) (domain.Coordinate, error) {
	return domain.Coordinate{}, ErrNotFound
}

// Route synthesizes a direct-line route between origin and dest, ignoring
// any waypoints (the fallback has no polyline routing capability).
func (p *HaversineProvider) Route(ctx context.Context, origin, dest domain.Coordinate, waypoints []domain.Coordinate, vehicleKind VehicleKind) (*RouteResult, error) {
	distM := HaversineDistanceM(origin, dest)
	speed := p.speed()
	timeS := distM / 1000 / speed * 3600

	return &RouteResult{
		DistanceM:    distM,
		FreeTimeS:    timeS,
		TrafficTimeS: timeS,
		Segments: []Segment{{
			Level:    0,
			SpeedKMH: speed,
			LengthM:  distM,
		}},
	}, nil
}

// Matrix computes a symmetric Haversine distance matrix and a derived
// constant-speed time matrix over origins x destinations.
func (p *HaversineProvider) Matrix(ctx context.Context, origins, destinations []domain.Coordinate, vehicleKind VehicleKind) (*MatrixResult, error) {
	speed := p.speed()
	d := make([][]float64, len(origins))
	t := make([][]float64, len(origins))
	for i, o := range origins {
		d[i] = make([]float64, len(destinations))
		t[i] = make([]float64, len(destinations))
		for j, dest := range destinations {
			distM := HaversineDistanceM(o, dest)
			d[i][j] = distM
			t[i][j] = distM / 1000 / speed * 3600
		}
	}
	return &MatrixResult{D: d, T: t, TTraffic: nil, Degraded: true}, nil
}

func (p *HaversineProvider) speed() float64 {
	if p.AvgSpeedKMH <= 0 {
		return AverageSpeedKMH
	}
	return p.AvgSpeedKMH
}
