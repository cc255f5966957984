// Package geo implements the Geodata Provider (C1): distance/time matrices,
// polyline routing, and geocoding against an external mapping provider, with
// a Haversine fallback for when that provider is unavailable.
package geo

import (
	"context"
	"errors"

	"dispatch/internal/domain"
)

// VehicleKind selects the mapping-provider routing profile.
type VehicleKind string

const (
	VehicleKindCar   VehicleKind = "driving"
	VehicleKindTruck VehicleKind = "truck"
)

// Segment is one leg of a polyline route, carrying the traffic level the
// mapping provider reports for it.
type Segment struct {
	Level    int     `json:"level"` // 0..10, 0 = free-flow, 10 = gridlock
	SpeedKMH float64 `json:"speed_kmh"`
	LengthM  float64 `json:"length_m"`
}

// RouteResult is the outcome of a single origin/destination route lookup.
type RouteResult struct {
	Polyline     string    `json:"polyline"`
	DistanceM    float64   `json:"distance_m"`
	FreeTimeS    float64   `json:"free_time_s"`
	TrafficTimeS float64   `json:"traffic_time_s"`
	Segments     []Segment `json:"segments"`
}

// MatrixResult holds distance and time matrices over an ordered location
// set. D and T are always present; TTraffic is nil when the provider could
// not supply traffic-adjusted times (e.g. the Haversine fallback).
type MatrixResult struct {
	D        [][]float64 // meters
	T        [][]float64 // seconds, free-flow
	TTraffic [][]float64 // seconds, traffic-adjusted; nil if unavailable
	Degraded bool        // true when this result came from the fallback path
}

// Sentinel errors per the error handling design (§7): Unavailable and
// QuotaExceeded are trapped at this boundary, never bubbled past Provider.
var (
	ErrNotFound    = errors.New("geo: location not found")
	ErrUnavailable = errors.New("geo: mapping provider unavailable")
	ErrQuota       = errors.New("geo: mapping provider quota exceeded")
)

// Provider is the capability set implementations of C1 MUST offer.
// Implementations MUST rate-limit calls and MUST be safe for concurrent use.
type Provider interface {
	Geocode(ctx context.Context, text string) (domain.Coordinate, error)
	Route(ctx context.Context, origin, dest domain.Coordinate, waypoints []domain.Coordinate, vehicleKind VehicleKind) (*RouteResult, error)
	Matrix(ctx context.Context, origins, destinations []domain.Coordinate, vehicleKind VehicleKind) (*MatrixResult, error)
}
