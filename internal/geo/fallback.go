package geo

import (
	"context"
	"errors"

	"dispatch/internal/domain"
	"dispatch/pkg/logger"
)

// FallbackProvider wraps a primary Provider and falls back to
// HaversineProvider for Route and Matrix whenever the primary returns
// ErrUnavailable or ErrQuota. Geocode has no fallback: the primary's error
// is returned to the caller unchanged.
type FallbackProvider struct {
	Primary  Provider
	Fallback *HaversineProvider
}

// NewFallbackProvider pairs primary with a default HaversineProvider.
func NewFallbackProvider(primary Provider) *FallbackProvider {
	return &FallbackProvider{Primary: primary, Fallback: NewHaversineProvider()}
}

func isDegradeTrigger(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrQuota)
}

func (p *FallbackProvider) Geocode(ctx context.Context, text string) (domain.Coordinate, error) {
	c, err := p.Primary.Geocode(ctx, text)
	if err != nil && isDegradeTrigger(err) {
		logger.Warn("geo: primary geocode unavailable, no fallback capability", "error", err)
		return domain.Coordinate{}, err
	}
	return c, err
}

func (p *FallbackProvider) Route(ctx context.Context, origin, dest domain.Coordinate, waypoints []domain.Coordinate, vehicleKind VehicleKind) (*RouteResult, error) {
	r, err := p.Primary.Route(ctx, origin, dest, waypoints, vehicleKind)
	if err != nil && isDegradeTrigger(err) {
		logger.Warn("geo: primary route unavailable, using haversine fallback", "error", err)
		return p.Fallback.Route(ctx, origin, dest, waypoints, vehicleKind)
	}
	return r, err
}

func (p *FallbackProvider) Matrix(ctx context.Context, origins, destinations []domain.Coordinate, vehicleKind VehicleKind) (*MatrixResult, error) {
	m, err := p.Primary.Matrix(ctx, origins, destinations, vehicleKind)
	if err != nil && isDegradeTrigger(err) {
		logger.Warn("geo: primary matrix unavailable, using haversine fallback", "error", err)
		return p.Fallback.Matrix(ctx, origins, destinations, vehicleKind)
	}
	return m, err
}
