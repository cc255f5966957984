// Package store implements the Route Store (C8): transactional CRUD over
// Orders, Vehicles, Drivers, Routes, Stops and Events. It provides a
// Postgres-backed implementation built on the teacher's pgx pool/tx
// idiom, and an in-memory implementation used by tests and the
// simulator's fast path.
package store

import (
	"context"
	"time"

	"dispatch/internal/domain"
)

// RouteFilter narrows a Route listing.
type RouteFilter struct {
	Date     *time.Time
	Status   *domain.RouteStatus
	VehicleID string
	DriverID  string
	Limit    int
	Offset   int
}

// RouteUpdate is the atomic payload of a commit: a new Stop sequence for
// a Route plus the Event describing why, applied as one transaction.
type RouteUpdate struct {
	Route domain.Route
	Stops []domain.Stop
	Event domain.Event
}

// EventFilter narrows the cross-route event feed.
type EventFilter struct {
	Kind       *domain.EventKind
	Severity   *domain.EventSeverity
	RouteID    string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Store is the transactional persistence contract every component reads
// and writes through. Implementations MUST make a RouteUpdate commit
// atomic: readers observe either the old or the new route in full, never
// a partial rewrite.
type Store interface {
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, ids []string) ([]domain.Order, error)
	// ListPendingOrders returns orders not yet assigned to a route, for
	// triggers that need to scan unassigned demand (e.g. a new urgent
	// order arriving near an in-flight route).
	ListPendingOrders(ctx context.Context) ([]domain.Order, error)
	SaveOrder(ctx context.Context, o domain.Order) error

	GetVehicle(ctx context.Context, id string) (domain.Vehicle, error)
	ListVehicles(ctx context.Context, ids []string) ([]domain.Vehicle, error)
	ListAvailableVehicles(ctx context.Context, excludeID string) ([]domain.Vehicle, error)
	SaveVehicle(ctx context.Context, v domain.Vehicle) error

	GetDriver(ctx context.Context, id string) (domain.Driver, error)
	ListDrivers(ctx context.Context, ids []string) ([]domain.Driver, error)
	ListAvailableDrivers(ctx context.Context, excludeID string) ([]domain.Driver, error)
	SaveDriver(ctx context.Context, d domain.Driver) error

	GetRoute(ctx context.Context, id string) (domain.Route, error)
	ListRoutes(ctx context.Context, filter RouteFilter) ([]domain.Route, error)
	ListActiveRoutes(ctx context.Context) ([]domain.Route, error)
	CreateRoute(ctx context.Context, route domain.Route, stops []domain.Stop) error

	// UpdateRouteStatus applies a direct status/progress transition (driver
	// check-in, dispatcher override) without touching the stop sequence or
	// the reoptimization bookkeeping CommitRouteUpdate owns.
	UpdateRouteStatus(ctx context.Context, id string, status domain.RouteStatus, currentStopIndex int) (domain.Route, error)

	GetStops(ctx context.Context, routeID string) ([]domain.Stop, error)

	// CommitRouteUpdate atomically persists a new stop sequence for a
	// route, increments its reoptimization count, and inserts the
	// accompanying event in a single transaction.
	CommitRouteUpdate(ctx context.Context, update RouteUpdate) error

	SaveEvent(ctx context.Context, e domain.Event) error
	ListEvents(ctx context.Context, routeID string, limit int) ([]domain.Event, error)
	// ListEventsFiltered supports the cross-route event feed (GET /events),
	// narrowing by kind, severity, route and active status.
	ListEventsFiltered(ctx context.Context, filter EventFilter) ([]domain.Event, error)
}
