package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"dispatch/internal/domain"
	"dispatch/pkg/apperror"
)

// MemStore is an in-memory Store, safe for concurrent use. It backs unit
// tests and the simulator's fast path where spinning up Postgres is
// unnecessary overhead.
type MemStore struct {
	mu       sync.RWMutex
	orders   map[string]domain.Order
	vehicles map[string]domain.Vehicle
	drivers  map[string]domain.Driver
	routes   map[string]domain.Route
	stops    map[string][]domain.Stop // keyed by route id
	events   []domain.Event
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		orders:   make(map[string]domain.Order),
		vehicles: make(map[string]domain.Vehicle),
		drivers:  make(map[string]domain.Driver),
		routes:   make(map[string]domain.Route),
		stops:    make(map[string][]domain.Stop),
	}
}

func notFound(kind, id string) error {
	return apperror.New(apperror.CodeResourceNotFound, kind+" not found").WithDetails("id", id)
}

func (m *MemStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, notFound("order", id)
	}
	return o, nil
}

func (m *MemStore) ListOrders(ctx context.Context, ids []string) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		o, ok := m.orders[id]
		if !ok {
			return nil, notFound("order", id)
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *MemStore) ListPendingOrders(ctx context.Context) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.Status == domain.OrderStatusPending {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) SaveOrder(ctx context.Context, o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *MemStore) GetVehicle(ctx context.Context, id string) (domain.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vehicles[id]
	if !ok {
		return domain.Vehicle{}, notFound("vehicle", id)
	}
	return v, nil
}

func (m *MemStore) ListVehicles(ctx context.Context, ids []string) ([]domain.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Vehicle, 0, len(ids))
	for _, id := range ids {
		v, ok := m.vehicles[id]
		if !ok {
			return nil, notFound("vehicle", id)
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *MemStore) ListAvailableVehicles(ctx context.Context, excludeID string) ([]domain.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Vehicle
	for id, v := range m.vehicles {
		if id == excludeID || v.Status != domain.VehicleStatusAvailable {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) SaveVehicle(ctx context.Context, v domain.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles[v.ID] = v
	return nil
}

func (m *MemStore) GetDriver(ctx context.Context, id string) (domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return domain.Driver{}, notFound("driver", id)
	}
	return d, nil
}

func (m *MemStore) ListDrivers(ctx context.Context, ids []string) ([]domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Driver, 0, len(ids))
	for _, id := range ids {
		d, ok := m.drivers[id]
		if !ok {
			return nil, notFound("driver", id)
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *MemStore) ListAvailableDrivers(ctx context.Context, excludeID string) ([]domain.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Driver
	for id, d := range m.drivers {
		if id == excludeID || d.Status != domain.DriverStatusAvailable {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) SaveDriver(ctx context.Context, d domain.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = d
	return nil
}

func (m *MemStore) GetRoute(ctx context.Context, id string) (domain.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routes[id]
	if !ok {
		return domain.Route{}, notFound("route", id)
	}
	return r, nil
}

func (m *MemStore) ListRoutes(ctx context.Context, filter RouteFilter) ([]domain.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Route
	for _, r := range m.routes {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.VehicleID != "" && r.VehicleID != filter.VehicleID {
			continue
		}
		if filter.DriverID != "" && r.DriverID != filter.DriverID {
			continue
		}
		if filter.Date != nil && !sameDay(r.PlannedDate, *filter.Date) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else if filter.Offset >= len(out) {
		out = nil
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (m *MemStore) ListActiveRoutes(ctx context.Context) ([]domain.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Route
	for _, r := range m.routes {
		if r.Status == domain.RouteStatusPlanned || r.Status == domain.RouteStatusActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) CreateRoute(ctx context.Context, route domain.Route, stops []domain.Stop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[route.ID] = route
	m.stops[route.ID] = append([]domain.Stop(nil), stops...)
	return nil
}

// UpdateRouteStatus applies a direct status/progress transition, leaving
// stops, events and reoptimization counters untouched.
func (m *MemStore) UpdateRouteStatus(ctx context.Context, id string, status domain.RouteStatus, currentStopIndex int) (domain.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	route, ok := m.routes[id]
	if !ok {
		return domain.Route{}, notFound("route", id)
	}
	route.Status = status
	route.CurrentStopIndex = currentStopIndex
	m.routes[id] = route
	return route, nil
}

func (m *MemStore) GetStops(ctx context.Context, routeID string) ([]domain.Stop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stops, ok := m.stops[routeID]
	if !ok {
		return nil, notFound("route", routeID)
	}
	out := make([]domain.Stop, len(stops))
	copy(out, stops)
	return out, nil
}

// CommitRouteUpdate applies the new route/stops/event under the store's
// single lock, so readers never observe a partial rewrite.
func (m *MemStore) CommitRouteUpdate(ctx context.Context, update RouteUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.routes[update.Route.ID]; !ok {
		return notFound("route", update.Route.ID)
	}

	route := update.Route
	route.ReoptimizationCount++
	now := time.Now()
	route.LastReoptimizationTime = &now

	m.routes[route.ID] = route
	m.stops[route.ID] = append([]domain.Stop(nil), update.Stops...)
	m.events = append(m.events, update.Event)
	return nil
}

func (m *MemStore) SaveEvent(ctx context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MemStore) ListEvents(ctx context.Context, routeID string, limit int) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if routeID != "" && e.RouteID != routeID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) ListEventsFiltered(ctx context.Context, filter EventFilter) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []domain.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if filter.RouteID != "" && e.RouteID != filter.RouteID {
			continue
		}
		if filter.Kind != nil && e.Kind != *filter.Kind {
			continue
		}
		if filter.Severity != nil && e.Severity != *filter.Severity {
			continue
		}
		if filter.ActiveOnly && e.Status != domain.EventStatusActive {
			continue
		}
		matched = append(matched, e)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

var _ Store = (*MemStore)(nil)
