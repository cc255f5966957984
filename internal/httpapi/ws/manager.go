package ws

import (
	"context"
	"net/http"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/eta"
	"dispatch/internal/eventbus"
	"dispatch/internal/simulator"
)

// Manager owns the four named channels and bridges them to the event
// bus and the condition simulator. The zero
// value is not usable; build one with NewManager.
type Manager struct {
	Routes     *Hub
	Events     *Hub
	ETA        *Hub
	Monitoring *Hub
}

// NewManager builds all four hubs, unstarted.
func NewManager() *Manager {
	return &Manager{
		Routes:     NewHub(),
		Events:     NewHub(),
		ETA:        NewHub(),
		Monitoring: NewHub(),
	}
}

// Run starts every hub's broadcast loop; call once, typically from
// cmd/dispatchd's main goroutine group, alongside the HTTP server.
func (m *Manager) Run(ctx context.Context) {
	go m.Routes.Run()
	go m.Events.Run()
	go m.ETA.Run()
	go m.Monitoring.Run()
}

// RegisterRoutes wires the four channels onto mux.
func (m *Manager) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /ws/routes", m.Routes)
	mux.Handle("GET /ws/events", m.Events)
	mux.Handle("GET /ws/eta", m.ETA)
	mux.Handle("GET /ws/monitoring", m.Monitoring)
}

// SubscribeBus forwards every bus event onto /ws/events, and route-status
// or reoptimization events additionally onto /ws/routes.
func (m *Manager) SubscribeBus(bus *eventbus.Bus) {
	_, events := bus.Subscribe(eventbus.SeverityAtLeast(domain.SeverityLow))
	go func() {
		for e := range events {
			m.Events.Broadcast("event", e)
			switch e.Kind {
			case domain.EventKindRouteStarted, domain.EventKindStopCompleted, domain.EventKindDeliveryFailed:
				m.Routes.Broadcast("route_update", e)
			case domain.EventKindReoptimizationTriggered, domain.EventKindReoptimizationCompleted,
				domain.EventKindReoptimizationFailed, domain.EventKindReoptimizationRejected:
				m.Routes.Broadcast("reoptimization", e)
			}
		}
	}()
}

// PublishETA pushes a fresh ETA prediction for a stop onto /ws/eta, for
// callers that recompute one outside the plain HTTP request/response
// path (e.g. the monitor loop reacting to a traffic event).
func (m *Manager) PublishETA(routeID, stopID string, prediction eta.Prediction) {
	m.ETA.Broadcast("eta_update", map[string]any{
		"route_id": routeID,
		"stop_id":  stopID,
		"eta":      prediction.ETA,
		"confidence": prediction.Confidence,
		"method":   prediction.Method,
	})
}

// RunMonitoringTicker periodically republishes the simulator's snapshot
// onto /ws/monitoring, independent of any
// particular event; dashboards poll this channel for a steady heartbeat
// of system health rather than waiting on discrete triggers.
func (m *Manager) RunMonitoringTicker(ctx context.Context, interval time.Duration, snapshot func() simulator.Snapshot) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if snapshot != nil {
					m.Monitoring.Broadcast("monitoring", snapshot())
				}
			}
		}
	}()
}
