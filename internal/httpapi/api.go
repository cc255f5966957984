// Package httpapi implements the public HTTP JSON API: route optimization
// and lifecycle management, manual re-optimization, ETA lookups, order
// time-window updates, the event feed, condition-simulator controls, a
// traffic passthrough, and route manifest/plan export. Handlers register
// directly onto the *http.ServeMux returned by pkg/server.Server.Mux,
// mirroring the teacher's own stdlib-ServeMux usage in pkg/metrics and
// pkg/swagger rather than introducing a third-party router. WebSocket
// channels live in the sibling internal/httpapi/ws package.
package httpapi

import (
	"net/http"

	"dispatch/internal/adaptive"
	"dispatch/internal/domain"
	"dispatch/internal/eta"
	"dispatch/internal/eventbus"
	"dispatch/internal/geo"
	"dispatch/internal/simulator"
	"dispatch/internal/solver"
	"dispatch/internal/store"
)

// API bundles every component the HTTP surface dispatches to. The zero
// value is not usable; build one with New.
type API struct {
	Store     store.Store
	Solver    *solver.Solver
	Optimizer *adaptive.Optimizer
	Predictor eta.Predictor
	Simulator *simulator.Simulator
	Bus       *eventbus.Bus
	Geo       geo.Provider
	Depot     domain.Coordinate
}

// New builds an API over the given components. Simulator and Optimizer
// may be nil: handlers that need them report ServiceUnavailable.
func New(st store.Store, slv *solver.Solver, opt *adaptive.Optimizer, pred eta.Predictor, sim *simulator.Simulator, bus *eventbus.Bus, provider geo.Provider, depot domain.Coordinate) *API {
	return &API{
		Store:     st,
		Solver:    slv,
		Optimizer: opt,
		Predictor: pred,
		Simulator: sim,
		Bus:       bus,
		Geo:       provider,
		Depot:     depot,
	}
}

// RegisterRoutes wires every endpoint in the external-interfaces table
// onto mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /routes/optimize", a.handleOptimize)
	mux.HandleFunc("GET /routes", a.handleListRoutes)
	mux.HandleFunc("GET /routes/{id}", a.handleGetRoute)
	mux.HandleFunc("PUT /routes/{id}/status", a.handleRouteStatus)
	mux.HandleFunc("POST /routes/{id}/reoptimize", a.handleReoptimize)
	mux.HandleFunc("GET /routes/{id}/eta", a.handleRouteETA)
	mux.HandleFunc("GET /routes/{id}/manifest.pdf", a.handleRouteManifestPDF)
	mux.HandleFunc("GET /routes/export.xlsx", a.handleRoutesExportXLSX)

	mux.HandleFunc("PUT /orders/{id}/time-window", a.handleOrderTimeWindow)

	mux.HandleFunc("GET /events", a.handleListEvents)

	mux.HandleFunc("POST /simulation/start", a.handleSimulationStart)
	mux.HandleFunc("POST /simulation/stop", a.handleSimulationStop)
	mux.HandleFunc("POST /simulation/force-event", a.handleSimulationForceEvent)
	mux.HandleFunc("POST /simulation/parameters", a.handleSimulationParameters)

	mux.HandleFunc("GET /traffic/route-traffic", a.handleRouteTraffic)
}
