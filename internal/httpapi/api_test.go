package httpapi

import "net/http"

// newTestMux registers a's routes on a fresh ServeMux, mirroring how
// cmd/dispatchd wires the API onto pkg/server.Server.Mux.
func newTestMux(a *API) *http.ServeMux {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	return mux
}
