package httpapi

import (
	"net/http"

	"dispatch/internal/domain"
	"dispatch/internal/simulator"
	"dispatch/pkg/apperror"
)

func (a *API) requireSimulator(w http.ResponseWriter) bool {
	if a.Simulator == nil {
		writeError(w, apperror.New(apperror.CodeServiceUnavailable, "condition simulator not configured"))
		return false
	}
	return true
}

func (a *API) handleSimulationStart(w http.ResponseWriter, r *http.Request) {
	if !a.requireSimulator(w) {
		return
	}
	var params simulator.Params
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &params); err != nil {
			writeError(w, err)
			return
		}
	}
	a.Simulator.Start(params)
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (a *API) handleSimulationStop(w http.ResponseWriter, r *http.Request) {
	if !a.requireSimulator(w) {
		return
	}
	a.Simulator.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

type forceEventRequest struct {
	Kind      domain.EventKind `json:"kind"`
	Overrides map[string]any   `json:"overrides,omitempty"`
}

func (a *API) handleSimulationForceEvent(w http.ResponseWriter, r *http.Request) {
	if !a.requireSimulator(w) {
		return
	}
	var req forceEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Kind == "" {
		writeError(w, apperror.NewWithField(apperror.CodeInvalidInput, "kind is required", "kind"))
		return
	}
	event := a.Simulator.ForceEvent(req.Kind, req.Overrides)
	writeJSON(w, http.StatusOK, event)
}

func (a *API) handleSimulationParameters(w http.ResponseWriter, r *http.Request) {
	if !a.requireSimulator(w) {
		return
	}
	var params simulator.Params
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, err)
		return
	}
	a.Simulator.UpdateParams(params)
	writeJSON(w, http.StatusOK, a.Simulator.GetConditions())
}
