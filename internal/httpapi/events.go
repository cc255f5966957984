package httpapi

import (
	"net/http"
	"strconv"

	"dispatch/internal/domain"
	"dispatch/internal/store"
	"dispatch/pkg/apperror"
)

func (a *API) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.EventFilter{
		RouteID:    q.Get("route_id"),
		ActiveOnly: q.Get("active_only") == "true",
	}
	if kind := q.Get("kind"); kind != "" {
		k := domain.EventKind(kind)
		filter.Kind = &k
	}
	if severity := q.Get("severity"); severity != "" {
		s := domain.EventSeverity(severity)
		filter.Severity = &s
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			writeError(w, apperror.NewWithField(apperror.CodeInvalidInput, "limit must be an integer", "limit"))
			return
		}
		filter.Limit = n
	}
	if offset := q.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil {
			writeError(w, apperror.NewWithField(apperror.CodeInvalidInput, "offset must be an integer", "offset"))
			return
		}
		filter.Offset = n
	}

	events, err := a.Store.ListEventsFiltered(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
