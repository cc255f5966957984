package httpapi

import (
	"context"
	"net/http"
	"time"

	"dispatch/internal/domain"
	"dispatch/internal/store"
	"dispatch/pkg/apperror"
	"dispatch/pkg/logger"
)

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

type timeWindowRequest struct {
	Start            string `json:"start"`
	End              string `json:"end"`
	CustomerVerified bool   `json:"customer_verified"`
}

func (a *API) handleOrderTimeWindow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req timeWindowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	window, err := parseTimeWindow(req.Start, req.End)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	order, err := a.Store.GetOrder(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	order.Window = window
	if err := a.Store.SaveOrder(ctx, order); err != nil {
		writeError(w, err)
		return
	}

	// An order already riding on a planned stop needs its route re-examined:
	// the new window may now violate the stop's planned arrival.
	if order.DriverID != nil && order.StopID != nil && a.Optimizer != nil {
		routeID, err := routeIDForOrder(ctx, a.Store, *order.DriverID, *order.StopID)
		if err != nil {
			logger.Error("httpapi: failed to resolve route for rescheduled order", "order_id", id, "error", err)
		} else if routeID != "" {
			if err := a.Optimizer.NotifyCustomerReschedule(ctx, routeID); err != nil {
				logger.Error("httpapi: failed to notify customer reschedule", "route_id", routeID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, order)
}

func parseTimeWindow(start, end string) (domain.TimeWindow, error) {
	s, err := parseRFC3339(start)
	if err != nil {
		return domain.TimeWindow{}, apperror.NewWithField(apperror.CodeInvalidInput, "start must be RFC3339", "start")
	}
	e, err := parseRFC3339(end)
	if err != nil {
		return domain.TimeWindow{}, apperror.NewWithField(apperror.CodeInvalidInput, "end must be RFC3339", "end")
	}
	w := domain.TimeWindow{Start: s, End: e}
	if !w.Valid() {
		return domain.TimeWindow{}, apperror.NewWithField(apperror.CodeTimeWindowViolation, "start must be before end", "end")
	}
	return w, nil
}

// routeIDForOrder finds the active or planned route carrying the stop an
// order is assigned to. The store has no direct stop-to-route lookup, so
// this scans the driver's current routes, which is a small set in
// practice (a driver carries at most one active route at a time).
func routeIDForOrder(ctx context.Context, st store.Store, driverID, stopID string) (string, error) {
	routes, err := st.ListRoutes(ctx, store.RouteFilter{DriverID: driverID})
	if err != nil {
		return "", err
	}
	for _, route := range routes {
		if route.Status != domain.RouteStatusPlanned && route.Status != domain.RouteStatusActive {
			continue
		}
		stops, err := st.GetStops(ctx, route.ID)
		if err != nil {
			return "", err
		}
		for _, stop := range stops {
			if stop.ID == stopID {
				return route.ID, nil
			}
		}
	}
	return "", nil
}
