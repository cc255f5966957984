package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"dispatch/internal/domain"
	"dispatch/internal/eta"
	"dispatch/internal/geo"
	"dispatch/internal/solver"
	"dispatch/internal/store"
	"dispatch/pkg/apperror"
)

type optimizeRequest struct {
	OrderIDs       []string   `json:"order_ids"`
	VehicleIDs     []string   `json:"vehicle_ids"`
	DriverIDs      []string   `json:"driver_ids"`
	Depot          [2]float64 `json:"depot"`
	PlannedDate    *time.Time `json:"planned_date,omitempty"`
	TimeLimitS     int        `json:"time_limit_s,omitempty"`
	EnableAdaptive bool       `json:"enable_adaptive,omitempty"`
}

type optimizeResponse struct {
	RoutesCreated    int          `json:"routes_created"`
	RouteIDs         []string     `json:"route_ids"`
	TotalDistanceKM  float64      `json:"total_distance_km"`
	TotalDurationMin float64      `json:"total_duration_min"`
	ObjectiveValue   float64      `json:"objective_value"`
	SolverStats      solver.Stats `json:"solver_stats"`
}

func (a *API) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.OrderIDs) == 0 || len(req.VehicleIDs) == 0 || len(req.DriverIDs) == 0 {
		writeError(w, apperror.NewWithField(apperror.CodeInvalidInput,
			"order_ids, vehicle_ids and driver_ids are all required", "order_ids"))
		return
	}

	ctx := r.Context()
	orders, err := a.Store.ListOrders(ctx, req.OrderIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	vehicles, err := a.Store.ListVehicles(ctx, req.VehicleIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	drivers, err := a.Store.ListDrivers(ctx, req.DriverIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	depot := a.Depot
	if req.Depot[0] != 0 || req.Depot[1] != 0 {
		depot = domain.Coordinate{Lat: req.Depot[0], Lon: req.Depot[1]}
	}

	var timeLimit time.Duration
	if req.TimeLimitS > 0 {
		timeLimit = time.Duration(req.TimeLimitS) * time.Second
	}

	result, err := a.Solver.Solve(ctx, solver.Input{
		Orders:    orders,
		Vehicles:  vehicles,
		Drivers:   drivers,
		Depot:     depot,
		TimeLimit: timeLimit,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	plannedDate := time.Now().UTC().Truncate(24 * time.Hour)
	if req.PlannedDate != nil {
		plannedDate = *req.PlannedDate
	}

	routeIDs := make([]string, 0, len(result.Routes))
	var totalDurationMin float64
	for _, rr := range result.Routes {
		route := domain.Route{
			ID:          uuid.NewString(),
			VehicleID:   rr.VehicleID,
			DriverID:    rr.DriverID,
			PlannedDate: plannedDate,
			Status:      domain.RouteStatusPlanned,
		}
		if len(rr.Stops) > 0 {
			route.PlannedStart = rr.Stops[0].PlannedArrival
			route.PlannedEnd = rr.Stops[len(rr.Stops)-1].PlannedDeparture
		}
		stops := stampRouteID(rr.Stops, route.ID)
		if err := a.Store.CreateRoute(ctx, route, stops); err != nil {
			writeError(w, err)
			return
		}
		if err := syncOrderLinks(ctx, a.Store, stops, route.DriverID); err != nil {
			writeError(w, err)
			return
		}
		routeIDs = append(routeIDs, route.ID)
		totalDurationMin += rr.DurationM

		if req.EnableAdaptive && a.Bus != nil {
			a.Bus.Publish(domain.Event{
				ID:        uuid.NewString(),
				Kind:      domain.EventKindRouteStarted,
				Severity:  domain.SeverityLow,
				Status:    domain.EventStatusActive,
				Timestamp: time.Now().UTC(),
				RouteID:   route.ID,
			})
		}
	}

	writeJSON(w, http.StatusOK, optimizeResponse{
		RoutesCreated:    len(routeIDs),
		RouteIDs:         routeIDs,
		TotalDistanceKM:  result.Stats.TotalDistanceKM,
		TotalDurationMin: totalDurationMin,
		ObjectiveValue:   result.Stats.ObjectiveValue,
		SolverStats:      result.Stats,
	})
}

// stampRouteID assigns a fresh id to any stop missing one and points every
// stop at routeID, mirroring internal/adaptive/strategy.go's stampStopIDs.
func stampRouteID(stops []domain.Stop, routeID string) []domain.Stop {
	out := make([]domain.Stop, len(stops))
	for i, st := range stops {
		if st.ID == "" {
			st.ID = uuid.NewString()
		}
		st.RouteID = routeID
		out[i] = st
	}
	return out
}

// syncOrderLinks keeps each order's denormalized DriverID/StopID pointed
// at its newly assigned stop, mirroring internal/adaptive/strategy.go's
// method of the same name.
func syncOrderLinks(ctx context.Context, st store.Store, stops []domain.Stop, driverID string) error {
	for _, stop := range stops {
		if stop.OrderID == nil {
			continue
		}
		order, err := st.GetOrder(ctx, *stop.OrderID)
		if err != nil {
			return err
		}
		stopID := stop.ID
		order.StopID = &stopID
		order.DriverID = &driverID
		order.Status = domain.OrderStatusAssigned
		if err := st.SaveOrder(ctx, order); err != nil {
			return err
		}
	}
	return nil
}

func (a *API) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RouteFilter{
		VehicleID: q.Get("vehicle_id"),
		DriverID:  q.Get("driver_id"),
	}
	if status := q.Get("status"); status != "" {
		s := domain.RouteStatus(status)
		filter.Status = &s
	}
	if date := q.Get("date"); date != "" {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			writeError(w, apperror.NewWithField(apperror.CodeInvalidInput, "date must be YYYY-MM-DD", "date"))
			return
		}
		filter.Date = &t
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

	routes, err := a.Store.ListRoutes(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

type routeDetail struct {
	domain.Route
	Stops []domain.Stop `json:"stops"`
}

func (a *API) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	route, err := a.Store.GetRoute(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	stops, err := a.Store.GetStops(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routeDetail{Route: route, Stops: stops})
}

type routeStatusRequest struct {
	Status           domain.RouteStatus `json:"status"`
	CurrentStopIndex *int               `json:"current_stop_index,omitempty"`
	CurrentLocation  *domain.Coordinate `json:"current_location,omitempty"`
}

func (a *API) handleRouteStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req routeStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Status == "" {
		writeError(w, apperror.NewWithField(apperror.CodeInvalidInput, "status is required", "status"))
		return
	}

	ctx := r.Context()
	existing, err := a.Store.GetRoute(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	currentStopIndex := existing.CurrentStopIndex
	if req.CurrentStopIndex != nil {
		currentStopIndex = *req.CurrentStopIndex
	}

	route, err := a.Store.UpdateRouteStatus(ctx, id, req.Status, currentStopIndex)
	if err != nil {
		writeError(w, err)
		return
	}

	if a.Bus != nil {
		kind := domain.EventKindStopCompleted
		if route.Status == domain.RouteStatusDisrupted {
			kind = domain.EventKindDeliveryFailed
		}
		a.Bus.Publish(domain.Event{
			ID:        uuid.NewString(),
			Kind:      kind,
			Severity:  domain.SeverityLow,
			Status:    domain.EventStatusActive,
			Timestamp: time.Now().UTC(),
			RouteID:   route.ID,
			VehicleID: route.VehicleID,
			DriverID:  route.DriverID,
			Payload:   map[string]any{"status": string(route.Status), "current_stop_index": route.CurrentStopIndex},
		})
	}

	writeJSON(w, http.StatusOK, route)
}

type reoptimizeRequest struct {
	Reason string `json:"reason"`
}

func (a *API) handleReoptimize(w http.ResponseWriter, r *http.Request) {
	if a.Optimizer == nil {
		writeError(w, apperror.New(apperror.CodeServiceUnavailable, "adaptive optimizer not configured"))
		return
	}
	id := r.PathValue("id")
	var req reoptimizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := a.Optimizer.ManualReoptimize(r.Context(), id, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"route_id": id, "status": "reoptimizing"})
}

type stopETA struct {
	StopID            string    `json:"stop_id"`
	Sequence          int       `json:"sequence"`
	ETA               time.Time `json:"eta"`
	TravelTimeMinutes float64   `json:"travel_time_minutes"`
	Confidence        float64   `json:"confidence"`
	Method            string    `json:"method"`
}

// vehicleClassFor derives the heuristic's coarse vehicle class from
// capacity, since domain.Vehicle carries no class field of its own.
func vehicleClassFor(v domain.Vehicle) eta.VehicleClass {
	switch {
	case v.MaxWeightKg <= 30:
		return eta.ClassMotorcycle
	case v.MaxWeightKg <= 500:
		return eta.ClassCar
	case v.MaxWeightKg <= 3000:
		return eta.ClassVan
	default:
		return eta.ClassTruck
	}
}

// driverExperienceScore maps a driver's seniority band onto the 0-5 scale
// eta.Input expects.
func driverExperienceScore(level domain.ExperienceLevel) float64 {
	switch level {
	case domain.ExperienceNovice:
		return 1
	case domain.ExperienceIntermediate:
		return 2.5
	case domain.ExperienceExperienced:
		return 4
	case domain.ExperienceExpert:
		return 5
	default:
		return 2.5
	}
}

func (a *API) handleRouteETA(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	route, err := a.Store.GetRoute(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	stops, err := a.Store.GetStops(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	var targetSeq *int
	if raw := r.URL.Query().Get("stop_sequence"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, apperror.NewWithField(apperror.CodeInvalidInput, "stop_sequence must be an integer", "stop_sequence"))
			return
		}
		targetSeq = &n
	}

	var driver domain.Driver
	if route.DriverID != "" {
		driver, _ = a.Store.GetDriver(ctx, route.DriverID)
	}
	var vehicleClass eta.VehicleClass = eta.ClassVan
	if route.VehicleID != "" {
		if v, err := a.Store.GetVehicle(ctx, route.VehicleID); err == nil {
			vehicleClass = vehicleClassFor(v)
		}
	}

	trafficFactor := 1.0
	weatherFactor := 1.0
	if a.Simulator != nil {
		snapshot := a.Simulator.GetConditions()
		weatherFactor = 1.0 + snapshot.WeatherCondition.SpeedImpact
		for _, tc := range snapshot.TrafficConditions {
			for _, stop := range stops {
				if geo.HaversineDistanceM(tc.Location, stop.Coordinate)/1000.0 <= tc.RadiusKM && tc.SpeedMultiplier > 0 {
					f := 1.0 / tc.SpeedMultiplier
					if f > trafficFactor {
						trafficFactor = f
					}
				}
			}
		}
	}

	now := time.Now().UTC()
	predictions := make([]stopETA, 0, len(stops))
	depart := now
	for _, stop := range stops {
		if targetSeq != nil && stop.Sequence != *targetSeq {
			if stop.Sequence < *targetSeq && stop.ActualDeparture != nil {
				depart = *stop.ActualDeparture
			}
			continue
		}

		pred, err := a.Predictor.Predict(ctx, eta.Input{
			DistanceKM:       stop.DistanceFromPrevKM,
			TrafficFactor:    trafficFactor,
			DepartAt:         depart,
			DriverExperience: driverExperienceScore(driver.ExperienceLevel),
			VehicleClass:     vehicleClass,
			Complexity:       1.0,
			WeatherFactor:    weatherFactor,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		predictions = append(predictions, stopETA{
			StopID:            stop.ID,
			Sequence:          stop.Sequence,
			ETA:               pred.ETA,
			TravelTimeMinutes: pred.TravelTimeMinutes,
			Confidence:        pred.Confidence,
			Method:            string(pred.Method),
		})
		depart = pred.ETA

		if targetSeq != nil && stop.Sequence == *targetSeq {
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"route_id": route.ID,
		"etas":     predictions,
	})
}
