package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"dispatch/internal/domain"
	"dispatch/pkg/database"
)

// PostgresStore is a Store backed by a pgx pool via the database.DB
// interface and its transaction helpers. SQL is hand-written; no ORM.
type PostgresStore struct {
	db database.DB
}

// NewPostgresStore wraps an already-connected database.DB.
func NewPostgresStore(db database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func wrapNotFound(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(kind, id)
	}
	return fmt.Errorf("query %s %s: %w", kind, id, err)
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, lat, lon, tw_start, tw_end, weight_kg, volume_m3,
		       service_duration_min, priority, status, driver_id, stop_id
		FROM orders WHERE id = $1`, id)

	var o domain.Order
	var serviceMin float64
	err := row.Scan(&o.ID, &o.Coordinate.Lat, &o.Coordinate.Lon, &o.Window.Start, &o.Window.End,
		&o.WeightKg, &o.VolumeM3, &serviceMin, &o.Priority, &o.Status, &o.DriverID, &o.StopID)
	if err != nil {
		return domain.Order{}, wrapNotFound("order", id, err)
	}
	o.ServiceDuration = time.Duration(serviceMin * float64(time.Minute))
	return o, nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, ids []string) ([]domain.Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, lat, lon, tw_start, tw_end, weight_kg, volume_m3,
		       service_duration_min, priority, status, driver_id, stop_id
		FROM orders WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		var serviceMin float64
		if err := rows.Scan(&o.ID, &o.Coordinate.Lat, &o.Coordinate.Lon, &o.Window.Start, &o.Window.End,
			&o.WeightKg, &o.VolumeM3, &serviceMin, &o.Priority, &o.Status, &o.DriverID, &o.StopID); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.ServiceDuration = time.Duration(serviceMin * float64(time.Minute))
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListPendingOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, lat, lon, tw_start, tw_end, weight_kg, volume_m3,
		       service_duration_min, priority, status, driver_id, stop_id
		FROM orders WHERE status = $1`, domain.OrderStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		var serviceMin float64
		if err := rows.Scan(&o.ID, &o.Coordinate.Lat, &o.Coordinate.Lon, &o.Window.Start, &o.Window.End,
			&o.WeightKg, &o.VolumeM3, &serviceMin, &o.Priority, &o.Status, &o.DriverID, &o.StopID); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.ServiceDuration = time.Duration(serviceMin * float64(time.Minute))
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveOrder(ctx context.Context, o domain.Order) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO orders (id, lat, lon, tw_start, tw_end, weight_kg, volume_m3,
		                     service_duration_min, priority, status, driver_id, stop_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			lat = EXCLUDED.lat, lon = EXCLUDED.lon,
			tw_start = EXCLUDED.tw_start, tw_end = EXCLUDED.tw_end,
			weight_kg = EXCLUDED.weight_kg, volume_m3 = EXCLUDED.volume_m3,
			service_duration_min = EXCLUDED.service_duration_min,
			priority = EXCLUDED.priority, status = EXCLUDED.status,
			driver_id = EXCLUDED.driver_id, stop_id = EXCLUDED.stop_id`,
		o.ID, o.Coordinate.Lat, o.Coordinate.Lon, o.Window.Start, o.Window.End,
		o.WeightKg, o.VolumeM3, o.ServiceDuration.Minutes(), o.Priority, o.Status, o.DriverID, o.StopID)
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

const vehicleColumns = `id, max_weight_kg, max_volume_m3, lat, lon, cost_per_km, cost_per_hour,
		       features, max_working_minutes, break_every_minutes, break_duration_min, status`

func scanVehicle(row pgx.Row) (domain.Vehicle, error) {
	var v domain.Vehicle
	var breakMin float64
	var features pgtype.Array[string]
	err := row.Scan(&v.ID, &v.MaxWeightKg, &v.MaxVolumeM3, &v.Depot.Lat, &v.Depot.Lon,
		&v.CostPerKM, &v.CostPerHour, &features, &v.MaxWorkingMinutes, &v.BreakEveryMinutes,
		&breakMin, &v.Status)
	if err != nil {
		return domain.Vehicle{}, err
	}
	v.BreakDuration = time.Duration(breakMin * float64(time.Minute))
	for _, f := range features.Elements {
		v.Features = append(v.Features, domain.VehicleFeature(f))
	}
	return v, nil
}

func (s *PostgresStore) GetVehicle(ctx context.Context, id string) (domain.Vehicle, error) {
	row := s.db.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id)
	v, err := scanVehicle(row)
	if err != nil {
		return domain.Vehicle{}, wrapNotFound("vehicle", id, err)
	}
	return v, nil
}

func (s *PostgresStore) ListVehicles(ctx context.Context, ids []string) ([]domain.Vehicle, error) {
	rows, err := s.db.Query(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var out []domain.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListAvailableVehicles(ctx context.Context, excludeID string) ([]domain.Vehicle, error) {
	rows, err := s.db.Query(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE status = $1 AND id != $2`,
		domain.VehicleStatusAvailable, excludeID)
	if err != nil {
		return nil, fmt.Errorf("list available vehicles: %w", err)
	}
	defer rows.Close()

	var out []domain.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveVehicle(ctx context.Context, v domain.Vehicle) error {
	features := make([]string, len(v.Features))
	for i, f := range v.Features {
		features[i] = string(f)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO vehicles (id, max_weight_kg, max_volume_m3, lat, lon, cost_per_km, cost_per_hour,
		                      features, max_working_minutes, break_every_minutes, break_duration_min, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			max_weight_kg = EXCLUDED.max_weight_kg, max_volume_m3 = EXCLUDED.max_volume_m3,
			lat = EXCLUDED.lat, lon = EXCLUDED.lon,
			cost_per_km = EXCLUDED.cost_per_km, cost_per_hour = EXCLUDED.cost_per_hour,
			features = EXCLUDED.features, max_working_minutes = EXCLUDED.max_working_minutes,
			break_every_minutes = EXCLUDED.break_every_minutes, break_duration_min = EXCLUDED.break_duration_min,
			status = EXCLUDED.status`,
		v.ID, v.MaxWeightKg, v.MaxVolumeM3, v.Depot.Lat, v.Depot.Lon, v.CostPerKM, v.CostPerHour,
		features, v.MaxWorkingMinutes, v.BreakEveryMinutes, v.BreakDuration.Minutes(), v.Status)
	if err != nil {
		return fmt.Errorf("save vehicle %s: %w", v.ID, err)
	}
	return nil
}

const driverColumns = `id, experience_level, max_stops_per_route, shift_start, shift_end,
		       can_handle_fragile, can_handle_high_value, status`

func scanDriver(row pgx.Row) (domain.Driver, error) {
	var d domain.Driver
	err := row.Scan(&d.ID, &d.ExperienceLevel, &d.MaxStopsPerRoute, &d.ShiftStart, &d.ShiftEnd,
		&d.CanHandleFragile, &d.CanHandleHighValue, &d.Status)
	return d, err
}

func (s *PostgresStore) GetDriver(ctx context.Context, id string) (domain.Driver, error) {
	row := s.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, id)
	d, err := scanDriver(row)
	if err != nil {
		return domain.Driver{}, wrapNotFound("driver", id, err)
	}
	return d, nil
}

func (s *PostgresStore) ListDrivers(ctx context.Context, ids []string) ([]domain.Driver, error) {
	rows, err := s.db.Query(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	defer rows.Close()

	var out []domain.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListAvailableDrivers(ctx context.Context, excludeID string) ([]domain.Driver, error) {
	rows, err := s.db.Query(ctx, `SELECT `+driverColumns+` FROM drivers WHERE status = $1 AND id != $2`,
		domain.DriverStatusAvailable, excludeID)
	if err != nil {
		return nil, fmt.Errorf("list available drivers: %w", err)
	}
	defer rows.Close()

	var out []domain.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveDriver(ctx context.Context, d domain.Driver) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO drivers (id, experience_level, max_stops_per_route, shift_start, shift_end,
		                     can_handle_fragile, can_handle_high_value, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			experience_level = EXCLUDED.experience_level, max_stops_per_route = EXCLUDED.max_stops_per_route,
			shift_start = EXCLUDED.shift_start, shift_end = EXCLUDED.shift_end,
			can_handle_fragile = EXCLUDED.can_handle_fragile, can_handle_high_value = EXCLUDED.can_handle_high_value,
			status = EXCLUDED.status`,
		d.ID, d.ExperienceLevel, d.MaxStopsPerRoute, d.ShiftStart, d.ShiftEnd,
		d.CanHandleFragile, d.CanHandleHighValue, d.Status)
	if err != nil {
		return fmt.Errorf("save driver %s: %w", d.ID, err)
	}
	return nil
}

func scanRoute(row pgx.Row) (domain.Route, error) {
	var r domain.Route
	err := row.Scan(&r.ID, &r.VehicleID, &r.DriverID, &r.PlannedDate, &r.PlannedStart, &r.PlannedEnd,
		&r.Status, &r.CurrentStopIndex, &r.ReoptimizationCount, &r.OptimizationScore, &r.LastReoptimizationTime)
	return r, err
}

func (s *PostgresStore) GetRoute(ctx context.Context, id string) (domain.Route, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, vehicle_id, driver_id, planned_date, planned_start, planned_end,
		       status, current_stop_index, reoptimization_count, optimization_score, last_reoptimization_time
		FROM routes WHERE id = $1`, id)
	r, err := scanRoute(row)
	if err != nil {
		return domain.Route{}, wrapNotFound("route", id, err)
	}
	return r, nil
}

// UpdateRouteStatus applies a direct status/progress transition, leaving
// stops, events and reoptimization counters untouched.
func (s *PostgresStore) UpdateRouteStatus(ctx context.Context, id string, status domain.RouteStatus, currentStopIndex int) (domain.Route, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE routes SET status = $2, current_stop_index = $3
		WHERE id = $1
		RETURNING id, vehicle_id, driver_id, planned_date, planned_start, planned_end,
		          status, current_stop_index, reoptimization_count, optimization_score, last_reoptimization_time`,
		id, status, currentStopIndex)
	r, err := scanRoute(row)
	if err != nil {
		return domain.Route{}, wrapNotFound("route", id, err)
	}
	return r, nil
}

func (s *PostgresStore) ListRoutes(ctx context.Context, filter RouteFilter) ([]domain.Route, error) {
	query := `
		SELECT id, vehicle_id, driver_id, planned_date, planned_start, planned_end,
		       status, current_stop_index, reoptimization_count, optimization_score, last_reoptimization_time
		FROM routes WHERE 1=1`
	var args []any
	i := 1
	add := func(clause string, val any) {
		query += fmt.Sprintf(" AND %s $%d", clause, i)
		args = append(args, val)
		i++
	}
	if filter.Date != nil {
		add("planned_date =", filter.Date.Truncate(24*time.Hour))
	}
	if filter.Status != nil {
		add("status =", *filter.Status)
	}
	if filter.VehicleID != "" {
		add("vehicle_id =", filter.VehicleID)
	}
	if filter.DriverID != "" {
		add("driver_id =", filter.DriverID)
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

	var out []domain.Route
	for rows.Next() {
		var r domain.Route
		if err := rows.Scan(&r.ID, &r.VehicleID, &r.DriverID, &r.PlannedDate, &r.PlannedStart, &r.PlannedEnd,
			&r.Status, &r.CurrentStopIndex, &r.ReoptimizationCount, &r.OptimizationScore, &r.LastReoptimizationTime); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListActiveRoutes(ctx context.Context) ([]domain.Route, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, vehicle_id, driver_id, planned_date, planned_start, planned_end,
		       status, current_stop_index, reoptimization_count, optimization_score, last_reoptimization_time
		FROM routes WHERE status IN ($1, $2)`, domain.RouteStatusPlanned, domain.RouteStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active routes: %w", err)
	}
	defer rows.Close()

	var out []domain.Route
	for rows.Next() {
		var r domain.Route
		if err := rows.Scan(&r.ID, &r.VehicleID, &r.DriverID, &r.PlannedDate, &r.PlannedStart, &r.PlannedEnd,
			&r.Status, &r.CurrentStopIndex, &r.ReoptimizationCount, &r.OptimizationScore, &r.LastReoptimizationTime); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateRoute(ctx context.Context, route domain.Route, stops []domain.Stop) error {
	return database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO routes (id, vehicle_id, driver_id, planned_date, planned_start, planned_end,
			                    status, current_stop_index, reoptimization_count, optimization_score, last_reoptimization_time)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			route.ID, route.VehicleID, route.DriverID, route.PlannedDate, route.PlannedStart, route.PlannedEnd,
			route.Status, route.CurrentStopIndex, route.ReoptimizationCount, route.OptimizationScore, route.LastReoptimizationTime)
		if err != nil {
			return fmt.Errorf("insert route %s: %w", route.ID, err)
		}
		return insertStops(ctx, tx, route.ID, stops)
	})
}

func insertStops(ctx context.Context, tx pgx.Tx, routeID string, stops []domain.Stop) error {
	for _, st := range stops {
		_, err := tx.Exec(ctx, `
			INSERT INTO stops (id, route_id, order_id, sequence, lat, lon, planned_arrival, planned_departure,
			                   actual_arrival, actual_departure, status, distance_from_prev_km, travel_time_from_prev_min)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			st.ID, routeID, st.OrderID, st.Sequence, st.Coordinate.Lat, st.Coordinate.Lon,
			st.PlannedArrival, st.PlannedDeparture, st.ActualArrival, st.ActualDeparture,
			st.Status, st.DistanceFromPrevKM, st.TravelTimeFromPrevMin)
		if err != nil {
			return fmt.Errorf("insert stop %s: %w", st.ID, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetStops(ctx context.Context, routeID string) ([]domain.Stop, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, route_id, order_id, sequence, lat, lon, planned_arrival, planned_departure,
		       actual_arrival, actual_departure, status, distance_from_prev_km, travel_time_from_prev_min
		FROM stops WHERE route_id = $1 ORDER BY sequence`, routeID)
	if err != nil {
		return nil, fmt.Errorf("get stops for route %s: %w", routeID, err)
	}
	defer rows.Close()

	var out []domain.Stop
	for rows.Next() {
		var st domain.Stop
		if err := rows.Scan(&st.ID, &st.RouteID, &st.OrderID, &st.Sequence, &st.Coordinate.Lat, &st.Coordinate.Lon,
			&st.PlannedArrival, &st.PlannedDeparture, &st.ActualArrival, &st.ActualDeparture,
			&st.Status, &st.DistanceFromPrevKM, &st.TravelTimeFromPrevMin); err != nil {
			return nil, fmt.Errorf("scan stop: %w", err)
		}
		out = append(out, st)
	}
	if len(out) == 0 {
		if _, err := s.GetRoute(ctx, routeID); err != nil {
			return nil, err
		}
	}
	return out, rows.Err()
}

// CommitRouteUpdate replaces a route's stops, bumps its reoptimization
// counter and stamps its cooldown marker, and records the triggering event,
// all inside one transaction.
func (s *PostgresStore) CommitRouteUpdate(ctx context.Context, update RouteUpdate) error {
	return database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
		now := time.Now()
		tag, err := tx.Exec(ctx, `
			UPDATE routes SET
				vehicle_id = $2, driver_id = $3, planned_start = $4, planned_end = $5,
				status = $6, current_stop_index = $7,
				reoptimization_count = reoptimization_count + 1,
				optimization_score = $8,
				last_reoptimization_time = $9
			WHERE id = $1`,
			update.Route.ID, update.Route.VehicleID, update.Route.DriverID,
			update.Route.PlannedStart, update.Route.PlannedEnd, update.Route.Status,
			update.Route.CurrentStopIndex, update.Route.OptimizationScore, now)
		if err != nil {
			return fmt.Errorf("update route %s: %w", update.Route.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return notFound("route", update.Route.ID)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM stops WHERE route_id = $1`, update.Route.ID); err != nil {
			return fmt.Errorf("clear stops for route %s: %w", update.Route.ID, err)
		}
		if err := insertStops(ctx, tx, update.Route.ID, update.Stops); err != nil {
			return err
		}

		return insertEvent(ctx, tx, update.Event)
	})
}

func insertEvent(ctx context.Context, tx pgx.Tx, e domain.Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO events (id, kind, severity, status, timestamp, route_id, vehicle_id, driver_id,
		                    order_id, estimated_delay_minutes, triggers_reoptimization)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, e.Kind, e.Severity, e.Status, e.Timestamp, e.RouteID, e.VehicleID, e.DriverID,
		e.OrderID, e.EstimatedDelayMinutes, e.TriggersReoptimization)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	return nil
}

func (s *PostgresStore) SaveEvent(ctx context.Context, e domain.Event) error {
	return database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
		return insertEvent(ctx, tx, e)
	})
}

func (s *PostgresStore) ListEvents(ctx context.Context, routeID string, limit int) ([]domain.Event, error) {
	query := `
		SELECT id, kind, severity, status, timestamp, route_id, vehicle_id, driver_id,
		       order_id, estimated_delay_minutes, triggers_reoptimization
		FROM events`
	var args []any
	if routeID != "" {
		query += " WHERE route_id = $1"
		args = append(args, routeID)
	}
	query += " ORDER BY timestamp DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.Kind, &e.Severity, &e.Status, &e.Timestamp, &e.RouteID, &e.VehicleID, &e.DriverID,
			&e.OrderID, &e.EstimatedDelayMinutes, &e.TriggersReoptimization); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListEventsFiltered(ctx context.Context, filter EventFilter) ([]domain.Event, error) {
	query := `
		SELECT id, kind, severity, status, timestamp, route_id, vehicle_id, driver_id,
		       order_id, estimated_delay_minutes, triggers_reoptimization
		FROM events WHERE 1=1`
	var args []any
	i := 1
	add := func(clause string, val any) {
		query += fmt.Sprintf(" AND %s $%d", clause, i)
		args = append(args, val)
		i++
	}
	if filter.RouteID != "" {
		add("route_id =", filter.RouteID)
	}
	if filter.Kind != nil {
		add("kind =", *filter.Kind)
	}
	if filter.Severity != nil {
		add("severity =", *filter.Severity)
	}
	if filter.ActiveOnly {
		add("status =", domain.EventStatusActive)
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events filtered: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.Kind, &e.Severity, &e.Status, &e.Timestamp, &e.RouteID, &e.VehicleID, &e.DriverID,
			&e.OrderID, &e.EstimatedDelayMinutes, &e.TriggersReoptimization); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
