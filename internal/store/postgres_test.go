package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/domain"
	"dispatch/pkg/apperror"
)

type pgxMockAdapter struct {
	mock pgxmock.PgxPoolIface
}

func (a *pgxMockAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return a.mock.Exec(ctx, sql, args...)
}

func (a *pgxMockAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.mock.Query(ctx, sql, args...)
}

func (a *pgxMockAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.mock.QueryRow(ctx, sql, args...)
}

func (a *pgxMockAdapter) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return a.mock.BeginTx(ctx, txOptions)
}

func (a *pgxMockAdapter) Close() {
	a.mock.Close()
}

func (a *pgxMockAdapter) Ping(ctx context.Context) error {
	return a.mock.Ping(ctx)
}

func setupMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return mock, NewPostgresStore(&pgxMockAdapter{mock: mock})
}

func TestPostgresStore_GetOrder_Success(t *testing.T) {
	mock, s := setupMockStore(t)
	defer mock.Close()

	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"id", "lat", "lon", "tw_start", "tw_end", "weight_kg", "volume_m3",
		"service_duration_min", "priority", "status", "driver_id", "stop_id",
	}).AddRow("o1", 1.0, 2.0, now, now.Add(time.Hour), 5.0, 0.1,
		10.0, domain.PriorityHigh, domain.OrderStatusPending, nil, nil)

	mock.ExpectQuery(`(?s)SELECT.*FROM orders WHERE id = \$1`).
		WithArgs("o1").
		WillReturnRows(rows)

	o, err := s.GetOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
	assert.Equal(t, domain.PriorityHigh, o.Priority)
	assert.Equal(t, 10*time.Minute, o.ServiceDuration)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOrder_NotFound(t *testing.T) {
	mock, s := setupMockStore(t)
	defer mock.Close()

	mock.ExpectQuery(`(?s)SELECT.*FROM orders WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetOrder(context.Background(), "missing")
	require.Error(t, err)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeResourceNotFound, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOrder_DatabaseError(t *testing.T) {
	mock, s := setupMockStore(t)
	defer mock.Close()

	mock.ExpectQuery(`(?s)SELECT.*FROM orders WHERE id = \$1`).
		WithArgs("o1").
		WillReturnError(errors.New("connection lost"))

	_, err := s.GetOrder(context.Background(), "o1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query order o1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPendingOrders_Success(t *testing.T) {
	mock, s := setupMockStore(t)
	defer mock.Close()

	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"id", "lat", "lon", "tw_start", "tw_end", "weight_kg", "volume_m3",
		"service_duration_min", "priority", "status", "driver_id", "stop_id",
	}).AddRow("o1", 1.0, 2.0, now, now.Add(time.Hour), 5.0, 0.1,
		10.0, domain.PriorityHigh, domain.OrderStatusPending, nil, nil)

	mock.ExpectQuery(`(?s)SELECT.*FROM orders WHERE status = \$1`).
		WithArgs(domain.OrderStatusPending).
		WillReturnRows(rows)

	out, err := s.ListPendingOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "o1", out[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveVehicle_Upsert(t *testing.T) {
	mock, s := setupMockStore(t)
	defer mock.Close()

	v := domain.Vehicle{
		ID: "v1", MaxWeightKg: 1000, MaxVolumeM3: 10,
		Depot: domain.Coordinate{Lat: 1, Lon: 2}, CostPerKM: 0.5, CostPerHour: 20,
		MaxWorkingMinutes: 480, BreakEveryMinutes: 240, BreakDuration: 30 * time.Minute,
		Status: domain.VehicleStatusAvailable,
	}

	mock.ExpectExec(`INSERT INTO vehicles`).
		WithArgs(v.ID, v.MaxWeightKg, v.MaxVolumeM3, v.Depot.Lat, v.Depot.Lon, v.CostPerKM, v.CostPerHour,
			[]string{}, v.MaxWorkingMinutes, v.BreakEveryMinutes, v.BreakDuration.Minutes(), v.Status).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveVehicle(context.Background(), v)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CommitRouteUpdate_Success(t *testing.T) {
	mock, s := setupMockStore(t)
	defer mock.Close()

	update := RouteUpdate{
		Route: domain.Route{ID: "r1", VehicleID: "v1", DriverID: "d1", Status: domain.RouteStatusActive},
		Stops: []domain.Stop{{ID: "s1", RouteID: "r1", Sequence: 0}},
		Event: domain.Event{ID: "e1", Kind: domain.EventKindReoptimizationCompleted, RouteID: "r1"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE routes SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM stops WHERE route_id = \$1`).
		WithArgs("r1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO stops`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO events`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.CommitRouteUpdate(context.Background(), update)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CommitRouteUpdate_RouteMissing_RollsBack(t *testing.T) {
	mock, s := setupMockStore(t)
	defer mock.Close()

	update := RouteUpdate{Route: domain.Route{ID: "missing"}}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE routes SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.CommitRouteUpdate(context.Background(), update)
	require.Error(t, err)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodeResourceNotFound, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRoutes_BuildsFilterClauses(t *testing.T) {
	mock, s := setupMockStore(t)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{
		"id", "vehicle_id", "driver_id", "planned_date", "planned_start", "planned_end",
		"status", "current_stop_index", "reoptimization_count", "optimization_score", "last_reoptimization_time",
	})

	planned := domain.RouteStatusPlanned
	mock.ExpectQuery(`(?s)SELECT.*FROM routes WHERE 1=1 AND status = \$1 AND vehicle_id = \$2 ORDER BY id`).
		WithArgs(planned, "v1").
		WillReturnRows(rows)

	_, err := s.ListRoutes(context.Background(), RouteFilter{Status: &planned, VehicleID: "v1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
