package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Стандартные ключи атрибутов
const (
	// Маршрут
	AttrRouteID     = "route.id"
	AttrVehicleID   = "route.vehicle_id"
	AttrStopsCount  = "route.stops_count"
	AttrDistanceKM  = "route.distance_km"
	AttrDurationMin = "route.duration_min"

	// Решатель
	AttrSolverStrategy  = "solver.strategy"
	AttrSolverIteration = "solver.iteration"
	AttrObjectiveScore  = "solver.objective_score"
	AttrOrdersAssigned  = "solver.orders_assigned"

	// Адаптация
	AttrEventKind       = "adaptive.event_kind"
	AttrTriggerDelayMin = "adaptive.trigger_delay_min"
	AttrReoptAccepted   = "adaptive.reoptimization_accepted"

	// Валидация
	AttrValidationLevel  = "validation.level"
	AttrValidationErrors = "validation.errors"
	AttrValidationPassed = "validation.passed"
)

// RouteAttributes возвращает атрибуты маршрута
func RouteAttributes(routeID, vehicleID string, stops int, distanceKM, durationMin float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRouteID, routeID),
		attribute.String(AttrVehicleID, vehicleID),
		attribute.Int(AttrStopsCount, stops),
		attribute.Float64(AttrDistanceKM, distanceKM),
		attribute.Float64(AttrDurationMin, durationMin),
	}
}

// SolverAttributes возвращает атрибуты прогона решателя
func SolverAttributes(strategy string, iteration int, objectiveScore float64, ordersAssigned int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSolverStrategy, strategy),
		attribute.Int(AttrSolverIteration, iteration),
		attribute.Float64(AttrObjectiveScore, objectiveScore),
		attribute.Int(AttrOrdersAssigned, ordersAssigned),
	}
}

// AdaptiveAttributes возвращает атрибуты события адаптивной переоптимизации
func AdaptiveAttributes(eventKind string, triggerDelayMin float64, accepted bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrEventKind, eventKind),
		attribute.Float64(AttrTriggerDelayMin, triggerDelayMin),
		attribute.Bool(AttrReoptAccepted, accepted),
	}
}

// ValidationAttributes возвращает атрибуты валидации
func ValidationAttributes(level string, errorsCount int, passed bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrValidationLevel, level),
		attribute.Int(AttrValidationErrors, errorsCount),
		attribute.Bool(AttrValidationPassed, passed),
	}
}
