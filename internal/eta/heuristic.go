package eta

import (
	"context"
	"strings"
	"time"
)

// baseSpeedsKMH is the rule-based speed table by vehicle class.
var baseSpeedsKMH = map[VehicleClass]float64{
	ClassMotorcycle: 35,
	ClassCar:        30,
	ClassVan:        25,
	ClassTruck:      20,
}

const defaultBaseSpeedKMH = 25

// HeuristicPredictor is a deterministic, rule-based ETA estimator: no
// training data or randomness, always available as a fallback for the
// model-backed predictor.
type HeuristicPredictor struct{}

// NewHeuristicPredictor builds a HeuristicPredictor.
func NewHeuristicPredictor() *HeuristicPredictor {
	return &HeuristicPredictor{}
}

func baseSpeed(class VehicleClass) float64 {
	if speed, ok := baseSpeedsKMH[VehicleClass(strings.ToLower(string(class)))]; ok {
		return speed
	}
	return defaultBaseSpeedKMH
}

// Predict computes a travel-time estimate from the base speed for the
// vehicle class, adjusted for traffic, weather and driver experience, plus
// additive complexity and service-time terms.
func (p *HeuristicPredictor) Predict(ctx context.Context, in Input) (Prediction, error) {
	traffic := in.TrafficFactor
	if traffic <= 0 {
		traffic = 1.0
	}
	weather := in.WeatherFactor
	if weather <= 0 {
		weather = 1.0
	}

	speed := baseSpeed(in.VehicleClass)
	speed *= 1 / traffic
	speed *= 1 / weather

	experienceMultiplier := 0.8 + (in.DriverExperience/5)*0.4
	speed *= experienceMultiplier

	travelTimeMinutes := (in.DistanceKM / speed) * 60

	complexity := in.Complexity
	if complexity <= 0 {
		complexity = 1.0
	}
	complexityMinutes := (complexity - 1) * 10
	serviceTimeMinutes := 15 * complexity

	totalMinutes := travelTimeMinutes + complexityMinutes + serviceTimeMinutes

	confidence := heuristicConfidence(traffic, weather, complexity)

	depart := in.DepartAt
	if depart.IsZero() {
		depart = time.Now()
	}

	return Prediction{
		ETA:               depart.Add(time.Duration(totalMinutes * float64(time.Minute))),
		TravelTimeMinutes: totalMinutes,
		Confidence:        confidence,
		Method:            MethodHeuristic,
	}, nil
}

func heuristicConfidence(traffic, weather, complexity float64) float64 {
	confidence := 0.8
	if traffic > 1.5 {
		confidence -= 0.2
	}
	if weather > 1.3 {
		confidence -= 0.15
	}
	if complexity > 2.0 {
		confidence -= 0.1
	}
	return clampConfidence(confidence)
}
