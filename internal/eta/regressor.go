package eta

import (
	"context"
	"sync"
	"time"
)

// numFeatures is the size of the feature vector built from an Input:
// distance_km, traffic_factor, hour_of_day, day_of_week, weather_factor,
// driver_experience, vehicle_class encoded, complexity, plus a bias term.
const numFeatures = 9

var vehicleClassEncoding = map[VehicleClass]float64{
	ClassMotorcycle: 1,
	ClassCar:        2,
	ClassVan:        3,
	ClassTruck:      4,
}

// Sample is a historical (features, actual outcome) pair used to train
// RegressorPredictor online.
type Sample struct {
	Input         Input
	ActualMinutes float64
}

// RegressorPredictor is an online-trainable linear model behind the same
// Predictor interface as HeuristicPredictor, demonstrating the model seam
// without introducing an ML framework dependency: weights are updated by
// plain stochastic gradient descent over a small hand-built feature
// vector, and predictions fall back to HeuristicPredictor until enough
// samples have been seen.
type RegressorPredictor struct {
	mu           sync.Mutex
	weights      [numFeatures]float64
	learningRate float64
	samplesSeen  int
	minSamples   int
	fallback     *HeuristicPredictor
}

// NewRegressorPredictor builds an untrained RegressorPredictor. It defers
// to HeuristicPredictor until minSamples training samples have been
// observed (0 uses a default of 20).
func NewRegressorPredictor(learningRate float64, minSamples int) *RegressorPredictor {
	if learningRate <= 0 {
		learningRate = 0.01
	}
	if minSamples <= 0 {
		minSamples = 20
	}
	return &RegressorPredictor{
		learningRate: learningRate,
		minSamples:   minSamples,
		fallback:     NewHeuristicPredictor(),
	}
}

func features(in Input) [numFeatures]float64 {
	depart := in.DepartAt
	if depart.IsZero() {
		depart = time.Now()
	}
	traffic := in.TrafficFactor
	if traffic <= 0 {
		traffic = 1.0
	}
	weather := in.WeatherFactor
	if weather <= 0 {
		weather = 1.0
	}
	complexity := in.Complexity
	if complexity <= 0 {
		complexity = 1.0
	}

	return [numFeatures]float64{
		1.0, // bias
		in.DistanceKM,
		traffic,
		float64(depart.Hour()),
		float64(int(depart.Weekday())),
		weather,
		in.DriverExperience,
		vehicleClassEncoding[in.VehicleClass],
		complexity,
	}
}

func dot(a, b [numFeatures]float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Train applies one SGD step toward the sample's actual outcome.
func (p *RegressorPredictor) Train(sample Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()

	x := features(sample.Input)
	predicted := dot(p.weights, x)
	errTerm := predicted - sample.ActualMinutes

	for i := range p.weights {
		p.weights[i] -= p.learningRate * errTerm * x[i]
	}
	p.samplesSeen++
}

// Predict uses the learned linear model once enough samples have been
// trained on, otherwise defers to the heuristic predictor. It also defers
// to the heuristic when the model's estimate is negative.
func (p *RegressorPredictor) Predict(ctx context.Context, in Input) (Prediction, error) {
	p.mu.Lock()
	trained := p.samplesSeen >= p.minSamples
	weights := p.weights
	p.mu.Unlock()

	if !trained {
		return p.fallback.Predict(ctx, in)
	}

	x := features(in)
	minutes := dot(weights, x)
	if minutes < 0 {
		return p.fallback.Predict(ctx, in)
	}

	depart := in.DepartAt
	if depart.IsZero() {
		depart = time.Now()
	}

	return Prediction{
		ETA:               depart.Add(time.Duration(minutes * float64(time.Minute))),
		TravelTimeMinutes: minutes,
		Confidence:        clampConfidence(0.7),
		Method:            MethodModel,
	}, nil
}
