package eta

import (
	"context"
	"testing"
	"time"
)

func TestHeuristicPredictor_Deterministic(t *testing.T) {
	p := NewHeuristicPredictor()
	in := Input{
		DistanceKM:       10,
		TrafficFactor:    1.0,
		DepartAt:         time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC),
		DriverExperience: 3,
		VehicleClass:     ClassCar,
		Complexity:       1.0,
		WeatherFactor:    1.0,
	}

	a, err := p.Predict(context.Background(), in)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	b, err := p.Predict(context.Background(), in)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if a != b {
		t.Errorf("heuristic predictions for identical input differ: %+v vs %+v", a, b)
	}
	if a.Method != MethodHeuristic {
		t.Errorf("Method = %v, want heuristic", a.Method)
	}
}

func TestHeuristicPredictor_ConfidenceReducesWithTraffic(t *testing.T) {
	p := NewHeuristicPredictor()
	base := Input{DistanceKM: 10, TrafficFactor: 1.0, VehicleClass: ClassCar, Complexity: 1.0, WeatherFactor: 1.0}
	heavy := base
	heavy.TrafficFactor = 2.0

	calm, _ := p.Predict(context.Background(), base)
	jammed, _ := p.Predict(context.Background(), heavy)

	if jammed.Confidence >= calm.Confidence {
		t.Errorf("confidence under heavy traffic (%v) should be lower than normal (%v)", jammed.Confidence, calm.Confidence)
	}
	if jammed.TravelTimeMinutes <= calm.TravelTimeMinutes {
		t.Errorf("travel time under heavy traffic (%v) should exceed normal (%v)", jammed.TravelTimeMinutes, calm.TravelTimeMinutes)
	}
}

func TestHeuristicPredictor_ConfidenceClamped(t *testing.T) {
	p := NewHeuristicPredictor()
	in := Input{DistanceKM: 10, TrafficFactor: 3.0, WeatherFactor: 2.0, Complexity: 3.0, VehicleClass: ClassTruck}
	pred, _ := p.Predict(context.Background(), in)
	if pred.Confidence < 0.3 || pred.Confidence > 0.95 {
		t.Errorf("confidence %v out of bounds [0.3, 0.95]", pred.Confidence)
	}
}

func TestRegressorPredictor_FallsBackUntilTrained(t *testing.T) {
	r := NewRegressorPredictor(0.01, 5)
	in := Input{DistanceKM: 10, TrafficFactor: 1.0, VehicleClass: ClassVan, Complexity: 1.0, WeatherFactor: 1.0}

	pred, err := r.Predict(context.Background(), in)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Method != MethodHeuristic {
		t.Errorf("untrained regressor should defer to heuristic, got method %v", pred.Method)
	}

	for i := 0; i < 10; i++ {
		r.Train(Sample{Input: in, ActualMinutes: 20})
	}

	pred, err = r.Predict(context.Background(), in)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Method != MethodModel {
		t.Errorf("trained regressor should use the model, got method %v", pred.Method)
	}
}

func TestRegressorPredictor_LearnsTowardTarget(t *testing.T) {
	r := NewRegressorPredictor(0.001, 1)
	in := Input{DistanceKM: 20, TrafficFactor: 1.0, VehicleClass: ClassCar, Complexity: 1.0, WeatherFactor: 1.0}

	for i := 0; i < 500; i++ {
		r.Train(Sample{Input: in, ActualMinutes: 40})
	}

	pred, err := r.Predict(context.Background(), in)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if diff := pred.TravelTimeMinutes - 40; diff > 5 || diff < -5 {
		t.Errorf("TravelTimeMinutes = %v, want close to 40 after training", pred.TravelTimeMinutes)
	}
}
