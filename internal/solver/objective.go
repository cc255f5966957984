package solver

// ObjectiveWeights is the (α, β, γ) weighting of the SAAV objective:
// travel cost, waiting-time penalty, and adaptation-count penalty.
// Weights are normalized to sum to 1 on construction.
type ObjectiveWeights struct {
	Alpha float64
	Beta  float64
	Gamma float64
}

// NewObjectiveWeights normalizes the given weights to sum to 1. A zero sum
// falls back to the default (0.6, 0.3, 0.1) split.
func NewObjectiveWeights(alpha, beta, gamma float64) ObjectiveWeights {
	total := alpha + beta + gamma
	if total <= 0 {
		return ObjectiveWeights{Alpha: 0.6, Beta: 0.3, Gamma: 0.1}
	}
	return ObjectiveWeights{Alpha: alpha / total, Beta: beta / total, Gamma: gamma / total}
}

// objective computes the SAAV objective value: a weighted sum of
// normalized travel cost, waiting time, and adaptation count.
func (w ObjectiveWeights) objective(travelCost, waitingTime float64, adaptations int, baseCost float64) float64 {
	if baseCost <= 0 {
		baseCost = 1000.0
	}
	normalizedTravel := travelCost / baseCost
	normalizedWaiting := waitingTime / (baseCost * 0.1)
	normalizedAdaptations := float64(adaptations) / 10.0

	return w.Alpha*normalizedTravel + w.Beta*normalizedWaiting + w.Gamma*normalizedAdaptations
}
