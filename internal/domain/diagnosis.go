package domain

import (
	"fmt"
	"math"
)

// DefaultLabels is the reference labeling of the model's output layer.
var DefaultLabels = []string{"pneumonia", "normal", "lung_cancer"}

// Diagnosis is the winning class and its probability as a percentage.
type Diagnosis struct {
	Label      string
	Confidence float64
}

// Diagnose picks the most probable class. Ties resolve to the lowest index.
// Probabilities are taken as-is; values outside [0, 1] are rejected rather
// than re-normalized.
func Diagnose(labels []string, probs []float32) (Diagnosis, error) {
	if len(probs) == 0 {
		return Diagnosis{}, fmt.Errorf("%w: empty output", ErrClassCountMismatch)
	}
	if len(probs) != len(labels) {
		return Diagnosis{}, fmt.Errorf("%w: got %d probabilities for %d labels", ErrClassCountMismatch, len(probs), len(labels))
	}

	best := 0
	for i, p := range probs {
		v := float64(p)
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
			return Diagnosis{}, fmt.Errorf("%w: index %d = %v", ErrInvalidProbability, i, p)
		}
		if p > probs[best] {
			best = i
		}
	}

	return Diagnosis{
		Label:      labels[best],
		Confidence: ConfidencePercent(probs[best]),
	}, nil
}

// ConfidencePercent scales a probability to a percentage rounded to two decimals.
func ConfidencePercent(p float32) float64 {
	return math.Round(float64(p)*100*100) / 100
}
