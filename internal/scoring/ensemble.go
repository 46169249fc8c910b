package scoring

import (
	"fmt"
	"math"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
)

// weightTolerance bounds how far the configured weights may drift from
// summing to exactly 1 before the configuration is rejected.
const weightTolerance = 1e-9

// Combiner fuses the anomaly and classifier scores into one fraud
// probability under fixed configured weights. The blend trades a little
// precision on known patterns for recall on novel ones.
type Combiner struct {
	anomalyWeight    float64
	classifierWeight float64
}

// NewCombiner validates the weights: both non-negative, summing to 1.
// Weight selection is an offline calibration exercise; the combiner only
// consumes the chosen values.
func NewCombiner(anomalyWeight, classifierWeight float64) (*Combiner, error) {
	if anomalyWeight < 0 || classifierWeight < 0 {
		return nil, fmt.Errorf("ensemble weights must be non-negative, got %v/%v", anomalyWeight, classifierWeight)
	}
	if math.Abs(anomalyWeight+classifierWeight-1) > weightTolerance {
		return nil, fmt.Errorf("ensemble weights must sum to 1, got %v", anomalyWeight+classifierWeight)
	}
	return &Combiner{anomalyWeight: anomalyWeight, classifierWeight: classifierWeight}, nil
}

// Combine returns the weighted sum of the two component scores, clamped to
// [0,1] to guard against a wrapped model slightly exceeding its nominal
// range through numerical error.
func (c *Combiner) Combine(anomaly, classifier domain.ComponentScore) domain.FraudScore {
	anomaly.Weight = c.anomalyWeight
	classifier.Weight = c.classifierWeight

	v := c.anomalyWeight*anomaly.Value + c.classifierWeight*classifier.Value
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}

	return domain.FraudScore{
		Value:      v,
		Components: []domain.ComponentScore{anomaly, classifier},
	}
}
