package explain

import (
	"math"
	"sort"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
	"github.com/Saimudragada/fraud-detection-system/internal/model"
)

// additivityTolerance is the relative tolerance for the reconstruction
// check: base + sum(contributions) must equal the raw margin.
const additivityTolerance = 1e-6

// Engine computes per-prediction attributions. It is the most expensive
// pipeline stage, so callers only invoke it for flagged or explicitly
// requested transactions.
type Engine struct {
	topK int
}

// NewEngine creates an attribution engine surfacing the top-k
// contributions by absolute magnitude.
func NewEngine(topK int) *Engine {
	if topK <= 0 {
		topK = 5
	}
	return &Engine{topK: topK}
}

// Explain attributes the classifier's output for vec across its features.
// The full contribution set is always computed so the additivity invariant
// can be verified even though only the top-k rows are surfaced; the raw
// (unscaled) feature values are reported alongside.
func (e *Engine) Explain(vec *domain.FeatureVector, b *model.Bundle) (*domain.Attribution, error) {
	if err := b.Layout.Validate(vec); err != nil {
		return nil, &domain.ScoringUnavailableError{Scorer: domain.ScorerClassifier, Reason: err.Error()}
	}
	x, err := b.Scaler.Transform(vec.Values)
	if err != nil {
		return nil, &domain.ScoringUnavailableError{Scorer: domain.ScorerClassifier, Reason: err.Error()}
	}

	phi := Contributions(b.Classifier, x)
	base := b.Classifier.ExpectedValue()
	margin := b.Classifier.Margin(x)

	// Additivity is a correctness invariant, not a stylistic choice: an
	// explanation that does not reconstruct the model output is a bug and
	// must never be returned.
	sum := base
	for _, p := range phi {
		sum += p
	}
	scale := math.Max(math.Abs(margin), 1)
	if gap := math.Abs(sum - margin); gap > additivityTolerance*scale {
		return nil, &domain.AttributionError{
			Reason: "contributions do not reconstruct the classifier margin",
			Gap:    gap,
		}
	}

	order := make([]int, len(phi))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return math.Abs(phi[order[a]]) > math.Abs(phi[order[b]])
	})

	k := e.topK
	if k > len(order) {
		k = len(order)
	}
	top := make([]domain.FeatureContribution, 0, k)
	for _, i := range order[:k] {
		top = append(top, domain.FeatureContribution{
			Feature:      vec.Names[i],
			Value:        vec.Values[i],
			Contribution: phi[i],
		})
	}

	return &domain.Attribution{
		BaseValue:    base,
		Margin:       margin,
		Probability:  model.Sigmoid(margin),
		Top:          top,
		FeatureCount: len(phi),
	}, nil
}
