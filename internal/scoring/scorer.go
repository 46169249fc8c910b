// Package scoring wraps the trained models behind a shared scorer
// capability and combines their outputs into one calibrated fraud
// probability.
package scoring

import (
	"context"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
	"github.com/Saimudragada/fraud-detection-system/internal/model"
)

// Scorer produces a normalized component score for a feature vector.
// The two implementations differ only in the wrapped model handle and the
// scaling that maps its native output into [0,1].
type Scorer interface {
	Name() string
	Score(ctx context.Context, vec *domain.FeatureVector) (domain.ComponentScore, error)
}

// AnomalyScorer wraps the isolation forest. No fraud labels were used to
// fit it, so it catches pattern shapes never seen in training.
type AnomalyScorer struct {
	bundle *model.Bundle
	weight float64
}

// NewAnomalyScorer binds the scorer to one bundle and its ensemble weight.
func NewAnomalyScorer(b *model.Bundle, weight float64) *AnomalyScorer {
	return &AnomalyScorer{bundle: b, weight: weight}
}

// Name returns the scorer identity.
func (s *AnomalyScorer) Name() string { return domain.ScorerAnomaly }

// Score normalizes the forest's path-length output to [0,1], higher
// meaning more anomalous.
func (s *AnomalyScorer) Score(ctx context.Context, vec *domain.FeatureVector) (domain.ComponentScore, error) {
	x, err := modelSpace(s.Name(), s.bundle, vec)
	if err != nil {
		return domain.ComponentScore{}, err
	}
	return domain.ComponentScore{
		Scorer: s.Name(),
		Value:  s.bundle.IsolationForest.AnomalyScore(x),
		Raw:    s.bundle.IsolationForest.MeanPathLength(x),
		Weight: s.weight,
	}, nil
}

// ClassifierScorer wraps the supervised tree ensemble: sharper on known
// fraud patterns, blind to novel ones.
type ClassifierScorer struct {
	bundle *model.Bundle
	weight float64
}

// NewClassifierScorer binds the scorer to one bundle and its ensemble weight.
func NewClassifierScorer(b *model.Bundle, weight float64) *ClassifierScorer {
	return &ClassifierScorer{bundle: b, weight: weight}
}

// Name returns the scorer identity.
func (s *ClassifierScorer) Name() string { return domain.ScorerClassifier }

// Score returns the calibrated class-1 probability.
func (s *ClassifierScorer) Score(ctx context.Context, vec *domain.FeatureVector) (domain.ComponentScore, error) {
	x, err := modelSpace(s.Name(), s.bundle, vec)
	if err != nil {
		return domain.ComponentScore{}, err
	}
	margin := s.bundle.Classifier.Margin(x)
	return domain.ComponentScore{
		Scorer: s.Name(),
		Value:  model.Sigmoid(margin),
		Raw:    margin,
		Weight: s.weight,
	}, nil
}

// modelSpace validates the vector against the bundle layout and applies
// the fitted scaler. A mismatch is fatal for the request: the model
// contract is static, so retrying without fixing the deployment cannot
// succeed.
func modelSpace(scorer string, b *model.Bundle, vec *domain.FeatureVector) ([]float64, error) {
	if err := b.Layout.Validate(vec); err != nil {
		return nil, &domain.ScoringUnavailableError{Scorer: scorer, Reason: err.Error()}
	}
	x, err := b.Scaler.Transform(vec.Values)
	if err != nil {
		return nil, &domain.ScoringUnavailableError{Scorer: scorer, Reason: err.Error()}
	}
	return x, nil
}
