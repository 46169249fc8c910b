// Package pipeline sequences the scoring stages for one request: feature
// derivation, the two model scorers run concurrently, ensemble
// combination, threshold decision, and optional attribution.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
	"github.com/Saimudragada/fraud-detection-system/internal/explain"
	"github.com/Saimudragada/fraud-detection-system/internal/features"
	"github.com/Saimudragada/fraud-detection-system/internal/model"
	"github.com/Saimudragada/fraud-detection-system/internal/policy"
	"github.com/Saimudragada/fraud-detection-system/internal/scoring"
)

// Observer receives completed scoring results, e.g. for metrics and drift
// tracking. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveResult(res *domain.ScoringResult)
}

// Orchestrator owns one request/response scoring cycle, including latency
// accounting and failure propagation. It is stateless apart from the
// read-only artifact store, so requests may run concurrently.
type Orchestrator struct {
	store     *model.Store
	cfg       domain.ScoringConfig
	combiner  *scoring.Combiner
	threshold *scoring.ThresholdPolicy
	explainer *explain.Engine
	overrides *policy.Engine
	observer  Observer

	// newScorers builds the per-bundle scorers; replaceable in tests.
	newScorers func(b *model.Bundle) (scoring.Scorer, scoring.Scorer)
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithOverrides attaches the decision override engine.
func WithOverrides(e *policy.Engine) Option {
	return func(o *Orchestrator) { o.overrides = e }
}

// WithObserver attaches a result observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// New creates an orchestrator from the artifact store and the scoring
// configuration.
func New(store *model.Store, cfg domain.ScoringConfig, opts ...Option) (*Orchestrator, error) {
	combiner, err := scoring.NewCombiner(cfg.AnomalyWeight, cfg.ClassifierWeight)
	if err != nil {
		return nil, err
	}
	threshold, err := scoring.NewThresholdPolicy(cfg.Threshold, cfg.ReviewBand)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		store:     store,
		cfg:       cfg,
		combiner:  combiner,
		threshold: threshold,
		explainer: explain.NewEngine(cfg.TopK),
		newScorers: func(b *model.Bundle) (scoring.Scorer, scoring.Scorer) {
			return scoring.NewAnomalyScorer(b, cfg.AnomalyWeight),
				scoring.NewClassifierScorer(b, cfg.ClassifierWeight)
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ScoreOne runs the full pipeline for a single transaction. Either scorer
// failing fails the whole request: a result blended from one of two models
// would silently change the calibration downstream threshold tuning
// assumed, which is worse than an explicit failure.
func (o *Orchestrator) ScoreOne(ctx context.Context, tx *domain.Transaction, wantExplanation bool) (*domain.ScoringResult, error) {
	start := time.Now()

	budget := time.Duration(o.cfg.RequestTimeout) * time.Millisecond
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	// One bundle per request: a mid-request artifact swap must never mix
	// model versions.
	bundle := o.store.Active()
	engineer := features.NewEngineer(bundle)

	vec, err := engineer.Derive(tx)
	if err != nil {
		return nil, err
	}
	featuresUs := time.Since(start).Microseconds()

	// The two scorers are independent of each other; run them
	// concurrently and join before combining.
	scoringStart := time.Now()
	anomalyScorer, classifierScorer := o.newScorers(bundle)

	var (
		wg            sync.WaitGroup
		anomaly       domain.ComponentScore
		classifier    domain.ComponentScore
		anomalyErr    error
		classifierErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		anomaly, anomalyErr = anomalyScorer.Score(ctx, vec)
	}()
	go func() {
		defer wg.Done()
		classifier, classifierErr = classifierScorer.Score(ctx, vec)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, &domain.TimeoutError{Stage: "scoring", Budget: budget}
	}

	if anomalyErr != nil {
		return nil, anomalyErr
	}
	if classifierErr != nil {
		return nil, classifierErr
	}
	scoringUs := time.Since(scoringStart).Microseconds()

	decisionStart := time.Now()
	fraudScore := o.combiner.Combine(anomaly, classifier)
	decision := o.threshold.Decide(fraudScore)

	result := &domain.ScoringResult{
		ID:           uuid.New().String(),
		TenantID:     tx.TenantID,
		TxID:         tx.ID,
		Score:        fraudScore,
		Decision:     decision,
		ModelVersion: bundle.Version,
		Timestamp:    time.Now().UTC(),
	}

	if o.overrides != nil {
		result.Decision = o.overrides.Apply(ctx, tx, result)
	}
	decisionUs := time.Since(decisionStart).Microseconds()

	var explainUs int64
	if wantExplanation || (o.cfg.ExplainFlagged && result.Decision.Flagged()) {
		if ctx.Err() != nil {
			return nil, &domain.TimeoutError{Stage: "explanation", Budget: budget}
		}
		explainStart := time.Now()
		attribution, err := o.explainer.Explain(vec, bundle)
		if err != nil {
			return nil, err
		}
		result.Attribution = attribution
		explainUs = time.Since(explainStart).Microseconds()
	}

	result.Timings = domain.StageTimings{
		FeaturesUs: featuresUs,
		ScoringUs:  scoringUs,
		DecisionUs: decisionUs,
		ExplainUs:  explainUs,
		TotalUs:    time.Since(start).Microseconds(),
	}

	if o.observer != nil {
		o.observer.ObserveResult(result)
	}
	return result, nil
}

// ScoreBatch scores a bounded batch as independent per-transaction
// pipelines over a worker pool. Items are reported individually in input
// order; a failing transaction never aborts its siblings.
func (o *Orchestrator) ScoreBatch(ctx context.Context, txs []*domain.Transaction, wantExplanation bool) []domain.BatchItem {
	items := make([]domain.BatchItem, len(txs))

	workers := o.cfg.BatchWorkers
	if workers <= 0 {
		workers = 4
	}
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, tx := range txs {
		wg.Add(1)
		go func(idx int, tx *domain.Transaction) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			res, err := o.ScoreOne(ctx, tx, wantExplanation)
			items[idx] = domain.BatchItem{Index: idx, Result: res, Err: err}
		}(i, tx)
	}
	wg.Wait()

	return items
}

// ModelVersion reports the active bundle version.
func (o *Orchestrator) ModelVersion() string {
	return o.store.Active().Version
}
