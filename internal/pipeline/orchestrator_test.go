package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
	"github.com/Saimudragada/fraud-detection-system/internal/model"
	"github.com/Saimudragada/fraud-detection-system/internal/model/modeltest"
	"github.com/Saimudragada/fraud-detection-system/internal/policy"
	"github.com/Saimudragada/fraud-detection-system/internal/scoring"
)

func testConfig() domain.ScoringConfig {
	return domain.DefaultConfig().Scoring
}

func legitTransaction() *domain.Transaction {
	return &domain.Transaction{
		ID:       "tx-legit",
		TenantID: "tenant-001",
		Signals:  make([]float64, domain.SignalCount),
		Amount:   100,
	}
}

func riskyTransaction() *domain.Transaction {
	tx := legitTransaction()
	tx.ID = "tx-risky"
	tx.Signals[13] = -5 // v14
	tx.Amount = 5000
	return tx
}

func newTestOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(modeltest.NewTestStore(), testConfig(), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o
}

// stubScorer returns a fixed component score, or blocks on the release
// channel when one is set.
type stubScorer struct {
	name    string
	value   float64
	err     error
	release chan struct{}
}

func (s *stubScorer) Name() string { return s.name }

func (s *stubScorer) Score(ctx context.Context, vec *domain.FeatureVector) (domain.ComponentScore, error) {
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return domain.ComponentScore{}, s.err
	}
	return domain.ComponentScore{Scorer: s.name, Value: s.value}, nil
}

func withStubScorers(o *Orchestrator, anomaly, classifier scoring.Scorer) {
	o.newScorers = func(*model.Bundle) (scoring.Scorer, scoring.Scorer) {
		return anomaly, classifier
	}
}

func TestScoreOne(t *testing.T) {
	t.Run("LegitTransaction", func(t *testing.T) {
		o := newTestOrchestrator(t)
		res, err := o.ScoreOne(context.Background(), legitTransaction(), false)
		if err != nil {
			t.Fatalf("ScoreOne failed: %v", err)
		}

		if res.Decision.Tier != domain.TierLow {
			t.Errorf("expected LOW, got %s", res.Decision.Tier)
		}
		if res.Decision.Flagged() {
			t.Error("legit transaction flagged")
		}
		if res.Attribution != nil {
			t.Error("unexpected attribution on unflagged transaction")
		}
		if res.ModelVersion != modeltest.Version {
			t.Errorf("expected model version %q, got %q", modeltest.Version, res.ModelVersion)
		}
		if res.ID == "" || res.TxID != "tx-legit" || res.TenantID != "tenant-001" {
			t.Errorf("result identity not populated: %+v", res)
		}
		if len(res.Score.Components) != 2 {
			t.Fatalf("expected 2 components, got %d", len(res.Score.Components))
		}
		if res.Score.Components[0].Scorer != domain.ScorerAnomaly ||
			res.Score.Components[1].Scorer != domain.ScorerClassifier {
			t.Errorf("unexpected component order: %+v", res.Score.Components)
		}
		if res.Timings.TotalUs <= 0 {
			t.Errorf("expected positive total timing, got %d", res.Timings.TotalUs)
		}
	})

	t.Run("RiskyTransactionFlaggedAndExplained", func(t *testing.T) {
		o := newTestOrchestrator(t)
		res, err := o.ScoreOne(context.Background(), riskyTransaction(), false)
		if err != nil {
			t.Fatalf("ScoreOne failed: %v", err)
		}

		if res.Decision.Tier != domain.TierMedium {
			t.Errorf("expected MEDIUM, got %s", res.Decision.Tier)
		}
		if !res.Decision.Flagged() {
			t.Error("risky transaction not flagged")
		}
		// Flagged results are explained even without an explicit request.
		if res.Attribution == nil {
			t.Fatal("expected automatic attribution for flagged transaction")
		}
		if res.Attribution.Top[0].Feature != "v14" {
			t.Errorf("expected v14 as top contributor, got %q", res.Attribution.Top[0].Feature)
		}
		if res.Timings.ExplainUs < 0 {
			t.Errorf("explain timing not recorded: %d", res.Timings.ExplainUs)
		}
	})

	t.Run("ExplicitExplanation", func(t *testing.T) {
		o := newTestOrchestrator(t)
		res, err := o.ScoreOne(context.Background(), legitTransaction(), true)
		if err != nil {
			t.Fatalf("ScoreOne failed: %v", err)
		}
		if res.Attribution == nil {
			t.Fatal("expected requested attribution")
		}
		if res.Attribution.FeatureCount == 0 {
			t.Error("empty attribution")
		}
	})

	t.Run("ValidationFailure", func(t *testing.T) {
		o := newTestOrchestrator(t)
		tx := legitTransaction()
		tx.Amount = -5

		_, err := o.ScoreOne(context.Background(), tx, false)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("StubbedEnsembleArithmetic", func(t *testing.T) {
		o := newTestOrchestrator(t)
		withStubScorers(o,
			&stubScorer{name: domain.ScorerAnomaly, value: 0.40},
			&stubScorer{name: domain.ScorerClassifier, value: 0.87},
		)

		res, err := o.ScoreOne(context.Background(), legitTransaction(), false)
		if err != nil {
			t.Fatalf("ScoreOne failed: %v", err)
		}
		want := 0.3*0.40 + 0.7*0.87 // 0.729
		if math.Abs(res.Score.Value-want) > 1e-12 {
			t.Errorf("expected score %v, got %v", want, res.Score.Value)
		}
		if res.Decision.Tier != domain.TierHigh {
			t.Errorf("expected HIGH at %v, got %s", want, res.Decision.Tier)
		}
		if res.Decision.Action != domain.ActionBlock {
			t.Errorf("expected block action, got %s", res.Decision.Action)
		}
	})

	t.Run("ScorerFailureFailsRequest", func(t *testing.T) {
		o := newTestOrchestrator(t)
		withStubScorers(o,
			&stubScorer{name: domain.ScorerAnomaly, err: &domain.ScoringUnavailableError{Scorer: domain.ScorerAnomaly, Reason: "artifact corrupt"}},
			&stubScorer{name: domain.ScorerClassifier, value: 0.2},
		)

		_, err := o.ScoreOne(context.Background(), legitTransaction(), false)
		var uerr *domain.ScoringUnavailableError
		if !errors.As(err, &uerr) {
			t.Fatalf("expected ScoringUnavailableError, got %v", err)
		}
	})

	t.Run("TimeoutDuringScoring", func(t *testing.T) {
		release := make(chan struct{})
		t.Cleanup(func() { close(release) })

		o := newTestOrchestrator(t)
		withStubScorers(o,
			&stubScorer{name: domain.ScorerAnomaly, release: release},
			&stubScorer{name: domain.ScorerClassifier, release: release},
		)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := o.ScoreOne(ctx, legitTransaction(), false)
		var terr *domain.TimeoutError
		if !errors.As(err, &terr) {
			t.Fatalf("expected TimeoutError, got %v", err)
		}
		if terr.Stage != "scoring" {
			t.Errorf("expected scoring stage, got %q", terr.Stage)
		}
	})

	t.Run("OverrideEscalation", func(t *testing.T) {
		overrides, err := policy.NewEngine()
		if err != nil {
			t.Fatalf("policy.NewEngine failed: %v", err)
		}
		if err := overrides.LoadRule(&domain.OverrideRule{
			ID:         "large-amount",
			Name:       "large amount review",
			Expression: "amount > 50.0",
			Tier:       domain.TierHigh,
			Action:     domain.ActionBlock,
			Reason:     "amount above policy limit",
			Enabled:    true,
		}); err != nil {
			t.Fatalf("LoadRule failed: %v", err)
		}

		o := newTestOrchestrator(t, WithOverrides(overrides))
		res, err := o.ScoreOne(context.Background(), legitTransaction(), false)
		if err != nil {
			t.Fatalf("ScoreOne failed: %v", err)
		}
		if res.Decision.Tier != domain.TierHigh {
			t.Errorf("expected overridden HIGH, got %s", res.Decision.Tier)
		}
		if !res.Decision.Overridden {
			t.Error("expected Overridden flag")
		}
		if len(res.Decision.Reasons) == 0 || res.Decision.Reasons[0] != "amount above policy limit" {
			t.Errorf("expected override reason, got %v", res.Decision.Reasons)
		}
	})

	t.Run("ObserverSeesResult", func(t *testing.T) {
		obs := &recordingObserver{}
		o := newTestOrchestrator(t, WithObserver(obs))

		if _, err := o.ScoreOne(context.Background(), legitTransaction(), false); err != nil {
			t.Fatalf("ScoreOne failed: %v", err)
		}
		if n := obs.count(); n != 1 {
			t.Errorf("expected 1 observed result, got %d", n)
		}
	})
}

type recordingObserver struct {
	mu      sync.Mutex
	results []*domain.ScoringResult
}

func (r *recordingObserver) ObserveResult(res *domain.ScoringResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recordingObserver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func TestScoreBatch(t *testing.T) {
	t.Run("OrderPreserved", func(t *testing.T) {
		o := newTestOrchestrator(t)

		txs := []*domain.Transaction{legitTransaction(), riskyTransaction(), legitTransaction()}
		txs[0].ID = "tx-0"
		txs[1].ID = "tx-1"
		txs[2].ID = "tx-2"

		items := o.ScoreBatch(context.Background(), txs, false)
		if len(items) != 3 {
			t.Fatalf("expected 3 items, got %d", len(items))
		}
		for i, item := range items {
			if item.Index != i {
				t.Errorf("item %d carries index %d", i, item.Index)
			}
			if item.Err != nil {
				t.Fatalf("item %d failed: %v", i, item.Err)
			}
		}
		if items[0].Result.TxID != "tx-0" || items[1].Result.TxID != "tx-1" || items[2].Result.TxID != "tx-2" {
			t.Error("results not in input order")
		}
		if items[1].Result.Decision.Tier != domain.TierMedium {
			t.Errorf("expected risky item MEDIUM, got %s", items[1].Result.Decision.Tier)
		}
	})

	t.Run("FailureIsolatedToItem", func(t *testing.T) {
		o := newTestOrchestrator(t)

		bad := legitTransaction()
		bad.Signals = bad.Signals[:3]
		txs := []*domain.Transaction{legitTransaction(), bad, riskyTransaction()}

		items := o.ScoreBatch(context.Background(), txs, false)
		if items[0].Err != nil || items[2].Err != nil {
			t.Errorf("sibling items failed: %v / %v", items[0].Err, items[2].Err)
		}
		var verr *domain.ValidationError
		if !errors.As(items[1].Err, &verr) {
			t.Errorf("expected ValidationError on bad item, got %v", items[1].Err)
		}
		if items[1].Result != nil {
			t.Error("failed item carries a result")
		}
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		o := newTestOrchestrator(t)
		if items := o.ScoreBatch(context.Background(), nil, false); len(items) != 0 {
			t.Errorf("expected empty result, got %d items", len(items))
		}
	})
}

func TestModelVersion(t *testing.T) {
	o := newTestOrchestrator(t)
	if v := o.ModelVersion(); v != modeltest.Version {
		t.Errorf("expected %q, got %q", modeltest.Version, v)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.AnomalyWeight = 0.5 // weights now sum to 1.2
	if _, err := New(modeltest.NewTestStore(), cfg); err == nil {
		t.Error("expected error for invalid ensemble weights")
	}

	cfg = testConfig()
	cfg.Threshold = 0
	if _, err := New(modeltest.NewTestStore(), cfg); err == nil {
		t.Error("expected error for invalid threshold")
	}
}
