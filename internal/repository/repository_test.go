package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
)

func testSignals() []float64 {
	s := make([]float64, domain.SignalCount)
	for i := range s {
		s[i] = float64(i) * 0.1
	}
	return s
}

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "frauddetect-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetTransaction", func(t *testing.T) {
		tx := &domain.Transaction{
			ID:          "tx-001",
			ElapsedSecs: 8935,
			Signals:     testSignals(),
			Amount:      149.62,
			ReceivedAt:  time.Now().UTC(),
			Metadata:    map[string]any{"source": "api"},
		}

		if err := repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		retrieved, err := repo.GetTransaction(ctx, tenantID, tx.ID)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}

		if retrieved.ID != tx.ID {
			t.Errorf("expected ID %s, got %s", tx.ID, retrieved.ID)
		}
		if retrieved.Amount != tx.Amount {
			t.Errorf("expected Amount %.2f, got %.2f", tx.Amount, retrieved.Amount)
		}
		if retrieved.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, retrieved.TenantID)
		}
		if len(retrieved.Signals) != domain.SignalCount {
			t.Fatalf("expected %d signals, got %d", domain.SignalCount, len(retrieved.Signals))
		}
		if retrieved.Signals[5] != tx.Signals[5] {
			t.Errorf("expected signal[5] %.2f, got %.2f", tx.Signals[5], retrieved.Signals[5])
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		otherTenant := "tenant-002"

		// Try to get tx from different tenant
		_, err := repo.GetTransaction(ctx, otherTenant, "tx-001")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		tx := &domain.Transaction{ID: "tx-test"}

		err := repo.SaveTransaction(ctx, "", tx)
		if err == nil {
			t.Error("expected error for empty tenantID")
		}

		_, err = repo.GetTransaction(ctx, "", "tx-001")
		if err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("SaveAndGetScoringResult", func(t *testing.T) {
		res := &domain.ScoringResult{
			ID:   "scoring-001",
			TxID: "tx-001",
			Score: domain.FraudScore{
				Value: 0.729,
				Components: []domain.ComponentScore{
					{Scorer: domain.ScorerClassifier, Value: 0.87, Raw: 1.9, Weight: 0.7},
					{Scorer: domain.ScorerAnomaly, Value: 0.40, Raw: 9.2, Weight: 0.3},
				},
			},
			Decision: domain.RiskDecision{
				Tier:      domain.TierHigh,
				Action:    domain.ActionBlock,
				Threshold: 0.7,
			},
			Attribution: &domain.Attribution{
				BaseValue:   -2.5,
				Margin:      1.9,
				Probability: 0.87,
				Top: []domain.FeatureContribution{
					{Feature: "v14", Value: -3.2, Contribution: 1.8},
				},
				FeatureCount: 48,
			},
			Timings:      domain.StageTimings{FeaturesUs: 12, ScoringUs: 340, DecisionUs: 3, TotalUs: 420},
			ModelVersion: "2024-01-15",
			Timestamp:    time.Now().UTC(),
		}

		if err := repo.SaveScoringResult(ctx, tenantID, res); err != nil {
			t.Fatalf("SaveScoringResult failed: %v", err)
		}

		retrieved, err := repo.GetScoringResult(ctx, tenantID, res.ID)
		if err != nil {
			t.Fatalf("GetScoringResult failed: %v", err)
		}

		if retrieved.Score.Value != res.Score.Value {
			t.Errorf("expected score %.3f, got %.3f", res.Score.Value, retrieved.Score.Value)
		}
		if retrieved.Decision.Tier != domain.TierHigh {
			t.Errorf("expected tier HIGH, got %s", retrieved.Decision.Tier)
		}
		if len(retrieved.Score.Components) != 2 {
			t.Fatalf("expected 2 components, got %d", len(retrieved.Score.Components))
		}
		if retrieved.Attribution == nil {
			t.Fatal("expected attribution to round-trip")
		}
		if retrieved.Attribution.Top[0].Feature != "v14" {
			t.Errorf("expected top feature v14, got %s", retrieved.Attribution.Top[0].Feature)
		}
		if retrieved.ModelVersion != res.ModelVersion {
			t.Errorf("expected model version %s, got %s", res.ModelVersion, retrieved.ModelVersion)
		}
	})

	t.Run("ScoringResultWithoutAttribution", func(t *testing.T) {
		res := &domain.ScoringResult{
			ID:   "scoring-002",
			TxID: "tx-001",
			Score: domain.FraudScore{
				Value: 0.12,
				Components: []domain.ComponentScore{
					{Scorer: domain.ScorerClassifier, Value: 0.10, Weight: 0.7},
					{Scorer: domain.ScorerAnomaly, Value: 0.15, Weight: 0.3},
				},
			},
			Decision: domain.RiskDecision{
				Tier:      domain.TierLow,
				Action:    domain.ActionAllow,
				Threshold: 0.7,
			},
			ModelVersion: "2024-01-15",
			Timestamp:    time.Now().UTC(),
		}

		if err := repo.SaveScoringResult(ctx, tenantID, res); err != nil {
			t.Fatalf("SaveScoringResult failed: %v", err)
		}

		retrieved, err := repo.GetScoringResult(ctx, tenantID, res.ID)
		if err != nil {
			t.Fatalf("GetScoringResult failed: %v", err)
		}
		if retrieved.Attribution != nil {
			t.Error("expected nil attribution when none was saved")
		}
	})

	t.Run("ListScoringResultsByTx", func(t *testing.T) {
		results, err := repo.ListScoringResultsByTx(ctx, tenantID, "tx-001")
		if err != nil {
			t.Fatalf("ListScoringResultsByTx failed: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}

		// Scoped to tenant
		results, err = repo.ListScoringResultsByTx(ctx, "tenant-002", "tx-001")
		if err != nil {
			t.Fatalf("ListScoringResultsByTx failed: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("expected 0 results for other tenant, got %d", len(results))
		}
	})

	t.Run("OverrideRuleCRUD", func(t *testing.T) {
		rule := &domain.OverrideRule{
			ID:         "rule-001",
			Name:       "high-amount-overnight",
			Version:    "1",
			Expression: `amount > 1000.0 && hour < 6.0`,
			Tier:       domain.TierHigh,
			Action:     domain.ActionBlock,
			Reason:     "large overnight transfer",
			Enabled:    true,
		}

		if err := repo.SaveOverrideRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveOverrideRule failed: %v", err)
		}

		retrieved, err := repo.GetOverrideRule(ctx, tenantID, rule.ID)
		if err != nil {
			t.Fatalf("GetOverrideRule failed: %v", err)
		}
		if retrieved.Expression != rule.Expression {
			t.Errorf("expected expression %q, got %q", rule.Expression, retrieved.Expression)
		}
		if retrieved.Tier != domain.TierHigh {
			t.Errorf("expected tier HIGH, got %s", retrieved.Tier)
		}
		if retrieved.Version != "1" {
			t.Errorf("expected version %q, got %q", "1", retrieved.Version)
		}

		// Upsert same version updates in place
		rule.Reason = "large overnight transfer, updated"
		if err := repo.SaveOverrideRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveOverrideRule upsert failed: %v", err)
		}
		retrieved, err = repo.GetOverrideRule(ctx, tenantID, rule.ID)
		if err != nil {
			t.Fatalf("GetOverrideRule after upsert failed: %v", err)
		}
		if retrieved.Reason != rule.Reason {
			t.Errorf("expected updated reason, got %q", retrieved.Reason)
		}

		rules, err := repo.ListOverrideRules(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListOverrideRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("expected 1 rule, got %d", len(rules))
		}

		if err := repo.DeleteOverrideRule(ctx, tenantID, rule.ID); err != nil {
			t.Fatalf("DeleteOverrideRule failed: %v", err)
		}

		_, err = repo.GetOverrideRule(ctx, tenantID, rule.ID)
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound after delete, got: %v", err)
		}

		if err := repo.DeleteOverrideRule(ctx, tenantID, "rule-missing"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound for missing rule, got: %v", err)
		}
	})

	t.Run("GetMissingScoringResult", func(t *testing.T) {
		_, err := repo.GetScoringResult(ctx, tenantID, "nope")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestRebind(t *testing.T) {
	r := &SQLRepository{driver: "postgres"}
	got := r.rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	want := "SELECT * FROM t WHERE a = $1 AND b = $2"
	if got != want {
		t.Errorf("rebind mismatch:\n got: %s\nwant: %s", got, want)
	}

	r.driver = "sqlite"
	query := "SELECT * FROM t WHERE a = ?"
	if got := r.rebind(query); got != query {
		t.Errorf("sqlite rebind should be identity, got: %s", got)
	}
}
