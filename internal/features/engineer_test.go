package features_test

import (
	"errors"
	"math"
	"testing"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
	"github.com/Saimudragada/fraud-detection-system/internal/features"
	"github.com/Saimudragada/fraud-detection-system/internal/model/modeltest"
)

func testTransaction() *domain.Transaction {
	return &domain.Transaction{
		ID:          "tx-001",
		TenantID:    "tenant-001",
		ElapsedSecs: 8935,
		Signals:     make([]float64, domain.SignalCount),
		Amount:      149.62,
	}
}

// featureValue fetches a named feature from a derived vector.
func featureValue(t *testing.T, v *domain.FeatureVector, name string) float64 {
	t.Helper()
	for i, n := range v.Names {
		if n == name {
			return v.Values[i]
		}
	}
	t.Fatalf("feature %q not in vector", name)
	return 0
}

func TestDerive(t *testing.T) {
	eng := features.NewEngineer(modeltest.NewTestBundle())

	t.Run("MatchesLayout", func(t *testing.T) {
		vec, err := eng.Derive(testTransaction())
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}

		names := features.CanonicalNames()
		if len(vec.Values) != len(names) {
			t.Errorf("expected %d values, got %d", len(names), len(vec.Values))
		}
		for i, n := range names {
			if vec.Names[i] != n {
				t.Errorf("slot %d: expected %q, got %q", i, n, vec.Names[i])
			}
		}
		if vec.LayoutVersion == "" {
			t.Error("expected non-empty layout version")
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		tx := testTransaction()
		tx.Signals[3] = 1.378
		tx.Signals[13] = -0.311

		a, err := eng.Derive(tx)
		if err != nil {
			t.Fatalf("first Derive failed: %v", err)
		}
		b, err := eng.Derive(tx)
		if err != nil {
			t.Fatalf("second Derive failed: %v", err)
		}
		for i := range a.Values {
			if a.Values[i] != b.Values[i] {
				t.Errorf("feature %q not deterministic: %v vs %v", a.Names[i], a.Values[i], b.Values[i])
			}
		}
	})

	t.Run("TemporalFeatures", func(t *testing.T) {
		vec, err := eng.Derive(testTransaction())
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}

		hour := featureValue(t, vec, "hour")
		if math.Abs(hour-2.48194) > 1e-4 {
			t.Errorf("expected hour 2.48194, got %v", hour)
		}
		if day := featureValue(t, vec, "day"); day != 0 {
			t.Errorf("expected day 0, got %v", day)
		}

		angle := 2 * math.Pi * hour / 24
		if s := featureValue(t, vec, "hour_sin"); math.Abs(s-math.Sin(angle)) > 1e-12 {
			t.Errorf("hour_sin mismatch: %v", s)
		}
		if c := featureValue(t, vec, "hour_cos"); math.Abs(c-math.Cos(angle)) > 1e-12 {
			t.Errorf("hour_cos mismatch: %v", c)
		}
	})

	t.Run("CyclicalEncodingContinuousAtMidnight", func(t *testing.T) {
		// 23:59:56 and 00:00:00 are 4 seconds apart on the clock face;
		// the raw hour jumps by almost 24 but the sin/cos point must not.
		atMidnight := testTransaction()
		atMidnight.ElapsedSecs = 0
		justBefore := testTransaction()
		justBefore.ElapsedSecs = 86396

		va, err := eng.Derive(atMidnight)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		vb, err := eng.Derive(justBefore)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}

		rawGap := math.Abs(featureValue(t, va, "hour") - featureValue(t, vb, "hour"))
		if rawGap < 23 {
			t.Fatalf("expected raw hour gap near 24, got %v", rawGap)
		}

		ds := featureValue(t, va, "hour_sin") - featureValue(t, vb, "hour_sin")
		dc := featureValue(t, va, "hour_cos") - featureValue(t, vb, "hour_cos")
		if dist := math.Hypot(ds, dc); dist > 0.01 {
			t.Errorf("encoded points %v apart across midnight, want near 0", dist)
		}
	})

	t.Run("CyclicalEncodingSeparatesOppositeHours", func(t *testing.T) {
		// 06:00 and 18:00 sit on opposite sides of the cycle, so their
		// encoded points are at the maximum distance of 2.
		morning := testTransaction()
		morning.ElapsedSecs = 6 * 3600
		evening := testTransaction()
		evening.ElapsedSecs = 18 * 3600

		va, err := eng.Derive(morning)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		vb, err := eng.Derive(evening)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}

		ds := featureValue(t, va, "hour_sin") - featureValue(t, vb, "hour_sin")
		dc := featureValue(t, va, "hour_cos") - featureValue(t, vb, "hour_cos")
		if dist := math.Hypot(ds, dc); math.Abs(dist-2) > 1e-9 {
			t.Errorf("expected encoded distance 2 between 06:00 and 18:00, got %v", dist)
		}
	})

	t.Run("HourWrapsAcrossDays", func(t *testing.T) {
		tx := testTransaction()
		tx.ElapsedSecs = 90000 // 25h into the dataset

		vec, err := eng.Derive(tx)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		if hour := featureValue(t, vec, "hour"); math.Abs(hour-1.0) > 1e-12 {
			t.Errorf("expected hour 1.0, got %v", hour)
		}
		if day := featureValue(t, vec, "day"); day != 1 {
			t.Errorf("expected day 1, got %v", day)
		}
	})

	t.Run("AmountFeatures", func(t *testing.T) {
		vec, err := eng.Derive(testTransaction())
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}

		if l := featureValue(t, vec, "amount_log"); math.Abs(l-5.01476) > 1e-4 {
			t.Errorf("expected amount_log 5.01476, got %v", l)
		}
		if d := featureValue(t, vec, "amount_decimal"); math.Abs(d-0.62) > 1e-9 {
			t.Errorf("expected amount_decimal 0.62, got %v", d)
		}
		if r := featureValue(t, vec, "is_round_amount"); r != 0 {
			t.Errorf("expected is_round_amount 0, got %v", r)
		}
	})

	t.Run("RoundAmount", func(t *testing.T) {
		tx := testTransaction()
		tx.Amount = 100

		vec, err := eng.Derive(tx)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		if r := featureValue(t, vec, "is_round_amount"); r != 1 {
			t.Errorf("expected is_round_amount 1, got %v", r)
		}
		if d := featureValue(t, vec, "amount_decimal"); d != 0 {
			t.Errorf("expected amount_decimal 0, got %v", d)
		}
	})

	t.Run("AmountPercentile", func(t *testing.T) {
		// 22 is an exact breakpoint in the reference table.
		tx := testTransaction()
		tx.Amount = 22

		vec, err := eng.Derive(tx)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		if p := featureValue(t, vec, "amount_percentile"); math.Abs(p-0.5) > 1e-12 {
			t.Errorf("expected percentile 0.5, got %v", p)
		}

		// Amounts beyond the last breakpoint clamp to 1.
		tx.Amount = 1e9
		vec, err = eng.Derive(tx)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		if p := featureValue(t, vec, "amount_percentile"); p != 1 {
			t.Errorf("expected clamped percentile 1, got %v", p)
		}
	})

	t.Run("SignalAggregates", func(t *testing.T) {
		tx := testTransaction()
		tx.Signals[0] = 4
		tx.Signals[1] = -4

		vec, err := eng.Derive(tx)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}

		if m := featureValue(t, vec, "v_mean"); math.Abs(m) > 1e-12 {
			t.Errorf("expected v_mean 0, got %v", m)
		}
		wantStd := math.Sqrt(32.0 / 27.0)
		if s := featureValue(t, vec, "v_std"); math.Abs(s-wantStd) > 1e-12 {
			t.Errorf("expected v_std %v, got %v", wantStd, s)
		}
		if mn := featureValue(t, vec, "v_min"); mn != -4 {
			t.Errorf("expected v_min -4, got %v", mn)
		}
		if mx := featureValue(t, vec, "v_max"); mx != 4 {
			t.Errorf("expected v_max 4, got %v", mx)
		}
		if r := featureValue(t, vec, "v_range"); r != 8 {
			t.Errorf("expected v_range 8, got %v", r)
		}
		if c := featureValue(t, vec, "v_extreme_count"); c != 2 {
			t.Errorf("expected v_extreme_count 2, got %v", c)
		}
		if x := featureValue(t, vec, "v1_v2_interaction"); x != -16 {
			t.Errorf("expected v1_v2_interaction -16, got %v", x)
		}
	})

	t.Run("InteractionWithAmount", func(t *testing.T) {
		tx := testTransaction()
		tx.Signals[3] = 2

		vec, err := eng.Derive(tx)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		want := 2 * featureValue(t, vec, "amount_log")
		if x := featureValue(t, vec, "v4_amount_interaction"); math.Abs(x-want) > 1e-12 {
			t.Errorf("expected v4_amount_interaction %v, got %v", want, x)
		}
	})

	t.Run("RiskIndicators", func(t *testing.T) {
		// 02:28 is inside the overnight window.
		vec, err := eng.Derive(testTransaction())
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		if u := featureValue(t, vec, "is_unusual_hour"); u != 1 {
			t.Errorf("expected is_unusual_hour 1, got %v", u)
		}
		if u := featureValue(t, vec, "is_unusual_amount"); u != 0 {
			t.Errorf("expected is_unusual_amount 0, got %v", u)
		}

		// Midday, extreme amount.
		tx := testTransaction()
		tx.ElapsedSecs = 12 * 3600
		tx.Amount = 5000
		vec, err = eng.Derive(tx)
		if err != nil {
			t.Fatalf("Derive failed: %v", err)
		}
		if u := featureValue(t, vec, "is_unusual_hour"); u != 0 {
			t.Errorf("expected is_unusual_hour 0, got %v", u)
		}
		if u := featureValue(t, vec, "is_unusual_amount"); u != 1 {
			t.Errorf("expected is_unusual_amount 1, got %v", u)
		}
	})
}

func TestDeriveValidation(t *testing.T) {
	eng := features.NewEngineer(modeltest.NewTestBundle())

	tests := []struct {
		name   string
		mutate func(*domain.Transaction)
		field  string
	}{
		{"NegativeAmount", func(tx *domain.Transaction) { tx.Amount = -10 }, "amount"},
		{"NaNAmount", func(tx *domain.Transaction) { tx.Amount = math.NaN() }, "amount"},
		{"NegativeElapsed", func(tx *domain.Transaction) { tx.ElapsedSecs = -1 }, "elapsedSecs"},
		{"WrongSignalCount", func(tx *domain.Transaction) { tx.Signals = tx.Signals[:5] }, "signals"},
		{"NaNSignal", func(tx *domain.Transaction) { tx.Signals[7] = math.NaN() }, "v8"},
		{"InfSignal", func(tx *domain.Transaction) { tx.Signals[7] = math.Inf(1) }, "v8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := testTransaction()
			tt.mutate(tx)

			_, err := eng.Derive(tx)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}
