package explain

import (
	"errors"
	"math"
	"testing"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
	"github.com/Saimudragada/fraud-detection-system/internal/model/modeltest"
)

func testVector(mutate func([]float64, map[string]int)) *domain.FeatureVector {
	b := modeltest.NewTestBundle()
	values := make([]float64, b.Layout.Len())
	idx := make(map[string]int, len(b.Layout.Names))
	for i, n := range b.Layout.Names {
		idx[n] = i
	}
	if mutate != nil {
		mutate(values, idx)
	}
	return &domain.FeatureVector{
		LayoutVersion: b.Layout.Version,
		Names:         b.Layout.Names,
		Values:        values,
	}
}

func TestExplain(t *testing.T) {
	b := modeltest.NewTestBundle()
	eng := NewEngine(5)

	t.Run("ReconstructsMargin", func(t *testing.T) {
		vec := testVector(func(v []float64, idx map[string]int) {
			v[idx["v14"]] = -5
			v[idx["amount"]] = 5000
			v[idx["amount_log"]] = math.Log1p(5000)
		})

		attr, err := eng.Explain(vec, b)
		if err != nil {
			t.Fatalf("Explain failed: %v", err)
		}

		if attr.FeatureCount != b.Layout.Len() {
			t.Errorf("expected feature count %d, got %d", b.Layout.Len(), attr.FeatureCount)
		}
		wantProb := 1 / (1 + math.Exp(-attr.Margin))
		if math.Abs(attr.Probability-wantProb) > 1e-12 {
			t.Errorf("probability %v does not match margin %v", attr.Probability, attr.Margin)
		}
	})

	t.Run("TopKOrderedByMagnitude", func(t *testing.T) {
		vec := testVector(func(v []float64, idx map[string]int) {
			v[idx["v14"]] = -5
			v[idx["amount_log"]] = 8
		})

		attr, err := eng.Explain(vec, b)
		if err != nil {
			t.Fatalf("Explain failed: %v", err)
		}
		if len(attr.Top) != 5 {
			t.Fatalf("expected 5 contributions, got %d", len(attr.Top))
		}
		for i := 1; i < len(attr.Top); i++ {
			if math.Abs(attr.Top[i].Contribution) > math.Abs(attr.Top[i-1].Contribution) {
				t.Errorf("contributions not ordered by magnitude at %d", i)
			}
		}
		// The dominant signal must surface first.
		if attr.Top[0].Feature != "v14" {
			t.Errorf("expected v14 as top contributor, got %q", attr.Top[0].Feature)
		}
		if attr.Top[0].Value != -5 {
			t.Errorf("expected raw value -5 on top contributor, got %v", attr.Top[0].Value)
		}
	})

	t.Run("TopKClampedToFeatureCount", func(t *testing.T) {
		wide := NewEngine(10000)
		attr, err := wide.Explain(testVector(nil), b)
		if err != nil {
			t.Fatalf("Explain failed: %v", err)
		}
		if len(attr.Top) != b.Layout.Len() {
			t.Errorf("expected %d contributions, got %d", b.Layout.Len(), len(attr.Top))
		}
	})

	t.Run("DefaultTopK", func(t *testing.T) {
		def := NewEngine(0)
		attr, err := def.Explain(testVector(nil), b)
		if err != nil {
			t.Fatalf("Explain failed: %v", err)
		}
		if len(attr.Top) != 5 {
			t.Errorf("expected default top-5, got %d", len(attr.Top))
		}
	})

	t.Run("LayoutMismatchRejected", func(t *testing.T) {
		vec := testVector(nil)
		vec.Values = vec.Values[:7]
		vec.Names = vec.Names[:7]

		_, err := eng.Explain(vec, b)
		var uerr *domain.ScoringUnavailableError
		if !errors.As(err, &uerr) {
			t.Fatalf("expected ScoringUnavailableError, got %v", err)
		}
	})
}
