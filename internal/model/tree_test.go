package model

import (
	"math"
	"testing"
)

// twoLeafTree splits on feature 0 at threshold 10: left leaf 1.5 (cover 30),
// right leaf -0.5 (cover 70).
func twoLeafTree() Tree {
	return Tree{Nodes: []Node{
		{Feature: 0, Threshold: 10, Left: 1, Right: 2, Cover: 100},
		{Feature: -1, Value: 1.5, Cover: 30},
		{Feature: -1, Value: -0.5, Cover: 70},
	}}
}

func TestTreeLeaf(t *testing.T) {
	tree := twoLeafTree()

	t.Run("RoutesLeftBelowThreshold", func(t *testing.T) {
		if v := tree.Leaf([]float64{5}); v != 1.5 {
			t.Errorf("expected 1.5, got %v", v)
		}
	})

	t.Run("RoutesRightAtThreshold", func(t *testing.T) {
		// Split convention is strictly-less-than.
		if v := tree.Leaf([]float64{10}); v != -0.5 {
			t.Errorf("expected -0.5, got %v", v)
		}
	})

	t.Run("ExpectedValueIsCoverWeighted", func(t *testing.T) {
		want := (30*1.5 + 70*-0.5) / 100.0
		if ev := tree.ExpectedValue(); math.Abs(ev-want) > 1e-12 {
			t.Errorf("expected %v, got %v", want, ev)
		}
	})

	t.Run("MaxDepth", func(t *testing.T) {
		if d := tree.MaxDepth(); d != 1 {
			t.Errorf("expected depth 1, got %d", d)
		}
		leaf := Tree{Nodes: []Node{{Feature: -1, Value: 2, Cover: 10}}}
		if d := leaf.MaxDepth(); d != 0 {
			t.Errorf("expected depth 0, got %d", d)
		}
	})
}

func TestTreeValidate(t *testing.T) {
	t.Run("EmptyTree", func(t *testing.T) {
		tree := Tree{}
		if err := tree.validate(5); err == nil {
			t.Error("expected error for empty tree")
		}
	})

	t.Run("FeatureOutOfRange", func(t *testing.T) {
		tree := twoLeafTree()
		if err := tree.validate(0); err == nil {
			t.Error("expected error for out-of-range feature")
		}
	})

	t.Run("ChildOutOfRange", func(t *testing.T) {
		tree := Tree{Nodes: []Node{
			{Feature: 0, Threshold: 1, Left: 1, Right: 9, Cover: 10},
			{Feature: -1, Value: 1, Cover: 10},
		}}
		if err := tree.validate(5); err == nil {
			t.Error("expected error for out-of-range child")
		}
	})

	t.Run("NonPositiveCover", func(t *testing.T) {
		tree := Tree{Nodes: []Node{
			{Feature: 0, Threshold: 1, Left: 1, Right: 2, Cover: 0},
			{Feature: -1, Value: 1, Cover: 5},
			{Feature: -1, Value: 2, Cover: 5},
		}}
		if err := tree.validate(5); err == nil {
			t.Error("expected error for non-positive cover")
		}
	})
}

func TestTreeEnsemble(t *testing.T) {
	ens := &TreeEnsemble{
		BaseScore: -1.0,
		Trees:     []Tree{twoLeafTree()},
	}

	t.Run("Margin", func(t *testing.T) {
		if m := ens.Margin([]float64{5}); math.Abs(m-0.5) > 1e-12 {
			t.Errorf("expected margin 0.5, got %v", m)
		}
		if m := ens.Margin([]float64{50}); math.Abs(m-(-1.5)) > 1e-12 {
			t.Errorf("expected margin -1.5, got %v", m)
		}
	})

	t.Run("Probability", func(t *testing.T) {
		want := 1 / (1 + math.Exp(-0.5))
		if p := ens.Probability([]float64{5}); math.Abs(p-want) > 1e-12 {
			t.Errorf("expected %v, got %v", want, p)
		}
	})

	t.Run("ExpectedValue", func(t *testing.T) {
		want := -1.0 + (30*1.5+70*-0.5)/100.0
		if ev := ens.ExpectedValue(); math.Abs(ev-want) > 1e-12 {
			t.Errorf("expected %v, got %v", want, ev)
		}
	})
}

func TestSigmoid(t *testing.T) {
	if s := Sigmoid(0); math.Abs(s-0.5) > 1e-12 {
		t.Errorf("expected 0.5 at zero margin, got %v", s)
	}
	if s := Sigmoid(100); s <= 0.999 {
		t.Errorf("expected saturation near 1, got %v", s)
	}
	if s := Sigmoid(-100); s >= 0.001 {
		t.Errorf("expected saturation near 0, got %v", s)
	}
}

func TestAveragePathLength(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{256, 2*(math.Log(255)+eulerMascheroni) - 2*255.0/256.0},
	}
	for _, tt := range tests {
		if got := averagePathLength(tt.n); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("c(%d): expected %v, got %v", tt.n, tt.want, got)
		}
	}
}

func TestIsolationForest(t *testing.T) {
	// Single tree: anomalies isolate left at depth 1 into a tiny leaf,
	// normal points go right into a large one.
	forest := &IsolationForest{
		MaxSamples: 256,
		Trees: []IsoTree{{Nodes: []IsoNode{
			{Feature: 0, Threshold: -3, Left: 1, Right: 2},
			{Feature: -1, Size: 2},
			{Feature: -1, Size: 254},
		}}},
	}

	t.Run("PathLength", func(t *testing.T) {
		want := 1 + averagePathLength(2)
		if p := forest.Trees[0].PathLength([]float64{-5}); math.Abs(p-want) > 1e-12 {
			t.Errorf("expected %v, got %v", want, p)
		}
	})

	t.Run("AnomalousPointScoresHigher", func(t *testing.T) {
		anomalous := forest.AnomalyScore([]float64{-5})
		normal := forest.AnomalyScore([]float64{0})
		if anomalous <= normal {
			t.Errorf("expected anomalous %v > normal %v", anomalous, normal)
		}
	})

	t.Run("ScoreInUnitInterval", func(t *testing.T) {
		for _, x := range []float64{-100, -5, 0, 5, 100} {
			s := forest.AnomalyScore([]float64{x})
			if s < 0 || s > 1 {
				t.Errorf("score %v out of [0,1] for x=%v", s, x)
			}
		}
	})
}

func TestQuantileTableRank(t *testing.T) {
	q := &QuantileTable{
		Probs:  []float64{0, 0.5, 1},
		Values: []float64{0, 10, 100},
	}

	tests := []struct {
		x    float64
		want float64
	}{
		{-5, 0},    // below range clamps
		{0, 0},     // first breakpoint
		{5, 0.25},  // midway in first segment
		{10, 0.5},  // exact breakpoint
		{55, 0.75}, // midway in second segment
		{100, 1},
		{1e6, 1}, // above range clamps
	}
	for _, tt := range tests {
		if got := q.Rank(tt.x); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Rank(%v): expected %v, got %v", tt.x, tt.want, got)
		}
	}
}

func TestStandardScaler(t *testing.T) {
	s := &StandardScaler{
		Mean:  []float64{10, 0, 5},
		Scale: []float64{2, 0, 1},
	}

	t.Run("Transform", func(t *testing.T) {
		out, err := s.Transform([]float64{14, 3, 5})
		if err != nil {
			t.Fatalf("Transform failed: %v", err)
		}
		// Zero scale falls back to 1 so constant features pass through
		// centered.
		want := []float64{2, 3, 0}
		for i := range want {
			if math.Abs(out[i]-want[i]) > 1e-12 {
				t.Errorf("slot %d: expected %v, got %v", i, want[i], out[i])
			}
		}
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		if _, err := s.Transform([]float64{1, 2}); err == nil {
			t.Error("expected error for dimension mismatch")
		}
	})

	t.Run("InputNotMutated", func(t *testing.T) {
		in := []float64{14, 3, 5}
		if _, err := s.Transform(in); err != nil {
			t.Fatalf("Transform failed: %v", err)
		}
		if in[0] != 14 || in[1] != 3 || in[2] != 5 {
			t.Errorf("input mutated: %v", in)
		}
	})
}
