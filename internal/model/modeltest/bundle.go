// Package modeltest builds small in-code artifact bundles for tests.
package modeltest

import (
	"github.com/Saimudragada/fraud-detection-system/internal/features"
	"github.com/Saimudragada/fraud-detection-system/internal/model"
)

// Version is the bundle version the test fixtures report.
const Version = "test-2024-01"

// NewTestBundle returns a valid bundle over the canonical feature layout
// with an identity scaler and tiny hand-built models. The trees are small
// enough to verify scores and attributions by hand.
func NewTestBundle() *model.Bundle {
	names := features.CanonicalNames()
	layout, err := model.NewFeatureLayout(Version, names)
	if err != nil {
		panic(err)
	}

	n := len(names)
	mean := make([]float64, n)
	scale := make([]float64, n)
	for i := range scale {
		scale[i] = 1
	}

	// Feature slots the test trees split on.
	var (
		v14Idx       = mustIndex(layout, "v14")
		amountIdx    = mustIndex(layout, "amount")
		amountLogIdx = mustIndex(layout, "amount_log")
	)

	b := &model.Bundle{
		Version:       Version,
		Layout:        layout,
		FeatureParams: model.DefaultFeatureParams(),
		Scaler:        &model.StandardScaler{Mean: mean, Scale: scale},
		AmountQuantiles: &model.QuantileTable{
			Probs:  []float64{0, 0.25, 0.5, 0.75, 0.99, 1},
			Values: []float64{0, 5.6, 22, 77.16, 1017.97, 25691.16},
		},
		IsolationForest: &model.IsolationForest{
			MaxSamples: 256,
			Trees: []model.IsoTree{
				{Nodes: []model.IsoNode{
					{Feature: amountIdx, Threshold: 500, Left: 1, Right: 2},
					{Feature: v14Idx, Threshold: -2, Left: 3, Right: 4},
					{Feature: -1, Size: 4},
					{Feature: -1, Size: 8},
					{Feature: -1, Size: 196},
				}},
				{Nodes: []model.IsoNode{
					{Feature: v14Idx, Threshold: -3, Left: 1, Right: 2},
					{Feature: -1, Size: 2},
					{Feature: -1, Size: 220},
				}},
			},
		},
		Classifier: &model.TreeEnsemble{
			BaseScore: -2.0,
			Trees: []model.Tree{
				{Nodes: []model.Node{
					{Feature: v14Idx, Threshold: -2, Left: 1, Right: 2, Cover: 1000},
					{Feature: -1, Value: 1.6, Cover: 50},
					{Feature: -1, Value: -0.4, Cover: 950},
				}},
				{Nodes: []model.Node{
					{Feature: amountLogIdx, Threshold: 6.5, Left: 1, Right: 2, Cover: 1000},
					{Feature: -1, Value: -0.2, Cover: 900},
					{Feature: -1, Value: 0.9, Cover: 100},
				}},
			},
		},
		ScoreReference: &model.ScoreHistogram{
			Edges: []float64{0, 0.2, 0.4, 0.6, 0.8, 1},
			Probs: []float64{0.62, 0.2, 0.1, 0.05, 0.03},
		},
	}

	if err := b.Validate(); err != nil {
		panic(err)
	}
	return b
}

// NewTestStore wraps a fresh test bundle in a store.
func NewTestStore() *model.Store {
	s, err := model.NewStoreWithBundle(NewTestBundle())
	if err != nil {
		panic(err)
	}
	return s
}

func mustIndex(l *model.FeatureLayout, name string) int {
	i, ok := l.Index(name)
	if !ok {
		panic("layout is missing feature " + name)
	}
	return i
}
