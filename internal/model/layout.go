// Package model loads and serves the trained artifact bundle the scoring
// pipeline runs against: feature layout, scaler, reference quantiles, the
// isolation forest, and the tree-ensemble classifier. Artifacts are loaded
// once, immutable afterwards, and swapped atomically on reload.
package model

import (
	"fmt"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
)

// FeatureLayout is the ordered list of feature names a model bundle was
// trained against. Every feature vector is validated against it before a
// scoring call.
type FeatureLayout struct {
	Version string   `json:"version"`
	Names   []string `json:"names"`

	index map[string]int
}

// NewFeatureLayout builds a layout with its name index.
func NewFeatureLayout(version string, names []string) (*FeatureLayout, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("layout %s: no feature names", version)
	}
	idx := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := idx[n]; dup {
			return nil, fmt.Errorf("layout %s: duplicate feature %q", version, n)
		}
		idx[n] = i
	}
	return &FeatureLayout{Version: version, Names: names, index: idx}, nil
}

// Len returns the number of features in the layout.
func (l *FeatureLayout) Len() int { return len(l.Names) }

// Index returns the slot of a named feature.
func (l *FeatureLayout) Index(name string) (int, bool) {
	i, ok := l.index[name]
	return i, ok
}

// Validate checks that a feature vector matches the layout exactly:
// same version, same names, same order. A mismatch is a deployment or
// versioning bug, never a transient condition.
func (l *FeatureLayout) Validate(v *domain.FeatureVector) error {
	if v.LayoutVersion != l.Version {
		return fmt.Errorf("layout version mismatch: vector %q, model %q", v.LayoutVersion, l.Version)
	}
	if len(v.Values) != len(l.Names) || len(v.Names) != len(l.Names) {
		return fmt.Errorf("dimensionality mismatch: vector has %d features, model expects %d", len(v.Values), len(l.Names))
	}
	for i, n := range l.Names {
		if v.Names[i] != n {
			return fmt.Errorf("feature order mismatch at slot %d: vector %q, model %q", i, v.Names[i], n)
		}
	}
	return nil
}

// FeatureParams are the static reference constants feature engineering
// uses. Captured at training time; never recomputed per request.
type FeatureParams struct {
	// OvernightStartHour and OvernightEndHour delimit the unusual-hour
	// window [start, end) in hours of day.
	OvernightStartHour float64 `json:"overnightStartHour"`
	OvernightEndHour   float64 `json:"overnightEndHour"`

	// TailLow and TailHigh are the percentile-rank tails that mark an
	// amount as unusual.
	TailLow  float64 `json:"tailLow"`
	TailHigh float64 `json:"tailHigh"`

	// ExtremeSignalZ is the |value| cutoff for the extreme-signal count.
	ExtremeSignalZ float64 `json:"extremeSignalZ"`
}

// DefaultFeatureParams mirror the constants the models were trained with.
func DefaultFeatureParams() FeatureParams {
	return FeatureParams{
		OvernightStartHour: 0,
		OvernightEndHour:   6,
		TailLow:            0.01,
		TailHigh:           0.99,
		ExtremeSignalZ:     3,
	}
}
