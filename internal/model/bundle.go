package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// BundleFile is the artifact file name looked up inside the artifact
// directory.
const BundleFile = "bundle.json"

// Bundle is the complete set of trained artifacts one model version ships:
// everything the online pipeline needs, and nothing it trains. Immutable
// after load; shared read-only across in-flight requests.
type Bundle struct {
	// Version identifies the artifact release.
	Version string `json:"version"`

	// Layout is the feature layout every score call validates against.
	Layout *FeatureLayout `json:"layout"`

	// FeatureParams are the static feature-engineering constants.
	FeatureParams FeatureParams `json:"featureParams"`

	// Scaler is the fitted standard scaler applied before model calls.
	Scaler *StandardScaler `json:"scaler"`

	// AmountQuantiles is the reference table for amount percentile ranks.
	AmountQuantiles *QuantileTable `json:"amountQuantiles"`

	// IsolationForest is the unsupervised anomaly model.
	IsolationForest *IsolationForest `json:"isolationForest"`

	// Classifier is the supervised tree-ensemble model, with enough
	// structure (topology, thresholds, leaf values, covers) for exact
	// attribution.
	Classifier *TreeEnsemble `json:"classifier"`

	// ScoreReference is the training-time fraud score distribution used
	// for drift tracking. Optional.
	ScoreReference *ScoreHistogram `json:"scoreReference,omitempty"`
}

// ScoreHistogram is a binned score distribution: len(Edges) == len(Probs)+1.
type ScoreHistogram struct {
	Edges []float64 `json:"edges"`
	Probs []float64 `json:"probs"`
}

// Validate checks internal consistency of the bundle: every artifact must
// agree on the feature layout before the bundle is allowed to serve.
func (b *Bundle) Validate() error {
	if b.Version == "" {
		return fmt.Errorf("bundle has no version")
	}
	if b.Layout == nil || b.Scaler == nil || b.AmountQuantiles == nil ||
		b.IsolationForest == nil || b.Classifier == nil {
		return fmt.Errorf("bundle %s is missing artifacts", b.Version)
	}
	n := b.Layout.Len()
	if err := b.Scaler.validate(n); err != nil {
		return fmt.Errorf("bundle %s: %w", b.Version, err)
	}
	if err := b.AmountQuantiles.validate(); err != nil {
		return fmt.Errorf("bundle %s: %w", b.Version, err)
	}
	if err := b.IsolationForest.validate(n); err != nil {
		return fmt.Errorf("bundle %s: %w", b.Version, err)
	}
	if err := b.Classifier.validate(n); err != nil {
		return fmt.Errorf("bundle %s: %w", b.Version, err)
	}
	if b.ScoreReference != nil && len(b.ScoreReference.Edges) != len(b.ScoreReference.Probs)+1 {
		return fmt.Errorf("bundle %s: score reference has %d edges for %d bins",
			b.Version, len(b.ScoreReference.Edges), len(b.ScoreReference.Probs))
	}
	return nil
}

// Load reads and validates a bundle from the artifact directory.
func Load(dir string) (*Bundle, error) {
	path := filepath.Join(dir, BundleFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact bundle: %w", err)
	}

	var raw struct {
		Version string `json:"version"`
		Layout  struct {
			Version string   `json:"version"`
			Names   []string `json:"names"`
		} `json:"layout"`
		FeatureParams   *FeatureParams   `json:"featureParams"`
		Scaler          *StandardScaler  `json:"scaler"`
		AmountQuantiles *QuantileTable   `json:"amountQuantiles"`
		IsolationForest *IsolationForest `json:"isolationForest"`
		Classifier      *TreeEnsemble    `json:"classifier"`
		ScoreReference  *ScoreHistogram  `json:"scoreReference"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse artifact bundle %s: %w", path, err)
	}

	layout, err := NewFeatureLayout(raw.Layout.Version, raw.Layout.Names)
	if err != nil {
		return nil, fmt.Errorf("artifact bundle %s: %w", path, err)
	}

	params := DefaultFeatureParams()
	if raw.FeatureParams != nil {
		params = *raw.FeatureParams
	}

	b := &Bundle{
		Version:         raw.Version,
		Layout:          layout,
		FeatureParams:   params,
		Scaler:          raw.Scaler,
		AmountQuantiles: raw.AmountQuantiles,
		IsolationForest: raw.IsolationForest,
		Classifier:      raw.Classifier,
		ScoreReference:  raw.ScoreReference,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
