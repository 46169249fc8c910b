// Package features derives the engineered feature vector a transaction is
// scored on. Every transform is deterministic and defined purely from the
// single input transaction plus static reference constants captured at
// training time; there is no hidden cross-request state.
package features

import (
	"math"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
	"github.com/Saimudragada/fraud-detection-system/internal/model"
)

// secondsPerHour and secondsPerDay convert the elapsed-seconds offset.
const (
	secondsPerHour = 3600.0
	secondsPerDay  = 86400.0
	hoursPerDay    = 24.0
)

// Engineer turns raw transactions into feature vectors matching a model
// bundle's layout.
type Engineer struct {
	layout    *model.FeatureLayout
	quantiles *model.QuantileTable
	params    model.FeatureParams
}

// NewEngineer builds an engineer bound to one bundle's layout and
// reference constants.
func NewEngineer(b *model.Bundle) *Engineer {
	return &Engineer{
		layout:    b.Layout,
		quantiles: b.AmountQuantiles,
		params:    b.FeatureParams,
	}
}

// Derive validates tx and computes its feature vector in the layout's
// order. Pure and total over structurally valid transactions: identical
// input yields a bit-identical vector.
func (e *Engineer) Derive(tx *domain.Transaction) (*domain.FeatureVector, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	derived := e.compute(tx)

	values := make([]float64, e.layout.Len())
	for i, name := range e.layout.Names {
		v, ok := derived[name]
		if !ok {
			// The bundle's layout names a feature this engineer cannot
			// produce: a versioning bug, not a caller error.
			return nil, &domain.ScoringUnavailableError{
				Scorer: "feature_engineer",
				Reason: "layout " + e.layout.Version + " requires unknown feature " + name,
			}
		}
		values[i] = v
	}

	return &domain.FeatureVector{
		LayoutVersion: e.layout.Version,
		Names:         e.layout.Names,
		Values:        values,
	}, nil
}

// compute returns the full named feature map for a valid transaction.
func (e *Engineer) compute(tx *domain.Transaction) map[string]float64 {
	out := make(map[string]float64, e.layout.Len())

	out["time"] = tx.ElapsedSecs
	for i, v := range tx.Signals {
		out[domain.SignalName(i)] = v
	}
	out["amount"] = tx.Amount

	// Temporal features. The cyclical encoding keeps hour 23 and hour 0
	// numerically adjacent, which a linear hour value would not.
	hour := math.Mod(tx.ElapsedSecs/secondsPerHour, hoursPerDay)
	out["hour"] = hour
	out["day"] = math.Floor(tx.ElapsedSecs / secondsPerDay)
	angle := 2 * math.Pi * hour / hoursPerDay
	out["hour_sin"] = math.Sin(angle)
	out["hour_cos"] = math.Cos(angle)

	// Amount transforms.
	out["amount_log"] = math.Log1p(tx.Amount)
	rank := e.quantiles.Rank(tx.Amount)
	out["amount_percentile"] = rank
	decimal := math.Mod(tx.Amount, 1)
	out["amount_decimal"] = decimal
	out["is_round_amount"] = boolFeature(decimal == 0)

	// Cross-signal aggregates.
	mean, std, min, max := signalStats(tx.Signals)
	out["v_mean"] = mean
	out["v_std"] = std
	out["v_min"] = min
	out["v_max"] = max
	out["v_range"] = max - min

	extreme := 0
	for _, v := range tx.Signals {
		if math.Abs(v) > e.params.ExtremeSignalZ {
			extreme++
		}
	}
	out["v_extreme_count"] = float64(extreme)

	// Pre-declared interaction terms between high-importance signals and
	// the log amount.
	out["v1_v2_interaction"] = tx.Signals[0] * tx.Signals[1]
	out["v4_amount_interaction"] = tx.Signals[3] * out["amount_log"]

	// Risk indicators, 0/1 so they carry linearly into the models.
	out["is_unusual_hour"] = boolFeature(hour >= e.params.OvernightStartHour && hour < e.params.OvernightEndHour)
	out["is_unusual_amount"] = boolFeature(rank <= e.params.TailLow || rank >= e.params.TailHigh)

	return out
}

// signalStats returns mean, sample standard deviation, min and max.
func signalStats(signals []float64) (mean, std, min, max float64) {
	n := float64(len(signals))
	min, max = signals[0], signals[0]
	sum := 0.0
	for _, v := range signals {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean = sum / n

	ss := 0.0
	for _, v := range signals {
		d := v - mean
		ss += d * d
	}
	std = math.Sqrt(ss / (n - 1))
	return mean, std, min, max
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// CanonicalNames is the feature layout the current engineer produces, in
// order: the raw fields followed by the engineered ones. Model bundles are
// trained against this layout.
func CanonicalNames() []string {
	names := make([]string, 0, domain.SignalCount+20)
	names = append(names, "time")
	for i := 0; i < domain.SignalCount; i++ {
		names = append(names, domain.SignalName(i))
	}
	names = append(names,
		"amount",
		"hour", "day", "hour_sin", "hour_cos",
		"amount_log", "amount_percentile", "amount_decimal", "is_round_amount",
		"v_mean", "v_std", "v_min", "v_max", "v_range", "v_extreme_count",
		"v1_v2_interaction", "v4_amount_interaction",
		"is_unusual_hour", "is_unusual_amount",
	)
	return names
}
