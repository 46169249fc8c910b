package model

import (
	"fmt"
	"sort"
)

// QuantileTable holds reference amount-percentile breakpoints computed at
// training time. Ranking against it is a static interpolation; true online
// ranking against an unbounded stream is not well-defined.
type QuantileTable struct {
	// Probs are ascending cumulative probabilities in [0,1].
	Probs []float64 `json:"probs"`

	// Values are the amounts at those probabilities, ascending.
	Values []float64 `json:"values"`
}

func (q *QuantileTable) validate() error {
	if len(q.Probs) != len(q.Values) {
		return fmt.Errorf("quantile table: %d probs vs %d values", len(q.Probs), len(q.Values))
	}
	if len(q.Probs) < 2 {
		return fmt.Errorf("quantile table: need at least 2 breakpoints, got %d", len(q.Probs))
	}
	if !sort.Float64sAreSorted(q.Probs) || !sort.Float64sAreSorted(q.Values) {
		return fmt.Errorf("quantile table: breakpoints must be ascending")
	}
	return nil
}

// Rank returns the interpolated percentile rank of x in [0,1] relative to
// the reference distribution. Values outside the stored range clamp to the
// first and last breakpoint probabilities.
func (q *QuantileTable) Rank(x float64) float64 {
	n := len(q.Values)
	if x <= q.Values[0] {
		return q.Probs[0]
	}
	if x >= q.Values[n-1] {
		return q.Probs[n-1]
	}
	i := sort.SearchFloat64s(q.Values, x)
	// q.Values[i-1] < x <= q.Values[i]
	lo, hi := q.Values[i-1], q.Values[i]
	if hi == lo {
		return q.Probs[i]
	}
	frac := (x - lo) / (hi - lo)
	return q.Probs[i-1] + frac*(q.Probs[i]-q.Probs[i-1])
}
