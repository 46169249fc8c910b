// Package monitor exposes operational metrics for the scoring pipeline
// and tracks drift of the live score distribution against the reference
// captured at training time.
package monitor

import (
	"math"
	"sync"

	"github.com/Saimudragada/fraud-detection-system/internal/model"
)

// minDriftSamples is how many observations are needed before the PSI is
// considered meaningful.
const minDriftSamples = 100

// psiEpsilon smooths empty bins so the index stays finite.
const psiEpsilon = 1e-6

// DriftTracker bins live fraud scores and compares the distribution to the
// training-time reference with the population stability index.
type DriftTracker struct {
	mu     sync.Mutex
	edges  []float64
	ref    []float64
	counts []int64
	total  int64
}

// NewDriftTracker builds a tracker from the bundle's score reference.
// Returns nil when the bundle ships no reference; callers treat a nil
// tracker as disabled.
func NewDriftTracker(ref *model.ScoreHistogram) *DriftTracker {
	if ref == nil {
		return nil
	}
	return &DriftTracker{
		edges:  ref.Edges,
		ref:    ref.Probs,
		counts: make([]int64, len(ref.Probs)),
	}
}

// Observe records one live fraud score.
func (d *DriftTracker) Observe(score float64) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts[d.bin(score)]++
	d.total++
}

// PSI returns the population stability index of the live distribution
// against the reference. Below 0.1 is stable; above 0.25 the models are
// scoring a population they were not trained on. Returns 0 until enough
// samples accumulate.
func (d *DriftTracker) PSI() float64 {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.total < minDriftSamples {
		return 0
	}

	psi := 0.0
	for i, refP := range d.ref {
		liveP := float64(d.counts[i]) / float64(d.total)
		if liveP < psiEpsilon {
			liveP = psiEpsilon
		}
		r := refP
		if r < psiEpsilon {
			r = psiEpsilon
		}
		psi += (liveP - r) * math.Log(liveP/r)
	}
	return psi
}

// Samples returns the number of observed scores.
func (d *DriftTracker) Samples() int64 {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// bin locates the histogram bin for a score. Scores outside the edge
// range clamp to the boundary bins.
func (d *DriftTracker) bin(score float64) int {
	if score <= d.edges[0] {
		return 0
	}
	last := len(d.counts) - 1
	if score >= d.edges[len(d.edges)-1] {
		return last
	}
	for i := 1; i < len(d.edges); i++ {
		if score < d.edges[i] {
			return i - 1
		}
	}
	return last
}
