package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
	"github.com/Saimudragada/fraud-detection-system/internal/model"
)

// Collector aggregates Prometheus metrics for the scoring pipeline and
// feeds the drift tracker. Safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry
	drift    *DriftTracker

	scoredTotal   *prometheus.CounterVec
	scoreHist     prometheus.Histogram
	stageDuration *prometheus.HistogramVec
}

// NewCollector builds a collector, optionally with a score reference for
// drift tracking.
func NewCollector(ref *model.ScoreHistogram) *Collector {
	registry := prometheus.NewRegistry()
	drift := NewDriftTracker(ref)

	c := &Collector{
		registry: registry,
		drift:    drift,
		scoredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frauddetect_scored_total",
			Help: "Scored transactions by decision tier.",
		}, []string{"tier"}),
		scoreHist: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "frauddetect_fraud_score",
			Help:    "Distribution of combined fraud scores.",
			Buckets: prometheus.LinearBuckets(0.05, 0.05, 19),
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frauddetect_stage_duration_seconds",
			Help:    "Per-stage scoring latency.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 2, 14),
		}, []string{"stage"}),
	}

	registry.MustRegister(c.scoredTotal, c.scoreHist, c.stageDuration)
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "frauddetect_score_drift_psi",
		Help: "Population stability index of live scores against the training reference.",
	}, c.PSI))

	return c
}

// ObserveResult records one completed scoring result.
func (c *Collector) ObserveResult(res *domain.ScoringResult) {
	c.scoredTotal.WithLabelValues(string(res.Decision.Tier)).Inc()
	c.scoreHist.Observe(res.Score.Value)
	c.drift.Observe(res.Score.Value)

	c.stageDuration.WithLabelValues("features").Observe(float64(res.Timings.FeaturesUs) / 1e6)
	c.stageDuration.WithLabelValues("scoring").Observe(float64(res.Timings.ScoringUs) / 1e6)
	c.stageDuration.WithLabelValues("decision").Observe(float64(res.Timings.DecisionUs) / 1e6)
	if res.Timings.ExplainUs > 0 {
		c.stageDuration.WithLabelValues("explanation").Observe(float64(res.Timings.ExplainUs) / 1e6)
	}
	c.stageDuration.WithLabelValues("total").Observe(float64(res.Timings.TotalUs) / 1e6)
}

// PSI reports the current drift index.
func (c *Collector) PSI() float64 {
	return c.drift.PSI()
}

// DriftSamples reports how many scores the drift tracker has seen.
func (c *Collector) DriftSamples() int64 {
	return c.drift.Samples()
}

// Handler serves the metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
