package scoring

import (
	"fmt"

	"github.com/Saimudragada/fraud-detection-system/internal/domain"
)

// ThresholdPolicy maps a fraud probability to a risk tier and recommended
// action. Pure and stateless: the threshold is business-tunable
// configuration because the same model serves businesses with different
// false-positive tolerance.
type ThresholdPolicy struct {
	threshold  float64
	reviewBand float64
}

// NewThresholdPolicy validates the configured threshold and optional
// review band [threshold-reviewBand, threshold).
func NewThresholdPolicy(threshold, reviewBand float64) (*ThresholdPolicy, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be in (0,1], got %v", threshold)
	}
	if reviewBand < 0 || reviewBand >= threshold {
		return nil, fmt.Errorf("review band must be in [0,threshold), got %v", reviewBand)
	}
	return &ThresholdPolicy{threshold: threshold, reviewBand: reviewBand}, nil
}

// Decide assigns the risk tier for a fraud score. Monotone: a higher score
// never yields a strictly lower tier.
func (p *ThresholdPolicy) Decide(score domain.FraudScore) domain.RiskDecision {
	var tier domain.RiskTier
	switch {
	case score.Value >= p.threshold:
		tier = domain.TierHigh
	case p.reviewBand > 0 && score.Value >= p.threshold-p.reviewBand:
		tier = domain.TierMedium
	default:
		tier = domain.TierLow
	}
	return domain.RiskDecision{
		Tier:      tier,
		Action:    domain.ActionForTier(tier),
		Threshold: p.threshold,
	}
}
