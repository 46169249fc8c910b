package domain

import (
	"fmt"
	"time"
)

// SignalName returns the canonical name of the i-th signal field ("v1"..).
func SignalName(i int) string {
	return fmt.Sprintf("v%d", i+1)
}

// FeatureVector is an ordered, versioned mapping from feature name to value.
// The feature set and ordering are fixed per layout version so that models
// trained against one layout are never silently fed another.
type FeatureVector struct {
	LayoutVersion string    `json:"layoutVersion"`
	Names         []string  `json:"names"`
	Values        []float64 `json:"values"`
}

// Len returns the number of features in the vector.
func (v *FeatureVector) Len() int { return len(v.Values) }

// Get returns the value of a named feature.
func (v *FeatureVector) Get(name string) (float64, bool) {
	for i, n := range v.Names {
		if n == name {
			return v.Values[i], true
		}
	}
	return 0, false
}

// Scorer identities used in ComponentScore.
const (
	ScorerAnomaly    = "isolation_forest"
	ScorerClassifier = "classifier"
)

// ComponentScore is one scorer's contribution to the ensemble.
type ComponentScore struct {
	// Scorer identifies which model produced this score.
	Scorer string `json:"scorer"`

	// Value is the normalized score in [0,1].
	Value float64 `json:"value"`

	// Raw is the model-native output before normalization
	// (mean path length for the forest, margin for the classifier).
	Raw float64 `json:"raw"`

	// Weight is the fixed ensemble weight assigned to this scorer.
	// Weights across all component scores sum to 1.
	Weight float64 `json:"weight"`
}

// FraudScore is the combined fraud probability for one feature vector.
type FraudScore struct {
	// Value is the blended probability in [0,1].
	Value float64 `json:"value"`

	// Components are the individual scorer outputs the blend was built from.
	Components []ComponentScore `json:"components"`
}

// RiskTier is the discrete risk classification of a fraud score.
type RiskTier string

const (
	TierLow    RiskTier = "LOW"
	TierMedium RiskTier = "MEDIUM"
	TierHigh   RiskTier = "HIGH"
)

// Severity orders tiers for monotonicity and escalation checks.
func (t RiskTier) Severity() int {
	switch t {
	case TierMedium:
		return 1
	case TierHigh:
		return 2
	default:
		return 0
	}
}

// Action is the recommended handling for a scored transaction.
type Action string

const (
	ActionAllow  Action = "ALLOW"
	ActionReview Action = "REVIEW"
	ActionBlock  Action = "BLOCK_AND_INVESTIGATE"
)

// ActionForTier returns the default action recommendation for a tier.
func ActionForTier(t RiskTier) Action {
	switch t {
	case TierHigh:
		return ActionBlock
	case TierMedium:
		return ActionReview
	default:
		return ActionAllow
	}
}

// RiskDecision is the tier and action derived from a fraud score.
type RiskDecision struct {
	Tier      RiskTier `json:"tier"`
	Action    Action   `json:"action"`
	Threshold float64  `json:"threshold"`

	// Overridden is set when a decision policy rule escalated the
	// model decision, along with the reasons.
	Overridden bool     `json:"overridden,omitempty"`
	Reasons    []string `json:"reasons,omitempty"`
}

// Flagged reports whether the decision warrants investigation.
func (d RiskDecision) Flagged() bool {
	return d.Tier == TierMedium || d.Tier == TierHigh
}

// FeatureContribution is one feature's signed contribution to the
// classifier output, alongside the raw (unscaled) feature value.
type FeatureContribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
}

// Attribution explains a classifier output as additive per-feature
// contributions offset from a base value: base + sum(contributions)
// reconstructs the classifier's raw margin.
type Attribution struct {
	// BaseValue is the margin-space expectation the contributions offset.
	BaseValue float64 `json:"baseValue"`

	// Margin is the classifier's raw margin for this vector.
	Margin float64 `json:"margin"`

	// Probability is sigmoid(Margin).
	Probability float64 `json:"probability"`

	// Top holds the top-k contributions ranked by absolute magnitude.
	// The additivity invariant is always checked over the full set.
	Top []FeatureContribution `json:"top"`

	// FeatureCount is the total number of features attributed.
	FeatureCount int `json:"featureCount"`
}

// StageTimings is the per-stage latency breakdown of one scoring request.
type StageTimings struct {
	FeaturesUs int64 `json:"featuresUs"`
	ScoringUs  int64 `json:"scoringUs"`
	DecisionUs int64 `json:"decisionUs"`
	ExplainUs  int64 `json:"explainUs,omitempty"`
	TotalUs    int64 `json:"totalUs"`
}

// ScoringResult bundles everything produced for one transaction.
type ScoringResult struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenantId"`
	TxID         string       `json:"txId"`
	Score        FraudScore   `json:"score"`
	Decision     RiskDecision `json:"decision"`
	Attribution  *Attribution `json:"attribution,omitempty"`
	Timings      StageTimings `json:"timings"`
	ModelVersion string       `json:"modelVersion"`
	Timestamp    time.Time    `json:"timestamp"`
}

// BatchItem is one entry of a batch scoring response. Exactly one of
// Result and Err is set; failures never abort sibling items.
type BatchItem struct {
	Index  int
	Result *ScoringResult
	Err    error
}
