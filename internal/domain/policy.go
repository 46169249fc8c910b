package domain

// OverrideRule is a business-tunable decision policy rule evaluated after
// the model pipeline. A matching rule may escalate the recommended action
// but never lowers a decision below the model's own tier.
type OverrideRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression is a CEL expression over the scoring result. It must
	// evaluate to bool; true applies the escalation.
	Expression string `json:"expression"`

	// Tier and Action are the escalation target when the rule matches.
	Tier   RiskTier `json:"tier"`
	Action Action   `json:"action"`

	// Reason is attached to the decision when the rule fires.
	Reason string `json:"reason"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}
