// Package domain defines the core interfaces and types for the fraud
// scoring service.
package domain

import (
	"math"
	"time"
)

// SignalCount is the number of anonymized numeric signal fields every
// transaction must carry (the V1..V28 columns of the source dataset).
const SignalCount = 28

// Transaction is the immutable input record for one scoring request.
type Transaction struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// ElapsedSecs is the offset in seconds from the dataset epoch reference.
	ElapsedSecs float64 `json:"elapsedSecs"`

	// Signals are the anonymized numeric signal fields, in fixed order.
	Signals []float64 `json:"signals"`

	// Amount is the monetary amount. Must be >= 0.
	Amount float64 `json:"amount"`

	// ReceivedAt is when the transaction entered the system.
	ReceivedAt time.Time `json:"receivedAt"`

	// Optional metadata
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the structural invariants of a transaction.
// Missing or non-finite fields are a caller error, never silently defaulted.
func (t *Transaction) Validate() error {
	if t.Amount < 0 {
		return &ValidationError{Field: "amount", Reason: "must be >= 0"}
	}
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return &ValidationError{Field: "amount", Reason: "must be finite"}
	}
	if t.ElapsedSecs < 0 {
		return &ValidationError{Field: "elapsedSecs", Reason: "must be >= 0"}
	}
	if math.IsNaN(t.ElapsedSecs) || math.IsInf(t.ElapsedSecs, 0) {
		return &ValidationError{Field: "elapsedSecs", Reason: "must be finite"}
	}
	if len(t.Signals) != SignalCount {
		return &ValidationError{Field: "signals", Reason: "all signal fields are required"}
	}
	for i, v := range t.Signals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: SignalName(i), Reason: "must be finite"}
		}
	}
	return nil
}

// ScoreRequest is the API request payload for transaction scoring.
type ScoreRequest struct {
	TxID        string                 `json:"txId,omitempty"`
	ElapsedSecs float64                `json:"elapsedSecs"`
	Signals     []float64              `json:"signals"`
	Amount      float64                `json:"amount"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ToTransaction converts a request to a Transaction domain object.
func (r *ScoreRequest) ToTransaction(tenantID string) *Transaction {
	signals := make([]float64, len(r.Signals))
	copy(signals, r.Signals)
	return &Transaction{
		ID:          r.TxID,
		TenantID:    tenantID,
		ElapsedSecs: r.ElapsedSecs,
		Signals:     signals,
		Amount:      r.Amount,
		ReceivedAt:  time.Now().UTC(),
		Metadata:    r.Metadata,
	}
}
