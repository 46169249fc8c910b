package domain

import (
	"fmt"
	"time"
)

// ValidationError indicates a malformed or out-of-range transaction field.
// Caller's fault; never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// ScoringUnavailableError indicates a wrapped model artifact failed to load
// or the feature vector does not match the layout the model was trained
// against. This is a deployment fault: retrying cannot succeed.
type ScoringUnavailableError struct {
	Scorer string
	Reason string
}

func (e *ScoringUnavailableError) Error() string {
	return fmt.Sprintf("scorer %s unavailable: %s", e.Scorer, e.Reason)
}

// AttributionError indicates the additivity invariant check failed after
// computing contributions. Surfaced rather than returning an inconsistent
// explanation.
type AttributionError struct {
	Reason string
	Gap    float64
}

func (e *AttributionError) Error() string {
	if e.Gap != 0 {
		return fmt.Sprintf("attribution failed: %s (gap %.3e)", e.Reason, e.Gap)
	}
	return fmt.Sprintf("attribution failed: %s", e.Reason)
}

// TimeoutError indicates a scoring stage exceeded its budget. A partial
// score is never returned in its place.
type TimeoutError struct {
	Stage  string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("stage %s exceeded budget %s", e.Stage, e.Budget)
}
