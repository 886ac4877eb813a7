// Package learning implements the real-time learning loop: detection
// sources enqueue payloads off the hot path, a single consumer classifies
// each one by root cause, fans it out to propagators, and checks it for
// recurrence against prior failures.
package learning

import (
	"context"
	"time"

	"github.com/arcwatch/sentinel/internal/store"
)

// DetectionPayload is what every detection source produces. Context carries
// source-specific structured data (tool name, session id, pipeline stage).
type DetectionPayload struct {
	Type        string
	Tier        int
	Source      string
	Context     map[string]any
	FailureDesc string
	RawInput    string
	DetectedAt  time.Time
}

// Classification is the classifier's output for one payload.
type Classification struct {
	RootCause string
	Targets   []string
}

// Propagation target names, referenced by the classifier's rule table and
// by the propagator registry's keys.
const (
	TargetSOPPatch        = "sop_patch"
	TargetHookPattern     = "hook_pattern"
	TargetRegressionTest  = "regression_test"
	TargetAtom            = "atom"
	TargetSynapseRelay    = "synapse_relay"
)

// FailureEvent, PropagationRecord, RegressionTest are domain aliases for the
// persisted rows; storage shape already matches domain shape.
type FailureEvent = store.FailureEvent
type PropagationRecord = store.PropagationRecord
type RegressionTest = store.RegressionTest

// Propagator fans a classified failure out to one durable or notification
// side effect. Each propagator is independently success/failure recorded.
type Propagator interface {
	Target() string
	Propagate(ctx context.Context, f FailureEvent, class Classification) (detail string, err error)
}

// AtomStore is the optional knowledge-atom sink; the atom propagator no-ops
// gracefully when none is configured, per SPEC_FULL's "if the knowledge-atom
// store is available" conditional.
type AtomStore interface {
	InsertAtom(ctx context.Context, failureID, description string) error
}

// MetricsSnapshot reports aggregate real-time-learning health. Any field
// with no underlying data is nil; the formatter renders that as "N/A"
// rather than a misleading zero.
type MetricsSnapshot struct {
	AvgTimeToPropagateMs     *float64
	PropagationCompleteness  *float64 // percent
	RecurrenceRate           *float64 // percent
	TotalsByType             map[string]int
}
