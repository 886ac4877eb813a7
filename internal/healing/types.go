// Package healing implements the detect -> diagnose -> remediate -> verify
// -> escalate loop: health probes feed an anomaly classifier, anomalies
// dedup into incidents, incidents select and run runbooks under a
// confidence/mode policy, and an escalation router decides how loudly to
// notify.
package healing

import (
	"context"
	"time"

	"github.com/arcwatch/sentinel/internal/store"
)

// AnomalyType is drawn from the closed set SPEC_FULL 3 names.
type AnomalyType string

const (
	AnomalySignalStale         AnomalyType = "signal_stale"
	AnomalyPhantomPosition     AnomalyType = "phantom_position"
	AnomalyFleetUnreachable    AnomalyType = "fleet_unreachable"
	AnomalyPipelineStuck       AnomalyType = "pipeline_stuck"
	AnomalyProcessDead         AnomalyType = "process_dead"
	AnomalyProcessZombie       AnomalyType = "process_zombie"
	AnomalyGatewayUnresponsive AnomalyType = "gateway_unresponsive"
	AnomalyDBCorruption        AnomalyType = "db_corruption"
	AnomalyDiskPressure        AnomalyType = "disk_pressure"
	AnomalyDiskCritical        AnomalyType = "disk_critical"
	AnomalyMemoryPressure      AnomalyType = "memory_pressure"
	AnomalyMemoryCritical      AnomalyType = "memory_critical"
	AnomalyLogBloat            AnomalyType = "log_bloat"
)

// Severity levels for an anomaly or incident.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Incident states. Non-terminal: detected, diagnosing, remediating,
// verifying, escalated. Terminal: resolved, self_resolved, dismissed.
const (
	StateDetected    = "detected"
	StateDiagnosing  = "diagnosing"
	StateRemediating = "remediating"
	StateVerifying   = "verifying"
	StateEscalated   = "escalated"
	StateResolved    = "resolved"
	StateSelfResolved = "self_resolved"
	StateDismissed   = "dismissed"
)

// nonTerminalStates lists every state FindNonTerminalIncidentTx should match.
var nonTerminalStates = []string{StateDetected, StateDiagnosing, StateRemediating, StateVerifying, StateEscalated}

func isTerminal(state string) bool {
	switch state {
	case StateResolved, StateSelfResolved, StateDismissed:
		return true
	default:
		return false
	}
}

// SourceReading is the output of a single HealthProbe poll.
type SourceReading struct {
	SourceID    string
	CapturedAt  time.Time
	FreshnessMs int64
	Data        map[string]any
	Available   bool
}

// HealthAnomaly is one classified anomaly derived from a reading.
type HealthAnomaly struct {
	ID               string
	AnomalyType      AnomalyType
	TargetID         string
	Severity         Severity
	DetectedAt       time.Time
	SourceID         string
	Details          map[string]any
	RemediationHint  string
}

// HealthProbe polls a single external source for a SourceReading.
type HealthProbe interface {
	SourceID() string
	PollInterval() time.Duration
	Poll(ctx context.Context) (SourceReading, error)
}

// Incident and Runbook are domain aliases for the persisted rows; the
// storage shape already matches the domain shape.
type Incident = store.Incident
type Runbook = store.Runbook
type AuditEntry = store.AuditEntry

// StepResult is the outcome of one RunbookStep execution.
type StepResult struct {
	StepID     string
	Status     string // "success" | "failed"
	Output     string
	Artifacts  []string
	DurationMs int64
}

// RunbookStep is a single unit of remediation work.
type RunbookStep interface {
	ID() string
	Description() string
	Timeout() time.Duration
	DryRun(ctx context.Context) string
	Execute(ctx context.Context) StepResult
}

// RunbookDefinition is the in-code counterpart to a persisted Runbook row:
// it knows how to build steps for a given anomaly.
type RunbookDefinition struct {
	ID          string
	Label       string
	AppliesTo   []AnomalyType
	Destructive bool
	Build       func(a HealthAnomaly) []RunbookStep
}

// EscalationTier is the notification-loudness router output; it does not
// affect incident state.
type EscalationTier int

const (
	TierSilent EscalationTier = iota
	TierSummary
	TierProposedAwaitApproval
	TierOperatorRequired
)
