package healing

import (
	"context"
	"fmt"

	"github.com/arcwatch/sentinel/internal/notify"
)

// decideTier implements SPEC_FULL 4.3's escalation-tier table. remediationFailed
// and runbookMissing let the caller fold the two early-exit clauses (no
// runbook at all, or a runbook whose execution already failed) into the same
// decision function instead of duplicating tier-3 checks at each call site.
// destructive marks a runbook whose steps cannot be cleanly undone (killing
// or restarting a process, as opposed to rotating log files); a failed
// destructive remediation always needs a human, not just a retry.
func decideTier(severity Severity, runbookMode string, confidence, autoExecuteThreshold float64, remediationFailed, runbookMissing, destructive bool) EscalationTier {
	if runbookMissing {
		return TierOperatorRequired
	}
	if severity == SeverityCritical {
		return TierOperatorRequired
	}
	if remediationFailed {
		if destructive {
			return TierOperatorRequired
		}
		return TierProposedAwaitApproval
	}
	if runbookMode == "auto_execute" && confidence >= autoExecuteThreshold {
		return TierSilent
	}
	if runbookMode == "dry_run" && confidence >= autoExecuteThreshold {
		return TierSummary
	}
	return TierProposedAwaitApproval
}

// Escalator routes an incident's tier to a notify.Transport. It never
// changes incident state; callers persist the state transition separately.
type Escalator struct {
	transport notify.Transport
}

// NewEscalator builds an Escalator over transport.
func NewEscalator(transport notify.Transport) *Escalator {
	return &Escalator{transport: transport}
}

// Route sends the tier-appropriate message, if any (tier 0 sends nothing).
func (e *Escalator) Route(ctx context.Context, tier EscalationTier, inc Incident, anomaly HealthAnomaly, proposedSteps []string) error {
	switch tier {
	case TierSilent:
		return nil
	case TierSummary:
		return e.transport.Send(ctx, notify.Message{
			Severity: notify.SeverityInfo,
			Source:   "self_healing",
			Title:    fmt.Sprintf("resolved %s on %s", anomaly.AnomalyType, anomaly.TargetID),
			Detail:   "runbook ran in dry_run mode; no system change was made",
			Fields:   map[string]any{"incident_id": inc.ID, "anomaly_type": string(anomaly.AnomalyType)},
		})
	case TierProposedAwaitApproval:
		return e.transport.Send(ctx, notify.Message{
			Severity: notify.SeverityWarning,
			Source:   "self_healing",
			Title:    fmt.Sprintf("proposed remediation for %s on %s", anomaly.AnomalyType, anomaly.TargetID),
			Detail:   "awaiting operator approval before executing",
			Fields:   map[string]any{"incident_id": inc.ID, "proposed_steps": proposedSteps},
		})
	case TierOperatorRequired:
		return e.transport.Send(ctx, notify.Message{
			Severity: notify.SeverityCritical,
			Source:   "self_healing",
			Title:    fmt.Sprintf("operator required: %s on %s", anomaly.AnomalyType, anomaly.TargetID),
			Detail:   "no safe automated remediation available or remediation failed",
			Fields:   map[string]any{"incident_id": inc.ID, "anomaly_type": string(anomaly.AnomalyType)},
		})
	default:
		return nil
	}
}
