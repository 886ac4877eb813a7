package healing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arcwatch/sentinel/internal/bus"
	"github.com/arcwatch/sentinel/internal/clock"
	"github.com/arcwatch/sentinel/internal/idgen"
	"github.com/arcwatch/sentinel/internal/store"
)

// upsertResult tells the caller whether a is newly detected, so the engine
// only runs handleIncident for genuinely new incidents, never re-detections.
type upsertResult struct {
	incident Incident
	isNew    bool
	skipped  bool // dismiss window still active
}

// upsertIncident implements SPEC_FULL 4.3 step 2: refresh a matching
// non-terminal incident, honor an active dismiss window, or create a new
// incident in "detected". Runs inside tx so two concurrent readings for the
// same (type, target) can never create two incidents.
func upsertIncident(ctx context.Context, tx *sql.Tx, clk clock.Clock, a HealthAnomaly) (upsertResult, error) {
	now := clk.Now()

	existing, found, err := store.FindNonTerminalIncidentTx(ctx, tx, string(a.AnomalyType), a.TargetID, nonTerminalStates)
	if err != nil {
		return upsertResult{}, fmt.Errorf("find non-terminal incident: %w", err)
	}
	if found {
		existing.AuditTrail = append(existing.AuditTrail, AuditEntry{At: now, Event: "redetected", Detail: a.RemediationHint})
		existing.Severity = string(a.Severity)
		if err := store.UpdateIncidentTx(ctx, tx, existing); err != nil {
			return upsertResult{}, fmt.Errorf("refresh incident: %w", err)
		}
		return upsertResult{incident: existing, isNew: false}, nil
	}

	latest, found, err := store.FindLatestIncidentTx(ctx, tx, string(a.AnomalyType), a.TargetID)
	if err != nil {
		return upsertResult{}, fmt.Errorf("find latest incident: %w", err)
	}
	if found && latest.State == StateDismissed && latest.DismissUntil != nil && now.Before(*latest.DismissUntil) {
		return upsertResult{skipped: true}, nil
	}

	// A resolved incident is the one terminal state allowed to retract to
	// detected: reuse its id and audit trail rather than minting a new
	// incident, per the invariant that a (type, target) pair's history stays
	// on one row across a resolve/re-fire cycle.
	if found && latest.State == StateResolved {
		latest.State = StateDetected
		latest.StateChangedAt = now
		latest.Severity = string(a.Severity)
		latest.ResolvedAt = nil
		latest.EscalatedAt = nil
		latest.EscalationTier = 0
		latest.Details = a.Details
		latest.AuditTrail = append(latest.AuditTrail, AuditEntry{At: now, Event: "redetected_after_resolution", Detail: a.RemediationHint})
		if err := store.UpdateIncidentTx(ctx, tx, latest); err != nil {
			return upsertResult{}, fmt.Errorf("revert resolved incident: %w", err)
		}
		return upsertResult{incident: latest, isNew: true}, nil
	}

	inc := Incident{
		ID:             idgen.ULID(clk),
		AnomalyType:    string(a.AnomalyType),
		TargetID:       a.TargetID,
		Severity:       string(a.Severity),
		State:          StateDetected,
		DetectedAt:     now,
		StateChangedAt: now,
		AuditTrail:     []AuditEntry{{At: now, Event: "detected", Detail: a.RemediationHint}},
		Details:        a.Details,
	}
	if err := store.InsertIncidentTx(ctx, tx, inc); err != nil {
		return upsertResult{}, fmt.Errorf("insert incident: %w", err)
	}
	return upsertResult{incident: inc, isNew: true}, nil
}

// transitionTx moves inc to newState, appends an audit entry, and publishes
// bus.TopicIncidentStateChanged. Callers hold the transaction; the publish
// happens after commit via the returned closure pattern used by trustgate's
// Gate, so a rolled-back transition never fires a stale event.
func transitionTx(ctx context.Context, tx *sql.Tx, clk clock.Clock, inc *Incident, newState, reason string) error {
	now := clk.Now()
	from := inc.State
	inc.State = newState
	inc.StateChangedAt = now
	inc.AuditTrail = append(inc.AuditTrail, AuditEntry{At: now, Event: newState, Detail: reason})
	if isTerminal(newState) {
		inc.ResolvedAt = &now
	}
	if err := store.UpdateIncidentTx(ctx, tx, *inc); err != nil {
		return fmt.Errorf("transition incident %s %s->%s: %w", inc.ID, from, newState, err)
	}
	return nil
}

func publishIncidentTransition(b *bus.Bus, inc Incident, from, reason string) {
	b.Publish(bus.TopicIncidentStateChanged, bus.IncidentStateChanged{
		IncidentID: inc.ID, From: from, To: inc.State, Reason: reason,
	})
}
