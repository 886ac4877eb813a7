package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Incident mirrors the incidents row.
type Incident struct {
	ID              string
	AnomalyType     string
	TargetID        string
	Severity        string
	State           string
	RunbookID       string
	DetectedAt      time.Time
	StateChangedAt  time.Time
	ResolvedAt      *time.Time
	EscalationTier  int
	EscalatedAt     *time.Time
	DismissUntil    *time.Time
	AuditTrail      []AuditEntry
	Details         map[string]any
}

// AuditEntry is one append-only entry in an incident's audit trail.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Event   string    `json:"event"`
	Detail  string    `json:"detail,omitempty"`
}

// Runbook mirrors the runbooks row.
type Runbook struct {
	ID                   string
	Label                string
	AppliesTo            []string
	Mode                 string
	Confidence           float64
	DryRunCount          int
	LastExecutedAt       *time.Time
	LastSucceededAt      *time.Time
	AutoApproveWhitelist bool
	CreatedAt            time.Time
	ApprovedAt           *time.Time
}

// FindNonTerminalIncidentTx looks up the single non-terminal incident for
// (anomalyType, targetID), if one exists.
func FindNonTerminalIncidentTx(ctx context.Context, tx *sql.Tx, anomalyType, targetID string, nonTerminalStates []string) (Incident, bool, error) {
	placeholders, args := inClause(nonTerminalStates)
	args = append([]any{anomalyType, targetID}, args...)
	row := tx.QueryRowContext(ctx, `
		SELECT id, anomaly_type, target_id, severity, state, runbook_id, detected_at, state_changed_at, resolved_at, escalation_tier, escalated_at, dismiss_until, audit_trail, details
		FROM incidents WHERE anomaly_type = ? AND target_id = ? AND state IN (`+placeholders+`)
		ORDER BY detected_at DESC LIMIT 1`, args...)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Incident{}, false, nil
	}
	if err != nil {
		return Incident{}, false, err
	}
	return inc, true, nil
}

// FindLatestIncidentTx returns the most recently detected incident (any
// state) for (anomalyType, targetID), used to check a dismissal window.
func FindLatestIncidentTx(ctx context.Context, tx *sql.Tx, anomalyType, targetID string) (Incident, bool, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, anomaly_type, target_id, severity, state, runbook_id, detected_at, state_changed_at, resolved_at, escalation_tier, escalated_at, dismiss_until, audit_trail, details
		FROM incidents WHERE anomaly_type = ? AND target_id = ?
		ORDER BY detected_at DESC LIMIT 1`, anomalyType, targetID)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Incident{}, false, nil
	}
	if err != nil {
		return Incident{}, false, err
	}
	return inc, true, nil
}

// InsertIncidentTx creates a new incident row within tx.
func InsertIncidentTx(ctx context.Context, tx *sql.Tx, inc Incident) error {
	audit, err := json.Marshal(inc.AuditTrail)
	if err != nil {
		return fmt.Errorf("marshal audit trail: %w", err)
	}
	details, err := json.Marshal(inc.Details)
	if err != nil {
		return fmt.Errorf("marshal incident details: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO incidents (id, anomaly_type, target_id, severity, state, runbook_id, detected_at, state_changed_at, resolved_at, escalation_tier, escalated_at, dismiss_until, audit_trail, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.AnomalyType, inc.TargetID, inc.Severity, inc.State, nullableString(inc.RunbookID),
		inc.DetectedAt.UTC().Format(time.RFC3339Nano), inc.StateChangedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(inc.ResolvedAt), inc.EscalationTier, nullableTime(inc.EscalatedAt), nullableTime(inc.DismissUntil),
		string(audit), string(details))
	if err != nil {
		return fmt.Errorf("insert incident %s: %w", inc.ID, err)
	}
	return nil
}

// UpdateIncidentTx persists a full incident row within tx (used for both
// refresh-on-redetect and state-machine transitions).
func UpdateIncidentTx(ctx context.Context, tx *sql.Tx, inc Incident) error {
	audit, err := json.Marshal(inc.AuditTrail)
	if err != nil {
		return fmt.Errorf("marshal audit trail: %w", err)
	}
	details, err := json.Marshal(inc.Details)
	if err != nil {
		return fmt.Errorf("marshal incident details: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE incidents SET severity=?, state=?, runbook_id=?, state_changed_at=?, resolved_at=?, escalation_tier=?, escalated_at=?, dismiss_until=?, audit_trail=?, details=?
		WHERE id = ?`,
		inc.Severity, inc.State, nullableString(inc.RunbookID), inc.StateChangedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(inc.ResolvedAt), inc.EscalationTier, nullableTime(inc.EscalatedAt), nullableTime(inc.DismissUntil),
		string(audit), string(details), inc.ID)
	if err != nil {
		return fmt.Errorf("update incident %s: %w", inc.ID, err)
	}
	return nil
}

func scanIncident(row *sql.Row) (Incident, error) {
	var inc Incident
	var runbookID, resolvedAt, escalatedAt, dismissUntil sql.NullString
	var detectedAt, stateChangedAt, audit, details string
	if err := row.Scan(&inc.ID, &inc.AnomalyType, &inc.TargetID, &inc.Severity, &inc.State, &runbookID,
		&detectedAt, &stateChangedAt, &resolvedAt, &inc.EscalationTier, &escalatedAt, &dismissUntil, &audit, &details); err != nil {
		return Incident{}, err
	}
	inc.RunbookID = runbookID.String
	inc.DetectedAt, _ = time.Parse(time.RFC3339Nano, detectedAt)
	inc.StateChangedAt, _ = time.Parse(time.RFC3339Nano, stateChangedAt)
	inc.ResolvedAt = parseNullableTime(resolvedAt)
	inc.EscalatedAt = parseNullableTime(escalatedAt)
	inc.DismissUntil = parseNullableTime(dismissUntil)
	_ = json.Unmarshal([]byte(audit), &inc.AuditTrail)
	_ = json.Unmarshal([]byte(details), &inc.Details)
	return inc, nil
}

// GetRunbook looks up a runbook by id.
func (s *Store) GetRunbook(ctx context.Context, id string) (Runbook, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, label, applies_to, mode, confidence, dry_run_count, last_executed_at, last_succeeded_at, auto_approve_whitelist, created_at, approved_at
		FROM runbooks WHERE id = ?`, id)
	return scanRunbook(row)
}

// ListRunbooksForAnomaly returns every runbook whose applies_to includes
// anomalyType.
func (s *Store) ListRunbooksForAnomaly(ctx context.Context, anomalyType string) ([]Runbook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, applies_to, mode, confidence, dry_run_count, last_executed_at, last_succeeded_at, auto_approve_whitelist, created_at, approved_at
		FROM runbooks`)
	if err != nil {
		return nil, fmt.Errorf("list runbooks: %w", err)
	}
	defer rows.Close()

	var out []Runbook
	for rows.Next() {
		rb, err := scanRunbookRows(rows)
		if err != nil {
			return nil, err
		}
		for _, a := range rb.AppliesTo {
			if a == anomalyType {
				out = append(out, rb)
				break
			}
		}
	}
	return out, rows.Err()
}

// SeedRunbook inserts rb's initial row if one doesn't already exist,
// matching SeedTrustScore's idempotent first-run seeding idiom: a runbook
// that already has graduation history is never reset by a restart.
func (s *Store) SeedRunbook(ctx context.Context, rb Runbook) error {
	applies, err := json.Marshal(rb.AppliesTo)
	if err != nil {
		return fmt.Errorf("marshal applies_to: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runbooks (id, label, applies_to, mode, confidence, dry_run_count, last_executed_at, last_succeeded_at, auto_approve_whitelist, created_at, approved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		rb.ID, rb.Label, string(applies), rb.Mode, rb.Confidence, rb.DryRunCount, nullableTime(rb.LastExecutedAt),
		nullableTime(rb.LastSucceededAt), boolToInt(rb.AutoApproveWhitelist), rb.CreatedAt.UTC().Format(time.RFC3339Nano), nullableTime(rb.ApprovedAt))
	if err != nil {
		return fmt.Errorf("seed runbook %s: %w", rb.ID, err)
	}
	return nil
}

// UpsertRunbook inserts or replaces a runbook definition.
func (s *Store) UpsertRunbook(ctx context.Context, rb Runbook) error {
	applies, err := json.Marshal(rb.AppliesTo)
	if err != nil {
		return fmt.Errorf("marshal applies_to: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runbooks (id, label, applies_to, mode, confidence, dry_run_count, last_executed_at, last_succeeded_at, auto_approve_whitelist, created_at, approved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET label=excluded.label, applies_to=excluded.applies_to, mode=excluded.mode,
			confidence=excluded.confidence, dry_run_count=excluded.dry_run_count, last_executed_at=excluded.last_executed_at,
			last_succeeded_at=excluded.last_succeeded_at, auto_approve_whitelist=excluded.auto_approve_whitelist, approved_at=excluded.approved_at`,
		rb.ID, rb.Label, string(applies), rb.Mode, rb.Confidence, rb.DryRunCount, nullableTime(rb.LastExecutedAt),
		nullableTime(rb.LastSucceededAt), boolToInt(rb.AutoApproveWhitelist), rb.CreatedAt.UTC().Format(time.RFC3339Nano), nullableTime(rb.ApprovedAt))
	if err != nil {
		return fmt.Errorf("upsert runbook %s: %w", rb.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunbook(row *sql.Row) (Runbook, error) {
	return scanRunbookRows(row)
}

func scanRunbookRows(row rowScanner) (Runbook, error) {
	var rb Runbook
	var applies string
	var lastExecuted, lastSucceeded, approvedAt sql.NullString
	var createdAt string
	var whitelist int
	if err := row.Scan(&rb.ID, &rb.Label, &applies, &rb.Mode, &rb.Confidence, &rb.DryRunCount,
		&lastExecuted, &lastSucceeded, &whitelist, &createdAt, &approvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Runbook{}, ErrNotFound
		}
		return Runbook{}, fmt.Errorf("scan runbook: %w", err)
	}
	_ = json.Unmarshal([]byte(applies), &rb.AppliesTo)
	rb.AutoApproveWhitelist = whitelist != 0
	rb.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rb.LastExecutedAt = parseNullableTime(lastExecuted)
	rb.LastSucceededAt = parseNullableTime(lastSucceeded)
	rb.ApprovedAt = parseNullableTime(approvedAt)
	return rb, nil
}

func inClause(values []string) (string, []any) {
	args := make([]any, len(values))
	placeholders := ""
	for i, v := range values {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = v
	}
	return placeholders, args
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
