package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// TrustScore mirrors the trust_scores row (SPEC_FULL section 6).
type TrustScore struct {
	Category           string
	RiskTier           int
	CurrentScore       float64
	EWMAAlpha          float64
	InitialScore       float64
	PromotionThreshold float64
	DemotionThreshold  float64
	Floor              float64
	UpdatedAt          time.Time
}

// Decision mirrors the decision_log row.
type Decision struct {
	DecisionID           string
	SessionID            string
	ToolName             string
	ToolParamsHash       string
	ToolParamsSummary    string
	RiskTier             int
	Category             string
	GateDecision         string
	TrustScoreAtDecision float64
	OverrideActive       bool
	Reason               string
	Timestamp            time.Time
	Outcome              string
}

// Override mirrors the trust_overrides row.
type Override struct {
	OverrideID         string
	Category           string
	OverrideType       string
	Reason             string
	GrantedBy          string
	GrantedFromSession string
	ExpiresAt          *time.Time
	Active             bool
	CreatedAt          time.Time
}

// Milestone mirrors the trust_milestones row.
type Milestone struct {
	MilestoneID   string
	Category      string
	MilestoneType string
	OldScore      float64
	NewScore      float64
	Trigger       string
	Timestamp     time.Time
}

// SeedTrustScore inserts the tier-default row for category if one does not
// already exist. Called at startup for every category the config declares.
func (s *Store) SeedTrustScore(ctx context.Context, ts TrustScore) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trust_scores (category, risk_tier, current_score, ewma_alpha, initial_score, promotion_threshold, demotion_threshold, floor, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(category) DO NOTHING`,
		ts.Category, ts.RiskTier, ts.CurrentScore, ts.EWMAAlpha, ts.InitialScore,
		ts.PromotionThreshold, ts.DemotionThreshold, ts.Floor, ts.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("seed trust score %s: %w", ts.Category, err)
	}
	return nil
}

// GetTrustScore reads the score row for category. Callers treat ErrNotFound
// as "use the tier default" (fail-open for storage read errors, per
// SPEC_FULL 4.2).
func (s *Store) GetTrustScore(ctx context.Context, category string) (TrustScore, error) {
	return getTrustScoreTx(ctx, s.db, category)
}

func getTrustScoreTx(ctx context.Context, q querier, category string) (TrustScore, error) {
	row := q.QueryRowContext(ctx, `
		SELECT category, risk_tier, current_score, ewma_alpha, initial_score, promotion_threshold, demotion_threshold, floor, updated_at
		FROM trust_scores WHERE category = ?`, category)

	var ts TrustScore
	var updatedAt string
	if err := row.Scan(&ts.Category, &ts.RiskTier, &ts.CurrentScore, &ts.EWMAAlpha, &ts.InitialScore,
		&ts.PromotionThreshold, &ts.DemotionThreshold, &ts.Floor, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TrustScore{}, ErrNotFound
		}
		return TrustScore{}, fmt.Errorf("get trust score %s: %w", category, err)
	}
	ts.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return ts, nil
}

// UpdateTrustScoreTx writes a new current_score for category within tx.
func UpdateTrustScoreTx(ctx context.Context, tx *sql.Tx, category string, newScore float64, updatedAt time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE trust_scores SET current_score = ?, updated_at = ? WHERE category = ?`,
		newScore, updatedAt.UTC().Format(time.RFC3339Nano), category)
	if err != nil {
		return fmt.Errorf("update trust score %s: %w", category, err)
	}
	return nil
}

// GetTrustScoreTx reads the score row for category within tx (used when the
// read must observe the same transaction as a subsequent write).
func GetTrustScoreTx(ctx context.Context, tx *sql.Tx, category string) (TrustScore, error) {
	return getTrustScoreTx(ctx, tx, category)
}

// InsertDecision writes a new Decision row. Outcome starts at "pending".
func (s *Store) InsertDecision(ctx context.Context, d Decision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_log (decision_id, session_id, tool_name, tool_params_hash, tool_params_summary, risk_tier, category, gate_decision, trust_score_at_decision, override_active, reason, timestamp, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DecisionID, d.SessionID, d.ToolName, d.ToolParamsHash, d.ToolParamsSummary, d.RiskTier, d.Category,
		d.GateDecision, d.TrustScoreAtDecision, boolToInt(d.OverrideActive), d.Reason, d.Timestamp.UTC().Format(time.RFC3339Nano), d.Outcome)
	if err != nil {
		return fmt.Errorf("insert decision %s: %w", d.DecisionID, err)
	}
	return nil
}

// InsertDecisionTx writes a new Decision row within tx.
func InsertDecisionTx(ctx context.Context, tx *sql.Tx, d Decision) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO decision_log (decision_id, session_id, tool_name, tool_params_hash, tool_params_summary, risk_tier, category, gate_decision, trust_score_at_decision, override_active, reason, timestamp, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DecisionID, d.SessionID, d.ToolName, d.ToolParamsHash, d.ToolParamsSummary, d.RiskTier, d.Category,
		d.GateDecision, d.TrustScoreAtDecision, boolToInt(d.OverrideActive), d.Reason, d.Timestamp.UTC().Format(time.RFC3339Nano), d.Outcome)
	if err != nil {
		return fmt.Errorf("insert decision %s: %w", d.DecisionID, err)
	}
	return nil
}

// InsertPendingOutcomeTx links a PASS decision to a feedback window within tx.
func InsertPendingOutcomeTx(ctx context.Context, tx *sql.Tx, decisionID string, expiresAt time.Time) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO pending_outcomes (decision_id, expires_at) VALUES (?, ?)`,
		decisionID, expiresAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert pending outcome %s: %w", decisionID, err)
	}
	return nil
}

// GetDecisionTx reads a Decision row within tx, for outcome resolution.
func GetDecisionTx(ctx context.Context, tx *sql.Tx, decisionID string) (Decision, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT decision_id, session_id, tool_name, tool_params_hash, tool_params_summary, risk_tier, category, gate_decision, trust_score_at_decision, override_active, reason, timestamp, outcome
		FROM decision_log WHERE decision_id = ?`, decisionID)

	var d Decision
	var overrideActive int
	var ts string
	if err := row.Scan(&d.DecisionID, &d.SessionID, &d.ToolName, &d.ToolParamsHash, &d.ToolParamsSummary,
		&d.RiskTier, &d.Category, &d.GateDecision, &d.TrustScoreAtDecision, &overrideActive, &d.Reason, &ts, &d.Outcome); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Decision{}, ErrNotFound
		}
		return Decision{}, fmt.Errorf("get decision %s: %w", decisionID, err)
	}
	d.OverrideActive = overrideActive != 0
	d.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	return d, nil
}

// SetDecisionOutcomeTx updates outcome for decisionID within tx.
func SetDecisionOutcomeTx(ctx context.Context, tx *sql.Tx, decisionID, outcome string) error {
	res, err := tx.ExecContext(ctx, `UPDATE decision_log SET outcome = ? WHERE decision_id = ?`, outcome, decisionID)
	if err != nil {
		return fmt.Errorf("set decision outcome %s: %w", decisionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set decision outcome %s: %w", decisionID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertPendingOutcome links a PASS decision to a feedback window.
func (s *Store) InsertPendingOutcome(ctx context.Context, decisionID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO pending_outcomes (decision_id, expires_at) VALUES (?, ?)`,
		decisionID, expiresAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert pending outcome %s: %w", decisionID, err)
	}
	return nil
}

// DeletePendingOutcomeTx removes any pending-outcome row for decisionID.
func DeletePendingOutcomeTx(ctx context.Context, tx *sql.Tx, decisionID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM pending_outcomes WHERE decision_id = ?`, decisionID)
	if err != nil {
		return fmt.Errorf("delete pending outcome %s: %w", decisionID, err)
	}
	return nil
}

// ExpiredPendingOutcomes returns decision ids whose feedback window expired
// at or before asOf, for the reaper to resolve to a default "pass".
func (s *Store) ExpiredPendingOutcomes(ctx context.Context, asOf time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT decision_id FROM pending_outcomes WHERE expires_at <= ?`,
		asOf.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("list expired pending outcomes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired pending outcome: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetActiveOverrideTx reads the active, non-expired override for category
// within tx, if any.
func GetActiveOverrideTx(ctx context.Context, tx *sql.Tx, category string, now time.Time) (Override, bool, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT override_id, category, override_type, reason, granted_by, granted_from_session, expires_at, active, created_at
		FROM trust_overrides WHERE category = ? AND active = 1 LIMIT 1`, category)

	var o Override
	var expiresAt sql.NullString
	var active int
	var createdAt string
	if err := row.Scan(&o.OverrideID, &o.Category, &o.OverrideType, &o.Reason, &o.GrantedBy, &o.GrantedFromSession,
		&expiresAt, &active, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Override{}, false, nil
		}
		return Override{}, false, fmt.Errorf("get active override %s: %w", category, err)
	}
	o.Active = active != 0
	o.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if expiresAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, expiresAt.String)
		o.ExpiresAt = &t
		if !now.Before(t) {
			// Expired: treat as absent.
			return Override{}, false, nil
		}
	}
	return o, true, nil
}

// DeactivateOverridesTx marks every active override for category inactive,
// within tx, prior to inserting a replacement.
func DeactivateOverridesTx(ctx context.Context, tx *sql.Tx, category string) error {
	_, err := tx.ExecContext(ctx, `UPDATE trust_overrides SET active = 0 WHERE category = ? AND active = 1`, category)
	if err != nil {
		return fmt.Errorf("deactivate overrides %s: %w", category, err)
	}
	return nil
}

// InsertOverrideTx inserts a new override row within tx.
func InsertOverrideTx(ctx context.Context, tx *sql.Tx, o Override) error {
	var expiresAt any
	if o.ExpiresAt != nil {
		expiresAt = o.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trust_overrides (override_id, category, override_type, reason, granted_by, granted_from_session, expires_at, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OverrideID, o.Category, o.OverrideType, o.Reason, o.GrantedBy, o.GrantedFromSession, expiresAt,
		boolToInt(o.Active), o.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert override %s: %w", o.OverrideID, err)
	}
	return nil
}

// CountActiveOverridesTx returns how many rows for category currently have
// active = true; used by tests asserting the single-active-override
// invariant.
func CountActiveOverridesTx(ctx context.Context, tx *sql.Tx, category string) (int, error) {
	row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM trust_overrides WHERE category = ? AND active = 1`, category)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count active overrides %s: %w", category, err)
	}
	return n, nil
}

// InsertMilestoneTx writes a milestone row within tx, linearized with the
// score update that produced it.
func InsertMilestoneTx(ctx context.Context, tx *sql.Tx, m Milestone) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trust_milestones (milestone_id, category, milestone_type, old_score, new_score, trigger, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.MilestoneID, m.Category, m.MilestoneType, m.OldScore, m.NewScore, m.Trigger, m.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert milestone %s: %w", m.MilestoneID, err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
