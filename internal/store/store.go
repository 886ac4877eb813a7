// Package store is the embedded relational store backing the cognitive
// safety core: trust scores, decisions, overrides, milestones, incidents,
// runbooks, and the real-time learning failure/propagation log. It is the
// only shared mutable state in the system (SPEC_FULL section 9); every
// mutation goes through WithTx so concurrent category/incident updates
// compose correctly.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog/log"
)

// Store wraps a single *sql.DB handle with the schema this package owns.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite database at path, applying
// the idempotent schema. No migration library is used: the teacher repo
// never imports one, and a handful of CREATE TABLE IF NOT EXISTS statements
// is sufficient for a single-node embedded store (see DESIGN.md).
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer at a time, serialize via Go-level locking.

	s := &Store{db: db}
	if err := s.applySchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Every multi-row mutation the spec calls
// transactional (override rotation, outcome resolution, incident upsert)
// goes through this helper.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("store: rollback failed after transaction error")
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// WithTxResult runs fn inside a transaction and returns its value, committing
// on success and rolling back on error.
func WithTxResult[T any](ctx context.Context, s *Store, fn func(tx *sql.Tx) (T, error)) (T, error) {
	var result T
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		v, err := fn(tx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

const schema = `
CREATE TABLE IF NOT EXISTS trust_scores (
	category TEXT PRIMARY KEY,
	risk_tier INTEGER NOT NULL,
	current_score REAL NOT NULL CHECK (current_score >= 0 AND current_score <= 1),
	ewma_alpha REAL NOT NULL,
	initial_score REAL NOT NULL,
	promotion_threshold REAL NOT NULL,
	demotion_threshold REAL NOT NULL,
	floor REAL NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decision_log (
	decision_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	tool_params_hash TEXT NOT NULL,
	tool_params_summary TEXT NOT NULL,
	risk_tier INTEGER NOT NULL CHECK (risk_tier BETWEEN 1 AND 4),
	category TEXT NOT NULL,
	gate_decision TEXT NOT NULL CHECK (gate_decision IN ('pass','pause','block')),
	trust_score_at_decision REAL NOT NULL,
	override_active INTEGER NOT NULL DEFAULT 0,
	reason TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	outcome TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS trust_overrides (
	override_id TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	override_type TEXT NOT NULL CHECK (override_type IN ('granted','revoked')),
	reason TEXT NOT NULL,
	granted_by TEXT NOT NULL,
	granted_from_session TEXT NOT NULL,
	expires_at TEXT,
	active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trust_overrides_category_active ON trust_overrides(category, active);

CREATE TABLE IF NOT EXISTS trust_milestones (
	milestone_id TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	milestone_type TEXT NOT NULL,
	old_score REAL NOT NULL,
	new_score REAL NOT NULL,
	trigger TEXT NOT NULL,
	timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_outcomes (
	decision_id TEXT PRIMARY KEY REFERENCES decision_log(decision_id),
	expires_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS incidents (
	id TEXT PRIMARY KEY,
	anomaly_type TEXT NOT NULL,
	target_id TEXT NOT NULL,
	severity TEXT NOT NULL,
	state TEXT NOT NULL,
	runbook_id TEXT,
	detected_at TEXT NOT NULL,
	state_changed_at TEXT NOT NULL,
	resolved_at TEXT,
	escalation_tier INTEGER NOT NULL DEFAULT 0,
	escalated_at TEXT,
	dismiss_until TEXT,
	audit_trail TEXT NOT NULL DEFAULT '[]',
	details TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_incidents_type_target_state ON incidents(anomaly_type, target_id, state);

CREATE TABLE IF NOT EXISTS runbooks (
	id TEXT PRIMARY KEY,
	label TEXT NOT NULL,
	applies_to TEXT NOT NULL,
	mode TEXT NOT NULL,
	confidence REAL NOT NULL,
	dry_run_count INTEGER NOT NULL DEFAULT 0,
	last_executed_at TEXT,
	last_succeeded_at TEXT,
	auto_approve_whitelist INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	approved_at TEXT
);

CREATE TABLE IF NOT EXISTS failure_events (
	id TEXT PRIMARY KEY,
	detected_at TEXT NOT NULL,
	type TEXT NOT NULL,
	tier INTEGER NOT NULL,
	source TEXT NOT NULL,
	context TEXT NOT NULL DEFAULT '{}',
	failure_desc TEXT NOT NULL,
	raw_input TEXT,
	root_cause TEXT NOT NULL,
	propagation_status TEXT NOT NULL DEFAULT 'pending',
	recurrence_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_failure_events_root_cause ON failure_events(root_cause, detected_at);

CREATE TABLE IF NOT EXISTS propagation_records (
	id TEXT PRIMARY KEY,
	failure_id TEXT NOT NULL REFERENCES failure_events(id),
	target TEXT NOT NULL,
	success INTEGER NOT NULL,
	detail TEXT NOT NULL,
	timestamp TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_propagation_records_failure_target ON propagation_records(failure_id, target);

CREATE TABLE IF NOT EXISTS regression_tests (
	id TEXT PRIMARY KEY,
	failure_id TEXT NOT NULL REFERENCES failure_events(id),
	description TEXT NOT NULL,
	test_file TEXT NOT NULL
);
`

func (s *Store) applySchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
