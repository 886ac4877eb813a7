package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FailureEvent mirrors the failure_events row.
type FailureEvent struct {
	ID                 string
	DetectedAt         time.Time
	Type               string
	Tier               int
	Source             string
	Context            string
	FailureDesc        string
	RawInput           string
	RootCause          string
	PropagationStatus  string
	RecurrenceCount    int
}

// PropagationRecord mirrors the propagation_records row.
type PropagationRecord struct {
	ID        string
	FailureID string
	Target    string
	Success   bool
	Detail    string
	Timestamp time.Time
}

// RegressionTest mirrors the regression_tests row.
type RegressionTest struct {
	ID          string
	FailureID   string
	Description string
	TestFile    string
}

// InsertFailureEvent writes a new failure event.
func (s *Store) InsertFailureEvent(ctx context.Context, f FailureEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failure_events (id, detected_at, type, tier, source, context, failure_desc, raw_input, root_cause, propagation_status, recurrence_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.DetectedAt.UTC().Format(time.RFC3339Nano), f.Type, f.Tier, f.Source, f.Context, f.FailureDesc,
		nullableString(f.RawInput), f.RootCause, f.PropagationStatus, f.RecurrenceCount)
	if err != nil {
		return fmt.Errorf("insert failure event %s: %w", f.ID, err)
	}
	return nil
}

// GetFailureEvent looks up a failure event by id.
func (s *Store) GetFailureEvent(ctx context.Context, id string) (FailureEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, detected_at, type, tier, source, context, failure_desc, raw_input, root_cause, propagation_status, recurrence_count
		FROM failure_events WHERE id = ?`, id)
	return scanFailureEvent(row)
}

func scanFailureEvent(row *sql.Row) (FailureEvent, error) {
	var f FailureEvent
	var detectedAt string
	var rawInput sql.NullString
	if err := row.Scan(&f.ID, &detectedAt, &f.Type, &f.Tier, &f.Source, &f.Context, &f.FailureDesc,
		&rawInput, &f.RootCause, &f.PropagationStatus, &f.RecurrenceCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FailureEvent{}, ErrNotFound
		}
		return FailureEvent{}, fmt.Errorf("scan failure event: %w", err)
	}
	f.DetectedAt, _ = time.Parse(time.RFC3339Nano, detectedAt)
	f.RawInput = rawInput.String
	return f, nil
}

// ListFailureEvents returns every failure event, oldest first. Used by the
// metrics emitter, which aggregates across the whole table; the embedded
// store's scale does not warrant a SQL-side aggregate query.
func (s *Store) ListFailureEvents(ctx context.Context) ([]FailureEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, detected_at, type, tier, source, context, failure_desc, raw_input, root_cause, propagation_status, recurrence_count
		FROM failure_events ORDER BY detected_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list failure events: %w", err)
	}
	defer rows.Close()

	var out []FailureEvent
	for rows.Next() {
		var f FailureEvent
		var detectedAt string
		var rawInput sql.NullString
		if err := rows.Scan(&f.ID, &detectedAt, &f.Type, &f.Tier, &f.Source, &f.Context, &f.FailureDesc,
			&rawInput, &f.RootCause, &f.PropagationStatus, &f.RecurrenceCount); err != nil {
			return nil, fmt.Errorf("scan failure event: %w", err)
		}
		f.DetectedAt, _ = time.Parse(time.RFC3339Nano, detectedAt)
		f.RawInput = rawInput.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// SetFailurePropagationStatus updates the propagation_status for a failure event.
func (s *Store) SetFailurePropagationStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE failure_events SET propagation_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set propagation status %s: %w", id, err)
	}
	return nil
}

// SetFailureRecurrenceCount updates the recurrence_count for a failure event.
func (s *Store) SetFailureRecurrenceCount(ctx context.Context, id string, count int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE failure_events SET recurrence_count = ? WHERE id = ?`, count, id)
	if err != nil {
		return fmt.Errorf("set recurrence count %s: %w", id, err)
	}
	return nil
}

// CountPriorFailuresByRootCause returns how many failure events with the
// given root cause were detected strictly before before, used by the
// recurrence detector's lookback window.
func (s *Store) CountPriorFailuresByRootCause(ctx context.Context, rootCause string, before time.Time) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failure_events WHERE root_cause = ? AND detected_at < ?`,
		rootCause, before.UTC().Format(time.RFC3339Nano))
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count prior failures for %s: %w", rootCause, err)
	}
	return n, nil
}

// CountPriorFailuresByRootCauseSince returns how many failure events with
// the given root cause were detected within [since, before), the bounded
// form of CountPriorFailuresByRootCause that the recurrence detector's
// lookback window actually needs.
func (s *Store) CountPriorFailuresByRootCauseSince(ctx context.Context, rootCause string, since, before time.Time) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failure_events WHERE root_cause = ? AND detected_at >= ? AND detected_at < ?`,
		rootCause, since.UTC().Format(time.RFC3339Nano), before.UTC().Format(time.RFC3339Nano))
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count prior failures for %s since %s: %w", rootCause, since, err)
	}
	return n, nil
}

// InsertPropagationRecord writes one (failure, target) propagation result.
// The unique index on (failure_id, target) enforces the "each distinct
// target appears at most once" invariant at the storage layer.
func (s *Store) InsertPropagationRecord(ctx context.Context, p PropagationRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO propagation_records (id, failure_id, target, success, detail, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.FailureID, p.Target, boolToInt(p.Success), p.Detail, p.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert propagation record %s/%s: %w", p.FailureID, p.Target, err)
	}
	return nil
}

// ListPropagationRecords returns every propagation record for a failure.
func (s *Store) ListPropagationRecords(ctx context.Context, failureID string) ([]PropagationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, failure_id, target, success, detail, timestamp FROM propagation_records WHERE failure_id = ?`, failureID)
	if err != nil {
		return nil, fmt.Errorf("list propagation records %s: %w", failureID, err)
	}
	defer rows.Close()

	var out []PropagationRecord
	for rows.Next() {
		var p PropagationRecord
		var success int
		var ts string
		if err := rows.Scan(&p.ID, &p.FailureID, &p.Target, &success, &p.Detail, &ts); err != nil {
			return nil, fmt.Errorf("scan propagation record: %w", err)
		}
		p.Success = success != 0
		p.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertRegressionTest records a generated regression-test stub's file path.
func (s *Store) InsertRegressionTest(ctx context.Context, r RegressionTest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO regression_tests (id, failure_id, description, test_file) VALUES (?, ?, ?, ?)`,
		r.ID, r.FailureID, r.Description, r.TestFile)
	if err != nil {
		return fmt.Errorf("insert regression test %s: %w", r.ID, err)
	}
	return nil
}
