package learning

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arcwatch/sentinel/internal/notify"
)

// recurrenceStore is the narrow slice of *store.Store the recurrence
// detector needs, declared locally so it can be faked in tests.
type recurrenceStore interface {
	CountPriorFailuresByRootCauseSince(ctx context.Context, rootCause string, since, before time.Time) (int, error)
	SetFailureRecurrenceCount(ctx context.Context, id string, count int) error
}

// RecurrenceDetector queries prior failures sharing a root cause within a
// lookback window, after classification. "unknown" root causes are excluded
// entirely, per SPEC_FULL 4.4.
type RecurrenceDetector struct {
	store    recurrenceStore
	lookback atomic.Int64 // time.Duration, nanoseconds
}

// NewRecurrenceDetector builds a RecurrenceDetector.
func NewRecurrenceDetector(s recurrenceStore, lookback time.Duration) *RecurrenceDetector {
	r := &RecurrenceDetector{store: s}
	r.lookback.Store(int64(lookback))
	return r
}

// SetLookback updates the recurrence window, letting config.Watcher
// propagate a hot-reloaded value without a restart.
func (r *RecurrenceDetector) SetLookback(d time.Duration) {
	r.lookback.Store(int64(d))
}

// Check counts prior occurrences of class.RootCause within the lookback
// window ending at now, persists the updated count on f, and returns the
// count (0 means no recurrence).
func (r *RecurrenceDetector) Check(ctx context.Context, f FailureEvent, class Classification, now time.Time) (int, error) {
	if class.RootCause == "unknown" {
		return 0, nil
	}
	lookback := time.Duration(r.lookback.Load())
	count, err := r.store.CountPriorFailuresByRootCauseSince(ctx, class.RootCause, now.Add(-lookback), now)
	if err != nil {
		return 0, fmt.Errorf("count prior failures: %w", err)
	}
	if count == 0 {
		return 0, nil
	}
	if err := r.store.SetFailureRecurrenceCount(ctx, f.ID, count); err != nil {
		return 0, fmt.Errorf("set recurrence count: %w", err)
	}
	return count, nil
}

// RelayUrgent sends the "urgent" recurrence notification referencing the
// prior count, via the same transport propagators use.
func RelayUrgent(ctx context.Context, transport notify.Transport, f FailureEvent, class Classification, priorCount int) error {
	return transport.Send(ctx, notify.Message{
		Severity: notify.SeverityCritical,
		Source:   "real_time_learning",
		Title:    fmt.Sprintf("recurring failure: %s (%d prior occurrences)", class.RootCause, priorCount),
		Detail:   f.FailureDesc,
		Fields:   map[string]any{"failure_id": f.ID, "root_cause": class.RootCause, "prior_count": priorCount},
	})
}
