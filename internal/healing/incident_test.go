package healing

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/arcwatch/sentinel/internal/clock"
	"github.com/arcwatch/sentinel/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertIncidentCreatesThenRefreshes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	a := HealthAnomaly{ID: "a1", AnomalyType: AnomalyDiskPressure, TargetID: "/", Severity: SeverityMedium, DetectedAt: fc.Now()}

	first, err := store.WithTxResult(ctx, s, func(tx *sql.Tx) (upsertResult, error) {
		return upsertIncident(ctx, tx, fc, a)
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !first.isNew {
		t.Fatal("expected first upsert to be new")
	}

	fc.Advance(time.Minute)
	second, err := store.WithTxResult(ctx, s, func(tx *sql.Tx) (upsertResult, error) {
		return upsertIncident(ctx, tx, fc, a)
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.isNew {
		t.Fatal("expected second upsert to refresh, not create")
	}
	if second.incident.ID != first.incident.ID {
		t.Fatalf("refresh produced a different incident id: %s != %s", second.incident.ID, first.incident.ID)
	}
	if len(second.incident.AuditTrail) != 2 {
		t.Fatalf("AuditTrail length = %d, want 2 (detected + redetected)", len(second.incident.AuditTrail))
	}
}

func TestUpsertIncidentSkipsDuringDismissWindow(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	a := HealthAnomaly{ID: "a1", AnomalyType: AnomalyMemoryPressure, TargetID: "host", Severity: SeverityMedium, DetectedAt: fc.Now()}

	created, err := store.WithTxResult(ctx, s, func(tx *sql.Tx) (upsertResult, error) {
		return upsertIncident(ctx, tx, fc, a)
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	dismissUntil := fc.Now().Add(time.Hour)
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		inc := created.incident
		inc.State = StateDismissed
		inc.DismissUntil = &dismissUntil
		return store.UpdateIncidentTx(ctx, tx, inc)
	})
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	fc.Advance(time.Minute)
	result, err := store.WithTxResult(ctx, s, func(tx *sql.Tx) (upsertResult, error) {
		return upsertIncident(ctx, tx, fc, a)
	})
	if err != nil {
		t.Fatalf("redetect during dismiss window: %v", err)
	}
	if !result.skipped {
		t.Fatal("expected redetection to be skipped while dismiss_until is in the future")
	}
}

func TestUpsertIncidentRevertsResolvedIncidentToDetected(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	a := HealthAnomaly{ID: "a1", AnomalyType: AnomalyDiskPressure, TargetID: "/", Severity: SeverityMedium, DetectedAt: fc.Now()}

	created, err := store.WithTxResult(ctx, s, func(tx *sql.Tx) (upsertResult, error) {
		return upsertIncident(ctx, tx, fc, a)
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resolvedAt := fc.Now()
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		inc := created.incident
		inc.State = StateResolved
		inc.ResolvedAt = &resolvedAt
		return store.UpdateIncidentTx(ctx, tx, inc)
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	fc.Advance(time.Hour)
	result, err := store.WithTxResult(ctx, s, func(tx *sql.Tx) (upsertResult, error) {
		return upsertIncident(ctx, tx, fc, a)
	})
	if err != nil {
		t.Fatalf("re-fire after resolution: %v", err)
	}
	if !result.isNew {
		t.Fatal("expected the re-fire to be treated as newly detected so handleIncident runs again")
	}
	if result.incident.ID != created.incident.ID {
		t.Fatalf("expected the resolved incident's id to be reused, got %s != %s", result.incident.ID, created.incident.ID)
	}
	if result.incident.State != StateDetected {
		t.Fatalf("State = %q, want detected", result.incident.State)
	}
	if result.incident.ResolvedAt != nil {
		t.Fatal("expected resolved_at to be cleared on revert")
	}
	if len(result.incident.AuditTrail) != 2 {
		t.Fatalf("AuditTrail length = %d, want 2 (detected + redetected_after_resolution)", len(result.incident.AuditTrail))
	}
}

func TestUpsertIncidentCreatesNewAfterDismissWindowExpires(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	a := HealthAnomaly{ID: "a1", AnomalyType: AnomalyDiskCritical, TargetID: "/data", Severity: SeverityCritical, DetectedAt: fc.Now()}

	created, err := store.WithTxResult(ctx, s, func(tx *sql.Tx) (upsertResult, error) {
		return upsertIncident(ctx, tx, fc, a)
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	dismissUntil := fc.Now().Add(time.Minute)
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		inc := created.incident
		inc.State = StateDismissed
		inc.DismissUntil = &dismissUntil
		return store.UpdateIncidentTx(ctx, tx, inc)
	})
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	fc.Advance(2 * time.Minute)
	result, err := store.WithTxResult(ctx, s, func(tx *sql.Tx) (upsertResult, error) {
		return upsertIncident(ctx, tx, fc, a)
	})
	if err != nil {
		t.Fatalf("redetect after window: %v", err)
	}
	if result.skipped {
		t.Fatal("expected a fresh incident once the dismiss window has passed")
	}
	if result.incident.ID == created.incident.ID {
		t.Fatal("expected a new incident id, not a reuse of the dismissed one")
	}
}
