package learning

import (
	"context"
	"testing"
	"time"
)

type fakeRecurrenceStore struct {
	priorCount   int
	sinceSeen    time.Time
	beforeSeen   time.Time
	lastSetID    string
	lastSetCount int
}

func (s *fakeRecurrenceStore) CountPriorFailuresByRootCauseSince(_ context.Context, _ string, since, before time.Time) (int, error) {
	s.sinceSeen, s.beforeSeen = since, before
	return s.priorCount, nil
}

func (s *fakeRecurrenceStore) SetFailureRecurrenceCount(_ context.Context, id string, count int) error {
	s.lastSetID, s.lastSetCount = id, count
	return nil
}

func TestRecurrenceCheckSkipsUnknownRootCause(t *testing.T) {
	fs := &fakeRecurrenceStore{priorCount: 5}
	r := NewRecurrenceDetector(fs, time.Hour)

	count, err := r.Check(context.Background(), FailureEvent{ID: "f1"}, Classification{RootCause: "unknown"}, time.Now())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0 for unknown root cause", count)
	}
	if fs.lastSetID != "" {
		t.Fatal("expected no recurrence count to be persisted for unknown root cause")
	}
}

func TestRecurrenceCheckUsesLookbackWindow(t *testing.T) {
	fs := &fakeRecurrenceStore{priorCount: 2}
	lookback := 30 * time.Minute
	r := NewRecurrenceDetector(fs, lookback)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	count, err := r.Check(context.Background(), FailureEvent{ID: "f2"}, Classification{RootCause: "wrong_path"}, now)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if !fs.sinceSeen.Equal(now.Add(-lookback)) || !fs.beforeSeen.Equal(now) {
		t.Fatalf("window = [%s, %s), want [%s, %s)", fs.sinceSeen, fs.beforeSeen, now.Add(-lookback), now)
	}
	if fs.lastSetID != "f2" || fs.lastSetCount != 2 {
		t.Fatalf("persisted recurrence = (%s, %d), want (f2, 2)", fs.lastSetID, fs.lastSetCount)
	}
}

func TestRecurrenceCheckZeroCountDoesNotPersist(t *testing.T) {
	fs := &fakeRecurrenceStore{priorCount: 0}
	r := NewRecurrenceDetector(fs, time.Hour)

	count, err := r.Check(context.Background(), FailureEvent{ID: "f3"}, Classification{RootCause: "permissions"}, time.Now())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
	if fs.lastSetID != "" {
		t.Fatal("expected no write when there is no recurrence")
	}
}
