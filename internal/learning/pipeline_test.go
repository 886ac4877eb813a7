package learning

import (
	"context"
	"testing"
	"time"

	"github.com/arcwatch/sentinel/internal/clock"
	"github.com/arcwatch/sentinel/internal/notify"
	"github.com/arcwatch/sentinel/internal/store"
)

func openPipelineTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type recordingPropagator struct {
	target  string
	fail    bool
	invoked int
}

func (p *recordingPropagator) Target() string { return p.target }

func (p *recordingPropagator) Propagate(_ context.Context, _ FailureEvent, _ Classification) (string, error) {
	p.invoked++
	if p.fail {
		return "", context.DeadlineExceeded
	}
	return "ok", nil
}

func TestPipelineHandlePersistsFailureAndPropagationRecords(t *testing.T) {
	ctx := context.Background()
	s := openPipelineTestStore(t)
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	hookProp := &recordingPropagator{target: TargetHookPattern}
	atomProp := &recordingPropagator{target: TargetAtom}
	p := &Pipeline{
		Store:       s,
		Clock:       fc,
		Transport:   &notify.LogTransport{},
		Propagators: []Propagator{hookProp, atomProp},
	}

	p.handle(ctx, DetectionPayload{
		Type: "tool_error", Source: "tool_executor", FailureDesc: "open x: ENOENT", DetectedAt: fc.Now(),
	})

	events, err := s.ListFailureEvents(ctx)
	if err != nil {
		t.Fatalf("ListFailureEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	f := events[0]
	if f.RootCause != "wrong_path" {
		t.Fatalf("RootCause = %q, want wrong_path", f.RootCause)
	}
	if f.PropagationStatus != "propagated" {
		t.Fatalf("PropagationStatus = %q, want propagated", f.PropagationStatus)
	}

	// wrong_path routes to hook_pattern, atom, sop_patch; only the two
	// configured propagators should have been invoked.
	if hookProp.invoked != 1 || atomProp.invoked != 1 {
		t.Fatalf("invocations: hook=%d atom=%d, want 1 each", hookProp.invoked, atomProp.invoked)
	}

	records, err := s.ListPropagationRecords(ctx, f.ID)
	if err != nil {
		t.Fatalf("ListPropagationRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
}

func TestPipelineHandleMarksFailedOnPropagatorFailure(t *testing.T) {
	ctx := context.Background()
	s := openPipelineTestStore(t)
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	p := &Pipeline{
		Store:       s,
		Clock:       fc,
		Transport:   &notify.LogTransport{},
		Propagators: []Propagator{&recordingPropagator{target: TargetHookPattern, fail: true}, &recordingPropagator{target: TargetAtom}},
	}

	p.handle(ctx, DetectionPayload{Type: "tool_error", FailureDesc: "open x: ENOENT", DetectedAt: fc.Now()})

	events, err := s.ListFailureEvents(ctx)
	if err != nil {
		t.Fatalf("ListFailureEvents: %v", err)
	}
	if len(events) != 1 || events[0].PropagationStatus != "failed" {
		t.Fatalf("events = %+v, want one event with failed status", events)
	}
}

func TestPipelineHandleTriggersRecurrenceRelay(t *testing.T) {
	ctx := context.Background()
	s := openPipelineTestStore(t)
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	p := &Pipeline{
		Store:      s,
		Clock:      fc,
		Transport:  &notify.LogTransport{},
		Recurrence: NewRecurrenceDetector(s, time.Hour),
	}

	p.handle(ctx, DetectionPayload{Type: "tool_error", FailureDesc: "open x: ENOENT", DetectedAt: fc.Now()})
	fc.Advance(time.Minute)
	p.handle(ctx, DetectionPayload{Type: "tool_error", FailureDesc: "open y: ENOENT", DetectedAt: fc.Now()})

	events, err := s.ListFailureEvents(ctx)
	if err != nil {
		t.Fatalf("ListFailureEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[1].RecurrenceCount != 1 {
		t.Fatalf("second event RecurrenceCount = %d, want 1", events[1].RecurrenceCount)
	}
}
