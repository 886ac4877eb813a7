package trustgate

import (
	"context"
	"testing"
	"time"

	"github.com/arcwatch/sentinel/internal/bus"
	"github.com/arcwatch/sentinel/internal/clock"
	"github.com/arcwatch/sentinel/internal/store"
)

func newTestGate(t *testing.T) (*Gate, clock.Clock) {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := bus.New()
	alphas := AlphaConfig{T1: 0.05, T2: 0.1, T3: 0.15}
	g, err := New(ctx, s, fc, b, DefaultCategories(alphas), DefaultFeedbackWindow)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g, fc
}

func TestGateCheckFinancialAlwaysPauses(t *testing.T) {
	g, _ := newTestGate(t)
	d, err := g.Check(context.Background(), "interactive-main", "exec", map[string]string{"command": "augur trade buy 1 BTC"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.GateDecision != string(DecisionPause) {
		t.Fatalf("GateDecision = %q, want pause", d.GateDecision)
	}
	if d.Reason != ReasonFinancialHardcap {
		t.Fatalf("Reason = %q, want financial_hardcap", d.Reason)
	}
}

func TestGateCheckReadOnlyPassesAboveThreshold(t *testing.T) {
	g, _ := newTestGate(t)
	d, err := g.Check(context.Background(), "interactive-main", "read_file", map[string]string{"path": "/tmp/foo"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.GateDecision != string(DecisionPass) {
		t.Fatalf("GateDecision = %q, want pass (seeded score 0.75 > 0.6)", d.GateDecision)
	}
}

func TestGateCheckPausesBelowThresholdButAboveFloor(t *testing.T) {
	g, _ := newTestGate(t)
	d, err := g.Check(context.Background(), "interactive-main", "restart_service", map[string]string{"name": "nginx"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	// T3 service_restart seeds at 0.55, promotion threshold 0.7: pause.
	if d.GateDecision != string(DecisionPause) {
		t.Fatalf("GateDecision = %q, want pause", d.GateDecision)
	}
	if d.Reason != ReasonBelowThreshold {
		t.Fatalf("Reason = %q, want below_threshold", d.Reason)
	}
}

func TestResolveOutcomeUpdatesScoreAndRejectsDoubleResolve(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t)
	d, err := g.Check(ctx, "interactive-main", "read_file", map[string]string{"path": "/tmp/foo"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if err := g.ResolveOutcome(ctx, d.DecisionID, OutcomePass, "observed_success"); err != nil {
		t.Fatalf("ResolveOutcome: %v", err)
	}

	err = g.ResolveOutcome(ctx, d.DecisionID, OutcomePass, "observed_success")
	if err == nil {
		t.Fatal("expected error resolving an already-resolved decision")
	}
}

func TestSetOverrideGrantedThenPassesEvenBelowFloor(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t)

	// Drive the service_restart score down hard with repeated significant corrections.
	for i := 0; i < 10; i++ {
		d, err := g.Check(ctx, "interactive-main", "restart_service", map[string]string{"name": "nginx"})
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		_ = g.ResolveOutcome(ctx, d.DecisionID, OutcomeCorrectedSignificant, "bad_restart")
	}

	if err := g.SetOverride(ctx, "service_restart", OverrideGranted, "operator approved", "interactive-main", ""); err != nil {
		t.Fatalf("SetOverride: %v", err)
	}

	d, err := g.Check(ctx, "interactive-main", "restart_service", map[string]string{"name": "nginx"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.GateDecision != string(DecisionPass) {
		t.Fatalf("GateDecision = %q, want pass under granted override", d.GateDecision)
	}
	if !d.OverrideActive {
		t.Fatal("expected OverrideActive to be true")
	}
}

func TestSetOverrideRejectsNonInteractiveSession(t *testing.T) {
	g, _ := newTestGate(t)
	err := g.SetOverride(context.Background(), "write_file", OverrideGranted, "batch job", "pipeline-nightly", "")
	if err != ErrNonInteractiveSession {
		t.Fatalf("SetOverride from pipeline session = %v, want ErrNonInteractiveSession", err)
	}
}
