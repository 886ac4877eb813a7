package healing

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/arcwatch/sentinel/internal/bus"
	"github.com/arcwatch/sentinel/internal/clock"
	"github.com/arcwatch/sentinel/internal/notify"
	"github.com/arcwatch/sentinel/internal/store"
)

// fakeProbe lets a test control what the post-remediation re-probe observes.
type fakeProbe struct {
	id      string
	reading SourceReading
}

func (p *fakeProbe) SourceID() string            { return p.id }
func (p *fakeProbe) PollInterval() time.Duration { return time.Minute }
func (p *fakeProbe) Poll(context.Context) (SourceReading, error) {
	return p.reading, nil
}

type recordingTransport struct {
	sent []notify.Message
}

func (r *recordingTransport) Send(_ context.Context, msg notify.Message) error {
	r.sent = append(r.sent, msg)
	return nil
}

func TestEngineAutoExecuteResolvesOnHealthyReprobe(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := bus.New()
	transport := &recordingTransport{}

	if err := s.UpsertRunbook(ctx, store.Runbook{
		ID: "rb-rotate-logs", Label: "rotate", AppliesTo: []string{"disk_pressure"},
		Mode: "auto_execute", Confidence: 0.9, CreatedAt: fc.Now(),
	}); err != nil {
		t.Fatalf("seed runbook: %v", err)
	}

	probe := &fakeProbe{id: "heal.disk./", reading: SourceReading{
		SourceID: "heal.disk./", Available: true, Data: map[string]any{"used_percent": 10.0},
	}}

	engine := NewEngine(s, fc, b, EngineConfig{AutoExecuteConfidence: 0.8, RunbookGraduationCount: 3}, NewEscalator(transport), []HealthProbe{probe})
	// Swap in a no-op step so the test never depends on filesystem layout
	// or permissions for a real `find` invocation.
	engine.definitions["rb-rotate-logs"] = RunbookDefinition{
		ID: "rb-rotate-logs", Label: "rotate", AppliesTo: []AnomalyType{AnomalyDiskPressure},
		Build: func(HealthAnomaly) []RunbookStep {
			return []RunbookStep{argvStep{id: "noop", desc: "noop", timeout: time.Second, argv: []string{"true"}}}
		},
	}

	events := b.Subscribe(bus.TopicIncidentStateChanged)

	// used_percent=80 is disk_pressure (medium severity), not disk_critical,
	// so the escalation table's "critical always tier 3" rule does not apply
	// and the auto_execute runbook gets to run.
	reading := SourceReading{SourceID: "heal.disk./", Available: true, Data: map[string]any{"used_percent": 80.0}}
	engine.OnReading(ctx, reading)

	var lastState string
	seen := map[string]bool{}
loop:
	for {
		select {
		case ev := <-events:
			e := ev.(bus.IncidentStateChanged)
			seen[e.To] = true
			lastState = e.To
		default:
			break loop
		}
	}

	if !seen[StateResolved] {
		t.Fatalf("expected incident to reach resolved, saw states: %v (last=%s)", seen, lastState)
	}
}

func TestEngineNoApplicableRunbookEscalatesToOperator(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := bus.New()
	transport := &recordingTransport{}

	engine := NewEngine(s, fc, b, EngineConfig{AutoExecuteConfidence: 0.8, RunbookGraduationCount: 3}, NewEscalator(transport), nil)

	reading := SourceReading{SourceID: "heal.memory", Available: true, Data: map[string]any{"target_id": "host", "used_percent": 99.0}}
	engine.OnReading(ctx, reading)

	if len(transport.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(transport.sent))
	}
	if transport.sent[0].Severity != notify.SeverityCritical {
		t.Fatalf("Severity = %v, want critical for an unremediable critical anomaly", transport.sent[0].Severity)
	}
}

func TestEngineDeduplicatesRepeatedReadingsIntoOneIncident(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := bus.New()
	engine := NewEngine(s, fc, b, EngineConfig{AutoExecuteConfidence: 0.8, RunbookGraduationCount: 3}, NewEscalator(&recordingTransport{}), nil)

	reading := SourceReading{SourceID: "heal.memory", Available: true, Data: map[string]any{"target_id": "host", "used_percent": 99.0}}
	engine.OnReading(ctx, reading)
	fc.Advance(time.Minute)
	engine.OnReading(ctx, reading)

	type lookup struct {
		inc   store.Incident
		found bool
	}
	result, err := store.WithTxResult(ctx, s, func(tx *sql.Tx) (lookup, error) {
		inc, found, err := store.FindLatestIncidentTx(ctx, tx, "memory_critical", "host")
		return lookup{inc: inc, found: found}, err
	})
	if err != nil {
		t.Fatalf("FindLatestIncidentTx: %v", err)
	}
	if !result.found {
		t.Fatal("expected an incident to exist")
	}
	// First reading: detected -> diagnosing -> escalated (3 entries).
	// Second, identical reading: redetected on the same incident, not a new one.
	if len(result.inc.AuditTrail) != 4 {
		t.Fatalf("AuditTrail length = %d, want 4; repeated readings must not create duplicate incidents", len(result.inc.AuditTrail))
	}
}
