package healing

import (
	"testing"
	"time"
)

func fixedID() string { return "anomaly-1" }

func TestClassifyDiskThresholds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		used float64
		want AnomalyType
		none bool
	}{
		{used: 50, none: true},
		{used: 80, want: AnomalyDiskPressure},
		{used: 95, want: AnomalyDiskCritical},
	}
	for _, c := range cases {
		r := SourceReading{SourceID: "heal.disk./", Available: true, Data: map[string]any{"used_percent": c.used}}
		got := Classify(r, fixedID, now)
		if c.none {
			if len(got) != 0 {
				t.Fatalf("used=%v: want no anomaly, got %v", c.used, got)
			}
			continue
		}
		if len(got) != 1 || got[0].AnomalyType != c.want {
			t.Fatalf("used=%v: got %v, want %v", c.used, got, c.want)
		}
	}
}

func TestClassifyProcessDead(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := SourceReading{SourceID: "heal.process.worker", Available: false, Data: map[string]any{"target_id": "worker", "dead": true}}
	got := Classify(r, fixedID, now)
	if len(got) != 1 || got[0].AnomalyType != AnomalyProcessDead {
		t.Fatalf("got %v, want process_dead", got)
	}
	if got[0].Severity != SeverityCritical {
		t.Fatalf("severity = %v, want critical", got[0].Severity)
	}
}

func TestClassifyProcessZombie(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := SourceReading{SourceID: "heal.process.worker", Available: true, Data: map[string]any{"target_id": "worker", "dead": false, "zombie": true}}
	got := Classify(r, fixedID, now)
	if len(got) != 1 || got[0].AnomalyType != AnomalyProcessZombie {
		t.Fatalf("got %v, want process_zombie", got)
	}
}

func TestClassifyStaleReadingOverridesSourceRules(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := SourceReading{SourceID: "heal.disk./", Available: true, FreshnessMs: staleReadingThresholdMs + 1, Data: map[string]any{"used_percent": 10.0}}
	got := Classify(r, fixedID, now)
	if len(got) != 1 || got[0].AnomalyType != AnomalySignalStale {
		t.Fatalf("got %v, want signal_stale", got)
	}
}

func TestClassifyLogBloat(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := SourceReading{SourceID: "heal.log.api", Available: true, Data: map[string]any{"target_id": "api", "size_bytes": int64(logBloatThresholdBytes + 1)}}
	got := Classify(r, fixedID, now)
	if len(got) != 1 || got[0].AnomalyType != AnomalyLogBloat {
		t.Fatalf("got %v, want log_bloat", got)
	}
}

func TestClassifyPhantomPosition(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := SourceReading{SourceID: "heal.position.btc", Available: true, Data: map[string]any{"target_id": "btc", "phantom": true}}
	got := Classify(r, fixedID, now)
	if len(got) != 1 || got[0].AnomalyType != AnomalyPhantomPosition {
		t.Fatalf("got %v, want phantom_position", got)
	}
	if got[0].Severity != SeverityHigh {
		t.Fatalf("severity = %v, want high", got[0].Severity)
	}
}

func TestClassifyHealthyReadingProducesNoAnomaly(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := SourceReading{SourceID: "heal.memory", Available: true, Data: map[string]any{"target_id": "host", "used_percent": 40.0}}
	if got := Classify(r, fixedID, now); len(got) != 0 {
		t.Fatalf("got %v, want none", got)
	}
}
