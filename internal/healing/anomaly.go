package healing

import (
	"strings"
	"time"
)

// thresholds for the disk/memory probes built into probes_gopsutil.go.
const (
	diskPressureThreshold   = 75.0
	diskCriticalThreshold   = 90.0
	memoryPressureThreshold = 85.0
	memoryCriticalThreshold = 95.0
	logBloatThresholdBytes  = 500 * 1024 * 1024 // 500MB of unrotated log
	staleReadingThresholdMs = 120_000           // 2 minutes
)

// Classify maps one SourceReading to zero or more anomalies. It is the
// single place that knows how raw probe data maps onto the closed anomaly
// type set; new probes extend this function's rule table, never the data
// model. idFunc and now are injected so callers can keep the function
// deterministic under test.
func Classify(r SourceReading, idFunc func() string, now time.Time) []HealthAnomaly {
	if !r.Available {
		return classifyUnavailable(r, idFunc, now)
	}

	if r.FreshnessMs > staleReadingThresholdMs {
		return []HealthAnomaly{newAnomaly(idFunc(), AnomalySignalStale, targetID(r), SeverityMedium, r, now,
			"reading is stale; check the upstream source's liveness")}
	}

	switch {
	case strings.HasPrefix(r.SourceID, "heal.disk."):
		return classifyDisk(r, idFunc, now)
	case r.SourceID == "heal.memory":
		return classifyMemory(r, idFunc, now)
	case strings.HasPrefix(r.SourceID, "heal.process."):
		return classifyProcess(r, idFunc, now)
	case strings.HasPrefix(r.SourceID, "heal.log."):
		return classifyLog(r, idFunc, now)
	case strings.HasPrefix(r.SourceID, "heal.position."):
		return classifyPosition(r, idFunc, now)
	default:
		return nil
	}
}

func classifyUnavailable(r SourceReading, idFunc func() string, now time.Time) []HealthAnomaly {
	switch {
	case strings.HasPrefix(r.SourceID, "heal.process."):
		if dead, _ := r.Data["dead"].(bool); dead {
			return []HealthAnomaly{newAnomaly(idFunc(), AnomalyProcessDead, targetID(r), SeverityCritical, r, now,
				"restart the process")}
		}
		return nil
	case strings.HasPrefix(r.SourceID, "heal.fleet."):
		return []HealthAnomaly{newAnomaly(idFunc(), AnomalyFleetUnreachable, targetID(r), SeverityHigh, r, now,
			"check network reachability to the fleet node")}
	case strings.HasPrefix(r.SourceID, "heal.gateway."):
		return []HealthAnomaly{newAnomaly(idFunc(), AnomalyGatewayUnresponsive, targetID(r), SeverityHigh, r, now,
			"check gateway process health")}
	case strings.HasPrefix(r.SourceID, "heal.db."):
		return []HealthAnomaly{newAnomaly(idFunc(), AnomalyDBCorruption, targetID(r), SeverityCritical, r, now,
			"run database integrity check")}
	case strings.HasPrefix(r.SourceID, "heal.pipeline."):
		return []HealthAnomaly{newAnomaly(idFunc(), AnomalyPipelineStuck, targetID(r), SeverityHigh, r, now,
			"inspect the stalled pipeline stage")}
	default:
		return nil
	}
}

func classifyDisk(r SourceReading, idFunc func() string, now time.Time) []HealthAnomaly {
	used, _ := r.Data["used_percent"].(float64)
	switch {
	case used >= diskCriticalThreshold:
		return []HealthAnomaly{newAnomaly(idFunc(), AnomalyDiskCritical, targetID(r), SeverityCritical, r, now,
			"free disk space immediately")}
	case used >= diskPressureThreshold:
		return []HealthAnomaly{newAnomaly(idFunc(), AnomalyDiskPressure, targetID(r), SeverityMedium, r, now,
			"clean logs or package caches")}
	default:
		return nil
	}
}

func classifyMemory(r SourceReading, idFunc func() string, now time.Time) []HealthAnomaly {
	used, _ := r.Data["used_percent"].(float64)
	switch {
	case used >= memoryCriticalThreshold:
		return []HealthAnomaly{newAnomaly(idFunc(), AnomalyMemoryCritical, targetID(r), SeverityCritical, r, now,
			"restart the highest-memory process")}
	case used >= memoryPressureThreshold:
		return []HealthAnomaly{newAnomaly(idFunc(), AnomalyMemoryPressure, targetID(r), SeverityMedium, r, now,
			"investigate memory growth")}
	default:
		return nil
	}
}

func classifyProcess(r SourceReading, idFunc func() string, now time.Time) []HealthAnomaly {
	if dead, _ := r.Data["dead"].(bool); dead {
		return []HealthAnomaly{newAnomaly(idFunc(), AnomalyProcessDead, targetID(r), SeverityCritical, r, now,
			"restart the process")}
	}
	if zombie, _ := r.Data["zombie"].(bool); zombie {
		return []HealthAnomaly{newAnomaly(idFunc(), AnomalyProcessZombie, targetID(r), SeverityLow, r, now,
			"reap the zombie process")}
	}
	return nil
}

// classifyLog handles readings from a log-size reporter (no gopsutil
// equivalent exists; any component that can stat a log directory reports
// through this source prefix via HealthProbe/OnReading like any other).
func classifyLog(r SourceReading, idFunc func() string, now time.Time) []HealthAnomaly {
	size, _ := r.Data["size_bytes"].(int64)
	if size >= logBloatThresholdBytes {
		return []HealthAnomaly{newAnomaly(idFunc(), AnomalyLogBloat, targetID(r), SeverityMedium, r, now,
			"rotate and prune oversized logs")}
	}
	return nil
}

// classifyPosition handles readings from a position-reconciliation reporter:
// the agent's believed open position does not match what the venue reports.
// There is no probe for this in this package; an external reconciliation
// job feeds it the same way any HealthProbe feeds OnReading.
func classifyPosition(r SourceReading, idFunc func() string, now time.Time) []HealthAnomaly {
	if phantom, _ := r.Data["phantom"].(bool); phantom {
		return []HealthAnomaly{newAnomaly(idFunc(), AnomalyPhantomPosition, targetID(r), SeverityHigh, r, now,
			"reconcile the position against the venue before taking further action")}
	}
	return nil
}

func targetID(r SourceReading) string {
	if t, ok := r.Data["target_id"].(string); ok {
		return t
	}
	return r.SourceID
}

func newAnomaly(id string, at AnomalyType, target string, sev Severity, r SourceReading, now time.Time, hint string) HealthAnomaly {
	return HealthAnomaly{
		ID: id, AnomalyType: at, TargetID: target, Severity: sev, DetectedAt: now,
		SourceID: r.SourceID, Details: r.Data, RemediationHint: hint,
	}
}
