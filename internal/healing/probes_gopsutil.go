package healing

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// DiskProbe polls disk usage for a single mount path.
type DiskProbe struct {
	Path     string
	Interval time.Duration
}

func (p DiskProbe) SourceID() string            { return "heal.disk." + p.Path }
func (p DiskProbe) PollInterval() time.Duration { return p.Interval }

func (p DiskProbe) Poll(ctx context.Context) (SourceReading, error) {
	usage, err := disk.UsageWithContext(ctx, p.Path)
	now := time.Now()
	if err != nil {
		return SourceReading{SourceID: p.SourceID(), CapturedAt: now, Available: false}, fmt.Errorf("disk usage %s: %w", p.Path, err)
	}
	return SourceReading{
		SourceID:   p.SourceID(),
		CapturedAt: now,
		Available:  true,
		Data: map[string]any{
			"target_id":    p.Path,
			"used_percent": usage.UsedPercent,
		},
	}, nil
}

// MemoryProbe polls system-wide virtual memory usage.
type MemoryProbe struct {
	Interval time.Duration
}

func (p MemoryProbe) SourceID() string            { return "heal.memory" }
func (p MemoryProbe) PollInterval() time.Duration { return p.Interval }

func (p MemoryProbe) Poll(ctx context.Context) (SourceReading, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	now := time.Now()
	if err != nil {
		return SourceReading{SourceID: p.SourceID(), CapturedAt: now, Available: false}, fmt.Errorf("virtual memory: %w", err)
	}
	return SourceReading{
		SourceID:   p.SourceID(),
		CapturedAt: now,
		Available:  true,
		Data: map[string]any{
			"target_id":    "host",
			"used_percent": vm.UsedPercent,
		},
	}, nil
}

// ProcessProbe polls liveness and status for a single named process by PID.
// RestartArgv, if set, is the argument vector the restart-process runbook
// uses to relaunch the process after a validated termination.
type ProcessProbe struct {
	TargetID    string // descriptive label, e.g. "pipeline-worker"
	PID         int32
	Interval    time.Duration
	RestartArgv []string
}

func (p ProcessProbe) SourceID() string            { return "heal.process." + p.TargetID }
func (p ProcessProbe) PollInterval() time.Duration { return p.Interval }

func (p ProcessProbe) Poll(ctx context.Context) (SourceReading, error) {
	now := time.Now()
	proc, err := process.NewProcessWithContext(ctx, p.PID)
	if err != nil {
		// Process no longer exists: this is itself significant data, not a
		// probe failure, so it reports unavailable rather than erroring.
		return SourceReading{SourceID: p.SourceID(), CapturedAt: now, Available: false, Data: map[string]any{
			"target_id": p.TargetID, "pid": p.PID, "dead": true, "restart_argv": p.RestartArgv,
		}}, nil
	}

	statuses, err := proc.StatusWithContext(ctx)
	if err != nil {
		return SourceReading{SourceID: p.SourceID(), CapturedAt: now, Available: false}, fmt.Errorf("process status %d: %w", p.PID, err)
	}

	zombie := false
	for _, s := range statuses {
		if s == process.Zombie {
			zombie = true
		}
	}

	return SourceReading{
		SourceID:   p.SourceID(),
		CapturedAt: now,
		Available:  true,
		Data: map[string]any{
			"target_id": p.TargetID,
			"pid":       p.PID,
			"dead":      false,
			"zombie":    zombie,
		},
	}, nil
}
