package healing

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/arcwatch/sentinel/internal/clock"
	"github.com/arcwatch/sentinel/internal/store"
)

// BuiltinRunbooks is the in-code capability table: for each of these, a
// matching store.Runbook row (persisted separately, see Seed) tracks the
// mode/confidence/graduation state that decides whether Build's steps
// actually run or only describe themselves.
var BuiltinRunbooks = []RunbookDefinition{
	{
		ID:        "rb-rotate-logs",
		Label:     "rotate and prune oversized logs",
		AppliesTo: []AnomalyType{AnomalyDiskPressure, AnomalyDiskCritical, AnomalyLogBloat},
		Build: func(a HealthAnomaly) []RunbookStep {
			dir := "/var/log"
			if d, ok := a.Details["log_dir"].(string); ok && d != "" {
				if v, err := validateArg(d); err == nil {
					dir = v
				}
			}
			return []RunbookStep{
				argvStep{
					id:      "prune-old-logs",
					desc:    "delete rotated log files older than 3 days under " + dir,
					timeout: 30 * time.Second,
					argv:    []string{"find", dir, "-name", "*.log.*", "-mtime", "+3", "-delete"},
				},
			}
		},
	},
	{
		ID:          "rb-restart-process",
		Label:       "restart a dead process",
		AppliesTo:   []AnomalyType{AnomalyProcessDead},
		Destructive: true,
		Build: func(a HealthAnomaly) []RunbookStep {
			pid, _ := a.Details["pid"].(int32)
			comm, _ := a.Details["target_id"].(string)
			if pid == 0 {
				return nil
			}
			steps := []RunbookStep{
				signalStep{
					id:           "terminate-stale-process",
					desc:         "re-validate and send SIGTERM to pid " + comm,
					timeout:      10 * time.Second,
					pid:          pid,
					expectedComm: comm,
					signal:       syscall.SIGTERM,
				},
			}
			if argv, ok := a.Details["restart_argv"].([]string); ok && len(argv) > 0 {
				steps = append(steps, argvStep{
					id:      "relaunch-process",
					desc:    "relaunch " + comm,
					timeout: 15 * time.Second,
					argv:    argv,
				})
			}
			return steps
		},
	},
	{
		ID:        "rb-reap-zombie",
		Label:     "flag zombie process for supervisor reap",
		AppliesTo: []AnomalyType{AnomalyProcessZombie},
		Build: func(a HealthAnomaly) []RunbookStep {
			pid, _ := a.Details["pid"].(int32)
			return []RunbookStep{
				diagnosticStep{
					id:   "record-zombie",
					desc: "zombie process cannot be reaped directly; only its parent's wait() call clears it",
					note: "pid observed as zombie, flagged for the supervisor's next reap cycle",
					pid:  pid,
				},
			}
		},
	},
}

// builtinWhitelist names the runbooks that start whitelisted into
// auto_execute rather than dry_run, per SPEC_FULL 4.3 ("whitelisted runbooks
// start in auto_execute"). Log rotation is non-destructive and reversible
// (only rotated files older than 3 days are pruned), so it is the one
// built-in safe enough to trust from first run.
var builtinWhitelist = map[string]bool{
	"rb-rotate-logs": true,
}

// SeedRunbooks inserts a starting row for every BuiltinRunbooks entry that
// isn't already in the store, so a fresh deployment has runbooks available
// to ListRunbooksForAnomaly immediately instead of escalating every anomaly
// to tier 3 until something is upserted by hand. Existing rows (and their
// graduation history) are left untouched.
func SeedRunbooks(ctx context.Context, s *store.Store, clk clock.Clock) error {
	now := clk.Now()
	for _, def := range BuiltinRunbooks {
		applies := make([]string, len(def.AppliesTo))
		for i, a := range def.AppliesTo {
			applies[i] = string(a)
		}
		mode, confidence := "dry_run", 0.0
		if builtinWhitelist[def.ID] {
			mode, confidence = "auto_execute", 0.9
		}
		rb := store.Runbook{
			ID: def.ID, Label: def.Label, AppliesTo: applies, Mode: mode, Confidence: confidence,
			AutoApproveWhitelist: builtinWhitelist[def.ID], CreatedAt: now,
		}
		if err := s.SeedRunbook(ctx, rb); err != nil {
			return fmt.Errorf("seed runbook %s: %w", def.ID, err)
		}
	}
	return nil
}

// diagnosticStep performs no system change; it exists for anomalies whose
// only safe remediation is recording what was observed (e.g. a zombie,
// which only its parent process can reap).
type diagnosticStep struct {
	id, desc, note string
	pid            int32
}

func (s diagnosticStep) ID() string             { return s.id }
func (s diagnosticStep) Description() string    { return s.desc }
func (s diagnosticStep) Timeout() time.Duration { return time.Second }

func (s diagnosticStep) DryRun(context.Context) string { return s.note }

func (s diagnosticStep) Execute(context.Context) StepResult {
	return StepResult{StepID: s.id, Status: "success", Output: s.note}
}
