package healing

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// pidPattern rejects PID 0 and 1: a runbook step must never signal the
// kernel idle process or init.
var pidPattern = regexp.MustCompile(`^[2-9]\d*$|^1\d+$`)

// argPattern is the default per-field allowlist for dynamic step arguments
// (paths, service names, task ids): no shell metacharacters.
var argPattern = regexp.MustCompile(`^[A-Za-z0-9_./=+:-]+$`)

func validateArg(value string) (string, error) {
	if !argPattern.MatchString(value) {
		return "", fmt.Errorf("argument %q fails allowlist pattern", value)
	}
	return value, nil
}

// argvStep runs an external binary with a fixed argument vector, never
// through a shell. It is the building block every builtin runbook composes.
type argvStep struct {
	id      string
	desc    string
	timeout time.Duration
	argv    []string
}

func (s argvStep) ID() string               { return s.id }
func (s argvStep) Description() string      { return s.desc }
func (s argvStep) Timeout() time.Duration   { return s.timeout }

func (s argvStep) DryRun(context.Context) string {
	return fmt.Sprintf("would run: %s", strings.Join(s.argv, " "))
}

func (s argvStep) Execute(ctx context.Context) StepResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	out, err := cmd.CombinedOutput()
	status := "success"
	if err != nil {
		status = "failed"
		log.Warn().Err(err).Str("step_id", s.id).Msg("healing: runbook step failed")
	}
	return StepResult{
		StepID:     s.id,
		Status:     status,
		Output:     strings.TrimSpace(string(out)),
		DurationMs: time.Since(start).Milliseconds(),
	}
}

// signalStep re-validates a target PID's identity via /proc/<pid>/comm
// immediately before signaling it, mitigating the time-of-check to
// time-of-use gap between when the anomaly was detected and when the
// runbook actually runs.
type signalStep struct {
	id           string
	desc         string
	timeout      time.Duration
	pid          int32
	expectedComm string
	signal       syscall.Signal
}

func (s signalStep) ID() string             { return s.id }
func (s signalStep) Description() string    { return s.desc }
func (s signalStep) Timeout() time.Duration { return s.timeout }

func (s signalStep) DryRun(context.Context) string {
	return fmt.Sprintf("would send signal %d to pid %d (%s) after re-validating /proc/%d/comm", s.signal, s.pid, s.expectedComm, s.pid)
}

func (s signalStep) Execute(ctx context.Context) StepResult {
	start := time.Now()
	result := StepResult{StepID: s.id}

	pidStr := strconv.FormatInt(int64(s.pid), 10)
	if !pidPattern.MatchString(pidStr) {
		result.Status = "failed"
		result.Output = fmt.Sprintf("refusing to signal pid %d: fails pid allowlist", s.pid)
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", s.pid))
	if err != nil {
		result.Status = "failed"
		result.Output = fmt.Sprintf("re-validation failed: %v (process likely already exited)", err)
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}
	if got := strings.TrimSpace(string(comm)); got != s.expectedComm {
		result.Status = "failed"
		result.Output = fmt.Sprintf("TOCTOU mismatch: pid %d is now %q, expected %q; refusing to signal", s.pid, got, s.expectedComm)
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	proc, err := os.FindProcess(int(s.pid))
	if err != nil {
		result.Status = "failed"
		result.Output = err.Error()
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}
	if err := proc.Signal(s.signal); err != nil {
		result.Status = "failed"
		result.Output = err.Error()
	} else {
		result.Status = "success"
		result.Output = fmt.Sprintf("sent signal %d to pid %d (%s)", s.signal, s.pid, s.expectedComm)
	}
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

// Graduation thresholds applied by the incident manager when a dry_run
// runbook completes successfully: after GraduationCount successes it is
// promoted to auto_execute at GraduationConfidence.
const GraduationConfidence = 0.8

// graduate applies the dry-run-success counter and returns the (possibly
// promoted) runbook, ready to persist. It is pure so the promotion rule can
// be tested without a store.
func graduate(rb Runbook, graduationCount int) Runbook {
	if rb.Mode != "dry_run" {
		return rb
	}
	rb.DryRunCount++
	if rb.DryRunCount >= graduationCount {
		rb.Mode = "auto_execute"
		rb.Confidence = GraduationConfidence
	}
	return rb
}
