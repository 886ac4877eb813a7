package healing

import (
	"context"
)

// RunOutcome is the aggregate result of running (or dry-running) a runbook.
type RunOutcome struct {
	Mode      string
	Steps     []StepResult
	AllOK     bool
	AbortedAt string // step id that failed, if AllOK is false
}

// ExecuteSteps runs steps under mode ("dry_run" | "auto_execute"). In
// dry_run every step's describe text stands in for its effect and nothing
// is ever aborted. In auto_execute each step gets its own timeout and a
// failure stops the remaining steps, per SPEC_FULL 4.3.
func ExecuteSteps(ctx context.Context, mode string, steps []RunbookStep) RunOutcome {
	out := RunOutcome{Mode: mode, AllOK: true}

	for _, step := range steps {
		if step.Timeout() <= 0 {
			out.Steps = append(out.Steps, StepResult{StepID: step.ID(), Status: "failed", Output: "step has zero timeout, rejected"})
			out.AllOK = false
			out.AbortedAt = step.ID()
			break
		}

		if mode == "dry_run" {
			stepCtx, cancel := context.WithTimeout(ctx, step.Timeout())
			text := step.DryRun(stepCtx)
			cancel()
			out.Steps = append(out.Steps, StepResult{StepID: step.ID(), Status: "success", Output: text})
			continue
		}

		stepCtx, cancel := context.WithTimeout(ctx, step.Timeout())
		result := step.Execute(stepCtx)
		cancel()
		out.Steps = append(out.Steps, result)
		if result.Status != "success" {
			out.AllOK = false
			out.AbortedAt = step.ID()
			break
		}
	}
	return out
}
