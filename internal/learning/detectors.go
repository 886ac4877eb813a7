package learning

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/arcwatch/sentinel/internal/bus"
	"github.com/arcwatch/sentinel/internal/clock"
)

// correctionWindow bounds how far back a correction phrase may correlate to
// a prior tool call; outside this window no event is emitted.
const correctionWindow = 5 * time.Minute

var correctionPhraseRe = regexp.MustCompile(`(?i)that'?s wrong|use \S+ instead|\boutdated\b|\bincorrect\b|not right|doesn'?t work|wrong approach`)

var fencedBlockRe = regexp.MustCompile("(?s)```.*?```")

// Detectors owns the five detection sources and feeds a shared Queue. The
// correction scanner keeps a process-local, mutex-guarded map of each
// session's most recent tool call, per SPEC_FULL 5's "process-local
// in-memory maps are owned by a single task" resource note.
type Detectors struct {
	queue *Queue
	clk   clock.Clock

	mu            sync.Mutex
	recentToolRun map[string]time.Time // session_id -> last tool call time
}

// NewDetectors builds a Detectors over queue.
func NewDetectors(queue *Queue, clk clock.Clock) *Detectors {
	return &Detectors{queue: queue, clk: clk, recentToolRun: make(map[string]time.Time)}
}

// RecordToolCall notes that sessionID just invoked a tool, feeding the
// correction scanner's correlation window.
func (d *Detectors) RecordToolCall(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recentToolRun[sessionID] = d.clk.Now()
}

// ToolError is the tool-error detection source: called on a non-zero exit
// or an error string from any tool invocation.
func (d *Detectors) ToolError(sessionID, toolName, failureDesc string) {
	d.queue.Enqueue(DetectionPayload{
		Type: "tool_error", Source: "tool_executor", FailureDesc: failureDesc,
		DetectedAt: d.clk.Now(),
		Context:    map[string]any{"session_id": sessionID, "tool_name": toolName},
	})
}

// UserMessage is the correction-scanner detection source. It ignores
// keywords found inside fenced code blocks or quoted lines, and only fires
// if sessionID had a tool call within correctionWindow.
func (d *Detectors) UserMessage(sessionID, text string) {
	scrubbed := fencedBlockRe.ReplaceAllString(text, "")
	lines := strings.Split(scrubbed, "\n")
	var candidate string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") || strings.HasPrefix(trimmed, "\"") || strings.HasPrefix(trimmed, "'") {
			continue // quoted line, not the user's own words
		}
		if correctionPhraseRe.MatchString(trimmed) {
			candidate = trimmed
			break
		}
	}
	if candidate == "" {
		return
	}

	d.mu.Lock()
	last, ok := d.recentToolRun[sessionID]
	d.mu.Unlock()
	if !ok || d.clk.Now().Sub(last) > correctionWindow {
		return // no correlated tool call within the window: no event
	}

	d.queue.Enqueue(DetectionPayload{
		Type: "correction", Source: "correction_scanner", FailureDesc: candidate, RawInput: text,
		DetectedAt: d.clk.Now(),
		Context:    map[string]any{"session_id": sessionID},
	})
}

// SOPViolation fires when a pre-action SOP hook would have been honored but
// was not (the hook engine itself is out of scope; callers report the
// violation they observed).
func (d *Detectors) SOPViolation(source, failureDesc string) {
	d.queue.Enqueue(DetectionPayload{
		Type: "sop_violation", Source: source, FailureDesc: failureDesc, DetectedAt: d.clk.Now(),
	})
}

// PipelineFailure fires on a pipeline stage fail/block transition.
func (d *Detectors) PipelineFailure(stage, failureDesc string) {
	d.queue.Enqueue(DetectionPayload{
		Type: "pipeline_failure", Source: "pipeline", FailureDesc: failureDesc, DetectedAt: d.clk.Now(),
		Context: map[string]any{"stage": stage},
	})
}

// demotionMilestones are the milestone types that count as a trust-demotion
// detection source event.
var demotionMilestones = map[string]bool{"tier_demotion": true, "blocked": true}

// SubscribeTrustDemotions wires the trust-demotion detection source to the
// bus: any milestone_emitted event naming a demotion or block is enqueued.
// Runs until ctx is cancelled; call with `go`.
func (d *Detectors) SubscribeTrustDemotions(ctx context.Context, b *bus.Bus) {
	ch := b.Subscribe(bus.TopicMilestoneEmitted)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			m, ok := ev.(bus.MilestoneEmitted)
			if !ok || !demotionMilestones[m.MilestoneType] {
				continue
			}
			d.queue.Enqueue(DetectionPayload{
				Type: "trust_demotion", Source: "trust_gate", DetectedAt: d.clk.Now(),
				FailureDesc: "trust score crossed a demotion boundary for " + m.Category,
				Context:     map[string]any{"category": m.Category, "milestone_type": m.MilestoneType, "old_score": m.OldScore, "new_score": m.NewScore},
			})
		}
	}
}
