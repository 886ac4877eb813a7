package learning

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/arcwatch/sentinel/internal/clock"
	"github.com/arcwatch/sentinel/internal/idgen"
	"github.com/arcwatch/sentinel/internal/metrics"
	"github.com/arcwatch/sentinel/internal/notify"
)

// pipelineStore is the narrow *store.Store surface Pipeline needs.
type pipelineStore interface {
	InsertFailureEvent(ctx context.Context, f FailureEvent) error
	InsertPropagationRecord(ctx context.Context, p PropagationRecord) error
	SetFailurePropagationStatus(ctx context.Context, id, status string) error
}

// Pipeline wires the consumer side of the real-time learning loop: classify,
// fan out to propagators in parallel, persist each result, then check for
// recurrence. Detectors feed it via the shared Queue; call Run in its own
// goroutine.
type Pipeline struct {
	Queue       *Queue
	Store       pipelineStore
	Clock       clock.Clock
	Transport   notify.Transport
	Propagators []Propagator
	Recurrence  *RecurrenceDetector
}

// Run drains the queue until ctx is cancelled, processing each payload
// through classify -> persist -> propagate -> recurrence check.
func (p *Pipeline) Run(ctx context.Context) {
	p.Queue.Run(ctx, p.handle)
}

func (p *Pipeline) handle(ctx context.Context, payload DetectionPayload) {
	class := Classify(payload)

	f := FailureEvent{
		ID:                idgen.UUID(),
		DetectedAt:        payload.DetectedAt,
		Type:              payload.Type,
		Tier:              payload.Tier,
		Source:            payload.Source,
		FailureDesc:       payload.FailureDesc,
		RawInput:          payload.RawInput,
		RootCause:         class.RootCause,
		PropagationStatus: "pending",
	}
	if payload.Context != nil {
		f.Context = fmt.Sprintf("%v", payload.Context)
	}

	if err := p.Store.InsertFailureEvent(ctx, f); err != nil {
		log.Error().Err(err).Str("failure_id", f.ID).Msg("learning: failed to persist failure event")
		return
	}

	allOK := p.propagate(ctx, f, class)

	status := "propagated"
	if !allOK {
		status = "failed"
	}
	if err := p.Store.SetFailurePropagationStatus(ctx, f.ID, status); err != nil {
		log.Error().Err(err).Str("failure_id", f.ID).Msg("learning: failed to set propagation status")
	}

	if p.Recurrence == nil {
		return
	}
	count, err := p.Recurrence.Check(ctx, f, class, p.Clock.Now())
	if err != nil {
		log.Error().Err(err).Str("failure_id", f.ID).Msg("learning: recurrence check failed")
		return
	}
	if count > 0 && p.Transport != nil {
		if err := RelayUrgent(ctx, p.Transport, f, class, count); err != nil {
			log.Error().Err(err).Str("failure_id", f.ID).Msg("learning: recurrence relay failed")
		}
	}
}

// propagate fans f out to every propagator whose Target() is named in
// class.Targets, running them in parallel (each target independently
// success/failure recorded, per SPEC_FULL 4.4), and returns whether every
// fanned-out propagator succeeded.
func (p *Pipeline) propagate(ctx context.Context, f FailureEvent, class Classification) bool {
	wanted := make(map[string]bool, len(class.Targets))
	for _, t := range class.Targets {
		wanted[t] = true
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allOK := true

	for _, prop := range p.Propagators {
		if !wanted[prop.Target()] {
			continue
		}
		prop := prop
		wg.Add(1)
		go func() {
			defer wg.Done()
			propagatedAt := p.Clock.Now()
			detail, err := prop.Propagate(ctx, f, class)
			metrics.PropagationLatency.WithLabelValues(prop.Target()).Observe(propagatedAt.Sub(f.DetectedAt).Seconds())
			success := err == nil
			if !success {
				detail = err.Error()
				mu.Lock()
				allOK = false
				mu.Unlock()
				log.Error().Err(err).Str("failure_id", f.ID).Str("target", prop.Target()).Msg("learning: propagation failed")
			}
			rec := PropagationRecord{
				ID: idgen.UUID(), FailureID: f.ID, Target: prop.Target(),
				Success: success, Detail: detail, Timestamp: p.Clock.Now(),
			}
			if err := p.Store.InsertPropagationRecord(ctx, rec); err != nil {
				log.Error().Err(err).Str("failure_id", f.ID).Str("target", prop.Target()).Msg("learning: failed to record propagation result")
			}
		}()
	}
	wg.Wait()
	return allOK
}
