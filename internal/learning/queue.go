package learning

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/arcwatch/sentinel/internal/metrics"
)

// Queue is the single-producer/single-consumer bounded async drain that
// keeps detection off the caller's hot path. Enqueue never blocks: on
// overflow the oldest pending item is dropped and a warning logged, mirroring
// bus.Bus's drop-oldest overflow handling.
type Queue struct {
	ch chan DetectionPayload
}

// NewQueue builds a Queue with the given depth.
func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = 1
	}
	return &Queue{ch: make(chan DetectionPayload, depth)}
}

// Enqueue is non-blocking and synchronous from the caller's perspective: it
// always returns immediately.
func (q *Queue) Enqueue(p DetectionPayload) {
	defer metrics.LearningQueueDepth.Set(float64(len(q.ch)))

	select {
	case q.ch <- p:
		return
	default:
	}

	// Full: drop the oldest pending item to make room, rather than block
	// the detector (safety takes precedence over learning completeness).
	select {
	case <-q.ch:
		metrics.LearningQueueDrops.Inc()
		log.Warn().Str("type", p.Type).Msg("learning: queue full, dropped oldest pending detection")
	default:
	}

	select {
	case q.ch <- p:
	default:
		metrics.LearningQueueDrops.Inc()
		log.Warn().Str("type", p.Type).Msg("learning: queue still full after eviction, dropping new detection")
	}
}

// Run drains the queue in FIFO order, calling handle for each item, until
// ctx is cancelled. A panic inside handle is recovered and logged so the
// drain loop itself never dies; the spec requires the pipeline to continue
// even when a single item's processing fails.
func (q *Queue) Run(ctx context.Context, handle func(context.Context, DetectionPayload)) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-q.ch:
			metrics.LearningQueueDepth.Set(float64(len(q.ch)))
			q.safeHandle(ctx, handle, p)
		}
	}
}

func (q *Queue) safeHandle(ctx context.Context, handle func(context.Context, DetectionPayload), p DetectionPayload) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("type", p.Type).Msg("learning: detection handler panicked, item dropped")
		}
	}()
	handle(ctx, p)
}
