package healing

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Registry schedules a set of HealthProbes on their own periodic timers,
// with an initial jitter to avoid a thundering herd on startup. One probe's
// latency never delays another: each runs in its own goroutine.
type Registry struct {
	probes    []HealthProbe
	jitterMax time.Duration
	onReading func(ctx context.Context, r SourceReading)
}

// NewRegistry builds a Registry over probes. onReading is called from
// whichever probe's goroutine produced the reading; it must be safe for
// concurrent use.
func NewRegistry(probes []HealthProbe, jitterMax time.Duration, onReading func(ctx context.Context, r SourceReading)) *Registry {
	return &Registry{probes: probes, jitterMax: jitterMax, onReading: onReading}
}

// Run starts every probe's polling loop and blocks until ctx is cancelled
// or a probe's loop returns a non-nil error (probe poll errors themselves
// are logged and do not stop the loop; only a panic-level failure would).
func (r *Registry) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range r.probes {
		p := p
		g.Go(func() error {
			r.runProbe(ctx, p)
			return nil
		})
	}
	return g.Wait()
}

func (r *Registry) runProbe(ctx context.Context, p HealthProbe) {
	jitter := time.Duration(0)
	if r.jitterMax > 0 {
		jitter = time.Duration(rand.Int63n(int64(r.jitterMax)))
	}
	timer := time.NewTimer(jitter)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		reading, err := p.Poll(ctx)
		if err != nil {
			log.Warn().Err(err).Str("source_id", p.SourceID()).Msg("healing: probe poll failed")
		} else if r.onReading != nil {
			r.onReading(ctx, reading)
		}

		timer.Reset(p.PollInterval())
	}
}
