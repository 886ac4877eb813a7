package healing

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/arcwatch/sentinel/internal/bus"
	"github.com/arcwatch/sentinel/internal/clock"
	"github.com/arcwatch/sentinel/internal/metrics"
	"github.com/arcwatch/sentinel/internal/store"
)

// EngineConfig carries the tunables the engine needs from internal/config,
// passed explicitly by the caller rather than imported directly, matching
// trustgate.AlphaConfig's seam.
type EngineConfig struct {
	AutoExecuteConfidence  float64
	RunbookGraduationCount int
}

// Engine wires the probe registry's readings through classification,
// incident dedup, runbook execution, and escalation.
type Engine struct {
	store      *store.Store
	clk        clock.Clock
	bus        *bus.Bus
	cfgMu      sync.RWMutex
	cfg        EngineConfig
	escalator  *Escalator
	definitions map[string]RunbookDefinition
	probes     map[string]HealthProbe
}

// SetConfig swaps in a new EngineConfig, letting config.Watcher propagate a
// hot-reloaded AutoExecuteConfidence or RunbookGraduationCount without a
// restart.
func (e *Engine) SetConfig(cfg EngineConfig) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.cfg = cfg
}

func (e *Engine) config() EngineConfig {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// NewEngine builds an Engine. probes is indexed by SourceID so handleIncident
// can re-poll the originating source after remediation to verify recovery.
func NewEngine(s *store.Store, clk clock.Clock, b *bus.Bus, cfg EngineConfig, escalator *Escalator, probes []HealthProbe) *Engine {
	defs := make(map[string]RunbookDefinition, len(BuiltinRunbooks))
	for _, d := range BuiltinRunbooks {
		defs[d.ID] = d
	}
	byID := make(map[string]HealthProbe, len(probes))
	for _, p := range probes {
		byID[p.SourceID()] = p
	}
	return &Engine{store: s, clk: clk, bus: b, cfg: cfg, escalator: escalator, definitions: defs, probes: byID}
}

// OnReading is the Registry callback: classify, dedup into incidents, and
// drive newly-detected ones through the remediation loop.
func (e *Engine) OnReading(ctx context.Context, reading SourceReading) {
	anomalies := Classify(reading, func() string { return uuid.NewString() }, e.clk.Now())
	for _, a := range anomalies {
		result, err := store.WithTxResult(ctx, e.store, func(tx *sql.Tx) (upsertResult, error) {
			return upsertIncident(ctx, tx, e.clk, a)
		})
		if err != nil {
			log.Error().Err(err).Str("anomaly_type", string(a.AnomalyType)).Msg("healing: upsert incident failed")
			continue
		}
		if result.skipped {
			continue
		}
		if result.isNew {
			e.handleIncident(ctx, result.incident, a)
		}
	}
}

// handleIncident implements SPEC_FULL 4.3's handleIncident procedure.
func (e *Engine) handleIncident(ctx context.Context, inc Incident, anomaly HealthAnomaly) {
	inc, err := e.transition(ctx, inc, StateDiagnosing, "looking up runbook")
	if err != nil {
		log.Error().Err(err).Str("incident_id", inc.ID).Msg("healing: transition to diagnosing failed")
		return
	}

	rb, def, found := e.resolveRunbook(ctx, inc, anomaly)
	if !found {
		tier := decideTier(anomaly.Severity, "", 0, e.config().AutoExecuteConfidence, false, true, false)
		e.escalateAndStop(ctx, inc, anomaly, tier, nil)
		return
	}

	steps := def.Build(anomaly)
	if len(steps) == 0 {
		tier := decideTier(anomaly.Severity, "", 0, e.config().AutoExecuteConfidence, false, true, false)
		e.escalateAndStop(ctx, inc, anomaly, tier, nil)
		return
	}
	tier := decideTier(anomaly.Severity, rb.Mode, rb.Confidence, e.config().AutoExecuteConfidence, false, false, def.Destructive)

	if tier == TierProposedAwaitApproval {
		proposed := make([]string, 0, len(steps))
		for _, s := range steps {
			proposed = append(proposed, s.DryRun(ctx))
		}
		e.escalateAndStop(ctx, inc, anomaly, tier, proposed)
		return
	}

	inc, err = e.transition(ctx, inc, StateRemediating, "executing "+rb.ID)
	if err != nil {
		log.Error().Err(err).Str("incident_id", inc.ID).Msg("healing: transition to remediating failed")
		return
	}

	outcome := ExecuteSteps(ctx, rb.Mode, steps)
	e.recordRunbookRun(ctx, rb, outcome.AllOK)

	if !outcome.AllOK {
		failTier := decideTier(anomaly.Severity, rb.Mode, rb.Confidence, e.config().AutoExecuteConfidence, true, false, def.Destructive)
		e.escalateAndStop(ctx, inc, anomaly, failTier, nil)
		return
	}

	inc, err = e.transition(ctx, inc, StateVerifying, "post-execution re-probe")
	if err != nil {
		log.Error().Err(err).Str("incident_id", inc.ID).Msg("healing: transition to verifying failed")
		return
	}

	if e.verifyRecovered(ctx, anomaly.SourceID) {
		e.transitionAndPublish(ctx, inc, StateResolved, "re-probe shows healthy")
		return
	}

	escTier := decideTier(anomaly.Severity, rb.Mode, rb.Confidence, e.config().AutoExecuteConfidence, true, false, def.Destructive)
	e.escalateAndStop(ctx, inc, anomaly, escTier, nil)
}

func (e *Engine) resolveRunbook(ctx context.Context, inc Incident, anomaly HealthAnomaly) (Runbook, RunbookDefinition, bool) {
	if inc.RunbookID != "" {
		if rb, err := e.store.GetRunbook(ctx, inc.RunbookID); err == nil {
			if def, ok := e.definitions[rb.ID]; ok {
				return rb, def, true
			}
		}
	}
	candidates, err := e.store.ListRunbooksForAnomaly(ctx, string(anomaly.AnomalyType))
	if err != nil || len(candidates) == 0 {
		return Runbook{}, RunbookDefinition{}, false
	}
	for _, rb := range candidates {
		if def, ok := e.definitions[rb.ID]; ok {
			return rb, def, true
		}
	}
	return Runbook{}, RunbookDefinition{}, false
}

func (e *Engine) recordRunbookRun(ctx context.Context, rb Runbook, succeeded bool) {
	now := e.clk.Now()
	rb.LastExecutedAt = &now
	if succeeded {
		rb.LastSucceededAt = &now
		if !rb.AutoApproveWhitelist {
			rb = graduate(rb, e.config().RunbookGraduationCount)
		}
	}
	if err := e.store.UpsertRunbook(ctx, rb); err != nil {
		log.Warn().Err(err).Str("runbook_id", rb.ID).Msg("healing: failed to persist runbook run")
	}
}

func (e *Engine) verifyRecovered(ctx context.Context, sourceID string) bool {
	probe, ok := e.probes[sourceID]
	if !ok {
		return true
	}
	reading, err := probe.Poll(ctx)
	if err != nil {
		return false
	}
	return len(Classify(reading, func() string { return uuid.NewString() }, e.clk.Now())) == 0
}

func (e *Engine) escalateAndStop(ctx context.Context, inc Incident, anomaly HealthAnomaly, tier EscalationTier, proposed []string) {
	inc.EscalationTier = int(tier)
	now := e.clk.Now()
	inc.EscalatedAt = &now
	inc, err := e.transition(ctx, inc, StateEscalated, fmt.Sprintf("escalation tier %d", tier))
	if err != nil {
		log.Error().Err(err).Str("incident_id", inc.ID).Msg("healing: transition to escalated failed")
		return
	}
	if e.escalator != nil {
		if err := e.escalator.Route(ctx, tier, inc, anomaly, proposed); err != nil {
			log.Warn().Err(err).Str("incident_id", inc.ID).Msg("healing: escalation notify failed")
		}
	}
}

func (e *Engine) transition(ctx context.Context, inc Incident, newState, reason string) (Incident, error) {
	from := inc.State
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		return transitionTx(ctx, tx, e.clk, &inc, newState, reason)
	})
	if err != nil {
		return inc, err
	}
	metrics.Incidents.WithLabelValues(inc.AnomalyType, inc.State).Inc()
	publishIncidentTransition(e.bus, inc, from, reason)
	return inc, nil
}

func (e *Engine) transitionAndPublish(ctx context.Context, inc Incident, newState, reason string) {
	if _, err := e.transition(ctx, inc, newState, reason); err != nil {
		log.Error().Err(err).Str("incident_id", inc.ID).Msg("healing: final transition failed")
	}
}
