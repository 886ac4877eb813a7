package trustgate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arcwatch/sentinel/internal/bus"
	"github.com/arcwatch/sentinel/internal/clock"
	"github.com/arcwatch/sentinel/internal/idgen"
	"github.com/arcwatch/sentinel/internal/metrics"
	"github.com/arcwatch/sentinel/internal/store"
	"github.com/rs/zerolog/log"
)

// FeedbackWindow is how long a PASS decision waits for an outcome before
// the reaper resolves it to a default pass.
const DefaultFeedbackWindow = 10 * time.Minute

// ErrAlreadyResolved is returned when ResolveOutcome targets a decision
// whose outcome has already transitioned out of pending.
var ErrAlreadyResolved = errors.New("trustgate: decision already resolved")

// Gate is the Trust Gate: classify, decide, persist, and later resolve the
// outcome of every gated tool invocation.
type Gate struct {
	store          *store.Store
	clock          clock.Clock
	idgen          idgenerator
	bus            *bus.Bus
	fwMu           sync.RWMutex
	feedbackWindow time.Duration
	categories     map[string]CategoryConfig
}

// SetFeedbackWindow updates the pending-outcome feedback window, letting
// config.Watcher propagate a hot-reloaded value without a restart.
func (g *Gate) SetFeedbackWindow(d time.Duration) {
	g.fwMu.Lock()
	defer g.fwMu.Unlock()
	g.feedbackWindow = d
}

func (g *Gate) getFeedbackWindow() time.Duration {
	g.fwMu.RLock()
	defer g.fwMu.RUnlock()
	return g.feedbackWindow
}

// idgenerator is the minimal seam Gate needs from internal/idgen, narrowed
// to a single method so tests can stub it deterministically.
type idgenerator interface {
	UUID() string
}

type realIDGen struct{}

func (realIDGen) UUID() string { return idgen.UUID() }

// New builds a Gate over store, seeding trust_scores for every category on
// first run (idempotent: SeedTrustScore no-ops if the row already exists).
func New(ctx context.Context, s *store.Store, clk clock.Clock, b *bus.Bus, categories []CategoryConfig, feedbackWindow time.Duration) (*Gate, error) {
	g := &Gate{
		store:          s,
		clock:          clk,
		idgen:          realIDGen{},
		bus:            b,
		feedbackWindow: feedbackWindow,
		categories:     make(map[string]CategoryConfig, len(categories)),
	}
	now := clk.Now()
	for _, c := range categories {
		g.categories[c.Category] = c
		if err := s.SeedTrustScore(ctx, toRow(c, now)); err != nil {
			return nil, fmt.Errorf("seed trust score %s: %w", c.Category, err)
		}
		metrics.TrustScore.WithLabelValues(c.Category).Set(c.InitialScore)
	}
	return g, nil
}

// Check classifies and gates a single tool invocation, persisting a
// Decision row and, for pass decisions, a PendingOutcome.
func (g *Gate) Check(ctx context.Context, sessionID, toolName string, params map[string]string) (Decision, error) {
	tier, category := Classify(toolName, params)
	now := g.clock.Now()

	decision := Decision{
		DecisionID:        g.idgen.UUID(),
		SessionID:         sessionID,
		ToolName:          toolName,
		ToolParamsHash:    hashParams(params),
		ToolParamsSummary: scrubParams(params),
		RiskTier:          int(tier),
		Category:          category,
		Timestamp:         now,
		Outcome:           OutcomePending,
	}

	if tier == TierT4Financial {
		decision.GateDecision = string(DecisionPause)
		decision.Reason = ReasonFinancialHardcap
		if err := g.persistDecision(ctx, decision); err != nil {
			return Decision{}, err
		}
		metrics.GateDecisions.WithLabelValues(tier.String(), decision.GateDecision).Inc()
		return decision, nil
	}

	err := g.store.WithTx(ctx, func(tx *sql.Tx) error {
		override, hasOverride, err := store.GetActiveOverrideTx(ctx, tx, category, now)
		if err != nil {
			return fmt.Errorf("read active override: %w", err)
		}

		score, err := store.GetTrustScoreTx(ctx, tx, category)
		if err == store.ErrNotFound {
			score = toRow(g.defaultFor(category, tier), now)
		} else if err != nil {
			return fmt.Errorf("read trust score: %w", err)
		}
		decision.TrustScoreAtDecision = score.CurrentScore

		switch {
		case hasOverride && override.OverrideType == OverrideRevoked:
			decision.GateDecision = string(DecisionBlock)
			decision.Reason = ReasonOverrideRevoked
		case hasOverride && override.OverrideType == OverrideGranted:
			decision.GateDecision = string(DecisionPass)
			decision.Reason = ReasonOverrideGranted
			decision.OverrideActive = true
		case score.CurrentScore < score.Floor:
			decision.GateDecision = string(DecisionBlock)
			decision.Reason = ReasonBelowFloor
		case score.CurrentScore < score.PromotionThreshold:
			decision.GateDecision = string(DecisionPause)
			decision.Reason = ReasonBelowThreshold
		default:
			decision.GateDecision = string(DecisionPass)
			decision.Reason = ReasonOK
		}

		if err := store.InsertDecisionTx(ctx, tx, decision); err != nil {
			return err
		}
		if decision.GateDecision == string(DecisionPass) {
			if err := store.InsertPendingOutcomeTx(ctx, tx, decision.DecisionID, now.Add(g.getFeedbackWindow())); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("category", category).Msg("trustgate: gate storage failure, downgrading to pause")
		decision.GateDecision = string(DecisionPause)
		decision.Reason = ReasonGateStorageError
		metrics.GateDecisions.WithLabelValues(tier.String(), decision.GateDecision).Inc()
		return decision, nil
	}

	metrics.GateDecisions.WithLabelValues(tier.String(), decision.GateDecision).Inc()
	return decision, nil
}

// defaultFor returns the static config for category, falling back to a
// conservative T2 shape if category was never registered (should not
// happen in practice since the classifier's output space is closed).
func (g *Gate) defaultFor(category string, tier RiskTier) CategoryConfig {
	if c, ok := g.categories[category]; ok {
		return c
	}
	return CategoryConfig{Category: category, RiskTier: tier, InitialScore: 0.65, EWMAAlpha: 0.1, PromotionThreshold: 0.6, DemotionThreshold: 0.4, Floor: 0.25}
}

func (g *Gate) persistDecision(ctx context.Context, d Decision) error {
	if err := g.store.InsertDecision(ctx, d); err != nil {
		log.Error().Err(err).Str("decision_id", d.DecisionID).Msg("trustgate: failed to persist decision")
		return err
	}
	return nil
}

// ResolveOutcome atomically resolves decisionID to outcome, updates the
// category's EWMA score, emits any crossed milestones, and publishes a
// decision_resolved event on the bus.
func (g *Gate) ResolveOutcome(ctx context.Context, decisionID, outcome, trigger string) error {
	now := g.clock.Now()
	var (
		category           string
		oldScore, newScore float64
		milestones         []string
	)

	err := g.store.WithTx(ctx, func(tx *sql.Tx) error {
		d, err := store.GetDecisionTx(ctx, tx, decisionID)
		if err != nil {
			return err
		}
		if d.Outcome != OutcomePending {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, decisionID, d.Outcome)
		}
		category = d.Category

		if err := store.SetDecisionOutcomeTx(ctx, tx, decisionID, outcome); err != nil {
			return err
		}
		if err := store.DeletePendingOutcomeTx(ctx, tx, decisionID); err != nil {
			return err
		}

		score, err := store.GetTrustScoreTx(ctx, tx, category)
		if err != nil {
			return fmt.Errorf("read trust score for outcome: %w", err)
		}
		oldScore = score.CurrentScore
		newScore = updateScore(oldScore, score.EWMAAlpha, outcome)

		if err := store.UpdateTrustScoreTx(ctx, tx, category, newScore, now); err != nil {
			return err
		}

		milestones = DetectMilestones(oldScore, newScore, score)
		for _, mt := range milestones {
			m := Milestone{
				MilestoneID:   g.idgen.UUID(),
				Category:      category,
				MilestoneType: mt,
				OldScore:      oldScore,
				NewScore:      newScore,
				Trigger:       trigger,
				Timestamp:     now,
			}
			if err := store.InsertMilestoneTx(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.TrustScore.WithLabelValues(category).Set(newScore)

	if g.bus != nil {
		g.bus.Publish(bus.TopicDecisionResolved, bus.DecisionResolved{
			DecisionID: decisionID, Category: category, OldScore: oldScore, NewScore: newScore, Outcome: outcome,
		})
		for _, mt := range milestones {
			g.bus.Publish(bus.TopicMilestoneEmitted, bus.MilestoneEmitted{
				Category: category, MilestoneType: mt, OldScore: oldScore, NewScore: newScore,
			})
		}
	}
	return nil
}

// ReapExpiredPendingOutcomes resolves every PendingOutcome whose feedback
// window has elapsed as of now to a default "pass" outcome.
func (g *Gate) ReapExpiredPendingOutcomes(ctx context.Context, now time.Time) (int, error) {
	ids, err := g.store.ExpiredPendingOutcomes(ctx, now)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, id := range ids {
		if err := g.ResolveOutcome(ctx, id, OutcomePass, "feedback_window_expired"); err != nil {
			log.Warn().Err(err).Str("decision_id", id).Msg("trustgate: failed to reap expired pending outcome")
			continue
		}
		resolved++
	}
	return resolved, nil
}

// hashParams hashes params deterministically: map iteration order is
// randomized per-process, so keys are sorted before hashing.
func hashParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(params[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
