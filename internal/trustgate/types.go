// Package trustgate implements the risk-tiered permission system: classify
// every tool invocation, consult a per-category trust score and any active
// override, and return pass/pause/block. Outcomes feed back through an EWMA
// score updater that can promote or demote a category across its thresholds.
package trustgate

import (
	"time"

	"github.com/arcwatch/sentinel/internal/store"
)

// RiskTier is the classifier's output dimension. Immutable per invocation.
type RiskTier int

const (
	TierT1Read RiskTier = iota + 1
	TierT2Write
	TierT3Infra
	TierT4Financial
)

func (t RiskTier) String() string {
	switch t {
	case TierT1Read:
		return "T1_READ"
	case TierT2Write:
		return "T2_WRITE"
	case TierT3Infra:
		return "T3_INFRA"
	case TierT4Financial:
		return "T4_FINANCIAL"
	default:
		return "UNKNOWN"
	}
}

// GateDecision is the gate's verdict for a single check.
type GateDecision string

const (
	DecisionPass  GateDecision = "pass"
	DecisionPause GateDecision = "pause"
	DecisionBlock GateDecision = "block"
)

// Outcome values a Decision's outcome field can resolve to.
const (
	OutcomePending              = "pending"
	OutcomePass                 = "pass"
	OutcomeCorrectedMinor       = "corrected_minor"
	OutcomeCorrectedSignificant = "corrected_significant"
	OutcomeToolErrorExternal    = "tool_error_external"
)

// Override types.
const (
	OverrideGranted = "granted"
	OverrideRevoked = "revoked"
)

// Milestone types a score transition or override change can emit.
const (
	MilestoneFirstAutoApprove = "first_auto_approve"
	MilestoneTierPromotion    = "tier_promotion"
	MilestoneTierDemotion     = "tier_demotion"
	MilestoneBlocked          = "blocked"
	MilestoneOverrideGranted  = "override_granted"
	MilestoneOverrideRevoked  = "override_revoked"
)

// Reason codes attached to a Decision.
const (
	ReasonFinancialHardcap = "financial_hardcap"
	ReasonOverrideRevoked  = "override_revoked"
	ReasonOverrideGranted  = "override_granted"
	ReasonBelowFloor       = "below_floor"
	ReasonBelowThreshold   = "below_threshold"
	ReasonOK               = "ok"
	ReasonGateStorageError = "gate_storage_error"
)

// Decision is the domain alias for a persisted gate check. The storage row
// shape already matches the domain shape 1:1, so trustgate reuses it
// directly rather than introducing a parallel DTO.
type Decision = store.Decision

// Override is the domain alias for a persisted override row.
type Override = store.Override

// TrustScore is the domain alias for a persisted trust score row.
type TrustScore = store.TrustScore

// Milestone is the domain alias for a persisted trust milestone row.
type Milestone = store.Milestone

// CategoryConfig is the static, config-seeded definition of one category:
// its tier, EWMA alpha, and thresholds. Used to seed trust_scores at
// startup and as the fail-open default when a score row is missing.
type CategoryConfig struct {
	Category           string
	RiskTier           RiskTier
	InitialScore       float64
	EWMAAlpha          float64
	PromotionThreshold float64
	DemotionThreshold  float64
	Floor              float64
}

// DefaultCategories is the built-in category table. Config may extend it;
// see SPEC_FULL 3 ("fixed at system init, extensible by configuration").
func DefaultCategories(cfg AlphaConfig) []CategoryConfig {
	return []CategoryConfig{
		{Category: "read_file", RiskTier: TierT1Read, InitialScore: 0.75, EWMAAlpha: cfg.T1, PromotionThreshold: 0.6, DemotionThreshold: 0.4, Floor: 0.2},
		{Category: "exec_status", RiskTier: TierT1Read, InitialScore: 0.75, EWMAAlpha: cfg.T1, PromotionThreshold: 0.6, DemotionThreshold: 0.4, Floor: 0.2},
		{Category: "write_file", RiskTier: TierT2Write, InitialScore: 0.65, EWMAAlpha: cfg.T2, PromotionThreshold: 0.6, DemotionThreshold: 0.4, Floor: 0.25},
		{Category: "config_change", RiskTier: TierT3Infra, InitialScore: 0.55, EWMAAlpha: cfg.T3, PromotionThreshold: 0.7, DemotionThreshold: 0.5, Floor: 0.3},
		{Category: "service_restart", RiskTier: TierT3Infra, InitialScore: 0.55, EWMAAlpha: cfg.T3, PromotionThreshold: 0.7, DemotionThreshold: 0.5, Floor: 0.3},
		{Category: "sensitive_path_write", RiskTier: TierT3Infra, InitialScore: 0.55, EWMAAlpha: cfg.T3, PromotionThreshold: 0.7, DemotionThreshold: 0.5, Floor: 0.3},
		// T4 thresholds are unreachable in practice: the gate pauses on tier
		// alone before any score comparison runs (SPEC_FULL 4.2 step 3).
		{Category: "financial_augur", RiskTier: TierT4Financial, InitialScore: 0.0, EWMAAlpha: 0, PromotionThreshold: 0, DemotionThreshold: 0, Floor: 0},
		{Category: "financial_crypto", RiskTier: TierT4Financial, InitialScore: 0.0, EWMAAlpha: 0, PromotionThreshold: 0, DemotionThreshold: 0, Floor: 0},
		{Category: "financial_payment", RiskTier: TierT4Financial, InitialScore: 0.0, EWMAAlpha: 0, PromotionThreshold: 0, DemotionThreshold: 0, Floor: 0},
	}
}

// AlphaConfig carries the per-tier EWMA learning rates out of internal/config
// without creating an import cycle (config imports nothing from trustgate).
type AlphaConfig struct {
	T1, T2, T3 float64
}

func toRow(c CategoryConfig, now time.Time) TrustScore {
	return TrustScore{
		Category:           c.Category,
		RiskTier:           int(c.RiskTier),
		CurrentScore:       c.InitialScore,
		EWMAAlpha:          c.EWMAAlpha,
		InitialScore:       c.InitialScore,
		PromotionThreshold: c.PromotionThreshold,
		DemotionThreshold:  c.DemotionThreshold,
		Floor:              c.Floor,
		UpdatedAt:          now,
	}
}
