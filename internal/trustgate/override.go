package trustgate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/arcwatch/sentinel/internal/bus"
	"github.com/arcwatch/sentinel/internal/store"
)

// ErrNonInteractiveSession is returned when SetOverride is called from a
// session that fails the interactive check (H1 security gate).
var ErrNonInteractiveSession = errors.New("trustgate: overrides may only be set from an interactive session")

// ErrMalformedDuration is returned for a duration string that does not
// parse as one of the accepted short forms.
var ErrMalformedDuration = errors.New("trustgate: malformed override duration")

// nonInteractiveSessionPattern matches session ids that must never be
// allowed to grant or revoke an override: pipeline runs, subagents, and
// isolated worktree sessions. Only a human-attached interactive session
// passes.
var nonInteractiveSessionPattern = regexp.MustCompile(`^(pipeline|subagent|isolated)-`)

// isInteractiveSession reports whether sessionID may set overrides.
func isInteractiveSession(sessionID string) bool {
	return !nonInteractiveSessionPattern.MatchString(sessionID)
}

// shortDurationPattern accepts the "30m" / "4h" / "2d" syntax SPEC_FULL 4.2
// names for override expiry.
var shortDurationPattern = regexp.MustCompile(`^(\d+)(m|h|d)$`)

// parseShortDuration parses a short human duration string. It intentionally
// does not delegate to time.ParseDuration, which accepts forms like "1.5h"
// or "100ns" that this syntax does not.
func parseShortDuration(s string) (time.Duration, error) {
	m := shortDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedDuration, s)
	}
	var n int
	if _, err := fmt.Sscanf(m[1], "%d", &n); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedDuration, s)
	}
	switch m[2] {
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrMalformedDuration, s)
	}
}

// SetOverride grants or revokes an override for category from sessionID.
// duration is optional short-syntax ("30m", "4h", "2d"); an empty string
// means no expiry. It deactivates any prior override for the category in
// the same transaction (the single-active-override invariant) before
// inserting the replacement, and emits the corresponding milestone.
func (g *Gate) SetOverride(ctx context.Context, category, overrideType, reason, sessionID, duration string) error {
	if !isInteractiveSession(sessionID) {
		return ErrNonInteractiveSession
	}
	if overrideType != OverrideGranted && overrideType != OverrideRevoked {
		return fmt.Errorf("trustgate: invalid override type %q", overrideType)
	}

	var expiresAt *time.Time
	if duration != "" {
		d, err := parseShortDuration(duration)
		if err != nil {
			return err
		}
		t := g.clock.Now().Add(d)
		expiresAt = &t
	}

	now := g.clock.Now()
	override := Override{
		OverrideID:         g.idgen.UUID(),
		Category:           category,
		OverrideType:       overrideType,
		Reason:             reason,
		GrantedBy:          sessionID,
		GrantedFromSession: sessionID,
		ExpiresAt:          expiresAt,
		Active:             true,
		CreatedAt:          now,
	}

	milestoneType := MilestoneOverrideGranted
	if overrideType == OverrideRevoked {
		milestoneType = MilestoneOverrideRevoked
	}

	var currentScore float64
	err := g.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.DeactivateOverridesTx(ctx, tx, category); err != nil {
			return err
		}
		if err := store.InsertOverrideTx(ctx, tx, override); err != nil {
			return err
		}
		score, err := store.GetTrustScoreTx(ctx, tx, category)
		if err != nil && err != store.ErrNotFound {
			return fmt.Errorf("read trust score for override milestone: %w", err)
		}
		currentScore = score.CurrentScore
		m := Milestone{
			MilestoneID:   g.idgen.UUID(),
			Category:      category,
			MilestoneType: milestoneType,
			OldScore:      currentScore,
			NewScore:      currentScore,
			Trigger:       reason,
			Timestamp:     now,
		}
		return store.InsertMilestoneTx(ctx, tx, m)
	})
	if err != nil {
		return err
	}

	if g.bus != nil {
		g.bus.Publish(bus.TopicMilestoneEmitted, bus.MilestoneEmitted{
			Category: category, MilestoneType: milestoneType, OldScore: currentScore, NewScore: currentScore,
		})
	}
	return nil
}
