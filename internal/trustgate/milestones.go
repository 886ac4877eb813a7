package trustgate

// DetectMilestones returns every milestone type the transition from old to
// new crosses for ts. Boundaries are checked independently (not mutually
// exclusive) so a single large update can emit more than one milestone —
// e.g. a score that drops below both the demotion threshold and the floor
// in the same update emits both tier_demotion and blocked.
func DetectMilestones(old, new float64, ts TrustScore) []string {
	var out []string

	if old >= ts.Floor && new < ts.Floor {
		out = append(out, MilestoneBlocked)
	}
	if old >= ts.DemotionThreshold && new < ts.DemotionThreshold {
		out = append(out, MilestoneTierDemotion)
	}
	if old < ts.PromotionThreshold && new >= ts.PromotionThreshold {
		out = append(out, MilestoneTierPromotion)
		// A climb all the way from below the demotion threshold counts as
		// the category earning auto-approve back, not a routine recovery.
		if old < ts.DemotionThreshold {
			out = append(out, MilestoneFirstAutoApprove)
		}
	}
	return out
}
