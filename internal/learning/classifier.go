package learning

import "regexp"

type classifyRule struct {
	pattern   *regexp.Regexp
	rootCause string
	targets   []string
}

// classifyRules is evaluated top-down, most specific first. The first match
// wins; an event matching nothing falls through to "unknown".
var classifyRules = []classifyRule{
	{regexp.MustCompile(`(?i)ENOENT|No such file`), "wrong_path", []string{TargetHookPattern, TargetAtom, TargetSOPPatch}},
	{regexp.MustCompile(`(?i)permission denied|EACCES`), "permissions", []string{TargetHookPattern, TargetSOPPatch}},
	{regexp.MustCompile(`(?i)command not found`), "missing_binary", []string{TargetHookPattern, TargetSynapseRelay}},
	{regexp.MustCompile(`(?i)type '.*' is not assignable to type|TS\d{4}:`), "type_error", []string{TargetRegressionTest, TargetAtom}},
}

// Classify maps a payload's failure description to a root cause and the set
// of propagation targets that should act on it. Unmatched events are routed
// to synapse_relay only, per SPEC_FULL 4.4's classifier fallthrough.
func Classify(p DetectionPayload) Classification {
	// The correction scanner already did the hard work of recognizing an
	// operator's "that's wrong" phrasing; every correction is the same root
	// cause regardless of what the corrected text says.
	if p.Type == "correction" {
		return Classification{RootCause: "incorrect_approach", Targets: []string{TargetSOPPatch, TargetAtom, TargetSynapseRelay}}
	}
	for _, rule := range classifyRules {
		if rule.pattern.MatchString(p.FailureDesc) {
			return Classification{RootCause: rule.rootCause, Targets: rule.targets}
		}
	}
	return Classification{RootCause: "unknown", Targets: []string{TargetSynapseRelay}}
}
