package trustgate

import "testing"

func TestUpdateScorePassPullsToward1(t *testing.T) {
	got := updateScore(0.5, 0.1, OutcomePass)
	want := 0.1*1.0 + 0.9*0.5
	if got != want {
		t.Fatalf("updateScore = %v, want %v", got, want)
	}
}

func TestUpdateScoreCorrectedSignificantPullsToward0(t *testing.T) {
	got := updateScore(0.5, 0.2, OutcomeCorrectedSignificant)
	want := 0.2*0.0 + 0.8*0.5
	if got != want {
		t.Fatalf("updateScore = %v, want %v", got, want)
	}
}

func TestUpdateScoreToolErrorExternalIsNeutral(t *testing.T) {
	got := updateScore(0.5, 0.3, OutcomeToolErrorExternal)
	if got != 0.5 {
		t.Fatalf("updateScore with neutral target and old==0.5 should stay 0.5, got %v", got)
	}
}

func TestUpdateScoreClampsToUnitInterval(t *testing.T) {
	hi := updateScore(0.99, 0.5, OutcomePass)
	if hi > 1 {
		t.Fatalf("score exceeded 1: %v", hi)
	}
	lo := updateScore(0.01, 0.5, OutcomeCorrectedSignificant)
	if lo < 0 {
		t.Fatalf("score went below 0: %v", lo)
	}
}

func TestUpdateScoreZeroAlphaIsInvariant(t *testing.T) {
	for _, outcome := range []string{OutcomePass, OutcomeCorrectedMinor, OutcomeCorrectedSignificant, OutcomeToolErrorExternal} {
		got := updateScore(0.0, 0, outcome)
		if got != 0.0 {
			t.Fatalf("T4 hardcap moved with outcome %s: %v", outcome, got)
		}
	}
}
