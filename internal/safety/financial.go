package safety

import "strings"

// FinancialKeywordPatterns are substrings that, if present anywhere in a
// tool's parameter string, force a T4_FINANCIAL classification regardless of
// anything else in the command (SPEC_FULL 4.1 step 1, the C1 property in
// section 8). The check runs before the read-only exec-shape shortcut so a
// prefix of harmless-looking commands cannot launder a financial action.
var FinancialKeywordPatterns = []string{
	"augur trade",
	"crypto transfer",
	"stripe charge",
	"wire transfer",
	"send payment",
	"place order",
	"buy stock",
	"sell stock",
	"withdraw funds",
	"transfer funds",
	"paypal payout",
	"bank transfer",
}

// MatchFinancialKeyword returns the matched pattern and true if text contains
// any financial keyword, case-insensitively.
func MatchFinancialKeyword(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, pattern := range FinancialKeywordPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return pattern, true
		}
	}
	return "", false
}
