package safety

import (
	"regexp"
	"strings"
)

var (
	pemBeginRE = regexp.MustCompile(`(?m)^-----BEGIN [A-Z0-9 ][A-Z0-9 ]+-----\s*$`)
	pemEndRE   = regexp.MustCompile(`(?m)^-----END [A-Z0-9 ][A-Z0-9 ]+-----\s*$`)

	kvSecretRE = regexp.MustCompile(`(?i)\b(password|passwd|passphrase|secret|token|api[_-]?key|client[_-]?secret|private[_-]?key)\b\s*[:=]\s*(.+)$`)

	bearerRE = regexp.MustCompile(`(?i)\bauthorization\s*:\s*bearer\s+([A-Za-z0-9\-._~+/]+=*)`)

	// --password / --token style CLI flags.
	flagSecretRE = regexp.MustCompile(`(?i)(--?(?:password|passwd|token|api[_-]?key|secret)(?:=|\s+))(\S+)`)

	awsAccessKeyRE = regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`)
	jwtRE          = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`)
	githubTokenRE  = regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}\b`)
	gitlabTokenRE  = regexp.MustCompile(`\bglpat-[A-Za-z0-9_-]{20}\b`)
	slackTokenRE   = regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)
	urlCredsRE     = regexp.MustCompile(`\b([a-zA-Z][a-zA-Z0-9+.-]*://)([^\s:/@]+):([^\s@]+)@`)
	longHexRE      = regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)
	onePasswordRE  = regexp.MustCompile(`\bop://[^\s]+\b`)
	envExportRE    = regexp.MustCompile(`(?i)\bexport\s+([A-Z0-9_]*(?:KEY|TOKEN|SECRET)[A-Z0-9_]*)\s*=\s*(\S+)`)
)

// ScrubCredentials removes likely-secret material from text before it is
// stored as a Decision's tool_params_summary or handed to a transport. It is
// intentionally conservative: if a value looks sensitive, it is replaced with
// a type-labeled placeholder. Returns (scrubbed, redactionCount).
func ScrubCredentials(input string) (string, int) {
	if input == "" {
		return input, 0
	}

	lines := strings.Split(input, "\n")
	redactions := 0

	inPEM := false
	for i, line := range lines {
		if !inPEM && pemBeginRE.MatchString(line) {
			inPEM = true
			lines[i] = "[REDACTED_PEM_BLOCK]"
			redactions++
			continue
		}
		if inPEM {
			if pemEndRE.MatchString(line) {
				inPEM = false
			}
			lines[i] = ""
			continue
		}

		line = lines[i]

		if m := kvSecretRE.FindStringSubmatchIndex(line); m != nil {
			valueStart, valueEnd := m[4], m[5]
			if valueStart >= 0 && valueEnd >= 0 && valueEnd > valueStart {
				line = line[:valueStart] + "[REDACTED_SECRET]"
				redactions++
			}
		}

		if flagSecretRE.MatchString(line) {
			line = flagSecretRE.ReplaceAllString(line, "${1}[REDACTED_SECRET]")
			redactions++
		}
		if bearerRE.MatchString(line) {
			line = bearerRE.ReplaceAllString(line, "Authorization: Bearer [REDACTED_TOKEN]")
			redactions++
		}
		if envExportRE.MatchString(line) {
			line = envExportRE.ReplaceAllString(line, "export ${1}=[REDACTED_SECRET]")
			redactions++
		}
		if urlCredsRE.MatchString(line) {
			line = urlCredsRE.ReplaceAllString(line, "${1}[REDACTED_USER]:[REDACTED_PASSWORD]@")
			redactions++
		}
		if awsAccessKeyRE.MatchString(line) {
			line = awsAccessKeyRE.ReplaceAllString(line, "[REDACTED_AWS_ACCESS_KEY]")
			redactions++
		}
		if jwtRE.MatchString(line) {
			line = jwtRE.ReplaceAllString(line, "[REDACTED_JWT]")
			redactions++
		}
		if githubTokenRE.MatchString(line) {
			line = githubTokenRE.ReplaceAllString(line, "[REDACTED_GITHUB_TOKEN]")
			redactions++
		}
		if gitlabTokenRE.MatchString(line) {
			line = gitlabTokenRE.ReplaceAllString(line, "[REDACTED_GITLAB_TOKEN]")
			redactions++
		}
		if slackTokenRE.MatchString(line) {
			line = slackTokenRE.ReplaceAllString(line, "[REDACTED_SLACK_TOKEN]")
			redactions++
		}
		if onePasswordRE.MatchString(line) {
			line = onePasswordRE.ReplaceAllString(line, "[REDACTED_1PASSWORD_REF]")
			redactions++
		}
		if longHexRE.MatchString(line) {
			line = longHexRE.ReplaceAllString(line, "[REDACTED_HEX]")
			redactions++
		}

		lines[i] = line
	}

	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l == "" {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n"), redactions
}
