package trustgate

import "github.com/arcwatch/sentinel/internal/safety"

// scrubParams renders params into a single credential-scrubbed summary
// string suitable for the decision_log.tool_params_summary column.
func scrubParams(params map[string]string) string {
	raw := paramString(params)
	scrubbed, _ := safety.ScrubCredentials(raw)
	return scrubbed
}
