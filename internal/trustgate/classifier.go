package trustgate

import (
	"path/filepath"
	"strings"

	"github.com/arcwatch/sentinel/internal/safety"
)

// toolTableEntry is one static tool-name → tier/category mapping.
type toolTableEntry struct {
	tier     RiskTier
	category string
}

// execToolNames identifies tools whose params represent a shell command,
// checked by the read-only exec-shape rule and the financial hardcap scan.
var execToolNames = map[string]bool{
	"exec": true, "shell": true, "bash": true, "run_command": true,
}

var toolTable = map[string]toolTableEntry{
	"read_file":   {TierT1Read, "read_file"},
	"list_dir":    {TierT1Read, "read_file"},
	"grep":        {TierT1Read, "read_file"},
	"glob":        {TierT1Read, "read_file"},
	"http_get":    {TierT1Read, "read_file"},
	"restart_service": {TierT3Infra, "service_restart"},
	"stop_service":    {TierT3Infra, "service_restart"},
	"kill_process":    {TierT3Infra, "service_restart"},
}

// pathCategoryRules maps a write target's extension to a (tier, category),
// evaluated when the tool name itself does not resolve in toolTable.
var pathCategoryRules = []struct {
	exts     []string
	tier     RiskTier
	category string
}{
	{exts: []string{".json", ".yaml", ".yml", ".toml", ".ini", ".env"}, tier: TierT3Infra, category: "config_change"},
	{exts: []string{".ts", ".tsx", ".js", ".jsx", ".md", ".py", ".go", ".rs", ".java"}, tier: TierT2Write, category: "write_file"},
}

// writeToolNames identifies tools that write content to a filesystem path,
// used to find the path argument for pathCategoryRules.
var writeToolNames = map[string]bool{
	"write_file": true, "edit_file": true, "create_file": true, "patch_file": true,
}

// Classify maps a tool invocation to (tier, category). It is pure and
// deterministic: identical (toolName, params) yield identical output across
// processes, and it never errors — malformed params fall through to the
// conservative T2 write_file default. Decision order matters: the financial
// hardcap is checked before anything else so a read-only prefix (e.g.
// "ls && augur trade ...") cannot downgrade a financial action.
func Classify(toolName string, params map[string]string) (RiskTier, string) {
	full := paramString(params)

	if pattern, ok := safety.MatchFinancialKeyword(full); ok {
		return TierT4Financial, financialCategory(pattern)
	}

	if execToolNames[toolName] {
		if cmd, ok := params["command"]; ok && safety.IsReadOnlyExecShape(cmd) {
			return TierT1Read, "exec_status"
		}
	}

	if entry, ok := toolTable[toolName]; ok {
		return entry.tier, entry.category
	}

	if writeToolNames[toolName] {
		if path, ok := params["path"]; ok {
			if sensitive, _ := safety.IsSensitivePath(path); sensitive {
				return TierT3Infra, "sensitive_path_write"
			}
			if tier, cat, matched := classifyByPath(path); matched {
				return tier, cat
			}
		}
	}

	return TierT2Write, "write_file"
}

func classifyByPath(path string) (RiskTier, string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, rule := range pathCategoryRules {
		for _, e := range rule.exts {
			if ext == e {
				return rule.tier, rule.category, true
			}
		}
	}
	return 0, "", false
}

// financialCategory groups a matched financial keyword into one of the
// three financial categories DefaultCategories seeds.
func financialCategory(pattern string) string {
	switch pattern {
	case "augur trade":
		return "financial_augur"
	case "crypto transfer":
		return "financial_crypto"
	default:
		return "financial_payment"
	}
}

func paramString(params map[string]string) string {
	if cmd, ok := params["command"]; ok {
		return cmd
	}
	var b strings.Builder
	for _, v := range params {
		b.WriteString(v)
		b.WriteByte(' ')
	}
	return b.String()
}
