package errormem

import (
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

type ActionKind string

const (
	ActionCreate     ActionKind = "create"
	ActionValidate   ActionKind = "validate"
	ActionConfig     ActionKind = "config"
	ActionPermission ActionKind = "permission"
	ActionInstall    ActionKind = "install"
	ActionManual     ActionKind = "manual"
)

// Remediation is an actionable suggestion attached to an error.
type Remediation struct {
	Suggestion  string     `json:"suggestion"`
	Severity    Severity   `json:"severity"`
	Action      ActionKind `json:"action_kind"`
	AutoFixable bool       `json:"auto_fixable"`
}

// pattern matches when all keywords appear in the error message
// (case-insensitive) and the optional tool/operation filters hold.
// First matching pattern wins.
type pattern struct {
	keywords    []string
	tool        string
	operation   string
	suggestion  string
	severity    Severity
	action      ActionKind
	autoFixable bool
}

var catalog = []pattern{
	{
		keywords:    []string{"no such file"},
		suggestion:  "File {path} does not exist. Create it first or verify the path.",
		severity:    SeverityMedium,
		action:      ActionCreate,
		autoFixable: true,
	},
	{
		keywords:    []string{"not found"},
		tool:        "read_file",
		suggestion:  "File {path} does not exist. Create it first or verify the path.",
		severity:    SeverityMedium,
		action:      ActionCreate,
		autoFixable: true,
	},
	{
		keywords:   []string{"permission denied"},
		suggestion: "Permission denied on {path}. Check ownership and mode, or adjust blocked_paths.",
		severity:   SeverityHigh,
		action:     ActionPermission,
	},
	{
		keywords:   []string{"too large"},
		suggestion: "File {path} is {file_size} bytes, over the {max_size} byte limit. Raise max_file_size_mb or read a line range.",
		severity:   SeverityMedium,
		action:     ActionConfig,
	},
	{
		keywords:   []string{"extension", "not allowed"},
		suggestion: "Extension {extension} is not permitted. Add it to allowed_extensions if intended.",
		severity:   SeverityMedium,
		action:     ActionConfig,
	},
	{
		keywords:   []string{"escapes working directory"},
		suggestion: "Path {path} resolves outside the workspace. Move the target under working_directory.",
		severity:   SeverityHigh,
		action:     ActionValidate,
	},
	{
		keywords:   []string{"not whitelisted"},
		suggestion: "The command is not in command_whitelist. Add it there if it should be permitted.",
		severity:   SeverityHigh,
		action:     ActionConfig,
	},
	{
		keywords:   []string{"dangerous command"},
		suggestion: "The command matches dangerous_commands_blocklist and is always refused.",
		severity:   SeverityHigh,
		action:     ActionManual,
	},
	{
		keywords:    []string{"command not found"},
		suggestion:  "The executable is missing. Install it or fix PATH.",
		severity:    SeverityMedium,
		action:      ActionInstall,
		autoFixable: true,
	},
	{
		keywords:   []string{"timed out"},
		suggestion: "The operation exceeded its deadline. Increase command_timeout_seconds or narrow the work.",
		severity:   SeverityMedium,
		action:     ActionConfig,
	},
	{
		keywords:   []string{"invalid", "json"},
		suggestion: "The arguments were not valid JSON. Re-emit the call with a well-formed object.",
		severity:   SeverityMedium,
		action:     ActionValidate,
	},
	{
		keywords:   []string{"rate limit"},
		suggestion: "The endpoint is rate limited. Lower rate_limit_rpm or wait before retrying.",
		severity:   SeverityLow,
		action:     ActionConfig,
	},
}

// Remediate matches an event against the catalog. Every error yields
// a suggestion: events no pattern covers get a per-tool generic
// fallback.
func Remediate(event Event) Remediation {
	lower := strings.ToLower(event.Message)

	for _, p := range catalog {
		if p.tool != "" && p.tool != event.Tool {
			continue
		}
		if p.operation != "" && p.operation != event.Operation {
			continue
		}
		allFound := true
		for _, kw := range p.keywords {
			if !strings.Contains(lower, kw) {
				allFound = false
				break
			}
		}
		if !allFound {
			continue
		}
		return Remediation{
			Suggestion:  substitute(p.suggestion, event.Meta),
			Severity:    p.severity,
			Action:      p.action,
			AutoFixable: p.autoFixable,
		}
	}

	return Remediation{
		Suggestion: fmt.Sprintf("Review the %s arguments and retry. Error: %s", event.Tool, event.Message),
		Severity:   SeverityLow,
		Action:     ActionManual,
	}
}

// substitute replaces {key} placeholders from the event metadata.
// Unresolved placeholders are left in place.
func substitute(template string, meta map[string]any) string {
	out := template
	for k, v := range meta {
		out = strings.ReplaceAll(out, "{"+k+"}", fmt.Sprint(v))
	}
	return out
}
