package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// pentestScanners maps the allowed scan kinds to their command lines.
// Only read-only reconnaissance commands belong here.
var pentestScanners = map[string][]string{
	"port_scan":    {"nmap", "-Pn", "-T4", "--top-ports", "100"},
	"service_scan": {"nmap", "-Pn", "-sV", "--top-ports", "20"},
	"dns_lookup":   {"dig", "+short", "ANY"},
	"whois":        {"whois"},
	"headers":      {"curl", "-sI", "--max-time", "15"},
}

// PentestTool runs whitelisted reconnaissance scanners against a
// target the operator has authorized. It is PRIVILEGED, so every
// invocation goes through confirmation regardless of mode.
type PentestTool struct {
	timeout time.Duration
}

func NewPentestTool(timeoutSeconds int) *PentestTool {
	return &PentestTool{timeout: time.Duration(timeoutSeconds) * time.Second}
}

func (t *PentestTool) GetInfo() ToolInfo {
	kinds := make([]string, 0, len(pentestScanners))
	for k := range pentestScanners {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return ToolInfo{
		Name: "pentest",
		Description: "Run a whitelisted reconnaissance scan (nmap, dig, whois, curl headers) " +
			"against an authorized target.",
		Danger: DangerPrivileged,
		Parameters: []ToolParameter{
			{Name: "scan", Type: "string", Description: "Scanner to run", Enum: kinds, Required: true},
			{Name: "target", Type: "string", Description: "Host, domain or URL to scan", Required: true},
		},
	}
}

// AssessRisk keeps privileged scans on the confirmation path even under
// a permissive policy.
func (t *PentestTool) AssessRisk(args map[string]any) (bool, string) {
	target, _ := args["target"].(string)
	return true, fmt.Sprintf("network scan against %s", target)
}

func (t *PentestTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	start := time.Now()
	scan, _ := args["scan"].(string)
	target, _ := args["target"].(string)
	meta := map[string]any{"scan": scan, "target": target, "operation": scan}

	base, ok := pentestScanners[scan]
	if !ok {
		return blockedResult("pentest", fmt.Sprintf("scan kind %q not whitelisted", scan), start, meta), nil
	}
	if err := validateTarget(target); err != nil {
		return errorResult("pentest", err.Error(), start, meta), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	argv := append(append([]string{}, base...), target)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return ToolResult{
			Status:        StatusTimeout,
			Error:         fmt.Sprintf("scan timed out after %s", t.timeout),
			Output:        out.String(),
			ToolName:      "pentest",
			ExecutionTime: time.Since(start),
			Metadata:      meta,
		}, nil
	}
	if err != nil {
		msg := err.Error()
		if out.Len() > 0 {
			msg = fmt.Sprintf("%s: %s", msg, strings.TrimSpace(out.String()))
		}
		return errorResult("pentest", msg, start, meta), nil
	}

	output := strings.TrimSpace(out.String())
	if output == "" {
		output = "(scan produced no output)"
	}
	return ToolResult{
		Status:        StatusSuccess,
		Output:        output,
		ToolName:      "pentest",
		ExecutionTime: time.Since(start),
		Metadata:      meta,
	}, nil
}

// validateTarget rejects anything that could smuggle shell syntax or
// extra arguments into the scanner invocation.
func validateTarget(target string) error {
	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return fmt.Errorf("target cannot be empty")
	}
	if strings.ContainsAny(trimmed, " \t\n;|&$`'\"<>(){}") {
		return fmt.Errorf("invalid target %q", target)
	}
	if strings.HasPrefix(trimmed, "-") {
		return fmt.Errorf("invalid target %q", target)
	}
	return nil
}
