package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandTool runs a shell command under the sandbox policy with a
// hard timeout.
type CommandTool struct {
	sandbox *Sandbox
	timeout time.Duration
}

func NewCommandTool(sandbox *Sandbox, timeoutSeconds int) *CommandTool {
	return &CommandTool{
		sandbox: sandbox,
		timeout: time.Duration(timeoutSeconds) * time.Second,
	}
}

func (t *CommandTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "terminal",
		Description: "Execute a shell command in the working directory and return combined output.",
		Danger:      DangerMutating,
		Parameters: []ToolParameter{
			{Name: "command", Type: "string", Description: "Shell command to execute", Required: true},
			{Name: "timeout_seconds", Type: "integer", Description: "Override the default command timeout"},
		},
	}
}

// AssessRisk flags sudo commands so they always reach the confirmation
// prompt when the policy requires it.
func (t *CommandTool) AssessRisk(args map[string]any) (bool, string) {
	command, _ := args["command"].(string)
	if t.sandbox.SudoNeedsConfirmation(command) {
		return true, "command runs with elevated privileges"
	}
	return false, ""
}

func (t *CommandTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	start := time.Now()
	command, _ := args["command"].(string)
	meta := map[string]any{"command": command, "operation": "exec"}

	if err := t.sandbox.ValidateCommand(command); err != nil {
		return blockedResult("terminal", err.Error(), start, meta), nil
	}

	timeout := t.timeout
	if override := intArg(args, "timeout_seconds", 0); override > 0 {
		timeout = time.Duration(override) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.sandbox.WorkDir()

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	elapsed := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return ToolResult{
			Status:        StatusTimeout,
			Error:         fmt.Sprintf("command timed out after %s", timeout),
			Output:        out.String(),
			ToolName:      "terminal",
			ExecutionTime: elapsed,
			Metadata:      meta,
		}, nil
	}
	if err != nil {
		msg := err.Error()
		if out.Len() > 0 {
			msg = fmt.Sprintf("%s: %s", msg, strings.TrimSpace(out.String()))
		}
		return errorResult("terminal", msg, start, meta), nil
	}

	output := out.String()
	if output == "" {
		output = "(no output)"
	}
	return ToolResult{
		Status:        StatusSuccess,
		Output:        output,
		ToolName:      "terminal",
		ExecutionTime: elapsed,
		Metadata:      meta,
	}, nil
}
