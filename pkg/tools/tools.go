// Package tools implements the mediation layer between the reasoner
// and side-effecting operations: schema-validated invocation, the
// confirmation policy, sandbox checks and observation truncation.
package tools

import (
	"context"
	"time"
)

// DangerClass tags a tool for the confirmation policy.
type DangerClass string

const (
	// DangerSafe covers pure reads and queries.
	DangerSafe DangerClass = "SAFE"
	// DangerMutating covers anything that writes or executes.
	DangerMutating DangerClass = "MUTATING"
	// DangerPrivileged covers operations that can affect the host
	// beyond the workspace.
	DangerPrivileged DangerClass = "PRIVILEGED"
)

// Status is the outcome class of one tool execution.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
	StatusBlocked Status = "BLOCKED"
	StatusTimeout Status = "TIMEOUT"
)

// ToolParameter describes one schema property. Type must be a JSON
// schema type; anything else is rejected when the tool registers.
type ToolParameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Default     any
	Enum        []string
}

// ToolInfo is a tool's self-description.
type ToolInfo struct {
	Name        string
	Description string
	Parameters  []ToolParameter
	Danger      DangerClass
}

// ToolResult is the uniform execution outcome. Output is the only
// field surfaced to the LLM; Metadata feeds the error memory.
type ToolResult struct {
	Status        Status
	Output        string
	Error         string
	ToolName      string
	ExecutionTime time.Duration
	Metadata      map[string]any
}

// Success reports whether the execution completed normally.
func (r ToolResult) Success() bool {
	return r.Status == StatusSuccess
}

// Tool is the capability set every tool satisfies. Argument maps come
// from JSON decoding of the model's call, so numbers arrive as
// float64.
type Tool interface {
	GetInfo() ToolInfo
	Execute(ctx context.Context, args map[string]any) (ToolResult, error)
}

func errorResult(name, msg string, start time.Time, meta map[string]any) ToolResult {
	return ToolResult{
		Status:        StatusError,
		Error:         msg,
		ToolName:      name,
		ExecutionTime: time.Since(start),
		Metadata:      meta,
	}
}

func blockedResult(name, msg string, start time.Time, meta map[string]any) ToolResult {
	return ToolResult{
		Status:        StatusBlocked,
		Error:         msg,
		ToolName:      name,
		ExecutionTime: time.Since(start),
		Metadata:      meta,
	}
}
