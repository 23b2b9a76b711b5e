package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adiwardana/pandu/pkg/errdefs"
)

// ReadFileTool reads a text file, optionally a line range. Reads are
// SAFE inside the workspace; a path that resolves outside it escalates
// to confirmation.
type ReadFileTool struct {
	sandbox *Sandbox
}

func NewReadFileTool(sandbox *Sandbox) *ReadFileTool {
	return &ReadFileTool{sandbox: sandbox}
}

func (t *ReadFileTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "read_file",
		Description: "Read the contents of a text file, optionally a specific line range.",
		Danger:      DangerSafe,
		Parameters: []ToolParameter{
			{Name: "path", Type: "string", Description: "File path, relative to the working directory", Required: true},
			{Name: "start_line", Type: "integer", Description: "First line to include, 1-based"},
			{Name: "end_line", Type: "integer", Description: "Last line to include, inclusive"},
		},
	}
}

// AssessRisk escalates reads that resolve outside the workspace, so the
// AUTO policy treats them like mutations.
func (t *ReadFileTool) AssessRisk(args map[string]any) (bool, string) {
	path, _ := args["path"].(string)
	if path != "" && t.sandbox.PathEscapes(path) {
		return true, fmt.Sprintf("path %q resolves outside the working directory", path)
	}
	return false, ""
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	start := time.Now()
	path, _ := args["path"].(string)
	meta := map[string]any{"path": path, "operation": "read"}

	if err := t.sandbox.ValidatePath(path, false); err != nil {
		if errdefs.KindOf(err) == errdefs.KindSafety {
			meta["extension"] = detailString(err, "extension")
			return blockedResult("read_file", err.Error(), start, meta), nil
		}
		return errorResult("read_file", err.Error(), start, meta), nil
	}

	resolved := t.sandbox.Resolve(path)
	info, err := os.Stat(resolved)
	if err != nil {
		return errorResult("read_file", err.Error(), start, meta), nil
	}
	if info.IsDir() {
		return errorResult("read_file", fmt.Sprintf("%s is a directory", path), start, meta), nil
	}
	if info.Size() > t.sandbox.MaxFileSize() {
		meta["file_size"] = info.Size()
		meta["max_size"] = t.sandbox.MaxFileSize()
		return errorResult("read_file",
			fmt.Sprintf("file too large: %d bytes, limit %d", info.Size(), t.sandbox.MaxFileSize()),
			start, meta), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return errorResult("read_file", err.Error(), start, meta), nil
	}

	content := string(data)
	startLine := intArg(args, "start_line", 0)
	endLine := intArg(args, "end_line", 0)
	if startLine > 0 || endLine > 0 {
		content = sliceLines(content, startLine, endLine)
	}

	return ToolResult{
		Status:        StatusSuccess,
		Output:        content,
		ToolName:      "read_file",
		ExecutionTime: time.Since(start),
		Metadata:      meta,
	}, nil
}

// sliceLines extracts an inclusive 1-based line range. Out-of-range
// bounds clamp rather than fail.
func sliceLines(content string, startLine, endLine int) string {
	lines := strings.Split(content, "\n")
	if startLine < 1 {
		startLine = 1
	}
	if endLine < 1 || endLine > len(lines) {
		endLine = len(lines)
	}
	if startLine > len(lines) {
		return ""
	}
	return strings.Join(lines[startLine-1:endLine], "\n")
}

// intArg reads a numeric argument. JSON decoding delivers numbers as
// float64.
func intArg(args map[string]any, key string, fallback int) int {
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return fallback
}

func detailString(err error, key string) string {
	var e *errdefs.Error
	if errors.As(err, &e) {
		if v, ok := e.Details[key].(string); ok {
			return v
		}
	}
	return ""
}
