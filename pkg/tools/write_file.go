package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adiwardana/pandu/pkg/errdefs"
)

// WriteFileTool creates or modifies a file inside the workspace.
type WriteFileTool struct {
	sandbox *Sandbox
}

func NewWriteFileTool(sandbox *Sandbox) *WriteFileTool {
	return &WriteFileTool{sandbox: sandbox}
}

func (t *WriteFileTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "write_file",
		Description: "Write or append text content to a file, creating parent directories as needed.",
		Danger:      DangerMutating,
		Parameters: []ToolParameter{
			{Name: "path", Type: "string", Description: "File path, relative to the working directory", Required: true},
			{Name: "content", Type: "string", Description: "Text content to write", Required: true},
			{Name: "mode", Type: "string", Description: "write replaces the file, append adds to it",
				Enum: []string{"write", "append"}, Default: "write"},
		},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	start := time.Now()
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	mode, _ := args["mode"].(string)
	if mode == "" {
		mode = "write"
	}
	meta := map[string]any{"path": path, "operation": mode}

	if err := t.sandbox.ValidatePath(path, true); err != nil {
		if errdefs.KindOf(err) == errdefs.KindSafety {
			if ext := detailString(err, "extension"); ext != "" {
				meta["extension"] = ext
			}
			return blockedResult("write_file", err.Error(), start, meta), nil
		}
		return errorResult("write_file", err.Error(), start, meta), nil
	}
	if int64(len(content)) > t.sandbox.MaxFileSize() {
		meta["file_size"] = len(content)
		meta["max_size"] = t.sandbox.MaxFileSize()
		return errorResult("write_file",
			fmt.Sprintf("content too large: %d bytes, limit %d", len(content), t.sandbox.MaxFileSize()),
			start, meta), nil
	}

	resolved := t.sandbox.Resolve(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errorResult("write_file", err.Error(), start, meta), nil
	}

	var err error
	if mode == "append" {
		var f *os.File
		f, err = os.OpenFile(resolved, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			_, err = f.WriteString(content)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}
	} else {
		err = os.WriteFile(resolved, []byte(content), 0o644)
	}
	if err != nil {
		return errorResult("write_file", err.Error(), start, meta), nil
	}

	return ToolResult{
		Status:        StatusSuccess,
		Output:        fmt.Sprintf("wrote %d bytes to %s", len(content), path),
		ToolName:      "write_file",
		ExecutionTime: time.Since(start),
		Metadata:      meta,
	}, nil
}
