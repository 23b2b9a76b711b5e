package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TextGenerator produces content from a prompt. The LLM client
// satisfies it through a small adapter so this package stays free of
// chat-protocol details.
type TextGenerator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// GenerateTool asks the model for a complete artifact (source file or
// web page) and writes it into the workspace in one step. It exists so
// multi-hundred-line outputs do not round-trip through the conversation
// window.
type GenerateTool struct {
	sandbox   *Sandbox
	generator TextGenerator
}

func NewGenerateTool(sandbox *Sandbox, generator TextGenerator) *GenerateTool {
	return &GenerateTool{sandbox: sandbox, generator: generator}
}

func (t *GenerateTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "generate",
		Description: "Generate a complete code file or web page from a description and save it to a path.",
		Danger:      DangerMutating,
		Parameters: []ToolParameter{
			{Name: "kind", Type: "string", Description: "Artifact type",
				Enum: []string{"code", "web"}, Required: true},
			{Name: "description", Type: "string", Description: "What the artifact should do", Required: true},
			{Name: "path", Type: "string", Description: "Destination file path", Required: true},
			{Name: "language", Type: "string", Description: "Programming language for code artifacts"},
		},
	}
}

func (t *GenerateTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	start := time.Now()
	kind, _ := args["kind"].(string)
	description, _ := args["description"].(string)
	path, _ := args["path"].(string)
	language, _ := args["language"].(string)
	meta := map[string]any{"path": path, "operation": "generate"}

	if err := t.sandbox.ValidatePath(path, true); err != nil {
		return blockedResult("generate", err.Error(), start, meta), nil
	}

	system, prompt := buildGenerationPrompt(kind, description, language, path)
	content, err := t.generator.Generate(ctx, system, prompt)
	if err != nil {
		return errorResult("generate", fmt.Sprintf("generation failed: %v", err), start, meta), nil
	}
	content = stripCodeFence(content)
	if strings.TrimSpace(content) == "" {
		return errorResult("generate", "model returned empty content", start, meta), nil
	}

	resolved := t.sandbox.Resolve(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errorResult("generate", err.Error(), start, meta), nil
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return errorResult("generate", err.Error(), start, meta), nil
	}

	return ToolResult{
		Status:        StatusSuccess,
		Output:        fmt.Sprintf("generated %s artifact at %s (%d bytes)", kind, path, len(content)),
		ToolName:      "generate",
		ExecutionTime: time.Since(start),
		Metadata:      meta,
	}, nil
}

func buildGenerationPrompt(kind, description, language, path string) (system, prompt string) {
	switch kind {
	case "web":
		system = "You generate complete, self-contained HTML pages with inline CSS and JavaScript. " +
			"Output only the file content, no explanation and no markdown fences."
		prompt = fmt.Sprintf("Create a web page saved as %s.\nRequirements: %s", path, description)
	default:
		if language == "" {
			language = languageFromExt(path)
		}
		system = fmt.Sprintf("You generate complete, runnable %s source files. "+
			"Output only the file content, no explanation and no markdown fences.", language)
		prompt = fmt.Sprintf("Create a %s file saved as %s.\nRequirements: %s", language, path, description)
	}
	return system, prompt
}

func languageFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return "Python"
	case ".go":
		return "Go"
	case ".js":
		return "JavaScript"
	case ".ts":
		return "TypeScript"
	case ".sh":
		return "shell"
	case ".html":
		return "HTML"
	default:
		return "plain text"
	}
}

// stripCodeFence removes a wrapping markdown fence if the model added
// one despite instructions.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return content
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return content
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
