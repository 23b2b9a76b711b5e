package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adiwardana/pandu/pkg/errormem"
	"github.com/adiwardana/pandu/pkg/vector"
)

// fakeTool is a configurable stand-in for registry tests.
type fakeTool struct {
	info      ToolInfo
	result    ToolResult
	err       error
	escalate  bool
	callCount int
	lastArgs  map[string]any
}

func (f *fakeTool) GetInfo() ToolInfo { return f.info }

func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	f.callCount++
	f.lastArgs = args
	return f.result, f.err
}

func (f *fakeTool) AssessRisk(args map[string]any) (bool, string) {
	return f.escalate, "test escalation"
}

func safeEcho() *fakeTool {
	return &fakeTool{
		info: ToolInfo{
			Name:        "echo",
			Description: "echoes",
			Danger:      DangerSafe,
			Parameters: []ToolParameter{
				{Name: "text", Type: "string", Description: "text", Required: true},
			},
		},
		result: ToolResult{Status: StatusSuccess, Output: "echoed", ToolName: "echo"},
	}
}

func newTestRegistry(t *testing.T, mode string, asker Asker) (*Registry, *errormem.Store) {
	t.Helper()
	vs, err := vector.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	errs, err := errormem.NewStore(t.TempDir(), vs)
	require.NoError(t, err)

	policy := NewConfirmPolicy(mode, 1, asker)
	return NewRegistry(policy, errs, 100), errs
}

func TestRegistryRejectsBadDefinitions(t *testing.T) {
	reg, _ := newTestRegistry(t, "YES", nil)

	bad := safeEcho()
	bad.info.Parameters[0].Type = "list"
	require.Error(t, reg.Register(bad), "non-JSON-schema type refused at registration")

	unnamed := safeEcho()
	unnamed.info.Name = ""
	require.Error(t, reg.Register(unnamed))

	good := safeEcho()
	require.NoError(t, reg.Register(good))
	require.Error(t, reg.Register(safeEcho()), "duplicate name refused")
}

func TestRegistryDefinitions(t *testing.T) {
	reg, _ := newTestRegistry(t, "YES", nil)
	require.NoError(t, reg.Register(safeEcho()))

	defs := reg.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "echo", defs[0].Name)

	props, ok := defs[0].Parameters["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "text")
	assert.Equal(t, []string{"text"}, defs[0].Parameters["required"])
}

func TestRegistryUnknownTool(t *testing.T) {
	reg, errs := newTestRegistry(t, "YES", nil)

	res, err := reg.Execute(context.Background(), "nonexistent", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "not found")
	assert.Equal(t, 1, errs.Count(), "failure recorded")
}

func TestRegistryValidatesArgs(t *testing.T) {
	reg, _ := newTestRegistry(t, "YES", nil)
	tool := safeEcho()
	require.NoError(t, reg.Register(tool))

	res, err := reg.Execute(context.Background(), "echo", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "invalid arguments")
	assert.Zero(t, tool.callCount, "tool never runs on bad arguments")

	res, err = reg.Execute(context.Background(), "echo", map[string]any{"text": 42})
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Zero(t, tool.callCount)
}

func TestRegistryAutoPolicy(t *testing.T) {
	asked := 0
	asker := AskerFunc(func(ctx context.Context, prompt string) (bool, error) {
		asked++
		return true, nil
	})
	reg, _ := newTestRegistry(t, "AUTO", asker)

	safe := safeEcho()
	require.NoError(t, reg.Register(safe))

	mutating := safeEcho()
	mutating.info.Name = "writer"
	mutating.info.Danger = DangerMutating
	mutating.result.ToolName = "writer"
	require.NoError(t, reg.Register(mutating))

	_, err := reg.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Zero(t, asked, "SAFE tools run without asking under AUTO")
	assert.Equal(t, 1, safe.callCount)

	_, err = reg.Execute(context.Background(), "writer", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, 1, asked, "MUTATING tools ask under AUTO")
	assert.Equal(t, 1, mutating.callCount)
}

func TestRegistryEscalatedSafeToolAsks(t *testing.T) {
	asked := 0
	asker := AskerFunc(func(ctx context.Context, prompt string) (bool, error) {
		asked++
		return true, nil
	})
	reg, _ := newTestRegistry(t, "AUTO", asker)

	tool := safeEcho()
	tool.escalate = true
	require.NoError(t, reg.Register(tool))

	_, err := reg.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, 1, asked, "escalated SAFE call goes through confirmation")
}

func TestRegistryDeclineBlocks(t *testing.T) {
	asker := AskerFunc(func(ctx context.Context, prompt string) (bool, error) {
		return false, nil
	})
	reg, errs := newTestRegistry(t, "NO", asker)
	tool := safeEcho()
	require.NoError(t, reg.Register(tool))

	res, err := reg.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, res.Status)
	assert.Equal(t, "user declined", res.Error)
	assert.Zero(t, tool.callCount)
	assert.Equal(t, 1, errs.Count())
}

func TestRegistryNoAskerDeniesAfterTimeout(t *testing.T) {
	reg, _ := newTestRegistry(t, "NO", nil)
	reg.policy.Timeout = 10 * time.Millisecond
	tool := safeEcho()
	require.NoError(t, reg.Register(tool))

	start := time.Now()
	res, err := reg.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, res.Status)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Zero(t, tool.callCount)
}

func TestRegistryRecordsToolErrors(t *testing.T) {
	reg, errs := newTestRegistry(t, "YES", nil)
	tool := safeEcho()
	tool.result = ToolResult{Status: StatusError, Error: "no such file", ToolName: "echo"}
	require.NoError(t, reg.Register(tool))

	res, err := reg.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, 1, errs.Count())
}

func TestRegistryAttachesRemediation(t *testing.T) {
	reg, errs := newTestRegistry(t, "YES", nil)
	tool := safeEcho()
	tool.result = ToolResult{
		Status: StatusError, Error: "no such file", ToolName: "echo",
		Metadata: map[string]any{"path": "missing.txt"},
	}
	require.NoError(t, reg.Register(tool))

	res, err := reg.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)

	rem, ok := res.Metadata["remediation"].(string)
	require.True(t, ok, "failed results carry a suggestion")
	assert.Contains(t, rem, "missing.txt")
	assert.Contains(t, reg.Observation(res), "Suggestion:")

	events := errs.Events()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Meta["remediation"].(string), "missing.txt")
}

func TestRegistryPreflightWarnsOnPastFailures(t *testing.T) {
	var prompts []string
	asker := AskerFunc(func(ctx context.Context, prompt string) (bool, error) {
		prompts = append(prompts, prompt)
		return true, nil
	})
	reg, errs := newTestRegistry(t, "NO", asker)
	tool := safeEcho()
	require.NoError(t, reg.Register(tool))

	_, err := errs.Log(context.Background(), "echo", "", "no such file",
		map[string]any{"path": "missing.txt"})
	require.NoError(t, err)

	_, err = reg.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "failed 1 time(s) before")
	assert.Equal(t, 1, tool.callCount)
}

func TestRegistryCancelledContext(t *testing.T) {
	reg, _ := newTestRegistry(t, "YES", nil)
	require.NoError(t, reg.Register(safeEcho()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reg.Execute(ctx, "echo", map[string]any{"text": "hi"})
	require.Error(t, err)
}

func TestObservationFormatting(t *testing.T) {
	reg, _ := newTestRegistry(t, "YES", nil)

	tests := []struct {
		res  ToolResult
		want string
	}{
		{ToolResult{Status: StatusSuccess, Output: "done"}, "Success: done"},
		{ToolResult{Status: StatusError, Error: "boom"}, "Error: boom"},
		{ToolResult{Status: StatusBlocked, Error: "user declined"}, "Blocked: user declined"},
		{ToolResult{Status: StatusTimeout, Error: "too slow"}, "Timeout: too slow"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reg.Observation(tt.res))
	}
}

func TestObservationTruncation(t *testing.T) {
	reg, _ := newTestRegistry(t, "YES", nil)

	long := strings.Repeat("x", 500)
	obs := reg.Observation(ToolResult{Status: StatusSuccess, Output: long})
	assert.Len(t, obs, 100+len("... [truncated]"))
	assert.True(t, strings.HasSuffix(obs, "... [truncated]"))

	short := reg.Observation(ToolResult{Status: StatusSuccess, Output: "ok"})
	assert.False(t, strings.Contains(short, "truncated"))
}

func TestObservationTruncatesOnRuneBoundary(t *testing.T) {
	reg, _ := newTestRegistry(t, "YES", nil)

	obs := reg.Observation(ToolResult{Status: StatusSuccess, Output: strings.Repeat("é", 200)})
	assert.True(t, utf8.ValidString(obs))
	assert.True(t, strings.HasSuffix(obs, "... [truncated]"))
}

func TestConfirmPolicyDecide(t *testing.T) {
	tests := []struct {
		mode      string
		danger    DangerClass
		escalated bool
		want      Decision
	}{
		{"YES", DangerPrivileged, true, DecisionExecute},
		{"NO", DangerSafe, false, DecisionAsk},
		{"AUTO", DangerSafe, false, DecisionExecute},
		{"AUTO", DangerSafe, true, DecisionAsk},
		{"AUTO", DangerMutating, false, DecisionAsk},
		{"AUTO", DangerPrivileged, false, DecisionAsk},
	}
	for _, tt := range tests {
		p := NewConfirmPolicy(tt.mode, 1, nil)
		got := p.Decide(tt.danger, tt.escalated)
		assert.Equal(t, tt.want, got, fmt.Sprintf("%s/%s escalated=%v", tt.mode, tt.danger, tt.escalated))
	}
}

func TestBuildSchemaEnumAndDefault(t *testing.T) {
	schema, err := BuildSchema([]ToolParameter{
		{Name: "mode", Type: "string", Enum: []string{"write", "append"}, Default: "write"},
	})
	require.NoError(t, err)

	props := schema["properties"].(map[string]any)
	mode := props["mode"].(map[string]any)
	assert.Equal(t, []string{"write", "append"}, mode["enum"])
	assert.Equal(t, "write", mode["default"])
	assert.NotContains(t, schema, "required")
}

func TestValidateArgsNumericWidening(t *testing.T) {
	raw, err := BuildSchema([]ToolParameter{
		{Name: "count", Type: "integer", Required: true},
	})
	require.NoError(t, err)
	schema, err := CompileSchema(raw)
	require.NoError(t, err)

	assert.NoError(t, ValidateArgs(schema, map[string]any{"count": 3}))
	assert.NoError(t, ValidateArgs(schema, map[string]any{"count": float64(3)}))
	assert.Error(t, ValidateArgs(schema, map[string]any{"count": "three"}))
	assert.Error(t, ValidateArgs(schema, nil))
}
