package reasoner

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adiwardana/pandu/pkg/llm"
	"github.com/adiwardana/pandu/pkg/memory"
	"github.com/adiwardana/pandu/pkg/rules"
	"github.com/adiwardana/pandu/pkg/tools"
	"github.com/adiwardana/pandu/pkg/vector"
)

// chatCall records one request the loop made.
type chatCall struct {
	messages []llm.Message
	tools    []llm.ToolDefinition
	opts     llm.Options
}

// chatStep scripts one response.
type chatStep struct {
	resp   *llm.Response
	err    error
	tokens int
}

// scriptedClient replays a fixed sequence of responses and records
// every request.
type scriptedClient struct {
	steps []chatStep
	calls []chatCall
	usage llm.Usage
}

func (c *scriptedClient) Chat(ctx context.Context, messages []llm.Message, defs []llm.ToolDefinition, opts llm.Options) (*llm.Response, error) {
	c.calls = append(c.calls, chatCall{messages: messages, tools: defs, opts: opts})
	if len(c.steps) == 0 {
		return nil, fmt.Errorf("unexpected chat call %d", len(c.calls))
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	c.usage.TotalTokens += step.tokens
	if step.err != nil {
		return nil, step.err
	}
	return step.resp, nil
}

func (c *scriptedClient) ResetTaskUsage()      { c.usage = llm.Usage{} }
func (c *scriptedClient) TaskUsage() llm.Usage { return c.usage }

// echoTool records invocations and succeeds.
type echoTool struct {
	calls []map[string]any
	fail  bool
}

func (e *echoTool) GetInfo() tools.ToolInfo {
	return tools.ToolInfo{
		Name:        "echo",
		Description: "echoes text",
		Danger:      tools.DangerSafe,
		Parameters: []tools.ToolParameter{
			{Name: "text", Type: "string", Description: "text", Required: true},
		},
	}
}

func (e *echoTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	e.calls = append(e.calls, args)
	if e.fail {
		return tools.ToolResult{Status: tools.StatusError, Error: "echo broke", ToolName: "echo"}, nil
	}
	text, _ := args["text"].(string)
	return tools.ToolResult{Status: tools.StatusSuccess, Output: "echoed " + text, ToolName: "echo"}, nil
}

type harness struct {
	reasoner *Reasoner
	client   *scriptedClient
	tool     *echoTool
	engine   *rules.Engine
	store    vector.Store
}

func newHarness(t *testing.T, steps []chatStep) *harness {
	t.Helper()

	client := &scriptedClient{steps: steps}
	engine, err := rules.NewEngine(filepath.Join(t.TempDir(), "rules.json"))
	require.NoError(t, err)
	store, err := vector.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	tool := &echoTool{}
	registry := tools.NewRegistry(tools.NewConfirmPolicy("YES", 1, nil), nil, 200)
	require.NoError(t, registry.Register(tool))

	manager := memory.NewManager(store, engine, 100)
	retriever := memory.NewRetriever(store, engine, 3)

	r := New(client, registry, engine, retriever, manager, nil, nil, Options{
		MaxIterations:      3,
		MaxContextMessages: 20,
		MaxTokensPerTask:   20000,
		MaxTokensPerResp:   1024,
		Temperature:        0.2,
		RecoveryTemp:       0.1,
		Model:              "test-model",
		WorkDir:            t.TempDir(),
	})
	return &harness{reasoner: r, client: client, tool: tool, engine: engine, store: store}
}

func toolCallStep(name, arguments string, tokens int) chatStep {
	return chatStep{
		resp: &llm.Response{
			ToolCalls: []llm.ToolCall{{
				ID:   "call_1",
				Type: "function",
				Function: llm.FunctionCall{
					Name:      name,
					Arguments: arguments,
				},
			}},
		},
		tokens: tokens,
	}
}

func textStep(content string, tokens int) chatStep {
	return chatStep{resp: &llm.Response{Content: content}, tokens: tokens}
}

func TestRunPlainAnswer(t *testing.T) {
	h := newHarness(t, []chatStep{textStep("The answer is 4.", 50)})

	result, err := h.reasoner.Run(context.Background(), "Berapa 2+2?")
	require.NoError(t, err)
	assert.Equal(t, "The answer is 4.", result.FinalText)
	assert.Equal(t, 1, result.Iterations)
	assert.Zero(t, result.ActionsCount)
	require.Len(t, h.client.calls, 1)
	assert.Equal(t, llm.RoleSystem, h.client.calls[0].messages[0].Role)
	assert.Equal(t, "Berapa 2+2?", h.client.calls[0].messages[1].Content)
}

func TestRunRuleShortCircuit(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.engine.Add("cekrek", rules.TriggerContains, "memori terbaca", 0)
	require.NoError(t, err)

	result, err := h.reasoner.Run(context.Background(), "cekrek")
	require.NoError(t, err)
	assert.Equal(t, "memori terbaca", result.FinalText)
	assert.NotEmpty(t, result.RuleID)
	assert.Empty(t, h.client.calls, "rule hits never reach the model")
}

func TestRunRuleHitSkipsExperienceStorage(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.engine.Add("tampilkan contoh", rules.TriggerContains,
		"```go\nfmt.Println(\"halo\")\n```", 0)
	require.NoError(t, err)

	result, err := h.reasoner.Run(context.Background(), "tolong tampilkan contoh kode")
	require.NoError(t, err)
	assert.NotEmpty(t, result.RuleID)
	assert.Empty(t, h.client.calls)

	n, err := h.store.Count(context.Background(), memory.CollExperiences)
	require.NoError(t, err)
	assert.Zero(t, n, "rule responses replay, they are not new experiences")
}

func TestRunToolCallLoop(t *testing.T) {
	h := newHarness(t, []chatStep{
		toolCallStep("echo", `{"text":"hello"}`, 100),
		textStep("Done echoing.", 50),
	})

	result, err := h.reasoner.Run(context.Background(), "echo hello for me")
	require.NoError(t, err)
	assert.Equal(t, "Done echoing.", result.FinalText)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, 1, result.ActionsCount)
	assert.Equal(t, []string{"echo"}, result.Actions)
	require.Len(t, h.tool.calls, 1)
	assert.Equal(t, "hello", h.tool.calls[0]["text"])

	// The second turn carries the assistant tool call and the tool
	// observation.
	second := h.client.calls[1].messages
	require.Len(t, second, 4)
	assert.Equal(t, llm.RoleAssistant, second[2].Role)
	assert.Equal(t, llm.RoleTool, second[3].Role)
	assert.Equal(t, "call_1", second[3].ToolCallID)
	assert.Equal(t, "Success: echoed hello", second[3].Content)
}

func TestRunToolErrorObservation(t *testing.T) {
	h := newHarness(t, []chatStep{
		toolCallStep("echo", `{"text":"x"}`, 100),
		textStep("Could not echo.", 50),
	})
	h.tool.fail = true

	result, err := h.reasoner.Run(context.Background(), "echo x")
	require.NoError(t, err)
	assert.Equal(t, "Could not echo.", result.FinalText)

	second := h.client.calls[1].messages
	assert.Equal(t, "Error: echo broke", second[3].Content)
}

func TestRunInvalidToolArguments(t *testing.T) {
	h := newHarness(t, []chatStep{
		toolCallStep("echo", `{not json`, 100),
		textStep("Giving up.", 50),
	})

	_, err := h.reasoner.Run(context.Background(), "echo x")
	require.NoError(t, err)

	second := h.client.calls[1].messages
	assert.Contains(t, second[3].Content, "Error: tool arguments are not valid JSON")
	assert.Empty(t, h.tool.calls, "tool never runs on undecodable arguments")
}

func TestRunRecoveryTurn(t *testing.T) {
	h := newHarness(t, []chatStep{
		{err: &llm.ToolUseFailedError{Message: "bad call", FailedGeneration: "<echo>hello</echo>"}},
		toolCallStep("echo", `{"text":"hello"}`, 100),
		textStep("Recovered.", 50),
	})

	result, err := h.reasoner.Run(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "Recovered.", result.FinalText)
	require.Len(t, h.client.calls, 3)

	recovery := h.client.calls[1]
	last := recovery.messages[len(recovery.messages)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Contains(t, last.Content, "not a valid tool invocation")
	assert.Contains(t, last.Content, "<echo>hello</echo>")
	assert.Equal(t, 0.1, recovery.opts.Temperature)
	assert.Equal(t, 512, recovery.opts.MaxTokens)
	assert.Equal(t, "required", recovery.opts.ToolChoice)
}

func TestRunRecoveryFailureKeepsRawGeneration(t *testing.T) {
	h := newHarness(t, []chatStep{
		{err: &llm.ToolUseFailedError{Message: "bad call", FailedGeneration: "I would run echo hello here."}},
		{err: fmt.Errorf("provider unavailable")},
	})

	result, err := h.reasoner.Run(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "I would run echo hello here.", result.FinalText)
	require.Len(t, h.client.calls, 2, "no retry past the failed recovery turn")
}

func TestRunIterationCapSummarizes(t *testing.T) {
	h := newHarness(t, []chatStep{
		toolCallStep("echo", `{"text":"1"}`, 10),
		toolCallStep("echo", `{"text":"2"}`, 10),
		toolCallStep("echo", `{"text":"3"}`, 10),
		textStep("I echoed three times and stopped.", 10),
	})

	result, err := h.reasoner.Run(context.Background(), "keep echoing")
	require.NoError(t, err)
	assert.Equal(t, "I echoed three times and stopped.", result.FinalText)
	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, 3, result.ActionsCount)

	summary := h.client.calls[3]
	assert.Equal(t, "none", summary.opts.ToolChoice)
	assert.Empty(t, summary.tools)
}

func TestRunBudgetStops(t *testing.T) {
	h := newHarness(t, []chatStep{
		toolCallStep("echo", `{"text":"1"}`, 25000),
	})

	result, err := h.reasoner.Run(context.Background(), "echo forever")
	require.NoError(t, err)
	assert.True(t, result.BudgetHit)
	assert.Contains(t, result.FinalText, "budget")
	require.Len(t, h.client.calls, 1, "no call once the budget is spent")
}

func TestRunEmptyTask(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.reasoner.Run(context.Background(), "   ")
	require.Error(t, err)
}

func TestRunCancelledContext(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.reasoner.Run(ctx, "do something")
	require.Error(t, err)
}

func TestRunStoresFact(t *testing.T) {
	h := newHarness(t, []chatStep{textStep("Senang bertemu, Budi!", 20)})

	result, err := h.reasoner.Run(context.Background(), "Nama saya Budi")
	require.NoError(t, err)
	assert.Equal(t, memory.ClassFact, result.Class)

	n, err := h.store.Count(context.Background(), memory.CollFacts)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunInjectsMemoryBlock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []chatStep{textStep("Nama kamu Budi.", 20)})

	require.NoError(t, h.store.Upsert(ctx, memory.CollFacts, "fact_1",
		"User's name is Budi", map[string]any{"source": "nama saya Budi", "ts": int64(1)}))

	_, err := h.reasoner.Run(ctx, "Siapa nama saya?")
	require.NoError(t, err)
	system := h.client.calls[0].messages[0].Content
	assert.Contains(t, system, "KNOWN FACTS:")
	assert.Contains(t, system, "User's name is Budi")
}

func TestPruneWindowKeepsAnchors(t *testing.T) {
	counter := llm.NewTokenCounter("test-model")
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "system"},
		{Role: llm.RoleUser, Content: "task"},
	}
	for i := 0; i < 10; i++ {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: fmt.Sprintf("c%d", i)}}},
			llm.Message{Role: llm.RoleTool, ToolCallID: fmt.Sprintf("c%d", i), Content: "obs"},
		)
	}

	pruned := pruneWindow(msgs, 8, counter, 0)
	assert.LessOrEqual(t, len(pruned), 8)
	assert.Equal(t, "system", pruned[0].Content)
	assert.Equal(t, "task", pruned[1].Content)
	assert.NotEqual(t, llm.RoleTool, pruned[2].Role, "window never starts with an orphaned tool reply")
}

func TestPruneWindowTokenPressure(t *testing.T) {
	counter := llm.NewTokenCounter("test-model")
	big := make([]byte, 4000)
	for i := range big {
		big[i] = 'x'
	}
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "system"},
		{Role: llm.RoleUser, Content: "task"},
		{Role: llm.RoleAssistant, Content: string(big)},
		{Role: llm.RoleAssistant, Content: string(big)},
		{Role: llm.RoleAssistant, Content: "recent"},
	}

	pruned := pruneWindow(msgs, 50, counter, 1000)
	assert.Less(t, len(pruned), len(msgs), "token pressure forces pruning below the message cap")
	assert.Equal(t, "recent", pruned[len(pruned)-1].Content)
}

func TestPruneWindowLeavesShortWindows(t *testing.T) {
	counter := llm.NewTokenCounter("test-model")
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "system"},
		{Role: llm.RoleUser, Content: "task"},
		{Role: llm.RoleAssistant, Content: "answer in progress"},
	}
	pruned := pruneWindow(msgs, 2, counter, 0)
	assert.Len(t, pruned, 3, "the last exchange survives even over the cap")
}

func TestAuditLog(t *testing.T) {
	dir := t.TempDir()
	a := NewAuditLog(dir, true)
	a.Record("task", "echo {}", "Success: ok", "SUCCESS")
	a.Record("task", "echo {}", "Error: boom", "ERROR")

	entries := a.Tail(1)
	require.Len(t, entries, 1)
	assert.Equal(t, "ERROR", entries[0].Status)

	reopened := NewAuditLog(dir, true)
	assert.Len(t, reopened.Tail(0), 2, "entries survive reopening")

	var disabled *AuditLog = NewAuditLog(dir, false)
	disabled.Record("x", "y", "z", "SUCCESS")
	assert.Nil(t, disabled.Tail(1))
}
