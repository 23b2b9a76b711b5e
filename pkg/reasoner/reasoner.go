// Package reasoner drives the task loop: rule short-circuit, memory
// retrieval, chat turns, tool dispatch, recovery and finalization.
package reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/adiwardana/pandu/pkg/errdefs"
	"github.com/adiwardana/pandu/pkg/llm"
	"github.com/adiwardana/pandu/pkg/logger"
	"github.com/adiwardana/pandu/pkg/memory"
	"github.com/adiwardana/pandu/pkg/metrics"
	"github.com/adiwardana/pandu/pkg/rules"
	"github.com/adiwardana/pandu/pkg/tools"
)

// ChatClient is the slice of the LLM client the loop needs. Tests
// substitute a scripted implementation.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, opts llm.Options) (*llm.Response, error)
	ResetTaskUsage()
	TaskUsage() llm.Usage
}

// Housekeeper is notified after every finished task so periodic
// maintenance can run on its own schedule.
type Housekeeper interface {
	AfterTask(ctx context.Context)
}

// Options bounds one reasoner instance. Values come from the validated
// configuration.
type Options struct {
	MaxIterations      int
	MaxContextMessages int
	MaxTokensPerTask   int
	MaxTokensPerResp   int
	Temperature        float64
	RecoveryTemp       float64
	Model              string
	WorkDir            string
}

// Result is the outcome of one task.
type Result struct {
	FinalText    string
	Iterations   int
	ActionsCount int
	Actions      []string
	Usage        llm.Usage
	Class        memory.Class
	RuleID       string
	BudgetHit    bool
}

// Reasoner owns one task at a time. Concurrent Run calls must be
// serialized by the caller; the session queue does that.
type Reasoner struct {
	client      ChatClient
	registry    *tools.Registry
	rules       *rules.Engine
	retriever   *memory.Retriever
	manager     *memory.Manager
	audit       *AuditLog
	housekeeper Housekeeper
	counter     *llm.TokenCounter
	opts        Options
}

func New(
	client ChatClient,
	registry *tools.Registry,
	engine *rules.Engine,
	retriever *memory.Retriever,
	manager *memory.Manager,
	audit *AuditLog,
	housekeeper Housekeeper,
	opts Options,
) *Reasoner {
	return &Reasoner{
		client:      client,
		registry:    registry,
		rules:       engine,
		retriever:   retriever,
		manager:     manager,
		audit:       audit,
		housekeeper: housekeeper,
		counter:     llm.NewTokenCounter(opts.Model),
		opts:        opts,
	}
}

// Run executes one task to completion. Failures inside the loop are
// reported through Result.FinalText; the error return is reserved for
// an empty task and for cancellation.
func (r *Reasoner) Run(ctx context.Context, task string) (*Result, error) {
	log := logger.Get()

	task = strings.TrimSpace(task)
	if task == "" {
		return nil, errdefs.New(errdefs.KindConfig, "task cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, errdefs.Wrap(errdefs.KindCancelled, err, "task cancelled before start")
	}

	r.client.ResetTaskUsage()
	result := &Result{}

	// Rules answer deterministically, before any model call.
	if match, ok := r.rules.Match(task); ok {
		metrics.RuleHits.Inc()
		log.Info("rule matched, skipping model", "rule_id", match.RuleID)
		result.FinalText = match.Response
		result.RuleID = match.RuleID
		r.finalize(ctx, task, result, true)
		return result, nil
	}

	bundle := r.retriever.ForTask(ctx, task)
	window := []llm.Message{
		{Role: llm.RoleSystem, Content: buildSystemPrompt(r.opts.WorkDir, r.registry.Names(), bundle.Render())},
		{Role: llm.RoleUser, Content: task},
	}
	defs := r.registry.Definitions()
	success := true

	for iteration := 1; iteration <= r.opts.MaxIterations; iteration++ {
		result.Iterations = iteration

		window = pruneWindow(window, r.opts.MaxContextMessages, r.counter, r.opts.MaxTokensPerTask)

		// The next call may spend the estimated prompt plus a full
		// response; refuse it if that would cross the budget.
		used := r.client.TaskUsage().TotalTokens
		projected := used + r.counter.CountMessages(window) + r.opts.MaxTokensPerResp
		if used > 0 && projected > r.opts.MaxTokensPerTask {
			log.Warn("token budget exhausted", "used", used, "budget", r.opts.MaxTokensPerTask)
			result.BudgetHit = true
			result.FinalText = fmt.Sprintf(
				"Stopping: the task used %d tokens of its %d budget. Completed %d action(s) so far.",
				used, r.opts.MaxTokensPerTask, result.ActionsCount)
			success = false
			break
		}

		resp, err := r.turn(ctx, window, defs)
		if err != nil {
			if errdefs.KindOf(err) == errdefs.KindCancelled {
				return r.cancelResult(ctx, task, result, err)
			}
			log.Error("model turn failed", "error", err)
			result.FinalText = fmt.Sprintf("Task aborted: %v", err)
			success = false
			break
		}

		if len(resp.ToolCalls) == 0 {
			result.FinalText = resp.Content
			break
		}

		window = append(window, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			observation, status, err := r.dispatch(ctx, task, call)
			if err != nil {
				return r.cancelResult(ctx, task, result, err)
			}
			window = append(window, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
				Content:    observation,
			})
			result.Actions = append(result.Actions, call.Function.Name)
			result.ActionsCount++
			if status != tools.StatusSuccess {
				success = false
			}
		}
	}

	if result.FinalText == "" {
		result.FinalText = r.summarize(ctx, window)
		success = false
	}

	result.Usage = r.client.TaskUsage()
	r.finalize(ctx, task, result, success)
	return result, nil
}

// cancelResult finalizes best-effort after a mid-task cancellation and
// propagates the error alongside the partial result.
func (r *Reasoner) cancelResult(ctx context.Context, task string, result *Result, err error) (*Result, error) {
	result.FinalText = fmt.Sprintf("Task cancelled after %d action(s).", result.ActionsCount)
	result.Usage = r.client.TaskUsage()
	r.finalize(ctx, task, result, false)
	return result, err
}

// turn performs one chat call, applying the recovery protocol when the
// provider rejects a malformed tool invocation.
func (r *Reasoner) turn(ctx context.Context, window []llm.Message, defs []llm.ToolDefinition) (*llm.Response, error) {
	opts := llm.Options{
		Temperature: r.opts.Temperature,
		MaxTokens:   r.opts.MaxTokensPerResp,
	}
	resp, err := r.client.Chat(ctx, window, defs, opts)
	if err == nil {
		return resp, nil
	}

	var failed *llm.ToolUseFailedError
	if !errors.As(err, &failed) {
		return nil, err
	}

	logger.Get().Warn("malformed tool invocation, running recovery turn")
	recovery := append(append([]llm.Message{}, window...), llm.Message{
		Role:    llm.RoleUser,
		Content: recoveryMessage(failed.FailedGeneration),
	})
	resp, rerr := r.client.Chat(ctx, recovery, defs, llm.Options{
		Temperature: r.opts.RecoveryTemp,
		MaxTokens:   r.opts.MaxTokensPerResp / 2,
		ToolChoice:  "required",
	})
	if rerr == nil {
		return resp, nil
	}
	if errdefs.KindOf(rerr) == errdefs.KindCancelled || ctx.Err() != nil ||
		strings.TrimSpace(failed.FailedGeneration) == "" {
		return nil, rerr
	}
	// The rejected generation is still the best text the model
	// produced for this task.
	logger.Get().Warn("recovery turn failed, keeping the raw generation", "error", rerr)
	return &llm.Response{Content: failed.FailedGeneration}, nil
}

// dispatch runs one tool call and renders its observation.
func (r *Reasoner) dispatch(ctx context.Context, task string, call llm.ToolCall) (string, tools.Status, error) {
	var args map[string]any
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			observation := fmt.Sprintf("Error: tool arguments are not valid JSON: %v", err)
			r.audit.Record(task, call.Function.Name, observation, string(tools.StatusError))
			return observation, tools.StatusError, nil
		}
	}

	res, err := r.registry.Execute(ctx, call.Function.Name, args)
	if err != nil {
		return "", tools.StatusError, err
	}

	observation := r.registry.Observation(res)
	r.audit.Record(task, fmt.Sprintf("%s %s", call.Function.Name, call.Function.Arguments),
		observation, string(res.Status))
	return observation, res.Status, nil
}

// summarize asks for a closing plain-text answer after the iteration
// cap. If even that fails, a static notice stands in.
func (r *Reasoner) summarize(ctx context.Context, window []llm.Message) string {
	window = append(window, llm.Message{
		Role:    llm.RoleUser,
		Content: "Stop working. Summarize what you did and what remains unfinished, in plain text.",
	})
	resp, err := r.client.Chat(ctx, window, nil, llm.Options{
		Temperature: r.opts.Temperature,
		MaxTokens:   r.opts.MaxTokensPerResp,
		ToolChoice:  "none",
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		return "Reached the iteration limit before finishing the task."
	}
	return resp.Content
}

// finalize stores the interaction and hands the housekeeper its turn.
// A rule hit replays a stored response and never persists as a new
// interaction.
func (r *Reasoner) finalize(ctx context.Context, task string, result *Result, success bool) {
	if result.RuleID == "" {
		class, err := r.manager.StoreInteraction(ctx, memory.TaskOutcome{
			Task:         task,
			FinalText:    result.FinalText,
			Success:      success,
			ActionsCount: result.ActionsCount,
			Actions:      result.Actions,
		})
		if err != nil {
			logger.Get().Warn("interaction storage failed", "error", err)
		}
		result.Class = class
	}

	metrics.TasksProcessed.Inc()
	if r.housekeeper != nil {
		r.housekeeper.AfterTask(ctx)
	}
}
