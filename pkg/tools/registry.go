package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/adiwardana/pandu/pkg/errdefs"
	"github.com/adiwardana/pandu/pkg/errormem"
	"github.com/adiwardana/pandu/pkg/llm"
	"github.com/adiwardana/pandu/pkg/logger"
	"github.com/adiwardana/pandu/pkg/metrics"
)

// riskAssessor lets a tool escalate a call above its declared danger
// class based on the concrete arguments, such as a read that resolves
// outside the workspace.
type riskAssessor interface {
	AssessRisk(args map[string]any) (escalated bool, reason string)
}

type registered struct {
	tool   Tool
	info   ToolInfo
	schema *jsonschema.Schema
}

// Registry holds the available tools and mediates every execution:
// schema validation, confirmation, the run itself, error recording and
// metrics.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]registered
	policy   *ConfirmPolicy
	errors   *errormem.Store
	truncate int
}

// NewRegistry builds an empty registry. errors may be nil when failure
// recording is disabled.
func NewRegistry(policy *ConfirmPolicy, errors *errormem.Store, truncateChars int) *Registry {
	return &Registry{
		tools:    make(map[string]registered),
		policy:   policy,
		errors:   errors,
		truncate: truncateChars,
	}
}

// Register adds a tool, compiling its parameter schema up front so
// malformed definitions fail at startup rather than mid-task.
func (r *Registry) Register(t Tool) error {
	info := t.GetInfo()
	if info.Name == "" {
		return errdefs.New(errdefs.KindConfig, "tool name cannot be empty")
	}
	switch info.Danger {
	case DangerSafe, DangerMutating, DangerPrivileged:
	default:
		return errdefs.New(errdefs.KindConfig, "tool %q: unknown danger class %q", info.Name, info.Danger)
	}

	raw, err := BuildSchema(info.Parameters)
	if err != nil {
		return errdefs.Wrap(errdefs.KindConfig, err, "tool %q: bad parameter definition", info.Name)
	}
	schema, err := CompileSchema(raw)
	if err != nil {
		return errdefs.Wrap(errdefs.KindConfig, err, "tool %q: schema compilation failed", info.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[info.Name]; exists {
		return errdefs.New(errdefs.KindConfig, "tool %q already registered", info.Name)
	}
	r.tools[info.Name] = registered{tool: t, info: info, schema: schema}
	return nil
}

// Names lists registered tools in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions renders the registry as function definitions for the
// chat request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, reg := range r.tools {
		params, err := BuildSchema(reg.info.Parameters)
		if err != nil {
			continue
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        reg.info.Name,
			Description: reg.info.Description,
			Parameters:  params,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs one tool call through the full pipeline. It always
// returns a ToolResult; the error return is reserved for context
// cancellation so a cancelled task stops instead of looping on
// observations.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	start := time.Now()
	log := logger.Get()

	if err := ctx.Err(); err != nil {
		return ToolResult{}, errdefs.Wrap(errdefs.KindCancelled, err, "task cancelled")
	}

	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		res := errorResult(name, fmt.Sprintf("tool %q not found", name), start, nil)
		return r.record(ctx, res, args), nil
	}

	if err := ValidateArgs(reg.schema, args); err != nil {
		res := errorResult(name, fmt.Sprintf("invalid arguments: %v", err), start, argMeta(args))
		return r.record(ctx, res, args), nil
	}

	// Past failures of this tool surface before it runs again.
	var preflight errormem.Preflight
	if r.errors != nil {
		preflight = r.errors.PreventionStrategy(ctx, name, operationOf(args), args)
		for _, w := range preflight.Warnings {
			log.Warn("preflight warning", "tool", name, "confidence", preflight.Confidence, "warning", w)
		}
		for _, v := range preflight.RecommendedValidations {
			log.Info("preflight validation", "tool", name, "suggestion", v)
		}
	}

	escalated := false
	reason := ""
	if assessor, ok := reg.tool.(riskAssessor); ok {
		escalated, reason = assessor.AssessRisk(args)
	}

	if r.policy.Decide(reg.info.Danger, escalated) == DecisionAsk {
		prompt := confirmPrompt(reg.info, args, reason, preflight.Warnings)
		if !r.policy.Approve(ctx, prompt) {
			log.Info("tool call declined", "tool", name)
			res := blockedResult(name, "user declined", start, argMeta(args))
			return r.record(ctx, res, args), nil
		}
	}

	res, err := reg.tool.Execute(ctx, args)
	if err != nil {
		// Tools report failures through the result; a raw error here
		// means the tool itself misbehaved.
		res = errorResult(name, err.Error(), start, argMeta(args))
	}
	if res.ToolName == "" {
		res.ToolName = name
	}
	if res.ExecutionTime == 0 {
		res.ExecutionTime = time.Since(start)
	}

	res = r.record(ctx, res, args)
	if res.Success() {
		log.Debug("tool executed", "tool", name, "duration", res.ExecutionTime)
	} else {
		log.Warn("tool failed", "tool", name, "status", string(res.Status), "error", res.Error)
	}
	return res, ctx.Err()
}

// record updates metrics. Failures are additionally matched against
// the remediation catalog, tagged with the suggestion and mirrored
// into the error memory.
func (r *Registry) record(ctx context.Context, res ToolResult, args map[string]any) ToolResult {
	metrics.ToolExecutions.WithLabelValues(res.ToolName, string(res.Status)).Inc()
	if res.Success() || r.errors == nil {
		return res
	}

	meta := argMeta(args)
	for k, v := range res.Metadata {
		switch v.(type) {
		case string, bool, int, int64, float64:
			meta[k] = v
		}
	}
	meta["status"] = string(res.Status)

	rem := errormem.Remediate(errormem.Event{
		Tool:      res.ToolName,
		Operation: operationOf(args),
		Message:   res.Error,
		Meta:      meta,
	})
	if res.Metadata == nil {
		res.Metadata = make(map[string]any, 1)
	}
	res.Metadata["remediation"] = rem.Suggestion
	meta["remediation"] = rem.Suggestion

	if _, err := r.errors.Log(ctx, res.ToolName, operationOf(args), res.Error, meta); err != nil {
		logger.Get().Warn("failed to record tool error", "tool", res.ToolName, "error", err)
	}
	return res
}

// Observation renders a result for the conversation window: a status
// prefix plus the output or error, the catalog suggestion on
// failures, truncated to the configured length on a rune boundary.
func (r *Registry) Observation(res ToolResult) string {
	var b strings.Builder
	switch res.Status {
	case StatusSuccess:
		b.WriteString("Success: ")
		b.WriteString(res.Output)
	case StatusBlocked:
		b.WriteString("Blocked: ")
		b.WriteString(res.Error)
	case StatusTimeout:
		b.WriteString("Timeout: ")
		b.WriteString(res.Error)
	default:
		b.WriteString("Error: ")
		b.WriteString(res.Error)
	}
	if res.Status != StatusSuccess {
		if rem, ok := res.Metadata["remediation"].(string); ok && rem != "" {
			b.WriteString(" | Suggestion: ")
			b.WriteString(rem)
		}
	}

	s := b.String()
	if r.truncate > 0 && len(s) > r.truncate {
		cut := r.truncate
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "... [truncated]"
	}
	return s
}

func confirmPrompt(info ToolInfo, args map[string]any, reason string, warnings []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Allow %s (%s)?", info.Name, info.Danger)
	if reason != "" {
		fmt.Fprintf(&b, " %s.", reason)
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, args[k])
	}
	for _, w := range warnings {
		fmt.Fprintf(&b, " [warning: %s]", w)
	}
	return b.String()
}

// argMeta keeps the scalar arguments for the error memory.
func argMeta(args map[string]any) map[string]any {
	meta := make(map[string]any, len(args))
	for k, v := range args {
		switch v.(type) {
		case string, bool, int, int64, float64:
			meta[k] = v
		}
	}
	return meta
}

func operationOf(args map[string]any) string {
	if op, ok := args["operation"].(string); ok {
		return op
	}
	return ""
}
