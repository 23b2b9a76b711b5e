// Package metrics exposes Prometheus counters for the runtime. The
// collectors are registered on a package registry so embedding
// applications can expose or ignore them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registry holds all runtime collectors.
	Registry = prometheus.NewRegistry()

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pandu_llm_requests_total",
			Help: "Chat completions issued, by outcome.",
		},
		[]string{"outcome"},
	)

	LLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pandu_llm_tokens_total",
			Help: "Tokens consumed, by kind (prompt, completion).",
		},
		[]string{"kind"},
	)

	ToolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pandu_tool_executions_total",
			Help: "Tool executions, by tool name and result status.",
		},
		[]string{"tool", "status"},
	)

	RuleHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pandu_rule_hits_total",
			Help: "Tasks answered by the deterministic rule engine.",
		},
	)

	TasksProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pandu_tasks_processed_total",
			Help: "Completed reasoning tasks.",
		},
	)

	HousekeepingRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pandu_housekeeping_runs_total",
			Help: "Housekeeper executions.",
		},
	)
)

func init() {
	Registry.MustRegister(
		LLMRequests,
		LLMTokens,
		ToolExecutions,
		RuleHits,
		TasksProcessed,
		HousekeepingRuns,
	)
}
