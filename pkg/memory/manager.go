package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adiwardana/pandu/pkg/rules"
	"github.com/adiwardana/pandu/pkg/vector"
)

// Collection names under the data directory. Rules live in the rule
// engine's own file, not in a vector collection.
const (
	CollFacts       = "facts"
	CollExperiences = "experiences"
	CollLessons     = "lessons"
	CollStrategies  = "strategies"
	CollErrors      = "errors"
)

// TaskOutcome summarizes one finished task for storage.
type TaskOutcome struct {
	Task         string
	FinalText    string
	Success      bool
	ActionsCount int
	Actions      []string
}

// Manager decides what a finished interaction persists as and writes
// it to the right place.
type Manager struct {
	store   vector.Store
	rules   *rules.Engine
	filter  *Filter
	maxSize int
	now     func() time.Time
}

func NewManager(store vector.Store, engine *rules.Engine, maxCollectionSize int) *Manager {
	return &Manager{
		store:   store,
		rules:   engine,
		filter:  NewFilter(),
		maxSize: maxCollectionSize,
		now:     time.Now,
	}
}

// Filter exposes the classifier for callers that only need
// classification.
func (m *Manager) Filter() *Filter {
	return m.filter
}

// StoreInteraction classifies the outcome and persists accordingly.
// USELESS interactions never produce storage.
func (m *Manager) StoreInteraction(ctx context.Context, outcome TaskOutcome) (Class, error) {
	class := m.filter.Classify(outcome.Task, outcome.FinalText, outcome.Success, outcome.ActionsCount)

	switch class {
	case ClassRule:
		trigger, response, ok := m.filter.ExtractRule(strings.TrimSpace(outcome.Task))
		if !ok {
			return ClassUseless, nil
		}
		if _, err := m.rules.Upsert(trigger, rules.TriggerContains, response, 0); err != nil {
			return class, fmt.Errorf("store rule: %w", err)
		}
		slog.Info("stored rule", "trigger", trigger)

	case ClassFact:
		category, value, ok := m.filter.ExtractFact(strings.TrimSpace(outcome.Task))
		if !ok {
			return ClassUseless, nil
		}
		doc := renderFact(category, value)
		id := "fact_" + uuid.NewString()
		err := m.store.Upsert(ctx, CollFacts, id, doc, map[string]any{
			"category": category,
			"value":    value,
			"source":   strings.TrimSpace(outcome.Task),
			"ts":       m.now().Unix(),
		})
		if err != nil {
			return class, fmt.Errorf("store fact: %w", err)
		}
		if _, err := m.store.LimitSize(ctx, CollFacts, m.maxSize); err != nil {
			slog.Warn("fact collection size cap failed", "error", err)
		}
		slog.Info("stored fact", "category", category)

	case ClassExperience:
		id := "exp_" + uuid.NewString()
		doc := renderExperience(outcome)
		err := m.store.Upsert(ctx, CollExperiences, id, doc, map[string]any{
			"task":    outcome.Task,
			"success": outcome.Success,
			"actions": outcome.ActionsCount,
			"ts":      m.now().Unix(),
		})
		if err != nil {
			return class, fmt.Errorf("store experience: %w", err)
		}
		if _, err := m.store.LimitSize(ctx, CollExperiences, m.maxSize); err != nil {
			slog.Warn("experience collection size cap failed", "error", err)
		}
	}

	return class, nil
}

// StoreLesson records summarized guidance with an importance weight.
func (m *Manager) StoreLesson(ctx context.Context, lesson, context_, category string, importance float64) (string, error) {
	if importance < 0 || importance > 1 {
		return "", fmt.Errorf("importance must be in [0, 1], got %g", importance)
	}
	id := "lesson_" + uuid.NewString()
	err := m.store.Upsert(ctx, CollLessons, id, lesson, map[string]any{
		"context":    context_,
		"category":   category,
		"importance": importance,
		"ts":         m.now().Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("store lesson: %w", err)
	}
	return id, nil
}

// StoreStrategy records a reusable approach for a task type.
func (m *Manager) StoreStrategy(ctx context.Context, strategy, taskType string, successRate float64) (string, error) {
	if successRate < 0 || successRate > 1 {
		return "", fmt.Errorf("success rate must be in [0, 1], got %g", successRate)
	}
	id := "strategy_" + uuid.NewString()
	err := m.store.Upsert(ctx, CollStrategies, id, strategy, map[string]any{
		"task_type":    taskType,
		"success_rate": successRate,
		"usage_count":  0,
		"ts":           m.now().Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("store strategy: %w", err)
	}
	return id, nil
}

// Stats reports per-collection record counts plus the rule count.
func (m *Manager) Stats(ctx context.Context) (map[string]int, error) {
	stats := map[string]int{"rules": m.rules.Count()}
	for _, coll := range []string{CollFacts, CollExperiences, CollLessons, CollStrategies, CollErrors} {
		n, err := m.store.Count(ctx, coll)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", coll, err)
		}
		stats[coll] = n
	}
	return stats, nil
}

func renderFact(category, value string) string {
	switch category {
	case "name":
		return "User's name is " + value
	case "preference":
		return "User prefers " + value
	default:
		return value
	}
}

func renderExperience(outcome TaskOutcome) string {
	var b strings.Builder
	b.WriteString("Task: ")
	b.WriteString(outcome.Task)
	if len(outcome.Actions) > 0 {
		b.WriteString(" | Actions: ")
		b.WriteString(strings.Join(outcome.Actions, ", "))
	}
	if outcome.Success {
		b.WriteString(" | Outcome: success")
	} else {
		b.WriteString(" | Outcome: failed")
	}
	if outcome.FinalText != "" {
		summary := outcome.FinalText
		if len(summary) > 200 {
			summary = summary[:200]
		}
		b.WriteString(" | Result: ")
		b.WriteString(summary)
	}
	return b.String()
}
