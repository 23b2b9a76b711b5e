// Package rules implements the deterministic trigger/response engine
// checked before any LLM call.
package rules

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TriggerKind selects how a trigger is compared against user input.
type TriggerKind string

const (
	// TriggerExact matches the whole input, ignoring case and
	// surrounding whitespace.
	TriggerExact TriggerKind = "exact"
	// TriggerContains is a case-insensitive substring match.
	TriggerContains TriggerKind = "contains"
	// TriggerRegex matches with case-insensitive multiline regexp.
	TriggerRegex TriggerKind = "regex"
)

type Rule struct {
	ID        string      `json:"id"`
	Trigger   string      `json:"trigger"`
	Kind      TriggerKind `json:"trigger_kind"`
	Response  string      `json:"response"`
	Priority  int         `json:"priority"`
	CreatedAt time.Time   `json:"created_at"`
}

// Match is a successful rule lookup.
type Match struct {
	RuleID   string
	Response string
}

// Engine holds the rule list and its JSON persistence. Mutations
// rewrite the file atomically.
type Engine struct {
	mu    sync.RWMutex
	path  string
	rules []Rule
	now   func() time.Time
}

// NewEngine loads the rule list from path. A missing or corrupt file
// starts the engine empty; corruption is logged, not fatal.
func NewEngine(path string) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create rules directory: %w", err)
	}

	e := &Engine{path: path, now: time.Now}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("rules file unreadable, starting empty", "path", path, "error", err)
		}
		return e, nil
	}
	if err := json.Unmarshal(data, &e.rules); err != nil {
		slog.Warn("rules file corrupt, starting empty", "path", path, "error", err)
		e.rules = nil
	}
	return e, nil
}

// Add appends a rule. Regex triggers must compile; invalid patterns
// are rejected here, never at match time.
func (e *Engine) Add(trigger string, kind TriggerKind, response string, priority int) (string, error) {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		return "", fmt.Errorf("trigger cannot be empty")
	}
	if response == "" {
		return "", fmt.Errorf("response cannot be empty")
	}
	switch kind {
	case TriggerExact, TriggerContains:
	case TriggerRegex:
		if _, err := regexp.Compile("(?im)" + trigger); err != nil {
			return "", fmt.Errorf("invalid regex trigger: %w", err)
		}
	default:
		return "", fmt.Errorf("unknown trigger kind %q", kind)
	}

	rule := Rule{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Kind:      kind,
		Response:  response,
		Priority:  priority,
		CreatedAt: e.now(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule)
	if err := e.persist(); err != nil {
		e.rules = e.rules[:len(e.rules)-1]
		return "", err
	}
	return rule.ID, nil
}

// Upsert behaves like Add but replaces an existing rule with the same
// (kind, trigger) pair, so repeating the same utterance does not pile
// up duplicates.
func (e *Engine) Upsert(trigger string, kind TriggerKind, response string, priority int) (string, error) {
	normalized := strings.TrimSpace(trigger)

	e.mu.Lock()
	for i, r := range e.rules {
		if r.Kind == kind && strings.EqualFold(r.Trigger, normalized) {
			e.rules[i].Response = response
			e.rules[i].Priority = priority
			id := r.ID
			err := e.persist()
			e.mu.Unlock()
			return id, err
		}
	}
	e.mu.Unlock()

	return e.Add(trigger, kind, response, priority)
}

// Remove deletes a rule by id and reports whether it existed.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, r := range e.rules {
		if r.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			if err := e.persist(); err != nil {
				slog.Warn("failed to persist rule removal", "error", err)
			}
			return true
		}
	}
	return false
}

// Match evaluates the input against all rules, ordered by priority
// descending then creation time descending; the first match wins.
// Rules are evaluated solely on the raw user input.
func (e *Engine) Match(input string) (Match, bool) {
	e.mu.RLock()
	ordered := make([]Rule, len(e.rules))
	copy(ordered, e.rules)
	e.mu.RUnlock()

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	normalized := strings.ToLower(strings.TrimSpace(input))
	lowerInput := strings.ToLower(input)

	for _, r := range ordered {
		switch r.Kind {
		case TriggerExact:
			if normalized == strings.ToLower(strings.TrimSpace(r.Trigger)) {
				return Match{RuleID: r.ID, Response: r.Response}, true
			}
		case TriggerContains:
			if strings.Contains(lowerInput, strings.ToLower(r.Trigger)) {
				return Match{RuleID: r.ID, Response: r.Response}, true
			}
		case TriggerRegex:
			re, err := regexp.Compile("(?im)" + r.Trigger)
			if err != nil {
				continue
			}
			if re.MatchString(input) {
				return Match{RuleID: r.ID, Response: r.Response}, true
			}
		}
	}
	return Match{}, false
}

// List returns a copy of all rules.
func (e *Engine) List() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Count returns the number of persisted rules.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Export writes the rule list as JSON.
func (e *Engine) Export(w io.Writer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(e.rules)
}

// Import merges rules from a JSON list. Rules with ids already present
// are skipped.
func (e *Engine) Import(r io.Reader) (int, error) {
	var incoming []Rule
	if err := json.NewDecoder(r).Decode(&incoming); err != nil {
		return 0, fmt.Errorf("decode rules: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	existing := make(map[string]bool, len(e.rules))
	for _, r := range e.rules {
		existing[r.ID] = true
	}

	added := 0
	for _, r := range incoming {
		if r.ID == "" || existing[r.ID] {
			continue
		}
		if r.Kind == TriggerRegex {
			if _, err := regexp.Compile("(?im)" + r.Trigger); err != nil {
				slog.Warn("skipping imported rule with invalid regex", "id", r.ID, "error", err)
				continue
			}
		}
		e.rules = append(e.rules, r)
		existing[r.ID] = true
		added++
	}

	return added, e.persist()
}

// persist rewrites the file atomically. Caller holds the write lock.
func (e *Engine) persist() error {
	data, err := json.MarshalIndent(e.rules, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write rules file: %w", err)
	}
	return os.Rename(tmp, e.path)
}
