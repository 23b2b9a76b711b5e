// Package errormem records tool and LLM failures, matches them
// against a remediation catalog and surfaces pre-flight warnings
// derived from past errors.
package errormem

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adiwardana/pandu/pkg/vector"
)

// CollErrors is the vector collection mirroring the JSON audit log.
const CollErrors = "errors"

// Event is one recorded failure. Meta carries structured context
// consumed by remediation placeholders (path, extension, file_size,
// max_size).
type Event struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Operation string         `json:"operation"`
	Message   string         `json:"error"`
	Meta      map[string]any `json:"meta,omitempty"`
	TS        time.Time      `json:"ts"`
}

// Store persists events to an append-only JSON log and mirrors them
// into the errors collection for semantic lookup.
type Store struct {
	mu      sync.Mutex
	logPath string
	vectors vector.Store
	events  []Event
	lastID  int64
	now     func() time.Time
}

// NewStore opens the log at dir/error_logs.json. A missing or corrupt
// log starts empty.
func NewStore(dir string, vectors vector.Store) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create errors directory: %w", err)
	}

	s := &Store{
		logPath: filepath.Join(dir, "error_logs.json"),
		vectors: vectors,
		now:     time.Now,
	}

	data, err := os.ReadFile(s.logPath)
	if err == nil {
		if err := json.Unmarshal(data, &s.events); err != nil {
			slog.Warn("error log corrupt, starting empty", "path", s.logPath, "error", err)
			s.events = nil
		}
	} else if !os.IsNotExist(err) {
		slog.Warn("error log unreadable, starting empty", "path", s.logPath, "error", err)
	}
	return s, nil
}

// Log records a failure and returns its id. The event is written to
// the JSON log before it is mirrored anywhere else, so the audit
// trail exists even when the vector store write fails.
func (s *Store) Log(ctx context.Context, tool, operation, message string, meta map[string]any) (string, error) {
	s.mu.Lock()

	millis := s.now().UnixMilli()
	if millis <= s.lastID {
		millis = s.lastID + 1
	}
	s.lastID = millis

	event := Event{
		ID:        fmt.Sprintf("err_%d", millis),
		Tool:      tool,
		Operation: operation,
		Message:   message,
		Meta:      meta,
		TS:        s.now(),
	}
	s.events = append(s.events, event)
	err := s.persist()
	s.mu.Unlock()

	if err != nil {
		return "", err
	}

	if s.vectors != nil {
		doc := fmt.Sprintf("%s %s: %s", tool, operation, message)
		vmeta := map[string]any{"tool": tool, "operation": operation, "ts": event.TS.Unix()}
		for k, v := range meta {
			vmeta[k] = v
		}
		if err := s.vectors.Upsert(ctx, CollErrors, event.ID, doc, vmeta); err != nil {
			slog.Warn("error event not mirrored to vector store", "id", event.ID, "error", err)
		}
	}

	slog.Debug("error event logged", "id", event.ID, "tool", tool, "operation", operation)
	return event.ID, nil
}

// Events returns a copy of all recorded events.
func (s *Store) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Count returns the number of recorded events.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Summary renders a short human-readable digest for the CLI.
func (s *Store) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) == 0 {
		return "No errors recorded."
	}

	cutoff := s.now().Add(-24 * time.Hour)
	recent := 0
	byTool := make(map[string]int)
	for _, e := range s.events {
		byTool[e.Tool]++
		if e.TS.After(cutoff) {
			recent++
		}
	}

	worstTool, worstCount := "", 0
	for tool, n := range byTool {
		if n > worstCount || (n == worstCount && tool < worstTool) {
			worstTool, worstCount = tool, n
		}
	}

	return fmt.Sprintf("%d errors recorded (%d in the last 24h); most failures from %q (%d)",
		len(s.events), recent, worstTool, worstCount)
}

// persist rewrites the log atomically. Caller holds the lock.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.events, "", "  ")
	if err != nil {
		return fmt.Errorf("encode error log: %w", err)
	}
	tmp := s.logPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write error log: %w", err)
	}
	return os.Rename(tmp, s.logPath)
}
