package reasoner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adiwardana/pandu/pkg/logger"
)

// AuditEntry is one recorded tool action within a task.
type AuditEntry struct {
	UserCommand string    `json:"user_command"`
	ToolAction  string    `json:"tool_action"`
	Result      string    `json:"result"`
	Status      string    `json:"status"`
	TS          time.Time `json:"ts"`
}

// AuditLog keeps an append-only trail of tool actions under the
// context directory. Recording is best effort; a failing audit write
// never fails the task.
type AuditLog struct {
	mu      sync.Mutex
	path    string
	entries []AuditEntry
	now     func() time.Time
}

// NewAuditLog opens or creates the log. A nil return means auditing is
// disabled; all methods tolerate the nil receiver.
func NewAuditLog(dir string, enabled bool) *AuditLog {
	if !enabled {
		return nil
	}
	a := &AuditLog{
		path: filepath.Join(dir, "context_log.json"),
		now:  time.Now,
	}

	data, err := os.ReadFile(a.path)
	if err == nil {
		if err := json.Unmarshal(data, &a.entries); err != nil {
			logger.Get().Warn("audit log unreadable, starting fresh", "path", a.path, "error", err)
			a.entries = nil
		}
	}
	return a
}

// Record appends one entry and persists the log.
func (a *AuditLog) Record(userCommand, toolAction, result, status string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = append(a.entries, AuditEntry{
		UserCommand: userCommand,
		ToolAction:  toolAction,
		Result:      result,
		Status:      status,
		TS:          a.now(),
	})
	if err := a.persist(); err != nil {
		logger.Get().Warn("audit log write failed", "error", err)
	}
}

// Tail returns the most recent n entries, oldest first.
func (a *AuditLog) Tail(n int) []AuditEntry {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if n <= 0 || n > len(a.entries) {
		n = len(a.entries)
	}
	out := make([]AuditEntry, n)
	copy(out, a.entries[len(a.entries)-n:])
	return out
}

func (a *AuditLog) persist() error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(a.entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, a.path)
}
