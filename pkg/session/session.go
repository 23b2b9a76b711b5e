// Package session serializes task execution. The reasoner owns one
// conversation at a time, so concurrent submissions queue up instead
// of interleaving.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adiwardana/pandu/pkg/logger"
	"github.com/adiwardana/pandu/pkg/reasoner"
)

// Runner executes one task. The reasoner satisfies it.
type Runner interface {
	Run(ctx context.Context, task string) (*reasoner.Result, error)
}

// Exchange is one completed task within a session.
type Exchange struct {
	Task      string
	FinalText string
	Err       error
	Started   time.Time
	Elapsed   time.Duration
}

// Session runs tasks strictly one after another and keeps their
// history.
type Session struct {
	id     string
	runner Runner

	mu      sync.Mutex
	history []Exchange
}

func New(runner Runner) *Session {
	return &Session{
		id:     uuid.NewString(),
		runner: runner,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Submit runs one task. Callers block until earlier submissions in the
// same session finish.
func (s *Session) Submit(ctx context.Context, task string) (*reasoner.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	result, err := s.runner.Run(ctx, task)

	exchange := Exchange{
		Task:    task,
		Err:     err,
		Started: started,
		Elapsed: time.Since(started),
	}
	if result != nil {
		exchange.FinalText = result.FinalText
	}
	s.history = append(s.history, exchange)

	if err != nil {
		logger.Get().Warn("task failed", "session", s.id, "error", err)
	}
	return result, err
}

// History returns a copy of the completed exchanges.
func (s *Session) History() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Exchange, len(s.history))
	copy(out, s.history)
	return out
}
