// Package ratelimit implements a sliding-window request limiter used
// to pace calls to the chat endpoint.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter allows at most limit events per window. The window slides:
// an event admitted at time t occupies a slot until t+window.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events []time.Time
	now    func() time.Time
}

// NewPerMinute builds a limiter allowing rpm requests per minute.
func NewPerMinute(rpm int) *Limiter {
	return New(rpm, time.Minute)
}

func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records an event if a slot is free and reports whether it was
// admitted.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)
	if len(l.events) >= l.limit {
		return false
	}
	l.events = append(l.events, now)
	return true
}

// Acquire blocks until a slot is free or the context is done. The
// wait is bounded by the age of the oldest event in the window.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.evict(now)
		if len(l.events) < l.limit {
			l.events = append(l.events, now)
			l.mu.Unlock()
			return nil
		}
		wait := l.events[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Pending returns the number of events currently occupying the window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return len(l.events)
}

func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.events) && !l.events[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.events = append(l.events[:0], l.events[i:]...)
	}
}
