// Package monitor holds periodic maintenance: memory hygiene between
// tasks and a process memory snapshot.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/adiwardana/pandu/pkg/errormem"
	"github.com/adiwardana/pandu/pkg/logger"
	"github.com/adiwardana/pandu/pkg/memory"
	"github.com/adiwardana/pandu/pkg/metrics"
	"github.com/adiwardana/pandu/pkg/vector"
)

// Housekeeper prunes the memory collections every N finished tasks.
// Facts are only size-capped, successful experiences survive
// age-based cleanup, everything obeys the collection size cap.
type Housekeeper struct {
	store      vector.Store
	errors     *errormem.Store
	interval   int
	maxAgeDays int
	maxSize    int

	mu      sync.Mutex
	counter int
}

func NewHousekeeper(store vector.Store, errors *errormem.Store, intervalTasks, maxAgeDays, maxCollectionSize int) *Housekeeper {
	return &Housekeeper{
		store:      store,
		errors:     errors,
		interval:   intervalTasks,
		maxAgeDays: maxAgeDays,
		maxSize:    maxCollectionSize,
	}
}

// AfterTask counts a finished task and runs hygiene when the interval
// elapses.
func (h *Housekeeper) AfterTask(ctx context.Context) {
	h.mu.Lock()
	h.counter++
	due := h.counter%h.interval == 0
	h.mu.Unlock()

	if due {
		h.Run(ctx)
	}
}

// Run performs one hygiene pass. Failures are logged per collection
// and never propagate; a broken cleanup must not fail a task.
func (h *Housekeeper) Run(ctx context.Context) {
	log := logger.Get()
	start := time.Now()
	removed := 0

	collections := []struct {
		name           string
		ageBased       bool
		keepSuccessful bool
	}{
		{memory.CollFacts, false, false},
		{memory.CollExperiences, true, true},
		{memory.CollLessons, true, false},
		{memory.CollStrategies, true, false},
		{memory.CollErrors, true, false},
	}
	for _, coll := range collections {
		if coll.ageBased {
			n, err := h.store.CleanupOld(ctx, coll.name, h.maxAgeDays, coll.keepSuccessful)
			if err != nil {
				log.Warn("hygiene cleanup failed", "collection", coll.name, "error", err)
				continue
			}
			removed += n
		}

		n, err := h.store.LimitSize(ctx, coll.name, h.maxSize)
		if err != nil {
			log.Warn("hygiene size cap failed", "collection", coll.name, "error", err)
			continue
		}
		removed += n
	}

	if h.errors != nil {
		n, err := h.errors.CleanupOld(h.maxAgeDays)
		if err != nil {
			log.Warn("error log cleanup failed", "error", err)
		} else {
			removed += n
		}
	}

	snap := ReadMemStats()
	metrics.HousekeepingRuns.Inc()
	log.Info("hygiene pass complete",
		"removed", removed,
		"duration", time.Since(start),
		"heap_mb", snap.AllocMB,
		"goroutines", snap.Goroutines)
}

// TaskCount returns how many tasks have been counted so far.
func (h *Housekeeper) TaskCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counter
}
