package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adiwardana/pandu/pkg/memory"
	"github.com/adiwardana/pandu/pkg/vector"
)

func seedStore(t *testing.T) vector.Store {
	t.Helper()
	ctx := context.Background()
	store, err := vector.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	old := time.Now().AddDate(0, 0, -120).Unix()
	require.NoError(t, store.Upsert(ctx, memory.CollFacts, "fact_old", "stale fact",
		map[string]any{"ts": old}))
	require.NoError(t, store.Upsert(ctx, memory.CollExperiences, "exp_old_ok", "old but successful",
		map[string]any{"ts": old, "success": true}))
	require.NoError(t, store.Upsert(ctx, memory.CollExperiences, "exp_old_bad", "old failure",
		map[string]any{"ts": old, "success": false}))
	require.NoError(t, store.Upsert(ctx, memory.CollFacts, "fact_new", "fresh fact",
		map[string]any{"ts": time.Now().Unix()}))
	return store
}

func TestHousekeeperRun(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	h := NewHousekeeper(store, nil, 10, 90, 100)

	h.Run(ctx)

	n, err := store.Count(ctx, memory.CollFacts)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "facts never expire by age")

	n, err = store.Count(ctx, memory.CollExperiences)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "successful old experience survives, failed one goes")
}

func TestHousekeeperCapsFactsBySize(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	h := NewHousekeeper(store, nil, 10, 90, 1)

	h.Run(ctx)

	n, err := store.Count(ctx, memory.CollFacts)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the size cap still applies to facts")
}

func TestHousekeeperInterval(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	h := NewHousekeeper(store, nil, 3, 90, 100)

	for i := 0; i < 2; i++ {
		h.AfterTask(ctx)
	}
	n, err := store.Count(ctx, memory.CollExperiences)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "nothing pruned before the interval elapses")

	h.AfterTask(ctx)
	n, err = store.Count(ctx, memory.CollExperiences)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "third task triggers the hygiene pass")
	assert.Equal(t, 3, h.TaskCount())
}

func TestReadMemStats(t *testing.T) {
	snap := ReadMemStats()
	assert.Greater(t, snap.AllocMB, 0.0)
	assert.Greater(t, snap.Goroutines, 0)
}
