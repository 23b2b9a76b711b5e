package vector

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestUpsertIsIdempotentByID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, "facts", "f1", "user's name is Budi", nil))
	require.NoError(t, s.Upsert(ctx, "facts", "f1", "user's name is Budi Santoso", nil))

	n, err := s.Count(ctx, "facts")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := s.Query(ctx, "facts", "nama budi santoso", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "user's name is Budi Santoso", results[0].Document)
}

func TestQueryRanksByOverlap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, "facts", "f1", "user's name is Budi", nil))
	require.NoError(t, s.Upsert(ctx, "facts", "f2", "user prefers dark mode", nil))
	require.NoError(t, s.Upsert(ctx, "facts", "f3", "capital of France is Paris", nil))

	results, err := s.Query(ctx, "facts", "name budi", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "f1", results[0].ID)
	assert.Less(t, results[0].Distance, float32(1))
}

func TestQueryNoMatchReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Upsert(ctx, "facts", "f1", "user's name is Budi", nil))

	results, err := s.Query(ctx, "facts", "zzz qqq", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s1.Upsert(ctx, "rules", "r1", "cekrek -> memori terbaca",
		map[string]any{"trigger": "cekrek"}))

	s2, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	n, err := s2.Count(ctx, "rules")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := s2.Query(ctx, "rules", "cekrek", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cekrek", results[0].Metadata["trigger"])
}

func TestDeleteByFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, "errors", "e1", "file not found",
		map[string]any{"tool": "read_file"}))
	require.NoError(t, s.Upsert(ctx, "errors", "e2", "command timed out",
		map[string]any{"tool": "terminal"}))

	deleted, err := s.DeleteByFilter(ctx, "errors", func(r Record) bool {
		return r.Metadata["tool"] == "read_file"
	})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	n, _ := s.Count(ctx, "errors")
	assert.Equal(t, 1, n)
}

func TestCleanupOldKeepsSuccessful(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now()
	old := now.AddDate(0, 0, -100).Unix()
	recent := now.AddDate(0, 0, -1).Unix()

	require.NoError(t, s.Upsert(ctx, "experiences", "old-fail", "task failed",
		map[string]any{"ts": old, "success": false}))
	require.NoError(t, s.Upsert(ctx, "experiences", "old-ok", "task succeeded",
		map[string]any{"ts": old, "success": true}))
	require.NoError(t, s.Upsert(ctx, "experiences", "new-fail", "task failed",
		map[string]any{"ts": recent, "success": false}))

	deleted, err := s.CleanupOld(ctx, "experiences", 90, true)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	n, _ := s.Count(ctx, "experiences")
	assert.Equal(t, 2, n, "successful old record and recent record survive")
}

func TestLimitSizeDropsOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now().Unix()
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Upsert(ctx, "lessons", id, "lesson "+id,
			map[string]any{"ts": base + int64(i)}))
	}

	pruned, err := s.LimitSize(ctx, "lessons", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	n, _ := s.Count(ctx, "lessons")
	assert.Equal(t, 2, n)

	// The two newest remain.
	results, err := s.Query(ctx, "lessons", "lesson", 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"c", "d"}, ids)
}

func TestCorruptCollectionFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s1.Upsert(ctx, "facts", "f1", "something", nil))

	// Corrupt the file on disk.
	path := s1.recordsPath("facts")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s2, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	n, err := s2.Count(ctx, "facts")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
