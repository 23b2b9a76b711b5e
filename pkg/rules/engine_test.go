package rules

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(filepath.Join(t.TempDir(), "rules.json"))
	require.NoError(t, err)
	return e
}

func TestMatchKinds(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Add("cekrek", TriggerContains, "memori terbaca", 0)
	require.NoError(t, err)
	_, err = e.Add("status", TriggerExact, "semua sistem normal", 0)
	require.NoError(t, err)
	_, err = e.Add(`^halo+\b`, TriggerRegex, "halo juga!", 0)
	require.NoError(t, err)

	tests := []struct {
		input   string
		want    string
		matched bool
	}{
		{"cekrek", "memori terbaca", true},
		{"tolong cekrek sekarang", "memori terbaca", true},
		{"CEKREK", "memori terbaca", true},
		{"  status  ", "semua sistem normal", true},
		{"status laporan", "", false},
		{"haloooo dunia", "halo juga!", true},
		{"tidak cocok sama sekali", "", false},
	}

	for _, tt := range tests {
		m, ok := e.Match(tt.input)
		assert.Equal(t, tt.matched, ok, "input %q", tt.input)
		if tt.matched {
			assert.Equal(t, tt.want, m.Response, "input %q", tt.input)
		}
	}
}

func TestPriorityOrdering(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Add("test", TriggerContains, "low priority", 0)
	require.NoError(t, err)
	_, err = e.Add("test", TriggerContains, "high priority", 10)
	require.NoError(t, err)

	m, ok := e.Match("run a test please")
	require.True(t, ok)
	assert.Equal(t, "high priority", m.Response)
}

func TestNewestWinsOnEqualPriority(t *testing.T) {
	e := newTestEngine(t)
	base := time.Now()
	e.now = func() time.Time { return base }
	_, err := e.Add("ping", TriggerContains, "older", 0)
	require.NoError(t, err)
	e.now = func() time.Time { return base.Add(time.Second) }
	_, err = e.Add("ping", TriggerContains, "newer", 0)
	require.NoError(t, err)

	m, ok := e.Match("ping")
	require.True(t, ok)
	assert.Equal(t, "newer", m.Response)
}

func TestInvalidRegexRejectedAtAdd(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Add("([unclosed", TriggerRegex, "response", 0)
	assert.Error(t, err)
	assert.Equal(t, 0, e.Count())
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")

	e1, err := NewEngine(path)
	require.NoError(t, err)
	id, err := e1.Add("cekrek", TriggerContains, "memori terbaca", 0)
	require.NoError(t, err)

	e2, err := NewEngine(path)
	require.NoError(t, err)
	m, ok := e2.Match("cekrek")
	require.True(t, ok)
	assert.Equal(t, id, m.RuleID)
	assert.Equal(t, "memori terbaca", m.Response)
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(path, []byte("[{broken"), 0644))

	e, err := NewEngine(path)
	require.NoError(t, err)
	assert.Equal(t, 0, e.Count())
}

func TestUpsertReplacesSameTrigger(t *testing.T) {
	e := newTestEngine(t)
	id1, err := e.Upsert("jika hujan", TriggerContains, "bawa payung", 0)
	require.NoError(t, err)
	id2, err := e.Upsert("jika hujan", TriggerContains, "pakai jas hujan", 0)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "same trigger updates in place")
	assert.Equal(t, 1, e.Count())

	m, ok := e.Match("jika hujan nanti sore")
	require.True(t, ok)
	assert.Equal(t, "pakai jas hujan", m.Response)
}

func TestRemove(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.Add("cekrek", TriggerContains, "memori terbaca", 0)
	require.NoError(t, err)

	assert.True(t, e.Remove(id))
	assert.False(t, e.Remove(id), "second removal reports missing")
	_, ok := e.Match("cekrek")
	assert.False(t, ok)
}

func TestExportImport(t *testing.T) {
	e1 := newTestEngine(t)
	_, err := e1.Add("cekrek", TriggerContains, "memori terbaca", 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, e1.Export(&buf))

	e2 := newTestEngine(t)
	added, err := e2.Import(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	// Importing the same list again adds nothing.
	var buf2 bytes.Buffer
	require.NoError(t, e1.Export(&buf2))
	added, err = e2.Import(&buf2)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}
