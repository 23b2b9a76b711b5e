package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adiwardana/pandu/pkg/reasoner"
)

type slowRunner struct {
	running int32
	overlap int32
	count   int32
	fail    bool
}

func (r *slowRunner) Run(ctx context.Context, task string) (*reasoner.Result, error) {
	if atomic.AddInt32(&r.running, 1) > 1 {
		atomic.StoreInt32(&r.overlap, 1)
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&r.running, -1)
	n := atomic.AddInt32(&r.count, 1)
	if r.fail {
		return nil, fmt.Errorf("run %d failed", n)
	}
	return &reasoner.Result{FinalText: fmt.Sprintf("done %s", task)}, nil
}

func TestSubmitSerializes(t *testing.T) {
	runner := &slowRunner{}
	s := New(runner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Submit(context.Background(), fmt.Sprintf("task %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&runner.overlap), "tasks never overlap")
	assert.Len(t, s.History(), 8)
}

func TestHistoryRecordsFailures(t *testing.T) {
	s := New(&slowRunner{fail: true})

	_, err := s.Submit(context.Background(), "doomed")
	require.Error(t, err)

	history := s.History()
	require.Len(t, history, 1)
	assert.Equal(t, "doomed", history[0].Task)
	assert.Error(t, history[0].Err)
	assert.Empty(t, history[0].FinalText)
}

func TestSessionID(t *testing.T) {
	a, b := New(&slowRunner{}), New(&slowRunner{})
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}
