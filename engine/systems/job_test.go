package systems

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
)

func TestJobSystemRunsCallbacks(t *testing.T) {
	js, err := NewJobSystem(2, 4)
	require.NoError(t, err)

	var mutex sync.Mutex
	var results []interface{}
	var failures []error
	var wg sync.WaitGroup

	boom := errors.New("boom")
	for i := 0; i < 4; i++ {
		wg.Add(1)
		require.NoError(t, js.Submit(JobTask{
			Name: "job",
			Type: JobTypeGeneral,
			Run: func(context.Context) (interface{}, error) {
				if i == 3 {
					return nil, boom
				}
				return i, nil
			},
			OnComplete: func(r interface{}) {
				mutex.Lock()
				results = append(results, r)
				mutex.Unlock()
			},
			OnFailure: func(err error) {
				mutex.Lock()
				failures = append(failures, err)
				mutex.Unlock()
			},
			OnCompletionCallback: wg.Done,
		}))
	}
	wg.Wait()
	require.NoError(t, js.Shutdown())

	assert.ElementsMatch(t, []interface{}{0, 1, 2}, results)
	assert.Equal(t, []error{boom}, failures)
}

func TestJobSystemRejectsAfterShutdown(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)

	js, err := NewJobSystem(1, 0)
	require.NoError(t, err)
	assert.Error(t, js.Submit(JobTask{Name: "empty"}))
	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())

	err = js.Submit(JobTask{Name: "late", Run: func(context.Context) (interface{}, error) { return nil, nil }})
	assert.ErrorIs(t, err, core.ErrShuttingDown)
}
