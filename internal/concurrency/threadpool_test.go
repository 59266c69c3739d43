package concurrency_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/internal/concurrency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadPoolRunsEveryItemOnce(t *testing.T) {
	const n = 1000
	var wg sync.WaitGroup
	wg.Add(n)
	seen := make([]atomic.Int32, n)

	tp, err := concurrency.NewThreadPool(4, n, func(i int) {
		seen[i].Add(1)
		wg.Done()
	})
	require.NoError(t, err)
	defer tp.Close()

	for i := 0; i < n; i++ {
		require.True(t, tp.Submit(i))
	}
	wg.Wait()
	for i := range seen {
		assert.EqualValues(t, 1, seen[i].Load(), "item %d", i)
	}
	assert.EqualValues(t, n, tp.Stats()["submitted_tasks"])
}

func TestThreadPoolRejectsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	tp, err := concurrency.NewThreadPool(1, 2, func(int) {
		started <- struct{}{}
		<-release
	})
	require.NoError(t, err)

	require.True(t, tp.Submit(0))
	<-started // the only worker is now busy

	assert.True(t, tp.Submit(1))
	assert.True(t, tp.Submit(2))
	assert.False(t, tp.Submit(3), "queue at capacity must reject without blocking")
	assert.Equal(t, 2, tp.Pending())
	assert.EqualValues(t, 1, tp.Stats()["rejected_tasks"])

	close(release)
	require.Eventually(t, func() bool { return tp.Pending() == 0 }, time.Second, time.Millisecond)
	tp.Close()
}

func TestThreadPoolNoConcurrentOwnerPerItem(t *testing.T) {
	type conn struct{ busy atomic.Int32 }
	conns := make([]*conn, 8)
	for i := range conns {
		conns[i] = &conn{}
	}
	var overlaps atomic.Int32
	var done sync.WaitGroup

	tp, err := concurrency.NewThreadPool(8, 64, func(c *conn) {
		defer done.Done()
		if !c.busy.CompareAndSwap(0, 1) {
			overlaps.Add(1)
			return
		}
		time.Sleep(100 * time.Microsecond)
		c.busy.Store(0)
	})
	require.NoError(t, err)
	defer tp.Close()

	// Mirror the oneshot discipline: an item is resubmitted only after its
	// previous run has finished.
	for round := 0; round < 20; round++ {
		done.Add(len(conns))
		for _, c := range conns {
			require.True(t, tp.Submit(c))
		}
		done.Wait()
	}
	assert.Zero(t, overlaps.Load())
}

func TestThreadPoolRecoversPanics(t *testing.T) {
	var ran atomic.Int32
	tp, err := concurrency.NewThreadPool(1, 4, func(i int) {
		ran.Add(1)
		if i == 0 {
			panic("boom")
		}
	})
	require.NoError(t, err)
	defer tp.Close()

	tp.Submit(0)
	tp.Submit(1)
	require.Eventually(t, func() bool { return ran.Load() == 2 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, tp.Stats()["panicked_tasks"])
}

func TestThreadPoolCloseRejectsAndIsIdempotent(t *testing.T) {
	tp, err := concurrency.NewThreadPool(2, 4, func(int) {})
	require.NoError(t, err)
	tp.Close()
	tp.Close()
	assert.False(t, tp.Submit(1))
}

func TestThreadPoolValidatesArguments(t *testing.T) {
	_, err := concurrency.NewThreadPool(0, 10, func(int) {})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	_, err = concurrency.NewThreadPool(1, 0, func(int) {})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	_, err = concurrency.NewThreadPool[int](1, 1, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}
