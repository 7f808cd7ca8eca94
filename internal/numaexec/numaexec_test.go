package numaexec

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNumaWorkerPool_SubmitBeforeStartRunsSynchronously(t *testing.T) {
	p := New(2, 1, nil, nil, nil)
	future := p.Submit(0, func() (any, error) { return 42, nil })
	val, err := future.Wait()
	require.NoError(t, err)
	require.Equal(t, 42, val)
}

func TestNumaWorkerPool_SubmitAfterStartExecutesOnWorker(t *testing.T) {
	p := New(2, 2, nil, nil, nil)
	p.Start()
	defer p.Stop()

	future := p.Submit(1, func() (any, error) { return "done", nil })
	val, err := future.Wait()
	require.NoError(t, err)
	require.Equal(t, "done", val)
}

func TestNumaWorkerPool_NegativeNodeClampsToZero(t *testing.T) {
	p := New(2, 1, nil, nil, nil)
	p.Start()
	defer p.Stop()

	future := p.Submit(-1, func() (any, error) { return 1, nil })
	_, err := future.Wait()
	require.NoError(t, err)
}

func TestNumaWorkerPool_TasksWithinNodeAreFIFO(t *testing.T) {
	p := New(1, 1, nil, nil, nil)
	p.Start()
	defer p.Stop()

	var mu sync.Mutex
	var order []int
	futures := make([]*Future, 20)
	for i := 0; i < 20; i++ {
		i := i
		futures[i] = p.Submit(0, func() (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		})
	}
	for _, f := range futures {
		_, _ = f.Wait()
	}
	require.Len(t, order, 20)
	for i, got := range order {
		require.Equal(t, i, got)
	}
}

func TestNumaWorkerPool_ConcurrentSubmitsAllResolve(t *testing.T) {
	p := New(2, 2, nil, nil, nil)
	p.Start()
	defer p.Stop()

	var successCount atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 1000; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			f := p.Submit(i%2, func() (any, error) { return i, nil })
			if _, err := f.Wait(); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1000), successCount.Load())
}

func TestNumaWorkerPool_StopDrainsQueueBeforeExit(t *testing.T) {
	p := New(1, 1, nil, nil, nil)
	p.Start()

	var count atomic.Int64
	futures := make([]*Future, 5)
	for i := range futures {
		futures[i] = p.Submit(0, func() (any, error) {
			count.Add(1)
			return nil, nil
		})
	}
	p.Stop()

	for _, f := range futures {
		_, _ = f.Wait()
	}
	require.Equal(t, int64(5), count.Load())
}
