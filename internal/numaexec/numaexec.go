// Package numaexec implements NumaWorkerPool: one FIFO task queue per
// NUMA node, serviced by a fixed number of worker goroutines bound (best
// effort) to that node, with a future-returning submit that degrades to
// synchronous execution before the pool is started so no submitted work
// is ever lost.
package numaexec

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/minidb-numa/numadb/internal/dbmetrics"
	"github.com/minidb-numa/numadb/internal/numa"
)

// Future is a one-shot handle on a submitted task's result, the Go
// equivalent of std::future<T> backed by a closed channel instead of a
// condition variable.
type Future struct {
	done chan struct{}
	val  any
	err  error
}

// Wait blocks until the task completes and returns its result.
func (f *Future) Wait() (any, error) {
	<-f.done
	return f.val, f.err
}

func newResolvedFuture(val any, err error) *Future {
	f := &Future{done: make(chan struct{})}
	f.val, f.err = val, err
	close(f.done)
	return f
}

type task struct {
	fn     func() (any, error)
	future *Future
}

// workerGroup is one node's FIFO queue plus its worker goroutines.
type workerGroup struct {
	node    int
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []task
	stopped bool
	wg      sync.WaitGroup
}

// NumaWorkerPool dispatches closures to per-node FIFO worker groups.
type NumaWorkerPool struct {
	mu       sync.Mutex
	started  bool
	groups   []*workerGroup
	topology numa.Topology
	threads  int
	logger   *zap.Logger
	metrics  *dbmetrics.Metrics
}

// New constructs a pool for nodeCount nodes with threadsPerNode worker
// goroutines each. The pool does not start servicing its queues until
// Start is called. metrics may be nil (or dbmetrics.NewNoop()).
func New(nodeCount, threadsPerNode int, topology numa.Topology, logger *zap.Logger, metrics *dbmetrics.Metrics) *NumaWorkerPool {
	if nodeCount <= 0 {
		nodeCount = 1
	}
	if threadsPerNode <= 0 {
		threadsPerNode = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	groups := make([]*workerGroup, nodeCount)
	for i := range groups {
		g := &workerGroup{node: i}
		g.cond = sync.NewCond(&g.mu)
		groups[i] = g
	}
	return &NumaWorkerPool{groups: groups, topology: topology, threads: threadsPerNode, logger: logger, metrics: metrics}
}

// NodeCount returns the number of worker groups.
func (p *NumaWorkerPool) NodeCount() int { return len(p.groups) }

// Start spawns threadsPerNode worker goroutines per node. Each worker
// attempts a best-effort NUMA bind before entering its service loop;
// binding failure is logged and non-fatal.
func (p *NumaWorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for _, g := range p.groups {
		for i := 0; i < p.threads; i++ {
			g.wg.Add(1)
			go p.runWorker(g)
		}
	}
}

func (p *NumaWorkerPool) runWorker(g *workerGroup) {
	defer g.wg.Done()

	if p.topology != nil {
		if err := numa.BindToNode(p.topology, g.node); err != nil {
			p.logger.Warn("numaexec: failed to bind worker to node, continuing unpinned", zap.Int("node", g.node), zap.Error(err))
		}
	}

	for {
		g.mu.Lock()
		for len(g.queue) == 0 && !g.stopped {
			g.cond.Wait()
		}
		if len(g.queue) == 0 && g.stopped {
			g.mu.Unlock()
			return
		}
		t := g.queue[0]
		g.queue = g.queue[1:]
		g.mu.Unlock()
		p.metrics.AdjustQueueDepth(context.Background(), -1)

		val, err := t.fn()
		t.future.val, t.future.err = val, err
		close(t.future.done)
	}
}

// Submit routes fn to node mod NodeCount() (negative clamps to 0). If the
// pool has not been started, fn executes synchronously on the caller's
// goroutine and Submit returns an already-resolved Future — callers never
// lose work to an unstarted pool.
func (p *NumaWorkerPool) Submit(node int, fn func() (any, error)) *Future {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	if !started {
		val, err := fn()
		return newResolvedFuture(val, err)
	}

	n := node % len(p.groups)
	if n < 0 {
		n = 0
	}
	g := p.groups[n]

	future := &Future{done: make(chan struct{})}
	g.mu.Lock()
	g.queue = append(g.queue, task{fn: fn, future: future})
	g.mu.Unlock()
	p.metrics.AdjustQueueDepth(context.Background(), 1)
	g.cond.Signal()
	return future
}

// Stop signals every worker group to finish its current task and exit
// once its queue drains, then waits for every worker to exit. Outstanding
// futures still complete normally; there is no task-level cancellation.
func (p *NumaWorkerPool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for _, g := range p.groups {
		g.mu.Lock()
		g.stopped = true
		g.mu.Unlock()
		g.cond.Broadcast()
	}
	for _, g := range p.groups {
		g.wg.Wait()
	}
}
