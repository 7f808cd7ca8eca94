// Package numa models NUMA topology and allocation as capability
// interfaces, the way a platform-feature-detection library does: callers
// depend on the interface, a factory picks the concrete implementation
// (a sysfs probe on Linux, a deterministic fallback everywhere else), and
// nothing downstream branches on GOOS.
package numa

import (
	"github.com/minidb-numa/numadb/internal/config"
)

// Topology answers "how many NUMA nodes are there" and "which node am I
// running on right now". It never fails: every implementation degrades to
// a single-node view when it cannot inspect real hardware.
type Topology interface {
	NodeCount() int
	CurrentNode() int
}

// Allocator hands out node-tagged byte slices. On platforms without real
// NUMA support this is just make([]byte, n) plus CPU-affinity best-effort
// binding; Go offers no NUMA-aware malloc, so "allocate on a node" means
// "allocate after a best-effort bind via BindToNode", which on Linux only
// locks the goroutine to its OS thread and sets no CPU affinity.
type Allocator interface {
	AllocOnNode(node, size int) ([]byte, error)
}

// fallbackTopology is used whenever libnuma-equivalent detection is
// unavailable or disabled. It reports a fixed node count and resolves the
// current node via the best CPU-affinity signal the platform gives us,
// falling back to node 0.
type fallbackTopology struct {
	nodeCount int
	probe     func() int
}

// NewFallbackTopology builds a Topology that assumes nodeCount nodes
// (minimum 1) and resolves the calling goroutine's node via probe.
func NewFallbackTopology(nodeCount int, probe func() int) Topology {
	if nodeCount <= 0 {
		nodeCount = 1
	}
	if probe == nil {
		probe = func() int { return 0 }
	}
	return &fallbackTopology{nodeCount: nodeCount, probe: probe}
}

func (t *fallbackTopology) NodeCount() int { return t.nodeCount }

func (t *fallbackTopology) CurrentNode() int {
	n := t.probe()
	if n < 0 || n >= t.nodeCount {
		return 0
	}
	return n
}

// fallbackAllocator is a pass-through allocator: it just makes a slice. It
// exists so AllocOnNode has a uniform signature regardless of platform
// support, matching the original FallbackAllocator's malloc/free passthrough.
type fallbackAllocator struct {
	bind func(node int) error
}

// NewFallbackAllocator builds an Allocator that optionally binds the
// calling goroutine's OS thread to the target node's CPUs (best effort,
// errors are non-fatal) before allocating.
func NewFallbackAllocator(bind func(node int) error) Allocator {
	return &fallbackAllocator{bind: bind}
}

func (a *fallbackAllocator) AllocOnNode(node, size int) ([]byte, error) {
	if a.bind != nil {
		_ = a.bind(node) // best effort; failure to bind never fails the allocation
	}
	return make([]byte, size), nil
}

// CreateTopology replicates create_numa_topology's precedence: an explicit
// preferredNodes argument wins over cfg.PreferredNodes; a platform probe is
// used when NUMA is enabled and available; otherwise it degrades to the
// fallback with whatever node count was resolved (minimum 1).
func CreateTopology(cfg config.NumaConfig, preferredNodes int, platformProbe func(nodes int) (Topology, bool)) Topology {
	nodes := preferredNodes
	if nodes <= 0 {
		nodes = cfg.PreferredNodes
	}
	if nodes <= 0 {
		nodes = 1
	}
	if cfg.Enabled && platformProbe != nil {
		if t, ok := platformProbe(nodes); ok {
			return t
		}
	}
	return NewFallbackTopology(nodes, nil)
}

// CreateAllocator replicates create_numa_allocator's precedence: a
// platform allocator is used when NUMA is enabled AND available, OR when a
// specific node was forced via MINI_DB_NUMA_ALLOC_NODE even though general
// NUMA optimization is disabled (forcing a node re-enables node-aware
// allocation). Otherwise it degrades to the fallback allocator.
func CreateAllocator(cfg config.NumaConfig, platformAlloc func() (Allocator, bool)) Allocator {
	if platformAlloc != nil {
		if cfg.Enabled {
			if a, ok := platformAlloc(); ok {
				return a
			}
		} else if cfg.ForcedAllocNode >= 0 {
			if a, ok := platformAlloc(); ok {
				return a
			}
		}
	}
	return NewFallbackAllocator(nil)
}
