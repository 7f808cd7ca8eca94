package numa

import "github.com/minidb-numa/numadb/internal/config"

// NewTopologyFromConfig wires CreateTopology to the platform probe
// available on this build target (sysfs on Linux, none elsewhere).
func NewTopologyFromConfig(cfg config.NumaConfig, preferredNodes int) Topology {
	return CreateTopology(cfg, preferredNodes, DetectLinuxTopology)
}

// NewAllocatorFromConfig wires CreateAllocator to a platform allocator that
// binds the calling goroutine's thread to the target node (best effort)
// before delegating to a plain make([]byte, n) — Go has no portable
// NUMA-aware malloc, so node-local allocation here means "allocate after
// best-effort affinity binding," matching the fallback posture used even
// by the libnuma-backed C++ original when pinning fails.
func NewAllocatorFromConfig(cfg config.NumaConfig, topo Topology) Allocator {
	return CreateAllocator(cfg, func() (Allocator, bool) {
		return NewFallbackAllocator(func(node int) error {
			return BindToNode(topo, node)
		}), true
	})
}
