package numa

import (
	"testing"

	"github.com/minidb-numa/numadb/internal/config"
	"github.com/stretchr/testify/require"
)

func TestCreateTopology_PreferredNodesWinsOverConfig(t *testing.T) {
	cfg := config.NumaConfig{Enabled: false, PreferredNodes: 4, ForcedAllocNode: -1}
	topo := CreateTopology(cfg, 2, nil)
	require.Equal(t, 2, topo.NodeCount())
}

func TestCreateTopology_FallsBackToConfigNodes(t *testing.T) {
	cfg := config.NumaConfig{Enabled: false, PreferredNodes: 3, ForcedAllocNode: -1}
	topo := CreateTopology(cfg, 0, nil)
	require.Equal(t, 3, topo.NodeCount())
}

func TestCreateTopology_DefaultsToOneNode(t *testing.T) {
	cfg := config.NumaConfig{Enabled: false, PreferredNodes: 0, ForcedAllocNode: -1}
	topo := CreateTopology(cfg, 0, nil)
	require.Equal(t, 1, topo.NodeCount())
}

func TestCreateTopology_UsesPlatformProbeWhenEnabled(t *testing.T) {
	cfg := config.NumaConfig{Enabled: true, PreferredNodes: 0, ForcedAllocNode: -1}
	probed := NewFallbackTopology(8, func() int { return 3 })
	topo := CreateTopology(cfg, 1, func(nodes int) (Topology, bool) { return probed, true })
	require.Equal(t, 8, topo.NodeCount())
	require.Equal(t, 3, topo.CurrentNode())
}

func TestCreateAllocator_UsesFallbackWhenDisabledAndNotForced(t *testing.T) {
	cfg := config.NumaConfig{Enabled: false, ForcedAllocNode: -1}
	called := false
	alloc := CreateAllocator(cfg, func() (Allocator, bool) {
		called = true
		return nil, false
	})
	require.False(t, called)
	buf, err := alloc.AllocOnNode(0, 16)
	require.NoError(t, err)
	require.Len(t, buf, 16)
}

func TestCreateAllocator_ForcedNodeReenablesPlatformAllocator(t *testing.T) {
	cfg := config.NumaConfig{Enabled: false, ForcedAllocNode: 2}
	platform := NewFallbackAllocator(nil)
	alloc := CreateAllocator(cfg, func() (Allocator, bool) { return platform, true })
	require.Equal(t, platform, alloc)
}

func TestFallbackTopology_CurrentNodeClampsOutOfRange(t *testing.T) {
	topo := NewFallbackTopology(2, func() int { return 99 })
	require.Equal(t, 0, topo.CurrentNode())
}
