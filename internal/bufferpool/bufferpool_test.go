package bufferpool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minidb-numa/numadb/internal/numa"
	"github.com/minidb-numa/numadb/internal/pager"
)

func newTestPool(t *testing.T, nodeCount, capacity int) *NumaBufferPool {
	t.Helper()
	pgr, err := pager.Open(filepath.Join(t.TempDir(), "data"), 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgr.Close() })

	pool, err := New(nodeCount, capacity, pgr, nil, numa.NewFallbackAllocator(nil), nil, nil, nil)
	require.NoError(t, err)
	return pool
}

func TestModuloSelector_WrapsAndClamps(t *testing.T) {
	var sel ModuloSelector
	require.Equal(t, 1, sel.NodeFor(5, 2))
	require.Equal(t, 0, sel.NodeFor(4, 2))
	require.Equal(t, 0, sel.NodeFor(5, 0))
}

func TestNumaBufferPool_RoutesPageToOwningShard(t *testing.T) {
	pool := newTestPool(t, 2, 0)
	require.Equal(t, 2, pool.NodeCount())

	p0, err := pool.GetPage(0) // even -> node 0
	require.NoError(t, err)
	require.Equal(t, 0, p0.OwningNode)

	p1, err := pool.GetPage(1) // odd -> node 1
	require.NoError(t, err)
	require.Equal(t, 1, p1.OwningNode)
}

func TestNumaBufferPool_CachedPagesPerNodeReflectsShards(t *testing.T) {
	pool := newTestPool(t, 2, 0)
	_, err := pool.GetPage(0)
	require.NoError(t, err)
	_, err = pool.GetPage(2)
	require.NoError(t, err)
	_, err = pool.GetPage(1)
	require.NoError(t, err)

	counts := pool.CachedPagesPerNode()
	require.Equal(t, 2, counts[0])
	require.Equal(t, 1, counts[1])
}

func TestNumaBufferPool_FlushPropagatesToShards(t *testing.T) {
	pool := newTestPool(t, 2, 0)
	p, err := pool.GetPage(0)
	require.NoError(t, err)
	p.Buffer[0] = 42
	pool.MarkDirty(0)
	require.True(t, p.Dirty)

	require.NoError(t, pool.Flush())
	require.False(t, p.Dirty)
}

func TestNumaBufferPool_PerShardCapacityFlooredAtOne(t *testing.T) {
	pool := newTestPool(t, 4, 2) // 2/4 floors to 0, must floor to 1
	require.Equal(t, 4, pool.NodeCount())
	_, err := pool.GetPage(0)
	require.NoError(t, err)
}
