// Package bufferpool implements NumaBufferPool: N PageCache shards, one
// per NUMA node, fronted by a PageNodeSelector that routes each page id to
// its owning shard.
package bufferpool

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/minidb-numa/numadb/internal/dbmetrics"
	"github.com/minidb-numa/numadb/internal/numa"
	"github.com/minidb-numa/numadb/internal/pagecache"
	"github.com/minidb-numa/numadb/internal/pager"
)

// PageNodeSelector maps a page id and node count to an owning node index.
type PageNodeSelector interface {
	NodeFor(id pager.PageID, nodeCount int) int
}

// ModuloSelector is the only selector this store implements: page_id mod
// node_count, wrapping out-of-range results and clamping negative results
// to 0 per the spec's defensive contract.
type ModuloSelector struct{}

func (ModuloSelector) NodeFor(id pager.PageID, nodeCount int) int {
	if nodeCount <= 0 {
		return 0
	}
	n := int(id % pager.PageID(nodeCount))
	if n < 0 {
		return 0
	}
	return n
}

// NumaBufferPool partitions cache capacity across NUMA nodes and routes
// page operations to the shard that owns each page.
type NumaBufferPool struct {
	shards   []*pagecache.PageCache
	selector PageNodeSelector
	pager    *pager.Pager
}

// New constructs a NumaBufferPool with nodeCount shards of
// floor(totalCapacity/nodeCount) each (minimum 1), all sharing pgr. metrics
// may be nil (or dbmetrics.NewNoop()) and is forwarded to every shard.
func New(nodeCount, totalCapacity int, pgr *pager.Pager, topo numa.Topology, allocator numa.Allocator, selector PageNodeSelector, logger *zap.Logger, metrics *dbmetrics.Metrics) (*NumaBufferPool, error) {
	if nodeCount <= 0 {
		nodeCount = 1
	}
	if selector == nil {
		selector = ModuloSelector{}
	}
	perShard := totalCapacity / nodeCount
	if perShard < 1 {
		perShard = 1
	}
	if totalCapacity == 0 {
		perShard = 0 // 0 means unbounded, preserved per-shard
	}

	shards := make([]*pagecache.PageCache, nodeCount)
	for node := 0; node < nodeCount; node++ {
		shards[node] = pagecache.New(node, pgr.PageSize(), perShard, pgr, allocator, logger, metrics)
	}
	return &NumaBufferPool{shards: shards, selector: selector, pager: pgr}, nil
}

// NodeCount returns the number of shards.
func (p *NumaBufferPool) NodeCount() int { return len(p.shards) }

func (p *NumaBufferPool) shardFor(id pager.PageID) *pagecache.PageCache {
	node := p.selector.NodeFor(id, len(p.shards))
	if node < 0 || node >= len(p.shards) {
		node = ((node % len(p.shards)) + len(p.shards)) % len(p.shards)
	}
	return p.shards[node]
}

// GetPage routes to the owning shard and returns its resident Page.
func (p *NumaBufferPool) GetPage(id pager.PageID) (*pagecache.Page, error) {
	return p.shardFor(id).GetPage(id)
}

// MarkDirty routes to the owning shard.
func (p *NumaBufferPool) MarkDirty(id pager.PageID) {
	p.shardFor(id).MarkDirty(id)
}

// Flush flushes every shard in order, stopping at the first error.
func (p *NumaBufferPool) Flush() error {
	for _, shard := range p.shards {
		if err := shard.Flush(); err != nil {
			return fmt.Errorf("bufferpool: flush node %d: %w", shard.Node(), err)
		}
	}
	return nil
}

// CachedPagesPerNode reports the resident page count of each shard, used
// by the NUMA-routing testable property.
func (p *NumaBufferPool) CachedPagesPerNode() []int {
	out := make([]int, len(p.shards))
	for i, shard := range p.shards {
		out[i] = shard.PageCount()
	}
	return out
}

// PageSize returns the underlying page size.
func (p *NumaBufferPool) PageSize() int { return p.pager.PageSize() }
