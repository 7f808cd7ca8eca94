// Package pagecache implements a bounded per-node LRU cache over a Pager.
// It is the classic intrusive doubly-linked-list-plus-hashmap: a
// container/list element stores the page id, and a map from page id to
// that element gives O(1) hit/evict, the same pattern the teacher's
// BufferPoolManager uses for its LRU list.
package pagecache

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/minidb-numa/numadb/internal/dberrors"
	"github.com/minidb-numa/numadb/internal/dbmetrics"
	"github.com/minidb-numa/numadb/internal/numa"
	"github.com/minidb-numa/numadb/internal/pager"
)

// Page is an in-memory copy of one on-disk page, owned exclusively by the
// PageCache entry holding it.
type Page struct {
	ID         pager.PageID
	Buffer     []byte
	Dirty      bool
	OwningNode int
}

type entry struct {
	page *Page
	elem *list.Element // element.Value == page.ID
}

// PageCache is a bounded LRU cache over a Pager, pinned to one NUMA node.
// Capacity 0 means unbounded (never evicts).
type PageCache struct {
	mu        sync.Mutex
	node      int
	pageSize  int
	capacity  int
	pgr       *pager.Pager
	allocator numa.Allocator
	logger    *zap.Logger
	metrics   *dbmetrics.Metrics

	entries map[pager.PageID]*entry
	lru     *list.List // front = most recently used, back = least
}

// New builds a PageCache for the given node, backed by pgr, using
// allocator to obtain page buffers on that node. metrics may be nil (or
// dbmetrics.NewNoop()); every call site guards against that.
func New(node, pageSize, capacity int, pgr *pager.Pager, allocator numa.Allocator, logger *zap.Logger, metrics *dbmetrics.Metrics) *PageCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageCache{
		node:      node,
		pageSize:  pageSize,
		capacity:  capacity,
		pgr:       pgr,
		allocator: allocator,
		logger:    logger,
		metrics:   metrics,
		entries:   make(map[pager.PageID]*entry),
		lru:       list.New(),
	}
}

// PageCount returns the number of pages currently resident.
func (c *PageCache) PageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetPage returns the resident Page for id, loading it from the Pager on
// miss. On hit, id moves to the LRU front. On a full cache, the LRU tail
// is evicted first (writing it back if dirty); a writeback failure aborts
// the call without mutating cache state, leaving the victim resident.
func (c *PageCache) GetPage(id pager.PageID) (*Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok {
		c.lru.MoveToFront(e.elem)
		c.metrics.RecordCacheHit(context.Background())
		return e.page, nil
	}
	c.metrics.RecordCacheMiss(context.Background())

	if c.capacity > 0 && len(c.entries) >= c.capacity {
		if err := c.evictOneLocked(); err != nil {
			return nil, err
		}
	}

	buf, err := c.allocator.AllocOnNode(c.node, c.pageSize)
	if err != nil {
		return nil, fmt.Errorf("pagecache: alloc page %d on node %d: %w", id, c.node, joinAlloc(err))
	}
	if err := c.pgr.ReadPage(id, buf); err != nil {
		return nil, fmt.Errorf("pagecache: read page %d: %w", id, err)
	}

	page := &Page{ID: id, Buffer: buf, OwningNode: c.node}
	elem := c.lru.PushFront(id)
	c.entries[id] = &entry{page: page, elem: elem}
	c.logger.Debug("pagecache miss", zap.Uint64("page_id", uint64(id)), zap.Int("node", c.node))
	return page, nil
}

func joinAlloc(err error) error {
	return fmt.Errorf("%v: %w", err, dberrors.ErrAllocFailure)
}

// evictOneLocked evicts the LRU tail. Caller holds c.mu.
func (c *PageCache) evictOneLocked() error {
	back := c.lru.Back()
	if back == nil {
		return nil
	}
	victimID := back.Value.(pager.PageID)
	victim := c.entries[victimID]

	if victim.page.Dirty {
		if err := c.pgr.WritePage(victimID, victim.page.Buffer); err != nil {
			return fmt.Errorf("pagecache: writeback victim page %d: %w", victimID, err)
		}
	}
	c.lru.Remove(back)
	delete(c.entries, victimID)
	c.logger.Debug("pagecache evict", zap.Uint64("page_id", uint64(victimID)), zap.Int("node", c.node))
	c.metrics.RecordEviction(context.Background())
	return nil
}

// MarkDirty sets the dirty flag on id's resident entry. It is a no-op if
// id has already been evicted.
func (c *PageCache) MarkDirty(id pager.PageID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		e.page.Dirty = true
	}
}

// Flush writes back every dirty entry (clearing the flag) and then
// flushes the Pager. The order among dirty pages is unspecified.
func (c *PageCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, e := range c.entries {
		if !e.page.Dirty {
			continue
		}
		if err := c.pgr.WritePage(id, e.page.Buffer); err != nil {
			return fmt.Errorf("pagecache: flush page %d: %w", id, err)
		}
		e.page.Dirty = false
	}
	if err := c.pgr.Sync(); err != nil {
		return fmt.Errorf("pagecache: flush sync: %w", err)
	}
	return nil
}

// Node returns the NUMA node this shard is pinned to.
func (c *PageCache) Node() int { return c.node }
