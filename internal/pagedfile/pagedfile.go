// Package pagedfile implements byte-offset read/write over a
// NumaBufferPool, walking the affected page range one page at a time.
// Multi-page operations are not atomic: a mid-range failure leaves earlier
// pages mutated and dirty-flagged.
package pagedfile

import (
	"fmt"

	"github.com/minidb-numa/numadb/internal/bufferpool"
	"github.com/minidb-numa/numadb/internal/pager"
)

// PagedFile exposes byte-range I/O on top of a NumaBufferPool and the
// Pager behind it. It does not close the Pager.
type PagedFile struct {
	pool *bufferpool.NumaBufferPool
}

// New wraps an already-constructed NumaBufferPool.
func New(pool *bufferpool.NumaBufferPool) *PagedFile {
	return &PagedFile{pool: pool}
}

// PageSize returns the fixed page size of the underlying pool.
func (f *PagedFile) PageSize() int { return f.pool.PageSize() }

// ReadItem reads size bytes starting at byte offset into a fresh buffer.
func (f *PagedFile) ReadItem(offset uint64, size int) ([]byte, error) {
	out := make([]byte, size)
	if err := f.walk(offset, out, false); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteItem writes data at byte offset, marking every touched page dirty.
func (f *PagedFile) WriteItem(offset uint64, data []byte) error {
	return f.walk(offset, data, true)
}

// walk visits every page intersecting [offset, offset+len(buf)), copying
// into (read) or out of (write) buf, and marking pages dirty on write.
func (f *PagedFile) walk(offset uint64, buf []byte, write bool) error {
	pageSize := uint64(f.pool.PageSize())
	remaining := buf
	pos := offset

	for len(remaining) > 0 {
		pageID := pager.PageID(pos / pageSize)
		withinPage := int(pos % pageSize)
		n := int(pageSize) - withinPage
		if n > len(remaining) {
			n = len(remaining)
		}

		page, err := f.pool.GetPage(pageID)
		if err != nil {
			return fmt.Errorf("pagedfile: get page %d: %w", pageID, err)
		}

		if write {
			copy(page.Buffer[withinPage:withinPage+n], remaining[:n])
			f.pool.MarkDirty(pageID)
		} else {
			copy(remaining[:n], page.Buffer[withinPage:withinPage+n])
		}

		remaining = remaining[n:]
		pos += uint64(n)
	}
	return nil
}

// Flush delegates to the underlying NumaBufferPool.
func (f *PagedFile) Flush() error {
	return f.pool.Flush()
}

// CachedPagesPerNode exposes the pool's per-node resident counts.
func (f *PagedFile) CachedPagesPerNode() []int {
	return f.pool.CachedPagesPerNode()
}

// NodeCount exposes the pool's shard count.
func (f *PagedFile) NodeCount() int {
	return f.pool.NodeCount()
}
