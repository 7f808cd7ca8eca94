// Package pager implements byte-exact, fixed-size page I/O over an
// *os.File. It owns no header, no magic number, and no page-allocation
// policy beyond "grow the file to fit page N on first write" — those
// concerns belong to the components built on top of it (TableStorage owns
// its own header).
package pager

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/minidb-numa/numadb/internal/dberrors"
)

// PageID identifies a fixed-size page within a Pager's file, 0-based.
type PageID uint64

// Pager reads and writes fixed-size pages of an underlying file. All
// methods are safe for concurrent use; a single mutex serializes the
// positioned reads/writes the same way the teacher's DiskManager guards
// its file handle, since *os.File has no atomic pread/pwrite-at-offset
// guarantee across concurrent callers touching overlapping pages.
type Pager struct {
	mu       sync.Mutex
	file     *os.File
	pageSize int
	closed   bool
}

// Open opens (creating if necessary) the file at path as a page store with
// the given fixed page size.
func Open(path string, pageSize int) (*Pager, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("pager: invalid page size %d: %w", pageSize, dberrors.ErrSizeMismatch)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pager: open %s: %w", path, joinIO(err))
	}
	return &Pager{file: f, pageSize: pageSize}, nil
}

func joinIO(err error) error {
	return fmt.Errorf("%v: %w", err, dberrors.ErrIO)
}

// PageSize returns the fixed page size this Pager was opened with.
func (p *Pager) PageSize() int { return p.pageSize }

// PageCount returns the number of whole pages currently backing the file.
// A partially written trailing page counts as a full page.
func (p *Pager) PageCount() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, dberrors.ErrNotOpen
	}
	info, err := p.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("pager: stat: %w", joinIO(err))
	}
	size := info.Size()
	pages := uint64(size) / uint64(p.pageSize)
	if uint64(size)%uint64(p.pageSize) != 0 {
		pages++
	}
	return pages, nil
}

// ReadPage fills buf (which must be exactly PageSize long) with the
// contents of page id. Reading a page beyond the current end of file
// zero-fills buf rather than returning an error — this lets callers
// allocate logical pages ahead of physically extending the file.
func (p *Pager) ReadPage(id PageID, buf []byte) error {
	if len(buf) != p.pageSize {
		return fmt.Errorf("pager: read buffer is %d bytes, want %d: %w", len(buf), p.pageSize, dberrors.ErrSizeMismatch)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return dberrors.ErrNotOpen
	}

	offset := int64(id) * int64(p.pageSize)
	n, err := p.file.ReadAt(buf, offset)
	if err != nil {
		// A short or empty read past EOF is expected: the logical page
		// exists but has never been written. Treat it as all-zero.
		if n < len(buf) {
			for i := n; i < len(buf); i++ {
				buf[i] = 0
			}
		}
		if isEOF(err) {
			return nil
		}
		return fmt.Errorf("pager: read page %d: %w", id, joinIO(err))
	}
	return nil
}

// WritePage writes buf (which must be exactly PageSize long) to page id,
// extending the file with zero pages if id is beyond the current end of
// file.
func (p *Pager) WritePage(id PageID, buf []byte) error {
	if len(buf) != p.pageSize {
		return fmt.Errorf("pager: write buffer is %d bytes, want %d: %w", len(buf), p.pageSize, dberrors.ErrSizeMismatch)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return dberrors.ErrNotOpen
	}

	offset := int64(id) * int64(p.pageSize)
	if _, err := p.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("pager: write page %d: %w", id, joinIO(err))
	}
	return nil
}

// Sync flushes the underlying file to stable storage.
func (p *Pager) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return dberrors.ErrNotOpen
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("pager: sync: %w", joinIO(err))
	}
	return nil
}

// Close closes the underlying file. Subsequent operations return
// dberrors.ErrNotOpen.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("pager: close: %w", joinIO(err))
	}
	return nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
