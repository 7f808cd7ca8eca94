// Package tablestorage implements the fixed-length record heap: a free
// list for slot reuse, 64-way striped page locks for point operations, a
// redo-before-data-write hook into the shared LogManager, and the ALTER
// TABLE rebuild-and-atomically-swap procedure.
//
// The bulk operations (Select, Update, Remove) hold only the shared table
// lock across their scan; Update and Remove take a row's page lock just
// around its write. They are not isolated from concurrent point operations
// or from each other, so bulk operations are treated as single-writer.
package tablestorage

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minidb-numa/numadb/internal/bufferpool"
	"github.com/minidb-numa/numadb/internal/dberrors"
	"github.com/minidb-numa/numadb/internal/dbmetrics"
	"github.com/minidb-numa/numadb/internal/numa"
	"github.com/minidb-numa/numadb/internal/pager"
	"github.com/minidb-numa/numadb/internal/pagedfile"
	"github.com/minidb-numa/numadb/internal/schema"
	"github.com/minidb-numa/numadb/internal/walog"
)

// Options configures a TableStorage's NUMA posture at construction.
type Options struct {
	PageSize   int
	CachePages int
	NumaNodes  int
	Topology   numa.Topology
	Allocator  numa.Allocator
	Selector   bufferpool.PageNodeSelector
	Logger     *zap.Logger
	Metrics    *dbmetrics.Metrics
}

// TableStorage is the fixed-length record heap for one table.
type TableStorage struct {
	name   string
	path   string
	schema *schema.Schema
	logger *zap.Logger

	pager *pager.Pager
	file  *pagedfile.PagedFile
	log   *walog.LogManager // nil when constructed for ALTER staging

	pageSize int
	opts     Options

	tableRWLock sync.RWMutex
	metaMutex   sync.Mutex
	pageLocks   [pageLockStripes]sync.Mutex

	rowCount uint64
	freeList []uint64
}

// Open constructs a TableStorage for name at path with the given schema,
// wires it to log (nil disables WAL hooks, used for ALTER staging tables),
// and calls Load.
func Open(name, path string, s *schema.Schema, log *walog.LogManager, opts Options) (*TableStorage, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = 4096
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	pgr, err := pager.Open(path, opts.PageSize)
	if err != nil {
		return nil, err
	}

	topo := opts.Topology
	if topo == nil {
		topo = numa.NewFallbackTopology(nonZero(opts.NumaNodes, 1), nil)
	}
	allocator := opts.Allocator
	if allocator == nil {
		allocator = numa.NewFallbackAllocator(nil)
	}

	pool, err := bufferpool.New(topo.NodeCount(), opts.CachePages, pgr, topo, allocator, opts.Selector, opts.Logger, opts.Metrics)
	if err != nil {
		_ = pgr.Close()
		return nil, err
	}

	ts := &TableStorage{
		name:     name,
		path:     path,
		schema:   s,
		logger:   opts.Logger,
		pager:    pgr,
		file:     pagedfile.New(pool),
		log:      log,
		pageSize: opts.PageSize,
		opts:     opts,
	}
	if err := ts.Load(); err != nil {
		_ = pgr.Close()
		return nil, err
	}
	return ts, nil
}

func nonZero(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func (t *TableStorage) recordSize() int { return t.schema.RecordSize() }

func (t *TableStorage) recordOffset(rowID uint64) uint64 {
	return uint64(t.pageSize) + rowID*uint64(t.recordSize())
}

func (t *TableStorage) pageIDForRow(rowID uint64) pager.PageID {
	return pager.PageID(t.recordOffset(rowID) / uint64(t.pageSize))
}

func (t *TableStorage) pageLock(pageID pager.PageID) *sync.Mutex {
	idx := int(pageID % pageLockStripes)
	return &t.pageLocks[idx]
}

// Load reads or initializes the header and rebuilds the free list.
func (t *TableStorage) Load() error {
	if t.recordSize() > t.pageSize {
		return fmt.Errorf("tablestorage: record size %d exceeds page size %d: %w", t.recordSize(), t.pageSize, dberrors.ErrSizeMismatch)
	}

	size, err := t.fileSize()
	if err != nil {
		return err
	}
	if size == 0 {
		t.rowCount = 0
		return t.writeHeader()
	}

	hdr, err := t.readHeader()
	if err != nil {
		return err
	}
	if int(hdr.recordSize) != t.recordSize() {
		return fmt.Errorf("tablestorage: stored record size %d != schema record size %d: %w", hdr.recordSize, t.recordSize(), dberrors.ErrSizeMismatch)
	}
	t.rowCount = hdr.rowCount
	return t.RebuildFreeList()
}

func (t *TableStorage) fileSize() (uint64, error) {
	pages, err := t.pager.PageCount()
	if err != nil {
		return 0, err
	}
	return pages * uint64(t.pageSize), nil
}

func (t *TableStorage) readHeader() (header, error) {
	buf, err := t.file.ReadItem(0, headerSize)
	if err != nil {
		return header{}, fmt.Errorf("tablestorage: read header: %w", err)
	}
	return decodeHeader(buf)
}

func (t *TableStorage) writeHeader() error {
	h := header{recordSize: uint32(t.recordSize()), rowCount: t.rowCount}
	copy(h.magic[:], headerMagic)
	if err := t.file.WriteItem(0, encodeHeader(h)); err != nil {
		return fmt.Errorf("tablestorage: write header: %w", err)
	}
	return nil
}

// RowCount returns the current logical row count.
func (t *TableStorage) RowCount() uint64 {
	t.metaMutex.Lock()
	defer t.metaMutex.Unlock()
	return t.rowCount
}

// Schema returns the table's schema.
func (t *TableStorage) Schema() *schema.Schema { return t.schema }

// PageSize returns the table's fixed page size.
func (t *TableStorage) PageSize() int { return t.pageSize }

// CachedPagesPerNode exposes the underlying buffer pool's per-node counts.
func (t *TableStorage) CachedPagesPerNode() []int {
	return t.file.CachedPagesPerNode()
}

func (t *TableStorage) readRecordAt(rowID uint64) ([]byte, error) {
	return t.file.ReadItem(t.recordOffset(rowID), t.recordSize())
}

func (t *TableStorage) writeRecordAt(rowID uint64, rec []byte) error {
	if len(rec) != t.recordSize() {
		return fmt.Errorf("tablestorage: record is %d bytes, want %d: %w", len(rec), t.recordSize(), dberrors.ErrSizeMismatch)
	}
	return t.file.WriteItem(t.recordOffset(rowID), rec)
}

// Insert normalizes values, reuses a free slot (LIFO) or appends, appends a
// redo record before the data write, and rewrites the header only when
// row_count grew.
func (t *TableStorage) Insert(values []schema.Value) (uint64, error) {
	t.tableRWLock.RLock()
	defer t.tableRWLock.RUnlock()

	rec, err := t.schema.EncodeRecord(values, true)
	if err != nil {
		return 0, err
	}

	t.metaMutex.Lock()
	var rowID uint64
	reused := false
	if n := len(t.freeList); n > 0 {
		rowID = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		reused = true
	} else {
		rowID = t.rowCount
		t.rowCount++
	}
	t.metaMutex.Unlock()

	if err := t.appendRedo(walog.OpInsert, rowID, rec); err != nil {
		return 0, err
	}

	lock := t.pageLock(t.pageIDForRow(rowID))
	lock.Lock()
	writeErr := t.writeRecordAt(rowID, rec)
	lock.Unlock()
	if writeErr != nil {
		return 0, writeErr
	}

	if !reused {
		t.metaMutex.Lock()
		err := t.writeHeader()
		t.metaMutex.Unlock()
		if err != nil {
			return 0, err
		}
	}
	return rowID, nil
}

// Select performs a full scan, optionally filtered by a single-column
// equality predicate. It takes no lock beyond the shared table lock: bulk
// scans and point operations are documented as single-writer (see the
// package doc).
func (t *TableStorage) Select(where *schema.Condition) ([][]schema.Value, error) {
	t.tableRWLock.RLock()
	defer t.tableRWLock.RUnlock()

	var whereIdx = -1
	var whereVal schema.Value
	if where != nil {
		whereIdx = t.schema.ColumnIndex(where.Column)
		if whereIdx < 0 {
			return nil, fmt.Errorf("tablestorage: unknown column %q in WHERE: %w", where.Column, dberrors.ErrSchemaViolation)
		}
		whereVal = where.Value
		if err := t.schema.NormalizeValue(whereIdx, &whereVal); err != nil {
			return nil, err
		}
	}

	rowCount := t.RowCount()
	var out [][]schema.Value
	for rowID := uint64(0); rowID < rowCount; rowID++ {
		rec, err := t.readRecordAt(rowID)
		if err != nil {
			return nil, err
		}
		values, valid, err := t.schema.DecodeRecord(rec)
		if err != nil {
			return nil, err
		}
		if !valid {
			continue
		}
		if whereIdx >= 0 && !schema.ValuesEqual(values[whereIdx], whereVal) {
			continue
		}
		out = append(out, values)
	}
	return out, nil
}

// Update normalizes every SET column and the WHERE predicate once up
// front, then scans applying matching rows. Returns the number updated.
func (t *TableStorage) Update(sets []schema.SetClause, where *schema.Condition) (int, error) {
	t.tableRWLock.RLock()
	defer t.tableRWLock.RUnlock()

	type resolvedSet struct {
		idx int
		val schema.Value
	}
	resolved := make([]resolvedSet, len(sets))
	for i, s := range sets {
		idx := t.schema.ColumnIndex(s.Column)
		if idx < 0 {
			return 0, fmt.Errorf("tablestorage: unknown column %q in SET: %w", s.Column, dberrors.ErrSchemaViolation)
		}
		v := s.Value
		if err := t.schema.NormalizeValue(idx, &v); err != nil {
			return 0, err
		}
		resolved[i] = resolvedSet{idx: idx, val: v}
	}

	var whereIdx = -1
	var whereVal schema.Value
	if where != nil {
		whereIdx = t.schema.ColumnIndex(where.Column)
		if whereIdx < 0 {
			return 0, fmt.Errorf("tablestorage: unknown column %q in WHERE: %w", where.Column, dberrors.ErrSchemaViolation)
		}
		whereVal = where.Value
		if err := t.schema.NormalizeValue(whereIdx, &whereVal); err != nil {
			return 0, err
		}
	}

	rowCount := t.RowCount()
	count := 0
	for rowID := uint64(0); rowID < rowCount; rowID++ {
		rec, err := t.readRecordAt(rowID)
		if err != nil {
			return count, err
		}
		values, valid, err := t.schema.DecodeRecord(rec)
		if err != nil {
			return count, err
		}
		if !valid {
			continue
		}
		if whereIdx >= 0 && !schema.ValuesEqual(values[whereIdx], whereVal) {
			continue
		}

		for _, rs := range resolved {
			values[rs.idx] = rs.val
		}
		newRec, err := t.schema.EncodeRecord(values, true)
		if err != nil {
			return count, err
		}
		if err := t.appendRedo(walog.OpUpdate, rowID, newRec); err != nil {
			return count, err
		}
		lock := t.pageLock(t.pageIDForRow(rowID))
		lock.Lock()
		writeErr := t.writeRecordAt(rowID, newRec)
		lock.Unlock()
		if writeErr != nil {
			return count, writeErr
		}
		count++
	}
	return count, nil
}

// Remove scans for matching valid rows, clears their validity byte, logs
// the zeroed post-image, and pushes each row id onto the free list.
func (t *TableStorage) Remove(where *schema.Condition) (int, error) {
	t.tableRWLock.RLock()
	defer t.tableRWLock.RUnlock()

	var whereIdx = -1
	var whereVal schema.Value
	if where != nil {
		whereIdx = t.schema.ColumnIndex(where.Column)
		if whereIdx < 0 {
			return 0, fmt.Errorf("tablestorage: unknown column %q in WHERE: %w", where.Column, dberrors.ErrSchemaViolation)
		}
		whereVal = where.Value
		if err := t.schema.NormalizeValue(whereIdx, &whereVal); err != nil {
			return 0, err
		}
	}

	rowCount := t.RowCount()
	count := 0
	for rowID := uint64(0); rowID < rowCount; rowID++ {
		rec, err := t.readRecordAt(rowID)
		if err != nil {
			return count, err
		}
		values, valid, err := t.schema.DecodeRecord(rec)
		if err != nil {
			return count, err
		}
		if !valid {
			continue
		}
		if whereIdx >= 0 && !schema.ValuesEqual(values[whereIdx], whereVal) {
			continue
		}

		zeroed, err := t.schema.EncodeRecord(values, false)
		if err != nil {
			return count, err
		}
		if err := t.appendRedo(walog.OpDelete, rowID, zeroed); err != nil {
			return count, err
		}
		lock := t.pageLock(t.pageIDForRow(rowID))
		lock.Lock()
		writeErr := t.writeRecordAt(rowID, zeroed)
		lock.Unlock()
		if writeErr != nil {
			return count, writeErr
		}

		t.metaMutex.Lock()
		t.freeList = append(t.freeList, rowID)
		t.metaMutex.Unlock()
		count++
	}
	return count, nil
}

// ReadRow is the point-read variant used by the executor pool: it takes
// the shared table lock and the row's striped page lock, never scans.
func (t *TableStorage) ReadRow(rowID uint64) ([]schema.Value, bool, error) {
	t.tableRWLock.RLock()
	defer t.tableRWLock.RUnlock()

	lock := t.pageLock(t.pageIDForRow(rowID))
	lock.Lock()
	rec, err := t.readRecordAt(rowID)
	lock.Unlock()
	if err != nil {
		return nil, false, err
	}
	return t.schema.DecodeRecord(rec)
}

// WriteRow is the point-write variant: encode and write, under the row's
// striped page lock, with redo appended first. valid controls the
// validity byte directly (valid=false writes a deleted slot); row_count and
// the free list are not updated.
func (t *TableStorage) WriteRow(rowID uint64, values []schema.Value, valid bool) error {
	t.tableRWLock.RLock()
	defer t.tableRWLock.RUnlock()

	rec, err := t.schema.EncodeRecord(values, valid)
	if err != nil {
		return err
	}
	op := walog.OpUpdate
	if !valid {
		op = walog.OpDelete
	}
	if err := t.appendRedo(op, rowID, rec); err != nil {
		return err
	}

	lock := t.pageLock(t.pageIDForRow(rowID))
	lock.Lock()
	defer lock.Unlock()
	return t.writeRecordAt(rowID, rec)
}

// UpdateRow is the point-update variant: read-modify-write a single row
// under its striped page lock.
func (t *TableStorage) UpdateRow(rowID uint64, sets []schema.SetClause) error {
	t.tableRWLock.RLock()
	defer t.tableRWLock.RUnlock()

	lock := t.pageLock(t.pageIDForRow(rowID))
	lock.Lock()
	defer lock.Unlock()

	rec, err := t.readRecordAt(rowID)
	if err != nil {
		return err
	}
	values, valid, err := t.schema.DecodeRecord(rec)
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("tablestorage: row %d is not valid: %w", rowID, dberrors.ErrNotFound)
	}
	for _, s := range sets {
		idx := t.schema.ColumnIndex(s.Column)
		if idx < 0 {
			return fmt.Errorf("tablestorage: unknown column %q in SET: %w", s.Column, dberrors.ErrSchemaViolation)
		}
		v := s.Value
		if err := t.schema.NormalizeValue(idx, &v); err != nil {
			return err
		}
		values[idx] = v
	}
	newRec, err := t.schema.EncodeRecord(values, true)
	if err != nil {
		return err
	}
	if err := t.appendRedo(walog.OpUpdate, rowID, newRec); err != nil {
		return err
	}
	return t.writeRecordAt(rowID, newRec)
}

// DeleteRow is the point-delete variant: clears the validity byte under
// the row's striped page lock and pushes it onto the free list.
func (t *TableStorage) DeleteRow(rowID uint64) error {
	t.tableRWLock.RLock()
	defer t.tableRWLock.RUnlock()

	lock := t.pageLock(t.pageIDForRow(rowID))
	lock.Lock()
	rec, err := t.readRecordAt(rowID)
	if err != nil {
		lock.Unlock()
		return err
	}
	values, valid, err := t.schema.DecodeRecord(rec)
	if err != nil {
		lock.Unlock()
		return err
	}
	if !valid {
		lock.Unlock()
		return nil
	}
	zeroed, err := t.schema.EncodeRecord(values, false)
	if err != nil {
		lock.Unlock()
		return err
	}
	if err := t.appendRedo(walog.OpDelete, rowID, zeroed); err != nil {
		lock.Unlock()
		return err
	}
	writeErr := t.writeRecordAt(rowID, zeroed)
	lock.Unlock()
	if writeErr != nil {
		return writeErr
	}

	t.metaMutex.Lock()
	t.freeList = append(t.freeList, rowID)
	t.metaMutex.Unlock()
	return nil
}

// ApplyRedo is recovery's blind post-image overwrite: it enlarges
// row_count to rowID+1 if necessary (rewriting the header), then writes
// the record verbatim. It does not touch the free list or the log.
func (t *TableStorage) ApplyRedo(rowID uint64, rec []byte) error {
	t.tableRWLock.Lock()
	defer t.tableRWLock.Unlock()

	if len(rec) != t.recordSize() {
		return fmt.Errorf("tablestorage: redo record is %d bytes, want %d: %w", len(rec), t.recordSize(), dberrors.ErrSizeMismatch)
	}

	t.metaMutex.Lock()
	if rowID >= t.rowCount {
		t.rowCount = rowID + 1
		if err := t.writeHeader(); err != nil {
			t.metaMutex.Unlock()
			return err
		}
	}
	t.metaMutex.Unlock()

	return t.writeRecordAt(rowID, rec)
}

// RebuildFreeList clears and repopulates the free list by scanning every
// row's validity byte; callers use this both on Load and after recovery
// replay.
func (t *TableStorage) RebuildFreeList() error {
	t.metaMutex.Lock()
	rowCount := t.rowCount
	t.metaMutex.Unlock()

	freeList := make([]uint64, 0)
	for rowID := uint64(0); rowID < rowCount; rowID++ {
		rec, err := t.readRecordAt(rowID)
		if err != nil {
			return err
		}
		if rec[0] == 0 {
			freeList = append(freeList, rowID)
		}
	}

	t.metaMutex.Lock()
	t.freeList = freeList
	t.metaMutex.Unlock()
	return nil
}

// appendRedo writes a post-image to the shared log, if this TableStorage
// was constructed with one. Staging tables built during ALTER pass a nil
// log and skip this entirely.
func (t *TableStorage) appendRedo(op walog.Op, rowID uint64, rec []byte) error {
	if t.log == nil {
		return nil
	}
	_, err := t.log.Append(op, t.name, rowID, rec)
	return err
}

// Flush delegates to the underlying PagedFile.
func (t *TableStorage) Flush() error {
	return t.file.Flush()
}

// Close closes the underlying Pager.
func (t *TableStorage) Close() error {
	return t.pager.Close()
}

// RebuildForSchema migrates every row into a fresh file under newSchema,
// mapping columns by name (missing columns get their zero default),
// preserving each row's original validity byte, then atomically swaps the
// new file into place via a rename-backup-restore dance.
func (t *TableStorage) RebuildForSchema(newSchema *schema.Schema) error {
	t.tableRWLock.Lock()
	defer t.tableRWLock.Unlock()

	tempPath := fmt.Sprintf("%s.tmp-%s", t.path, uuid.NewString())
	backupPath := t.path + ".bak"

	staging, err := Open(t.name, tempPath, newSchema, nil, Options{
		PageSize: t.pageSize, CachePages: 0, NumaNodes: 1, Logger: t.logger,
	})
	if err != nil {
		return fmt.Errorf("tablestorage: open staging file for rebuild: %w", err)
	}
	defer os.Remove(tempPath)

	for rowID := uint64(0); rowID < t.rowCount; rowID++ {
		rec, err := t.readRecordAt(rowID)
		if err != nil {
			_ = staging.Close()
			return err
		}
		oldValues, valid, err := t.schema.DecodeRecord(rec)
		if err != nil {
			_ = staging.Close()
			return err
		}

		newValues := newSchema.DefaultValues()
		for i, col := range newSchema.Columns {
			if oldIdx := t.schema.ColumnIndex(col.Name); oldIdx >= 0 {
				newValues[i] = oldValues[oldIdx]
			}
		}
		newRec, err := newSchema.EncodeRecord(newValues, valid)
		if err != nil {
			_ = staging.Close()
			return err
		}
		if err := staging.writeRecordAt(rowID, newRec); err != nil {
			_ = staging.Close()
			return err
		}
	}

	staging.rowCount = t.rowCount
	if err := staging.writeHeader(); err != nil {
		_ = staging.Close()
		return err
	}
	if err := staging.Flush(); err != nil {
		_ = staging.Close()
		return err
	}
	if err := staging.Close(); err != nil {
		return err
	}

	_ = os.Remove(backupPath) // ignore failure: there may be no prior backup
	if err := t.pager.Close(); err != nil {
		return fmt.Errorf("tablestorage: close current file before rebuild swap: %w", err)
	}
	if err := os.Rename(t.path, backupPath); err != nil {
		return fmt.Errorf("tablestorage: backup rename failed: %w", err)
	}
	if err := os.Rename(tempPath, t.path); err != nil {
		if restoreErr := os.Rename(backupPath, t.path); restoreErr != nil {
			return fmt.Errorf("tablestorage: rebuild swap failed and restore failed: %w", restoreErr)
		}
		return fmt.Errorf("tablestorage: rebuild swap failed, restored original: %w", err)
	}
	_ = os.Remove(backupPath)

	pgr, err := pager.Open(t.path, t.pageSize)
	if err != nil {
		return fmt.Errorf("tablestorage: reopen after rebuild: %w", err)
	}
	t.pager = pgr

	topo := t.opts.Topology
	if topo == nil {
		topo = numa.NewFallbackTopology(nonZero(t.opts.NumaNodes, 1), nil)
	}
	allocator := t.opts.Allocator
	if allocator == nil {
		allocator = numa.NewFallbackAllocator(nil)
	}
	pool, err := bufferpool.New(topo.NodeCount(), t.opts.CachePages, pgr, topo, allocator, t.opts.Selector, t.logger, t.opts.Metrics)
	if err != nil {
		return err
	}
	t.file = pagedfile.New(pool)
	t.schema = newSchema

	return t.RebuildFreeList()
}
