// Package database implements the Executor-facing lifecycle API: open,
// recovery, checkpoint, DDL and DML dispatch. This is the surface an
// external SQL executor, REPL, or benchmark imports; the package itself
// has no SQL awareness.
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/minidb-numa/numadb/internal/bufferpool"
	"github.com/minidb-numa/numadb/internal/catalog"
	"github.com/minidb-numa/numadb/internal/config"
	"github.com/minidb-numa/numadb/internal/dberrors"
	"github.com/minidb-numa/numadb/internal/dbmetrics"
	"github.com/minidb-numa/numadb/internal/numa"
	"github.com/minidb-numa/numadb/internal/schema"
	"github.com/minidb-numa/numadb/internal/tablestorage"
	"github.com/minidb-numa/numadb/internal/walog"
	"github.com/minidb-numa/numadb/pkg/telemetry"
)

// Options configures a Database at Open time.
type Options struct {
	PageSize         int
	CachePagesPerTab int // cache capacity per table, 0 = unbounded
	PreferredNodes   int // wins over MINI_DB_NUMA_NODES when > 0
	Logger           *zap.Logger
	// Metrics overrides the instrument set Open would otherwise build from
	// Telemetry. Tests that want to assert on specific counters construct
	// their own and pass it here; everyone else leaves it nil and gets
	// whatever Telemetry.Enabled produces (a real Prometheus-backed
	// *dbmetrics.Metrics, or a no-op one if Telemetry is the zero value).
	Metrics          *dbmetrics.Metrics
	Telemetry        telemetry.Config
	CheckpointPolicy *CheckpointPolicy
}

// Database owns a catalog, a shared redo log, and one TableStorage per
// catalog entry. Database.log is the single LogManager shared across every
// table, matching the original layout where recovery and checkpoint are
// database-wide operations rather than per-table.
type Database struct {
	baseDir string
	opts    Options

	numaCfg   config.NumaConfig
	topology  numa.Topology
	allocator numa.Allocator
	selector  bufferpool.PageNodeSelector

	catalog *catalog.Catalog
	log     *walog.LogManager
	tables  map[string]*tablestorage.TableStorage

	checkpointPolicy  *CheckpointPolicy
	logger            *zap.Logger
	metrics           *dbmetrics.Metrics
	telemetryShutdown telemetry.ShutdownFunc
}

const catalogFileName = "catalog.db"
const walFileName = "wal.log"

func tablePath(baseDir, name string) string {
	return filepath.Join(baseDir, name+".tbl")
}

// Open ensures baseDir exists, loads the catalog, instantiates (and loads)
// a TableStorage per catalog entry, runs recovery, and returns the handle.
func Open(baseDir string, opts Options) (*Database, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = 4096
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CheckpointPolicy == nil {
		opts.CheckpointPolicy = WithEveryDML()
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("database: create base dir %s: %w", baseDir, joinIO(err))
	}

	cfg := config.FromEnv()
	topo := numa.NewTopologyFromConfig(cfg, opts.PreferredNodes)
	allocator := numa.NewAllocatorFromConfig(cfg, topo)

	cat, err := catalog.Open(filepath.Join(baseDir, catalogFileName))
	if err != nil {
		return nil, err
	}

	metrics := opts.Metrics
	shutdown := telemetry.ShutdownFunc(func(context.Context) error { return nil })
	if metrics == nil {
		tel, sd, err := telemetry.New(opts.Telemetry)
		if err != nil {
			return nil, fmt.Errorf("database: start telemetry: %w", err)
		}
		metrics, err = dbmetrics.New(tel.Meter)
		if err != nil {
			return nil, fmt.Errorf("database: register metrics: %w", err)
		}
		shutdown = sd
	}

	log, err := walog.Open(filepath.Join(baseDir, walFileName), opts.Logger, metrics)
	if err != nil {
		return nil, err
	}

	db := &Database{
		baseDir:           baseDir,
		opts:              opts,
		numaCfg:           cfg,
		topology:          topo,
		allocator:         allocator,
		selector:          bufferpool.ModuloSelector{},
		catalog:           cat,
		log:               log,
		tables:            make(map[string]*tablestorage.TableStorage),
		checkpointPolicy:  opts.CheckpointPolicy,
		logger:            opts.Logger,
		metrics:           metrics,
		telemetryShutdown: shutdown,
	}

	for _, name := range cat.ListTables() {
		if err := db.loadTable(name); err != nil {
			return nil, err
		}
	}

	if err := db.recover(); err != nil {
		return nil, fmt.Errorf("database: recovery failed, handle is unusable: %w", err)
	}

	return db, nil
}

func joinIO(err error) error {
	return fmt.Errorf("%v: %w", err, dberrors.ErrIO)
}

func (db *Database) loadTable(name string) error {
	s, ok := db.catalog.GetSchema(name)
	if !ok {
		return fmt.Errorf("database: table %q missing from catalog: %w", name, dberrors.ErrNotFound)
	}
	ts, err := tablestorage.Open(name, tablePath(db.baseDir, name), s, db.log, tablestorage.Options{
		PageSize:   db.opts.PageSize,
		CachePages: db.opts.CachePagesPerTab,
		NumaNodes:  db.numaCfg.PreferredNodes,
		Topology:   db.topology,
		Allocator:  db.allocator,
		Selector:   db.selector,
		Logger:     db.logger,
		Metrics:    db.metrics,
	})
	if err != nil {
		return err
	}
	db.tables[name] = ts
	return nil
}

// recover replays every log entry against the table it names, then
// rebuilds every table's free list and truncates the log. A missing
// target table fails recovery outright.
func (db *Database) recover() error {
	entries, err := db.log.ReadAll()
	if err != nil {
		return err
	}

	for _, e := range entries {
		ts, ok := db.tables[e.Table]
		if !ok {
			return fmt.Errorf("database: recovery references unknown table %q: %w", e.Table, dberrors.ErrNotFound)
		}
		if err := ts.ApplyRedo(e.RowID, e.Data); err != nil {
			return fmt.Errorf("database: apply redo for table %q row %d: %w", e.Table, e.RowID, err)
		}
	}

	for _, ts := range db.tables {
		if err := ts.RebuildFreeList(); err != nil {
			return err
		}
	}

	if len(entries) > 0 {
		if err := db.log.Clear(); err != nil {
			return err
		}
	}
	return nil
}

// Checkpoint flushes every table in order, then truncates the log. The
// first error short-circuits.
func (db *Database) Checkpoint() error {
	start := time.Now()
	for _, name := range db.sortedTableNames() {
		if err := db.tables[name].Flush(); err != nil {
			return fmt.Errorf("database: checkpoint flush %q: %w", name, err)
		}
	}
	if err := db.log.Clear(); err != nil {
		return err
	}
	db.metrics.RecordCheckpoint(context.Background(), time.Since(start).Milliseconds())
	return nil
}

func (db *Database) sortedTableNames() []string {
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	// Deterministic order matters for reproducible checkpoint behavior in
	// tests; simple insertion sort keeps this dependency-free.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

func (db *Database) maybeCheckpoint() error {
	if !db.checkpointPolicy.ShouldCheckpoint() {
		return nil
	}
	return db.Checkpoint()
}

// CreateTable registers a new table in the catalog and instantiates its
// backing TableStorage.
func (db *Database) CreateTable(name string, columns []schema.Column) error {
	s, err := schema.NewSchema(columns)
	if err != nil {
		return err
	}
	if err := db.catalog.CreateTable(name, s); err != nil {
		return err
	}
	return db.loadTable(name)
}

// DropTable removes a table from the catalog, closes its TableStorage,
// and deletes its backing file.
func (db *Database) DropTable(name string) error {
	ts, ok := db.tables[name]
	if !ok {
		return fmt.Errorf("database: table %q not open: %w", name, dberrors.ErrNotFound)
	}
	if err := db.catalog.DropTable(name); err != nil {
		return err
	}
	_ = ts.Close()
	delete(db.tables, name)
	if err := os.Remove(tablePath(db.baseDir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("database: remove table file for %q: %w", name, joinIO(err))
	}
	return nil
}

// AlterAddColumn updates the catalog schema and rebuilds the table's
// on-disk layout to match.
func (db *Database) AlterAddColumn(name string, col schema.Column) error {
	ts, ok := db.tables[name]
	if !ok {
		return fmt.Errorf("database: table %q not open: %w", name, dberrors.ErrNotFound)
	}
	newSchema, err := db.catalog.AlterAddColumn(name, col)
	if err != nil {
		return err
	}
	return ts.RebuildForSchema(newSchema)
}

func (db *Database) table(name string) (*tablestorage.TableStorage, error) {
	ts, ok := db.tables[name]
	if !ok {
		return nil, fmt.Errorf("database: table %q not found: %w", name, dberrors.ErrNotFound)
	}
	return ts, nil
}

// Insert is the bulk/scan-based DML entry point.
func (db *Database) Insert(table string, values []schema.Value) (uint64, error) {
	ts, err := db.table(table)
	if err != nil {
		return 0, err
	}
	rowID, err := ts.Insert(values)
	if err != nil {
		return 0, err
	}
	return rowID, db.maybeCheckpoint()
}

// Select is read-only and never checkpoints.
func (db *Database) Select(table string, where *schema.Condition) ([][]schema.Value, error) {
	ts, err := db.table(table)
	if err != nil {
		return nil, err
	}
	return ts.Select(where)
}

// Update is the bulk/scan-based DML entry point.
func (db *Database) Update(table string, sets []schema.SetClause, where *schema.Condition) (int, error) {
	ts, err := db.table(table)
	if err != nil {
		return 0, err
	}
	n, err := ts.Update(sets, where)
	if err != nil {
		return n, err
	}
	return n, db.maybeCheckpoint()
}

// Remove is the bulk/scan-based DML entry point.
func (db *Database) Remove(table string, where *schema.Condition) (int, error) {
	ts, err := db.table(table)
	if err != nil {
		return 0, err
	}
	n, err := ts.Remove(where)
	if err != nil {
		return n, err
	}
	return n, db.maybeCheckpoint()
}

// ReadRow is the point-read entry point, used by the NUMA-routed executor
// pool.
func (db *Database) ReadRow(table string, rowID uint64) ([]schema.Value, bool, error) {
	ts, err := db.table(table)
	if err != nil {
		return nil, false, err
	}
	return ts.ReadRow(rowID)
}

// WriteRow is the point-write entry point.
func (db *Database) WriteRow(table string, rowID uint64, values []schema.Value, valid bool) error {
	ts, err := db.table(table)
	if err != nil {
		return err
	}
	if err := ts.WriteRow(rowID, values, valid); err != nil {
		return err
	}
	return db.maybeCheckpoint()
}

// UpdateRow is the point-update entry point.
func (db *Database) UpdateRow(table string, rowID uint64, sets []schema.SetClause) error {
	ts, err := db.table(table)
	if err != nil {
		return err
	}
	if err := ts.UpdateRow(rowID, sets); err != nil {
		return err
	}
	return db.maybeCheckpoint()
}

// DeleteRow is the point-delete entry point.
func (db *Database) DeleteRow(table string, rowID uint64) error {
	ts, err := db.table(table)
	if err != nil {
		return err
	}
	if err := ts.DeleteRow(rowID); err != nil {
		return err
	}
	return db.maybeCheckpoint()
}

// GetSchema returns the schema of an open table.
func (db *Database) GetSchema(table string) (*schema.Schema, error) {
	ts, err := db.table(table)
	if err != nil {
		return nil, err
	}
	return ts.Schema(), nil
}

// ListTables returns every table name in the catalog.
func (db *Database) ListTables() []string {
	return db.catalog.ListTables()
}

// CachedPagesPerNode exposes the per-node resident-page counts for table,
// used by the NUMA-routing testable property.
func (db *Database) CachedPagesPerNode(table string) ([]int, error) {
	ts, err := db.table(table)
	if err != nil {
		return nil, err
	}
	return ts.CachedPagesPerNode(), nil
}

// PageSize returns the configured page size.
func (db *Database) PageSize() int { return db.opts.PageSize }

// Close flushes and closes every table and the shared log, combining any
// errors encountered along the way rather than stopping at the first one
// — an operator shutting down wants to know about every table that failed
// to close cleanly, not just the first.
func (db *Database) Close() error {
	var errs error
	for _, name := range db.sortedTableNames() {
		ts := db.tables[name]
		if err := ts.Flush(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("database: flush %q on close: %w", name, err))
		}
		if err := ts.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("database: close %q: %w", name, err))
		}
	}
	if err := db.log.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("database: close log: %w", err))
	}
	if err := db.telemetryShutdown(context.Background()); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("database: shut down telemetry: %w", err))
	}
	return errs
}
