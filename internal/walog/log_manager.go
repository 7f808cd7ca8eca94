// Package walog implements the append-only redo log: one text line per
// mutating operation, a monotonic in-process LSN counter, and a read-all
// used by recovery. The wire format is pipe-delimited text with hex-encoded
// record bytes, matching the original implementation's LogManager exactly.
package walog

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minidb-numa/numadb/internal/dberrors"
	"github.com/minidb-numa/numadb/internal/dbmetrics"
)

// Op is the mutation kind recorded in a log line.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Entry is one decoded log record.
type Entry struct {
	LSN   uint64
	Op    Op
	Table string
	RowID uint64
	Data  []byte
}

// LSN is the type of a log sequence number.
type LSN uint64

// LogManager is an append-only redo log file. Every public method is safe
// for concurrent use: one mutex serializes appends, reads, and truncation,
// matching the original's single-mutex design (there is no contention
// benefit to splitting readers from writers here — recovery only ever runs
// single-threaded at Database.Open).
type LogManager struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	nextLSN uint64
	logger  *zap.Logger
	metrics *dbmetrics.Metrics
}

// Open opens (creating if necessary) the log file at path. The LSN counter
// always starts at 1 for a freshly-constructed LogManager, regardless of
// what LSNs a prior process already wrote — recovery never depends on LSN
// continuity across restarts (see the log-reset open question). metrics may
// be nil (or dbmetrics.NewNoop()).
func Open(path string, logger *zap.Logger, metrics *dbmetrics.Metrics) (*LogManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("walog: open %s: %w", path, wrapIO(err))
	}
	return &LogManager{path: path, file: f, nextLSN: 1, logger: logger, metrics: metrics}, nil
}

func wrapIO(err error) error {
	return fmt.Errorf("%v: %w", err, dberrors.ErrIO)
}

// Append assigns the next LSN, writes one line, and flushes before
// returning, so the log write is durable before control returns to the
// caller (per the redo-before-data ordering rule).
//
// table must not contain '|': the line format splits naively on '|' and a
// table name containing it would corrupt parsing on replay.
func (lm *LogManager) Append(op Op, table string, rowID uint64, data []byte) (LSN, error) {
	if strings.Contains(table, "|") {
		return 0, fmt.Errorf("walog: table name %q must not contain '|': %w", table, dberrors.ErrSchemaViolation)
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	start := time.Now()
	lsn := lm.nextLSN
	line := fmt.Sprintf("%d|%s|%s|%d|%s\n", lsn, op, table, rowID, strings.ToUpper(hex.EncodeToString(data)))
	if _, err := lm.file.WriteString(line); err != nil {
		return 0, fmt.Errorf("walog: append: %w", wrapIO(err))
	}
	if err := lm.file.Sync(); err != nil {
		return 0, fmt.Errorf("walog: sync after append: %w", wrapIO(err))
	}
	lm.nextLSN++
	lm.logger.Debug("wal append", zap.Uint64("lsn", lsn), zap.String("op", string(op)), zap.String("table", table), zap.Uint64("row_id", rowID))
	lm.metrics.RecordWALAppend(context.Background(), time.Since(start).Microseconds())
	lm.metrics.SetCurrentLSN(context.Background(), 1)
	return LSN(lsn), nil
}

// ReadAll returns every well-formed entry in file order. Malformed lines
// (wrong field count, bad decimal, bad hex) are silently skipped rather
// than surfaced as an error, matching the original read_all contract —
// a missing log file is not an error either; it just yields no entries.
func (lm *LogManager) ReadAll() ([]Entry, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	f, err := os.Open(lm.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("walog: read_all open: %w", wrapIO(err))
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 5)
		if len(parts) < 5 {
			lm.logger.Warn("walog: skipping malformed line (field count)", zap.String("line", line))
			continue
		}
		lsn, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			lm.logger.Warn("walog: skipping malformed line (lsn)", zap.String("line", line))
			continue
		}
		rowID, err := strconv.ParseUint(parts[3], 10, 64)
		if err != nil {
			lm.logger.Warn("walog: skipping malformed line (row_id)", zap.String("line", line))
			continue
		}
		data, err := hex.DecodeString(parts[4])
		if err != nil {
			lm.logger.Warn("walog: skipping malformed line (hex)", zap.String("line", line))
			continue
		}
		entries = append(entries, Entry{
			LSN:   lsn,
			Op:    Op(parts[1]),
			Table: parts[2],
			RowID: rowID,
			Data:  data,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("walog: read_all scan: %w", wrapIO(err))
	}
	return entries, nil
}

// Clear truncates the log file. Used by Database.checkpoint after a
// successful flush of every table.
func (lm *LogManager) Clear() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if err := lm.file.Truncate(0); err != nil {
		return fmt.Errorf("walog: truncate: %w", wrapIO(err))
	}
	if _, err := lm.file.Seek(0, 0); err != nil {
		return fmt.Errorf("walog: seek after truncate: %w", wrapIO(err))
	}
	return nil
}

// Close closes the underlying file.
func (lm *LogManager) Close() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if err := lm.file.Close(); err != nil {
		return fmt.Errorf("walog: close: %w", wrapIO(err))
	}
	return nil
}
