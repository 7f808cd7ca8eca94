// Package catalog persists the table_name -> Schema map as one line per
// table, the format Database loads at open and rewrites on every DDL
// operation.
package catalog

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/minidb-numa/numadb/internal/dberrors"
	"github.com/minidb-numa/numadb/internal/schema"
)

var foldCase = cases.Fold()

func normalizeTableName(name string) string {
	return foldCase.String(strings.TrimSpace(name))
}

// Catalog is a persisted name -> Schema map, one line per table, of the
// form "<name>|<col>:<TYPE>[|...]".
type Catalog struct {
	mu      sync.RWMutex
	path    string
	schemas map[string]*schema.Schema
}

// Open loads an existing catalog file, or starts empty if it does not
// exist yet.
func Open(path string) (*Catalog, error) {
	c := &Catalog{path: path, schemas: make(map[string]*schema.Schema)}
	if err := c.Load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load replaces the in-memory map with the file's contents.
func (c *Catalog) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.schemas = make(map[string]*schema.Schema)
			return nil
		}
		return fmt.Errorf("catalog: open %s: %w", c.path, wrapIO(err))
	}
	defer f.Close()

	schemas := make(map[string]*schema.Schema)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, s, err := parseLine(line)
		if err != nil {
			return err
		}
		schemas[normalizeTableName(name)] = s
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("catalog: scan %s: %w", c.path, wrapIO(err))
	}
	c.schemas = schemas
	return nil
}

func parseLine(line string) (string, *schema.Schema, error) {
	parts := strings.Split(line, "|")
	if len(parts) < 2 {
		return "", nil, fmt.Errorf("catalog: malformed line %q: %w", line, dberrors.ErrCorruption)
	}
	name := parts[0]
	columns := make([]schema.Column, 0, len(parts)-1)
	for _, colSpec := range parts[1:] {
		colon := strings.IndexByte(colSpec, ':')
		if colon < 0 {
			return "", nil, fmt.Errorf("catalog: malformed column %q: %w", colSpec, dberrors.ErrCorruption)
		}
		colName := colSpec[:colon]
		typ, length, err := schema.ParseColumnType(colSpec[colon+1:])
		if err != nil {
			return "", nil, err
		}
		columns = append(columns, schema.Column{Name: colName, Type: typ, Length: length})
	}
	s, err := schema.NewSchema(columns)
	if err != nil {
		return "", nil, err
	}
	return name, s, nil
}

// Save rewrites the entire catalog file.
func (c *Catalog) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveLocked()
}

func (c *Catalog) saveLocked() error {
	f, err := os.Create(c.path)
	if err != nil {
		return fmt.Errorf("catalog: create %s: %w", c.path, wrapIO(err))
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for name, s := range c.schemas {
		cols := make([]string, len(s.Columns))
		for i, col := range s.Columns {
			cols[i] = col.String()
		}
		if _, err := fmt.Fprintf(w, "%s|%s\n", name, strings.Join(cols, "|")); err != nil {
			return fmt.Errorf("catalog: write: %w", wrapIO(err))
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("catalog: flush: %w", wrapIO(err))
	}
	return f.Sync()
}

// CreateTable registers a new table. Fails if the name already exists.
func (c *Catalog) CreateTable(name string, s *schema.Schema) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := normalizeTableName(name)
	if _, exists := c.schemas[key]; exists {
		return fmt.Errorf("catalog: table %q already exists: %w", name, dberrors.ErrConflict)
	}
	c.schemas[key] = s
	return c.saveLocked()
}

// DropTable removes a table. Fails if it does not exist.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := normalizeTableName(name)
	if _, exists := c.schemas[key]; !exists {
		return fmt.Errorf("catalog: table %q does not exist: %w", name, dberrors.ErrConflict)
	}
	delete(c.schemas, key)
	return c.saveLocked()
}

// AlterAddColumn replaces name's schema with one that has col appended.
// Fails if name does not exist or already has a column of that name.
func (c *Catalog) AlterAddColumn(name string, col schema.Column) (*schema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := normalizeTableName(name)
	existing, ok := c.schemas[key]
	if !ok {
		return nil, fmt.Errorf("catalog: table %q does not exist: %w", name, dberrors.ErrSchemaViolation)
	}
	if existing.ColumnIndex(col.Name) >= 0 {
		return nil, fmt.Errorf("catalog: column %q already exists on %q: %w", col.Name, name, dberrors.ErrConflict)
	}
	newSchema, err := schema.NewSchema(append(append([]schema.Column(nil), existing.Columns...), col))
	if err != nil {
		return nil, err
	}
	c.schemas[key] = newSchema
	if err := c.saveLocked(); err != nil {
		return nil, err
	}
	return newSchema, nil
}

// GetSchema returns the schema registered for name, and whether it exists.
func (c *Catalog) GetSchema(name string) (*schema.Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[normalizeTableName(name)]
	return s, ok
}

// ListTables returns every registered table name.
func (c *Catalog) ListTables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.schemas))
	for name := range c.schemas {
		out = append(out, name)
	}
	return out
}

func wrapIO(err error) error {
	return fmt.Errorf("%v: %w", err, dberrors.ErrIO)
}
