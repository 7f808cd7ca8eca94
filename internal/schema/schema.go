// Package schema implements the fixed-length record codec: column
// declarations, the Value/Condition/SetClause types an executor would
// build, and the encode/decode pair that turns a row of Values into the
// exact byte layout TableStorage persists.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/minidb-numa/numadb/internal/dberrors"
)

// ColumnType is either INT (4-byte LE signed integer) or TEXT(n) (fixed
// n-byte NUL-padded string).
type ColumnType int

const (
	ColumnInt ColumnType = iota
	ColumnText
)

// Column describes one fixed-width field of a record.
type Column struct {
	Name   string
	Type   ColumnType
	Length int // meaningful only for ColumnText; byte width of the field
}

// Size returns the on-disk byte width of the column.
func (c Column) Size() int {
	if c.Type == ColumnInt {
		return 4
	}
	return c.Length
}

// String renders the column the way the catalog file format expects:
// "name:INT" or "name:TEXT(n)".
func (c Column) String() string {
	if c.Type == ColumnInt {
		return fmt.Sprintf("%s:INT", c.Name)
	}
	return fmt.Sprintf("%s:TEXT(%d)", c.Name, c.Length)
}

// Value is a dynamically-typed column value: exactly one of IntValue or
// TextValue is meaningful, selected by Kind.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindText
)

type Value struct {
	Kind      ValueKind
	IntValue  int32
	TextValue string
}

func IntVal(v int32) Value   { return Value{Kind: KindInt, IntValue: v} }
func TextVal(v string) Value { return Value{Kind: KindText, TextValue: v} }

// isNumber reports whether a text value parses cleanly as a decimal
// integer, mirroring the original coercion helper.
func (v Value) isNumber() (int64, bool) {
	if v.Kind != KindText {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v.TextValue), 10, 64)
	return n, err == nil
}

// Condition is a single-column equality predicate, the only predicate
// shape this store supports (no multi-column predicates).
type Condition struct {
	Column string
	Value  Value
}

// SetClause is one column=value assignment in an UPDATE.
type SetClause struct {
	Column string
	Value  Value
}

var foldCase = cases.Fold()

func normalizeName(name string) string {
	return foldCase.String(strings.TrimSpace(name))
}

// Schema is an ordered list of columns plus the name→index map the
// original implementation keeps for O(1) lookup.
type Schema struct {
	Columns    []Column
	columnByName map[string]int
}

// NewSchema builds a Schema, lower-casing column names for lookup the same
// way the catalog lower-cases table names.
func NewSchema(columns []Column) (*Schema, error) {
	byName := make(map[string]int, len(columns))
	for i, c := range columns {
		key := normalizeName(c.Name)
		if key == "" {
			return nil, fmt.Errorf("schema: column %d has empty name: %w", i, dberrors.ErrSchemaViolation)
		}
		if _, exists := byName[key]; exists {
			return nil, fmt.Errorf("schema: duplicate column %q: %w", c.Name, dberrors.ErrConflict)
		}
		byName[key] = i
	}
	return &Schema{Columns: append([]Column(nil), columns...), columnByName: byName}, nil
}

// ColumnIndex returns the index of name, or -1 if absent.
func (s *Schema) ColumnIndex(name string) int {
	if i, ok := s.columnByName[normalizeName(name)]; ok {
		return i
	}
	return -1
}

// DataSize is the total byte width of all columns, excluding the validity
// byte.
func (s *Schema) DataSize() int {
	total := 0
	for _, c := range s.Columns {
		total += c.Size()
	}
	return total
}

// RecordSize is DataSize plus the one validity byte.
func (s *Schema) RecordSize() int {
	return 1 + s.DataSize()
}

// DefaultValues returns Int(0)/Text("") for every column, used by ALTER to
// backfill new columns.
func (s *Schema) DefaultValues() []Value {
	out := make([]Value, len(s.Columns))
	for i, c := range s.Columns {
		if c.Type == ColumnInt {
			out[i] = IntVal(0)
		} else {
			out[i] = TextVal("")
		}
	}
	return out
}

// NormalizeValue coerces v in place against column idx's declared type,
// applying the same INT<->TEXT coercion rules as the original codec.
func (s *Schema) NormalizeValue(idx int, v *Value) error {
	if idx < 0 || idx >= len(s.Columns) {
		return fmt.Errorf("schema: column index %d out of range: %w", idx, dberrors.ErrSchemaViolation)
	}
	col := s.Columns[idx]
	switch col.Type {
	case ColumnInt:
		switch v.Kind {
		case KindInt:
			return nil
		case KindText:
			n, ok := v.isNumber()
			if !ok || n < -(1<<31) || n > (1<<31)-1 {
				return fmt.Errorf("schema: value %q does not fit column %q: %w", v.TextValue, col.Name, dberrors.ErrSchemaViolation)
			}
			*v = IntVal(int32(n))
			return nil
		}
	case ColumnText:
		switch v.Kind {
		case KindText:
			if len(v.TextValue) > col.Length {
				return fmt.Errorf("schema: text %q exceeds column %q length %d: %w", v.TextValue, col.Name, col.Length, dberrors.ErrSchemaViolation)
			}
			return nil
		case KindInt:
			s := strconv.FormatInt(int64(v.IntValue), 10)
			if len(s) > col.Length {
				return fmt.Errorf("schema: int %d does not fit column %q length %d: %w", v.IntValue, col.Name, col.Length, dberrors.ErrSchemaViolation)
			}
			*v = TextVal(s)
			return nil
		}
	}
	return fmt.Errorf("schema: unsupported value kind for column %q: %w", col.Name, dberrors.ErrSchemaViolation)
}

// ValidateValues normalizes an entire row, checking column count first.
func (s *Schema) ValidateValues(values []Value) ([]Value, error) {
	if len(values) != len(s.Columns) {
		return nil, fmt.Errorf("schema: expected %d values, got %d: %w", len(s.Columns), len(values), dberrors.ErrSchemaViolation)
	}
	out := append([]Value(nil), values...)
	for i := range out {
		if err := s.NormalizeValue(i, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// EncodeRecord validates values, then serializes [valid][col0][col1]...
// into a record_size()-byte slice.
func (s *Schema) EncodeRecord(values []Value, valid bool) ([]byte, error) {
	normalized, err := s.ValidateValues(values)
	if err != nil {
		return nil, err
	}
	rec := make([]byte, s.RecordSize())
	if valid {
		rec[0] = 1
	}
	offset := 1
	for i, col := range s.Columns {
		v := normalized[i]
		switch col.Type {
		case ColumnInt:
			putLE32(rec[offset:offset+4], uint32(v.IntValue))
		case ColumnText:
			n := copy(rec[offset:offset+col.Length], v.TextValue)
			for j := n; j < col.Length; j++ {
				rec[offset+j] = 0
			}
		}
		offset += col.Size()
	}
	return rec, nil
}

// DecodeRecord is EncodeRecord's inverse: it does not validate coercion
// (the bytes are trusted to already be well-formed), and TEXT fields stop
// at the first NUL.
func (s *Schema) DecodeRecord(rec []byte) ([]Value, bool, error) {
	if len(rec) < s.RecordSize() {
		return nil, false, fmt.Errorf("schema: record is %d bytes, want %d: %w", len(rec), s.RecordSize(), dberrors.ErrCorruption)
	}
	valid := rec[0] != 0
	values := make([]Value, len(s.Columns))
	offset := 1
	for i, col := range s.Columns {
		switch col.Type {
		case ColumnInt:
			values[i] = IntVal(int32(getLE32(rec[offset : offset+4])))
		case ColumnText:
			field := rec[offset : offset+col.Length]
			if nul := indexByte(field, 0); nul >= 0 {
				field = field[:nul]
			}
			values[i] = TextVal(string(field))
		}
		offset += col.Size()
	}
	return values, valid, nil
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getLE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// ValuesEqual compares a and b using the column's type (mirrors the
// original implementation's values_equal helper used by WHERE matching).
func ValuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == KindInt {
		return a.IntValue == b.IntValue
	}
	return a.TextValue == b.TextValue
}

// ParseColumnType parses a catalog column type ("INT" or "TEXT(n)") into a
// ColumnType and length; Column.String renders the inverse.
func ParseColumnType(s string) (ColumnType, int, error) {
	s = strings.TrimSpace(s)
	if s == "INT" {
		return ColumnInt, 0, nil
	}
	if strings.HasPrefix(s, "TEXT(") && strings.HasSuffix(s, ")") {
		inner := s[len("TEXT(") : len(s)-1]
		n, err := strconv.Atoi(inner)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("schema: invalid TEXT length %q: %w", inner, dberrors.ErrSchemaViolation)
		}
		return ColumnText, n, nil
	}
	return 0, 0, fmt.Errorf("schema: unknown column type %q: %w", s, dberrors.ErrSchemaViolation)
}
