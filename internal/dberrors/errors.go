// Package dberrors defines the sentinel error values shared across the
// storage engine. Call sites wrap these with fmt.Errorf("...: %w", ...) so
// errors.Is/errors.As keep working through the call stack.
package dberrors

import "errors"

var (
	// ErrNotOpen is returned when an operation is attempted on a component
	// that has not been opened (or has already been closed).
	ErrNotOpen = errors.New("dberrors: component not open")

	// ErrIO covers any failure surfaced by the underlying os.File I/O.
	ErrIO = errors.New("dberrors: io failure")

	// ErrSizeMismatch is returned when a buffer does not match an expected
	// fixed size (a page, a record, a header).
	ErrSizeMismatch = errors.New("dberrors: size mismatch")

	// ErrAllocFailure is returned when the NUMA allocator cannot provide a
	// buffer for a new cached page.
	ErrAllocFailure = errors.New("dberrors: allocation failure")

	// ErrCorruption is returned when on-disk data fails a structural check
	// (bad magic, truncated header, inconsistent record size).
	ErrCorruption = errors.New("dberrors: corruption detected")

	// ErrSchemaViolation is returned when a value cannot be coerced into a
	// column's declared type, or a row does not match the table's column
	// count.
	ErrSchemaViolation = errors.New("dberrors: schema violation")

	// ErrNotFound is returned when a named table, column, or row does not
	// exist.
	ErrNotFound = errors.New("dberrors: not found")

	// ErrConflict is returned when an operation cannot proceed because of a
	// naming collision (duplicate table, duplicate column) or a concurrent
	// structural change.
	ErrConflict = errors.New("dberrors: conflict")
)
