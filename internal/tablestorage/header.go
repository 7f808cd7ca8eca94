package tablestorage

import (
	"fmt"

	"github.com/minidb-numa/numadb/internal/dberrors"
)

const (
	headerMagic     = "TBL1"
	headerSize      = 32
	pageLockStripes = 64
)

// header is the fixed 32-byte page-0 layout: magic(4) + record_size u32 LE
// (4) + row_count u64 LE (8) + reserved u64 LE (8), zero-padded to 32.
type header struct {
	magic      [4]byte
	recordSize uint32
	rowCount   uint64
	reserved   uint64
}

func encodeHeader(h header) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], h.magic[:])
	putLE32(buf[4:8], h.recordSize)
	putLE64(buf[8:16], h.rowCount)
	putLE64(buf[16:24], h.reserved)
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, fmt.Errorf("tablestorage: header is %d bytes, want %d: %w", len(buf), headerSize, dberrors.ErrCorruption)
	}
	var h header
	copy(h.magic[:], buf[0:4])
	if string(h.magic[:]) != headerMagic {
		return header{}, fmt.Errorf("tablestorage: bad magic %q: %w", h.magic, dberrors.ErrCorruption)
	}
	h.recordSize = getLE32(buf[4:8])
	h.rowCount = getLE64(buf[8:16])
	h.reserved = getLE64(buf[16:24])
	return h, nil
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

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getLE64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
