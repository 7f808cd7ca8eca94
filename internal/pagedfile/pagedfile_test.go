package pagedfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minidb-numa/numadb/internal/bufferpool"
	"github.com/minidb-numa/numadb/internal/numa"
	"github.com/minidb-numa/numadb/internal/pager"
)

func newTestFile(t *testing.T, pageSize int) *PagedFile {
	t.Helper()
	pgr, err := pager.Open(filepath.Join(t.TempDir(), "data"), pageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgr.Close() })

	pool, err := bufferpool.New(1, 0, pgr, nil, numa.NewFallbackAllocator(nil), nil, nil, nil)
	require.NoError(t, err)
	return New(pool)
}

func TestPagedFile_WriteReadWithinOnePage(t *testing.T) {
	f := newTestFile(t, 64)
	require.NoError(t, f.WriteItem(4, []byte("hello")))

	got, err := f.ReadItem(4, 5)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestPagedFile_WriteSpanningMultiplePages(t *testing.T) {
	f := newTestFile(t, 8)
	data := []byte("0123456789ABCDEF") // 16 bytes, spans pages 0,1,2
	require.NoError(t, f.WriteItem(4, data))

	got, err := f.ReadItem(4, len(data))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestPagedFile_FlushPersistsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	pgr, err := pager.Open(path, 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgr.Close() })
	pool, err := bufferpool.New(1, 0, pgr, nil, numa.NewFallbackAllocator(nil), nil, nil, nil)
	require.NoError(t, err)
	f := New(pool)

	require.NoError(t, f.WriteItem(0, []byte("abcdefgh")))
	require.NoError(t, f.Flush())

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("abcdefgh"), onDisk)
}
