package pager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestPager(t *testing.T) *Pager {
	t.Helper()
	dir := t.TempDir()
	p, err := Open(filepath.Join(dir, "data.pages"), 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPager_ReadPastEOFZeroFills(t *testing.T) {
	p := openTestPager(t)
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = 0xFF
	}
	require.NoError(t, p.ReadPage(5, buf))
	for _, b := range buf {
		require.Equal(t, byte(0), b)
	}
}

func TestPager_WriteThenReadRoundTrips(t *testing.T) {
	p := openTestPager(t)
	want := make([]byte, 64)
	for i := range want {
		want[i] = byte(i)
	}
	require.NoError(t, p.WritePage(3, want))

	got := make([]byte, 64)
	require.NoError(t, p.ReadPage(3, got))
	require.Equal(t, want, got)
}

func TestPager_WriteBeyondEOFExtendsFile(t *testing.T) {
	p := openTestPager(t)
	buf := make([]byte, 64)
	buf[0] = 42
	require.NoError(t, p.WritePage(10, buf))

	count, err := p.PageCount()
	require.NoError(t, err)
	require.Equal(t, uint64(11), count)
}

func TestPager_RejectsWrongSizeBuffer(t *testing.T) {
	p := openTestPager(t)
	err := p.WritePage(0, make([]byte, 32))
	require.Error(t, err)
}

func TestPager_OperationsFailAfterClose(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(filepath.Join(dir, "data.pages"), 64)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	err = p.ReadPage(0, make([]byte, 64))
	require.Error(t, err)
}
