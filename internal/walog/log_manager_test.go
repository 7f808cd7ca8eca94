package walog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
}

func openTestLog(t *testing.T) (*LogManager, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	lm, err := Open(path, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lm.Close() })
	return lm, path
}

func TestLogManager_AppendAssignsSequentialLSNs(t *testing.T) {
	lm, _ := openTestLog(t)
	lsn1, err := lm.Append(OpInsert, "t", 0, []byte{0x01, 0x02})
	require.NoError(t, err)
	require.Equal(t, LSN(1), lsn1)

	lsn2, err := lm.Append(OpUpdate, "t", 1, []byte{0xAB})
	require.NoError(t, err)
	require.Equal(t, LSN(2), lsn2)
}

func TestLogManager_ReadAllRoundTrips(t *testing.T) {
	lm, _ := openTestLog(t)
	_, err := lm.Append(OpInsert, "t", 5, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)

	entries, err := lm.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint64(1), entries[0].LSN)
	require.Equal(t, OpInsert, entries[0].Op)
	require.Equal(t, "t", entries[0].Table)
	require.Equal(t, uint64(5), entries[0].RowID)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, entries[0].Data)
}

func TestLogManager_ReadAllOnMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	lm, err := Open(path, zap.NewNop(), nil)
	require.NoError(t, err)
	defer lm.Close()

	require.NoError(t, lm.Clear())
	require.NoError(t, os.Remove(path))
	entries, err := lm.ReadAll()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLogManager_ReadAllSkipsMalformedLines(t *testing.T) {
	lm, path := openTestLog(t)
	_, err := lm.Append(OpInsert, "t", 0, []byte{0x01})
	require.NoError(t, err)
	require.NoError(t, lm.Close())

	f, err := openAppend(path)
	require.NoError(t, err)
	_, err = f.WriteString("not-a-valid-line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	lm2, err := Open(path, zap.NewNop(), nil)
	require.NoError(t, err)
	defer lm2.Close()

	entries, err := lm2.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLogManager_ClearTruncates(t *testing.T) {
	lm, _ := openTestLog(t)
	_, err := lm.Append(OpInsert, "t", 0, []byte{0x01})
	require.NoError(t, err)
	require.NoError(t, lm.Clear())

	entries, err := lm.ReadAll()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLogManager_AppendRejectsPipeInTableName(t *testing.T) {
	lm, _ := openTestLog(t)
	_, err := lm.Append(OpInsert, "ta|ble", 0, []byte{0x01})
	require.Error(t, err)
}
