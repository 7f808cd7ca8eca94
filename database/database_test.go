package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/minidb-numa/numadb/internal/schema"
)

func intVal(v int32) schema.Value    { return schema.IntVal(v) }
func textVal(v string) schema.Value { return schema.TextVal(v) }

func openTestDB(t *testing.T, opts Options) *Database {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	db, err := Open(t.TempDir(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDatabase_InsertSelectRoundTrip(t *testing.T) {
	db := openTestDB(t, Options{})
	require.NoError(t, db.CreateTable("t", []schema.Column{
		{Name: "id", Type: schema.ColumnInt},
		{Name: "name", Type: schema.ColumnText, Length: 8},
	}))

	_, err := db.Insert("t", []schema.Value{intVal(1), textVal("a")})
	require.NoError(t, err)
	_, err = db.Insert("t", []schema.Value{intVal(2), textVal("bb")})
	require.NoError(t, err)
	_, err = db.Insert("t", []schema.Value{intVal(3), textVal("ccc")})
	require.NoError(t, err)

	rows, err := db.Select("t", &schema.Condition{Column: "id", Value: intVal(2)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "bb", rows[0][1].TextValue)

	all, err := db.Select("t", nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, int32(1), all[0][0].IntValue)
	require.Equal(t, int32(2), all[1][0].IntValue)
	require.Equal(t, int32(3), all[2][0].IntValue)
}

func TestDatabase_DeleteThenInsertReusesSlot(t *testing.T) {
	db := openTestDB(t, Options{})
	require.NoError(t, db.CreateTable("t", []schema.Column{
		{Name: "id", Type: schema.ColumnInt},
		{Name: "name", Type: schema.ColumnText, Length: 8},
	}))
	_, _ = db.Insert("t", []schema.Value{intVal(1), textVal("a")})
	_, _ = db.Insert("t", []schema.Value{intVal(2), textVal("bb")})
	_, _ = db.Insert("t", []schema.Value{intVal(3), textVal("ccc")})

	n, err := db.Remove("t", &schema.Condition{Column: "id", Value: intVal(2)})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rowID, err := db.Insert("t", []schema.Value{intVal(4), textVal("d")})
	require.NoError(t, err)
	require.Equal(t, uint64(1), rowID)

	values, valid, err := db.ReadRow("t", 1)
	require.NoError(t, err)
	require.True(t, valid)
	require.Equal(t, int32(4), values[0].IntValue)
	require.Equal(t, "d", values[1].TextValue)

	ts, err := db.table("t")
	require.NoError(t, err)
	require.Equal(t, uint64(3), ts.RowCount())
}

// The default checkpoint policy flushes after every successful DML, which
// would make a literal "kill -9" simulation trivially pass without
// exercising recover() at all (the log is already empty by the time the
// process would have crashed). The interval policy's single token is spent
// checkpointing the insert and does not refill within the test, so the
// update stays log-resident and reopening genuinely exercises ApplyRedo
// against a dropped in-memory table.
func TestDatabase_CrashRecoveryReplaysPostImages(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	logger := zaptest.NewLogger(t)

	db1, err := Open(dir, Options{Logger: logger, CheckpointPolicy: WithCheckpointInterval(1e9)})
	require.NoError(t, err)
	require.NoError(t, db1.CreateTable("t", []schema.Column{
		{Name: "id", Type: schema.ColumnInt},
		{Name: "v", Type: schema.ColumnText, Length: 4},
	}))
	_, err = db1.Insert("t", []schema.Value{intVal(1), textVal("a")})
	require.NoError(t, err)
	err = db1.UpdateRow("t", 0, []schema.SetClause{{Column: "v", Value: textVal("zz")}})
	require.NoError(t, err)
	require.NoError(t, db1.log.Close())

	db2, err := Open(dir, Options{Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close() })

	rows, err := db2.Select("t", &schema.Condition{Column: "id", Value: intVal(1)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "zz", rows[0][1].TextValue)

	entries, err := db2.log.ReadAll()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDatabase_AlterAddsColumnWithDefaults(t *testing.T) {
	db := openTestDB(t, Options{})
	require.NoError(t, db.CreateTable("t", []schema.Column{{Name: "id", Type: schema.ColumnInt}}))
	for i := int32(1); i <= 3; i++ {
		_, err := db.Insert("t", []schema.Value{intVal(i)})
		require.NoError(t, err)
	}

	require.NoError(t, db.AlterAddColumn("t", schema.Column{Name: "note", Type: schema.ColumnText, Length: 4}))

	rows, err := db.Select("t", nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		require.Equal(t, "", r[1].TextValue)
	}

	tablePath := filepath.Join(db.baseDir, "t.tbl")
	require.NoFileExists(t, tablePath+".bak")
}

func TestDatabase_NumaRoutingAcrossNodes(t *testing.T) {
	db := openTestDB(t, Options{PageSize: 64, PreferredNodes: 2})
	require.NoError(t, db.CreateTable("t", []schema.Column{
		{Name: "id", Type: schema.ColumnInt},
		{Name: "pad", Type: schema.ColumnText, Length: 28},
	}))

	for i := int32(0); i < 10; i++ {
		_, err := db.Insert("t", []schema.Value{intVal(i), textVal("x")})
		require.NoError(t, err)
	}

	counts, err := db.CachedPagesPerNode("t")
	require.NoError(t, err)
	require.Len(t, counts, 2)
	require.GreaterOrEqual(t, counts[0], 1)
	require.GreaterOrEqual(t, counts[1], 1)
}

func TestDatabase_DropTableRemovesFile(t *testing.T) {
	db := openTestDB(t, Options{})
	require.NoError(t, db.CreateTable("t", []schema.Column{{Name: "id", Type: schema.ColumnInt}}))
	path := filepath.Join(db.baseDir, "t.tbl")
	require.FileExists(t, path)

	require.NoError(t, db.DropTable("t"))
	require.NoFileExists(t, path)
	require.Empty(t, db.ListTables())
}
