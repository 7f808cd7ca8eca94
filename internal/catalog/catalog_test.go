package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minidb-numa/numadb/internal/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.NewSchema([]schema.Column{
		{Name: "id", Type: schema.ColumnInt},
		{Name: "name", Type: schema.ColumnText, Length: 8},
	})
	require.NoError(t, err)
	return s
}

func TestCatalog_CreateAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.CreateTable("Users", testSchema(t)))

	reloaded, err := Open(path)
	require.NoError(t, err)
	s, ok := reloaded.GetSchema("USERS")
	require.True(t, ok)
	require.Equal(t, "id:INT", s.Columns[0].String())
	require.Equal(t, "name:TEXT(8)", s.Columns[1].String())
}

func TestCatalog_CreateTableRejectsDuplicate(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	require.NoError(t, c.CreateTable("t", testSchema(t)))
	require.Error(t, c.CreateTable("t", testSchema(t)))
}

func TestCatalog_DropMissingFails(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	require.Error(t, c.DropTable("missing"))
}

func TestCatalog_AlterAddColumn(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	require.NoError(t, c.CreateTable("t", testSchema(t)))

	newSchema, err := c.AlterAddColumn("t", schema.Column{Name: "note", Type: schema.ColumnText, Length: 4})
	require.NoError(t, err)
	require.Len(t, newSchema.Columns, 3)

	_, err = c.AlterAddColumn("t", schema.Column{Name: "note", Type: schema.ColumnInt})
	require.Error(t, err)
}

func TestCatalog_ListTables(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	require.NoError(t, c.CreateTable("a", testSchema(t)))
	require.NoError(t, c.CreateTable("b", testSchema(t)))
	require.ElementsMatch(t, []string{"a", "b"}, c.ListTables())
}
