package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/storage"
)

func setupCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.entropy")
	dm, st := storage.NewDiskManager(path, common.DefaultPageSize, false)
	require.True(t, st.OK())
	t.Cleanup(func() { dm.Close() })
	return NewCatalog(storage.NewBufferPool(128, dm))
}

func usersSchema() *common.Schema {
	return common.NewSchema([]common.Column{
		common.NewColumn("id", common.TypeInteger),
		common.NewVarcharColumn("name", 100),
	})
}

func TestCatalogCreateAndGetTable(t *testing.T) {
	cat := setupCatalog(t)

	info, st := cat.CreateTable("users", usersSchema())
	require.True(t, st.OK())
	require.NotEqual(t, common.InvalidOID, info.OID)
	require.NotNil(t, info.Heap)

	got, st := cat.GetTable("users")
	require.True(t, st.OK())
	require.Equal(t, info.OID, got.OID)
	require.True(t, cat.TableExists("users"))
	require.Equal(t, info.OID, cat.GetTableOID("users"))

	schema, st := cat.GetTableSchema("users")
	require.True(t, st.OK())
	require.Equal(t, 2, schema.ColumnCount())
}

func TestCatalogDuplicateTable(t *testing.T) {
	cat := setupCatalog(t)
	_, st := cat.CreateTable("users", usersSchema())
	require.True(t, st.OK())
	_, st = cat.CreateTable("users", usersSchema())
	require.Equal(t, common.CodeAlreadyExists, st.Code)
}

func TestCatalogCaseSensitiveNames(t *testing.T) {
	cat := setupCatalog(t)
	_, st := cat.CreateTable("Users", usersSchema())
	require.True(t, st.OK())
	require.False(t, cat.TableExists("users"))
	require.Equal(t, common.InvalidOID, cat.GetTableOID("users"))
}

func TestCatalogDropTable(t *testing.T) {
	cat := setupCatalog(t)
	_, st := cat.CreateTable("temp", usersSchema())
	require.True(t, st.OK())
	require.True(t, cat.DropTable("temp").OK())
	require.False(t, cat.TableExists("temp"))
	require.Equal(t, common.CodeNotFound, cat.DropTable("temp").Code)
}

func TestCatalogOidsAreNotReused(t *testing.T) {
	cat := setupCatalog(t)
	a, st := cat.CreateTable("a", usersSchema())
	require.True(t, st.OK())
	require.True(t, cat.DropTable("a").OK())
	b, st := cat.CreateTable("b", usersSchema())
	require.True(t, st.OK())
	require.Greater(t, b.OID, a.OID)
}

func TestCatalogTableNames(t *testing.T) {
	cat := setupCatalog(t)
	for _, name := range []string{"zebra", "alpha", "middle"} {
		_, st := cat.CreateTable(name, usersSchema())
		require.True(t, st.OK())
	}
	require.Equal(t, []string{"alpha", "middle", "zebra"}, cat.GetTableNames())
}

func TestCatalogGetMissingTable(t *testing.T) {
	cat := setupCatalog(t)
	_, st := cat.GetTable("nope")
	require.Equal(t, common.CodeNotFound, st.Code)
	_, st = cat.GetTableByOID(999)
	require.Equal(t, common.CodeNotFound, st.Code)
}

func TestCatalogCreateIndex(t *testing.T) {
	cat := setupCatalog(t)
	info, st := cat.CreateTable("users", usersSchema())
	require.True(t, st.OK())

	// Seed rows so the index backfills.
	for i := int32(1); i <= 5; i++ {
		tuple, st := storage.NewTuple([]common.Value{
			common.NewInteger(i),
			common.NewVarchar("user"),
		}, info.Schema)
		require.True(t, st.OK())
		require.True(t, info.Heap.InsertTuple(tuple).OK())
	}

	idx, st := cat.CreateIndex("users_id_idx", "users", "id")
	require.True(t, st.OK())
	require.Equal(t, 0, idx.ColumnIndex)
	for i := int64(1); i <= 5; i++ {
		_, st := idx.Tree.Find(i)
		require.True(t, st.OK(), "key %d", i)
	}

	require.Equal(t, idx, cat.GetIndexForColumn(info.OID, 0))
	require.Nil(t, cat.GetIndexForColumn(info.OID, 1))
	require.Len(t, cat.GetTableIndexes(info.OID), 1)

	_, st = cat.CreateIndex("users_id_idx", "users", "id")
	require.Equal(t, common.CodeAlreadyExists, st.Code)
	_, st = cat.CreateIndex("other", "users", "name")
	require.Equal(t, common.CodeNotSupported, st.Code)
	_, st = cat.CreateIndex("ghost", "missing", "id")
	require.Equal(t, common.CodeNotFound, st.Code)
}

func TestCatalogDropTableDropsIndexes(t *testing.T) {
	cat := setupCatalog(t)
	info, st := cat.CreateTable("users", usersSchema())
	require.True(t, st.OK())
	_, st = cat.CreateIndex("users_id_idx", "users", "id")
	require.True(t, st.OK())

	require.True(t, cat.DropTable("users").OK())
	_, st = cat.GetIndex("users_id_idx")
	require.Equal(t, common.CodeNotFound, st.Code)
	require.Nil(t, cat.GetIndexForColumn(info.OID, 0))
}
