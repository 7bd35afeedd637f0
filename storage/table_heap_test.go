package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intellect4all/entropy/common"
)

func setupHeap(t *testing.T) (*TableHeap, *common.Schema) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "heap.entropy")
	dm, st := NewDiskManager(path, common.DefaultPageSize, false)
	require.True(t, st.OK())
	t.Cleanup(func() { dm.Close() })
	pool := NewBufferPool(64, dm)
	heap, st := NewTableHeap(pool)
	require.True(t, st.OK())
	schema := common.NewSchema([]common.Column{
		common.NewColumn("id", common.TypeInteger),
		common.NewVarcharColumn("name", 200),
	})
	return heap, schema
}

func makeRow(t *testing.T, schema *common.Schema, id int32, name string) *Tuple {
	t.Helper()
	tuple, st := NewTuple([]common.Value{
		common.NewInteger(id),
		common.NewVarchar(name),
	}, schema)
	require.True(t, st.OK())
	return tuple
}

func TestTableHeapInsertAndGet(t *testing.T) {
	heap, schema := setupHeap(t)

	tuple := makeRow(t, schema, 1, "Alice")
	require.True(t, heap.InsertTuple(tuple).OK())
	require.True(t, tuple.RID().IsValid())

	got, st := heap.GetTuple(tuple.RID())
	require.True(t, st.OK())
	require.Equal(t, int64(1), got.Value(schema, 0).AsInt())
	require.Equal(t, "Alice", got.Value(schema, 1).AsString())
}

func TestTableHeapDelete(t *testing.T) {
	heap, schema := setupHeap(t)
	tuple := makeRow(t, schema, 1, "gone")
	require.True(t, heap.InsertTuple(tuple).OK())
	require.True(t, heap.DeleteTuple(tuple.RID()).OK())

	_, st := heap.GetTuple(tuple.RID())
	require.Equal(t, common.CodeNotFound, st.Code)
	require.Equal(t, common.CodeNotFound, heap.DeleteTuple(tuple.RID()).Code)
}

func TestTableHeapUpdate(t *testing.T) {
	heap, schema := setupHeap(t)
	tuple := makeRow(t, schema, 1, "before")
	require.True(t, heap.InsertTuple(tuple).OK())
	rid := tuple.RID()

	updated := makeRow(t, schema, 2, "after")
	require.True(t, heap.UpdateTuple(updated, rid).OK())
	got, st := heap.GetTuple(rid)
	require.True(t, st.OK())
	require.Equal(t, int64(2), got.Value(schema, 0).AsInt())
	require.Equal(t, "after", got.Value(schema, 1).AsString())
}

func TestTableHeapSpansPages(t *testing.T) {
	heap, schema := setupHeap(t)
	const rows = 500
	rids := make([]common.RID, 0, rows)
	for i := 0; i < rows; i++ {
		tuple := makeRow(t, schema, int32(i), fmt.Sprintf("name-%04d-%s", i, "padding-padding-padding"))
		require.True(t, heap.InsertTuple(tuple).OK())
		rids = append(rids, tuple.RID())
	}
	pages := make(map[common.PageID]bool)
	for _, rid := range rids {
		pages[rid.PageID] = true
	}
	require.Greater(t, len(pages), 1)

	for i, rid := range rids {
		got, st := heap.GetTuple(rid)
		require.True(t, st.OK())
		require.Equal(t, int64(i), got.Value(schema, 0).AsInt())
	}
}

func TestTableIteratorSkipsDeleted(t *testing.T) {
	heap, schema := setupHeap(t)
	var rids []common.RID
	for i := 0; i < 10; i++ {
		tuple := makeRow(t, schema, int32(i), fmt.Sprintf("row-%d", i))
		require.True(t, heap.InsertTuple(tuple).OK())
		rids = append(rids, tuple.RID())
	}
	// Delete the even rows.
	for i := 0; i < 10; i += 2 {
		require.True(t, heap.DeleteTuple(rids[i]).OK())
	}

	var seen []int64
	for it := heap.Iterator(); it.Valid(); it.Next() {
		seen = append(seen, it.Tuple().Value(schema, 0).AsInt())
	}
	require.Equal(t, []int64{1, 3, 5, 7, 9}, seen)
}

func TestTableIteratorCrossesPages(t *testing.T) {
	heap, schema := setupHeap(t)
	const rows = 300
	for i := 0; i < rows; i++ {
		tuple := makeRow(t, schema, int32(i), fmt.Sprintf("row-%04d-%s", i, "some-filler-to-widen-rows"))
		require.True(t, heap.InsertTuple(tuple).OK())
	}
	count := 0
	prev := int64(-1)
	for it := heap.Iterator(); it.Valid(); it.Next() {
		id := it.Tuple().Value(schema, 0).AsInt()
		require.Equal(t, prev+1, id)
		prev = id
		count++
	}
	require.Equal(t, rows, count)
}

func TestTableIteratorEmptyHeap(t *testing.T) {
	heap, _ := setupHeap(t)
	it := heap.Iterator()
	require.False(t, it.Valid())
	require.Equal(t, common.InvalidRID(), it.RID())
}
