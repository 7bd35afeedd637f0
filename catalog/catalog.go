package catalog

import (
	"sort"
	"sync"

	"github.com/intellect4all/entropy/btree"
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/storage"
)

// TableInfo bundles what the rest of the engine needs to know about one
// table.
type TableInfo struct {
	OID    common.OID
	Name   string
	Schema *common.Schema
	Heap   *storage.TableHeap
}

// IndexInfo describes a secondary index over a single column.
type IndexInfo struct {
	OID         common.OID
	Name        string
	TableOID    common.OID
	ColumnIndex int
	Tree        *btree.BPlusTree
}

// Catalog maps names to tables and indexes. Oids are assigned
// monotonically and never reused within a process lifetime. DDL is
// single-writer; queries read under a shared lock.
type Catalog struct {
	mu         sync.RWMutex
	pool       *storage.BufferPool
	tables     map[common.OID]*TableInfo
	tableNames map[string]common.OID
	indexes    map[common.OID]*IndexInfo
	indexNames map[string]common.OID
	nextOID    common.OID
}

// NewCatalog builds an empty catalog allocating through pool.
func NewCatalog(pool *storage.BufferPool) *Catalog {
	return &Catalog{
		pool:       pool,
		tables:     make(map[common.OID]*TableInfo),
		tableNames: make(map[string]common.OID),
		indexes:    make(map[common.OID]*IndexInfo),
		indexNames: make(map[string]common.OID),
		nextOID:    1,
	}
}

// CreateTable registers name with schema over a fresh empty heap.
func (c *Catalog) CreateTable(name string, schema *common.Schema) (*TableInfo, common.Status) {
	if len(name) == 0 || len(name) > common.MaxTableNameLength {
		return nil, common.InvalidArgument("invalid table name %q", name)
	}
	if schema.ColumnCount() == 0 || schema.ColumnCount() > common.MaxColumnsPerTable {
		return nil, common.InvalidArgument("table %q must have between 1 and %d columns",
			name, common.MaxColumnsPerTable)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tableNames[name]; ok {
		return nil, common.AlreadyExists("table %q already exists", name)
	}
	heap, st := storage.NewTableHeap(c.pool)
	if !st.OK() {
		return nil, st
	}
	oid := c.nextOID
	c.nextOID++
	info := &TableInfo{OID: oid, Name: name, Schema: schema, Heap: heap}
	c.tables[oid] = info
	c.tableNames[name] = oid
	return info, common.OkStatus()
}

// DropTable removes the mapping for name along with its indexes. Heap
// pages are released once outstanding references drop.
func (c *Catalog) DropTable(name string) common.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	oid, ok := c.tableNames[name]
	if !ok {
		return common.NotFound("table %q does not exist", name)
	}
	delete(c.tableNames, name)
	delete(c.tables, oid)
	for idxOID, idx := range c.indexes {
		if idx.TableOID == oid {
			delete(c.indexNames, idx.Name)
			delete(c.indexes, idxOID)
		}
	}
	return common.OkStatus()
}

// GetTable returns the table registered under name.
func (c *Catalog) GetTable(name string) (*TableInfo, common.Status) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	oid, ok := c.tableNames[name]
	if !ok {
		return nil, common.NotFound("table %q does not exist", name)
	}
	return c.tables[oid], common.OkStatus()
}

// GetTableByOID returns the table registered under oid.
func (c *Catalog) GetTableByOID(oid common.OID) (*TableInfo, common.Status) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.tables[oid]
	if !ok {
		return nil, common.NotFound("no table with oid %d", oid)
	}
	return info, common.OkStatus()
}

// TableExists reports whether name is registered.
func (c *Catalog) TableExists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tableNames[name]
	return ok
}

// GetTableNames returns all table names in sorted order.
func (c *Catalog) GetTableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tableNames))
	for name := range c.tableNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetTableOID resolves a table name, InvalidOID when absent.
func (c *Catalog) GetTableOID(name string) common.OID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	oid, ok := c.tableNames[name]
	if !ok {
		return common.InvalidOID
	}
	return oid
}

// GetTableSchema returns the schema registered under name.
func (c *Catalog) GetTableSchema(name string) (*common.Schema, common.Status) {
	info, st := c.GetTable(name)
	if !st.OK() {
		return nil, st
	}
	return info.Schema, common.OkStatus()
}

// CreateIndex builds an empty B+-tree index over one column of an
// existing table and backfills it from the heap.
func (c *Catalog) CreateIndex(name, tableName, columnName string) (*IndexInfo, common.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.indexNames[name]; ok {
		return nil, common.AlreadyExists("index %q already exists", name)
	}
	tableOID, ok := c.tableNames[tableName]
	if !ok {
		return nil, common.NotFound("table %q does not exist", tableName)
	}
	table := c.tables[tableOID]
	colIdx := table.Schema.ColumnIndex(columnName)
	if colIdx < 0 {
		return nil, common.NotFound("column %q does not exist in table %q", columnName, tableName)
	}
	if !common.IsIntegerFamily(table.Schema.Column(colIdx).Type) {
		return nil, common.NotSupported("index on non-integer column %q", columnName)
	}
	tree := btree.NewBPlusTree(c.pool)
	for it := table.Heap.Iterator(); it.Valid(); it.Next() {
		key := it.Tuple().Value(table.Schema, colIdx)
		if key.IsNull() {
			continue
		}
		if st := tree.Insert(key.AsInt(), it.RID()); !st.OK() && st.Code != common.CodeAlreadyExists {
			return nil, st
		}
	}
	oid := c.nextOID
	c.nextOID++
	info := &IndexInfo{OID: oid, Name: name, TableOID: tableOID, ColumnIndex: colIdx, Tree: tree}
	c.indexes[oid] = info
	c.indexNames[name] = oid
	return info, common.OkStatus()
}

// DropIndex removes the index registered under name.
func (c *Catalog) DropIndex(name string) common.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	oid, ok := c.indexNames[name]
	if !ok {
		return common.NotFound("index %q does not exist", name)
	}
	delete(c.indexNames, name)
	delete(c.indexes, oid)
	return common.OkStatus()
}

// GetIndex returns the index registered under name.
func (c *Catalog) GetIndex(name string) (*IndexInfo, common.Status) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	oid, ok := c.indexNames[name]
	if !ok {
		return nil, common.NotFound("index %q does not exist", name)
	}
	return c.indexes[oid], common.OkStatus()
}

// GetIndexForColumn returns the index over (tableOID, columnIndex), nil
// when none exists.
func (c *Catalog) GetIndexForColumn(tableOID common.OID, columnIndex int) *IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, idx := range c.indexes {
		if idx.TableOID == tableOID && idx.ColumnIndex == columnIndex {
			return idx
		}
	}
	return nil
}

// GetTableIndexes returns every index over tableOID.
func (c *Catalog) GetTableIndexes(tableOID common.OID) []*IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*IndexInfo
	for _, idx := range c.indexes {
		if idx.TableOID == tableOID {
			out = append(out, idx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OID < out[j].OID })
	return out
}
