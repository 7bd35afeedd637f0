package entropy

import (
	"fmt"
	"os"
	"sync"

	"github.com/intellect4all/entropy/catalog"
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/execution"
	"github.com/intellect4all/entropy/optimizer"
	"github.com/intellect4all/entropy/parser"
	"github.com/intellect4all/entropy/storage"
	"github.com/intellect4all/entropy/txn"
)

// Database is the embeddable engine entry point. One Database owns the
// storage stack, catalog, optimizer and transaction substrate; Execute
// runs one SQL statement. Statements outside an explicit transaction
// auto-commit.
type Database struct {
	mu   sync.Mutex
	path string
	opts DatabaseOptions
	open bool

	disk     *storage.DiskManager
	pool     *storage.BufferPool
	cat      *catalog.Catalog
	binder   *parser.Binder
	stats    *optimizer.Statistics
	cost     *optimizer.CostModel
	selector *optimizer.IndexSelector

	wal     *txn.WALManager
	mvcc    *txn.MVCCManager
	locks   *txn.LockManager
	txns    *txn.TransactionManager
	current *txn.Transaction
}

// Open opens (creating if configured) the database at path. Pass
// storage.MemoryPath for a transient in-memory database.
func Open(path string, opts DatabaseOptions) (*Database, common.Status) {
	if opts.BufferPoolSize < common.MinBufferPoolSize {
		opts.BufferPoolSize = common.MinBufferPoolSize
	}
	if opts.PageSize == 0 {
		opts.PageSize = common.DefaultPageSize
	}
	if path != storage.MemoryPath {
		_, err := os.Stat(path)
		exists := err == nil
		if exists && opts.ErrorIfExists {
			return nil, common.AlreadyExists("database %q already exists", path)
		}
		if !exists && !opts.CreateIfMissing {
			return nil, common.NotFound("database %q does not exist", path)
		}
	}

	common.Log().Infow("opening database", "path", path)
	disk, st := storage.NewDiskManager(path, opts.PageSize, opts.EnableCompression)
	if !st.OK() {
		return nil, st
	}
	d := &Database{path: path, opts: opts, open: true, disk: disk}
	d.pool = storage.NewBufferPool(opts.BufferPoolSize, disk)
	d.cat = catalog.NewCatalog(d.pool)
	d.binder = parser.NewBinder(d.cat)
	d.stats = optimizer.NewStatistics(d.cat)
	d.cost = optimizer.NewCostModel(d.stats)
	d.selector = optimizer.NewIndexSelector(d.cat, d.stats, d.cost)

	d.mvcc = txn.NewMVCCManager()
	d.locks = txn.NewLockManager(txn.LockManagerOptions{
		DeadlockDetection: opts.DeadlockDetection,
		LockTimeout:       opts.LockTimeout,
	})
	resolve := func(oid common.OID) (*storage.TableHeap, bool) {
		info, st := d.cat.GetTableByOID(oid)
		if !st.OK() {
			return nil, false
		}
		return info.Heap, true
	}
	if opts.EnableWAL && path != storage.MemoryPath {
		wal, st := txn.NewWALManager(path + common.WALFileExtension)
		if !st.OK() {
			disk.Close()
			return nil, st
		}
		d.wal = wal
		if _, st := txn.NewRecoveryManager(wal, resolve).Recover(); !st.OK() {
			wal.Close()
			disk.Close()
			return nil, st
		}
	}
	d.txns = txn.NewTransactionManager(d.wal, d.mvcc, d.locks, resolve)
	return d, common.OkStatus()
}

// Path returns the database file path.
func (d *Database) Path() string { return d.path }

// IsOpen reports whether Close has not yet run.
func (d *Database) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// InTransaction reports whether an explicit transaction is active.
func (d *Database) InTransaction() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current != nil
}

// Begin starts an explicit transaction.
func (d *Database) Begin() common.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return common.ErrorStatus("database is closed")
	}
	if d.current != nil {
		return common.ErrorStatus("already in a transaction")
	}
	t, st := d.txns.Begin(txn.RepeatableRead)
	if !st.OK() {
		return st
	}
	d.current = t
	return common.OkStatus()
}

// Commit commits the explicit transaction.
func (d *Database) Commit() common.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return common.ErrorStatus("no active transaction")
	}
	st := d.txns.Commit(d.current)
	d.current = nil
	return st
}

// Rollback aborts the explicit transaction, undoing its writes.
func (d *Database) Rollback() common.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return common.ErrorStatus("no active transaction")
	}
	st := d.txns.Abort(d.current)
	d.current = nil
	return st
}

// Close flushes all state and releases files. Further calls are no-ops.
func (d *Database) Close() common.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return common.OkStatus()
	}
	common.Log().Infow("closing database", "path", d.path)
	if st := d.pool.FlushAllPages(); !st.OK() {
		return st
	}
	if d.wal != nil {
		if st := d.wal.Close(); !st.OK() {
			return st
		}
	}
	if st := d.disk.Close(); !st.OK() {
		return st
	}
	d.open = false
	return common.OkStatus()
}

// Execute parses and runs one SQL statement.
func (d *Database) Execute(sql string) Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return errorResult(common.ErrorStatus("database is closed"))
	}
	stmt, st := parser.Parse(sql)
	if !st.OK() {
		return errorResult(st)
	}
	switch s := stmt.(type) {
	case *parser.SelectStatement:
		return d.executeSelect(s)
	case *parser.InsertStatement:
		return d.executeInsert(s)
	case *parser.UpdateStatement:
		return d.executeUpdate(s)
	case *parser.DeleteStatement:
		return d.executeDelete(s)
	case *parser.CreateTableStatement:
		return d.executeCreateTable(s)
	case *parser.DropTableStatement:
		return d.executeDropTable(s)
	case *parser.ExplainStatement:
		return d.executeExplain(s)
	}
	return errorResult(common.NotSupported("unsupported statement type"))
}

// buildScan picks the access method for one table and wires the scan
// executor. The full predicate is applied regardless of access method;
// an index narrows the scanned rows, the filter keeps residual
// conjuncts honest.
func (d *Database) buildScan(ctx *parser.BoundSelect) (execution.Executor, optimizer.AccessMethod) {
	selection := d.selector.SelectAccessMethod(ctx.Table.OID, ctx.Predicate)
	if selection.UseIndex && selection.Index != nil && selection.Index.Tree != nil {
		var scan execution.Executor
		switch selection.ScanType {
		case optimizer.ScanPointLookup:
			scan = execution.NewIndexPointScan(selection.Index.Tree, ctx.Table.Heap,
				ctx.Table.Schema, *selection.StartKey)
		case optimizer.ScanRange:
			start, end := selection.RangeBounds()
			scan = execution.NewIndexRangeScan(selection.Index.Tree, ctx.Table.Heap,
				ctx.Table.Schema, start, end)
		default:
			scan = execution.NewIndexFullScan(selection.Index.Tree, ctx.Table.Heap, ctx.Table.Schema)
		}
		if ctx.Predicate != nil {
			return execution.NewFilterExecutor(scan, ctx.Table.Schema, ctx.Predicate), selection
		}
		return scan, selection
	}
	return execution.NewSeqScanExecutor(ctx.Table.Heap, ctx.Table.Schema, ctx.Predicate), selection
}

// buildJoinTree chains SELECT joins left to right into nested-loop
// joins.
func (d *Database) buildJoinTree(ctx *parser.BoundSelect) execution.Executor {
	var exec execution.Executor = execution.NewSeqScanExecutor(ctx.Table.Heap, ctx.Table.Schema, nil)
	leftSchema := ctx.Table.Schema
	for _, join := range ctx.Joins {
		right := execution.NewSeqScanExecutor(join.Table.Heap, join.Table.Schema, nil)
		nlj := execution.NewNestedLoopJoinExecutor(join.Type, exec, right,
			leftSchema, join.Table.Schema, join.On)
		exec = nlj
		leftSchema = nlj.OutputSchema()
	}
	if ctx.Predicate != nil {
		exec = execution.NewFilterExecutor(exec, leftSchema, ctx.Predicate)
	}
	return exec
}

func (d *Database) executeSelect(stmt *parser.SelectStatement) Result {
	ctx, st := d.binder.BindSelect(stmt)
	if !st.OK() {
		return errorResult(st)
	}

	var exec execution.Executor
	if len(ctx.Joins) > 0 {
		exec = d.buildJoinTree(ctx)
	} else {
		exec, _ = d.buildScan(ctx)
	}
	outputSchema := ctx.OutputSchema

	if !ctx.SelectAll {
		proj := execution.NewProjectionExecutor(exec, outputSchema, ctx.ColumnIndices)
		outputSchema = proj.OutputSchema()
		exec = proj
	}

	if len(stmt.OrderBy) > 0 {
		var keys []execution.SortKey
		for _, item := range stmt.OrderBy {
			if idx := outputSchema.ColumnIndex(item.ColumnName); idx >= 0 {
				keys = append(keys, execution.SortKey{ColumnIndex: idx, Ascending: item.Ascending})
			}
		}
		if len(keys) > 0 {
			exec = execution.NewSortExecutor(exec, outputSchema, keys)
		}
	}

	if stmt.Limit != nil || stmt.Offset != nil {
		limit := int64(-1)
		if stmt.Limit != nil {
			limit = *stmt.Limit
		}
		offset := int64(0)
		if stmt.Offset != nil {
			offset = *stmt.Offset
		}
		exec = execution.NewLimitExecutor(exec, limit, offset)
	}

	if st := exec.Init(); !st.OK() {
		return errorResult(st)
	}
	columnNames := make([]string, outputSchema.ColumnCount())
	for i := range columnNames {
		columnNames[i] = outputSchema.Column(i).Name
	}
	var rows []Row
	for {
		tuple, st := exec.Next()
		if !st.OK() {
			return errorResult(st)
		}
		if tuple == nil {
			break
		}
		rows = append(rows, NewRow(tuple.Values(outputSchema), columnNames))
	}
	return rowsResult(rows, columnNames)
}

// beginAuto returns the statement's transaction, starting a fresh one
// when none is active. The second return reports whether the statement
// must commit it.
func (d *Database) beginAuto() (*txn.Transaction, bool, common.Status) {
	if d.current != nil {
		if !d.current.IsActive() {
			return nil, false, common.Aborted("transaction %d is no longer active", d.current.ID())
		}
		return d.current, false, common.OkStatus()
	}
	t, st := d.txns.Begin(txn.RepeatableRead)
	if !st.OK() {
		return nil, false, st
	}
	return t, true, common.OkStatus()
}

// finishAuto commits an auto-commit transaction or aborts it after a
// failed statement. Abort undoes only the writes recorded in the write
// set; rows an executor applied before it failed are not recorded there
// and stay in the table.
func (d *Database) finishAuto(t *txn.Transaction, auto bool, ok bool) common.Status {
	if !auto {
		return common.OkStatus()
	}
	if ok {
		return d.txns.Commit(t)
	}
	return d.txns.Abort(t)
}

func (d *Database) executeInsert(stmt *parser.InsertStatement) Result {
	ctx, st := d.binder.BindInsert(stmt)
	if !st.OK() {
		return errorResult(st)
	}
	schema := ctx.Table.Schema
	tuples := make([]*storage.Tuple, 0, len(stmt.Rows))
	for _, row := range stmt.Rows {
		values := make([]common.Value, schema.ColumnCount())
		for i := range values {
			values[i] = common.NewNull()
		}
		for i, v := range row {
			colIdx := ctx.ColumnIndices[i]
			target := schema.Column(colIdx).Type
			if v.IsNull() {
				values[colIdx] = common.NewNull()
				continue
			}
			coerced := v.CastTo(target)
			if coerced.IsNull() {
				return errorResult(common.InvalidArgument(
					"value %q does not fit column %q (%s)",
					v.String(), schema.Column(colIdx).Name, common.TypeName(target)))
			}
			values[colIdx] = coerced
		}
		tuple, st := storage.NewTuple(values, schema)
		if !st.OK() {
			return errorResult(st)
		}
		tuples = append(tuples, tuple)
	}

	t, auto, st := d.beginAuto()
	if !st.OK() {
		return errorResult(st)
	}
	insert := execution.NewInsertExecutor(ctx.Table, d.cat.GetTableIndexes(ctx.Table.OID), tuples)
	if st := insert.Init(); !st.OK() {
		d.finishAuto(t, auto, false)
		return errorResult(st)
	}
	if _, st := insert.Next(); !st.OK() {
		d.finishAuto(t, auto, false)
		return errorResult(st)
	}
	for _, tuple := range tuples[:insert.RowsInserted()] {
		t.AddWriteRecord(txn.WriteRecord{Type: txn.WriteInsert, TableOID: ctx.Table.OID, RID: tuple.RID()})
		if st := d.txns.LogInsert(t, ctx.Table.OID, tuple.RID(), tuple.Data()); !st.OK() {
			d.finishAuto(t, auto, false)
			return errorResult(st)
		}
	}
	if st := d.finishAuto(t, auto, true); !st.OK() {
		return errorResult(st)
	}
	d.stats.OnRowsInserted(ctx.Table.OID, int64(insert.RowsInserted()))
	return affectedResult(insert.RowsInserted())
}

// collectTargets pre-scans matching rows so write statements can log
// before images.
func collectTargets(table *catalog.TableInfo, predicate parser.Expression) []*storage.Tuple {
	var out []*storage.Tuple
	scan := execution.NewSeqScanExecutor(table.Heap, table.Schema, predicate)
	if st := scan.Init(); !st.OK() {
		return nil
	}
	for {
		tuple, st := scan.Next()
		if !st.OK() || tuple == nil {
			return out
		}
		out = append(out, tuple)
	}
}

func (d *Database) executeUpdate(stmt *parser.UpdateStatement) Result {
	ctx, st := d.binder.BindUpdate(stmt)
	if !st.OK() {
		return errorResult(st)
	}
	targets := collectTargets(ctx.Table, ctx.Predicate)

	t, auto, st := d.beginAuto()
	if !st.OK() {
		return errorResult(st)
	}
	child := execution.NewSeqScanExecutor(ctx.Table.Heap, ctx.Table.Schema, ctx.Predicate)
	update := execution.NewUpdateExecutor(child, ctx.Table, ctx.ColumnIndices, ctx.Values)
	if st := update.Init(); !st.OK() {
		d.finishAuto(t, auto, false)
		return errorResult(st)
	}
	if _, st := update.Next(); !st.OK() {
		d.finishAuto(t, auto, false)
		return errorResult(st)
	}
	for _, target := range targets {
		old := append([]byte(nil), target.Data()...)
		t.AddWriteRecord(txn.WriteRecord{Type: txn.WriteUpdate, TableOID: ctx.Table.OID,
			RID: target.RID(), OldData: old})
		newTuple, st := ctx.Table.Heap.GetTuple(target.RID())
		var newData []byte
		if st.OK() {
			newData = newTuple.Data()
		}
		if st := d.txns.LogUpdate(t, ctx.Table.OID, target.RID(), old, newData); !st.OK() {
			d.finishAuto(t, auto, false)
			return errorResult(st)
		}
	}
	if st := d.finishAuto(t, auto, true); !st.OK() {
		return errorResult(st)
	}
	return affectedResult(update.RowsUpdated())
}

func (d *Database) executeDelete(stmt *parser.DeleteStatement) Result {
	ctx, st := d.binder.BindDelete(stmt)
	if !st.OK() {
		return errorResult(st)
	}
	targets := collectTargets(ctx.Table, ctx.Predicate)

	t, auto, st := d.beginAuto()
	if !st.OK() {
		return errorResult(st)
	}
	child := execution.NewSeqScanExecutor(ctx.Table.Heap, ctx.Table.Schema, ctx.Predicate)
	del := execution.NewDeleteExecutor(child, ctx.Table, d.cat.GetTableIndexes(ctx.Table.OID))
	if st := del.Init(); !st.OK() {
		d.finishAuto(t, auto, false)
		return errorResult(st)
	}
	if _, st := del.Next(); !st.OK() {
		d.finishAuto(t, auto, false)
		return errorResult(st)
	}
	for _, target := range targets {
		old := append([]byte(nil), target.Data()...)
		t.AddWriteRecord(txn.WriteRecord{Type: txn.WriteDelete, TableOID: ctx.Table.OID,
			RID: target.RID(), OldData: old})
		if st := d.txns.LogDelete(t, ctx.Table.OID, target.RID(), old); !st.OK() {
			d.finishAuto(t, auto, false)
			return errorResult(st)
		}
	}
	if st := d.finishAuto(t, auto, true); !st.OK() {
		return errorResult(st)
	}
	d.stats.OnRowsDeleted(ctx.Table.OID, int64(del.RowsDeleted()))
	return affectedResult(del.RowsDeleted())
}

func (d *Database) executeCreateTable(stmt *parser.CreateTableStatement) Result {
	columns := make([]common.Column, 0, len(stmt.Columns))
	seen := make(map[string]bool)
	primary := ""
	for _, def := range stmt.Columns {
		if seen[def.Name] {
			return errorResult(common.InvalidArgument("duplicate column %q", def.Name))
		}
		seen[def.Name] = true
		col := common.Column{Name: def.Name, Type: def.Type, Length: def.Length, Nullable: !def.NotNull}
		if !common.IsVariableLength(def.Type) {
			col.Length = common.TypeSize(def.Type)
		}
		columns = append(columns, col)
		if def.PrimaryKey && primary == "" {
			primary = def.Name
		}
	}
	info, st := d.cat.CreateTable(stmt.TableName, common.NewSchema(columns))
	if !st.OK() {
		return errorResult(st)
	}
	d.stats.OnTableCreated(info.OID)
	if primary != "" {
		colIdx := info.Schema.ColumnIndex(primary)
		if colIdx >= 0 && common.IsIntegerFamily(info.Schema.Column(colIdx).Type) {
			name := fmt.Sprintf("%s_pkey", stmt.TableName)
			if _, st := d.cat.CreateIndex(name, stmt.TableName, primary); !st.OK() {
				common.Log().Warnw("primary key index not created", "table", stmt.TableName, "status", st.String())
			}
		}
	}
	return affectedResult(0)
}

func (d *Database) executeDropTable(stmt *parser.DropTableStatement) Result {
	oid := d.cat.GetTableOID(stmt.TableName)
	if st := d.cat.DropTable(stmt.TableName); !st.OK() {
		return errorResult(st)
	}
	if oid != common.InvalidOID {
		d.stats.OnTableDropped(oid)
	}
	return affectedResult(0)
}

func (d *Database) executeExplain(stmt *parser.ExplainStatement) Result {
	selectStmt, ok := stmt.Inner.(*parser.SelectStatement)
	if !ok {
		return errorResult(common.NotSupported("EXPLAIN only supports SELECT"))
	}
	ctx, st := d.binder.BindSelect(selectStmt)
	if !st.OK() {
		return errorResult(st)
	}
	selection := d.selector.SelectAccessMethod(ctx.Table.OID, ctx.Predicate)
	plan := optimizer.BuildSelectPlan(ctx.Table.Name, selection, ctx.Predicate != nil,
		selectStmt.OrderBy, selectStmt.Limit)

	lines := append([]string{"Query Plan:"}, plan.Describe()...)
	estimated := d.stats.TableCardinality(ctx.Table.OID)
	if ctx.Predicate != nil {
		sel := d.stats.EstimateSelectivity(ctx.Table.OID, ctx.Predicate)
		estimated = int64(float64(estimated) * sel)
	}
	lines = append(lines, fmt.Sprintf("Estimated Rows: %d", estimated))

	columnNames := []string{"QUERY PLAN"}
	rows := make([]Row, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, NewRow([]Value{common.NewVarchar(line)}, columnNames))
	}
	return rowsResult(rows, columnNames)
}
