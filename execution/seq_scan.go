package execution

import (
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/parser"
	"github.com/intellect4all/entropy/storage"
)

// SeqScanExecutor streams every live tuple of a heap, applying an
// optional predicate.
type SeqScanExecutor struct {
	heap      *storage.TableHeap
	schema    *common.Schema
	predicate parser.Expression
	iter      *storage.TableIterator
}

// NewSeqScanExecutor builds a scan over heap with an optional predicate.
func NewSeqScanExecutor(heap *storage.TableHeap, schema *common.Schema, predicate parser.Expression) *SeqScanExecutor {
	return &SeqScanExecutor{heap: heap, schema: schema, predicate: predicate}
}

func (e *SeqScanExecutor) Init() common.Status {
	e.iter = e.heap.Iterator()
	return common.OkStatus()
}

func (e *SeqScanExecutor) Next() (*storage.Tuple, common.Status) {
	for e.iter.Valid() {
		tuple := e.iter.Tuple()
		e.iter.Next()
		if predicateTrue(e.predicate, tuple, e.schema) {
			return tuple, common.OkStatus()
		}
	}
	return nil, common.OkStatus()
}
