package txn

import (
	"math"
	"sync/atomic"

	"github.com/intellect4all/entropy/common"
)

// TimestampMax marks a version that has not (visibly) been deleted.
const TimestampMax = uint64(math.MaxUint64)

// VersionInfo is the per-tuple MVCC metadata. begin_ts stays zero while
// the creator is uncommitted; end_ts stays MAX while no committed
// deleter exists. A rolled-back version carries begin_ts=MAX, end_ts=0
// and is invisible to every snapshot.
type VersionInfo struct {
	CreatedBy common.TxnID
	DeletedBy common.TxnID
	BeginTS   uint64
	EndTS     uint64
}

// IsDeleted reports whether a deleter has touched this version.
func (v *VersionInfo) IsDeleted() bool {
	return v.DeletedBy != common.InvalidTxnID || v.EndTS != TimestampMax
}

// MVCCManager owns the global timestamp and the visibility rules.
type MVCCManager struct {
	globalTimestamp atomic.Uint64
}

// NewMVCCManager starts the timestamp counter at 1.
func NewMVCCManager() *MVCCManager {
	m := &MVCCManager{}
	m.globalTimestamp.Store(1)
	return m
}

// GetTimestamp hands out the next monotonic timestamp.
func (m *MVCCManager) GetTimestamp() uint64 {
	return m.globalTimestamp.Add(1) - 1
}

// CurrentTimestamp reads the counter without advancing it.
func (m *MVCCManager) CurrentTimestamp() uint64 {
	return m.globalTimestamp.Load()
}

// IsVisible applies snapshot isolation: a version is visible when this
// transaction created it (and did not delete it), or when it committed
// before the transaction's snapshot and no deletion visible to that
// snapshot supersedes it.
func (m *MVCCManager) IsVisible(v *VersionInfo, t *Transaction) bool {
	if v.CreatedBy == t.ID() {
		// Own write; hidden again if this transaction deleted it.
		return v.DeletedBy != t.ID()
	}
	if v.BeginTS == 0 || v.BeginTS > t.StartTS() {
		// Creator uncommitted at snapshot time (or rolled back).
		return false
	}
	if v.DeletedBy == common.InvalidTxnID {
		return true
	}
	if v.DeletedBy == t.ID() {
		return false
	}
	// Deleted by someone else: visible while the deletion is not yet
	// committed within this snapshot.
	return v.EndTS == TimestampMax || v.EndTS > t.StartTS()
}

// IsVisibleReadCommitted applies read-committed visibility: committed
// state is consulted live rather than against the snapshot.
func (m *MVCCManager) IsVisibleReadCommitted(v *VersionInfo, t *Transaction,
	isCommitted func(common.TxnID) bool) bool {
	if v.BeginTS == TimestampMax && v.EndTS == 0 {
		return false // rolled back
	}
	if v.CreatedBy != t.ID() && !isCommitted(v.CreatedBy) {
		return false
	}
	if v.DeletedBy == common.InvalidTxnID {
		return true
	}
	if v.DeletedBy == t.ID() {
		return false
	}
	return !isCommitted(v.DeletedBy)
}

// InitVersion stamps a fresh version for its creating transaction.
func (m *MVCCManager) InitVersion(v *VersionInfo, t *Transaction) {
	v.CreatedBy = t.ID()
	v.DeletedBy = common.InvalidTxnID
	v.BeginTS = 0
	v.EndTS = TimestampMax
}

// MarkDeleted records an uncommitted deletion.
func (m *MVCCManager) MarkDeleted(v *VersionInfo, t *Transaction) {
	v.DeletedBy = t.ID()
	v.EndTS = TimestampMax
}

// FinalizeCommit fills whichever timestamp the committing transaction
// left pending.
func (m *MVCCManager) FinalizeCommit(v *VersionInfo, txnID common.TxnID, commitTS uint64) {
	if v.CreatedBy == txnID && v.BeginTS == 0 {
		v.BeginTS = commitTS
	}
	if v.DeletedBy == txnID {
		v.EndTS = commitTS
	}
}

// RollbackVersion hides a version from every snapshot forever.
func (m *MVCCManager) RollbackVersion(v *VersionInfo) {
	v.BeginTS = TimestampMax
	v.EndTS = 0
}
