package txn

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intellect4all/entropy/common"
)

func testLockManager(timeout time.Duration) *LockManager {
	return NewLockManager(LockManagerOptions{DeadlockDetection: true, LockTimeout: timeout})
}

func newTxn(id common.TxnID) *Transaction {
	return NewTransaction(id, RepeatableRead, uint64(id))
}

func TestSharedLocksAreCompatible(t *testing.T) {
	lm := testLockManager(time.Second)
	t1, t2 := newTxn(1), newTxn(2)
	rid := common.RID{PageID: 1, SlotID: 0}

	require.True(t, lm.LockRow(t1, 10, rid, LockShared).OK())
	require.True(t, lm.LockRow(t2, 10, rid, LockShared).OK())
	require.True(t, lm.UnlockRow(t1, 10, rid).OK())
	require.True(t, lm.UnlockRow(t2, 10, rid).OK())
	require.Equal(t, 0, lm.LockTableSize())
}

func TestExclusiveBlocksUntilRelease(t *testing.T) {
	lm := testLockManager(5 * time.Second)
	t1, t2, t3 := newTxn(1), newTxn(2), newTxn(3)
	rid := common.RID{PageID: 1, SlotID: 0}

	require.True(t, lm.LockRow(t1, 10, rid, LockShared).OK())
	require.True(t, lm.LockRow(t2, 10, rid, LockShared).OK())

	acquired := make(chan common.Status, 1)
	go func() {
		acquired <- lm.LockRow(t3, 10, rid, LockExclusive)
	}()

	// The X request must wait while the shared holders remain.
	select {
	case <-acquired:
		t.Fatal("exclusive lock granted while shared locks held")
	case <-time.After(100 * time.Millisecond):
	}

	require.True(t, lm.UnlockRow(t1, 10, rid).OK())
	require.True(t, lm.UnlockRow(t2, 10, rid).OK())

	select {
	case st := <-acquired:
		require.True(t, st.OK(), st.String())
	case <-time.After(2 * time.Second):
		t.Fatal("exclusive lock never granted")
	}
}

func TestLockTimeout(t *testing.T) {
	lm := testLockManager(150 * time.Millisecond)
	t1, t2 := newTxn(1), newTxn(2)

	require.True(t, lm.LockTable(t1, 10, LockExclusive).OK())
	st := lm.LockTable(t2, 10, LockShared)
	require.Equal(t, common.CodeTimeout, st.Code)
}

func TestDeadlockDetectionAbortsWaiter(t *testing.T) {
	lm := testLockManager(5 * time.Second)
	t1, t2 := newTxn(1), newTxn(2)
	ridA := common.RID{PageID: 1, SlotID: 0}
	ridB := common.RID{PageID: 2, SlotID: 0}

	require.True(t, lm.LockRow(t1, 10, ridA, LockExclusive).OK())
	require.True(t, lm.LockRow(t2, 10, ridB, LockExclusive).OK())

	var wg sync.WaitGroup
	wg.Add(1)
	var st1 common.Status
	go func() {
		defer wg.Done()
		st1 = lm.LockRow(t1, 10, ridB, LockExclusive)
	}()
	time.Sleep(100 * time.Millisecond)

	// T2 now closes the cycle: it must be chosen as victim.
	st2 := lm.LockRow(t2, 10, ridA, LockExclusive)
	require.Equal(t, common.CodeAborted, st2.Code)
	require.Equal(t, StateAborted, t2.State())
	require.Greater(t, lm.DeadlockCount(), uint64(0))

	// Releasing the victim's locks unblocks T1.
	lm.ReleaseAllLocks(t2)
	wg.Wait()
	require.True(t, st1.OK(), st1.String())
}

func TestAbortedTransactionRejected(t *testing.T) {
	lm := testLockManager(time.Second)
	t1 := newTxn(1)
	t1.SetState(StateAborted)
	st := lm.LockTable(t1, 10, LockShared)
	require.Equal(t, common.CodeAborted, st.Code)
}

func TestLockWhileShrinkingRejected(t *testing.T) {
	lm := testLockManager(time.Second)
	t1 := newTxn(1)
	require.True(t, lm.LockTable(t1, 10, LockShared).OK())
	require.True(t, lm.UnlockTable(t1, 10).OK())
	require.Equal(t, StateShrinking, t1.State())
	st := lm.LockTable(t1, 11, LockShared)
	require.Equal(t, common.CodeInvalidArgument, st.Code)
}

func TestUnlockNotHeld(t *testing.T) {
	lm := testLockManager(time.Second)
	t1 := newTxn(1)
	require.Equal(t, common.CodeNotFound, lm.UnlockTable(t1, 10).Code)
}

func TestReacquireHeldLock(t *testing.T) {
	lm := testLockManager(time.Second)
	t1 := newTxn(1)
	require.True(t, lm.LockTable(t1, 10, LockShared).OK())
	require.True(t, lm.LockTable(t1, 10, LockShared).OK())
	require.True(t, lm.LockTable(t1, 10, LockExclusive).OK()) // sole holder upgrades
	// X covers a later S request.
	require.True(t, lm.LockTable(t1, 10, LockShared).OK())
}

func TestUpgradeWaitsForOtherSharedHolders(t *testing.T) {
	lm := testLockManager(5 * time.Second)
	t1, t2 := newTxn(1), newTxn(2)

	require.True(t, lm.LockTable(t1, 10, LockShared).OK())
	require.True(t, lm.LockTable(t2, 10, LockShared).OK())

	upgraded := make(chan common.Status, 1)
	go func() {
		upgraded <- lm.LockTable(t1, 10, LockExclusive)
	}()
	select {
	case <-upgraded:
		t.Fatal("upgrade granted while another shared holder exists")
	case <-time.After(100 * time.Millisecond):
	}

	require.True(t, lm.UnlockTable(t2, 10).OK())
	select {
	case st := <-upgraded:
		require.True(t, st.OK(), st.String())
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade never completed")
	}
}

func TestGrantedLocksArePairwiseCompatible(t *testing.T) {
	lm := testLockManager(200 * time.Millisecond)
	target := common.OID(10)
	var txns []*Transaction
	for i := 1; i <= 4; i++ {
		txns = append(txns, newTxn(common.TxnID(i)))
	}
	require.True(t, lm.LockTable(txns[0], target, LockShared).OK())
	require.True(t, lm.LockTable(txns[1], target, LockShared).OK())
	require.True(t, lm.LockTable(txns[2], target, LockShared).OK())
	// An X behind three S holders times out without ever being granted
	// alongside them.
	require.Equal(t, common.CodeTimeout, lm.LockTable(txns[3], target, LockExclusive).Code)
}

func TestReleaseAllLocks(t *testing.T) {
	lm := testLockManager(time.Second)
	t1 := newTxn(1)
	require.True(t, lm.LockTable(t1, 10, LockShared).OK())
	require.True(t, lm.LockRow(t1, 10, common.RID{PageID: 1, SlotID: 2}, LockExclusive).OK())
	require.Equal(t, 2, lm.LockTableSize())
	lm.ReleaseAllLocks(t1)
	require.Equal(t, 0, lm.LockTableSize())
}
