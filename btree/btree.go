package btree

import (
	"sync"

	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/storage"
)

// BPlusTree is a paged B+-tree mapping int64 keys to RIDs. Leaves form a
// doubly linked sibling chain for range scans. The tree is not internally
// concurrent; one mutex serializes every operation.
type BPlusTree struct {
	mu         sync.Mutex
	pool       *storage.BufferPool
	rootPageID common.PageID

	// Pages emptied by merges; reclaimed once their pins drop.
	pendingFree []common.PageID

	leafMaxSize     int
	internalMaxSize int
}

// NewBPlusTree builds an empty tree over pool. Node capacities are
// derived from the page size; one slot of slack is reserved so a node can
// temporarily overflow during a split.
func NewBPlusTree(pool *storage.BufferPool) *BPlusTree {
	pageSize := pool.PageSize()
	leafCap := (pageSize - nodeBodyBase - leafLinksSize) / leafPairSize
	internalCap := (pageSize - nodeBodyBase - internalFirstChildSize) / internalPairSize
	return &BPlusTree{
		pool:            pool,
		rootPageID:      common.InvalidPageID,
		leafMaxSize:     leafCap - 1,
		internalMaxSize: internalCap - 1,
	}
}

// OpenBPlusTree re-attaches to a persisted tree rooted at rootPageID.
func OpenBPlusTree(pool *storage.BufferPool, rootPageID common.PageID) *BPlusTree {
	t := NewBPlusTree(pool)
	t.rootPageID = rootPageID
	return t
}

// RootPageID returns the current root, InvalidPageID when empty.
func (t *BPlusTree) RootPageID() common.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rootPageID
}

// IsEmpty reports whether the tree holds no keys.
func (t *BPlusTree) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rootPageID == common.InvalidPageID {
		return true
	}
	page, st := t.pool.FetchPage(t.rootPageID)
	if !st.OK() {
		return true
	}
	empty := node{page}.numKeys() == 0 && node{page}.isLeaf()
	t.pool.UnpinPage(t.rootPageID, false)
	return empty
}

// findLeaf descends from the root to the leaf that owns key. The returned
// page is pinned; the caller unpins.
func (t *BPlusTree) findLeaf(key int64) (*storage.Page, common.Status) {
	pid := t.rootPageID
	for {
		page, st := t.pool.FetchPage(pid)
		if !st.OK() {
			return nil, st
		}
		if (node{page}).isLeaf() {
			return page, common.OkStatus()
		}
		in := asInternal(page)
		next := in.childAt(in.findChildIndex(key))
		t.pool.UnpinPage(pid, false)
		pid = next
	}
}

// Find returns the RID stored under key.
func (t *BPlusTree) Find(key int64) (common.RID, common.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rootPageID == common.InvalidPageID {
		return common.InvalidRID(), common.NotFound("key %d not in index", key)
	}
	page, st := t.findLeaf(key)
	if !st.OK() {
		return common.InvalidRID(), st
	}
	leaf := asLeaf(page)
	idx := leaf.findKeyIndex(key)
	if idx >= leaf.numKeys() || leaf.keyAt(idx) != key {
		t.pool.UnpinPage(page.PageID(), false)
		return common.InvalidRID(), common.NotFound("key %d not in index", key)
	}
	rid := leaf.valueAt(idx)
	t.pool.UnpinPage(page.PageID(), false)
	return rid, common.OkStatus()
}

// Insert stores (key, rid); duplicate keys are rejected.
func (t *BPlusTree) Insert(key int64, rid common.RID) common.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rootPageID == common.InvalidPageID {
		page, st := t.pool.NewPage()
		if !st.OK() {
			return st
		}
		leaf := initLeaf(page, t.leafMaxSize)
		leaf.insertPair(key, rid)
		t.rootPageID = page.PageID()
		t.pool.UnpinPage(page.PageID(), true)
		return common.OkStatus()
	}
	page, st := t.findLeaf(key)
	if !st.OK() {
		return st
	}
	leaf := asLeaf(page)
	if leaf.contains(key) {
		t.pool.UnpinPage(page.PageID(), false)
		return common.AlreadyExists("key %d already in index", key)
	}
	leaf.insertPair(key, rid)
	if leaf.numKeys() <= leaf.maxSize() {
		t.pool.UnpinPage(page.PageID(), true)
		return common.OkStatus()
	}
	st = t.splitLeaf(leaf)
	t.pool.UnpinPage(page.PageID(), true)
	return st
}

// splitLeaf moves the upper half of an overflowing leaf into a new right
// sibling and propagates its first key to the parent. The caller keeps
// the left page pinned.
func (t *BPlusTree) splitLeaf(leaf leafNode) common.Status {
	newPage, st := t.pool.NewPage()
	if !st.OK() {
		return st
	}
	right := initLeaf(newPage, t.leafMaxSize)

	total := leaf.numKeys()
	mid := total / 2
	for i := mid; i < total; i++ {
		right.setPair(i-mid, leaf.keyAt(i), leaf.valueAt(i))
	}
	right.setNumKeys(total - mid)
	leaf.setNumKeys(mid)

	// Stitch the sibling chain.
	right.setNextLeaf(leaf.nextLeaf())
	right.setPrevLeaf(leaf.pageID())
	if next := leaf.nextLeaf(); next != common.InvalidPageID {
		nextPage, st := t.pool.FetchPage(next)
		if !st.OK() {
			t.pool.UnpinPage(right.pageID(), true)
			return st
		}
		asLeaf(nextPage).setPrevLeaf(right.pageID())
		t.pool.UnpinPage(next, true)
	}
	leaf.setNextLeaf(right.pageID())

	right.setParent(leaf.parent())
	sepKey := right.keyAt(0)
	st = t.insertIntoParent(leaf.node, sepKey, right.node)
	t.pool.UnpinPage(right.pageID(), true)
	return st
}

// insertIntoParent links (sepKey, right) next to left, growing a new root
// when left was the root. Both nodes stay pinned by the caller.
func (t *BPlusTree) insertIntoParent(left node, sepKey int64, right node) common.Status {
	if left.isRoot() {
		rootPage, st := t.pool.NewPage()
		if !st.OK() {
			return st
		}
		root := initInternal(rootPage, t.internalMaxSize)
		root.setChildAt(0, left.pageID())
		root.setKeyAt(0, sepKey)
		root.setChildAt(1, right.pageID())
		root.setNumKeys(1)
		left.setParent(root.pageID())
		right.setParent(root.pageID())
		t.rootPageID = root.pageID()
		t.pool.UnpinPage(root.pageID(), true)
		return common.OkStatus()
	}

	parentPage, st := t.pool.FetchPage(left.parent())
	if !st.OK() {
		return st
	}
	parent := asInternal(parentPage)
	idx := parent.childIndexOf(left.pageID())
	if idx < 0 {
		t.pool.UnpinPage(parent.pageID(), false)
		return common.Internal("child %d missing from parent %d", left.pageID(), parent.pageID())
	}
	parent.insertAfter(idx, sepKey, right.pageID())
	right.setParent(parent.pageID())
	if parent.numKeys() <= parent.maxSize() {
		t.pool.UnpinPage(parent.pageID(), true)
		return common.OkStatus()
	}
	st = t.splitInternal(parent)
	t.pool.UnpinPage(parent.pageID(), true)
	return st
}

// splitInternal pushes the middle key of an overflowing internal node up
// and distributes the upper half of its entries to a new right sibling.
func (t *BPlusTree) splitInternal(in internalNode) common.Status {
	newPage, st := t.pool.NewPage()
	if !st.OK() {
		return st
	}
	right := initInternal(newPage, t.internalMaxSize)

	total := in.numKeys()
	mid := total / 2
	upKey := in.keyAt(mid)

	// Keys after the middle move right; the middle key moves up.
	right.setChildAt(0, in.childAt(mid+1))
	for i := mid + 1; i < total; i++ {
		right.setKeyAt(i-mid-1, in.keyAt(i))
		right.setChildAt(i-mid, in.childAt(i+1))
	}
	right.setNumKeys(total - mid - 1)
	in.setNumKeys(mid)

	// Reparent the moved children.
	for i := 0; i <= right.numKeys(); i++ {
		childPage, st := t.pool.FetchPage(right.childAt(i))
		if !st.OK() {
			t.pool.UnpinPage(right.pageID(), true)
			return st
		}
		node{childPage}.setParent(right.pageID())
		t.pool.UnpinPage(childPage.PageID(), true)
	}

	right.setParent(in.parent())
	st = t.insertIntoParent(in.node, upKey, right.node)
	t.pool.UnpinPage(right.pageID(), true)
	return st
}

// Remove deletes key from the tree, repairing underflow by borrowing
// from or merging with siblings.
func (t *BPlusTree) Remove(key int64) common.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rootPageID == common.InvalidPageID {
		return common.NotFound("key %d not in index", key)
	}
	page, st := t.findLeaf(key)
	if !st.OK() {
		return st
	}
	leaf := asLeaf(page)
	idx := leaf.findKeyIndex(key)
	if idx >= leaf.numKeys() || leaf.keyAt(idx) != key {
		t.pool.UnpinPage(page.PageID(), false)
		return common.NotFound("key %d not in index", key)
	}
	leaf.removeAt(idx)
	st = t.repairAfterRemove(leaf.node)
	t.pool.UnpinPage(page.PageID(), true)
	for _, pid := range t.pendingFree {
		_ = t.pool.DeletePage(pid)
	}
	t.pendingFree = t.pendingFree[:0]
	return st
}

// repairAfterRemove restores the occupancy invariant for a node that may
// have underflowed. The caller keeps the node pinned.
func (t *BPlusTree) repairAfterRemove(n node) common.Status {
	if n.isRoot() {
		return t.adjustRoot(n)
	}
	if n.numKeys() >= n.minSize() {
		return common.OkStatus()
	}

	parentPage, st := t.pool.FetchPage(n.parent())
	if !st.OK() {
		return st
	}
	parent := asInternal(parentPage)
	idx := parent.childIndexOf(n.pageID())
	if idx < 0 {
		t.pool.UnpinPage(parent.pageID(), false)
		return common.Internal("child %d missing from parent %d", n.pageID(), parent.pageID())
	}

	var leftSib, rightSib *storage.Page
	if idx > 0 {
		leftSib, st = t.pool.FetchPage(parent.childAt(idx - 1))
		if !st.OK() {
			t.pool.UnpinPage(parent.pageID(), false)
			return st
		}
	}
	if idx < parent.numKeys() {
		rightSib, st = t.pool.FetchPage(parent.childAt(idx + 1))
		if !st.OK() {
			if leftSib != nil {
				t.pool.UnpinPage(leftSib.PageID(), false)
			}
			t.pool.UnpinPage(parent.pageID(), false)
			return st
		}
	}

	// Borrow from the richer sibling when one can spare a key.
	leftKeys, rightKeys := -1, -1
	if leftSib != nil {
		leftKeys = node{leftSib}.numKeys()
	}
	if rightSib != nil {
		rightKeys = node{rightSib}.numKeys()
	}
	if leftKeys > n.minSize() && leftKeys >= rightKeys {
		t.borrowFromLeft(n, node{leftSib}, parent, idx)
		t.unpinSiblings(leftSib, rightSib)
		t.pool.UnpinPage(parent.pageID(), true)
		return common.OkStatus()
	}
	if rightKeys > n.minSize() {
		t.borrowFromRight(n, node{rightSib}, parent, idx)
		t.unpinSiblings(leftSib, rightSib)
		t.pool.UnpinPage(parent.pageID(), true)
		return common.OkStatus()
	}

	// Merge. Fold into the left sibling when one exists, else pull the
	// right sibling into this node.
	if leftSib != nil {
		st = t.merge(node{leftSib}, n, parent, idx-1)
		t.unpinSiblings(leftSib, rightSib)
	} else {
		st = t.merge(n, node{rightSib}, parent, idx)
		t.unpinSiblings(leftSib, rightSib)
	}
	if !st.OK() {
		t.pool.UnpinPage(parent.pageID(), true)
		return st
	}
	st = t.repairAfterRemove(parent.node)
	t.pool.UnpinPage(parent.pageID(), true)
	return st
}

func (t *BPlusTree) unpinSiblings(left, right *storage.Page) {
	if left != nil {
		t.pool.UnpinPage(left.PageID(), true)
	}
	if right != nil {
		t.pool.UnpinPage(right.PageID(), true)
	}
}

// borrowFromLeft moves the left sibling's last entry into n and refreshes
// the separator at parent key idx-1.
func (t *BPlusTree) borrowFromLeft(n, left node, parent internalNode, idx int) {
	if n.isLeaf() {
		ln, ll := asLeaf(n.page), asLeaf(left.page)
		last := ll.numKeys() - 1
		ln.insertPair(ll.keyAt(last), ll.valueAt(last))
		ll.setNumKeys(last)
		parent.setKeyAt(idx-1, ln.keyAt(0))
		return
	}
	in, il := asInternal(n.page), asInternal(left.page)
	last := il.numKeys()
	// Rotate through the parent separator.
	movedChild := il.childAt(last)
	data := in.page.Data()
	start := in.childBase(0)
	end := in.childBase(in.numKeys()) + internalFirstChildSize
	copy(data[start+internalPairSize:end+internalPairSize], data[start:end])
	in.setChildAt(0, movedChild)
	in.setKeyAt(0, parent.keyAt(idx-1))
	in.setNumKeys(in.numKeys() + 1)
	parent.setKeyAt(idx-1, il.keyAt(last-1))
	il.setNumKeys(last - 1)
	t.reparentChild(movedChild, in.pageID())
}

// borrowFromRight moves the right sibling's first entry into n and
// refreshes the separator at parent key idx.
func (t *BPlusTree) borrowFromRight(n, right node, parent internalNode, idx int) {
	if n.isLeaf() {
		ln, lr := asLeaf(n.page), asLeaf(right.page)
		ln.insertPair(lr.keyAt(0), lr.valueAt(0))
		lr.removeAt(0)
		parent.setKeyAt(idx, lr.keyAt(0))
		return
	}
	in, ir := asInternal(n.page), asInternal(right.page)
	movedChild := ir.childAt(0)
	in.setKeyAt(in.numKeys(), parent.keyAt(idx))
	in.setChildAt(in.numKeys()+1, movedChild)
	in.setNumKeys(in.numKeys() + 1)
	parent.setKeyAt(idx, ir.keyAt(0))
	// Drop the right sibling's first key and child 0.
	data := ir.page.Data()
	start := ir.childBase(0)
	end := ir.childBase(ir.numKeys()) + internalFirstChildSize
	copy(data[start:], data[start+internalPairSize:end])
	ir.setNumKeys(ir.numKeys() - 1)
	t.reparentChild(movedChild, in.pageID())
}

func (t *BPlusTree) reparentChild(child, parent common.PageID) {
	page, st := t.pool.FetchPage(child)
	if !st.OK() {
		return
	}
	node{page}.setParent(parent)
	t.pool.UnpinPage(child, true)
}

// merge folds right into left, removes the separator at parent key
// sepIdx, and deletes the right page. Leaf merges restitch the sibling
// chain.
func (t *BPlusTree) merge(left, right node, parent internalNode, sepIdx int) common.Status {
	if left.isLeaf() {
		ll, lr := asLeaf(left.page), asLeaf(right.page)
		base := ll.numKeys()
		for i := 0; i < lr.numKeys(); i++ {
			ll.setPair(base+i, lr.keyAt(i), lr.valueAt(i))
		}
		ll.setNumKeys(base + lr.numKeys())
		ll.setNextLeaf(lr.nextLeaf())
		if next := lr.nextLeaf(); next != common.InvalidPageID {
			nextPage, st := t.pool.FetchPage(next)
			if !st.OK() {
				return st
			}
			asLeaf(nextPage).setPrevLeaf(ll.pageID())
			t.pool.UnpinPage(next, true)
		}
	} else {
		il, ir := asInternal(left.page), asInternal(right.page)
		base := il.numKeys()
		// The separator comes down between the two halves.
		il.setKeyAt(base, parent.keyAt(sepIdx))
		il.setChildAt(base+1, ir.childAt(0))
		for i := 0; i < ir.numKeys(); i++ {
			il.setKeyAt(base+1+i, ir.keyAt(i))
			il.setChildAt(base+2+i, ir.childAt(i+1))
		}
		il.setNumKeys(base + 1 + ir.numKeys())
		for i := 0; i <= ir.numKeys(); i++ {
			t.reparentChild(ir.childAt(i), il.pageID())
		}
	}
	parent.removeKeyAt(sepIdx)
	right.setNumKeys(0)
	right.page.SetPageType(storage.PageTypeFree)
	t.pendingFree = append(t.pendingFree, right.pageID())
	return common.OkStatus()
}

// adjustRoot handles root shrinkage: an internal root left with zero keys
// promotes its only child; an empty leaf root stays as the (empty) root.
func (t *BPlusTree) adjustRoot(root node) common.Status {
	if root.isLeaf() || root.numKeys() > 0 {
		return common.OkStatus()
	}
	in := asInternal(root.page)
	childPID := in.childAt(0)
	childPage, st := t.pool.FetchPage(childPID)
	if !st.OK() {
		return st
	}
	node{childPage}.setParent(common.InvalidPageID)
	t.pool.UnpinPage(childPID, true)
	oldRoot := t.rootPageID
	t.rootPageID = childPID
	root.page.SetPageType(storage.PageTypeFree)
	t.pendingFree = append(t.pendingFree, oldRoot)
	return common.OkStatus()
}
