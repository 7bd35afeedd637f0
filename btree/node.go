package btree

import (
	"encoding/binary"

	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/storage"
)

// B+-tree node header, 16 bytes after the generic page header.
// Layout: [node_type(1)][pad(1)][num_keys(2)][max_size(2)][pad(2)]
//         [parent_page_id(4)][pad(4)]
const (
	nodeHeaderBase = storage.PageHeaderSize

	offsetNodeType  = nodeHeaderBase + 0
	offsetNumKeys   = nodeHeaderBase + 2
	offsetMaxSize   = nodeHeaderBase + 4
	offsetParentPID = nodeHeaderBase + 8

	nodeHeaderSize = 16
	nodeBodyBase   = nodeHeaderBase + nodeHeaderSize

	// Leaf body: [next_leaf(4)][prev_leaf(4)] then (key(8) value(8))*.
	// The value packs a RID as [page_id(4)][slot_id(2)][pad(2)].
	leafLinksSize = 8
	leafPairSize  = 16

	// Internal body: [child_0(4)] then (key(8) child(4))*.
	internalFirstChildSize = 4
	internalPairSize       = 12
)

// node is the accessor shared by leaf and internal pages.
type node struct {
	page *storage.Page
}

func (n node) pageID() common.PageID { return n.page.PageID() }

func (n node) isLeaf() bool {
	return n.page.PageType() == storage.PageTypeBTreeLeaf
}

func (n node) numKeys() int {
	return int(binary.LittleEndian.Uint16(n.page.Data()[offsetNumKeys:]))
}

func (n node) setNumKeys(v int) {
	binary.LittleEndian.PutUint16(n.page.Data()[offsetNumKeys:], uint16(v))
}

func (n node) maxSize() int {
	return int(binary.LittleEndian.Uint16(n.page.Data()[offsetMaxSize:]))
}

func (n node) setMaxSize(v int) {
	binary.LittleEndian.PutUint16(n.page.Data()[offsetMaxSize:], uint16(v))
}

func (n node) minSize() int { return n.maxSize() / 2 }

func (n node) parent() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(n.page.Data()[offsetParentPID:])))
}

func (n node) setParent(pid common.PageID) {
	binary.LittleEndian.PutUint32(n.page.Data()[offsetParentPID:], uint32(pid))
}

func (n node) isRoot() bool { return n.parent() == common.InvalidPageID }

// leafNode overlays the leaf layout.
type leafNode struct {
	node
}

func initLeaf(page *storage.Page, maxSize int) leafNode {
	page.SetPageType(storage.PageTypeBTreeLeaf)
	page.Data()[offsetNodeType] = storage.PageTypeBTreeLeaf
	ln := leafNode{node{page}}
	ln.setNumKeys(0)
	ln.setMaxSize(maxSize)
	ln.setParent(common.InvalidPageID)
	ln.setNextLeaf(common.InvalidPageID)
	ln.setPrevLeaf(common.InvalidPageID)
	return ln
}

func asLeaf(page *storage.Page) leafNode { return leafNode{node{page}} }

func (l leafNode) nextLeaf() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(l.page.Data()[nodeBodyBase:])))
}

func (l leafNode) setNextLeaf(pid common.PageID) {
	binary.LittleEndian.PutUint32(l.page.Data()[nodeBodyBase:], uint32(pid))
}

func (l leafNode) prevLeaf() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(l.page.Data()[nodeBodyBase+4:])))
}

func (l leafNode) setPrevLeaf(pid common.PageID) {
	binary.LittleEndian.PutUint32(l.page.Data()[nodeBodyBase+4:], uint32(pid))
}

func (l leafNode) pairBase(i int) int {
	return nodeBodyBase + leafLinksSize + i*leafPairSize
}

func (l leafNode) keyAt(i int) int64 {
	return int64(binary.LittleEndian.Uint64(l.page.Data()[l.pairBase(i):]))
}

func (l leafNode) valueAt(i int) common.RID {
	base := l.pairBase(i) + 8
	return common.RID{
		PageID: common.PageID(int32(binary.LittleEndian.Uint32(l.page.Data()[base:]))),
		SlotID: common.SlotID(binary.LittleEndian.Uint16(l.page.Data()[base+4:])),
	}
}

func (l leafNode) setPair(i int, key int64, rid common.RID) {
	base := l.pairBase(i)
	binary.LittleEndian.PutUint64(l.page.Data()[base:], uint64(key))
	binary.LittleEndian.PutUint32(l.page.Data()[base+8:], uint32(rid.PageID))
	binary.LittleEndian.PutUint16(l.page.Data()[base+12:], uint16(rid.SlotID))
	binary.LittleEndian.PutUint16(l.page.Data()[base+14:], 0)
}

// findKeyIndex binary-searches for the first index whose key >= key.
func (l leafNode) findKeyIndex(key int64) int {
	lo, hi := 0, l.numKeys()
	for lo < hi {
		mid := (lo + hi) / 2
		if l.keyAt(mid) < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// contains reports whether key is present.
func (l leafNode) contains(key int64) bool {
	idx := l.findKeyIndex(key)
	return idx < l.numKeys() && l.keyAt(idx) == key
}

// insertPair shifts entries right and places (key, rid) at its sorted
// position. The caller ensures physical room (max_size + 1 entries fit).
func (l leafNode) insertPair(key int64, rid common.RID) {
	idx := l.findKeyIndex(key)
	data := l.page.Data()
	copy(data[l.pairBase(idx+1):l.pairBase(l.numKeys()+1)], data[l.pairBase(idx):l.pairBase(l.numKeys())])
	l.setPair(idx, key, rid)
	l.setNumKeys(l.numKeys() + 1)
}

// removeAt deletes the entry at idx, shifting the tail left.
func (l leafNode) removeAt(idx int) {
	data := l.page.Data()
	copy(data[l.pairBase(idx):l.pairBase(l.numKeys()-1)], data[l.pairBase(idx+1):l.pairBase(l.numKeys())])
	l.setNumKeys(l.numKeys() - 1)
}

// internalNode overlays the internal layout.
type internalNode struct {
	node
}

func initInternal(page *storage.Page, maxSize int) internalNode {
	page.SetPageType(storage.PageTypeBTreeInternal)
	page.Data()[offsetNodeType] = storage.PageTypeBTreeInternal
	in := internalNode{node{page}}
	in.setNumKeys(0)
	in.setMaxSize(maxSize)
	in.setParent(common.InvalidPageID)
	return in
}

func asInternal(page *storage.Page) internalNode { return internalNode{node{page}} }

func (n internalNode) childBase(i int) int {
	return nodeBodyBase + i*internalPairSize
}

// childAt returns child pointer i; valid for 0..numKeys.
func (n internalNode) childAt(i int) common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(n.page.Data()[n.childBase(i):])))
}

func (n internalNode) setChildAt(i int, pid common.PageID) {
	binary.LittleEndian.PutUint32(n.page.Data()[n.childBase(i):], uint32(pid))
}

// keyAt returns separator key i; key_i routes child_{i+1}.
func (n internalNode) keyAt(i int) int64 {
	return int64(binary.LittleEndian.Uint64(n.page.Data()[n.childBase(i)+internalFirstChildSize:]))
}

func (n internalNode) setKeyAt(i int, key int64) {
	binary.LittleEndian.PutUint64(n.page.Data()[n.childBase(i)+internalFirstChildSize:], uint64(key))
}

// findChildIndex returns the child pointer index to descend into for key:
// the number of separators <= key.
func (n internalNode) findChildIndex(key int64) int {
	lo, hi := 0, n.numKeys()
	for lo < hi {
		mid := (lo + hi) / 2
		if n.keyAt(mid) <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// childIndexOf locates the pointer index of a child page id.
func (n internalNode) childIndexOf(pid common.PageID) int {
	for i := 0; i <= n.numKeys(); i++ {
		if n.childAt(i) == pid {
			return i
		}
	}
	return -1
}

// insertAfter places (key, child) immediately after child index idx.
func (n internalNode) insertAfter(idx int, key int64, child common.PageID) {
	data := n.page.Data()
	// Shift (key_idx, child_{idx+1}) .. right by one pair.
	start := n.childBase(idx) + internalFirstChildSize
	end := n.childBase(n.numKeys()) + internalFirstChildSize
	copy(data[start+internalPairSize:end+internalPairSize], data[start:end])
	n.setKeyAt(idx, key)
	n.setChildAt(idx+1, child)
	n.setNumKeys(n.numKeys() + 1)
}

// removeKeyAt drops separator i and child pointer i+1.
func (n internalNode) removeKeyAt(i int) {
	data := n.page.Data()
	start := n.childBase(i) + internalFirstChildSize
	end := n.childBase(n.numKeys()) + internalFirstChildSize
	copy(data[start:], data[start+internalPairSize:end])
	n.setNumKeys(n.numKeys() - 1)
}
