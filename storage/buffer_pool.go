package storage

import (
	"sync"

	"github.com/intellect4all/entropy/common"
)

// BufferPool owns every in-memory page frame. Pages are borrowed via
// FetchPage/NewPage and must be returned with UnpinPage; a frame joins the
// replacer exactly when its pin count drops to zero. All public methods
// are thread-safe.
type BufferPool struct {
	mu        sync.Mutex
	disk      *DiskManager
	frames    []*Page
	pageTable map[common.PageID]common.FrameID
	freeList  []common.FrameID
	replacer  *LRUReplacer
}

// NewBufferPool builds a pool of poolSize frames over disk.
func NewBufferPool(poolSize int, disk *DiskManager) *BufferPool {
	bp := &BufferPool{
		disk:      disk,
		frames:    make([]*Page, poolSize),
		pageTable: make(map[common.PageID]common.FrameID, poolSize),
		freeList:  make([]common.FrameID, 0, poolSize),
		replacer:  NewLRUReplacer(),
	}
	for i := range bp.frames {
		bp.frames[i] = NewPage(disk.PageSize())
		bp.frames[i].SetPageID(common.InvalidPageID)
		bp.freeList = append(bp.freeList, common.FrameID(i))
	}
	return bp
}

// PoolSize returns the number of frames.
func (bp *BufferPool) PoolSize() int { return len(bp.frames) }

// PageSize returns the page size of the underlying disk manager.
func (bp *BufferPool) PageSize() int { return bp.disk.PageSize() }

// findVictim locates a usable frame, preferring the free list over
// eviction. Dirty victims are written back. Caller holds bp.mu.
func (bp *BufferPool) findVictim() (common.FrameID, common.Status) {
	if n := len(bp.freeList); n > 0 {
		frame := bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
		return frame, common.OkStatus()
	}
	frame, ok := bp.replacer.Evict()
	if !ok {
		return common.InvalidFrameID, common.Busy("buffer pool exhausted: all frames pinned")
	}
	page := bp.frames[frame]
	if page.IsDirty() {
		page.UpdateChecksum()
		if st := bp.disk.WritePage(page.PageID(), page.Data()); !st.OK() {
			return common.InvalidFrameID, st
		}
		page.SetDirty(false)
	}
	delete(bp.pageTable, page.PageID())
	return frame, common.OkStatus()
}

// FetchPage pins the requested page, reading it from disk if absent.
// Returns nil and a Busy status when every frame is pinned.
func (bp *BufferPool) FetchPage(pid common.PageID) (*Page, common.Status) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if pid < 0 {
		return nil, common.InvalidArgument("invalid page id %d", pid)
	}
	if frame, ok := bp.pageTable[pid]; ok {
		page := bp.frames[frame]
		page.pinCount++
		bp.replacer.Pin(frame)
		return page, common.OkStatus()
	}
	frame, st := bp.findVictim()
	if !st.OK() {
		return nil, st
	}
	page := bp.frames[frame]
	page.Reset()
	if st := bp.disk.ReadPage(pid, page.Data()); !st.OK() {
		bp.freeList = append(bp.freeList, frame)
		return nil, st
	}
	if !page.VerifyChecksum() {
		bp.freeList = append(bp.freeList, frame)
		return nil, common.Corruption("checksum mismatch on page %d", pid)
	}
	page.SetPageID(pid)
	page.pinCount = 1
	bp.pageTable[pid] = frame
	return page, common.OkStatus()
}

// UnpinPage returns a borrowed page. Returns false when the page is not
// resident or its pin count is already zero.
func (bp *BufferPool) UnpinPage(pid common.PageID, dirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	frame, ok := bp.pageTable[pid]
	if !ok {
		return false
	}
	page := bp.frames[frame]
	if page.pinCount <= 0 {
		return false
	}
	page.pinCount--
	if dirty {
		page.SetDirty(true)
	}
	if page.pinCount == 0 {
		bp.replacer.Unpin(frame)
	}
	return true
}

// NewPage allocates a fresh page on disk, installs it pinned, and returns
// it. Returns nil and Busy when every frame is pinned.
func (bp *BufferPool) NewPage() (*Page, common.Status) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	frame, st := bp.findVictim()
	if !st.OK() {
		return nil, st
	}
	pid := bp.disk.AllocatePage()
	page := bp.frames[frame]
	page.Reset()
	page.SetPageID(pid)
	page.SetDirty(true)
	page.pinCount = 1
	bp.pageTable[pid] = frame
	return page, common.OkStatus()
}

// DeletePage drops a page from the pool and deallocates it on disk.
// Deleting an absent page succeeds; deleting a pinned page fails.
func (bp *BufferPool) DeletePage(pid common.PageID) common.Status {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	frame, ok := bp.pageTable[pid]
	if !ok {
		return common.OkStatus()
	}
	page := bp.frames[frame]
	if page.pinCount > 0 {
		return common.Busy("page %d is pinned", pid)
	}
	bp.replacer.Pin(frame)
	delete(bp.pageTable, pid)
	page.Reset()
	bp.freeList = append(bp.freeList, frame)
	return bp.disk.DeallocatePage(pid)
}

// FlushPage writes a resident page to disk and clears its dirty flag.
func (bp *BufferPool) FlushPage(pid common.PageID) common.Status {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	frame, ok := bp.pageTable[pid]
	if !ok {
		return common.NotFound("page %d not in buffer pool", pid)
	}
	page := bp.frames[frame]
	page.UpdateChecksum()
	if st := bp.disk.WritePage(pid, page.Data()); !st.OK() {
		return st
	}
	page.SetDirty(false)
	return common.OkStatus()
}

// FlushAllPages writes every dirty resident page to disk.
func (bp *BufferPool) FlushAllPages() common.Status {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for pid, frame := range bp.pageTable {
		page := bp.frames[frame]
		if !page.IsDirty() {
			continue
		}
		page.UpdateChecksum()
		if st := bp.disk.WritePage(pid, page.Data()); !st.OK() {
			return st
		}
		page.SetDirty(false)
	}
	return common.OkStatus()
}
