package pagecache

import (
	"sync/atomic"
	"unsafe"
)

// PageTable is a contiguous array of per-page metadata slots, addressable
// by PageRef. It owns the off-heap region backing every slot and forwards
// the PageLock protocol, fault and evict to whichever slot a ref points
// at.
type PageTable struct {
	base              uintptr
	pageCount         int
	cachePageSize     int
	memoryManager     MemoryManager
	swappers          SwapperSet
	victimPageAddress uintptr
}

// NewPageTable allocates pageCount*32 aligned bytes from memoryManager,
// initialises every slot per the lifecycle in the data model (locked
// exclusively, unbound, zero usage), and issues a full fence so the
// returned table is visible with all-zero data fields to every goroutine
// that receives it. victimPageAddress is a shared scratch buffer the table
// holds on behalf of callers but never touches itself.
func NewPageTable(pageCount, cachePageSize int, memoryManager MemoryManager, swappers SwapperSet, victimPageAddress uintptr) (*PageTable, error) {
	base, err := memoryManager.AllocateAligned(uintptr(pageCount) * slotBytes)
	if err != nil {
		return nil, err
	}
	t := &PageTable{
		base:              base,
		pageCount:         pageCount,
		cachePageSize:     cachePageSize,
		memoryManager:     memoryManager,
		swappers:          swappers,
		victimPageAddress: victimPageAddress,
	}
	t.clearMemory()
	return t, nil
}

func (t *PageTable) clearMemory() {
	for i := 0; i < t.pageCount; i++ {
		ref := t.Deref(i)
		atomic.StoreUint64(t.lockWord(ref), initialLockWord())
		atomic.StoreUint64(t.addressWord(ref), 0)
		atomic.StoreUint64(t.filePageIDWord(ref), UnboundPageID)
		atomic.StoreUint32(t.swapperIDWord(ref), 0)
		atomic.StoreUint32(t.usageAndPadWord(ref), 0)
	}
	atomic.LoadUint64(t.lockWord(t.Deref(0))) // acquire-fence the loop above before returning
}

// PageCount returns the capacity of the table.
func (t *PageTable) PageCount() int { return t.pageCount }

// CachePageSize returns the size in bytes of each cache page buffer.
func (t *PageTable) CachePageSize() int { return t.cachePageSize }

// Swappers returns the SwapperSet the table was constructed with.
func (t *PageTable) Swappers() SwapperSet { return t.swappers }

// VictimPageAddress returns the shared scratch buffer handed to cursors
// whose fault failed. The table never reads or writes it.
func (t *PageTable) VictimPageAddress() uintptr { return t.victimPageAddress }

// Deref turns a page id into the PageRef used by every other method on
// this table.
func (t *PageTable) Deref(id int) PageRef {
	return PageRef(t.base + uintptr(id)*slotBytes)
}

// ToID recovers the page id a PageRef was derived from.
func (t *PageTable) ToID(ref PageRef) int {
	return int((uintptr(ref) - t.base) / slotBytes)
}

func (t *PageTable) lockWord(ref PageRef) *uint64 {
	return (*uint64)(unsafe.Pointer(uintptr(ref) + slotOffsetLock))
}

func (t *PageTable) addressWord(ref PageRef) *uint64 {
	return (*uint64)(unsafe.Pointer(uintptr(ref) + slotOffsetAddress))
}

func (t *PageTable) filePageIDWord(ref PageRef) *uint64 {
	return (*uint64)(unsafe.Pointer(uintptr(ref) + slotOffsetFilePageID))
}

func (t *PageTable) swapperIDWord(ref PageRef) *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(ref) + slotOffsetSwapperID))
}

// usageAndPadWord addresses the usage-counter byte together with its three
// padding bytes, so the whole word can be initialised with one store and
// read back with GetUsageCounter/SetUsageCounter.
func (t *PageTable) usageAndPadWord(ref PageRef) *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(ref) + slotOffsetUsage))
}

// --- PageLock forwarding ---

func (t *PageTable) TryOptimisticReadLock(ref PageRef) uint64 {
	return tryOptimisticReadLock(t.lockWord(ref))
}

func (t *PageTable) ValidateReadLock(ref PageRef, stamp uint64) bool {
	return validateReadLock(t.lockWord(ref), stamp)
}

func (t *PageTable) IsModified(ref PageRef) bool {
	return isModified(t.lockWord(ref))
}

func (t *PageTable) IsExclusivelyLocked(ref PageRef) bool {
	return isExclusivelyLocked(t.lockWord(ref))
}

func (t *PageTable) TryWriteLock(ref PageRef) bool {
	return tryWriteLock(t.lockWord(ref))
}

func (t *PageTable) UnlockWrite(ref PageRef) {
	unlockWrite(t.lockWord(ref))
}

func (t *PageTable) UnlockWriteAndTryTakeFlushLock(ref PageRef) uint64 {
	return unlockWriteAndTryTakeFlushLock(t.lockWord(ref))
}

func (t *PageTable) TryExclusiveLock(ref PageRef) bool {
	return tryExclusiveLock(t.lockWord(ref))
}

func (t *PageTable) UnlockExclusive(ref PageRef) uint64 {
	return unlockExclusive(t.lockWord(ref))
}

func (t *PageTable) UnlockExclusiveAndTakeWriteLock(ref PageRef) {
	unlockExclusiveAndTakeWriteLock(t.lockWord(ref))
}

func (t *PageTable) TryFlushLock(ref PageRef) uint64 {
	return tryFlushLock(t.lockWord(ref))
}

func (t *PageTable) UnlockFlush(ref PageRef, stamp uint64, success bool) {
	unlockFlush(t.lockWord(ref), stamp, success)
}

func (t *PageTable) ExplicitlyMarkPageUnmodifiedUnderExclusiveLock(ref PageRef) {
	explicitlyMarkPageUnmodifiedUnderExclusiveLock(t.lockWord(ref))
}

// --- slot field accessors ---

// GetAddress returns the address of the slot's cache page buffer, or 0 if
// InitBuffer has not yet been called.
func (t *PageTable) GetAddress(ref PageRef) uintptr {
	return uintptr(atomic.LoadUint64(t.addressWord(ref)))
}

// InitBuffer allocates the slot's cache page buffer if it doesn't already
// have one. The caller must hold the exclusive lock. Idempotent: once an
// address is set it is never cleared, so the buffer is recycled along with
// the slot across fault/evict cycles.
func (t *PageTable) InitBuffer(ref PageRef) error {
	if t.GetAddress(ref) != 0 {
		return nil
	}
	addr, err := t.memoryManager.AllocateAligned(uintptr(t.cachePageSize))
	if err != nil {
		return err
	}
	atomic.StoreUint64(t.addressWord(ref), uint64(addr))
	return nil
}

func (t *PageTable) GetFilePageID(ref PageRef) uint64 {
	return atomic.LoadUint64(t.filePageIDWord(ref))
}

func (t *PageTable) setFilePageID(ref PageRef, filePageID uint64) {
	atomic.StoreUint64(t.filePageIDWord(ref), filePageID)
}

func (t *PageTable) GetSwapperID(ref PageRef) uint32 {
	return atomic.LoadUint32(t.swapperIDWord(ref))
}

func (t *PageTable) setSwapperID(ref PageRef, swapperID uint32) {
	atomic.StoreUint32(t.swapperIDWord(ref), swapperID)
}

// GetUsageCounter is a volatile read of the clock-algorithm usage stamp.
// Go's atomic package has no byte-sized primitive, so the stamp shares its
// containing 32-bit word with the slot's (always-zero) padding and is read
// and written as a whole word; the value itself never exceeds maxUsage.
func (t *PageTable) GetUsageCounter(ref PageRef) uint8 {
	return uint8(atomic.LoadUint32(t.usageAndPadWord(ref)))
}

// SetUsageCounter is a volatile write of the clock-algorithm usage stamp.
func (t *PageTable) SetUsageCounter(ref PageRef, v uint8) {
	atomic.StoreUint32(t.usageAndPadWord(ref), uint32(v))
}

// IsLoaded reports whether the slot holds file data, regardless of
// whether it is bound to a swapper yet.
func (t *PageTable) IsLoaded(ref PageRef) bool {
	return t.GetFilePageID(ref) != UnboundPageID
}

// IsBoundTo reports whether the slot is loaded and bound to exactly this
// (swapperID, filePageID) pair.
func (t *PageTable) IsBoundTo(ref PageRef, swapperID uint32, filePageID uint64) bool {
	return t.GetSwapperID(ref) == swapperID && t.GetFilePageID(ref) == filePageID
}

// IncrementUsage bumps the usage stamp by one, saturating at maxUsage. The
// read-compute-write is intentionally not atomic: lost updates just mean
// fewer increments, which makes eviction slightly cheaper, never
// incorrect.
func (t *PageTable) IncrementUsage(ref PageRef) {
	usage := t.GetUsageCounter(ref)
	if usage < maxUsage {
		t.SetUsageCounter(ref, usage+1)
	}
}

// DecrementUsage lowers the usage stamp by one, returning true iff the
// value seen or written is 0. Benignly racy, symmetric to IncrementUsage.
func (t *PageTable) DecrementUsage(ref PageRef) bool {
	usage := t.GetUsageCounter(ref)
	if usage > 0 {
		usage--
		t.SetUsageCounter(ref, usage)
	}
	return usage == 0
}

// Fault binds an unbound, exclusively-locked slot to file data. The
// ordering of the two writes below is load-bearing: filePageId is written
// before the read, swapperId after. If swapper.Read fails, the slot is
// left loaded but not bound - isLoaded is true so eviction will still
// reclaim it, but isBoundTo is false so any translation table lookup will
// miss and re-fault rather than hand out a half-read page.
func (t *PageTable) Fault(ref PageRef, swapper Swapper, swapperID uint32, filePageID uint64, event PageFaultEvent) error {
	if swapper == nil {
		return ErrNullSwapper
	}
	currentSwapperID := t.GetSwapperID(ref)
	currentFilePageID := t.GetFilePageID(ref)
	if filePageID == UnboundPageID || !t.IsExclusivelyLocked(ref) ||
		currentSwapperID != 0 || currentFilePageID != UnboundPageID {
		return &IllegalFaultStateError{
			PageRef:           ref,
			SwapperID:         swapperID,
			FilePageID:        filePageID,
			CurrentSwapperID:  currentSwapperID,
			CurrentFilePageID: currentFilePageID,
		}
	}

	t.setFilePageID(ref, filePageID) // slot is now isLoaded

	bytesRead, err := swapper.Read(filePageID, t.GetAddress(ref), t.cachePageSize)
	if err != nil {
		return &IOFailureError{FilePageID: filePageID, Op: "read", Err: err}
	}
	event.AddBytesRead(bytesRead)
	event.SetCachePageID(t.ToID(ref))

	t.setSwapperID(ref, swapperID) // slot is now isBoundTo(swapperID, filePageID)
	return nil
}

// TryEvict attempts to reclaim ref. It returns false without side effects
// if the exclusive lock can't be taken or the slot isn't loaded. On true,
// the caller retains the exclusive lock on a now fully-unbound slot - this
// is the one place the table hands back a lock it didn't take itself, and
// it is intentional: the caller is expected to push the slot onto a
// free-list.
func (t *PageTable) TryEvict(ref PageRef, opportunity EvictionEventOpportunity) (bool, error) {
	if !t.TryExclusiveLock(ref) {
		return false, nil
	}
	if !t.IsLoaded(ref) {
		t.UnlockExclusive(ref)
		return false, nil
	}
	event := opportunity.BeginEviction()
	defer event.Close()
	if err := t.evict(ref, event); err != nil {
		return false, err
	}
	return true, nil
}

func (t *PageTable) evict(ref PageRef, event EvictionEvent) error {
	filePageID := t.GetFilePageID(ref)
	event.SetFilePageID(filePageID)
	event.SetCachePageID(ref)
	swapperID := t.GetSwapperID(ref)
	if swapperID != 0 {
		allocation, err := t.swappers.GetAllocation(swapperID)
		if err != nil {
			t.UnlockExclusive(ref)
			return err
		}
		swapper := allocation.Swapper
		event.SetSwapper(swapper)

		if t.IsModified(ref) {
			flushEvent := event.FlushEventOpportunity().BeginFlush(filePageID, ref, swapper)
			address := t.GetAddress(ref)
			bytesWritten, err := swapper.Write(filePageID, address)
			if err != nil {
				t.UnlockExclusive(ref)
				flushEvent.Done(err)
				event.ThrewException(err)
				return &IOFailureError{FilePageID: filePageID, Op: "write", Err: err}
			}
			t.ExplicitlyMarkPageUnmodifiedUnderExclusiveLock(ref)
			flushEvent.AddBytesWritten(bytesWritten)
			flushEvent.AddPagesFlushed(1)
			flushEvent.Done(nil)
		}
		swapper.Evicted(filePageID)
	}
	t.clearBinding(ref)
	return nil
}

func (t *PageTable) clearBinding(ref PageRef) {
	t.setFilePageID(ref, UnboundPageID)
	t.setSwapperID(ref, 0)
}
