package pagecache

// slotBytes is the fixed size of one page's off-heap metadata record.
//
//	offset  size  field
//	0       8     lock word (packed sequence lock, see lock.go)
//	8       8     address of the associated cache page buffer, or 0
//	16      8     file page id; UnboundPageID when the slot is free
//	24      4     swapper id; 0 when not bound
//	28      1     usage counter, saturating at maxUsage
//	29      3     padding
const slotBytes = 32

const (
	slotOffsetLock       = 0
	slotOffsetAddress    = 8
	slotOffsetFilePageID = 16
	slotOffsetSwapperID  = 24
	slotOffsetUsage      = 28
)

// UnboundPageID is the sentinel file-page-id value that marks a slot as
// free. A slot's filePageId only ever equals this sentinel when the slot
// holds no file data at all.
const UnboundPageID uint64 = ^uint64(0)

// maxUsage is the saturation point of the clock-algorithm usage counter.
const maxUsage uint8 = 4

// PageRef is an opaque handle to one slot's metadata. It is only valid for
// the PageTable that minted it; passing a ref from one table into another
// is a programming error the table has no way to detect.
type PageRef uintptr
