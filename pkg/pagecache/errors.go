package pagecache

import "fmt"

// ErrNullSwapper is returned by fault when called with a nil Swapper. It is
// always a programming bug in the caller.
var ErrNullSwapper = fmt.Errorf("pagecache: swapper cannot be nil")

// IllegalFaultStateError reports that fault's preconditions were violated:
// the slot was not exclusively locked, the requested filePageId was the
// unbound sentinel, or the slot was already loaded or bound. It carries
// every value involved so the message is enough to diagnose the bug
// without attaching a debugger.
type IllegalFaultStateError struct {
	PageRef           PageRef
	SwapperID         uint32
	FilePageID        uint64
	CurrentSwapperID  uint32
	CurrentFilePageID uint64
}

func (e *IllegalFaultStateError) Error() string {
	return fmt.Sprintf(
		"pagecache: cannot fault page {filePageId=%d, swapperId=%d} into cache page %d: "+
			"already bound to {filePageId=%d, swapperId=%d}",
		e.FilePageID, e.SwapperID, e.PageRef, e.CurrentFilePageID, e.CurrentSwapperID)
}

// IOFailureError wraps an error returned by a Swapper's Read or Write. When
// it comes from a Write during eviction, the table has already released the
// exclusive lock it took and marked the flush event as failed. When it comes
// from a Read during Fault, the slot is left loaded but not bound and the
// caller still holds its exclusive lock.
type IOFailureError struct {
	FilePageID uint64
	Op         string
	Err        error
}

func (e *IOFailureError) Error() string {
	return fmt.Sprintf("pagecache: %s failed for file page %d: %v", e.Op, e.FilePageID, e.Err)
}

func (e *IOFailureError) Unwrap() error {
	return e.Err
}
