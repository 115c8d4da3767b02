package pool

import "pagecache/pkg/pagecache"

// freeList is a channel-backed pool of refs not currently bound to any file
// page. It is sized to exactly the table's page count: every slot is
// either on the free-list, pinned, or mid-fault/evict, never more than one
// of those at once, so the channel can never overflow.
type freeList chan pagecache.PageRef

func newFreeList(capacity int) freeList {
	return make(freeList, capacity)
}

func (f freeList) push(ref pagecache.PageRef) {
	f <- ref
}

func (f freeList) tryPop() (pagecache.PageRef, bool) {
	select {
	case ref := <-f:
		return ref, true
	default:
		return 0, false
	}
}
