package pagecache

import (
	"errors"
	"testing"
)

// S1 - fresh fault round-trip.
func TestFaultRoundTrip(t *testing.T) {
	table, _, swappers := newTestTable(t, 4, 4096)
	ref := table.Deref(2)

	if err := table.InitBuffer(ref); err != nil {
		t.Fatalf("InitBuffer: %v", err)
	}
	// A freshly-constructed slot starts exclusively locked; release that
	// before taking it the way a real caller would once it's on the
	// free-list.
	table.UnlockExclusive(ref)
	if !table.TryExclusiveLock(ref) {
		t.Fatal("TryExclusiveLock should succeed on a fresh slot")
	}

	data := make([]byte, 4096)
	for i := range data {
		data[i] = 0xAB
	}
	sw := &testSwapper{id: 7, data: data}
	swappers.register(7, sw)

	event := &testFaultEvent{}
	if err := table.Fault(ref, sw, 7, 42, event); err != nil {
		t.Fatalf("Fault: %v", err)
	}

	if !table.IsLoaded(ref) {
		t.Fatal("expected IsLoaded true")
	}
	if !table.IsBoundTo(ref, 7, 42) {
		t.Fatal("expected IsBoundTo(7, 42)")
	}
	if table.GetAddress(ref) == 0 {
		t.Fatal("expected nonzero address")
	}
	if event.bytesRead != 4096 {
		t.Fatalf("expected bytesRead=4096, got %d", event.bytesRead)
	}
	if event.cachePageID != 2 {
		t.Fatalf("expected cachePageId=2, got %d", event.cachePageID)
	}
}

// S2 - fault failure leaves the slot loaded-but-unbound.
func TestFaultFailureLeavesLoadedUnbound(t *testing.T) {
	table, _, swappers := newTestTable(t, 4, 4096)
	ref := table.Deref(2)

	table.InitBuffer(ref)
	table.UnlockExclusive(ref) // release the constructor's initial lock
	if !table.TryExclusiveLock(ref) {
		t.Fatal("TryExclusiveLock should succeed")
	}

	sw := &testSwapper{id: 7, err: errors.New("disk is on fire")}
	swappers.register(7, sw)

	event := &testFaultEvent{}
	err := table.Fault(ref, sw, 7, 42, event)
	if err == nil {
		t.Fatal("expected Fault to return an error")
	}

	if !table.IsLoaded(ref) {
		t.Fatal("expected IsLoaded true even after a failed read")
	}
	if table.IsBoundTo(ref, 7, 42) {
		t.Fatal("expected IsBoundTo false after a failed read")
	}
	if table.GetSwapperID(ref) != 0 {
		t.Fatal("expected swapperId 0")
	}
	if table.GetFilePageID(ref) != 42 {
		t.Fatal("expected filePageId 42")
	}
	if !table.IsExclusivelyLocked(ref) {
		t.Fatal("exclusive lock should still be held by the caller")
	}
}

// S3 - evict a clean page.
func TestTryEvictCleanPage(t *testing.T) {
	table, _, swappers := newTestTable(t, 4, 4096)
	ref := table.Deref(2)

	table.InitBuffer(ref)
	table.UnlockExclusive(ref) // release the constructor's initial lock
	table.TryExclusiveLock(ref)

	sw := &testSwapper{id: 7, data: make([]byte, 4096)}
	swappers.register(7, sw)
	table.Fault(ref, sw, 7, 42, &testFaultEvent{})

	table.ExplicitlyMarkPageUnmodifiedUnderExclusiveLock(ref)
	table.UnlockExclusive(ref)

	opportunity := &testEvictionOpportunity{}
	evicted, err := table.TryEvict(ref, opportunity)
	if err != nil {
		t.Fatalf("TryEvict: %v", err)
	}
	if !evicted {
		t.Fatal("expected eviction to succeed")
	}
	if len(opportunity.events) != 1 {
		t.Fatalf("expected exactly one eviction event, got %d", len(opportunity.events))
	}
	if len(opportunity.events[0].flushes) != 0 {
		t.Fatal("a clean page must not begin a flush event")
	}
	if table.IsLoaded(ref) {
		t.Fatal("expected IsLoaded false after eviction")
	}
	if table.GetSwapperID(ref) != 0 {
		t.Fatal("expected swapperId 0 after eviction")
	}
	if len(sw.evictedCalls) != 1 || sw.evictedCalls[0] != 42 {
		t.Fatalf("expected swapper.Evicted(42) exactly once, got %v", sw.evictedCalls)
	}
}

// S4 - evict a dirty page.
func TestTryEvictDirtyPage(t *testing.T) {
	table, _, swappers := newTestTable(t, 4, 4096)
	ref := table.Deref(2)

	table.InitBuffer(ref)
	table.UnlockExclusive(ref) // release the constructor's initial lock
	table.TryExclusiveLock(ref)

	sw := &testSwapper{id: 7, data: make([]byte, 4096)}
	swappers.register(7, sw)
	table.Fault(ref, sw, 7, 42, &testFaultEvent{})

	table.UnlockExclusiveAndTakeWriteLock(ref)
	table.UnlockWrite(ref) // marks modified

	table.TryExclusiveLock(ref)
	table.UnlockExclusive(ref)

	opportunity := &testEvictionOpportunity{}
	evicted, err := table.TryEvict(ref, opportunity)
	if err != nil {
		t.Fatalf("TryEvict: %v", err)
	}
	if !evicted {
		t.Fatal("expected eviction to succeed")
	}
	if len(sw.writeCalls) != 1 || sw.writeCalls[0] != 42 {
		t.Fatalf("expected swapper.Write(42) exactly once, got %v", sw.writeCalls)
	}
	if table.IsModified(ref) {
		t.Fatal("expected modified cleared after flush")
	}
}

// S6 - tryEvict on an unloaded slot.
func TestTryEvictUnloadedSlot(t *testing.T) {
	table, _, _ := newTestTable(t, 4, 4096)
	ref := table.Deref(2)
	table.UnlockExclusive(ref) // release the constructor's initial lock

	opportunity := &testEvictionOpportunity{}
	evicted, err := table.TryEvict(ref, opportunity)
	if err != nil {
		t.Fatalf("TryEvict: %v", err)
	}
	if evicted {
		t.Fatal("expected eviction of an unloaded slot to fail")
	}
	if table.IsExclusivelyLocked(ref) {
		t.Fatal("exclusive lock must be released when eviction bails out")
	}
	if len(opportunity.events) != 0 {
		t.Fatal("no eviction event should have been opened")
	}
}

func TestEvictWriteFailureReleasesExclusiveAndPropagates(t *testing.T) {
	table, _, swappers := newTestTable(t, 4, 4096)
	ref := table.Deref(2)

	table.InitBuffer(ref)
	table.UnlockExclusive(ref) // release the constructor's initial lock
	table.TryExclusiveLock(ref)

	sw := &testSwapper{id: 7, data: make([]byte, 4096)}
	swappers.register(7, sw)
	table.Fault(ref, sw, 7, 42, &testFaultEvent{})

	table.UnlockExclusiveAndTakeWriteLock(ref)
	table.UnlockWrite(ref) // marks modified; slot is now unlocked

	sw.err = errors.New("disk full")

	opportunity := &testEvictionOpportunity{}
	evicted, err := table.TryEvict(ref, opportunity)
	if err == nil {
		t.Fatal("expected an error from a failing flush")
	}
	if evicted {
		t.Fatal("eviction must not report success on a failed flush")
	}
	if table.IsExclusivelyLocked(ref) {
		t.Fatal("exclusive lock must be released on flush failure")
	}
	if len(opportunity.events[0].flushes) != 1 || !opportunity.events[0].flushes[0].done {
		t.Fatal("flush event should be marked done(err) even on failure")
	}
}

func TestFaultPreconditions(t *testing.T) {
	table, _, swappers := newTestTable(t, 4, 4096)
	ref := table.Deref(0)
	sw := &testSwapper{id: 1, data: make([]byte, 4096)}
	swappers.register(1, sw)

	if err := table.Fault(ref, nil, 1, 5, &testFaultEvent{}); !errors.Is(err, ErrNullSwapper) {
		t.Fatalf("expected ErrNullSwapper, got %v", err)
	}

	if err := table.Fault(ref, sw, 1, UnboundPageID, &testFaultEvent{}); err == nil {
		t.Fatal("expected IllegalFaultStateError for the unbound sentinel")
	}

	// Not exclusively locked: the slot starts exclusively locked until the
	// constructor's initial lock is released, so release it first.
	table.UnlockExclusive(ref)
	faultErr := table.Fault(ref, sw, 1, 5, &testFaultEvent{})
	var illegal *IllegalFaultStateError
	if !errors.As(faultErr, &illegal) {
		t.Fatalf("expected *IllegalFaultStateError, got %v", faultErr)
	}
}

func TestDerefToIDRoundTrip(t *testing.T) {
	table, _, _ := newTestTable(t, 16, 4096)
	for i := 0; i < table.PageCount(); i++ {
		ref := table.Deref(i)
		if got := table.ToID(ref); got != i {
			t.Fatalf("ToID(Deref(%d)) = %d", i, got)
		}
	}
}

func TestUsageCounterSaturatesAndFloors(t *testing.T) {
	table, _, _ := newTestTable(t, 1, 4096)
	ref := table.Deref(0)

	for i := 0; i < 10; i++ {
		table.IncrementUsage(ref)
	}
	if got := table.GetUsageCounter(ref); got != maxUsage {
		t.Fatalf("expected usage counter capped at %d, got %d", maxUsage, got)
	}

	var reachedZero bool
	for i := 0; i < 10; i++ {
		reachedZero = table.DecrementUsage(ref)
	}
	if table.GetUsageCounter(ref) != 0 {
		t.Fatal("expected usage counter floored at 0")
	}
	if !reachedZero {
		t.Fatal("expected the last decrement to report reaching zero")
	}
}

func TestInitBufferIsIdempotent(t *testing.T) {
	table, _, _ := newTestTable(t, 1, 4096)
	ref := table.Deref(0)

	if err := table.InitBuffer(ref); err != nil {
		t.Fatalf("InitBuffer: %v", err)
	}
	addr := table.GetAddress(ref)
	if addr == 0 {
		t.Fatal("expected nonzero address after InitBuffer")
	}
	if err := table.InitBuffer(ref); err != nil {
		t.Fatalf("second InitBuffer: %v", err)
	}
	if table.GetAddress(ref) != addr {
		t.Fatal("InitBuffer must not reallocate an existing buffer")
	}
}
