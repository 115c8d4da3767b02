package pagecache

import (
	"errors"
	"sync"
	"unsafe"
)

// testMemoryManager hands out real Go-heap memory but pins every
// allocation for the lifetime of the manager, which is all a unit test
// needs: it never has to look like genuine off-heap memory, only behave
// like it (stable address, never moved, never freed).
type testMemoryManager struct {
	mu    sync.Mutex
	kept  [][]byte
}

func newTestMemoryManager() *testMemoryManager {
	return &testMemoryManager{}
}

func (m *testMemoryManager) AllocateAligned(byteSize uintptr) (uintptr, error) {
	buf := make([]byte, int(byteSize)+64)
	m.mu.Lock()
	m.kept = append(m.kept, buf)
	m.mu.Unlock()
	return uintptr(unsafe.Pointer(&buf[0])), nil
}

// testSwapper is a stub Swapper whose Read/Write/Evicted are entirely
// scripted by the test.
type testSwapper struct {
	mu   sync.Mutex
	id   uint32
	data []byte
	err  error

	readCalls    []uint64
	writeCalls   []uint64
	evictedCalls []uint64
}

func (s *testSwapper) Read(filePageID uint64, address uintptr, length int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readCalls = append(s.readCalls, filePageID)
	if s.err != nil {
		return 0, s.err
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(address)), length)
	n := copy(dst, s.data)
	return n, nil
}

func (s *testSwapper) Write(filePageID uint64, address uintptr) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCalls = append(s.writeCalls, filePageID)
	if s.err != nil {
		return 0, s.err
	}
	return len(s.data), nil
}

func (s *testSwapper) Evicted(filePageID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictedCalls = append(s.evictedCalls, filePageID)
}

// testSwapperSet is a fixed map from swapper id to Allocation.
type testSwapperSet struct {
	mu        sync.Mutex
	swappers  map[uint32]Swapper
}

func newTestSwapperSet() *testSwapperSet {
	return &testSwapperSet{swappers: make(map[uint32]Swapper)}
}

func (s *testSwapperSet) register(id uint32, sw Swapper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swappers[id] = sw
}

func (s *testSwapperSet) GetAllocation(swapperID uint32) (Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sw, ok := s.swappers[swapperID]
	if !ok {
		return Allocation{}, errors.New("no such swapper")
	}
	return Allocation{Swapper: sw}, nil
}

// testFaultEvent and testEvictionEvent record what the table reports so
// tests can assert on it.
type testFaultEvent struct {
	bytesRead  int
	cachePageID int
}

func (e *testFaultEvent) AddBytesRead(n int)    { e.bytesRead += n }
func (e *testFaultEvent) SetCachePageID(id int) { e.cachePageID = id }

type testEvictionOpportunity struct {
	events []*testEvictionEvent
}

func (o *testEvictionOpportunity) BeginEviction() EvictionEvent {
	e := &testEvictionEvent{}
	o.events = append(o.events, e)
	return e
}

type testEvictionEvent struct {
	filePageID  uint64
	cachePageID PageRef
	swapper     Swapper
	err         error
	closed      bool
	flushes     []*testFlushEvent
}

func (e *testEvictionEvent) SetFilePageID(id uint64)   { e.filePageID = id }
func (e *testEvictionEvent) SetCachePageID(ref PageRef) { e.cachePageID = ref }
func (e *testEvictionEvent) SetSwapper(s Swapper)       { e.swapper = s }
func (e *testEvictionEvent) ThrewException(err error)   { e.err = err }
func (e *testEvictionEvent) Close()                     { e.closed = true }
func (e *testEvictionEvent) FlushEventOpportunity() FlushEventOpportunity {
	return &testFlushOpportunity{event: e}
}

type testFlushOpportunity struct {
	event *testEvictionEvent
}

func (o *testFlushOpportunity) BeginFlush(filePageID uint64, ref PageRef, swapper Swapper) FlushEvent {
	f := &testFlushEvent{filePageID: filePageID}
	o.event.flushes = append(o.event.flushes, f)
	return f
}

type testFlushEvent struct {
	filePageID    uint64
	bytesWritten  int
	pagesFlushed  int
	done          bool
	err           error
}

func (f *testFlushEvent) AddBytesWritten(n int) { f.bytesWritten += n }
func (f *testFlushEvent) AddPagesFlushed(n int) { f.pagesFlushed += n }
func (f *testFlushEvent) Done(err error)        { f.done = true; f.err = err }

func newTestTable(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, pageCount, cachePageSize int) (*PageTable, *testMemoryManager, *testSwapperSet) {
	mm := newTestMemoryManager()
	sw := newTestSwapperSet()
	table, err := NewPageTable(pageCount, cachePageSize, mm, sw, 0)
	if err != nil {
		t.Helper()
		t.Fatalf("NewPageTable: %v", err)
	}
	return table, mm, sw
}
