// Package memalloc implements pagecache.MemoryManager with real off-heap
// memory: page-aligned, anonymous memory mappings that live for the
// lifetime of the process.
package memalloc

import "sync"

// pageSize is the alignment every allocation is rounded up to. It is
// overridden per platform in the unix/windows files below.
var pageSize = 4096

// Allocator is a pagecache.MemoryManager backed by anonymous mmap (unix) or
// VirtualAlloc (windows). It never frees an individual region: the page
// table it backs allocates once at startup and holds every region until the
// process exits or Close releases all of them together.
type Allocator struct {
	mu       sync.Mutex
	mappings []mapping
}

type mapping struct {
	addr uintptr
	size uintptr
}

// New returns an Allocator ready to serve AllocateAligned calls.
func New() *Allocator {
	return &Allocator{}
}

// AllocateAligned rounds byteSize up to a multiple of the system page size
// and maps a fresh anonymous region of that size.
func (a *Allocator) AllocateAligned(byteSize uintptr) (uintptr, error) {
	size := alignUp(byteSize, uintptr(pageSize))
	addr, err := mapAnonymous(size)
	if err != nil {
		return 0, err
	}
	a.mu.Lock()
	a.mappings = append(a.mappings, mapping{addr: addr, size: size})
	a.mu.Unlock()
	return addr, nil
}

// Close unmaps every region the allocator has ever handed out. Callers are
// not required to call this - the process exiting is sufficient - but it
// lets tests and the CLI demo release memory deterministically.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	for _, m := range a.mappings {
		if err := unmap(m.addr, m.size); err != nil {
			errs = append(errs, err)
		}
	}
	a.mappings = nil
	return joinErrors(errs)
}

func alignUp(v, align uintptr) uintptr {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}
