package swapfile

import (
	"sync"
	"unsafe"
)

// File is a pagecache.Swapper backed by one memory-mapped file. Each file
// page occupies exactly pageSize bytes, at offset filePageID*pageSize.
type File struct {
	mu       sync.Mutex
	mmap     *mmapFile
	pageSize int64
}

// Open maps path into memory, growing it to at least one page if it is new
// or empty.
func Open(path string, pageSize int) (*File, error) {
	m, err := openMmapFile(path, int64(pageSize))
	if err != nil {
		return nil, err
	}
	return &File{mmap: m, pageSize: int64(pageSize)}, nil
}

// Read copies the mapped bytes for filePageID into the length bytes at
// address. Reading a page past the current end of file is not an error: it
// returns zeros, matching the semantics of a sparse file that has never
// been written.
func (f *File) Read(filePageID uint64, address uintptr, length int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	offset := int64(filePageID) * f.pageSize
	dst := unsafe.Slice((*byte)(unsafe.Pointer(address)), length)
	if offset >= f.mmap.size {
		for i := range dst {
			dst[i] = 0
		}
		return length, nil
	}
	n := copy(dst, f.mmap.data[offset:])
	for i := n; i < length; i++ {
		dst[i] = 0
	}
	return length, nil
}

// Write copies one page's worth of bytes at address into the file at
// filePageID's offset, growing the mapping first if necessary.
func (f *File) Write(filePageID uint64, address uintptr) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	offset, err := f.mmap.growFor(filePageID)
	if err != nil {
		return 0, err
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(address)), int(f.pageSize))
	n := copy(f.mmap.data[offset:], src)
	return n, nil
}

// Evicted is a no-op: this Swapper keeps no per-page cache of its own to
// drop.
func (f *File) Evicted(filePageID uint64) {}

// Sync flushes the mapping to disk.
func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mmap.sync()
}

// Close unmaps and closes the underlying file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mmap.close()
}
