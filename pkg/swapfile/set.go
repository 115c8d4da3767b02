package swapfile

import (
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"

	"pagecache/pkg/pagecache"
)

// Set is a pagecache.SwapperSet that opens one memory-mapped File per
// swapper id, lazily, under dir. Swapper ids are assigned by the caller via
// Register; the set itself never mints one, matching the page table's
// contract that id 0 always means "not bound".
type Set struct {
	mu       sync.RWMutex
	dir      string
	pageSize int
	files    map[uint32]*File
}

// New returns a Set that will create its backing files under dir, one per
// registered swapper id, each page pageSize bytes.
func New(dir string, pageSize int) *Set {
	return &Set{dir: dir, pageSize: pageSize, files: make(map[uint32]*File)}
}

// Register opens (or creates) the file called name under the set's
// directory as the backing file for swapperID, and makes it available to
// GetAllocation. swapperID must be nonzero. If swapperID is already
// registered, its existing file is returned and name is ignored.
func (s *Set) Register(swapperID uint32, name string) (*File, error) {
	if swapperID == 0 {
		return nil, fmt.Errorf("swapfile: swapper id 0 is reserved for \"not bound\"")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[swapperID]; ok {
		return f, nil
	}
	f, err := Open(filepath.Join(s.dir, name), s.pageSize)
	if err != nil {
		return nil, err
	}
	s.files[swapperID] = f
	return f, nil
}

// GetAllocation implements pagecache.SwapperSet.
func (s *Set) GetAllocation(swapperID uint32) (pagecache.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[swapperID]
	if !ok {
		return pagecache.Allocation{}, fmt.Errorf("swapfile: no swapper registered for id %d", swapperID)
	}
	return pagecache.Allocation{Swapper: f}, nil
}

// Close closes every registered file, aggregating any errors.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for id, f := range s.files {
		if cerr := f.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("swapfile: close swapper %d: %w", id, cerr))
		}
	}
	s.files = make(map[uint32]*File)
	return err
}
