// Package pool supplies the translation table, free-list, pin/unpin cursor
// API and background eviction sweeper that sit on top of a
// pagecache.PageTable: the collaborators the page table specification
// treats as external, given a concrete, exercised implementation.
package pool

// Key identifies a file page independent of where it currently lives in
// the cache.
type Key struct {
	SwapperID  uint32
	FilePageID uint64
}
