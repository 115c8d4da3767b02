// Package pagecache implements the page metadata table at the heart of a
// database page cache: a bounded pool of fixed-size in-memory pages,
// multiplexed across many backing files.
//
// The table (PageTable) owns one Slot per cache page, packed into a
// contiguous off-heap region with bit-exact field offsets. Each slot is
// guarded by a PageLock: a single 64-bit word that supports optimistic
// reads, a writer lock, an exclusive lock and a flush lock. Callers fault
// pages in from a Swapper and evict them back out through the same lock
// protocol; the clock-algorithm usage counter that drives eviction is
// deliberately left benignly racy.
//
// This package specifies and implements the core table and lock. The
// file-I/O backend (Swapper / SwapperSet), the off-heap allocator
// (MemoryManager) and the telemetry sinks (TracingHooks) are consumed as
// interfaces; concrete implementations live in sibling packages.
package pagecache
