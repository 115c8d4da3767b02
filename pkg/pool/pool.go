package pool

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pagecache/pkg/pagecache"
)

// ErrPoolExhausted is returned by Pin when the free-list has no ref
// available and the caller-supplied context is done before one is freed by
// eviction.
var ErrPoolExhausted = fmt.Errorf("pool: no free page and none became available")

// Pool is the cursor-facing front end over a pagecache.PageTable: it turns
// (swapperId, filePageId) lookups into pinned PageRefs, faulting on a miss.
// It does not evict on its own: a Sweeper over the same Pool reclaims slots
// and returns them to the free-list that Pin draws from.
type Pool struct {
	table   *pagecache.PageTable
	tt      *translationTable
	free    freeList
	tracing pagecache.TracingHooks
	log     *zap.Logger
}

// Options configures New.
type Options struct {
	// BucketCount sizes the translation table's shard count. Defaults to
	// the table's page count if zero.
	BucketCount int
	Tracing     pagecache.TracingHooks
	Log         *zap.Logger
}

// New builds a Pool over table, populating the free-list with every slot
// after releasing each one's construction-time exclusive lock.
func New(table *pagecache.PageTable, opts Options) *Pool {
	if opts.BucketCount <= 0 {
		opts.BucketCount = table.PageCount()
	}
	if opts.Tracing == nil {
		opts.Tracing = pagecache.NoopTracingHooks
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pool{
		table:   table,
		tt:      newTranslationTable(opts.BucketCount),
		free:    newFreeList(table.PageCount()),
		tracing: opts.Tracing,
		log:     log,
	}
	for i := 0; i < table.PageCount(); i++ {
		ref := table.Deref(i)
		table.UnlockExclusive(ref)
		p.free.push(ref)
	}
	return p
}

// Pin returns the PageRef bound to (swapperID, filePageID), faulting it in
// from swapperID's Swapper on a miss. The returned ref's usage counter has
// already been bumped; callers must call Unpin when done.
func (p *Pool) Pin(ctx context.Context, swapperID uint32, filePageID uint64) (pagecache.PageRef, error) {
	key := Key{SwapperID: swapperID, FilePageID: filePageID}

	ref, err := p.tt.getOrFault(key, func() (pagecache.PageRef, error) {
		return p.faultNewSlot(ctx, swapperID, filePageID)
	})
	if err != nil {
		return 0, err
	}
	p.table.IncrementUsage(ref)
	return ref, nil
}

// Unpin decrements ref's usage counter. It never releases any lock; usage
// is purely input to the eviction sweeper's clock scan.
func (p *Pool) Unpin(ref pagecache.PageRef) {
	p.table.DecrementUsage(ref)
}

func (p *Pool) faultNewSlot(ctx context.Context, swapperID uint32, filePageID uint64) (pagecache.PageRef, error) {
	ref, err := p.takeFree(ctx)
	if err != nil {
		return 0, err
	}

	if !p.table.TryExclusiveLock(ref) {
		p.free.push(ref)
		return 0, fmt.Errorf("pool: free-list handed out a ref still under contention")
	}

	allocation, err := p.table.Swappers().GetAllocation(swapperID)
	if err != nil {
		p.table.UnlockExclusive(ref)
		p.free.push(ref)
		return 0, err
	}

	if err := p.table.InitBuffer(ref); err != nil {
		p.table.UnlockExclusive(ref)
		p.free.push(ref)
		return 0, err
	}

	if err := p.table.Fault(ref, allocation.Swapper, swapperID, filePageID, p.tracing.Fault()); err != nil {
		// The slot is now loaded-but-unbound. It is released here but not
		// pushed onto the free-list directly: the next clock sweep will
		// find it loaded with no swapper bound, evict it for free (evict
		// skips the flush when swapperId is 0), and push it itself. That
		// keeps this path simple instead of duplicating evict's cleanup.
		p.log.Warn("fault failed, releasing partially loaded slot",
			zap.Uint32("swapper_id", swapperID),
			zap.Uint64("file_page_id", filePageID),
			zap.Error(err))
		p.table.UnlockExclusive(ref)
		return 0, err
	}

	p.table.UnlockExclusive(ref)
	return ref, nil
}

func (p *Pool) takeFree(ctx context.Context) (pagecache.PageRef, error) {
	if ref, ok := p.free.tryPop(); ok {
		return ref, nil
	}
	select {
	case ref := <-p.free:
		return ref, nil
	case <-ctx.Done():
		return 0, ErrPoolExhausted
	}
}

// Table returns the underlying page table, for callers (like the sweeper)
// that need direct access.
func (p *Pool) Table() *pagecache.PageTable { return p.table }
