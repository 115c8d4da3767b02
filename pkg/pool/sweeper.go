package pool

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper drives the clock eviction policy: it walks a clock hand over
// every slot, decrementing usage, and calls TryEvict on any slot whose
// usage has reached zero. Reclaimed refs are returned to the pool's
// free-list.
type Sweeper struct {
	pool     *Pool
	interval time.Duration
	log      *zap.Logger

	hand int
}

// NewSweeper returns a Sweeper that scans p's table once per interval.
func NewSweeper(p *Pool, interval time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{pool: p, interval: interval, log: log}
}

// Run scans repeatedly until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

// SweepOnce advances the clock hand across every slot exactly once. Run
// calls this on every tick; callers that want a single synchronous sweep
// (a "force eviction now" command, say) can call it directly.
func (s *Sweeper) SweepOnce() {
	s.sweepOnce()
}

func (s *Sweeper) sweepOnce() {
	table := s.pool.table
	count := table.PageCount()
	for i := 0; i < count; i++ {
		s.hand = (s.hand + 1) % count
		ref := table.Deref(s.hand)

		if !table.IsLoaded(ref) {
			continue
		}
		if !table.DecrementUsage(ref) {
			continue
		}

		// The key must be read before TryEvict runs, since a successful
		// evict clears both fields.
		key := Key{SwapperID: table.GetSwapperID(ref), FilePageID: table.GetFilePageID(ref)}

		evicted, err := table.TryEvict(ref, s.pool.tracing.Eviction())
		if err != nil {
			s.log.Warn("eviction failed",
				zap.Uint64("file_page_id", key.FilePageID),
				zap.Error(err))
			continue
		}
		if !evicted {
			continue
		}

		if key.SwapperID != 0 {
			s.pool.tt.remove(key)
		}
		table.UnlockExclusive(ref)
		s.pool.free.push(ref)
	}
}
