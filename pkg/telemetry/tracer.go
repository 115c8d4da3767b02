// Package telemetry implements pagecache.TracingHooks on top of a
// structured logger, turning page-fault, eviction and flush events into
// log lines instead of dropping them.
package telemetry

import (
	"go.uber.org/zap"

	"pagecache/pkg/pagecache"
)

// Tracer is a pagecache.TracingHooks backed by a *zap.Logger. Faults and
// successful flushes log at debug; failed I/O logs at warn.
type Tracer struct {
	log *zap.Logger
}

// New returns a Tracer that logs through log. A nil log is replaced with
// zap.NewNop(), so a Tracer is always safe to construct.
func New(log *zap.Logger) *Tracer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracer{log: log}
}

func (t *Tracer) Fault() pagecache.PageFaultEvent {
	return &faultEvent{log: t.log}
}

func (t *Tracer) Eviction() pagecache.EvictionEventOpportunity {
	return &evictionOpportunity{log: t.log}
}

type faultEvent struct {
	log         *zap.Logger
	bytesRead   int
	cachePageID int
}

func (e *faultEvent) AddBytesRead(n int) { e.bytesRead += n }

// SetCachePageID is the last call Fault makes on a successful read, so this
// is where a completed fault gets logged; there is no separate done/close
// hook on PageFaultEvent.
func (e *faultEvent) SetCachePageID(id int) {
	e.cachePageID = id
	e.log.Debug("page faulted in",
		zap.Int("cache_page_id", id),
		zap.Int("bytes_read", e.bytesRead))
}

type evictionOpportunity struct {
	log *zap.Logger
}

func (o *evictionOpportunity) BeginEviction() pagecache.EvictionEvent {
	return &evictionEvent{log: o.log}
}

type evictionEvent struct {
	log         *zap.Logger
	filePageID  uint64
	cachePageID pagecache.PageRef
	swapper     pagecache.Swapper
	err         error
}

func (e *evictionEvent) SetFilePageID(id uint64)              { e.filePageID = id }
func (e *evictionEvent) SetCachePageID(ref pagecache.PageRef) { e.cachePageID = ref }
func (e *evictionEvent) SetSwapper(s pagecache.Swapper)       { e.swapper = s }
func (e *evictionEvent) ThrewException(err error)             { e.err = err }

func (e *evictionEvent) FlushEventOpportunity() pagecache.FlushEventOpportunity {
	return &flushOpportunity{log: e.log}
}

func (e *evictionEvent) Close() {
	if e.err != nil {
		e.log.Warn("page eviction failed",
			zap.Uint64("file_page_id", e.filePageID),
			zap.Error(e.err))
		return
	}
	e.log.Debug("page evicted",
		zap.Uint64("file_page_id", e.filePageID))
}

type flushOpportunity struct {
	log *zap.Logger
}

func (o *flushOpportunity) BeginFlush(filePageID uint64, ref pagecache.PageRef, swapper pagecache.Swapper) pagecache.FlushEvent {
	return &flushEvent{log: o.log, filePageID: filePageID}
}

type flushEvent struct {
	log          *zap.Logger
	filePageID   uint64
	bytesWritten int
	pagesFlushed int
}

func (f *flushEvent) AddBytesWritten(n int) { f.bytesWritten += n }
func (f *flushEvent) AddPagesFlushed(n int) { f.pagesFlushed += n }

func (f *flushEvent) Done(err error) {
	if err != nil {
		f.log.Warn("page flush failed",
			zap.Uint64("file_page_id", f.filePageID),
			zap.Error(err))
		return
	}
	f.log.Debug("page flushed",
		zap.Uint64("file_page_id", f.filePageID),
		zap.Int("bytes_written", f.bytesWritten),
		zap.Int("pages_flushed", f.pagesFlushed))
}
