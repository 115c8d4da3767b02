package pagecache

import "sync/atomic"

// lockWord is the packed sequence lock described in the slot layout. All
// five fields share one 64-bit word so that every transition is a single
// CAS. From low to high bit:
//
//	bit 0       writer bit    - set while a write lock is held
//	bit 1       exclusive bit - set while an exclusive lock is held
//	bit 2       flush bit     - set while a flush is in progress
//	bit 3       modified bit  - set by every write-lock release
//	bits 4-63   sequence      - incremented on every write-lock release
//
// The sequence only ever advances when a writer releases, never while a
// writer or exclusive lock is merely held. That is what lets
// validateReadLock detect "a writer intervened" purely from a sequence
// mismatch, while the current writer/exclusive bits catch a writer that
// is still in flight at validation time.
const (
	lockWriterBit    uint64 = 1 << 0
	lockExclusiveBit uint64 = 1 << 1
	lockFlushBit     uint64 = 1 << 2
	lockModifiedBit  uint64 = 1 << 3

	lockSeqShift = 4
	lockSeqIncr  = uint64(1) << lockSeqShift
)

// initialLockWord is the value every slot's lock word is given at
// construction: exclusively locked, so the slot cannot be touched until it
// is pushed onto a free-list by the caller that owns startup.
func initialLockWord() uint64 {
	return lockExclusiveBit
}

func lockSequence(word uint64) uint64 {
	return word >> lockSeqShift
}

// tryOptimisticReadLock returns a stamp that validateReadLock can later
// check. It never blocks and never fails as an operation: if an exclusive
// lock is currently held, the returned stamp simply carries the exclusive
// bit, which makes every subsequent validateReadLock call fail.
func tryOptimisticReadLock(word *uint64) uint64 {
	return atomic.LoadUint64(word)
}

// validateReadLock reports whether the bytes a reader examined between
// capturing stamp and calling validateReadLock are a consistent snapshot:
// no writer or exclusive lock held at capture time, none intervened since,
// and none is held right now.
func validateReadLock(word *uint64, stamp uint64) bool {
	if stamp&lockExclusiveBit != 0 {
		return false
	}
	now := atomic.LoadUint64(word)
	if now&(lockExclusiveBit|lockWriterBit) != 0 {
		return false
	}
	return lockSequence(now) == lockSequence(stamp)
}

func isModified(word *uint64) bool {
	return atomic.LoadUint64(word)&lockModifiedBit != 0
}

func isExclusivelyLocked(word *uint64) bool {
	return atomic.LoadUint64(word)&lockExclusiveBit != 0
}

// tryWriteLock CASes the writer bit from 0 to 1, retrying only when the CAS
// fails because an unrelated bit (flush, modified) changed underneath it.
// It returns false as soon as it observes the writer or exclusive bit
// already set - that is genuine contention, not a spurious CAS failure.
func tryWriteLock(word *uint64) bool {
	for {
		w := atomic.LoadUint64(word)
		if w&(lockWriterBit|lockExclusiveBit) != 0 {
			return false
		}
		if atomic.CompareAndSwapUint64(word, w, w|lockWriterBit) {
			return true
		}
	}
}

// unlockWrite releases a writer lock taken by tryWriteLock: clears the
// writer bit, sets modified, and bumps the sequence so validated readers
// can detect the change.
func unlockWrite(word *uint64) {
	for {
		w := atomic.LoadUint64(word)
		nw := nextWriterReleaseWord(w)
		if atomic.CompareAndSwapUint64(word, w, nw) {
			return
		}
	}
}

func nextWriterReleaseWord(w uint64) uint64 {
	nw := w + lockSeqIncr
	nw &^= lockWriterBit
	nw |= lockModifiedBit
	return nw
}

// unlockWriteAndTryTakeFlushLock atomically releases the writer lock,
// exactly as unlockWrite does, and in the same CAS also takes the flush
// lock if it is currently free. It returns a nonzero stamp - the resulting
// word - when the flush lock was taken, or 0 if someone else already held
// it. The writer is released either way.
func unlockWriteAndTryTakeFlushLock(word *uint64) uint64 {
	for {
		w := atomic.LoadUint64(word)
		nw := nextWriterReleaseWord(w)
		tookFlush := nw&lockFlushBit == 0
		if tookFlush {
			nw |= lockFlushBit
		}
		if atomic.CompareAndSwapUint64(word, w, nw) {
			if tookFlush {
				return nw
			}
			return 0
		}
	}
}

// tryExclusiveLock CASes the exclusive bit from 0 to 1 iff no writer, no
// exclusive and no flush lock are held.
func tryExclusiveLock(word *uint64) bool {
	for {
		w := atomic.LoadUint64(word)
		if w&(lockWriterBit|lockExclusiveBit|lockFlushBit) != 0 {
			return false
		}
		if atomic.CompareAndSwapUint64(word, w, w|lockExclusiveBit) {
			return true
		}
	}
}

// unlockExclusive clears the exclusive bit and returns the current
// sequence, which callers use to mint a stamp for the page they just
// unlocked.
func unlockExclusive(word *uint64) uint64 {
	for {
		w := atomic.LoadUint64(word)
		nw := w &^ lockExclusiveBit
		if atomic.CompareAndSwapUint64(word, w, nw) {
			return lockSequence(nw)
		}
	}
}

// unlockExclusiveAndTakeWriteLock atomically downgrades an exclusive lock
// to a writer lock.
func unlockExclusiveAndTakeWriteLock(word *uint64) {
	for {
		w := atomic.LoadUint64(word)
		nw := (w &^ lockExclusiveBit) | lockWriterBit
		if atomic.CompareAndSwapUint64(word, w, nw) {
			return
		}
	}
}

// tryFlushLock CASes the flush bit from 0 to 1 iff exclusive is not held.
// It returns the resulting word as a nonzero stamp on success, or 0 on
// failure.
func tryFlushLock(word *uint64) uint64 {
	for {
		w := atomic.LoadUint64(word)
		if w&lockExclusiveBit != 0 {
			return 0
		}
		if w&lockFlushBit != 0 {
			return 0
		}
		nw := w | lockFlushBit
		if atomic.CompareAndSwapUint64(word, w, nw) {
			return nw
		}
	}
}

// unlockFlush clears the flush bit. If success is true and no writer has
// released since stamp was taken (the sequence hasn't moved), the modified
// bit is cleared too: the flush captured the page's latest state.
func unlockFlush(word *uint64, stamp uint64, success bool) {
	stampSeq := lockSequence(stamp)
	for {
		w := atomic.LoadUint64(word)
		nw := w &^ lockFlushBit
		if success && lockSequence(w) == stampSeq {
			nw &^= lockModifiedBit
		}
		if atomic.CompareAndSwapUint64(word, w, nw) {
			return
		}
	}
}

// explicitlyMarkPageUnmodifiedUnderExclusiveLock clears the modified bit.
// The caller must already hold the exclusive lock; nothing here enforces
// that, matching the rest of this word's try/unlock protocol.
func explicitlyMarkPageUnmodifiedUnderExclusiveLock(word *uint64) {
	for {
		w := atomic.LoadUint64(word)
		nw := w &^ lockModifiedBit
		if atomic.CompareAndSwapUint64(word, w, nw) {
			return
		}
	}
}
