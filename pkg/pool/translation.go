package pool

import (
	"encoding/binary"
	"hash/fnv"
	"sync"

	"pagecache/pkg/pagecache"
)

// translationTable is a sharded map from Key to pagecache.PageRef. Sharding
// by an FNV hash of the key, rather than one global mutex, keeps lookup and
// insert/remove contention spread across the bucket count instead of
// serializing every pin in the cache.
type translationTable struct {
	buckets []*ttBucket
}

type ttBucket struct {
	mu    sync.RWMutex
	items map[Key]pagecache.PageRef
}

func newTranslationTable(bucketCount int) *translationTable {
	if bucketCount <= 0 {
		bucketCount = 1
	}
	t := &translationTable{buckets: make([]*ttBucket, bucketCount)}
	for i := range t.buckets {
		t.buckets[i] = &ttBucket{items: make(map[Key]pagecache.PageRef)}
	}
	return t
}

func (t *translationTable) bucketFor(key Key) *ttBucket {
	h := fnv.New64a()
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], key.SwapperID)
	binary.LittleEndian.PutUint64(buf[4:12], key.FilePageID)
	h.Write(buf[:])
	return t.buckets[h.Sum64()%uint64(len(t.buckets))]
}

func (t *translationTable) lookup(key Key) (pagecache.PageRef, bool) {
	b := t.bucketFor(key)
	b.mu.RLock()
	defer b.mu.RUnlock()
	ref, ok := b.items[key]
	return ref, ok
}

func (t *translationTable) insert(key Key, ref pagecache.PageRef) {
	b := t.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[key] = ref
}

func (t *translationTable) remove(key Key) {
	b := t.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.items, key)
}

// getOrFault returns the ref already bound to key, or, on a miss, holds the
// bucket's write lock across a call to fault so that two concurrent misses
// for the same key can never both proceed to fault it into two different
// slots - the second one simply finds the first one's result once it gets
// the lock. This serializes unrelated keys that happen to hash to the same
// bucket too; for the bucket counts this pool uses that is an acceptable
// trade against the alternative of a per-key singleflight structure.
func (t *translationTable) getOrFault(key Key, fault func() (pagecache.PageRef, error)) (pagecache.PageRef, error) {
	b := t.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	if ref, ok := b.items[key]; ok {
		return ref, nil
	}
	ref, err := fault()
	if err != nil {
		return 0, err
	}
	b.items[key] = ref
	return ref, nil
}
