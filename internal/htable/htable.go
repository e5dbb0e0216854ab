// Package htable implements the sharded hash table the crawler's Hash
// Scanner walks. Storage lives in the per-class LRU chains (internal/slab);
// this package only indexes keys to items and owns the bucket locks the
// scanner trylocks, plus the blocking iterator contract spec.md §6 calls
// "hash iterator".
package htable

import (
	"errors"
	"hash/fnv"
	"sync"

	"github.com/dolfly/memcached/internal/slab"
)

// ErrExpanding is returned by GetIterator when the table cannot hand out a
// stable view because it is mid-rehash. The crawler maps this onto mode
// status=1 ("locked").
var ErrExpanding = errors.New("htable: table is expanding, try again later")

const bucketCount = 64

type bucket struct {
	mu    sync.Mutex
	items map[string]*slab.Item
}

// Table is the sharded hash index.
type Table struct {
	buckets [bucketCount]*bucket

	expandMu  sync.Mutex
	expanding bool
}

// New allocates a table with a fixed bucket count. tempuscache doesn't
// need real incremental rehashing to exercise the crawler's contract, so
// growth is simulated only through SetExpanding for tests that need to
// exercise the "locked" path deterministically.
func New() *Table {
	t := &Table{}
	for i := range t.buckets {
		t.buckets[i] = &bucket{items: make(map[string]*slab.Item)}
	}
	return t
}

// HashKey computes the 32-bit FNV-1a hash of a key; the table reduces it
// to a bucket index modulo its bucket count.
func HashKey(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}

func (t *Table) bucketFor(hv uint32) *bucket {
	return t.buckets[hv%bucketCount]
}

// Insert adds or replaces the index entry for an item. Caller has already
// linked the item into its slab class chain.
func (t *Table) Insert(hv uint32, it *slab.Item) {
	b := t.bucketFor(hv)
	b.mu.Lock()
	b.items[it.Key] = it
	b.mu.Unlock()
}

// Remove deletes the index entry for a key.
func (t *Table) Remove(hv uint32, key string) {
	b := t.bucketFor(hv)
	b.mu.Lock()
	delete(b.items, key)
	b.mu.Unlock()
}

// Find looks up a key, returning its item if present.
func (t *Table) Find(hv uint32, key string) (*slab.Item, bool) {
	b := t.bucketFor(hv)
	b.mu.Lock()
	defer b.mu.Unlock()
	it, ok := b.items[key]
	return it, ok
}

// TryLockBucket attempts a non-blocking lock of the bucket owning hv, the
// contract the Per-Class Scanner relies on in spec.md §4.6 step 5.
func (t *Table) TryLockBucket(hv uint32) bool {
	return t.bucketFor(hv).mu.TryLock()
}

// UnlockBucket releases a bucket lock acquired via TryLockBucket.
func (t *Table) UnlockBucket(hv uint32) {
	t.bucketFor(hv).mu.Unlock()
}

// SetExpanding forces GetIterator to fail with ErrExpanding until cleared.
// Exists so tests can deterministically exercise scenario (c) in
// spec.md §8 without driving a real rehash.
func (t *Table) SetExpanding(v bool) {
	t.expandMu.Lock()
	t.expanding = v
	t.expandMu.Unlock()
}

// Iterator walks every item in the table bucket by bucket. Each step
// either returns an item with its bucket locked (caller must eventually
// move on, which unlocks it), or signals "between buckets" so the caller
// can flush/sleep without holding any bucket lock.
type Iterator struct {
	t         *Table
	bucketIdx int
	itemIdx   int
	keys      []string
	locked    bool
}

// GetIterator blocks are unnecessary here since expansion is simulated
// rather than actually concurrent; it still returns ErrExpanding so
// callers exercise the same control flow as a real blocking acquire.
func (t *Table) GetIterator() (*Iterator, error) {
	t.expandMu.Lock()
	expanding := t.expanding
	t.expandMu.Unlock()
	if expanding {
		return nil, ErrExpanding
	}
	return &Iterator{t: t, bucketIdx: -1}, nil
}

// Iterate advances the iterator by one step. Return shape:
//   - item != nil: the bucket owning item is locked; caller must release
//     it (by calling Iterate again or IterateFinal).
//   - item == nil, done == false: "between buckets" — no lock held.
//   - done == true: iteration is complete, all locks released.
func (it *Iterator) Iterate() (item *slab.Item, done bool) {
	if it.locked {
		it.t.bucketFor(it.currentHash()).mu.Unlock()
		it.locked = false
	}

	for {
		if it.keys == nil || it.itemIdx >= len(it.keys) {
			it.bucketIdx++
			if it.bucketIdx >= bucketCount {
				return nil, true
			}
			b := it.t.buckets[it.bucketIdx]
			b.mu.Lock()
			it.keys = make([]string, 0, len(b.items))
			for k := range b.items {
				it.keys = append(it.keys, k)
			}
			b.mu.Unlock()
			it.itemIdx = 0
			if len(it.keys) == 0 {
				continue // between buckets: nothing here, try next
			}
			return nil, false // between buckets: let caller flush/sleep first
		}

		b := it.t.buckets[it.bucketIdx]
		b.mu.Lock()
		key := it.keys[it.itemIdx]
		it.itemIdx++
		found, ok := b.items[key]
		if !ok {
			b.mu.Unlock()
			continue
		}
		it.locked = true
		return found, false
	}
}

func (it *Iterator) currentHash() uint32 {
	return HashKey(it.keys[it.itemIdx-1])
}

// IterateFinal releases the iterator's held bucket lock (if any).
// Mandatory to call or the corresponding bucket stays locked.
func (it *Iterator) IterateFinal() {
	if it.locked {
		it.t.bucketFor(it.currentHash()).mu.Unlock()
		it.locked = false
	}
}
