package tempuscache

import (
	"strconv"
	"testing"
	"time"
)

/*
benchmark_test.go measures the request-path cost of running Set/Get
directly over the crawler's own storage layer (internal/slab's chains,
internal/htable's sharded index) instead of a private map+list.

WHAT THESE BENCHMARKS REPRESENT

- BenchmarkSet: repeated overwrite of one key — the chain-touch and
  hash-index-insert path, with no eviction pressure.
- BenchmarkSetUniqueKeys: growth path — every Set is a fresh insert,
  exercising htable.Insert's bucket-mutex contention and Class.LinkHead
  instead of the single-key touch path above.
- BenchmarkGetHit / BenchmarkGetMiss: the refcount-claim dance Get()
  shares with the crawler's own scanner (bump 1->2, check, release).
- BenchmarkGetWithEviction: Set under a small WithMaxEntries cap, so
  every insert also walks Class.Back() past any linked crawler sentinel
  to find the real LRU tail to evict — the cost eviction.go's
  sentinel-skipping walk adds on top of a bare insert.

HOW GO BENCHMARKS WORK

The testing framework dynamically determines b.N, the number of
iterations required to produce stable timing. Run with
`-bench=. -benchmem` for allocation counts alongside ns/op.
*/

func BenchmarkSet(b *testing.B) {
	cache := New()
	defer cache.Stop()

	for i := 0; i < b.N; i++ {
		cache.Set("key", "value", 5*time.Second)
	}
}

func BenchmarkSetUniqueKeys(b *testing.B) {
	cache := New()
	defer cache.Stop()

	keys := make([]string, b.N)
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Set(keys[i], i, 5*time.Second)
	}
}

func BenchmarkGetHit(b *testing.B) {
	cache := New()
	defer cache.Stop()
	cache.Set("key", "value", 5*time.Second)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Get("key")
	}
}

func BenchmarkGetMiss(b *testing.B) {
	cache := New()
	defer cache.Stop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Get("absent-key")
	}
}

func BenchmarkGetWithEviction(b *testing.B) {
	cache := New(WithMaxEntries(64))
	defer cache.Stop()

	keys := make([]string, b.N)
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Set(keys[i], i, 5*time.Second)
		cache.Get(keys[i])
	}
}
