package tempuscache

/*
Stats represents runtime performance metrics of the cache.

================================================================================
PURPOSE
================================================================================

This structure tracks key operational indicators:

- Hits      → Successful retrievals (valid key found)
- Misses    → Failed lookups (missing or expired key)
- Evictions → Entries removed to make room under WithMaxEntries
- Reclaims  → Entries Get() found past their TTL and removed on the spot

Evictions and Reclaims are deliberately separate counters: one is
capacity pressure (a live, unexpired key lost its spot), the other is
lazy expiration (a dead key finally got noticed). A cache that's all
Reclaims and no Evictions has a TTL problem, not a sizing problem — and
the reverse is true too.

Note what's deliberately absent here: items the background AUTOEXPIRE
crawl reaps never touch these counters. That crawl keeps its own
per-class tallies (internal/lru.ExpiredStats) under the crawler's own
lock, scoped to a single crawl pass rather than the cache's lifetime;
merging the two would mean reading crawler-internal state from outside
the crawler's lock ordering (spec.md §5's hierarchy puts the stats mutex
below the class lock, not above it).

================================================================================
OBSERVABILITY VALUE
================================================================================

Tracking cache statistics enables:

- Cache hit ratio analysis
- Performance tuning
- Capacity planning
- Debugging production behavior
- Evaluating TTL configuration effectiveness

For example:

    hit_ratio = Hits / (Hits + Misses)

================================================================================
CONCURRENCY MODEL
================================================================================

Stats fields are modified only while Cache.statsMu is held (a plain
sync.Mutex, not an RWMutex — reads are cheap snapshots, not long enough
to be worth a separate read path). Stats() returns a copy taken under
that same lock, so callers never observe a torn read.

================================================================================
DESIGN SIMPLICITY
================================================================================

The struct is intentionally minimal:

- No internal locking
- No atomic counters
- Synchronization handled at Cache level

This keeps the data structure lightweight
and avoids unnecessary complexity.
*/

type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Reclaims  uint64
}
