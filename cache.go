// Package tempuscache is a small key-value front door built directly on
// top of the LRU crawler's own storage layer (internal/slab,
// internal/htable): every Set/Get/Delete exercises exactly the chains,
// hash index, and refcount contract the crawler sweeps in the
// background, instead of keeping a second, parallel bookkeeping
// structure the crawler would never see.
package tempuscache

import (
	"sync"
	"time"

	"github.com/dolfly/memcached/internal/conn"
	"github.com/dolfly/memcached/internal/htable"
	"github.com/dolfly/memcached/internal/lru"
	"github.com/dolfly/memcached/internal/slab"
	"github.com/dolfly/memcached/internal/store/extstore"
	"go.uber.org/zap"
)

// defaultClassID is the single slab class this front door keeps all of
// its keys in. The crawler itself supports many classes (one per the
// wire protocol's numeric slab id); a generic Cache has no reason to
// split keys across them.
const defaultClassID = 1

// Cache implements a thread-safe, in-memory key-value store with:
//
//   - Per-key TTL (second-granularity, matching the crawler's own
//     relative-time representation)
//   - LRU eviction under a configurable capacity
//   - Active expiration via a background AUTOEXPIRE crawl, and lazy
//     expiration on Get
//   - Runtime hit/miss/eviction statistics
//
// Storage itself lives in the slab class chain and the hash index;
// Cache only adds the request-path API and the capacity/stat
// bookkeeping a raw crawler has no opinion about.
type Cache struct {
	classes *slab.Classes
	ht      *htable.Table
	ctrl    *lru.Controller
	classID uint16

	maxEntries int
	interval   time.Duration
	stopChan   chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

type noopServer struct{}

func (noopServer) SidethreadConnClose(*conn.Conn) {}
func (noopServer) RedispatchConn(*conn.Conn)      {}

// New initializes and returns a configured Cache instance, starting both
// the crawler worker and (if an interval is configured) the background
// AUTOEXPIRE ticker.
func New(opts ...Option) *Cache {
	classes := slab.NewClasses()
	ht := htable.New()
	ext := extstore.New()

	c := &Cache{
		classes:  classes,
		ht:       ht,
		classID:  defaultClassID,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.ctrl = lru.New(classes, ht, ext, noopServer{}, nil, zap.NewNop().Sugar(),
		lru.SleepPolicy{PerSleep: 1000}, time.Now())
	c.ctrl.StartWorker()
	c.startAutoexpire()

	return c
}

// Set inserts or updates a key. ttl <= 0 means the item never expires.
// An existing key has its value and expiration replaced in place and is
// moved to the head of the LRU chain; a new key triggers capacity
// eviction first if the class is full.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	class := c.classes.Class(c.classID)
	hv := htable.HashKey(key)

	class.Mu.Lock()
	if it, ok := c.ht.Find(hv, key); ok {
		it.Value = value
		it.Exptime = c.expiryFor(ttl)
		class.Touch(it)
		class.Mu.Unlock()
		return
	}

	live := class.Len()
	if c.classes.Sentinel(c.classID).Active {
		live-- // a crawl's sentinel is linked in the chain but holds no entry
	}
	if c.maxEntries > 0 && live >= c.maxEntries {
		c.evictOldestLocked(class)
	}

	it := &slab.Item{
		Key:     key,
		Value:   value,
		Exptime: c.expiryFor(ttl),
		ClassID: uint8(c.classID),
	}
	it.RefcountIncr() // baseline hold every live, indexed item carries
	class.LinkHead(it)
	class.Mu.Unlock()

	c.ht.Insert(hv, it)
}

// expiryFor converts a TTL into the crawler's relative-seconds Exptime.
// Sub-second TTLs round up to one second rather than collapsing to the
// Exptime==0 "never expires" sentinel.
func (c *Cache) expiryFor(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 || secs == 0 {
		secs++
	}
	return c.ctrl.RelNow() + secs
}

// Get retrieves a value. It participates in the same refcount contract
// the crawler's scanner uses: bumping an item from its baseline 1 to 2
// claims it, so a concurrent crawl pass mid-inspection of the same item
// (refcount already at 2) is treated as a transient miss rather than a
// race on shared state.
func (c *Cache) Get(key string) (interface{}, bool) {
	hv := htable.HashKey(key)
	it, ok := c.ht.Find(hv, key)
	if !ok {
		c.recordMiss()
		return nil, false
	}

	if it.RefcountIncr() != 2 {
		it.RefcountDecr()
		c.recordMiss()
		return nil, false
	}
	defer it.RefcountDecr()

	class := c.classes.Class(c.classID)
	class.Mu.Lock()
	if it.Expired(c.ctrl.RelNow()) {
		class.Unlink(it)
		class.Mu.Unlock()
		c.ht.Remove(hv, key)
		c.recordMiss()
		c.recordReclaim()
		return nil, false
	}

	class.Touch(it)
	it.StateFlags |= slab.FlagFetched
	value := it.Value
	class.Mu.Unlock()

	c.recordHit()
	return value, true
}

// Delete removes a key, if present. Missing keys are silently ignored.
func (c *Cache) Delete(key string) {
	hv := htable.HashKey(key)
	it, ok := c.ht.Find(hv, key)
	if !ok {
		return
	}

	class := c.classes.Class(c.classID)
	class.Mu.Lock()
	class.Unlink(it)
	class.Mu.Unlock()
	c.ht.Remove(hv, key)
}

// Stats returns a snapshot of the cache's hit/miss/eviction counters.
func (c *Cache) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *Cache) recordHit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
}

func (c *Cache) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}

func (c *Cache) recordEviction() {
	c.statsMu.Lock()
	c.stats.Evictions++
	c.statsMu.Unlock()
}

// recordReclaim tallies a key Get() found past its TTL and removed on the
// spot, as distinct from Evictions (capacity pressure, not expiry).
func (c *Cache) recordReclaim() {
	c.statsMu.Lock()
	c.stats.Reclaims++
	c.statsMu.Unlock()
}
