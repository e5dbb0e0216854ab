// Package lru implements tempuscache's background sweeper: the crawler
// that walks per-class LRU chains and the hash table off the request
// path to reap expired items and stream key dumps to a connected client.
package lru

import (
	"errors"
	"sync"
	"time"

	"github.com/dolfly/memcached/internal/conn"
	"github.com/dolfly/memcached/internal/htable"
	"github.com/dolfly/memcached/internal/metrics"
	"github.com/dolfly/memcached/internal/slab"
	"github.com/dolfly/memcached/internal/store/extstore"
	"go.uber.org/zap"
)

// Result mirrors spec.md §6's result enum for Controller.Start.
type Result int

const (
	OK Result = iota
	Running
	BadClass
	NotStarted
	Error
)

func (r Result) String() string {
	switch r {
	case OK:
		return "OK"
	case Running:
		return "RUNNING"
	case BadClass:
		return "BADCLASS"
	case NotStarted:
		return "NOTSTARTED"
	default:
		return "ERROR"
	}
}

// HashWalk is the sentinel activeClasses value meaning "a hash-table walk
// is in progress", per spec.md §3.
const HashWalk = -1

const autoexpireSuppressWindow = 60 * time.Second

// StartArgs bundles Controller.Start's arguments (spec.md §4.8).
type StartArgs struct {
	// ClassIDs is the set of concrete (expanded) class ids to crawl, or
	// nil for a hash-table walk (valid only for METADUMP/MGDUMP).
	ClassIDs []uint16
	Remaining uint64
	Type      CrawlType
	InitData  interface{}
	Conn      *conn.Conn // required iff the mode needs a client
}

// Controller owns the single process-wide active-crawl state and the
// worker goroutine that drives it, per spec.md §3/§4.8.
type Controller struct {
	mu   sync.Mutex
	cond *sync.Cond

	classes  *slab.Classes
	htable   *htable.Table
	extstore *extstore.Store
	server   conn.Server
	metrics  *metrics.Crawler
	log      *zap.SugaredLogger

	processStart time.Time
	sleepCfg     SleepPolicy

	flushEpoch int64 // relative seconds; 0 = no flush armed

	// --- worker lifecycle ---
	workerRunning bool
	parked        bool
	stopRequested bool

	// --- active crawl state, mutated by the worker once a crawl is
	// running, mutated by Start/StartClass only while idle ---
	mode          Mode
	crawlType     CrawlType
	activeClasses int // count of linked sentinels, or HashWalk
	sink          Sink
	running       bool

	autoexpireSuppressUntil time.Time
}

// SleepPolicy captures spec.md §5's suspension knobs.
type SleepPolicy struct {
	SleepEvery time.Duration // settings.lru_crawler_sleep
	PerSleep   int           // settings.crawls_persleep
}

// New constructs a Controller. The worker goroutine is not started until
// StartWorker is called.
func New(classes *slab.Classes, ht *htable.Table, ext *extstore.Store, server conn.Server, m *metrics.Crawler, log *zap.SugaredLogger, sleep SleepPolicy, processStart time.Time) *Controller {
	c := &Controller{
		classes:      classes,
		htable:       ht,
		extstore:     ext,
		server:       server,
		metrics:      m,
		log:          log,
		sleepCfg:     sleep,
		processStart: processStart,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// FlushEpoch implements flushChecker for the dump/expired modes.
func (c *Controller) FlushEpoch() int64 {
	return c.flushEpoch
}

// ArmFlush sets the global flush epoch (relative seconds); items last
// touched before it are considered flushed.
func (c *Controller) ArmFlush(epoch int64) {
	c.mu.Lock()
	c.flushEpoch = epoch
	c.mu.Unlock()
}

// Running reports whether a crawl is currently in progress.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Pause freezes the crawler by taking its mutex, per spec.md §4.8. Resume
// releases it. Both are simple passthroughs to c.mu, used by external
// code that needs a consistent view across classes momentarily.
func (c *Controller) Pause()  { c.mu.Lock() }
func (c *Controller) Resume() { c.mu.Unlock() }

// relNow returns the current time as seconds since process start.
func (c *Controller) relNow() int64 {
	return int64(time.Since(c.processStart).Seconds())
}

// RelNow exposes the crawler's time base to callers outside this package
// that need to stamp an Item's Exptime/LastAccess consistently with what
// Eval will see (e.g. a host cache's own Set/Get path).
func (c *Controller) RelNow() int64 {
	return c.relNow()
}

var errNotRunning = errors.New("lru: crawler worker is not running")

// StartWorker launches the crawler worker goroutine if it isn't already
// running, and blocks until the worker is parked on its condition
// variable — the handshake spec.md §4.8 requires so callers never race
// a Start() against a worker that hasn't reached its wait yet.
func (c *Controller) StartWorker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.workerRunning {
		return
	}
	c.stopRequested = false
	c.parked = false
	go c.workerLoop()
	for !c.parked {
		c.cond.Wait()
	}
}

// StopWorker requests the worker to exit, and (if join is true) blocks
// until it has actually stopped. A crawl in flight is cut short at its
// next item (or hash step): its remaining classes are marked done, the
// mode is finalized, and the client (if any) is released before the
// worker exits.
func (c *Controller) StopWorker(join bool) {
	c.mu.Lock()
	c.stopRequested = true
	c.cond.Broadcast()
	if join {
		for c.workerRunning {
			c.cond.Wait()
		}
	}
	c.mu.Unlock()
}

// Start begins a new crawl. Must be called with no lock held.
func (c *Controller) Start(args StartArgs) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.workerRunning {
		return NotStarted
	}

	if c.running {
		if c.crawlType == AutoExpire && args.Type == AutoExpire {
			c.autoexpireSuppressUntil = time.Now().Add(autoexpireSuppressWindow)
			return Running
		}
		return Running
	}

	if args.Type == AutoExpire && time.Now().Before(c.autoexpireSuppressUntil) {
		return Running
	}

	if args.ClassIDs == nil && args.Type != Metadump && args.Type != Mgdump {
		return Error
	}
	if args.ClassIDs == nil && args.Type == Expired {
		// spec.md §9 open question 1: EXPIRED must never run as a hash
		// walk (hv/class would be meaningless to it).
		return Error
	}

	// Validate the slab id grammar before anything else runs (mode init,
	// client attach) commits any state — a malformed id must always come
	// back BADCLASS, never be shadowed by some later, unrelated failure.
	for _, id := range args.ClassIDs {
		if !validClassID(id) {
			return BadClass
		}
	}

	newMode := registry[args.Type]()
	if err := newMode.Init(args.InitData); err != nil {
		return Error
	}
	if fc, ok := newMode.(interface{ SetFlushChecker(flushChecker) }); ok {
		fc.SetFlushChecker(c)
	}
	if md, ok := newMode.(*MetadumpMode); ok {
		md.SetProcessStart(c.processStart.Unix())
	}

	if newMode.NeedsClient() {
		// spec.md §9 open question 2: sfd==0 is treated as "no fd" even
		// though 0 is a valid descriptor; tempuscache preserves that
		// quirk for compatibility with existing callers (see conn.Conn).
		if args.Conn == nil || args.Conn.Fd == 0 {
			return Error
		}
		if err := c.sink.Attach(args.Conn, c.server); err != nil {
			return Error
		}
	}

	started := 0
	if args.ClassIDs == nil {
		c.activeClasses = HashWalk
		started = 1
	} else {
		for _, id := range args.ClassIDs {
			c.startClass(id, args.Remaining)
			started++
		}
	}

	if started == 0 {
		return NotStarted
	}

	c.mode = newMode
	c.crawlType = args.Type
	c.running = true
	if c.metrics != nil {
		c.metrics.RunsTotal.WithLabelValues(args.Type.String()).Inc()
	}
	c.log.Infow("crawl started", "type", args.Type.String(), "classes", args.ClassIDs)
	c.cond.Broadcast()
	return OK
}

// validClassID reports whether id fits the wire grammar's class-id layout
// (spec.md §6): a base slab id in the low ClassBits bits, optionally OR'd
// with sub-LRU selector bits (any combination of them passes; slab.Expand
// itself only ever sets one). Anything with bits set outside
// that range (e.g. a garbage id a malformed client sent directly, instead
// of one command.parseSlabs produced via slab.Expand) is BADCLASS. Note
// that the base id being 0 is deliberately allowed here — class 0 is a
// valid array slot used internally (e.g. by tests driving Start
// directly); rejecting slab id 0 from the wire grammar is
// command.parseSlabs's job, not this defense-in-depth check's.
func validClassID(id uint16) bool {
	const validBits = uint16(slab.ClassMask | slab.AllSubLRUs)
	return id&^validBits == 0
}

// startClass links a class's sentinel at the tail of its chain and bumps
// activeClasses. Caller holds c.mu.
func (c *Controller) startClass(id uint16, remaining uint64) {
	class := c.classes.Class(id)
	sentinel := c.classes.Sentinel(id)

	class.Mu.Lock()
	defer class.Mu.Unlock()

	if sentinel.Active {
		return
	}
	r := remaining
	if r == slab.CapRemaining {
		r = uint64(class.Len())
	}
	sentinel.Reset(r)
	class.LinktailQ(sentinel)
	if c.activeClasses == HashWalk {
		c.activeClasses = 0
	}
	c.activeClasses++
}
