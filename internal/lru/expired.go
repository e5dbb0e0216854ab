package lru

import (
	"runtime"
	"sync"
	"time"

	"github.com/dolfly/memcached/internal/slab"
)

// ClassStats is the per-class record an expired-mode crawl accumulates,
// per spec.md §4.3.
type ClassStats struct {
	StartTime   time.Time
	EndTime     time.Time
	RunComplete bool
	Seen        uint64
	Reclaimed   uint64
	NoExp       uint64
	TTLHourPlus uint64
	Histo       [61]uint64
}

// GlobalExpiredStats is the whole-crawl record.
type GlobalExpiredStats struct {
	StartTime     time.Time
	EndTime       time.Time
	CrawlComplete bool
	IsExternal    bool
}

// ExpiredStats is the (possibly externally supplied) stats block an
// expired-mode crawl writes into. Safe for concurrent reads via
// Snapshot while a crawl is running.
type ExpiredStats struct {
	mu      sync.Mutex
	Classes [slab.MaxClasses]ClassStats
	Global  GlobalExpiredStats
}

// Snapshot returns a copy of the stats block, safe to read without racing
// an in-progress crawl.
func (s *ExpiredStats) Snapshot() ExpiredStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s
	cp.mu = sync.Mutex{}
	return cp
}

// flushChecker reports whether an item counts as flushed: touched before
// the currently armed flush epoch. A zero epoch means no flush is armed.
type flushChecker interface {
	FlushEpoch() int64
}

// ExpiredMode reaps expired, flushed, or invalid (external-tier) items
// and tracks a per-class TTL histogram for everything it leaves alone.
// Both AUTOEXPIRE and EXPIRED crawl types use this mode (spec.md §4.2).
type ExpiredMode struct {
	stats    *ExpiredStats
	internal bool
	flush    flushChecker
}

// NewExpiredMode constructs an expired-mode instance. Init supplies (or
// withholds) an external stats block.
func NewExpiredMode() *ExpiredMode {
	return &ExpiredMode{}
}

// SetFlushChecker wires the global flush-epoch source. Optional — a nil
// checker means "flush is never active", which is the only sane default
// for a crawler built without a full flush_all implementation behind it.
func (m *ExpiredMode) SetFlushChecker(f flushChecker) {
	m.flush = f
}

func (m *ExpiredMode) Init(data interface{}) error {
	now := time.Now()
	if ext, ok := data.(*ExpiredStats); ok && ext != nil {
		m.stats = ext
		m.internal = false
	} else {
		m.stats = &ExpiredStats{}
		m.internal = true
	}

	m.stats.mu.Lock()
	for i := range m.stats.Classes {
		m.stats.Classes[i] = ClassStats{StartTime: now}
	}
	m.stats.Global = GlobalExpiredStats{StartTime: now, IsExternal: !m.internal}
	m.stats.mu.Unlock()
	return nil
}

// Stats exposes the block in use, for callers that want to read live
// progress or the final tallies (scenario (a) in spec.md §8 reads this).
func (m *ExpiredMode) Stats() *ExpiredStats {
	return m.stats
}

func (m *ExpiredMode) NeedsLock() bool   { return true }
func (m *ExpiredMode) NeedsClient() bool { return false }

func (m *ExpiredMode) Eval(ctx *EvalCtx) {
	if ctx.Sentinel == nil {
		// spec.md §9 open question 1: the hash walker can't supply a
		// meaningful class id, so EXPIRED must never run over it.
		// Controller.Start enforces this; Eval defends in depth.
		panic("lru: expired mode invoked without a class/sentinel context")
	}

	m.stats.mu.Lock()
	cs := &m.stats.Classes[int(ctx.ClassID)%slab.MaxClasses]

	isFlushed := m.flush != nil && m.flush.FlushEpoch() > 0 && ctx.Item.LastAccess < m.flush.FlushEpoch()

	invalid := false
	if ctx.Item.HasFlag(slab.FlagHeader) && ctx.ExtStore != nil {
		if err := ctx.ExtStore.Validate(ctx.Item); err != nil {
			invalid = true
		}
	}

	if ctx.Item.Expired(ctx.Now) || isFlushed || invalid {
		ctx.Sentinel.Reclaimed++
		cs.Reclaimed++
		if !ctx.Item.HasFlag(slab.FlagFetched) && !isFlushed {
			ctx.Sentinel.Unfetched++
		}
		if ctx.Item.HasFlag(slab.FlagHeader) && ctx.ExtStore != nil {
			_ = ctx.ExtStore.Delete(ctx.Item)
		}
		ctx.Class.Unlink(ctx.Item)
		// The scanner holds this item's bucket lock and Remove takes it
		// itself, so hand it over for the removal and take it back before
		// returning (the scanner unlocks it after Eval).
		ctx.HTable.UnlockBucket(ctx.HV)
		ctx.HTable.Remove(ctx.HV, ctx.Item.Key)
		for !ctx.HTable.TryLockBucket(ctx.HV) {
			runtime.Gosched()
		}
		ctx.Item.RefcountDecr()
		m.stats.mu.Unlock()
		if ctx.Metrics != nil {
			ctx.Metrics.ItemsReclaimed.WithLabelValues(classLabel(ctx.ClassID)).Inc()
		}
		return
	}

	cs.Seen++
	remaining := ctx.Item.Exptime - ctx.Now
	switch {
	case ctx.Item.Exptime == 0:
		cs.NoExp++
	case remaining > 3599:
		cs.TTLHourPlus++
	default:
		idx := remaining / 60
		if idx > 60 {
			idx = 60
		}
		if idx < 0 {
			idx = 0
		}
		cs.Histo[idx]++
	}
	m.stats.mu.Unlock()

	ctx.Item.RefcountDecr()
	if ctx.Metrics != nil && ctx.Item.Exptime != 0 {
		ctx.Metrics.TTLHistogram.WithLabelValues(classLabel(ctx.ClassID)).Observe(float64(remaining))
	}
}

func (m *ExpiredMode) DoneClass(classID uint16) {
	m.stats.mu.Lock()
	cs := &m.stats.Classes[int(classID)%slab.MaxClasses]
	cs.EndTime = time.Now()
	cs.RunComplete = true
	m.stats.mu.Unlock()
}

func (m *ExpiredMode) Finalize() {
	m.stats.mu.Lock()
	m.stats.Global.EndTime = time.Now()
	m.stats.Global.CrawlComplete = true
	internal := m.internal
	m.stats.mu.Unlock()
	if internal {
		m.stats = nil
	}
}

func classLabel(id uint16) string {
	return itoa(int(id))
}
