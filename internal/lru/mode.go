package lru

import (
	"github.com/dolfly/memcached/internal/htable"
	"github.com/dolfly/memcached/internal/metrics"
	"github.com/dolfly/memcached/internal/slab"
	"github.com/dolfly/memcached/internal/store/extstore"
)

// CrawlType is the wire-protocol mode-selection tag from spec.md §6.
type CrawlType int

const (
	AutoExpire CrawlType = iota
	Expired
	Metadump
	Mgdump
)

func (t CrawlType) String() string {
	switch t {
	case AutoExpire:
		return "autoexpire"
	case Expired:
		return "expired"
	case Metadump:
		return "metadump"
	case Mgdump:
		return "mgdump"
	default:
		return "unknown"
	}
}

// EvalCtx is everything a mode's Eval needs about the item it has been
// handed. The scanner fills it in and has already satisfied the mode's
// NeedsLock/NeedsClient declarations before calling Eval.
type EvalCtx struct {
	Item     *slab.Item
	HV       uint32
	ClassID  uint16
	Sentinel *slab.Sentinel // nil during a hash walk (see spec.md §9 open question 1)
	Class    *slab.Class    // nil during a hash walk
	HTable   *htable.Table
	Sink     *Sink
	ExtStore *extstore.Store
	Metrics  *metrics.Crawler // may be nil (e.g. in unit tests)
	Now      int64            // relative seconds since process start
}

// Mode is the pluggable crawl strategy spec.md §4.2 describes as a
// 6-tuple. The set of modes is closed (four type tags), so this is a
// plain interface rather than an indirect function-pointer table.
type Mode interface {
	// Init prepares mode-specific state for a fresh crawl. data is
	// whatever the caller passed as mode-init data to Controller.Start.
	Init(data interface{}) error
	// Eval processes one candidate item. The caller guarantees the
	// item's refcount is >=2 on entry; Eval owns releasing the scanner's
	// reference (and unlinking the item if it reaps it).
	Eval(ctx *EvalCtx)
	// DoneClass runs once a class's sentinel reaches the head.
	DoneClass(classID uint16)
	// Finalize runs once every selected class (or the hash walk) is
	// exhausted.
	Finalize()
	// NeedsLock declares whether Eval expects the class lock held across
	// the call.
	NeedsLock() bool
	// NeedsClient declares whether a Sink must be attached before this
	// mode can run.
	NeedsClient() bool
}

// noopLifecycle can be embedded by modes that don't need DoneClass.
type noopLifecycle struct{}

func (noopLifecycle) DoneClass(uint16) {}

// registry maps each crawl type to a fresh Mode instance. AUTOEXPIRE and
// EXPIRED share the same underlying mode — only the crawl type tag
// differs, which the Controller uses for autoexpire suppression and
// stats labeling.
var registry = map[CrawlType]func() Mode{
	AutoExpire: func() Mode { return NewExpiredMode() },
	Expired:    func() Mode { return NewExpiredMode() },
	Metadump:   func() Mode { return NewMetadumpMode() },
	Mgdump:     func() Mode { return NewKeydumpMode() },
}
