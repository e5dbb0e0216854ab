package lru

import (
	"github.com/dolfly/memcached/internal/slab"
)

// MetadumpMode emits one verbose key-metadata line per live item,
// spec.md §4.4.
type MetadumpMode struct {
	noopLifecycle
	processStart int64 // unix seconds the host process started
	locked       bool  // set when the hash iterator could not be acquired
	flush        flushChecker
}

// NewMetadumpMode constructs a metadump-mode instance.
func NewMetadumpMode() *MetadumpMode {
	return &MetadumpMode{}
}

// SetFlushChecker mirrors ExpiredMode.SetFlushChecker.
func (m *MetadumpMode) SetFlushChecker(f flushChecker) { m.flush = f }

// SetProcessStart configures the absolute-time base used to convert the
// item's process-relative exp/la fields for the wire line.
func (m *MetadumpMode) SetProcessStart(unixSeconds int64) { m.processStart = unixSeconds }

// Locked reports whether this crawl's finalize must emit the "locked, try
// again" terminator instead of END.
func (m *MetadumpMode) Locked() bool { return m.locked }

// MarkLocked is called by the Hash Scanner when GetIterator fails.
func (m *MetadumpMode) MarkLocked() { m.locked = true }

func (m *MetadumpMode) Init(interface{}) error { return nil }
func (m *MetadumpMode) NeedsLock() bool        { return false }
func (m *MetadumpMode) NeedsClient() bool      { return true }

func (m *MetadumpMode) Eval(ctx *EvalCtx) {
	isFlushed := m.flush != nil && m.flush.FlushEpoch() > 0 && ctx.Item.LastAccess < m.flush.FlushEpoch()
	invalid := false
	if ctx.Item.HasFlag(slab.FlagHeader) && ctx.ExtStore != nil {
		if err := ctx.ExtStore.Validate(ctx.Item); err != nil {
			invalid = true
		}
	}
	if ctx.Item.Expired(ctx.Now) || isFlushed || invalid {
		ctx.Item.RefcountDecr()
		return
	}

	line := formatMetadumpLine(ctx.Item, m.processStart)
	ctx.Sink.Append([]byte(line))
	ctx.Item.RefcountDecr()
}

func formatMetadumpLine(it *slab.Item, processStart int64) string {
	exp := "-1"
	if it.Exptime != 0 {
		exp = i64toa(it.Exptime + processStart)
	}
	la := i64toa(it.LastAccess + processStart)
	fetch := "no"
	if it.HasFlag(slab.FlagFetched) {
		fetch = "yes"
	}

	line := "key=" + uriEncodeKey(it.Key) +
		" exp=" + exp +
		" la=" + la +
		" cas=" + u64toa(it.CAS) +
		" fetch=" + fetch +
		" cls=" + itoa(int(it.ClassID)) +
		" size=" + u64toa(it.Size) +
		" flags=" + u64toa(uint64(it.Flags))

	if it.HasFlag(slab.FlagHeader) {
		line += " ext_page=" + itoa(int(it.ExtPage)) + " ext_offset=" + itoa(int(it.ExtOffset))
	}
	return line + "\n"
}

// Finalize does nothing for this mode. The terminator (ERROR locked try
// again later, or END) is appended by AppendTerminator, which the
// worker's runCrawlPass calls while the sink is still attached before it
// performs the final flush.
func (m *MetadumpMode) Finalize() {}

// AppendTerminator appends this mode's terminator line to the sink.
func (m *MetadumpMode) AppendTerminator(sink *Sink) {
	if m.locked {
		sink.Append([]byte("ERROR locked try again later\r\n"))
		return
	}
	sink.Append([]byte("END\r\n"))
}
