package lru

import (
	"github.com/dolfly/memcached/internal/slab"
)

// KeydumpMode emits a compact "mg <key>\r\n" line per live item
// (spec.md §4.5), skipping external-storage validation entirely.
type KeydumpMode struct {
	noopLifecycle
	locked bool
	flush  flushChecker
}

func NewKeydumpMode() *KeydumpMode { return &KeydumpMode{} }

func (m *KeydumpMode) SetFlushChecker(f flushChecker) { m.flush = f }
func (m *KeydumpMode) Locked() bool                   { return m.locked }
func (m *KeydumpMode) MarkLocked()                    { m.locked = true }

func (m *KeydumpMode) Init(interface{}) error { return nil }
func (m *KeydumpMode) NeedsLock() bool        { return false }
func (m *KeydumpMode) NeedsClient() bool      { return true }

func (m *KeydumpMode) Eval(ctx *EvalCtx) {
	isFlushed := m.flush != nil && m.flush.FlushEpoch() > 0 && ctx.Item.LastAccess < m.flush.FlushEpoch()
	if ctx.Item.Expired(ctx.Now) || isFlushed {
		ctx.Item.RefcountDecr()
		return
	}

	if ctx.Item.HasFlag(slab.FlagKeyBinary) {
		ctx.Sink.Append([]byte("mg " + b64EncodeKey(ctx.Item.Key) + " b\r\n"))
	} else {
		ctx.Sink.Append([]byte("mg " + ctx.Item.Key + "\r\n"))
	}
	ctx.Item.RefcountDecr()
}

func (m *KeydumpMode) Finalize() {}

// AppendTerminator appends this mode's terminator line to the sink.
func (m *KeydumpMode) AppendTerminator(sink *Sink) {
	if m.locked {
		sink.Append([]byte("ERROR locked try again later\r\n"))
		return
	}
	sink.Append([]byte("EN\r\n"))
}
