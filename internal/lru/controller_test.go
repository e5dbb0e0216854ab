package lru

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dolfly/memcached/internal/conn"
	"github.com/dolfly/memcached/internal/htable"
	"github.com/dolfly/memcached/internal/slab"
	"github.com/dolfly/memcached/internal/store/extstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeServer is the conn.Server double the test suite wires to Sink: it
// just records which lifecycle hook fired for which connection.
type fakeServer struct {
	mu           sync.Mutex
	closed       []*conn.Conn
	redispatched []*conn.Conn
}

func (f *fakeServer) SidethreadConnClose(c *conn.Conn) {
	f.mu.Lock()
	f.closed = append(f.closed, c)
	f.mu.Unlock()
}

func (f *fakeServer) RedispatchConn(c *conn.Conn) {
	f.mu.Lock()
	f.redispatched = append(f.redispatched, c)
	f.mu.Unlock()
}

// countingMode is a minimal Mode double used to probe exactly how many
// items the scanner actually hands to Eval, independent of what any real
// mode does with them.
type countingMode struct {
	count int
}

func (m *countingMode) Init(interface{}) error { return nil }
func (m *countingMode) Eval(ctx *EvalCtx) {
	m.count++
	ctx.Item.RefcountDecr()
}
func (m *countingMode) DoneClass(uint16)  {}
func (m *countingMode) Finalize()         {}
func (m *countingMode) NeedsLock() bool   { return true }
func (m *countingMode) NeedsClient() bool { return false }

// newLiveController wires a full in-memory environment and starts the
// worker goroutine, the way a real host process would at boot.
func newLiveController(t *testing.T) (*Controller, *slab.Classes, *htable.Table, *extstore.Store) {
	t.Helper()
	classes := slab.NewClasses()
	ht := htable.New()
	ext := extstore.New()
	srv := &fakeServer{}

	c := New(classes, ht, ext, srv, nil, zap.NewNop().Sugar(),
		SleepPolicy{PerSleep: 1 << 30}, time.Now().Add(-100*time.Second))
	c.StartWorker()
	t.Cleanup(func() { c.StopWorker(true) })
	return c, classes, ht, ext
}

func newItem(key string, exptime int64) *slab.Item {
	it := &slab.Item{Key: key, Exptime: exptime}
	it.RefcountIncr() // baseline hold a real hash-table link would carry
	return it
}

func TestStartWhileRunningSuppressesAutoexpirePair(t *testing.T) {
	classes := slab.NewClasses()
	c := &Controller{classes: classes, htable: htable.New(), log: zap.NewNop().Sugar()}
	c.cond = sync.NewCond(&c.mu)
	c.workerRunning = true
	c.running = true
	c.crawlType = AutoExpire

	res := c.Start(StartArgs{ClassIDs: []uint16{0}, Type: AutoExpire})
	require.Equal(t, Running, res)
	require.True(t, c.autoexpireSuppressUntil.After(time.Now()))

	// The same pairing must also reject a spurious AUTOEXPIRE arriving
	// immediately afterward, even once c.running flips back to false.
	c.running = false
	res = c.Start(StartArgs{ClassIDs: []uint16{0}, Type: AutoExpire})
	require.Equal(t, Running, res)
}

func TestStartRejectsHashWalkForExpired(t *testing.T) {
	classes := slab.NewClasses()
	c := &Controller{classes: classes, htable: htable.New(), log: zap.NewNop().Sugar()}
	c.cond = sync.NewCond(&c.mu)
	c.workerRunning = true

	res := c.Start(StartArgs{ClassIDs: nil, Type: Expired})
	require.Equal(t, Error, res)
}

func TestStartRejectsHashWalkForAutoexpire(t *testing.T) {
	classes := slab.NewClasses()
	c := &Controller{classes: classes, htable: htable.New(), log: zap.NewNop().Sugar()}
	c.cond = sync.NewCond(&c.mu)
	c.workerRunning = true

	res := c.Start(StartArgs{ClassIDs: nil, Type: AutoExpire})
	require.Equal(t, Error, res)
}

func TestStartWithoutWorkerReturnsNotStarted(t *testing.T) {
	classes := slab.NewClasses()
	c := &Controller{classes: classes, htable: htable.New(), log: zap.NewNop().Sugar()}
	c.cond = sync.NewCond(&c.mu)

	res := c.Start(StartArgs{ClassIDs: []uint16{0}, Type: Metadump})
	require.Equal(t, NotStarted, res)
}

func TestStartBadClassID(t *testing.T) {
	classes := slab.NewClasses()
	c := &Controller{classes: classes, htable: htable.New(), log: zap.NewNop().Sugar()}
	c.cond = sync.NewCond(&c.mu)
	c.workerRunning = true

	res := c.Start(StartArgs{ClassIDs: []uint16{9999}, Type: Metadump})
	require.Equal(t, BadClass, res)
}

// TestRemainingCapBoundsClassScan exercises spec scenario (e): a crawl
// started with the "use current size" cap must stop after exactly the
// item count observed at start time, even if the chain grows mid-scan.
func TestRemainingCapBoundsClassScan(t *testing.T) {
	classes := slab.NewClasses()
	class := classes.Class(0)

	items := make([]*slab.Item, 5)
	for i := range items {
		it := newItem(string(rune('a'+i)), 0)
		class.LinkHead(it)
		items[i] = it
	}

	sentinel := classes.Sentinel(0)
	sentinel.Reset(uint64(class.Len()))
	class.LinktailQ(sentinel)

	grown := newItem("grown", 0)
	class.LinkHead(grown)

	cm := &countingMode{}
	c := &Controller{
		classes:  classes,
		htable:   htable.New(),
		mode:     cm,
		log:      zap.NewNop().Sugar(),
		sleepCfg: SleepPolicy{PerSleep: 1 << 30},
	}
	c.activeClasses = 1
	c.scanOneClass(0, &sleepCounter{})

	require.Equal(t, 5, cm.count)
	require.False(t, sentinel.Active)
	require.EqualValues(t, 1, grown.Refcount(), "item grown after the cap was fixed must never reach Eval")
}

// TestReapRemovesExpiredKeepsLive exercises spec scenario (a): a class
// holding one expired and one live item, crawled with AUTOEXPIRE, reaps
// only the expired one and records its tallies.
func TestReapRemovesExpiredKeepsLive(t *testing.T) {
	c, classes, ht, _ := newLiveController(t)
	class := classes.Class(0)

	expired := newItem("expired-key", 10) // relNow() starts around 100
	live := newItem("live-key", 0)
	class.LinkHead(live)
	class.LinkHead(expired)

	hvExpired := htable.HashKey(expired.Key)
	hvLive := htable.HashKey(live.Key)
	ht.Insert(hvExpired, expired)
	ht.Insert(hvLive, live)

	stats := &ExpiredStats{}
	res := c.Start(StartArgs{
		ClassIDs:  []uint16{0},
		Remaining: slab.CapRemaining,
		Type:      AutoExpire,
		InitData:  stats,
	})
	require.Equal(t, OK, res)
	require.Eventually(t, func() bool { return !c.Running() }, 2*time.Second, 5*time.Millisecond)

	_, ok := ht.Find(hvExpired, expired.Key)
	require.False(t, ok, "expired item must be removed from the hash index")
	_, ok = ht.Find(hvLive, live.Key)
	require.True(t, ok, "live item must remain indexed")
	require.Equal(t, 1, classes.Class(0).Len())

	snap := stats.Snapshot()
	require.EqualValues(t, 1, snap.Classes[0].Reclaimed)
	require.EqualValues(t, 1, snap.Classes[0].Seen)
	require.True(t, snap.Classes[0].RunComplete)
	require.True(t, snap.Global.CrawlComplete)

	require.EqualValues(t, 1, expired.Refcount())
	require.EqualValues(t, 1, live.Refcount())
}

func pipeConn(t *testing.T) (*conn.Conn, net.Conn, *syncBuf, func()) {
	t.Helper()
	serverEnd, testEnd := net.Pipe()
	buf := &syncBuf{}
	done := make(chan struct{})
	go func() {
		buf.copyFrom(testEnd)
		close(done)
	}()
	cleanup := func() {
		serverEnd.Close()
		<-done
	}
	// Fd must be non-zero: Controller.Start treats Fd==0 as "no client"
	// (spec.md §9 open question 2), and these tests exercise a real
	// attached client.
	return &conn.Conn{NetConn: serverEnd, Fd: 1}, testEnd, buf, cleanup
}

// TestMetadumpEmptyEndsWithEND exercises spec scenario (b).
func TestMetadumpEmptyEndsWithEND(t *testing.T) {
	c, _, _, _ := newLiveController(t)
	cn, _, buf, cleanup := pipeConn(t)

	res := c.Start(StartArgs{ClassIDs: []uint16{0}, Remaining: slab.CapRemaining, Type: Metadump, Conn: cn})
	require.Equal(t, OK, res)
	require.Eventually(t, func() bool { return !c.Running() }, 2*time.Second, 5*time.Millisecond)

	cleanup()
	require.Equal(t, "END\r\n", buf.String())
}

// TestMetadumpLockedEmitsErrorLine exercises spec scenario (c).
func TestMetadumpLockedEmitsErrorLine(t *testing.T) {
	c, _, ht, _ := newLiveController(t)
	ht.SetExpanding(true)
	cn, _, buf, cleanup := pipeConn(t)

	res := c.Start(StartArgs{ClassIDs: nil, Type: Metadump, Conn: cn})
	require.Equal(t, OK, res)
	require.Eventually(t, func() bool { return !c.Running() }, 2*time.Second, 5*time.Millisecond)

	cleanup()
	require.Equal(t, "ERROR locked try again later\r\n", buf.String())
}

// TestKeydumpBinaryKeyEncodesBase64 exercises spec scenario (d).
func TestKeydumpBinaryKeyEncodesBase64(t *testing.T) {
	c, classes, ht, _ := newLiveController(t)
	class := classes.Class(0)

	key := string([]byte{0x00, 0xFF, 0x41})
	it := newItem(key, 0)
	it.StateFlags |= slab.FlagKeyBinary
	class.LinkHead(it)
	ht.Insert(htable.HashKey(key), it)

	cn, _, buf, cleanup := pipeConn(t)
	res := c.Start(StartArgs{ClassIDs: nil, Type: Mgdump, Conn: cn})
	require.Equal(t, OK, res)
	require.Eventually(t, func() bool { return !c.Running() }, 2*time.Second, 5*time.Millisecond)

	cleanup()
	require.Equal(t, "mg AP9B b\r\nEN\r\n", buf.String())
}
