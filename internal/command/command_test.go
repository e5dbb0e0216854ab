package command

import (
	"testing"
	"time"

	"github.com/dolfly/memcached/internal/conn"
	"github.com/dolfly/memcached/internal/htable"
	"github.com/dolfly/memcached/internal/lru"
	"github.com/dolfly/memcached/internal/slab"
	"github.com/dolfly/memcached/internal/store/extstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeServer struct{}

func (fakeServer) SidethreadConnClose(*conn.Conn) {}
func (fakeServer) RedispatchConn(*conn.Conn)       {}

func newTestController(t *testing.T) *lru.Controller {
	t.Helper()
	c := lru.New(slab.NewClasses(), htable.New(), extstore.New(), fakeServer{}, nil,
		zap.NewNop().Sugar(), lru.SleepPolicy{PerSleep: 1 << 30}, time.Now())
	c.StartWorker()
	t.Cleanup(func() { c.StopWorker(true) })
	return c
}

func TestDispatchCrawlNumericClass(t *testing.T) {
	ctrl := newTestController(t)
	res, err := Dispatch(ctrl, "lru_crawler crawl 1", nil)
	require.NoError(t, err)
	require.Equal(t, lru.OK, res)
}

func TestDispatchMalformedMissingSlabs(t *testing.T) {
	ctrl := newTestController(t)
	_, err := Dispatch(ctrl, "lru_crawler crawl", nil)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDispatchUnknownSubcommand(t *testing.T) {
	ctrl := newTestController(t)
	_, err := Dispatch(ctrl, "lru_crawler frobnicate all", nil)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDispatchHashRequiresDumpMode(t *testing.T) {
	ctrl := newTestController(t)
	res, err := Dispatch(ctrl, "lru_crawler crawl hash", nil)
	require.Error(t, err)
	require.Equal(t, lru.BadClass, res)
}

func TestDispatchBadNumericClass(t *testing.T) {
	ctrl := newTestController(t)
	res, err := Dispatch(ctrl, "lru_crawler crawl 9999", nil)
	require.Error(t, err)
	require.Equal(t, lru.BadClass, res)
}

func TestFormatResult(t *testing.T) {
	require.Equal(t, "OK\r\n", FormatResult(lru.OK))
	require.Equal(t, "BADCLASS\r\n", FormatResult(lru.BadClass))
}
