// Command tempuscached runs the LRU crawler subsystem standalone: a
// minimal text-protocol listener for lru_crawler commands, a background
// AUTOEXPIRE trigger, and a Prometheus /metrics endpoint.
package main

import (
	"bufio"
	"flag"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dolfly/memcached/internal/command"
	"github.com/dolfly/memcached/internal/config"
	"github.com/dolfly/memcached/internal/conn"
	"github.com/dolfly/memcached/internal/htable"
	"github.com/dolfly/memcached/internal/lru"
	"github.com/dolfly/memcached/internal/metrics"
	"github.com/dolfly/memcached/internal/slab"
	"github.com/dolfly/memcached/internal/store/extstore"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML settings file (optional)")
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		panic(err) // no logger yet; this is a boot-time fatal
	}

	log := newLogger(settings.Verbose)
	defer log.Sync() //nolint:errcheck
	sugar := log.Sugar()

	classes := slab.NewClasses()
	ht := htable.New()
	ext := extstore.New()
	crawlerMetrics := metrics.NewCrawler()
	srv := newCacheServer()

	ctrl := lru.New(classes, ht, ext, srv, crawlerMetrics, sugar,
		lru.SleepPolicy{
			SleepEvery: settings.LRUCrawlerSleep,
			PerSleep:   settings.CrawlsPersleep,
		},
		time.Now(),
	)
	ctrl.StartWorker()
	defer ctrl.StopWorker(true)

	stopAutoexpire := make(chan struct{})
	startAutoexpireTicker(ctrl, settings.AutoexpireInterval, stopAutoexpire)
	defer close(stopAutoexpire)

	if settings.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(settings.MetricsAddr, mux); err != nil {
				sugar.Errorw("metrics server exited", "error", err)
			}
		}()
	}

	listener, err := net.Listen("tcp", settings.ListenAddr)
	if err != nil {
		sugar.Fatalw("failed to listen", "addr", settings.ListenAddr, "error", err)
	}
	sugar.Infow("tempuscached listening", "addr", settings.ListenAddr)

	for {
		nc, err := listener.Accept()
		if err != nil {
			sugar.Errorw("accept failed", "error", err)
			continue
		}
		go srv.handle(ctrl, nc, sugar)
	}
}

func newLogger(verbose int) *zap.Logger {
	cfg := zap.NewProductionConfig()
	switch {
	case verbose >= 2:
		cfg.Level.SetLevel(zap.DebugLevel)
	case verbose >= 1:
		cfg.Level.SetLevel(zap.InfoLevel)
	default:
		cfg.Level.SetLevel(zap.WarnLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// startAutoexpireTicker adapts the host cache's periodic-sweep idiom into
// the crawler's own start call: every interval, it arms an AUTOEXPIRE
// crawl across every slab class, independent of any client request.
func startAutoexpireTicker(ctrl *lru.Controller, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				ctrl.Start(lru.StartArgs{
					ClassIDs: allClassIDs(),
					Type:     lru.AutoExpire,
				})
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()
}

func allClassIDs() []uint16 {
	ids := make([]uint16, 0, slab.MaxClasses*4)
	for base := 1; base < slab.MaxClasses; base++ {
		ids = append(ids, slab.Expand(uint8(base))...)
	}
	return ids
}

// cacheServer is the minimal conn.Server this binary wires to the
// crawler's sink: it tracks which connections are currently on loan to a
// side-thread crawl, so a connection's own read loop can resume (or tear
// down) once the crawler is done with it.
type cacheServer struct {
	mu      sync.Mutex
	pending map[*conn.Conn]chan struct{}

	// lastFd hands out a monotonically increasing, always-nonzero
	// descriptor stand-in for each accepted connection. A real fd==0
	// (stdin) never reaches this server, so 0 stays free to mean "no
	// fd" for Controller.Start's sfd==0 quirk (spec.md §9 open
	// question 2).
	lastFd uint64
}

func newCacheServer() *cacheServer {
	return &cacheServer{pending: make(map[*conn.Conn]chan struct{})}
}

func (s *cacheServer) allocFd() uintptr {
	return uintptr(atomic.AddUint64(&s.lastFd, 1))
}

func (s *cacheServer) lend(c *conn.Conn) chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.pending[c] = ch
	s.mu.Unlock()
	return ch
}

func (s *cacheServer) release(c *conn.Conn) {
	s.mu.Lock()
	ch, ok := s.pending[c]
	if ok {
		delete(s.pending, c)
	}
	s.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (s *cacheServer) SidethreadConnClose(c *conn.Conn) {
	c.NetConn.Close()
	s.release(c)
}

func (s *cacheServer) RedispatchConn(c *conn.Conn) {
	s.release(c)
}

// handle drives one accepted connection's text-protocol read loop. Only
// lru_crawler commands are recognized; anything else gets a terse error.
// When a crawl needing a client starts on this connection, the loop
// blocks until the crawler lends it back (or tears it down), since the
// crawler's own Sink owns socket writes for the rest of that crawl.
func (s *cacheServer) handle(ctrl *lru.Controller, nc net.Conn, log *zap.SugaredLogger) {
	defer nc.Close()
	c := &conn.Conn{NetConn: nc, Fd: s.allocFd()}
	r := bufio.NewReader(nc)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				log.Debugw("connection read error", "error", err)
			}
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "lru_crawler ") {
			nc.Write([]byte("ERROR\r\n")) //nolint:errcheck
			continue
		}

		wait := s.lend(c)
		res, derr := command.Dispatch(ctrl, line, c)
		nc.Write([]byte(command.FormatResult(res))) //nolint:errcheck
		if derr != nil || res != lru.OK {
			s.release(c)
			continue
		}

		needsClient := strings.HasPrefix(line, "lru_crawler metadump ") || strings.HasPrefix(line, "lru_crawler mgdump ")
		if !needsClient {
			s.release(c)
			continue
		}

		<-wait // the crawler owns this socket until it redispatches or closes it
		continue
	}
}
