package tempuscache

import (
	"time"

	"github.com/dolfly/memcached/internal/lru"
	"github.com/dolfly/memcached/internal/slab"
)

func autoexpireArgs(classID uint16) lru.StartArgs {
	return lru.StartArgs{
		ClassIDs:  []uint16{classID},
		Remaining: slab.CapRemaining,
		Type:      lru.AutoExpire,
	}
}

/*
startAutoexpire arms the background reclamation loop.

================================================================================
ROLE IN CACHE LIFECYCLE
================================================================================

TempusCache implements a dual-expiration strategy:

1. Lazy Expiration
   - Expired keys are removed during Get() calls.

2. Active Expiration
   - Periodically triggers an AUTOEXPIRE crawl over this cache's class,
     even for entries that are never read again.

Active expiration bounds memory growth in workloads where expired keys
are rarely looked up.

================================================================================
EXECUTION MODEL
================================================================================

- If interval <= 0:
    -> Active cleanup is disabled.
    -> Cache relies solely on lazy expiration in Get.

- If interval > 0:
    -> A time.Ticker is created.
    -> A dedicated goroutine is launched.
    -> On each tick, c.ctrl.Start is called with Type: lru.AutoExpire.

The crawler itself, not this goroutine, walks the chain and reclaims
items; this goroutine only arms the crawl and otherwise stays out of
the way. A crawl already in progress makes Start return lru.Running,
which is not an error — the tick is simply skipped.

================================================================================
CONCURRENCY & SAFETY
================================================================================

- c.ctrl.Start takes the controller's own lock internally; this
  goroutine holds no Cache-level lock while a crawl runs.
- stopChan is used as a lifecycle control signal for graceful shutdown.
- The ticker is explicitly stopped before exit to prevent resource leakage.
*/
func (c *Cache) startAutoexpire() {
	if c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				c.ctrl.Start(autoexpireArgs(c.classID))
			case <-c.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
}

/*
Stop gracefully terminates the background autoexpire goroutine and the
crawler worker behind it.

================================================================================
SHUTDOWN MECHANISM
================================================================================

- Closing stopChan signals the autoexpire ticker goroutine to exit.
- c.ctrl.StopWorker(true) then blocks until the crawler worker itself
  has cut short any in-flight crawl and exited.

================================================================================
USAGE CONTRACT
================================================================================

Stop should be called once per Cache lifecycle.

IMPORTANT: calling Stop multiple times will panic, since closing an
already-closed channel is illegal in Go.
*/
func (c *Cache) Stop() {
	close(c.stopChan)
	c.ctrl.StopWorker(true)
}
