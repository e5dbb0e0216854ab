package lru

import (
	"time"

	"github.com/dolfly/memcached/internal/htable"
)

// workerLoop is the crawler worker: it parks on the condition variable
// when idle, and otherwise owns the crawler mutex for the duration of a
// crawl pass (spec.md §5's lock hierarchy has the crawler mutex coarsest
// and held except at designated sleep points).
func (c *Controller) workerLoop() {
	c.mu.Lock()
	c.workerRunning = true
	c.parked = true
	c.cond.Broadcast()

	for {
		for c.activeClasses == 0 && !c.stopRequested {
			c.cond.Wait()
		}
		if c.stopRequested {
			break
		}
		c.parked = false
		c.runCrawlPass()
		c.parked = true
	}

	c.workerRunning = false
	c.cond.Broadcast()
	c.mu.Unlock()
}

// sleepCounter counts scan steps since the last voluntary suspension:
// items visited in a class scan, bucket boundaries in a hash walk.
type sleepCounter struct {
	n int
}

func (c *Controller) maybeSleep(sc *sleepCounter) {
	sc.n++
	if sc.n < c.sleepCfg.PerSleep {
		return
	}
	sc.n = 0
	if c.sleepCfg.SleepEvery > 0 {
		c.mu.Unlock()
		time.Sleep(c.sleepCfg.SleepEvery)
		c.mu.Lock()
	} else {
		// yield-only: briefly cycle the mutex so waiting callers (Pause,
		// Start, Stop) get a chance in.
		c.mu.Unlock()
		c.mu.Lock()
	}
}

// runCrawlPass drives one full crawl to completion: every selected class
// (or the hash walk), doneclass/finalize, then detaches the client.
// Called with c.mu held; returns with c.mu held.
func (c *Controller) runCrawlPass() {
	sc := &sleepCounter{}

	if c.activeClasses == HashWalk {
		c.runHashWalk(sc)
	} else {
		c.runClassScan(sc)
	}

	c.mode.Finalize()
	if term, ok := c.mode.(interface{ AppendTerminator(*Sink) }); ok && c.sink.Attached() {
		term.AppendTerminator(&c.sink)
	}
	if c.sink.Attached() {
		c.mu.Unlock()
		c.sink.Flush()
		c.mu.Lock()
		c.sink.Release()
	}

	c.running = false
	c.mode = nil
	if c.metrics != nil {
		c.metrics.ActiveClasses.Set(0)
	}
	c.log.Infow("crawl finished", "type", c.crawlType.String())
}

// runClassScan implements the Per-Class Scanner, spec.md §4.6.
func (c *Controller) runClassScan(sc *sleepCounter) {
	for id := 0; id < c.classes.NumClasses(); id++ {
		sentinel := c.classes.Sentinel(uint16(id))
		if !sentinel.Active {
			continue
		}
		if c.metrics != nil {
			c.metrics.ActiveClasses.Set(float64(c.activeClasses))
		}
		c.scanOneClass(uint16(id), sc)
	}
}

func (c *Controller) scanOneClass(id uint16, sc *sleepCounter) {
	class := c.classes.Class(id)

	for {
		if c.stopRequested {
			c.classDone(id)
			return
		}

		if c.sink.Attached() && c.sink.Headroom() < MinBufSpace {
			c.mu.Unlock()
			status := c.sink.Flush()
			c.mu.Lock()
			if status == FlushClosed {
				c.classDone(id)
				if c.metrics != nil {
					c.metrics.SinkClosedTotal.Inc()
				}
				return
			}
		}
		if c.sink.Attached() && !c.sink.EnsureHeadroom() {
			c.classDone(id)
			return
		}
		if c.mode.NeedsClient() && !c.sink.Attached() {
			c.classDone(id)
			return
		}

		class.Mu.Lock()
		sentinel := c.classes.Sentinel(id)
		if !sentinel.Active {
			class.Mu.Unlock()
			return
		}

		candidate, ok := class.CrawlQ(sentinel)
		if !ok {
			class.Mu.Unlock()
			c.classDone(id)
			return
		}
		if sentinel.Remaining != 0 {
			sentinel.Remaining--
			if sentinel.Remaining == 0 {
				class.Mu.Unlock()
				c.classDone(id)
				return
			}
		}

		hv := htable.HashKey(candidate.Key)
		if !c.htable.TryLockBucket(hv) {
			class.Mu.Unlock()
			// fairness: let the bucket's owner proceed. CrawlQ has already
			// moved the sentinel past this candidate, so it is skipped (and
			// counts against Remaining); the next loop takes the item ahead.
			continue
		}

		if candidate.RefcountIncr() != 2 {
			candidate.RefcountDecr()
			c.htable.UnlockBucket(hv)
			class.Mu.Unlock()
			continue
		}

		sentinel.Checked++

		needsLock := c.mode.NeedsLock()
		if !needsLock {
			class.Mu.Unlock()
		}

		ctx := &EvalCtx{
			Item:     candidate,
			HV:       hv,
			ClassID:  id,
			Sentinel: sentinel,
			Class:    class,
			HTable:   c.htable,
			Sink:     &c.sink,
			ExtStore: c.extstore,
			Metrics:  c.metrics,
			Now:      c.relNow(),
		}
		c.mode.Eval(ctx)
		if c.metrics != nil {
			c.metrics.ItemsChecked.WithLabelValues(classLabel(id)).Inc()
		}

		c.htable.UnlockBucket(hv)
		if needsLock {
			class.Mu.Unlock()
		}

		c.maybeSleep(sc)
	}
}

// classDone implements class_done(i), spec.md §4.6.
func (c *Controller) classDone(id uint16) {
	class := c.classes.Class(id)
	sentinel := c.classes.Sentinel(id)

	class.Mu.Lock()
	class.UnlinktailQ(sentinel)
	if c.activeClasses > 0 {
		c.activeClasses--
	}
	class.Mu.Unlock()

	c.mode.DoneClass(id)
}

// runHashWalk implements the Hash Scanner, spec.md §4.7. Only valid for
// METADUMP/MGDUMP, enforced by Controller.Start.
func (c *Controller) runHashWalk(sc *sleepCounter) {
	// GetIterator never blocks in this implementation (expansion is
	// simulated, not real concurrent growth), so it's safe to call with
	// the crawler mutex held, preserving the coarse-lock-except-at-
	// suspension-points rule the rest of the scan follows.
	iter, err := c.htable.GetIterator()
	if err != nil {
		if lockable, ok := c.mode.(interface{ MarkLocked() }); ok {
			lockable.MarkLocked()
		}
		c.activeClasses = 0
		return
	}

	sinceFlush := 0
	for {
		if c.stopRequested {
			break
		}

		item, done := iter.Iterate()
		if done {
			break
		}
		if item == nil {
			// between buckets: no bucket lock is held right now
			if c.sink.Attached() && sinceFlush >= minItemsPerWrite {
				c.mu.Unlock()
				status := c.sink.Flush()
				c.mu.Lock()
				sinceFlush = 0
				if status == FlushClosed {
					if c.metrics != nil {
						c.metrics.SinkClosedTotal.Inc()
					}
					break
				}
			}
			if c.mode.NeedsClient() && !c.sink.Attached() {
				break
			}
			c.maybeSleep(sc)
			continue
		}

		if item.RefcountIncr() != 2 {
			item.RefcountDecr()
			continue
		}

		if c.sink.Attached() && !c.sink.EnsureHeadroom() {
			item.RefcountDecr()
			break
		}

		ctx := &EvalCtx{
			Item:     item,
			HV:       0,
			ClassID:  0,
			Sentinel: nil,
			Class:    nil,
			HTable:   c.htable,
			Sink:     &c.sink,
			ExtStore: c.extstore,
			Metrics:  c.metrics,
			Now:      c.relNow(),
		}
		c.mode.Eval(ctx)
		sinceFlush++
	}

	iter.IterateFinal()
	c.activeClasses = 0
}

const minItemsPerWrite = 16
