package bufferpool

import (
	"sync/atomic"
	"time"
)

// PurgeQueue is the cooperative sweep of spec §4.6: it bulk-dequeues
// hints, drops any whose handle has vanished, and re-enqueues the
// survivors, compacting the queue. Idempotent and safe to call from any
// thread; at most one purge runs at a time (spec I6).
func (p *BufferPool) PurgeQueue() {
	if !p.purgeActive.CompareAndSwap(false, true) {
		// Another purger is already sweeping.
		if p.metrics != nil {
			p.metrics.RecordPurgeSkipped()
		}
		return
	}
	start := time.Now()
	defer func() {
		p.purgeActive.Store(false)
		if p.metrics != nil {
			p.metrics.RecordPurgeSweep()
			p.metrics.RecordPurgeLatency(time.Since(start))
		}
	}()

	insertions := fetchAndSubUint64(&p.evictQueueInsertions, p.config.InsertInterval)
	purgeSize := insertions * p.config.PurgeSizeMultiplier
	if purgeSize == 0 {
		return
	}

	approxSize := p.queue.SizeApprox()
	if approxSize < purgeSize*p.config.EarlyOutMultiplier {
		return
	}

	maxPurges := approxSize / purgeSize
	for maxPurges != 0 {
		p.purgeIteration(purgeSize)

		approxSize = p.queue.SizeApprox()
		if approxSize < purgeSize*p.config.EarlyOutMultiplier {
			return // (2.1)
		}

		deadEst := p.totalDeadNodes.Load()
		if deadEst > approxSize {
			deadEst = approxSize
		}
		aliveEst := approxSize - deadEst

		if aliveEst*(p.config.AliveNodeMultiplier-1) > deadEst {
			return // (2.2)
		}

		maxPurges-- // (2.3) worst-case termination bound
	}
}

// purgeIteration bulk-dequeues up to n hints, drops those whose weak
// reference no longer upgrades, and re-enqueues the rest. It
// deliberately does not re-check timestamps (spec §4.6, §9): a purge's
// job is to compact the queue by discarding hints for destroyed
// handles, not to decide liveness, which remains the Evictor's job.
func (p *BufferPool) purgeIteration(n uint64) {
	if n > uint64(len(p.purgeScratch)) || n < uint64(len(p.purgeScratch))/2 {
		p.purgeScratch = make([]EvictionHint, n)
	}
	scratch := p.purgeScratch[:n]

	dequeued := p.queue.TryDequeueBulk(scratch)

	alive := 0
	for i := 0; i < dequeued; i++ {
		if _, ok := scratch[i].Weak.Upgrade(); ok {
			scratch[alive] = scratch[i]
			alive++
		}
	}

	p.queue.EnqueueBulk(scratch[:alive])

	dropped := uint64(dequeued - alive)
	if dropped > 0 {
		decrementDeadNodes(p, dropped)
	}
}

// fetchAndSubUint64 atomically subtracts n from *c (saturating at zero)
// and returns the value c held immediately before the subtraction
// (spec §4.6's atomic_fetch_sub over evict_queue_insertions).
func fetchAndSubUint64(c *atomic.Uint64, n uint64) uint64 {
	for {
		old := c.Load()
		next := uint64(0)
		if old > n {
			next = old - n
		}
		if c.CompareAndSwap(old, next) {
			return old
		}
	}
}
