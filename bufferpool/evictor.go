package bufferpool

import "time"

// EvictionResult is the outcome of EvictBlocks (spec §4.4): whether the
// memory limit was reached, and the reservation made for extra_memory
// along the way (kept on success, already released on failure).
type EvictionResult struct {
	Success     bool
	Reservation *Reservation
}

// EvictBlocks walks the eviction queue, validating and unloading blocks
// until current memory is at or below memoryLimit, eagerly reserving
// extra_memory bytes for the caller's pending allocation (spec §4.4).
//
// If outBuffer is non-nil and the Evictor finds a handle whose buffer is
// exactly extra_memory bytes, that buffer is handed back through
// *outBuffer instead of being freed, so the caller can reuse it without
// a free/alloc round trip.
func (p *BufferPool) EvictBlocks(tag MemoryTag, extraMemory, memoryLimit uint64, outBuffer **FileBuffer) EvictionResult {
	start := time.Now()
	if p.metrics != nil {
		p.metrics.RecordEvictionAttempt()
	}

	r := p.accountant.Reserve(tag, extraMemory)

	for p.accountant.CurrentMemory() > memoryLimit {
		hint, ok := p.queue.TryDequeue()
		if !ok {
			hint, ok = p.dequeueWithPurgeExclusion()
			if !ok {
				r.Release()
				if p.metrics != nil {
					p.metrics.RecordEvictionFailure()
					p.metrics.RecordEvictionLatency(time.Since(start))
				}
				return EvictionResult{Success: false, Reservation: r}
			}
		}

		subUint64(&p.evictQueueInsertions, 1)

		handle, ok := hint.Weak.Upgrade()
		if !ok {
			// The handle has already been destroyed; the hint can never
			// become live again.
			decrementDeadNodes(p, 1)
			continue
		}

		success := func() bool {
			handle.lock.Lock()
			defer handle.lock.Unlock()

			if hint.Timestamp != handle.EvictionTimestamp() {
				// A newer hint for this handle exists elsewhere in the
				// queue; this one is dead.
				decrementDeadNodes(p, 1)
				return false
			}
			if !handle.CanUnload() {
				decrementDeadNodes(p, 1)
				return false
			}

			if outBuffer != nil && handle.buffer != nil && handle.buffer.AllocSize() == extraMemory {
				buf, freedTag, freedSize, err := handle.UnloadAndTakeBlock()
				if err != nil {
					return false
				}
				p.accountant.Decrease(freedTag, freedSize)
				*outBuffer = buf
				if p.metrics != nil {
					p.metrics.RecordBufferReused()
					p.metrics.RecordBlockUnloaded()
				}
				return true
			}

			freedTag, freedSize, err := handle.Unload()
			if err != nil {
				return false
			}
			p.accountant.Decrease(freedTag, freedSize)
			if p.metrics != nil {
				p.metrics.RecordBlockUnloaded()
			}
			return true
		}()

		if success && outBuffer != nil && *outBuffer != nil {
			if p.metrics != nil {
				p.metrics.RecordEvictionSuccess()
				p.metrics.RecordEvictionLatency(time.Since(start))
			}
			return EvictionResult{Success: true, Reservation: r}
		}
	}

	if p.metrics != nil {
		p.metrics.RecordEvictionSuccess()
		p.metrics.RecordEvictionLatency(time.Since(start))
	}
	return EvictionResult{Success: true, Reservation: r}
}

// dequeueWithPurgeExclusion is the escalated retry used when a plain
// TryDequeue fails, per spec §4.5. It guarantees that a spurious empty
// result was not merely the queue being mid-purge, by taking the same
// purgeActive flag a Purger holds for its sweep.
func (p *BufferPool) dequeueWithPurgeExclusion() (EvictionHint, bool) {
	for !p.purgeActive.CompareAndSwap(false, true) {
	}
	hint, ok := p.queue.TryDequeue()
	p.purgeActive.Store(false)
	return hint, ok
}

func decrementDeadNodes(p *BufferPool, n uint64) {
	subUint64(&p.totalDeadNodes, n)
	if p.metrics != nil {
		p.metrics.RecordDeadHintsDropped(n)
	}
}
