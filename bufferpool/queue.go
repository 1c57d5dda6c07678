package bufferpool

import "sync/atomic"

// EvictionHint is the value type placed on the eviction queue: a weak
// reference to a handle paired with the eviction timestamp observed at
// enqueue time (spec §3). Copies and moves freely; holding one does not
// extend the referenced handle's lifetime.
type EvictionHint struct {
	Weak      WeakHandle
	Timestamp uint64
}

// DefaultSegmentCapacity is the number of hints each queue segment can
// hold before a new one is linked in (spec §4.1: "the implementation may
// use segmented blocks with per-segment atomics").
const DefaultSegmentCapacity = 1024

// hintSlot is a single write-once slot in a segment. sequence doubles as
// a publish flag: a slot is readable once sequence == its index + 1.
type hintSlot struct {
	sequence atomic.Uint64
	hint     EvictionHint
}

// segment is a fixed-capacity, write-once (per slot) block of the
// eviction queue. Adapted from the teacher's LockFreeLogBuffer
// (storage/lock_free_log_buffer.go): the same CAS-reserve-then-publish
// protocol on a per-slot sequence number, but without the circular
// wraparound — a segment's slots are each used exactly once, and the
// queue grows by chaining a fresh segment rather than reusing one.
type segment struct {
	capacity uint64
	slots    []hintSlot
	head     atomic.Uint64 // next slot index to be dequeued
	tail     atomic.Uint64 // next slot index reserved for enqueue
	next     atomic.Pointer[segment]
}

func newSegment(capacity uint64) *segment {
	return &segment{
		capacity: capacity,
		slots:    make([]hintSlot, capacity),
	}
}

// tryPush reserves and fills the next slot. Returns false if the
// segment has no free slots left (the caller must link/advance to a new
// segment and retry there).
func (s *segment) tryPush(h EvictionHint) bool {
	for {
		tailPos := s.tail.Load()
		if tailPos >= s.capacity {
			return false
		}
		if s.tail.CompareAndSwap(tailPos, tailPos+1) {
			slot := &s.slots[tailPos]
			slot.hint = h
			slot.sequence.Store(tailPos + 1)
			return true
		}
	}
}

// tryPop consumes the next slot in order. ok is true iff a hint was
// returned. drained is true iff every slot in this segment has now been
// consumed and the queue should advance past it.
func (s *segment) tryPop() (hint EvictionHint, ok bool, drained bool) {
	for {
		headPos := s.head.Load()
		if headPos >= s.capacity {
			return EvictionHint{}, false, true
		}
		slot := &s.slots[headPos]
		if slot.sequence.Load() != headPos+1 {
			// Not yet published by its writer (or not yet reserved at
			// all): nothing to dequeue right now, but the segment isn't
			// drained — more may still land here. A producer that
			// reserved this slot and then stalls before publishing blocks
			// head from advancing past it, so the whole queue reports
			// spurious-empty to every consumer until it does (spec §4.1's
			// allowed "spurious under contention").
			return EvictionHint{}, false, false
		}
		if s.head.CompareAndSwap(headPos, headPos+1) {
			return slot.hint, true, headPos+1 >= s.capacity
		}
	}
}

// EvictionQueue is the unbounded, lock-free MPMC queue of EvictionHint
// values described in spec §4.1. Ordering across producers is not
// guaranteed; callers must treat it as an unordered multiset, per spec.
type EvictionQueue struct {
	head   atomic.Pointer[segment]
	tail   atomic.Pointer[segment]
	size   atomic.Int64
	segCap uint64
}

// NewEvictionQueue creates an empty queue whose segments hold segCap
// hints each. A segCap of 0 uses DefaultSegmentCapacity.
func NewEvictionQueue(segCap uint64) *EvictionQueue {
	if segCap == 0 {
		segCap = DefaultSegmentCapacity
	}
	seg := newSegment(segCap)
	q := &EvictionQueue{segCap: segCap}
	q.head.Store(seg)
	q.tail.Store(seg)
	return q
}

// TryEnqueue inserts a single hint. Always succeeds (spec §4.1).
func (q *EvictionQueue) TryEnqueue(h EvictionHint) {
	for {
		seg := q.tail.Load()
		if seg.tryPush(h) {
			q.size.Add(1)
			return
		}

		next := seg.next.Load()
		if next == nil {
			candidate := newSegment(q.segCap)
			if seg.next.CompareAndSwap(nil, candidate) {
				next = candidate
			} else {
				next = seg.next.Load()
			}
		}
		q.tail.CompareAndSwap(seg, next)
	}
}

// EnqueueBulk inserts every hint in hints. Always succeeds.
func (q *EvictionQueue) EnqueueBulk(hints []EvictionHint) {
	for _, h := range hints {
		q.TryEnqueue(h)
	}
}

// TryDequeue removes and returns one hint. ok is false when the queue is
// currently empty, and also when its next slot has been reserved by a
// producer that has not yet published it.
func (q *EvictionQueue) TryDequeue() (EvictionHint, bool) {
	for {
		seg := q.head.Load()
		hint, ok, drained := seg.tryPop()
		if ok {
			q.size.Add(-1)
			return hint, true
		}
		if drained {
			next := seg.next.Load()
			if next == nil {
				return EvictionHint{}, false
			}
			q.head.CompareAndSwap(seg, next)
			continue
		}
		return EvictionHint{}, false
	}
}

// TryDequeueBulk dequeues up to len(out) hints into out, returning the
// number actually dequeued (k <= len(out)).
func (q *EvictionQueue) TryDequeueBulk(out []EvictionHint) int {
	n := 0
	for n < len(out) {
		hint, ok := q.TryDequeue()
		if !ok {
			break
		}
		out[n] = hint
		n++
	}
	return n
}

// SizeApprox returns a best-effort count of hints currently queued. It
// need not be exact (spec §4.1).
func (q *EvictionQueue) SizeApprox() uint64 {
	n := q.size.Load()
	if n < 0 {
		return 0
	}
	return uint64(n)
}
