package bufferpool

import "sync/atomic"

// MemoryAccountant holds the atomic counters backing spec §4.2:
// current_memory, maximum_memory and the per-tag usage array. It has no
// direct teacher equivalent (the teacher's Metrics counters are
// observational, not a budget); it follows the same plain-atomic style.
type MemoryAccountant struct {
	current       atomic.Uint64
	maximum       atomic.Uint64
	perTag        [MemoryTagCount]atomic.Uint64
}

// NewMemoryAccountant creates an accountant with the given initial limit.
func NewMemoryAccountant(maximumMemory uint64) *MemoryAccountant {
	a := &MemoryAccountant{}
	a.maximum.Store(maximumMemory)
	return a
}

func (a *MemoryAccountant) CurrentMemory() uint64 { return a.current.Load() }
func (a *MemoryAccountant) MaximumMemory() uint64 { return a.maximum.Load() }

func (a *MemoryAccountant) SetMaximumMemory(limit uint64) { a.maximum.Store(limit) }

func (a *MemoryAccountant) UsagePerTag(tag MemoryTag) uint64 {
	return a.perTag[tag].Load()
}

// Increase books n additional bytes under tag.
func (a *MemoryAccountant) Increase(tag MemoryTag, n uint64) {
	a.current.Add(n)
	a.perTag[tag].Add(n)
}

// Decrease releases n bytes previously booked under tag. Allocation
// accounting must tolerate racing increase/decrease pairs that
// temporarily push current above the limit (spec §5); it never goes
// negative here because the subtraction saturates at zero.
func (a *MemoryAccountant) Decrease(tag MemoryTag, n uint64) {
	subUint64(&a.current, n)
	subUint64(&a.perTag[tag], n)
}

// subUint64 performs a saturating atomic subtraction: it will not take
// the counter below zero even if decrements race ahead of increments
// momentarily.
func subUint64(c *atomic.Uint64, n uint64) {
	for {
		cur := c.Load()
		var next uint64
		if n > cur {
			next = 0
		} else {
			next = cur - n
		}
		if c.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Reservation is a scoped booking of memory (spec §4.2). It increases
// the accountant's counters immediately on creation and either gives
// the booking back to the accountant on Release, or hands it off to
// become a handle's permanent footprint via Commit. Reservations back
// the Evictor's eager extra_memory booking (spec §4.4).
type Reservation struct {
	accountant *MemoryAccountant
	tag        MemoryTag
	size       uint64
	released   bool
}

// Reserve books n bytes under tag immediately.
func (a *MemoryAccountant) Reserve(tag MemoryTag, n uint64) *Reservation {
	a.Increase(tag, n)
	return &Reservation{accountant: a, tag: tag, size: n}
}

// Size returns the amount currently booked by this reservation.
func (r *Reservation) Size() uint64 { return r.size }

// Resize adjusts the reservation to m bytes, applying the delta to the
// accountant. It does not release or commit the reservation; Resize(0)
// still leaves a later Release as a no-op simply because there is
// nothing left to give back, not because the bytes were committed.
func (r *Reservation) Resize(m uint64) {
	if m == r.size {
		return
	}
	if m > r.size {
		r.accountant.Increase(r.tag, m-r.size)
	} else {
		r.accountant.Decrease(r.tag, r.size-m)
	}
	r.size = m
}

// Commit hands the reservation's booked bytes off permanently to the
// accountant as a handle's footprint: the accountant's counters are
// left untouched (the bytes stay booked) and the reservation itself is
// marked spent, so a later Release is a no-op rather than double
// decrementing. Callers use this once the reserved memory is backing a
// live handle instead of a pending allocation.
func (r *Reservation) Commit() {
	r.released = true
	r.size = 0
}

// Release gives back whatever the reservation still holds. Safe to call
// multiple times, and a no-op after Commit.
func (r *Reservation) Release() {
	if r.released {
		return
	}
	r.released = true
	if r.size > 0 {
		r.accountant.Decrease(r.tag, r.size)
		r.size = 0
	}
}
