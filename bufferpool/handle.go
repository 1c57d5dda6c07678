package bufferpool

import (
	"sync"
	"sync/atomic"
)

// HandleState is the Loaded/Unloaded state machine of a Handle (spec §4.8).
type HandleState int32

const (
	StateUnloaded HandleState = iota
	StateLoaded
)

// Handle is the in-scope part of the block-handle contract (spec §3, §6):
// the data the buffer pool itself needs in order to decide whether a
// block can be unloaded and to account for its memory. Creating,
// populating and re-loading a Handle is the job of the (out-of-scope)
// block manager; this type only carries what the pool touches.
type Handle struct {
	id         uint64
	generation uint64

	allocSize uint64
	tag       MemoryTag

	readers           atomic.Int32
	evictionTimestamp atomic.Uint64
	state             atomic.Int32

	// lock guards the Loaded->Unloaded transition (spec §3). Callers
	// performing state-changing operations — principally the Evictor —
	// must hold it across the check-then-unload sequence.
	lock sync.Mutex

	buffer *FileBuffer
}

// NewHandle creates a Loaded handle backed by a freshly allocated
// FileBuffer of allocSize bytes under the given memory tag. It is not
// yet registered with any pool; callers pin it and call
// BufferPool.AddToEvictionQueue once it is safe to become evictable.
func NewHandle(tag MemoryTag, allocSize uint64) (*Handle, error) {
	buf, err := NewFileBuffer(allocSize)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		allocSize: allocSize,
		tag:       tag,
		buffer:    buf,
	}
	h.state.Store(int32(StateLoaded))
	return h, nil
}

func (h *Handle) AllocSize() uint64 { return h.allocSize }
func (h *Handle) Tag() MemoryTag    { return h.tag }
func (h *Handle) Readers() int32    { return h.readers.Load() }

func (h *Handle) EvictionTimestamp() uint64 { return h.evictionTimestamp.Load() }

func (h *Handle) State() HandleState { return HandleState(h.state.Load()) }

// Pin increments the reader count, e.g. when a caller fetches or
// re-fetches the block.
func (h *Handle) Pin() int32 { return h.readers.Add(1) }

// Unpin decrements the reader count and returns the count after the
// decrement. It never goes below zero.
func (h *Handle) Unpin() int32 {
	for {
		cur := h.readers.Load()
		if cur <= 0 {
			return 0
		}
		if h.readers.CompareAndSwap(cur, cur-1) {
			return cur - 1
		}
	}
}

// bumpEvictionTimestamp atomically increments and returns the new
// eviction timestamp. Used by AddToEvictionQueue (spec §4.3 step 2):
// the new value is the one recorded in the hint, and any previously
// enqueued hint for this handle is thereby made dead.
func (h *Handle) bumpEvictionTimestamp() uint64 {
	return h.evictionTimestamp.Add(1)
}

// CanUnload reports whether the handle is presently eligible for
// eviction: no active readers and currently Loaded. The Evictor must
// still re-check this after acquiring lock, since it can change
// concurrently (spec §4.4).
func (h *Handle) CanUnload() bool {
	return h.readers.Load() == 0 && h.State() == StateLoaded
}

// Unload transitions the handle Loaded->Unloaded and frees its buffer.
// The caller must hold h.lock and must have already verified CanUnload
// and hint liveness under that lock (spec §4.4's single locked
// check-then-unload section). Returns the tag and size that should be
// released from the memory accountant.
func (h *Handle) Unload() (MemoryTag, uint64, error) {
	if h.State() != StateLoaded {
		return h.tag, 0, newPoolError(ErrCodeEvictionFailed, "Unload", "handle is not loaded", nil)
	}
	size := h.allocSize
	tag := h.tag
	if err := h.buffer.Free(); err != nil {
		return tag, 0, err
	}
	h.buffer = nil
	h.state.Store(int32(StateUnloaded))
	return tag, size, nil
}

// UnloadAndTakeBlock performs the same state transition and memory
// accounting as Unload, but hands the live buffer to the caller instead
// of freeing it — the fast path of spec §4.4 for same-sized reuse.
func (h *Handle) UnloadAndTakeBlock() (*FileBuffer, MemoryTag, uint64, error) {
	if h.State() != StateLoaded {
		return nil, h.tag, 0, newPoolError(ErrCodeEvictionFailed, "UnloadAndTakeBlock", "handle is not loaded", nil)
	}
	buf := h.buffer
	size := h.allocSize
	tag := h.tag
	h.buffer = nil
	h.state.Store(int32(StateUnloaded))
	return buf, tag, size, nil
}

// WeakHandle is a non-owning reference to a Handle that may be upgraded
// to a strong reference iff the handle is still registered (spec §9).
// It is the "weak reference" primitive an EvictionHint carries: copying
// and moving it freely does not extend the handle's lifetime.
type WeakHandle struct {
	reg        *handleRegistry
	shard      uint32
	slot       uint32
	generation uint64
}

// Upgrade returns the strong *Handle this weak reference points to, iff
// it is still alive (i.e. has not been unregistered since this weak
// reference was taken).
func (w WeakHandle) Upgrade() (*Handle, bool) {
	if w.reg == nil {
		return nil, false
	}
	return w.reg.upgrade(w.shard, w.slot, w.generation)
}

// handleRegistry is the side table described in spec §9: a sharded,
// generational slot arena mapping (shard, slot) -> *Handle, consulted
// under a per-shard shared-read lock. Adapted from the teacher's
// ShardedPageTable (storage/sharded_page_table.go), generalized from a
// plain map-by-pageID into a generation-checked slot map so that a
// WeakHandle captured before a slot is freed (and possibly reused by an
// unrelated handle) correctly fails to upgrade.
type handleRegistry struct {
	shards []*registryShard
	next   atomic.Uint32
}

type registryShard struct {
	mu    sync.RWMutex
	slots []registrySlot
	free  []uint32
}

type registrySlot struct {
	generation uint64
	handle     *Handle
}

// newHandleRegistry creates a registry with numShards shards. numShards
// should be a power of two; 64 mirrors the teacher's default shard count.
func newHandleRegistry(numShards uint32) *handleRegistry {
	if numShards == 0 {
		numShards = 64
	}
	shards := make([]*registryShard, numShards)
	for i := range shards {
		shards[i] = &registryShard{}
	}
	return &handleRegistry{shards: shards}
}

// register assigns the handle a fresh (shard, slot, generation) triple
// and returns a WeakHandle for it. Handles are spread round-robin across
// shards to spread lock contention, the way the teacher spreads pages
// across ShardedPageTable shards by hashing the page ID.
func (r *handleRegistry) register(h *Handle) WeakHandle {
	shardIdx := r.next.Add(1) % uint32(len(r.shards))
	shard := r.shards[shardIdx]

	shard.mu.Lock()
	defer shard.mu.Unlock()

	var slotIdx uint32
	if n := len(shard.free); n > 0 {
		slotIdx = shard.free[n-1]
		shard.free = shard.free[:n-1]
	} else {
		slotIdx = uint32(len(shard.slots))
		shard.slots = append(shard.slots, registrySlot{})
	}

	shard.slots[slotIdx].handle = h
	gen := shard.slots[slotIdx].generation

	h.id = uint64(shardIdx)<<32 | uint64(slotIdx)
	h.generation = gen

	return WeakHandle{reg: r, shard: shardIdx, slot: slotIdx, generation: gen}
}

// unregister removes the handle occupying (shard, slot), bumping its
// generation so that any WeakHandle already pointing at it (or, later,
// at whatever handle reuses the slot) cannot be confused with it.
func (r *handleRegistry) unregister(shardIdx, slotIdx uint32) {
	shard := r.shards[shardIdx]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if int(slotIdx) >= len(shard.slots) {
		return
	}
	shard.slots[slotIdx].handle = nil
	shard.slots[slotIdx].generation++
	shard.free = append(shard.free, slotIdx)
}

func (r *handleRegistry) upgrade(shardIdx, slotIdx uint32, generation uint64) (*Handle, bool) {
	shard := r.shards[shardIdx]
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	if int(slotIdx) >= len(shard.slots) {
		return nil, false
	}
	slot := &shard.slots[slotIdx]
	if slot.handle == nil || slot.generation != generation {
		return nil, false
	}
	return slot.handle, true
}
