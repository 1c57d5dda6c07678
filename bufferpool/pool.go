// Package bufferpool implements the buffer pool with concurrent,
// LRU-approximate eviction used by an embeddable analytical database
// engine (see SPEC_FULL.md). It mediates access to fixed-size,
// memory-resident blocks, enforces a global memory budget, decides
// which blocks to unload under pressure, and amortizes cleanup of stale
// eviction hints through a cooperative background purge.
package bufferpool

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// TemporaryMemoryManager is the external subsystem the pool owns a
// reference to (spec §6) but does not itself implement — scan-wide
// temporary memory reservations are the job of the database's execution
// engine, out of scope here. This stub only carries enough shape for
// the pool to hold and hand back a stable reference to it.
type TemporaryMemoryManager struct {
	mu         sync.Mutex
	reserved   uint64
}

// Reserved returns the bytes currently reserved through this manager.
func (m *TemporaryMemoryManager) Reserved() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserved
}

// SetReserved records the manager's current reservation total. Exposed
// so that callers outside this package's scope (the scan-wide
// temporary-memory subsystem) can report their own bookkeeping through
// the pool without the pool needing to understand it.
func (m *TemporaryMemoryManager) SetReserved(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserved = n
}

// BufferPool is the buffer pool state described across spec §3-§4: the
// memory accountant (C4), the eviction queue (C3), the handle registry
// backing weak references (§9), and the insertion/purge/limit counters
// that tie the Evictor (C5), Purger (C6) and LimitController (C7)
// together.
type BufferPool struct {
	accountant *MemoryAccountant
	queue      *EvictionQueue
	registry   *handleRegistry

	evictQueueInsertions atomic.Uint64
	totalDeadNodes       atomic.Uint64
	purgeActive          atomic.Bool

	purgeScratch []EvictionHint

	limitLock sync.Mutex

	temporaryMemoryManager *TemporaryMemoryManager

	config  *Config
	metrics *Metrics
	logger  *slog.Logger
}

// New creates a buffer pool with the given initial memory limit, using
// DefaultConfig() for the eviction/purge tunables.
func New(maximumMemory uint64) *BufferPool {
	cfg := DefaultConfig()
	cfg.MaximumMemory = maximumMemory
	return NewWithConfig(cfg)
}

// NewWithConfig creates a buffer pool using the supplied configuration.
func NewWithConfig(cfg *Config) *BufferPool {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var metrics *Metrics
	if cfg.EnableMetrics {
		metrics = NewMetrics()
	}

	return &BufferPool{
		accountant:             NewMemoryAccountant(cfg.MaximumMemory),
		queue:                  NewEvictionQueue(DefaultSegmentCapacity),
		registry:               newHandleRegistry(64),
		temporaryMemoryManager: &TemporaryMemoryManager{},
		config:                 cfg,
		metrics:                metrics,
		logger:                 newLogger(cfg.LogLevel),
	}
}

// newLogger builds a slog.Logger at the level named by s (debug, info,
// warn or error), falling back to info for an unrecognized value.
func newLogger(s string) *slog.Logger {
	var level slog.Level
	switch s {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// UsedMemory returns current_memory (spec §6).
func (p *BufferPool) UsedMemory() uint64 { return p.accountant.CurrentMemory() }

// MaxMemory returns maximum_memory (spec §6).
func (p *BufferPool) MaxMemory() uint64 { return p.accountant.MaximumMemory() }

// QueryMaxMemory currently returns the same value as MaxMemory. Spec §9
// keeps it a separate method because a future per-query limit would
// change only this one.
func (p *BufferPool) QueryMaxMemory() uint64 { return p.MaxMemory() }

// TemporaryMemoryManager returns the pool-owned temporary memory manager.
func (p *BufferPool) TemporaryMemoryManager() *TemporaryMemoryManager {
	return p.temporaryMemoryManager
}

// Metrics returns the pool's metrics tracker.
func (p *BufferPool) Metrics() *Metrics { return p.metrics }

// IncreaseUsedMemory books size additional bytes under tag (spec §6).
func (p *BufferPool) IncreaseUsedMemory(tag MemoryTag, size uint64) {
	p.accountant.Increase(tag, size)
}

// Register assigns the handle a weak reference through the pool's
// handle registry so that eviction hints for it can later be upgraded.
// The (out-of-scope) block manager is expected to call this once when a
// handle is first created, before the handle is ever unpinned.
func (p *BufferPool) Register(h *Handle) WeakHandle {
	return p.registry.register(h)
}

// Unregister removes the handle from the pool's registry, invalidating
// any outstanding weak references to it. Callers must do this when a
// handle is destroyed (no strong references and no readers remain).
func (p *BufferPool) Unregister(h *Handle) {
	p.registry.unregister(uint32(h.id>>32), uint32(h.id))
}

// AddToEvictionQueue is the hint-insertion producer half (spec §4.3).
// Call it when a handle's reader count drops to zero, while holding the
// handle's lock (or before the handle has become shared). Returns true
// when the caller should trigger a purge.
func (p *BufferPool) AddToEvictionQueue(h *Handle, weak WeakHandle) bool {
	ts := h.bumpEvictionTimestamp()

	p.queue.TryEnqueue(EvictionHint{Weak: weak, Timestamp: ts})

	if ts != 1 {
		// A newer hint was just added for this handle; exactly one
		// previously enqueued hint for it has become dead.
		p.totalDeadNodes.Add(1)
	}

	return p.evictQueueInsertions.Add(1) >= p.config.InsertInterval
}

// SetLimit is the LimitController operation (spec §4.7/C7): it
// serializes limit changes, evicts to fit both before and after the
// limit becomes visible, and rolls back on failure.
func (p *BufferPool) SetLimit(limit uint64, messageSuffix string) error {
	p.limitLock.Lock()
	defer p.limitLock.Unlock()

	if res := p.EvictBlocks(TagExtension, 0, limit, nil); !res.Success {
		return newOutOfMemoryError("SetLimit", limit, messageSuffix)
	}

	oldLimit := p.accountant.MaximumMemory()
	p.accountant.SetMaximumMemory(limit)

	if res := p.EvictBlocks(TagExtension, 0, limit, nil); !res.Success {
		p.accountant.SetMaximumMemory(oldLimit)
		return newOutOfMemoryError("SetLimit", limit, messageSuffix)
	}

	return nil
}
