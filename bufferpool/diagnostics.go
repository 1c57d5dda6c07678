package bufferpool

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/snappy"
)

// Snapshot is a point-in-time dump of pool state for diagnostics (spec
// §9 "observability hooks"). It mirrors the teacher's habit of keeping a
// single flat struct per diagnostic dump (storage/metrics.go's
// LogMetrics groups) rather than exposing internals piecemeal.
type Snapshot struct {
	TakenAt       time.Time         `json:"taken_at"`
	CurrentMemory uint64            `json:"current_memory"`
	MaximumMemory uint64            `json:"maximum_memory"`
	PerTagUsage   map[string]uint64 `json:"per_tag_usage"`
	QueueSize     uint64            `json:"queue_size_approx"`
	DeadNodes     uint64            `json:"total_dead_nodes"`
	PurgeActive   bool              `json:"purge_active"`
	Metrics       snapshotMetrics   `json:"metrics"`
}

type snapshotMetrics struct {
	EvictionAttempts  uint64            `json:"eviction_attempts"`
	EvictionSuccesses uint64            `json:"eviction_successes"`
	EvictionFailures  uint64            `json:"eviction_failures"`
	BlocksUnloaded    uint64            `json:"blocks_unloaded"`
	BuffersReused     uint64            `json:"buffers_reused"`
	DeadHintsDropped  uint64            `json:"dead_hints_dropped"`
	PurgeSweeps       uint64            `json:"purge_sweeps"`
	PurgeSkipped      uint64            `json:"purge_skipped"`
	EvictionLatencyUs HistogramSnapshot `json:"eviction_latency_us"`
	PurgeLatencyUs    HistogramSnapshot `json:"purge_latency_us"`
}

// DumpSnapshot captures the pool's current state.
func (p *BufferPool) DumpSnapshot() Snapshot {
	perTag := make(map[string]uint64, int(MemoryTagCount))
	for t := MemoryTag(0); t < MemoryTagCount; t++ {
		perTag[t.String()] = p.accountant.UsagePerTag(t)
	}

	var m snapshotMetrics
	if p.metrics != nil {
		m = snapshotMetrics{
			EvictionAttempts:  p.metrics.GetEvictionAttempts(),
			EvictionSuccesses: p.metrics.GetEvictionSuccesses(),
			EvictionFailures:  p.metrics.GetEvictionFailures(),
			BlocksUnloaded:    p.metrics.GetBlocksUnloaded(),
			BuffersReused:     p.metrics.GetBuffersReused(),
			DeadHintsDropped:  p.metrics.GetDeadHintsDropped(),
			PurgeSweeps:       p.metrics.GetPurgeSweeps(),
			PurgeSkipped:      p.metrics.GetPurgeSkipped(),
			EvictionLatencyUs: p.metrics.evictionLatency.Snapshot(),
			PurgeLatencyUs:    p.metrics.purgeLatency.Snapshot(),
		}
	}

	return Snapshot{
		TakenAt:       time.Now(),
		CurrentMemory: p.accountant.CurrentMemory(),
		MaximumMemory: p.accountant.MaximumMemory(),
		PerTagUsage:   perTag,
		QueueSize:     p.queue.SizeApprox(),
		DeadNodes:     p.totalDeadNodes.Load(),
		PurgeActive:   p.purgeActive.Load(),
		Metrics:       m,
	}
}

// DumpDiagnostics marshals a Snapshot to JSON and compresses it with
// snappy, the way the teacher compresses page images before writing them
// out (storage/page_compression.go) — here applied to a diagnostics blob
// instead of a page, since nothing else in this package's scope needs a
// second general-purpose codec.
func (p *BufferPool) DumpDiagnostics() ([]byte, error) {
	snap := p.DumpSnapshot()
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// LoadDiagnostics decompresses and unmarshals a blob produced by
// DumpDiagnostics.
func LoadDiagnostics(compressed []byte) (Snapshot, error) {
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decompress snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}
