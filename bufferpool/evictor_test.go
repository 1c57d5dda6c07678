package bufferpool

import "testing"

// makeEvictableHandle creates a loaded handle, books its memory with the
// pool's accountant, registers it, and enqueues an eviction hint for it
// — the sequence a real block manager runs once it unpins a block.
func makeEvictableHandle(t *testing.T, p *BufferPool, tag MemoryTag, size uint64) *Handle {
	t.Helper()
	h, err := NewHandle(tag, size)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	p.IncreaseUsedMemory(tag, size)
	weak := p.Register(h)
	p.AddToEvictionQueue(h, weak)
	return h
}

func TestEvictBlocksFreesEnoughMemory(t *testing.T) {
	p := New(1 << 30)

	makeEvictableHandle(t, p, TagBaseTable, 100)
	makeEvictableHandle(t, p, TagBaseTable, 100)
	makeEvictableHandle(t, p, TagBaseTable, 100)

	if got := p.UsedMemory(); got != 300 {
		t.Fatalf("expected 300 bytes used before eviction, got %d", got)
	}

	res := p.EvictBlocks(TagBaseTable, 0, 100, nil)
	if !res.Success {
		t.Fatal("expected eviction to succeed")
	}
	if got := p.UsedMemory(); got > 100 {
		t.Fatalf("expected used memory <= 100 after eviction, got %d", got)
	}
}

func TestEvictBlocksFailsWhenNothingEvictable(t *testing.T) {
	p := New(1 << 30)

	h := makeEvictableHandle(t, p, TagBaseTable, 500)
	h.Pin() // pinned handles cannot be unloaded

	res := p.EvictBlocks(TagBaseTable, 0, 100, nil)
	if res.Success {
		t.Fatal("expected eviction to fail when the only block is pinned")
	}
}

func TestEvictBlocksSkipsDeadHints(t *testing.T) {
	p := New(1 << 30)

	h := makeEvictableHandle(t, p, TagBaseTable, 100)
	// Pin and unpin, then enqueue a newer hint below: the first hint
	// enqueued by makeEvictableHandle now carries a stale timestamp and
	// is dead.
	h.Pin()
	h.Unpin()
	weak := p.Register(h)
	p.AddToEvictionQueue(h, weak)

	res := p.EvictBlocks(TagBaseTable, 0, 0, nil)
	if !res.Success {
		t.Fatal("expected eviction to succeed despite a dead hint in the queue")
	}
	if got := p.UsedMemory(); got != 0 {
		t.Fatalf("expected all memory freed, got %d", got)
	}
}

func TestEvictBlocksReservesExtraMemory(t *testing.T) {
	p := New(1 << 30)
	makeEvictableHandle(t, p, TagBaseTable, 100)

	res := p.EvictBlocks(TagExtension, 64, 64, nil)
	if !res.Success {
		t.Fatal("expected eviction to succeed")
	}
	if res.Reservation.Size() != 64 {
		t.Fatalf("expected reservation of 64 bytes, got %d", res.Reservation.Size())
	}
	if got := p.accountant.UsagePerTag(TagExtension); got != 64 {
		t.Fatalf("expected 64 bytes booked under TagExtension, got %d", got)
	}
	res.Reservation.Release()
}

func TestEvictBlocksReusesSameSizedBuffer(t *testing.T) {
	p := New(1 << 30)
	makeEvictableHandle(t, p, TagBaseTable, 128)

	var out *FileBuffer
	res := p.EvictBlocks(TagExtension, 128, 0, &out)
	if !res.Success {
		t.Fatal("expected eviction to succeed")
	}
	if out == nil {
		t.Fatal("expected a reused buffer to be handed back")
	}
	if out.AllocSize() != 128 {
		t.Fatalf("expected reused buffer of 128 bytes, got %d", out.AllocSize())
	}
	if got := p.metrics.GetBuffersReused(); got != 1 {
		t.Fatalf("expected buffer reuse to be recorded, got %d", got)
	}
}
