package bufferpool

import "testing"

func TestNewHandleIsLoaded(t *testing.T) {
	h, err := NewHandle(TagBaseTable, 4096)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	if h.State() != StateLoaded {
		t.Fatalf("expected StateLoaded, got %v", h.State())
	}
	if h.AllocSize() != 4096 {
		t.Fatalf("expected alloc size 4096, got %d", h.AllocSize())
	}
	if !h.CanUnload() {
		t.Fatal("freshly created handle with no readers should be unloadable")
	}
}

func TestHandlePinUnpin(t *testing.T) {
	h, err := NewHandle(TagBaseTable, 4096)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	h.Pin()
	h.Pin()
	if h.Readers() != 2 {
		t.Fatalf("expected 2 readers, got %d", h.Readers())
	}
	if h.CanUnload() {
		t.Fatal("pinned handle should not be unloadable")
	}
	h.Unpin()
	h.Unpin()
	if h.Readers() != 0 {
		t.Fatalf("expected 0 readers, got %d", h.Readers())
	}
	if h.Unpin() != 0 {
		t.Fatal("Unpin below zero should clamp at zero")
	}
}

func TestHandleUnload(t *testing.T) {
	h, err := NewHandle(TagHashTable, 1024)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	tag, size, err := h.Unload()
	if err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if tag != TagHashTable || size != 1024 {
		t.Fatalf("unexpected unload result: tag=%v size=%d", tag, size)
	}
	if h.State() != StateUnloaded {
		t.Fatal("expected StateUnloaded after Unload")
	}
	if _, _, err := h.Unload(); err == nil {
		t.Fatal("expected error unloading an already-unloaded handle")
	}
}

func TestHandleUnloadAndTakeBlock(t *testing.T) {
	h, err := NewHandle(TagArtifact, 2048)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	buf, tag, size, err := h.UnloadAndTakeBlock()
	if err != nil {
		t.Fatalf("UnloadAndTakeBlock: %v", err)
	}
	if tag != TagArtifact || size != 2048 {
		t.Fatalf("unexpected accounting: tag=%v size=%d", tag, size)
	}
	if buf == nil || buf.AllocSize() != 2048 {
		t.Fatal("expected a live buffer of the same size handed back")
	}
	if h.State() != StateUnloaded {
		t.Fatal("expected StateUnloaded after UnloadAndTakeBlock")
	}
}

func TestBumpEvictionTimestampMonotonic(t *testing.T) {
	h, err := NewHandle(TagBaseTable, 512)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	a := h.bumpEvictionTimestamp()
	b := h.bumpEvictionTimestamp()
	if b != a+1 {
		t.Fatalf("expected strictly increasing timestamps, got %d then %d", a, b)
	}
}

func TestWeakHandleUpgradeAfterUnregister(t *testing.T) {
	reg := newHandleRegistry(4)
	h, err := NewHandle(TagBaseTable, 512)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	weak := reg.register(h)

	got, ok := weak.Upgrade()
	if !ok || got != h {
		t.Fatal("expected upgrade to succeed immediately after register")
	}

	reg.unregister(uint32(h.id>>32), uint32(h.id))

	if _, ok := weak.Upgrade(); ok {
		t.Fatal("expected upgrade to fail after unregister")
	}
}

func TestWeakHandleUpgradeAfterSlotReuse(t *testing.T) {
	reg := newHandleRegistry(1)

	h1, err := NewHandle(TagBaseTable, 512)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	weak1 := reg.register(h1)
	reg.unregister(uint32(h1.id>>32), uint32(h1.id))

	h2, err := NewHandle(TagBaseTable, 512)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	weak2 := reg.register(h2)

	// With a single shard, h2 is highly likely to reuse h1's freed slot.
	// weak1 must not resolve to h2 even if it does.
	if got, ok := weak1.Upgrade(); ok {
		t.Fatalf("stale weak reference resolved to %v after slot reuse", got)
	}
	if got, ok := weak2.Upgrade(); !ok || got != h2 {
		t.Fatal("fresh weak reference should upgrade to the handle that registered it")
	}
}
