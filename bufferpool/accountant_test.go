package bufferpool

import "testing"

func TestMemoryAccountantIncreaseDecrease(t *testing.T) {
	a := NewMemoryAccountant(1 << 20)
	a.Increase(TagBaseTable, 100)
	a.Increase(TagHashTable, 50)

	if got := a.CurrentMemory(); got != 150 {
		t.Fatalf("expected current memory 150, got %d", got)
	}
	if got := a.UsagePerTag(TagBaseTable); got != 100 {
		t.Fatalf("expected 100 under TagBaseTable, got %d", got)
	}

	a.Decrease(TagBaseTable, 40)
	if got := a.CurrentMemory(); got != 110 {
		t.Fatalf("expected current memory 110, got %d", got)
	}
}

func TestMemoryAccountantDecreaseSaturatesAtZero(t *testing.T) {
	a := NewMemoryAccountant(1 << 20)
	a.Increase(TagBaseTable, 10)
	a.Decrease(TagBaseTable, 100)
	if got := a.CurrentMemory(); got != 0 {
		t.Fatalf("expected current memory to saturate at 0, got %d", got)
	}
}

func TestReservationResizeAndRelease(t *testing.T) {
	a := NewMemoryAccountant(1 << 20)
	r := a.Reserve(TagExtension, 100)
	if got := a.CurrentMemory(); got != 100 {
		t.Fatalf("expected 100 booked after Reserve, got %d", got)
	}

	r.Resize(50)
	if got := a.CurrentMemory(); got != 50 {
		t.Fatalf("expected 50 booked after shrinking Resize, got %d", got)
	}

	r.Resize(200)
	if got := a.CurrentMemory(); got != 200 {
		t.Fatalf("expected 200 booked after growing Resize, got %d", got)
	}

	r.Release()
	if got := a.CurrentMemory(); got != 0 {
		t.Fatalf("expected 0 booked after Release, got %d", got)
	}

	// Release must be idempotent.
	r.Release()
	if got := a.CurrentMemory(); got != 0 {
		t.Fatalf("expected second Release to be a no-op, got %d", got)
	}
}

func TestReservationResizeZeroStillReleasable(t *testing.T) {
	a := NewMemoryAccountant(1 << 20)
	r := a.Reserve(TagExtension, 100)
	r.Resize(0)
	if got := a.CurrentMemory(); got != 0 {
		t.Fatalf("expected Resize(0) to shrink the booking to 0, got %d", got)
	}
	r.Release()
	if got := a.CurrentMemory(); got != 0 {
		t.Fatalf("expected 0 after resize-to-zero+release, got %d", got)
	}
}

func TestReservationCommitLeavesBytesBooked(t *testing.T) {
	a := NewMemoryAccountant(1 << 20)
	r := a.Reserve(TagExtension, 100)
	r.Commit()
	if got := a.CurrentMemory(); got != 100 {
		t.Fatalf("expected Commit to leave the 100 booked bytes in place, got %d", got)
	}
	// Release after Commit must not double-decrement the accountant.
	r.Release()
	if got := a.CurrentMemory(); got != 100 {
		t.Fatalf("expected Release after Commit to be a no-op, got %d", got)
	}
}
