package bufferpool

import (
	"sync"
)

// FileBuffer is the owned, loaded bytes behind a Handle (spec §3's
// "buffer: present iff state = Loaded"). It is allocated outside normal
// Go heap memory (see filebuffer_unix.go) so that buffer-pool memory,
// which can run into the gigabytes, does not pressure the garbage
// collector — the same rationale the teacher's mmap_disk_manager.go and
// cockroachdb/pebble's cache.Value give for manual memory management.
type FileBuffer struct {
	mu    sync.Mutex
	data  []byte
	size  uint64
	freed bool
}

// NewFileBuffer allocates a FileBuffer of the given size.
func NewFileBuffer(size uint64) (*FileBuffer, error) {
	data, err := allocBuffer(size)
	if err != nil {
		return nil, err
	}
	return &FileBuffer{data: data, size: size}, nil
}

// AllocSize returns the number of bytes this buffer occupies. Matches
// spec §4.4's same-size reuse check (handle.alloc_size == extra_memory).
func (b *FileBuffer) AllocSize() uint64 {
	return b.size
}

// Bytes exposes the underlying storage. Callers must not retain it past
// Free.
func (b *FileBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// Free releases the underlying allocation. Safe to call at most once;
// a second call is a no-op.
func (b *FileBuffer) Free() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return nil
	}
	b.freed = true
	data := b.data
	b.data = nil
	return freeBuffer(data)
}
