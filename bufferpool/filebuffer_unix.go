//go:build unix

package bufferpool

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// allocBuffer reserves an anonymous, private memory mapping of size
// bytes. Using mmap rather than make([]byte, size) keeps large
// buffer-pool allocations out of the Go heap entirely, mirroring the
// teacher's mmap_disk_manager.go.
func allocBuffer(size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	return data, nil
}

// freeBuffer releases a mapping allocated by allocBuffer.
func freeBuffer(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
