//go:build linux && !tinygo

package dmamem

import (
	"fmt"

	"golang.org/x/sys/unix"
	"periph.io/x/host/v3/pmem"
)

// NewLocked maps size bytes of anonymous memory, locks it into RAM and
// presents it to the bus at base.
func NewLocked(base uint32, size int) (*Region, error) {
	if size <= 0 {
		return nil, ErrNoMemory
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("dmamem: mmap: %w", err)
	}
	if err := unix.Mlock(mem); err != nil {
		unix.Munmap(mem)
		return nil, fmt.Errorf("dmamem: mlock: %w", err)
	}
	r, err := newRegion(base, mem, func() error {
		if err := unix.Munlock(mem); err != nil {
			return err
		}
		return unix.Munmap(mem)
	})
	if err != nil {
		unix.Munlock(mem)
		unix.Munmap(mem)
	}
	return r, err
}

// NewPhysical allocates physically contiguous memory whose bus address
// is its physical address. size must be a multiple of the page size.
func NewPhysical(size int) (*Region, error) {
	m, err := pmem.Alloc(size)
	if err != nil {
		return nil, fmt.Errorf("dmamem: %w", err)
	}
	phys := m.PhysAddr()
	if phys+uint64(size) > 1<<32 {
		m.Close()
		return nil, fmt.Errorf("dmamem: physical memory at %#x is beyond the 32-bit bus", phys)
	}
	r, err := newRegion(uint32(phys), m.Bytes(), m.Close)
	if err != nil {
		m.Close()
	}
	return r, err
}
