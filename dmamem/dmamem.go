// Package dmamem provides memory regions that a DMA engine can address.
//
// A Region has a fixed bus address and never moves or shrinks while
// open, so addresses handed to hardware stay valid until Close. Memory
// is handed out by a bump allocator; Reset reclaims all of it at once
// and must only be called when no transfer can still touch the region.
package dmamem

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNoMemory   = errors.New("dmamem: region exhausted")
	ErrOutOfRange = errors.New("dmamem: address outside region")
	ErrClosed     = errors.New("dmamem: region closed")
)

// Buffer is a span of a Region together with its bus address.
type Buffer struct {
	Addr uint32
	Data []byte
}

func (b Buffer) Len() int {
	return len(b.Data)
}

// Slice returns the sub-buffer b[i:j].
func (b Buffer) Slice(i, j int) Buffer {
	return Buffer{Addr: b.Addr + uint32(i), Data: b.Data[i:j:j]}
}

// Region is a pinned span of memory with a bus address.
type Region struct {
	base  uint32
	mem   []byte
	off   int
	close func() error
}

func newRegion(base uint32, mem []byte, closeFn func() error) (*Region, error) {
	if base%4 != 0 {
		return nil, fmt.Errorf("dmamem: unaligned base %#x", base)
	}
	if uint64(base)+uint64(len(mem)) > math.MaxUint32+1 {
		return nil, fmt.Errorf("dmamem: region at %#x overflows the 32-bit bus", base)
	}
	return &Region{base: base, mem: mem, close: closeFn}, nil
}

func (r *Region) Base() uint32 {
	return r.base
}

func (r *Region) Size() int {
	return len(r.mem)
}

// Used returns the number of bytes handed out since the last Reset.
func (r *Region) Used() int {
	return r.off
}

// Alloc returns size zeroed bytes whose bus address is a multiple of
// align, which must be a power of two.
func (r *Region) Alloc(size, align int) (Buffer, error) {
	if r.mem == nil {
		return Buffer{}, ErrClosed
	}
	if align <= 0 || align&(align-1) != 0 {
		return Buffer{}, fmt.Errorf("dmamem: invalid alignment %d", align)
	}
	if size < 0 {
		return Buffer{}, fmt.Errorf("dmamem: invalid size %d", size)
	}
	addr := uint64(r.base) + uint64(r.off)
	pad := int((uint64(align) - addr%uint64(align)) % uint64(align))
	start := r.off + pad
	if start+size > len(r.mem) {
		return Buffer{}, fmt.Errorf("%w: %d bytes requested, %d free", ErrNoMemory, size, len(r.mem)-r.off)
	}
	r.off = start + size
	data := r.mem[start : start+size : start+size]
	clear(data)
	return Buffer{Addr: r.base + uint32(start), Data: data}, nil
}

// Contains reports whether [addr, addr+n) lies inside r.
func (r *Region) Contains(addr uint32, n int) bool {
	return addr >= r.base && n >= 0 && uint64(addr-r.base)+uint64(n) <= uint64(len(r.mem))
}

// Bytes resolves n bytes at bus address addr.
func (r *Region) Bytes(addr uint32, n int) ([]byte, error) {
	if r.mem == nil {
		return nil, ErrClosed
	}
	if !r.Contains(addr, n) {
		return nil, fmt.Errorf("%w: %#x+%d", ErrOutOfRange, addr, n)
	}
	off := int(addr - r.base)
	return r.mem[off : off+n : off+n], nil
}

// Reset reclaims every allocation.
func (r *Region) Reset() {
	r.off = 0
}

// Close releases the region. Buffers allocated from it must no longer
// be used, by software or hardware.
func (r *Region) Close() error {
	if r.mem == nil {
		return nil
	}
	r.mem = nil
	r.off = 0
	if r.close != nil {
		return r.close()
	}
	return nil
}
