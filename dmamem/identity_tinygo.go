//go:build tinygo

package dmamem

import "unsafe"

// NewIdentity returns a region of Go memory whose bus address is its
// CPU address, for engines sharing the CPU's view of memory.
func NewIdentity(size int) (*Region, error) {
	if size <= 0 {
		return nil, ErrNoMemory
	}
	words := make([]uint32, (size+3)/4)
	data := unsafe.SliceData(words)
	mem := unsafe.Slice((*byte)(unsafe.Pointer(data)), size)
	return newRegion(uint32(uintptr(unsafe.Pointer(data))), mem, nil)
}
