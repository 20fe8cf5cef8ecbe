//go:build tinygo

package mmio

import (
	"runtime/volatile"
	"unsafe"
)

// Volatile is the Bus of the running chip: addresses are physical
// addresses in the CPU's own address space.
type Volatile struct{}

func (Volatile) Load32(addr uint32) uint32 {
	return volatile.LoadUint32((*uint32)(unsafe.Pointer(uintptr(addr))))
}

func (Volatile) Store32(addr, val uint32) {
	volatile.StoreUint32((*uint32)(unsafe.Pointer(uintptr(addr))), val)
}
