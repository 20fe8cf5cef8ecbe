//go:build linux && !tinygo

package mmio

import (
	"errors"
	"fmt"
	"sync/atomic"

	"periph.io/x/host/v3/pmem"
)

// Window is a Bus over a physical address range mapped from /dev/mem.
type Window struct {
	view  *pmem.View
	words []uint32
	base  uint32
}

// MapDevMem maps size bytes of physical memory starting at base. It
// usually requires root.
func MapDevMem(base uint32, size int) (*Window, error) {
	if base%4 != 0 || size <= 0 || size%4 != 0 {
		return nil, errors.New("mmio: unaligned window")
	}
	v, err := pmem.Map(uint64(base), size)
	if err != nil {
		return nil, fmt.Errorf("mmio: map %#x: %w", base, err)
	}
	return &Window{view: v, words: v.Uint32(), base: base}, nil
}

func (w *Window) word(addr uint32) *uint32 {
	off := addr - w.base
	if addr < w.base || addr%4 != 0 || int(off/4) >= len(w.words) {
		panic(fmt.Sprintf("mmio: address %#x outside window", addr))
	}
	return &w.words[off/4]
}

func (w *Window) Load32(addr uint32) uint32 {
	return atomic.LoadUint32(w.word(addr))
}

func (w *Window) Store32(addr, val uint32) {
	atomic.StoreUint32(w.word(addr), val)
}

func (w *Window) Close() error {
	return w.view.Close()
}
