package mmio

import "fmt"

// Router is a Bus that forwards accesses to the Bus mounted over the
// addressed range. Accesses outside every range panic, like a bus
// fault would.
type Router struct {
	mounts []mount
}

type mount struct {
	base, size uint32
	bus        Bus
}

// Mount forwards [base, base+size) to bus.
func (r *Router) Mount(base, size uint32, bus Bus) error {
	if base%4 != 0 || size%4 != 0 || size == 0 {
		return fmt.Errorf("mmio: unaligned mount %#x+%#x", base, size)
	}
	for _, m := range r.mounts {
		if base < m.base+m.size && m.base < base+size {
			return fmt.Errorf("mmio: mount %#x overlaps %#x", base, m.base)
		}
	}
	r.mounts = append(r.mounts, mount{base: base, size: size, bus: bus})
	return nil
}

func (r *Router) route(addr uint32) Bus {
	for _, m := range r.mounts {
		if addr >= m.base && addr-m.base < m.size {
			return m.bus
		}
	}
	panic(fmt.Sprintf("mmio: no bus at %#x", addr))
}

func (r *Router) Load32(addr uint32) uint32 {
	return r.route(addr).Load32(addr)
}

func (r *Router) Store32(addr, val uint32) {
	r.route(addr).Store32(addr, val)
}
