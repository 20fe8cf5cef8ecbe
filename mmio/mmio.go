// Package mmio describes memory-mapped 32-bit registers and the buses
// that reach them.
//
// Every Bus call is exactly one single-width access. Implementations
// must not cache, merge, split or reorder accesses, so a sequence of
// Reg operations reaches the hardware in program order.
package mmio

// Bus performs 32-bit loads and stores at physical addresses.
type Bus interface {
	Load32(addr uint32) uint32
	Store32(addr uint32, val uint32)
}

// Reg is a 32-bit register at a fixed address. A Reg must not be
// copied after Init.
type Reg struct {
	_    noCopy
	bus  Bus
	addr uint32
}

// Init binds r to the register at addr on bus.
func (r *Reg) Init(bus Bus, addr uint32) {
	if addr%4 != 0 {
		panic("mmio: unaligned register")
	}
	r.bus = bus
	r.addr = addr
}

func (r *Reg) Addr() uint32 {
	return r.addr
}

func (r *Reg) Get() uint32 {
	return r.bus.Load32(r.addr)
}

func (r *Reg) Set(v uint32) {
	r.bus.Store32(r.addr, v)
}

// SetBits sets the bits of mask with one load and one store.
func (r *Reg) SetBits(mask uint32) {
	r.Set(r.Get() | mask)
}

// ClearBits clears the bits of mask with one load and one store.
func (r *Reg) ClearBits(mask uint32) {
	r.Set(r.Get() &^ mask)
}

func (r *Reg) HasBits(mask uint32) bool {
	return r.Get()&mask != 0
}

// ReplaceBits replaces the field mask<<pos with value, leaving the
// other bits untouched.
func (r *Reg) ReplaceBits(value, mask uint32, pos uint8) {
	r.Set(r.Get()&^(mask<<pos) | (value&mask)<<pos)
}

// noCopy makes go vet report copies of the enclosing struct.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
