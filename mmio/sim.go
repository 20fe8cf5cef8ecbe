package mmio

import (
	"fmt"
	"sync"
)

// Sim is a simulated register file. Registers that were never written
// read as zero. Devices attach to address ranges with Map to model the
// side effects of loads and stores.
type Sim struct {
	mu       sync.Mutex
	file     File
	handlers []mapping
	tracing  bool
	trace    []Access
}

// File is the raw register storage of a Sim, as seen by Handlers.
// Peek and Poke have no side effects and are not traced.
type File struct {
	regs map[uint32]uint32
}

// Handler models a device mapped into a Sim. Handlers run with the Sim
// locked and must only touch registers through the File.
type Handler interface {
	// Load is called before the register at addr is read.
	Load(f *File, addr uint32)
	// Store is called after val replaced old at addr.
	Store(f *File, addr, old, val uint32)
}

// Access is a traced bus access.
type Access struct {
	Write bool
	Addr  uint32
	Val   uint32
}

type mapping struct {
	base, size uint32
	h          Handler
}

func NewSim() *Sim {
	return &Sim{file: File{regs: make(map[uint32]uint32)}}
}

func (f *File) Peek(addr uint32) uint32 {
	return f.regs[addr]
}

func (f *File) Poke(addr, val uint32) {
	f.regs[addr] = val
}

// Map attaches h to the registers in [base, base+size).
func (s *Sim) Map(base, size uint32, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.handlers {
		if base < m.base+m.size && m.base < base+size {
			panic(fmt.Sprintf("mmio: mapping %#x overlaps %#x", base, m.base))
		}
	}
	s.handlers = append(s.handlers, mapping{base: base, size: size, h: h})
}

func (s *Sim) handler(addr uint32) Handler {
	for _, m := range s.handlers {
		if addr >= m.base && addr-m.base < m.size {
			return m.h
		}
	}
	return nil
}

func (s *Sim) Load32(addr uint32) uint32 {
	checkAligned(addr)
	s.mu.Lock()
	defer s.mu.Unlock()
	if h := s.handler(addr); h != nil {
		h.Load(&s.file, addr)
	}
	v := s.file.Peek(addr)
	if s.tracing {
		s.trace = append(s.trace, Access{Addr: addr, Val: v})
	}
	return v
}

func (s *Sim) Store32(addr, val uint32) {
	checkAligned(addr)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracing {
		s.trace = append(s.trace, Access{Write: true, Addr: addr, Val: val})
	}
	old := s.file.Peek(addr)
	s.file.Poke(addr, val)
	if h := s.handler(addr); h != nil {
		h.Store(&s.file, addr, old, val)
	}
}

// Peek reads a register without side effects.
func (s *Sim) Peek(addr uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Peek(addr)
}

// Poke writes a register without side effects.
func (s *Sim) Poke(addr, val uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Poke(addr, val)
}

// Trace turns recording of accesses on or off. Turning it on discards
// earlier records.
func (s *Sim) Trace(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracing = on
	if on {
		s.trace = nil
	}
}

// Accesses returns the accesses recorded since tracing was turned on.
func (s *Sim) Accesses() []Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Access(nil), s.trace...)
}

func (a Access) String() string {
	if a.Write {
		return fmt.Sprintf("W %#08x <- %#08x", a.Addr, a.Val)
	}
	return fmt.Sprintf("R %#08x -> %#08x", a.Addr, a.Val)
}

func checkAligned(addr uint32) {
	if addr%4 != 0 {
		panic(fmt.Sprintf("mmio: unaligned access at %#x", addr))
	}
}
