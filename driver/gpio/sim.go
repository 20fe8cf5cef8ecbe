package gpio

import (
	"c3hal.dev/mmio"
	"periph.io/x/conn/v3/gpio"
)

// Simulator models the GPIO matrix mapped into an [mmio.Sim]. The set
// and clear registers update OUT and ENABLE, and IN reads back the
// output of output pins. Input pins read the level driven from outside,
// or their pull when nothing drives them.
type Simulator struct {
	base, muxBase uint32
	driven        uint32
	levels        uint32
}

// NewSimulator maps a simulated GPIO matrix at base into regs. The IO
// MUX registers at muxBase are plain registers.
func NewSimulator(regs *mmio.Sim, base, muxBase uint32) *Simulator {
	s := &Simulator{base: base, muxBase: muxBase}
	regs.Map(base, regsSize, s)
	return s
}

// Drive drives pin n to l from outside the chip.
func (s *Simulator) Drive(n int, l gpio.Level) {
	s.driven |= 0b1 << n
	if l {
		s.levels |= 0b1 << n
	} else {
		s.levels &^= 0b1 << n
	}
}

// Float stops driving pin n.
func (s *Simulator) Float(n int) {
	s.driven &^= 0b1 << n
}

func (s *Simulator) Load(f *mmio.File, addr uint32) {
	if addr-s.base != regIn {
		return
	}
	out := f.Peek(s.base + regOut)
	en := f.Peek(s.base + regEnable)
	var in uint32
	for n := 0; n < NumPins; n++ {
		bit := uint32(0b1) << n
		mux := f.Peek(s.muxBase + muxPin0 + uint32(n)*4)
		var high bool
		switch {
		case en&bit != 0:
			high = out&bit != 0
		case s.driven&bit != 0:
			high = s.levels&bit != 0
		default:
			high = mux&muxPullUp != 0
		}
		if high {
			in |= bit
		}
	}
	f.Poke(addr, in)
}

func (s *Simulator) Store(f *mmio.File, addr, old, val uint32) {
	update := func(reg uint32, set bool) {
		r := s.base + reg
		if set {
			f.Poke(r, f.Peek(r)|val)
		} else {
			f.Poke(r, f.Peek(r)&^val)
		}
		f.Poke(addr, 0)
	}
	switch addr - s.base {
	case regOutSet:
		update(regOut, true)
	case regOutClr:
		update(regOut, false)
	case regEnableSet:
		update(regEnable, true)
	case regEnableClr:
		update(regEnable, false)
	}
}
