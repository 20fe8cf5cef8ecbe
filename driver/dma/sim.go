package dma

import (
	"errors"
	"io"

	"c3hal.dev/mmio"
)

// Memory resolves bus addresses for the simulated engine.
// [dmamem.Region] implements it.
type Memory interface {
	Bytes(addr uint32, n int) ([]byte, error)
}

// Simulator models the engine behind a register block mapped into an
// [mmio.Sim]. It walks descriptor chains in Memory: every read of an
// interrupt status register advances each enabled direction by one
// descriptor, transmit sides first.
//
// A channel in loopback mode feeds its receive side from its transmit
// side. Otherwise data goes to and comes from the devices attached to
// the selected peripherals. A receive frame from a device ends when
// the device returns io.EOF and no transmit side is sending to it.
type Simulator struct {
	base    uint32
	mem     Memory
	chans   [NumChannels]simChannel
	devices map[Peripheral]io.ReadWriter
	buf     [MaxSegment]byte
}

type simChannel struct {
	side [2]simSide
	// Received data not yet written to descriptors.
	rxq []byte
	// rxEOF marks the end of the frame after rxq.
	rxEOF bool
}

type simSide struct {
	active bool
	node   uint32
}

// NewSimulator maps a simulated engine at base into regs.
func NewSimulator(regs *mmio.Sim, base uint32, mem Memory) *Simulator {
	s := &Simulator{
		base:    base,
		mem:     mem,
		devices: make(map[Peripheral]io.ReadWriter),
	}
	regs.Map(base, regsSize, s)
	return s
}

// Attach connects dev to peripheral p. Devices must not block, and
// must be attached before transfers start.
func (s *Simulator) Attach(p Peripheral, dev io.ReadWriter) {
	s.devices[p] = dev
}

func (s *Simulator) Load(f *mmio.File, addr uint32) {
	off := addr - s.base
	if off >= NumChannels*intStride {
		return
	}
	if r := off % intStride; r != intRawCh0 && r != intStCh0 {
		return
	}
	for i := range s.chans {
		s.stepTX(f, ChannelID(i))
	}
	for i := range s.chans {
		s.stepRX(f, ChannelID(i))
	}
}

func (s *Simulator) Store(f *mmio.File, addr, old, val uint32) {
	off := addr - s.base
	if off < NumChannels*intStride {
		if off%intStride == intClrCh0 {
			id := ChannelID(off / intStride)
			raw := s.reg(id, intRawCh0, 0)
			f.Poke(raw, f.Peek(raw)&^val)
			f.Poke(addr, 0)
			s.updateStatus(f, id)
		}
		if off%intStride == intEnaCh0 {
			s.updateStatus(f, ChannelID(off/intStride))
		}
		return
	}
	if off < inConf0Ch0 {
		return
	}
	id := ChannelID((off - inConf0Ch0) / chanStride)
	if !id.valid() {
		return
	}
	ch := &s.chans[id]
	switch (off-inConf0Ch0)%chanStride + inConf0Ch0 {
	case outConf0Ch0:
		if val&conf0Reset != 0 {
			ch.side[TX] = simSide{}
		}
	case inConf0Ch0:
		if val&conf0Reset != 0 {
			ch.side[RX] = simSide{}
			ch.rxq = nil
			ch.rxEOF = false
		}
	case outLinkCh0:
		s.link(f, addr, val, &ch.side[TX])
	case inLinkCh0:
		s.link(f, addr, val, &ch.side[RX])
	}
}

func (s *Simulator) link(f *mmio.File, addr, val uint32, side *simSide) {
	if val&linkStart == 0 {
		return
	}
	side.active = true
	side.node = linkBase | val&linkAddrMask
	// The start bit clears itself.
	f.Poke(addr, val&^linkStart)
}

// reg returns the address of the register at off in the interrupt
// group (group 0) or configuration group (group 1) of channel id.
func (s *Simulator) reg(id ChannelID, off uint32, group int) uint32 {
	if group == 0 {
		return s.base + uint32(id)*intStride + off
	}
	return s.base + uint32(id)*chanStride + off
}

func (s *Simulator) raise(f *mmio.File, id ChannelID, st Status) {
	raw := s.reg(id, intRawCh0, 0)
	f.Poke(raw, f.Peek(raw)|uint32(st))
	s.updateStatus(f, id)
}

func (s *Simulator) updateStatus(f *mmio.File, id ChannelID) {
	raw := f.Peek(s.reg(id, intRawCh0, 0))
	ena := f.Peek(s.reg(id, intEnaCh0, 0))
	f.Poke(s.reg(id, intStCh0, 0), raw&ena)
}

func (s *Simulator) loopback(f *mmio.File, id ChannelID) bool {
	return f.Peek(s.reg(id, inConf0Ch0, 1))&inMemTrans != 0
}

func (s *Simulator) peripheral(f *mmio.File, id ChannelID, dir Direction) Peripheral {
	off := uint32(outPeriSelCh0)
	if dir == RX {
		off = inPeriSelCh0
	}
	return Peripheral(f.Peek(s.reg(id, off, 1)))
}

// fetch returns the descriptor at addr if the engine may use it.
func (s *Simulator) fetch(addr uint32) (*Descriptor, bool) {
	if addr%4 != 0 {
		return nil, false
	}
	mem, err := s.mem.Bytes(addr, DescriptorSize)
	if err != nil {
		return nil, false
	}
	d := descriptorAt(mem)
	return d, d.OwnedByDMA()
}

func (s *Simulator) stepTX(f *mmio.File, id ChannelID) {
	ch := &s.chans[id]
	side := &ch.side[TX]
	if !side.active {
		return
	}
	d, ok := s.fetch(side.node)
	var data []byte
	var err error
	if ok {
		data, err = s.mem.Bytes(d.BufferAddr(), d.Len())
	}
	if !ok || err != nil {
		side.active = false
		s.raise(f, id, OutDscrErr)
		return
	}
	if s.loopback(f, id) {
		ch.rxq = append(ch.rxq, data...)
	} else if dev := s.devices[s.peripheral(f, id, TX)]; dev != nil {
		// Devices are sinks; a failed write drops the data.
		dev.Write(data)
	}
	ctrl := d.Control()
	ctrl.Owner = false
	d.setControl(ctrl)
	if !ctrl.EOF {
		side.node = d.Next()
		s.raise(f, id, OutDone)
		return
	}
	side.active = false
	if s.loopback(f, id) {
		ch.rxEOF = true
	}
	s.raise(f, id, OutDone|OutEOF|OutTotalEOF)
}

// sending reports whether a transmit side is sending to p.
func (s *Simulator) sending(f *mmio.File, p Peripheral) bool {
	for i := range s.chans {
		id := ChannelID(i)
		if s.chans[i].side[TX].active && !s.loopback(f, id) && s.peripheral(f, id, TX) == p {
			return true
		}
	}
	return false
}

func (s *Simulator) receive(f *mmio.File, id ChannelID) {
	ch := &s.chans[id]
	if s.loopback(f, id) || ch.rxEOF {
		return
	}
	p := s.peripheral(f, id, RX)
	dev := s.devices[p]
	if dev == nil {
		return
	}
	n, err := dev.Read(s.buf[:])
	ch.rxq = append(ch.rxq, s.buf[:n]...)
	if errors.Is(err, io.EOF) && !s.sending(f, p) {
		ch.rxEOF = true
	}
}

func (s *Simulator) stepRX(f *mmio.File, id ChannelID) {
	ch := &s.chans[id]
	side := &ch.side[RX]
	if !side.active {
		return
	}
	s.receive(f, id)
	d, ok := s.fetch(side.node)
	if !ok {
		side.active = false
		s.raise(f, id, InDscrErr)
		return
	}
	ctrl := d.Control()
	size := int(ctrl.Size)
	avail := len(ch.rxq)
	last := ctrl.EOF
	// Wait for a full descriptor, the end of the frame, or proof of
	// overflow.
	if !ch.rxEOF && (avail < size || last && avail == size) {
		return
	}
	n := min(size, avail)
	buf, err := s.mem.Bytes(d.BufferAddr(), n)
	if err != nil {
		side.active = false
		s.raise(f, id, InDscrErr)
		return
	}
	copy(buf, ch.rxq[:n])
	ch.rxq = ch.rxq[n:]
	ctrl.Owner = false
	ctrl.Length = uint16(n)
	switch {
	case ch.rxEOF && len(ch.rxq) == 0:
		ctrl.EOF = true
		d.setControl(ctrl)
		side.active = false
		ch.rxEOF = false
		s.raise(f, id, InDone|InSucEOF)
	case last:
		// The frame does not fit the chain.
		ctrl.Err = 1
		d.setControl(ctrl)
		side.active = false
		s.raise(f, id, InDone|InErrEOF|InDscrEmpty)
	default:
		d.setControl(ctrl)
		side.node = d.Next()
		s.raise(f, id, InDone)
	}
}
