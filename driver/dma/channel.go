package dma

import (
	"fmt"

	"c3hal.dev/mmio"
)

// ChannelID identifies one of the GDMA channels.
type ChannelID uint8

func (id ChannelID) valid() bool {
	return id < NumChannels
}

func (id ChannelID) String() string {
	return fmt.Sprintf("ch%d", uint8(id))
}

// Direction selects the transmit or receive side of a channel.
type Direction uint8

const (
	TX Direction = iota // memory to peripheral ("out")
	RX                  // peripheral to memory ("in")
)

func (d Direction) String() string {
	switch d {
	case TX:
		return "tx"
	case RX:
		return "rx"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// Channel accesses the registers of one channel. It carries no
// ownership; use a [Claim] to get exclusive use of a channel.
type Channel struct {
	id      ChannelID
	conf0   [2]mmio.Reg
	link    [2]mmio.Reg
	periSel [2]mmio.Reg
	intRaw  mmio.Reg
	intClr  mmio.Reg
}

func (c *Channel) init(bus mmio.Bus, base uint32, id ChannelID) {
	c.id = id
	ch := uint32(id) * chanStride
	c.conf0[TX].Init(bus, base+outConf0Ch0+ch)
	c.conf0[RX].Init(bus, base+inConf0Ch0+ch)
	c.link[TX].Init(bus, base+outLinkCh0+ch)
	c.link[RX].Init(bus, base+inLinkCh0+ch)
	c.periSel[TX].Init(bus, base+outPeriSelCh0+ch)
	c.periSel[RX].Init(bus, base+inPeriSelCh0+ch)
	intr := base + uint32(id)*intStride
	c.intRaw.Init(bus, intr+intRawCh0)
	c.intClr.Init(bus, intr+intClrCh0)
}

func (c *Channel) ID() ChannelID {
	return c.id
}

// Reset pulses the reset bit of the direction's configuration
// register. The bit is written set and then clear, with no other
// access to the register in between.
func (c *Channel) Reset(dir Direction) {
	r := &c.conf0[dir]
	v := r.Get()
	r.Set(v | conf0Reset)
	r.Set(v &^ conf0Reset)
}

// SetStart points the direction at the descriptor at head. Only the
// address field of the link register changes.
func (c *Channel) SetStart(dir Direction, head uint32) {
	c.link[dir].ReplaceBits(head, linkAddrMask, 0)
}

func (c *Channel) SetPeripheral(dir Direction, p Peripheral) {
	c.periSel[dir].Set(uint32(p))
}

// Enable starts the direction at the descriptor set by SetStart.
func (c *Channel) Enable(dir Direction) {
	c.link[dir].SetBits(linkStart)
}

// EnableLoopback routes the transmit side of the channel to its
// receive side.
func (c *Channel) EnableLoopback() {
	c.conf0[RX].SetBits(inMemTrans)
}

// DisableLoopback connects the transmit side of the channel to its
// peripheral again.
func (c *Channel) DisableLoopback() {
	c.conf0[RX].ClearBits(inMemTrans)
}

// Status returns the raw interrupt bits of the channel.
func (c *Channel) Status() Status {
	return Status(c.intRaw.Get())
}

// ClearStatus clears the bits of s.
func (c *Channel) ClearStatus(s Status) {
	c.intClr.Set(uint32(s))
}

// TxEOF reports whether the transmit side has sent its last
// descriptor.
func (c *Channel) TxEOF() bool {
	return c.Status()&OutEOF != 0
}

// RxEOF reports whether the receive side has ended a frame,
// successfully or not.
func (c *Channel) RxEOF() bool {
	return c.Status()&(InSucEOF|InErrEOF) != 0
}
