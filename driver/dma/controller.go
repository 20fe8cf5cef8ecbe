package dma

import (
	"fmt"
	"math/bits"
	"sync"

	"c3hal.dev/mmio"
)

// Controller is a GDMA register block. It hands out channels through
// claims, so that no two pipes program the same channel.
type Controller struct {
	bus   mmio.Bus
	base  uint32
	chans [NumChannels]Channel

	mu       sync.Mutex
	reserved uint8
}

// New returns the controller whose registers are at base on bus.
func New(bus mmio.Bus, base uint32) *Controller {
	c := &Controller{bus: bus, base: base}
	for i := range c.chans {
		c.chans[i].init(bus, base, ChannelID(i))
	}
	return c
}

// Base returns the address of the register block.
func (c *Controller) Base() uint32 {
	return c.base
}

// Reserve claims channel id.
func (c *Controller) Reserve(id ChannelID) (*Claim, error) {
	if !id.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannel, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reserved&(0b1<<id) != 0 {
		return nil, fmt.Errorf("%w: %v", ErrChannelInUse, id)
	}
	c.reserved |= 0b1 << id
	return &Claim{c: c, id: id}, nil
}

// ReserveAny claims the lowest free channel.
func (c *Controller) ReserveAny() (*Claim, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := bits.TrailingZeros8(^c.reserved)
	if id >= NumChannels {
		return nil, ErrNoChannel
	}
	c.reserved |= 0b1 << id
	return &Claim{c: c, id: ChannelID(id)}, nil
}

func (c *Controller) free(id ChannelID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reserved &^= 0b1 << id
}

// consume takes claims for a pipe. Either all of them are taken or
// none.
func (c *Controller) consume(claims ...*Claim) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cl := range claims {
		if cl == nil || cl.c != c {
			return ErrForeignClaim
		}
		if cl.state != claimHeld {
			return fmt.Errorf("%w: %v", ErrClaimConsumed, cl.id)
		}
		for _, prev := range claims[:i] {
			if prev == cl {
				return fmt.Errorf("%w: %v", ErrClaimConsumed, cl.id)
			}
		}
	}
	for _, cl := range claims {
		cl.state = claimConsumed
	}
	return nil
}

type claimState uint8

const (
	claimHeld claimState = iota
	claimConsumed
	claimReleased
)

// Claim is the exclusive right to use a channel. It is consumed by the
// pipe built from it and returns to the controller when the pipe is
// closed.
type Claim struct {
	c     *Controller
	id    ChannelID
	state claimState
}

func (cl *Claim) ID() ChannelID {
	return cl.id
}

// channel returns the registers of the claimed channel. Only a pipe
// holding the consumed claim programs them.
func (cl *Claim) channel() *Channel {
	return &cl.c.chans[cl.id]
}

// Release returns an unused claim to the controller.
func (cl *Claim) Release() error {
	cl.c.mu.Lock()
	switch cl.state {
	case claimConsumed:
		cl.c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrClaimConsumed, cl.id)
	case claimReleased:
		cl.c.mu.Unlock()
		return nil
	}
	cl.state = claimReleased
	cl.c.mu.Unlock()
	cl.c.free(cl.id)
	return nil
}

// retire releases a claim consumed by a pipe.
func (cl *Claim) retire() {
	cl.c.mu.Lock()
	cl.state = claimReleased
	cl.c.mu.Unlock()
	cl.c.free(cl.id)
}
