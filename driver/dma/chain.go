package dma

import (
	"fmt"

	"c3hal.dev/dmamem"
)

// Allocator hands out pinned memory. [dmamem.Region] implements it.
type Allocator interface {
	Alloc(size, align int) (dmamem.Buffer, error)
}

// Chain is a list of linked descriptors describing a sequence of
// buffers.
type Chain struct {
	dir   Direction
	// owner is the transfer the chain is armed in.
	owner *Transfer
	nodes []*Descriptor
	addrs []uint32
	segs  []dmamem.Buffer
}

// NewChain allocates descriptors from a for bufs, in order. Buffers
// larger than MaxSegment are split over several descriptors.
func NewChain(a Allocator, bufs ...dmamem.Buffer) (*Chain, error) {
	return newChain(TX, a, bufs)
}

// NewReceiveChain is like NewChain, for buffers the engine fills.
func NewReceiveChain(a Allocator, bufs ...dmamem.Buffer) (*Chain, error) {
	return newChain(RX, a, bufs)
}

func newChain(dir Direction, a Allocator, bufs []dmamem.Buffer) (*Chain, error) {
	var segs []dmamem.Buffer
	for _, b := range bufs {
		for b.Len() > MaxSegment {
			segs = append(segs, b.Slice(0, MaxSegment))
			b = b.Slice(MaxSegment, b.Len())
		}
		segs = append(segs, b)
	}
	if len(segs) == 0 {
		return nil, ErrEmptyChain
	}
	c := &Chain{dir: dir, segs: segs}
	for _, seg := range segs {
		mem, err := a.Alloc(DescriptorSize, 4)
		if err != nil {
			return nil, fmt.Errorf("dma: allocate descriptor: %w", err)
		}
		if !reachable(mem.Addr) {
			return nil, fmt.Errorf("%w: %#x", ErrUnreachable, mem.Addr)
		}
		d := descriptorAt(mem.Data)
		d.Init()
		if err := d.SetBuffer(seg); err != nil {
			return nil, err
		}
		if n := len(c.nodes); n > 0 {
			c.nodes[n-1].Link(mem.Addr)
		}
		c.nodes = append(c.nodes, d)
		c.addrs = append(c.addrs, mem.Addr)
	}
	return c, nil
}

// reachable reports whether the engine can fetch a descriptor at addr
// through the address field of a link register.
func reachable(addr uint32) bool {
	return addr&^linkAddrMask == linkBase
}

// Head returns the address of the first descriptor.
func (c *Chain) Head() uint32 {
	return c.addrs[0]
}

func (c *Chain) Len() int {
	return len(c.nodes)
}

func (c *Chain) Node(i int) *Descriptor {
	return c.nodes[i]
}

// Addr returns the address of descriptor i.
func (c *Chain) Addr(i int) uint32 {
	return c.addrs[i]
}

// Transferred returns the sum of the descriptor lengths. After a
// receive completes, it is the number of bytes received.
func (c *Chain) Transferred() int {
	n := 0
	for _, d := range c.nodes {
		n += d.Len()
	}
	return n
}

// Err returns the first descriptor error, if any.
func (c *Chain) Err() error {
	for i, d := range c.nodes {
		if ctrl := d.Control(); ctrl.Err != 0 {
			return &NodeError{Dir: c.dir, Index: i, Addr: c.addrs[i], Code: ctrl.Err}
		}
	}
	return nil
}

// Rearm restores the descriptors to their state after NewChain, so the
// chain can be started again. The chain must not be in use.
func (c *Chain) Rearm() {
	last := len(c.nodes) - 1
	for i, d := range c.nodes {
		n := uint16(c.segs[i].Len())
		d.setControl(Control{Owner: true, EOF: i == last, Size: n, Length: n})
	}
}
