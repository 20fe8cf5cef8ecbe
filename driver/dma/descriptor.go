package dma

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"c3hal.dev/dmamem"
)

// MaxSegment is the largest buffer a single Descriptor can describe.
const MaxSegment = 1<<12 - 1

// DescriptorSize is the size of a Descriptor in memory.
const DescriptorSize = 12

// Control word layout.
const (
	ctrlSizePos   = 0
	ctrlLenPos    = 12
	ctrlFieldMask = 0xfff
	ctrlErrPos    = 28
	ctrlErrMask   = 0b11
	ctrlEOF       = 0b1 << 30
	ctrlOwner     = 0b1 << 31
)

// Control is the decoded control word of a Descriptor.
type Control struct {
	// Owner is set while the descriptor belongs to the engine. The
	// engine clears it when it hands the descriptor back.
	Owner bool
	// EOF marks the last descriptor of a chain. For received data the
	// engine sets it on the descriptor that ends the frame.
	EOF bool
	// Err is the error code written back by the engine.
	Err uint8
	// Length is the number of valid bytes in the buffer.
	Length uint16
	// Size is the capacity of the buffer.
	Size uint16
}

// Encode packs c into a control word. Fields wider than their
// bitfields are truncated; validate them first.
func (c Control) Encode() uint32 {
	w := uint32(c.Size&ctrlFieldMask)<<ctrlSizePos |
		uint32(c.Length&ctrlFieldMask)<<ctrlLenPos |
		uint32(c.Err&ctrlErrMask)<<ctrlErrPos
	if c.EOF {
		w |= ctrlEOF
	}
	if c.Owner {
		w |= ctrlOwner
	}
	return w
}

// DecodeControl unpacks a control word written by Encode or the engine.
func DecodeControl(w uint32) Control {
	return Control{
		Owner:  w&ctrlOwner != 0,
		EOF:    w&ctrlEOF != 0,
		Err:    uint8(w >> ctrlErrPos & ctrlErrMask),
		Length: uint16(w >> ctrlLenPos & ctrlFieldMask),
		Size:   uint16(w >> ctrlSizePos & ctrlFieldMask),
	}
}

// Descriptor is a node of a linked list walked by the engine. Its
// layout is fixed by the hardware.
//
// The engine holds the raw address of a Descriptor, so it must not move
// or be freed while a transfer may read it; allocate descriptors from a
// [dmamem.Region], as [NewChain] does. Linking a descriptor to one of
// its predecessors makes the engine loop forever; nothing detects it.
type Descriptor struct {
	ctrl uint32
	buf  uint32
	next uint32
}

// descriptorAt returns the Descriptor stored in mem.
func descriptorAt(mem []byte) *Descriptor {
	if len(mem) < DescriptorSize || uintptr(unsafe.Pointer(unsafe.SliceData(mem)))%4 != 0 {
		panic("dma: misplaced descriptor")
	}
	return (*Descriptor)(unsafe.Pointer(unsafe.SliceData(mem)))
}

// Init makes d a terminal, empty descriptor owned by the engine.
func (d *Descriptor) Init() {
	d.setControl(Control{Owner: true, EOF: true})
	atomic.StoreUint32(&d.buf, 0)
	atomic.StoreUint32(&d.next, 0)
}

func (d *Descriptor) Control() Control {
	return DecodeControl(atomic.LoadUint32(&d.ctrl))
}

func (d *Descriptor) setControl(c Control) {
	atomic.StoreUint32(&d.ctrl, c.Encode())
}

// SetBuffer describes b: both capacity and length become its length.
// It replaces any earlier buffer and clears a previous error code.
func (d *Descriptor) SetBuffer(b dmamem.Buffer) error {
	n := len(b.Data)
	if n > MaxSegment {
		return fmt.Errorf("%w: %d bytes", ErrBufferTooLarge, n)
	}
	c := d.Control()
	c.Size = uint16(n)
	c.Length = uint16(n)
	c.Err = 0
	d.setControl(c)
	atomic.StoreUint32(&d.buf, b.Addr)
	return nil
}

// Link makes the descriptor at addr the successor of d.
func (d *Descriptor) Link(addr uint32) {
	c := d.Control()
	c.EOF = false
	d.setControl(c)
	atomic.StoreUint32(&d.next, addr)
}

// HasError reports whether the engine left an error code in d. It is
// only meaningful once the direction using d has completed.
func (d *Descriptor) HasError() bool {
	return d.Control().Err != 0
}

func (d *Descriptor) Capacity() int {
	return int(d.Control().Size)
}

func (d *Descriptor) Len() int {
	return int(d.Control().Length)
}

func (d *Descriptor) BufferAddr() uint32 {
	return atomic.LoadUint32(&d.buf)
}

func (d *Descriptor) Next() uint32 {
	return atomic.LoadUint32(&d.next)
}

// Terminal reports whether d ends its chain.
func (d *Descriptor) Terminal() bool {
	return d.Control().EOF
}

func (d *Descriptor) OwnedByDMA() bool {
	return d.Control().Owner
}
