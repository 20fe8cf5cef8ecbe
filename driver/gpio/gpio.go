// Package gpio drives the GPIO matrix and IO MUX of the ESP32-C3.
//
// Pins implement the periph.io gpio.PinIO interface. A pin is only
// usable after Reserve, which makes it exclusive to the caller until
// Release.
package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"c3hal.dev/mmio"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/pin"
)

const (
	// Base is the address of the GPIO matrix registers.
	Base = 0x6000_4000
	// MuxBase is the address of the IO MUX registers.
	MuxBase = 0x6000_9000

	// NumPins is the number of GPIO pins.
	NumPins = 22
)

// GPIO register offsets.
const (
	regOut       = 0x004
	regOutSet    = 0x008
	regOutClr    = 0x00c
	regEnable    = 0x020
	regEnableSet = 0x024
	regEnableClr = 0x028
	regIn        = 0x03c
	regPin0      = 0x074
	regOutSel0   = 0x554

	regsSize = 0x600
)

// IO MUX register layout.
const (
	muxPin0 = 0x004

	muxPullDown  = 0b1 << 7
	muxPullUp    = 0b1 << 8
	muxInEnable  = 0b1 << 9
	muxDrivePos  = 10
	muxDriveMask = 0b11
	muxFuncPos   = 12
	muxFuncMask  = 0b111

	// funcGPIO routes a pad through the GPIO matrix.
	funcGPIO = 1
	// outSelSimple drives a pad from the OUT register instead of a
	// peripheral signal.
	outSelSimple = 128
	outSelMask   = 0xff
)

var (
	ErrInvalidPin      = errors.New("gpio: invalid pin")
	ErrPinInUse        = errors.New("gpio: pin in use")
	ErrReleased        = errors.New("gpio: pin released")
	ErrInvalidDrive    = errors.New("gpio: unsupported drive strength")
	ErrEdgeUnsupported = errors.New("gpio: edge detection not supported")
	ErrPWMUnsupported  = errors.New("gpio: PWM not supported")
	ErrInvalidFunc     = errors.New("gpio: unsupported function")
)

// Drive strengths, indexed by their register value.
var driveStrengths = [...]physic.ElectricCurrent{
	5 * physic.MilliAmpere,
	10 * physic.MilliAmpere,
	20 * physic.MilliAmpere,
	40 * physic.MilliAmpere,
}

// Controller is a GPIO matrix and its IO MUX.
type Controller struct {
	out       mmio.Reg
	outSet    mmio.Reg
	outClr    mmio.Reg
	enable    mmio.Reg
	enableSet mmio.Reg
	enableClr mmio.Reg
	in        mmio.Reg
	pads      [NumPins]pad

	mu       sync.Mutex
	reserved uint32
}

// New returns the controller with GPIO registers at base and IO MUX
// registers at muxBase.
func New(bus mmio.Bus, base, muxBase uint32) *Controller {
	c := new(Controller)
	c.out.Init(bus, base+regOut)
	c.outSet.Init(bus, base+regOutSet)
	c.outClr.Init(bus, base+regOutClr)
	c.enable.Init(bus, base+regEnable)
	c.enableSet.Init(bus, base+regEnableSet)
	c.enableClr.Init(bus, base+regEnableClr)
	c.in.Init(bus, base+regIn)
	for i := range c.pads {
		p := &c.pads[i]
		p.n = i
		p.mask = 0b1 << i
		p.mux.Init(bus, muxBase+muxPin0+uint32(i)*4)
		p.outSel.Init(bus, base+regOutSel0+uint32(i)*4)
	}
	return c
}

// Reserve claims pin n. Each call returns a new handle; handles from
// earlier reservations of the same pin stay released.
func (c *Controller) Reserve(n int) (*Pin, error) {
	if n < 0 || n >= NumPins {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPin, n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reserved&(0b1<<n) != 0 {
		return nil, fmt.Errorf("%w: GPIO%d", ErrPinInUse, n)
	}
	c.reserved |= 0b1 << n
	return &Pin{c: c, pad: &c.pads[n], held: true}, nil
}

// pad is the register state of a pin, shared by all its handles.
type pad struct {
	n      int
	mask   uint32
	mux    mmio.Reg
	outSel mmio.Reg
}

// Pin is a reserved GPIO pin. After Release, methods that change the
// pad fail with ErrReleased and methods that read it report the zero
// state without touching registers.
type Pin struct {
	c    *Controller
	pad  *pad
	held bool
	// output is set once Out configured the pin.
	output bool
}

var (
	_ gpio.PinIO  = (*Pin)(nil)
	_ pin.PinFunc = (*Pin)(nil)
)

// Release returns the pin to its controller. The pad keeps its
// configuration.
func (p *Pin) Release() {
	c := p.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if !p.held {
		return
	}
	p.held = false
	c.reserved &^= p.pad.mask
}

func (p *Pin) live() bool {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	return p.held
}

func (p *Pin) check() error {
	if !p.live() {
		return fmt.Errorf("%w: %s", ErrReleased, p.Name())
	}
	return nil
}

func (p *Pin) String() string {
	return p.Name()
}

func (p *Pin) Name() string {
	return fmt.Sprintf("GPIO%d", p.pad.n)
}

func (p *Pin) Number() int {
	return p.pad.n
}

// Function implements pin.Pin.
//
// Deprecated: use Func.
func (p *Pin) Function() string {
	return string(p.Func())
}

func (p *Pin) Halt() error {
	return nil
}

// In configures the pin as an input with the given pull. Edge
// detection needs interrupts and is not supported.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	if err := p.check(); err != nil {
		return err
	}
	if edge != gpio.NoEdge {
		return ErrEdgeUnsupported
	}
	p.pad.mux.ReplaceBits(funcGPIO, muxFuncMask, muxFuncPos)
	if err := p.setPull(pull); err != nil {
		return err
	}
	p.c.enableClr.Set(p.pad.mask)
	p.pad.mux.SetBits(muxInEnable)
	p.output = false
	return nil
}

func (p *Pin) setPull(pull gpio.Pull) error {
	mux := &p.pad.mux
	switch pull {
	case gpio.PullNoChange:
	case gpio.Float:
		mux.ClearBits(muxPullUp | muxPullDown)
	case gpio.PullUp:
		mux.Set(mux.Get()&^muxPullDown | muxPullUp)
	case gpio.PullDown:
		mux.Set(mux.Get()&^muxPullUp | muxPullDown)
	default:
		return fmt.Errorf("gpio: invalid pull %v", pull)
	}
	return nil
}

// Read returns the level of the pad, or Low for a released pin.
func (p *Pin) Read() gpio.Level {
	if !p.live() {
		return gpio.Low
	}
	return p.level()
}

func (p *Pin) level() gpio.Level {
	return gpio.Level(p.c.in.Get()&p.pad.mask != 0)
}

// WaitForEdge always returns false; see In.
func (p *Pin) WaitForEdge(timeout time.Duration) bool {
	return false
}

func (p *Pin) Pull() gpio.Pull {
	if !p.live() {
		return gpio.PullNoChange
	}
	v := p.pad.mux.Get()
	switch {
	case v&muxPullUp != 0:
		return gpio.PullUp
	case v&muxPullDown != 0:
		return gpio.PullDown
	default:
		return gpio.Float
	}
}

func (p *Pin) DefaultPull() gpio.Pull {
	return gpio.Float
}

// Out drives the pin to l. The first call after Reserve or In routes
// the pad to the OUT register with a 20 mA drive strength; later calls
// only change the level.
func (p *Pin) Out(l gpio.Level) error {
	if err := p.check(); err != nil {
		return err
	}
	if p.output {
		p.set(l)
		return nil
	}
	p.pad.mux.ReplaceBits(funcGPIO, muxFuncMask, muxFuncPos)
	p.pad.outSel.ReplaceBits(outSelSimple, outSelMask, 0)
	p.pad.mux.ReplaceBits(2, muxDriveMask, muxDrivePos)
	p.set(l)
	p.c.enableSet.Set(p.pad.mask)
	p.pad.mux.ClearBits(muxInEnable)
	p.output = true
	return nil
}

func (p *Pin) set(l gpio.Level) {
	if l {
		p.c.outSet.Set(p.pad.mask)
	} else {
		p.c.outClr.Set(p.pad.mask)
	}
}

// OutputLevel returns the level last written by Out.
func (p *Pin) OutputLevel() gpio.Level {
	if !p.live() {
		return gpio.Low
	}
	return p.outputLevel()
}

func (p *Pin) outputLevel() gpio.Level {
	return gpio.Level(p.c.out.Get()&p.pad.mask != 0)
}

func (p *Pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return ErrPWMUnsupported
}

// SetDrive sets the drive strength of the pad to 5, 10, 20 or 40 mA.
func (p *Pin) SetDrive(i physic.ElectricCurrent) error {
	if err := p.check(); err != nil {
		return err
	}
	for v, s := range driveStrengths {
		if s == i {
			p.pad.mux.ReplaceBits(uint32(v), muxDriveMask, muxDrivePos)
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalidDrive, i)
}

// Drive returns the drive strength of the pad, or 0 for a released
// pin.
func (p *Pin) Drive() physic.ElectricCurrent {
	if !p.live() {
		return 0
	}
	return driveStrengths[p.pad.mux.Get()>>muxDrivePos&muxDriveMask]
}

func (p *Pin) outputEnabled() bool {
	return p.c.enable.Get()&p.pad.mask != 0
}

// Func returns the current function of the pin. A released pin has
// none.
func (p *Pin) Func() pin.Func {
	if !p.live() {
		return pin.FuncNone
	}
	mux := p.pad.mux.Get()
	if sel := mux >> muxFuncPos & muxFuncMask; sel != funcGPIO {
		return pin.Func(fmt.Sprintf("FUNC%d", sel))
	}
	switch {
	case p.outputEnabled():
		if p.outputLevel() {
			return gpio.OUT_HIGH
		}
		return gpio.OUT_LOW
	case mux&muxInEnable != 0:
		if p.level() {
			return gpio.IN_HIGH
		}
		return gpio.IN_LOW
	default:
		return pin.FuncNone
	}
}

func (p *Pin) SupportedFuncs() []pin.Func {
	return []pin.Func{gpio.IN, gpio.OUT}
}

func (p *Pin) SetFunc(f pin.Func) error {
	switch f {
	case gpio.IN:
		return p.In(gpio.PullNoChange, gpio.NoEdge)
	case gpio.IN_HIGH:
		return p.In(gpio.PullUp, gpio.NoEdge)
	case gpio.IN_LOW:
		return p.In(gpio.PullDown, gpio.NoEdge)
	case gpio.OUT, gpio.OUT_LOW:
		return p.Out(gpio.Low)
	case gpio.OUT_HIGH:
		return p.Out(gpio.High)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFunc, f)
	}
}
