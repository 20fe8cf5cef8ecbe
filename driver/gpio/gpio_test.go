package gpio

import (
	"errors"
	"testing"

	"c3hal.dev/mmio"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/pin"
)

func newTestController(t *testing.T) (*Controller, *mmio.Sim, *Simulator) {
	t.Helper()
	regs := mmio.NewSim()
	sim := NewSimulator(regs, Base, MuxBase)
	return New(regs, Base, MuxBase), regs, sim
}

func muxAddr(n int) uint32 {
	return MuxBase + muxPin0 + uint32(n)*4
}

func TestReserve(t *testing.T) {
	c, _, _ := newTestController(t)
	p, err := c.Reserve(21)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Reserve(21); !errors.Is(err, ErrPinInUse) {
		t.Errorf("got %v, expected %v", err, ErrPinInUse)
	}
	for _, n := range []int{-1, NumPins} {
		if _, err := c.Reserve(n); !errors.Is(err, ErrInvalidPin) {
			t.Errorf("Reserve(%d): got %v, expected %v", n, err, ErrInvalidPin)
		}
	}
	p.Release()
	if err := p.Out(gpio.High); !errors.Is(err, ErrReleased) {
		t.Errorf("released pin: got %v, expected %v", err, ErrReleased)
	}
	if _, err := c.Reserve(21); err != nil {
		t.Errorf("released pin: %v", err)
	}
	if got := p.Name(); got != "GPIO21" {
		t.Errorf("got name %q", got)
	}
}

func TestReserveAgain(t *testing.T) {
	c, regs, _ := newTestController(t)
	old, err := c.Reserve(5)
	if err != nil {
		t.Fatal(err)
	}
	old.Release()
	fresh, err := c.Reserve(5)
	if err != nil {
		t.Fatal(err)
	}
	if old == fresh {
		t.Fatal("Reserve returned the released handle")
	}
	if err := fresh.In(gpio.PullUp, gpio.NoEdge); err != nil {
		t.Fatal(err)
	}
	regs.Trace(true)
	if err := old.Out(gpio.High); !errors.Is(err, ErrReleased) {
		t.Errorf("Out: got %v, expected %v", err, ErrReleased)
	}
	if err := old.In(gpio.PullDown, gpio.NoEdge); !errors.Is(err, ErrReleased) {
		t.Errorf("In: got %v, expected %v", err, ErrReleased)
	}
	if err := old.SetDrive(5 * physic.MilliAmpere); !errors.Is(err, ErrReleased) {
		t.Errorf("SetDrive: got %v, expected %v", err, ErrReleased)
	}
	if got := old.Func(); got != pin.FuncNone {
		t.Errorf("released pin: got function %q", got)
	}
	old.Read()
	old.Pull()
	old.Drive()
	old.OutputLevel()
	// Releasing again must not free the new reservation.
	old.Release()
	if acc := regs.Accesses(); len(acc) != 0 {
		t.Errorf("released handle accessed registers: %v", acc)
	}
	if _, err := c.Reserve(5); !errors.Is(err, ErrPinInUse) {
		t.Errorf("got %v, expected %v", err, ErrPinInUse)
	}
	if got := fresh.Func(); got != gpio.IN_HIGH {
		t.Errorf("got function %q, expected %q", got, gpio.IN_HIGH)
	}
}

func TestOut(t *testing.T) {
	c, regs, _ := newTestController(t)
	p, _ := c.Reserve(3)
	regs.Poke(muxAddr(3), muxInEnable)
	if err := p.Out(gpio.High); err != nil {
		t.Fatal(err)
	}
	mux := regs.Peek(muxAddr(3))
	if got := mux >> muxFuncPos & muxFuncMask; got != funcGPIO {
		t.Errorf("got function %d, expected %d", got, funcGPIO)
	}
	if mux&muxInEnable != 0 {
		t.Error("input left enabled")
	}
	if got := p.Drive(); got != 20*physic.MilliAmpere {
		t.Errorf("got drive %v, expected 20mA", got)
	}
	if got := regs.Peek(Base + regOutSel0 + 3*4); got != outSelSimple {
		t.Errorf("got output select %d, expected %d", got, outSelSimple)
	}
	if got := regs.Peek(Base + regEnable); got != 0b1000 {
		t.Errorf("got enable %#b, expected %#b", got, 0b1000)
	}
	if p.OutputLevel() != gpio.High || p.Read() != gpio.High {
		t.Error("pin does not read back high")
	}
	if got := p.Func(); got != gpio.OUT_HIGH {
		t.Errorf("got function %q, expected %q", got, gpio.OUT_HIGH)
	}

	// Later calls only touch the level.
	if err := p.SetDrive(40 * physic.MilliAmpere); err != nil {
		t.Fatal(err)
	}
	regs.Trace(true)
	p.Out(gpio.Low)
	acc := regs.Accesses()
	if len(acc) != 1 || acc[0].Addr != Base+regOutClr || acc[0].Val != 0b1000 {
		t.Errorf("got accesses %v, expected a single clear", acc)
	}
	if p.Drive() != 40*physic.MilliAmpere {
		t.Error("Out changed the drive strength")
	}
	if p.OutputLevel() != gpio.Low {
		t.Error("pin does not read back low")
	}
}

func TestIn(t *testing.T) {
	c, regs, sim := newTestController(t)
	p, _ := c.Reserve(9)
	p.Out(gpio.High)
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		t.Fatal(err)
	}
	if regs.Peek(Base+regEnable)&(0b1<<9) != 0 {
		t.Error("output left enabled")
	}
	if regs.Peek(muxAddr(9))&muxInEnable == 0 {
		t.Error("input not enabled")
	}
	if got := p.Pull(); got != gpio.PullUp {
		t.Errorf("got pull %v, expected %v", got, gpio.PullUp)
	}
	if p.Read() != gpio.High {
		t.Error("pulled up pin reads low")
	}
	sim.Drive(9, gpio.Low)
	if p.Read() != gpio.Low {
		t.Error("driven pin reads high")
	}
	if got := p.Func(); got != gpio.IN_LOW {
		t.Errorf("got function %q, expected %q", got, gpio.IN_LOW)
	}
	sim.Float(9)
	if err := p.In(gpio.PullDown, gpio.NoEdge); err != nil {
		t.Fatal(err)
	}
	if got := regs.Peek(muxAddr(9)) & (muxPullUp | muxPullDown); got != muxPullDown {
		t.Errorf("got pull bits %#x, expected %#x", got, muxPullDown)
	}
	if p.Read() != gpio.Low {
		t.Error("pulled down pin reads high")
	}
	if err := p.In(gpio.Float, gpio.RisingEdge); !errors.Is(err, ErrEdgeUnsupported) {
		t.Errorf("got %v, expected %v", err, ErrEdgeUnsupported)
	}
}

func TestDrive(t *testing.T) {
	c, _, _ := newTestController(t)
	p, _ := c.Reserve(0)
	for _, i := range []physic.ElectricCurrent{5, 10, 20, 40} {
		if err := p.SetDrive(i * physic.MilliAmpere); err != nil {
			t.Errorf("SetDrive(%v): %v", i*physic.MilliAmpere, err)
		}
		if got := p.Drive(); got != i*physic.MilliAmpere {
			t.Errorf("got %v, expected %v", got, i*physic.MilliAmpere)
		}
	}
	if err := p.SetDrive(15 * physic.MilliAmpere); !errors.Is(err, ErrInvalidDrive) {
		t.Errorf("got %v, expected %v", err, ErrInvalidDrive)
	}
}

func TestSetFunc(t *testing.T) {
	c, _, _ := newTestController(t)
	p, _ := c.Reserve(5)
	if got := p.Func(); got != pin.Func("FUNC0") {
		t.Errorf("reset pin: got function %q", got)
	}
	if err := p.SetFunc(gpio.OUT_HIGH); err != nil {
		t.Fatal(err)
	}
	if p.Func() != gpio.OUT_HIGH {
		t.Errorf("got function %q, expected %q", p.Func(), gpio.OUT_HIGH)
	}
	if err := p.SetFunc(gpio.IN_HIGH); err != nil {
		t.Fatal(err)
	}
	if p.Func() != gpio.IN_HIGH {
		t.Errorf("got function %q, expected %q", p.Func(), gpio.IN_HIGH)
	}
	if err := p.SetFunc(pin.Func("SPI2_CLK")); !errors.Is(err, ErrInvalidFunc) {
		t.Errorf("got %v, expected %v", err, ErrInvalidFunc)
	}
	if err := p.PWM(gpio.DutyHalf, physic.KiloHertz); !errors.Is(err, ErrPWMUnsupported) {
		t.Errorf("got %v, expected %v", err, ErrPWMUnsupported)
	}
}
