package mmio

import (
	"testing"
)

func TestRegBits(t *testing.T) {
	s := NewSim()
	var r Reg
	r.Init(s, 0x1000)
	r.Set(0xf0)
	r.SetBits(0b1)
	if got := s.Peek(0x1000); got != 0xf1 {
		t.Errorf("got %#x, expected %#x", got, 0xf1)
	}
	r.ClearBits(0x10)
	if got := r.Get(); got != 0xe1 {
		t.Errorf("got %#x, expected %#x", got, 0xe1)
	}
	r.ReplaceBits(0x5, 0xf, 8)
	if got := r.Get(); got != 0x5e1 {
		t.Errorf("got %#x, expected %#x", got, 0x5e1)
	}
	if !r.HasBits(0x400) || r.HasBits(0x200) {
		t.Error("HasBits disagrees with register contents")
	}
}

func TestTrace(t *testing.T) {
	s := NewSim()
	var r Reg
	r.Init(s, 0x20)
	r.Set(1)
	s.Trace(true)
	r.SetBits(0b10)
	want := []Access{
		{Addr: 0x20, Val: 1},
		{Write: true, Addr: 0x20, Val: 3},
	}
	got := s.Accesses()
	if len(got) != len(want) {
		t.Fatalf("got %d accesses, expected %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("access %d: got %v, expected %v", i, got[i], want[i])
		}
	}
	s.Trace(false)
	r.Set(0)
	if n := len(s.Accesses()); n != 2 {
		t.Errorf("recorded %d accesses after tracing stopped", n)
	}
}

type counter struct {
	loads, stores int
}

func (c *counter) Load(f *File, addr uint32) {
	c.loads++
	f.Poke(addr, uint32(c.loads))
}

func (c *counter) Store(f *File, addr, old, val uint32) {
	c.stores++
	// Write-one-to-clear.
	f.Poke(addr, old&^val)
}

func TestHandler(t *testing.T) {
	s := NewSim()
	c := new(counter)
	s.Map(0x100, 0x10, c)
	if got := s.Load32(0x104); got != 1 {
		t.Errorf("got %d, expected 1", got)
	}
	s.Poke(0x108, 0b111)
	s.Store32(0x108, 0b010)
	if got := s.Peek(0x108); got != 0b101 {
		t.Errorf("got %#b, expected %#b", got, 0b101)
	}
	// Outside the mapping.
	s.Store32(0x110, 7)
	if got := s.Load32(0x110); got != 7 {
		t.Errorf("got %d, expected 7", got)
	}
	if c.loads != 1 || c.stores != 1 {
		t.Errorf("handler saw %d loads, %d stores", c.loads, c.stores)
	}
}

func TestUnaligned(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("unaligned access did not panic")
		}
	}()
	NewSim().Load32(0x2)
}

func TestRouter(t *testing.T) {
	a, b := NewSim(), NewSim()
	r := new(Router)
	if err := r.Mount(0x1000, 0x100, a); err != nil {
		t.Fatal(err)
	}
	if err := r.Mount(0x2000, 0x100, b); err != nil {
		t.Fatal(err)
	}
	if err := r.Mount(0x10f0, 0x100, b); err == nil {
		t.Error("overlapping mount accepted")
	}
	r.Store32(0x1004, 1)
	r.Store32(0x20fc, 2)
	if a.Peek(0x1004) != 1 || b.Peek(0x20fc) != 2 {
		t.Error("stores not routed to the mounted buses")
	}
	defer func() {
		if recover() == nil {
			t.Error("access outside mounts did not panic")
		}
	}()
	r.Load32(0x3000)
}
