package dmamem

import (
	"bytes"
	"errors"
	"testing"
)

const sram = 0x3fc8_0000

func TestAlloc(t *testing.T) {
	r, err := NewHeap(sram, 256)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	a, err := r.Alloc(3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if a.Addr != sram || a.Len() != 3 {
		t.Errorf("got buffer at %#x len %d", a.Addr, a.Len())
	}
	b, err := r.Alloc(12, 4)
	if err != nil {
		t.Fatal(err)
	}
	if b.Addr != sram+4 {
		t.Errorf("aligned buffer at %#x, expected %#x", b.Addr, sram+4)
	}
	// Appending must not spill into the next allocation.
	a.Data = append(a.Data, 0xff)
	if b.Data[0] != 0 {
		t.Error("append overwrote the next buffer")
	}
	if _, err := r.Alloc(1, 3); err == nil {
		t.Error("non power of two alignment accepted")
	}
	if _, err := r.Alloc(r.Size(), 1); !errors.Is(err, ErrNoMemory) {
		t.Errorf("got %v, expected %v", err, ErrNoMemory)
	}
}

func TestBytes(t *testing.T) {
	r, err := NewHeap(sram, 64)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	buf, err := r.Alloc(8, 4)
	if err != nil {
		t.Fatal(err)
	}
	copy(buf.Data, "payload!")
	got, err := r.Bytes(buf.Addr+2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("yloa")) {
		t.Errorf("resolved %q", got)
	}
	if _, err := r.Bytes(sram+60, 8); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("got %v, expected %v", err, ErrOutOfRange)
	}
	if _, err := r.Bytes(sram-4, 4); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("got %v, expected %v", err, ErrOutOfRange)
	}
	sub := buf.Slice(4, 8)
	if sub.Addr != buf.Addr+4 || string(sub.Data) != "oad!" {
		t.Errorf("sub-buffer %#x %q", sub.Addr, sub.Data)
	}
}

func TestReset(t *testing.T) {
	r, err := NewHeap(sram, 16)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Alloc(16, 4)
	if err != nil {
		t.Fatal(err)
	}
	b.Data[0] = 1
	r.Reset()
	if r.Used() != 0 {
		t.Errorf("%d bytes used after reset", r.Used())
	}
	b2, err := r.Alloc(16, 4)
	if err != nil {
		t.Fatal(err)
	}
	if b2.Data[0] != 0 {
		t.Error("reallocated memory not zeroed")
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Alloc(1, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, expected %v", err, ErrClosed)
	}
}

func TestOverflow(t *testing.T) {
	if _, err := NewHeap(0xffff_fff0, 64); err == nil {
		t.Error("region beyond the 32-bit bus accepted")
	}
}
