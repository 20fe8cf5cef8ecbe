// Command dmaprobe is firmware for the ESP32-C3. It runs a loopback
// copy through the GDMA engine, reports the result on the console
// UART, and then serves register accesses from dmactl over the same
// UART.
//
// Nothing is printed once the probe is serving; connect dmactl after
// the "serving" line.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"c3hal.dev/dmamem"
	"c3hal.dev/driver/dma"
)

// selfTestSize is the size of the boot copy. It spans two transmit
// descriptors.
const selfTestSize = 6000

// Peripheral register space; the probe refuses other addresses.
const (
	periphStart = 0x6000_0000
	periphEnd   = 0x600d_1000
)

func allow(addr uint32) bool {
	return addr >= periphStart && addr < periphEnd
}

// selfTest copies a pattern through a loopback pipe on channel id.
func selfTest(d *dma.Controller, id dma.ChannelID, mem *dmamem.Region) error {
	defer mem.Reset()
	cl, err := d.Reserve(id)
	if err != nil {
		return err
	}
	p, err := d.NewLoopbackPipe(cl)
	if err != nil {
		cl.Release()
		return err
	}
	defer p.Close()
	src, err := mem.Alloc(selfTestSize, 4)
	if err != nil {
		return err
	}
	for i := range src.Data {
		src.Data[i] = byte(i*7 + i>>8)
	}
	dst, err := mem.Alloc(selfTestSize, 4)
	if err != nil {
		return err
	}
	tx, err := dma.NewChain(mem, src)
	if err != nil {
		return err
	}
	rx, err := dma.NewReceiveChain(mem, dst)
	if err != nil {
		return err
	}
	tr, err := p.Start(tx, rx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.Wait(ctx); err != nil {
		return fmt.Errorf("%v (tx %v, rx %v)", err, tx.Node(tx.Len()-1).Control(), rx.Node(rx.Len()-1).Control())
	}
	if err := tr.Release(); err != nil {
		return err
	}
	if n := rx.Transferred(); n != selfTestSize {
		return fmt.Errorf("received %d bytes, expected %d", n, selfTestSize)
	}
	if !bytes.Equal(dst.Data, src.Data) {
		return errors.New("data mismatch")
	}
	return nil
}

// uart is the part of a UART the probe uses.
type uart interface {
	io.Writer
	Buffered() int
	ReadByte() (byte, error)
}

// serialer turns a non-blocking UART into a blocking io.ReadWriter.
type serialer struct {
	u uart
}

func (s serialer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for s.u.Buffered() == 0 {
		runtime.Gosched()
	}
	n := 0
	for n < len(p) && s.u.Buffered() > 0 {
		b, err := s.u.ReadByte()
		if err != nil {
			return n, err
		}
		p[n] = b
		n++
	}
	return n, nil
}

func (s serialer) Write(p []byte) (int, error) {
	return s.u.Write(p)
}
