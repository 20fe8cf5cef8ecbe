package main

import (
	"errors"
	"fmt"

	"c3hal.dev/dmamem"
	"c3hal.dev/driver/dma"
	"c3hal.dev/driver/gpio"
	"c3hal.dev/mmio"
	"c3hal.dev/mmio/remote"
	"github.com/sirupsen/logrus"
)

const (
	// Simulated DMA memory lives in internal SRAM, where the engine
	// can reach descriptors.
	simSRAM    = 0x3fc8_0000
	simMemSize = 256 << 10

	gpioRegsSize = 0x600
	muxRegsSize  = 0x100
	dmaRegsSize  = 0x400
)

var errNoMemory = errors.New("backend has no DMA memory")

type backend struct {
	bus mmio.Bus
	// mem is nil if the backend cannot allocate memory the engine
	// reaches.
	mem     *dmamem.Region
	err     func() error
	closers []func() error
}

func openBackend(l *logrus.Logger, opts options) (*backend, error) {
	switch opts.backend {
	case "sim":
		return openSim(l, opts.mem)
	case "devmem":
		return openDevMem(l)
	case "serial":
		port, err := remote.Open(remote.Port{
			Device:      opts.device,
			Baud:        opts.baud,
			ReadTimeout: opts.timeout,
		})
		if err != nil {
			return nil, err
		}
		bus, err := remote.Dial(port)
		if err != nil {
			port.Close()
			return nil, err
		}
		l.WithField("device", opts.device).Debug("Connected to probe")
		return &backend{bus: bus, err: bus.Err, closers: []func() error{port.Close}}, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", opts.backend)
	}
}

func openSim(l *logrus.Logger, kind string) (*backend, error) {
	var mem *dmamem.Region
	var err error
	switch kind {
	case "heap":
		mem, err = dmamem.NewHeap(simSRAM, simMemSize)
	case "locked":
		mem, err = newLocked(simSRAM, simMemSize)
	default:
		return nil, fmt.Errorf("unknown memory: %s", kind)
	}
	if err != nil {
		return nil, err
	}
	regs := mmio.NewSim()
	dma.NewSimulator(regs, dma.Base, mem)
	gpio.NewSimulator(regs, gpio.Base, gpio.MuxBase)
	l.WithFields(logrus.Fields{
		"memory": kind,
		"base":   fmt.Sprintf("%#x", mem.Base()),
		"size":   mem.Size(),
	}).Debug("Simulator ready")
	return &backend{bus: regs, mem: mem, closers: []func() error{mem.Close}}, nil
}

func (b *backend) dmaController() *dma.Controller {
	return dma.New(b.bus, dma.Base)
}

func (b *backend) gpioController() *gpio.Controller {
	return gpio.New(b.bus, gpio.Base, gpio.MuxBase)
}

// Err reports a failure of the bus, if any.
func (b *backend) Err() error {
	if b.err == nil {
		return nil
	}
	return b.err()
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}
