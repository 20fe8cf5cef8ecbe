package main

import (
	"fmt"

	"c3hal.dev/dmamem"
	"c3hal.dev/driver/dma"
	"c3hal.dev/driver/gpio"
	"c3hal.dev/mmio"
	"github.com/sirupsen/logrus"
	"periph.io/x/host/v3"
)

// openDevMem maps the register blocks from /dev/mem, for hosts that
// expose them at their physical addresses.
func openDevMem(l *logrus.Logger) (*backend, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("devmem: %w", err)
	}
	l.WithField("drivers", len(state.Loaded)).Debug("Host initialized")
	b := new(backend)
	router := new(mmio.Router)
	for _, blk := range []struct {
		base uint32
		size int
	}{
		{dma.Base, dmaRegsSize},
		{gpio.Base, gpioRegsSize},
		{gpio.MuxBase, muxRegsSize},
	} {
		w, err := mmio.MapDevMem(blk.base, blk.size)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, w.Close)
		if err := router.Mount(blk.base, uint32(blk.size), w); err != nil {
			b.Close()
			return nil, err
		}
	}
	b.bus = router
	// Physical memory is only useful if the engine can reach it; chains
	// outside its window fail to build.
	if mem, err := dmamem.NewPhysical(64 << 10); err != nil {
		l.WithError(err).Warn("No DMA memory")
	} else {
		b.mem = mem
		b.closers = append(b.closers, mem.Close)
	}
	return b, nil
}

func newLocked(base uint32, size int) (*dmamem.Region, error) {
	return dmamem.NewLocked(base, size)
}
