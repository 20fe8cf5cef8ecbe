//go:build tinygo && esp32c3

package main

import (
	"io"
	"log"
	"machine"
	"time"

	"c3hal.dev/dmamem"
	"c3hal.dev/driver/dma"
	"c3hal.dev/mmio"
	"c3hal.dev/mmio/remote"
)

func main() {
	log.SetFlags(0)
	u := machine.UART0
	u.Configure(machine.UARTConfig{BaudRate: 115200})
	log.SetOutput(u)
	// Give a host time to open the port.
	time.Sleep(2 * time.Second)
	mem, err := dmamem.NewIdentity(2*selfTestSize + 1024)
	if err != nil {
		log.Fatalf("dmaprobe: %v", err)
	}
	if err := selfTest(dma.GDMA, 0, mem); err != nil {
		log.Printf("dmaprobe: self-test failed: %v", err)
	} else {
		log.Printf("dmaprobe: self-test passed")
	}
	log.Printf("dmaprobe: serving")
	log.SetOutput(io.Discard)
	s := &remote.Server{Bus: mmio.Volatile{}, Allow: allow}
	for {
		// Serve returns when the stream breaks; start over with a
		// fresh decoder.
		s.Serve(serialer{u})
	}
}
