//go:build !tinygo

package remote

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/tarm/serial"
)

const (
	// DefaultBaud is the rate of the console UART the probe serves on.
	DefaultBaud = 115200
	// DefaultReadTimeout bounds the wait for a single reply.
	DefaultReadTimeout = time.Second
)

// Port describes the serial link to a probe.
type Port struct {
	// Device is the serial device. If empty, the usual USB serial
	// adapters of the platform are tried in order.
	Device string
	// Baud is the line rate; zero means DefaultBaud.
	Baud int
	// ReadTimeout is how long a read waits for the probe; zero means
	// DefaultReadTimeout. A probe that stops answering fails the Bus
	// instead of blocking it.
	ReadTimeout time.Duration
}

// candidates returns the devices to try on goos.
func (p Port) candidates(goos string) []string {
	if p.Device != "" {
		return []string{p.Device}
	}
	switch goos {
	case "windows":
		return []string{"COM3", "COM4"}
	case "darwin":
		return []string{"/dev/cu.usbmodem101", "/dev/cu.usbserial-0001"}
	case "linux":
		return []string{"/dev/ttyACM0", "/dev/ttyUSB0", "/dev/ttyUSB1"}
	}
	return nil
}

func (p Port) config(dev string) *serial.Config {
	c := &serial.Config{Name: dev, Baud: p.Baud, ReadTimeout: p.ReadTimeout}
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}

// Open opens the first device of p that can be opened.
func Open(p Port) (io.ReadWriteCloser, error) {
	devices := p.candidates(runtime.GOOS)
	if len(devices) == 0 {
		return nil, errors.New("remote: no serial device specified")
	}
	var errs []error
	for _, dev := range devices {
		s, err := serial.OpenPort(p.config(dev))
		if err == nil {
			return s, nil
		}
		errs = append(errs, fmt.Errorf("remote: %s: %w", dev, err))
	}
	return nil, errors.Join(errs...)
}
