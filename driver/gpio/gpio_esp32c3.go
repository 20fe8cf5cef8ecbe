//go:build tinygo && esp32c3

package gpio

import "c3hal.dev/mmio"

// GPIO is the on-chip controller.
var GPIO = New(mmio.Volatile{}, Base, MuxBase)
