//go:build tinygo && esp32c3

package dma

import "c3hal.dev/mmio"

// GDMA is the on-chip controller.
var GDMA = New(mmio.Volatile{}, Base)
