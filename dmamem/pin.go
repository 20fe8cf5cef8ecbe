//go:build !tinygo

package dmamem

import "runtime"

func pin(p *uint32) func() {
	var pinner runtime.Pinner
	pinner.Pin(p)
	return pinner.Unpin
}
