//go:build tinygo

package dmamem

// The TinyGo collector never moves objects.
func pin(p *uint32) func() {
	return func() {}
}
