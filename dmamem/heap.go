package dmamem

import "unsafe"

// NewHeap returns a region of Go memory presented to the bus at base.
// The region is only reachable by a device that translates base to the
// Go memory, such as a simulated engine.
func NewHeap(base uint32, size int) (*Region, error) {
	if size <= 0 {
		return nil, ErrNoMemory
	}
	// Back the region with words to guarantee 4-byte alignment.
	words := make([]uint32, (size+3)/4)
	data := unsafe.SliceData(words)
	mem := unsafe.Slice((*byte)(unsafe.Pointer(data)), size)
	unpin := pin(data)
	r, err := newRegion(base, mem, func() error {
		unpin()
		return nil
	})
	if err != nil {
		unpin()
	}
	return r, err
}
