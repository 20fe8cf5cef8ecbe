package dma

import (
	"errors"
	"fmt"
)

var (
	ErrBufferTooLarge    = errors.New("dma: buffer too large for a descriptor")
	ErrEmptyChain        = errors.New("dma: empty chain")
	ErrUnreachable       = errors.New("dma: descriptor outside the link window")
	ErrInvalidChannel    = errors.New("dma: invalid channel")
	ErrChannelInUse      = errors.New("dma: channel in use")
	ErrNoChannel         = errors.New("dma: no available channel")
	ErrClaimConsumed     = errors.New("dma: claim already consumed")
	ErrForeignClaim      = errors.New("dma: claim belongs to another controller")
	ErrSameChannel       = errors.New("dma: peripheral pipe needs distinct channels")
	ErrInvalidPeripheral = errors.New("dma: invalid peripheral")
	ErrArmed             = errors.New("dma: pipe already armed")
	ErrNotComplete       = errors.New("dma: transfer not complete")
	ErrPipeClosed        = errors.New("dma: pipe closed")
	ErrChainDirection    = errors.New("dma: chain built for the other direction")
	ErrChainInUse        = errors.New("dma: chain owned by another transfer")
)

// NodeError is an error code left in a descriptor by the engine.
type NodeError struct {
	Dir   Direction
	Index int
	Addr  uint32
	Code  uint8
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("dma: %s descriptor %d at %#x: error code %#x", e.Dir, e.Index, e.Addr, e.Code)
}

// FetchError reports that the engine could not fetch or use a
// descriptor. The direction stops without completing.
type FetchError struct {
	Dir    Direction
	Status Status
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("dma: %s descriptor fetch failed (status %v)", e.Dir, e.Status)
}
