package dma

import (
	"context"
	"fmt"
	"runtime"
)

// Pipe connects a transmit and a receive direction. A peripheral pipe
// uses the transmit side of one channel and the receive side of
// another; a loopback pipe uses both sides of a single channel to copy
// memory to memory.
//
// A Pipe is not safe for concurrent use.
type Pipe struct {
	claims []*Claim
	tx, rx *Channel
	armed  *Transfer
	closed bool
}

// NewPeripheralPipe resets the transmit side of tx and the receive side
// of rx and connects both to p. The claims are consumed by the pipe.
func (c *Controller) NewPeripheralPipe(tx, rx *Claim, p Peripheral) (*Pipe, error) {
	if !p.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPeripheral, uint8(p))
	}
	if tx != nil && rx != nil && tx.id == rx.id {
		return nil, ErrSameChannel
	}
	if err := c.consume(tx, rx); err != nil {
		return nil, err
	}
	pp := &Pipe{claims: []*Claim{tx, rx}, tx: tx.channel(), rx: rx.channel()}
	pp.tx.Reset(TX)
	pp.rx.Reset(RX)
	pp.tx.DisableLoopback()
	pp.rx.DisableLoopback()
	pp.tx.SetPeripheral(TX, p)
	pp.rx.SetPeripheral(RX, p)
	return pp, nil
}

// NewLoopbackPipe resets both sides of ch and routes its transmit side
// to its receive side. The claim is consumed by the pipe.
func (c *Controller) NewLoopbackPipe(ch *Claim) (*Pipe, error) {
	if err := c.consume(ch); err != nil {
		return nil, err
	}
	chn := ch.channel()
	p := &Pipe{claims: []*Claim{ch}, tx: chn, rx: chn}
	chn.Reset(TX)
	chn.Reset(RX)
	chn.EnableLoopback()
	return p, nil
}

func (p *Pipe) TxChannel() ChannelID {
	return p.tx.id
}

func (p *Pipe) RxChannel() ChannelID {
	return p.rx.id
}

// Loopback reports whether the pipe copies memory to memory.
func (p *Pipe) Loopback() bool {
	return p.tx == p.rx
}

// Start hands the chains to the engine and returns the armed transfer.
// A nil chain leaves its direction idle. The chains belong to the
// transfer until it is released.
func (p *Pipe) Start(tx, rx *Chain) (*Transfer, error) {
	switch {
	case p.closed:
		return nil, ErrPipeClosed
	case p.armed != nil:
		return nil, ErrArmed
	case tx == nil && rx == nil:
		return nil, ErrEmptyChain
	}
	if err := checkChain(tx, TX); err != nil {
		return nil, err
	}
	if err := checkChain(rx, RX); err != nil {
		return nil, err
	}
	if tx != nil {
		p.tx.ClearStatus(txStatus)
		p.tx.SetStart(TX, tx.Head())
	}
	if rx != nil {
		p.rx.ClearStatus(rxStatus)
		p.rx.SetStart(RX, rx.Head())
	}
	if tx != nil {
		p.tx.Enable(TX)
	}
	if rx != nil {
		p.rx.Enable(RX)
	}
	t := &Transfer{p: p, tx: tx, rx: rx}
	for _, c := range []*Chain{tx, rx} {
		if c != nil {
			c.owner = t
		}
	}
	p.armed = t
	return t, nil
}

func checkChain(c *Chain, dir Direction) error {
	switch {
	case c == nil:
		return nil
	case c.dir != dir:
		return fmt.Errorf("%w: %s chain started as %s", ErrChainDirection, c.dir, dir)
	case c.owner != nil:
		return ErrChainInUse
	}
	return nil
}

// TxComplete reports whether the transmit side has sent its last
// descriptor. A closed pipe reports false.
func (p *Pipe) TxComplete() bool {
	if p.closed {
		return false
	}
	return p.tx.TxEOF()
}

// RxComplete reports whether the receive side has ended its frame.
// A frame that overflowed the receive chain also completes it; check
// [Transfer.Err].
func (p *Pipe) RxComplete() bool {
	if p.closed {
		return false
	}
	return p.rx.RxEOF()
}

// Close resets the channels, abandoning any transfer in flight, and
// returns the claims to the controller.
func (p *Pipe) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.tx.Reset(TX)
	p.rx.Reset(RX)
	if p.armed != nil {
		p.armed.detach(ErrPipeClosed)
		p.armed = nil
	}
	for _, cl := range p.claims {
		cl.retire()
	}
	return nil
}

// Transfer is an armed pipe. It owns the chains passed to Start until
// Release.
type Transfer struct {
	p      *Pipe
	tx, rx *Chain
	// result is the outcome of a detached transfer.
	result error
}

// detach disconnects t from its pipe. Later calls report result.
func (t *Transfer) detach(result error) {
	t.p = nil
	t.result = result
	for _, c := range []*Chain{t.tx, t.rx} {
		if c != nil && c.owner == t {
			c.owner = nil
		}
	}
}

// TxDone reports whether the transmit side has stopped, either at the
// end of its chain or on a descriptor fault.
func (t *Transfer) TxDone() bool {
	if t.p == nil || t.tx == nil {
		return true
	}
	return t.p.tx.Status()&(OutEOF|OutDscrErr) != 0
}

// RxDone is like TxDone for the receive side.
func (t *Transfer) RxDone() bool {
	if t.p == nil || t.rx == nil {
		return true
	}
	return t.p.rx.Status()&(InSucEOF|InErrEOF|InDscrErr) != 0
}

func (t *Transfer) Done() bool {
	return t.TxDone() && t.RxDone()
}

// Err returns nil if both directions completed without error. It
// returns ErrNotComplete while a direction is still running.
func (t *Transfer) Err() error {
	p := t.p
	if p == nil {
		return t.result
	}
	if t.tx != nil {
		if s := p.tx.Status(); s&OutDscrErr != 0 {
			return &FetchError{Dir: TX, Status: s & txStatus}
		}
	}
	if t.rx != nil {
		if s := p.rx.Status(); s&InDscrErr != 0 {
			return &FetchError{Dir: RX, Status: s & rxStatus}
		}
	}
	if !t.Done() {
		return ErrNotComplete
	}
	if t.tx != nil {
		if err := t.tx.Err(); err != nil {
			return err
		}
	}
	if t.rx != nil {
		return t.rx.Err()
	}
	return nil
}

// Wait polls the transfer until it is done or ctx expires.
func (t *Transfer) Wait(ctx context.Context) error {
	for !t.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		runtime.Gosched()
	}
	return t.Err()
}

// Release returns the chains to the caller and lets the pipe start
// another transfer. It fails with ErrNotComplete while the engine may
// still access the chains. Err keeps reporting the outcome of the
// transfer after Release.
func (t *Transfer) Release() error {
	p := t.p
	if p == nil {
		return nil
	}
	if !t.Done() {
		return ErrNotComplete
	}
	// The rest of a frame that overflowed the receive chain stays in
	// the engine; drop it so the next transfer starts clean.
	overflow := t.rx != nil && p.rx.Status()&(InErrEOF|InDscrErr) != 0
	t.detach(t.Err())
	if overflow {
		p.rx.Reset(RX)
	}
	p.armed = nil
	return nil
}
