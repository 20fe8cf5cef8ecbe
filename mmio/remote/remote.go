// Package remote carries register accesses over a byte stream, such as
// the console UART of a target running a probe. Each access is a CBOR
// request answered by exactly one CBOR response, so a Bus stays in
// lockstep with the Server.
package remote

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"c3hal.dev/mmio"
	"github.com/fxamacker/cbor/v2"
)

const (
	opLoad  = 1
	opStore = 2
)

type request struct {
	_    struct{} `cbor:",toarray"`
	Op   uint8
	Addr uint32
	Val  uint32
}

type response struct {
	_   struct{} `cbor:",toarray"`
	Val uint32
	Err string
}

// ProbeError is an access the server refused.
type ProbeError struct {
	Addr uint32
	Msg  string
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("remote: access at %#x: %s", e.Addr, e.Msg)
}

// Bus is an mmio.Bus whose accesses are performed by a Server at the
// other end of a stream. The first failure is sticky: later loads
// return zero and stores are dropped. Check Err after a sequence of
// accesses.
type Bus struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	dec *cbor.Decoder
	err error
}

func codec(rw io.ReadWriter) (*cbor.Encoder, *cbor.Decoder, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, nil, err
	}
	dm, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		return nil, nil, err
	}
	return em.NewEncoder(rw), dm.NewDecoder(rw), nil
}

// Dial returns a Bus speaking to a Server over rw.
func Dial(rw io.ReadWriter) (*Bus, error) {
	enc, dec, err := codec(rw)
	if err != nil {
		return nil, err
	}
	return &Bus{enc: enc, dec: dec}, nil
}

func (b *Bus) do(req request) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return 0
	}
	if err := b.enc.Encode(req); err != nil {
		b.err = fmt.Errorf("remote: send: %w", err)
		return 0
	}
	var resp response
	if err := b.dec.Decode(&resp); err != nil {
		b.err = fmt.Errorf("remote: receive: %w", err)
		return 0
	}
	if resp.Err != "" {
		b.err = &ProbeError{Addr: req.Addr, Msg: resp.Err}
		return 0
	}
	return resp.Val
}

func (b *Bus) Load32(addr uint32) uint32 {
	return b.do(request{Op: opLoad, Addr: addr})
}

func (b *Bus) Store32(addr, val uint32) {
	b.do(request{Op: opStore, Addr: addr, Val: val})
}

// Err returns the first error encountered by b.
func (b *Bus) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Server performs the accesses requested by a Bus.
type Server struct {
	Bus mmio.Bus
	// Allow, if set, reports whether addr may be accessed.
	Allow func(addr uint32) bool
}

// Serve answers requests from rw until the stream ends. A clean end of
// stream returns nil.
func (s *Server) Serve(rw io.ReadWriter) error {
	enc, dec, err := codec(rw)
	if err != nil {
		return err
	}
	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("remote: receive: %w", err)
		}
		if err := enc.Encode(s.handle(req)); err != nil {
			return fmt.Errorf("remote: send: %w", err)
		}
	}
}

func (s *Server) handle(req request) response {
	switch {
	case req.Addr%4 != 0:
		return response{Err: "unaligned address"}
	case s.Allow != nil && !s.Allow(req.Addr):
		return response{Err: "address not allowed"}
	}
	switch req.Op {
	case opLoad:
		return response{Val: s.Bus.Load32(req.Addr)}
	case opStore:
		s.Bus.Store32(req.Addr, req.Val)
		return response{}
	default:
		return response{Err: fmt.Sprintf("unknown operation %d", req.Op)}
	}
}

// Serve is shorthand for (&Server{Bus: bus}).Serve(rw).
func Serve(rw io.ReadWriter, bus mmio.Bus) error {
	s := &Server{Bus: bus}
	return s.Serve(rw)
}
