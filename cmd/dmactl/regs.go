package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"c3hal.dev/board"
	"c3hal.dev/driver/dma"
)

func parseWord(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func parseAddr(s string) (uint32, error) {
	addr, err := parseWord(s)
	if err != nil {
		return 0, err
	}
	if addr%4 != 0 {
		return 0, fmt.Errorf("unaligned address %#x", addr)
	}
	return addr, nil
}

func peekCmd(b *backend, stdout io.Writer, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: peek ADDR")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	v := b.bus.Load32(addr)
	if err := b.Err(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "0x%08x: 0x%08x\n", addr, v)
	return nil
}

func pokeCmd(b *backend, stdout io.Writer, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: poke ADDR VALUE")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	v, err := parseWord(args[1])
	if err != nil {
		return err
	}
	b.bus.Store32(addr, v)
	return b.Err()
}

func regsCmd(b *backend, stdout io.Writer, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: regs CH")
	}
	ch, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	if ch < 0 || ch >= dma.NumChannels {
		return fmt.Errorf("%w: %d", dma.ErrInvalidChannel, ch)
	}
	for _, r := range dma.Registers(dma.Base, dma.ChannelID(ch)) {
		v := b.bus.Load32(r.Addr)
		if err := b.Err(); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%-12s 0x%08x: 0x%08x", r.Name, r.Addr, v)
		if r.Name == "INT_RAW" || r.Name == "INT_ST" {
			fmt.Fprintf(stdout, " %v", dma.Status(v))
		}
		fmt.Fprintln(stdout)
	}
	return nil
}

func pinsCmd(b *backend, stdout io.Writer, config string) error {
	cfg, err := board.LoadFile(config)
	if err != nil {
		return err
	}
	brd, err := board.Open(cfg, b.gpioController(), b.dmaController())
	if err != nil {
		return err
	}
	defer brd.Close()
	for _, p := range brd.Pins() {
		fmt.Fprintf(stdout, "%-6s %-9s pull=%v drive=%v\n", p, p.Func(), p.Pull(), p.Drive())
	}
	return b.Err()
}
