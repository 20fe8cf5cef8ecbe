// Command dmactl exercises the GDMA engine and inspects the registers
// of an ESP32-C3 through one of several backends:
//
//	sim     simulated engine and GPIO matrix (default)
//	devmem  physical registers mapped from /dev/mem
//	serial  a target running dmaprobe on its console UART
//
// Commands:
//
//	copy -n N          loopback copy of N bytes
//	bench -n N -iter K repeated loopback copies
//	peek ADDR          read a register
//	poke ADDR VALUE    write a register
//	regs CH            dump the registers of a DMA channel
//	pins               apply the pin setup of -config and show the pins
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"c3hal.dev/mmio/remote"
	"github.com/sirupsen/logrus"
)

type options struct {
	backend   string
	device    string
	baud      int
	timeout   time.Duration
	mem       string
	config    string
	logLevel  string
	logFormat string
}

func main() {
	if err := run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "dmactl: %v\n", err)
		os.Exit(2)
	}
}

func run(stdout, stderr io.Writer, args []string) error {
	var opts options
	fs := flag.NewFlagSet("dmactl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.backend, "backend", "sim", "register backend (sim, devmem, serial)")
	fs.StringVar(&opts.device, "device", "", "serial device of the probe")
	fs.IntVar(&opts.baud, "baud", remote.DefaultBaud, "serial line rate of the probe")
	fs.DurationVar(&opts.timeout, "timeout", remote.DefaultReadTimeout, "how long to wait for a probe reply")
	fs.StringVar(&opts.mem, "mem", "heap", "DMA memory of the sim backend (heap, locked)")
	fs.StringVar(&opts.config, "config", "", "board file")
	fs.StringVar(&opts.logLevel, "log-level", "info", "log level")
	fs.StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	l := logrus.New()
	l.Out = stderr
	if err := configLogger(l, opts.logLevel, opts.logFormat); err != nil {
		return err
	}
	args = fs.Args()
	if len(args) == 0 {
		return errors.New("missing command (copy, bench, peek, poke, regs, pins)")
	}
	cmd, args := args[0], args[1:]
	var exec func(b *backend, stdout io.Writer, args []string) error
	switch cmd {
	case "copy":
		exec = func(b *backend, stdout io.Writer, args []string) error {
			return copyCmd(l, b, stdout, args)
		}
	case "bench":
		exec = func(b *backend, stdout io.Writer, args []string) error {
			return benchCmd(l, b, stdout, args)
		}
	case "peek":
		exec = peekCmd
	case "poke":
		exec = pokeCmd
	case "regs":
		exec = regsCmd
	case "pins":
		if opts.config == "" {
			return errors.New("pins: missing -config")
		}
		exec = func(b *backend, stdout io.Writer, args []string) error {
			return pinsCmd(b, stdout, opts.config)
		}
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
	b, err := openBackend(l, opts)
	if err != nil {
		return err
	}
	defer b.Close()
	if err := exec(b, stdout, args); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return b.Err()
}

func configLogger(l *logrus.Logger, level, format string) error {
	logLevel, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("%s; possible levels: %s", err, logrus.AllLevels)
	}
	l.SetLevel(logLevel)
	switch strings.ToLower(format) {
	case "text":
		l.Formatter = &logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
		}
	case "json":
		l.Formatter = &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		}
	default:
		return fmt.Errorf("unknown log format `%s`. possible formats: %s", format, []string{"text", "json"})
	}
	return nil
}
