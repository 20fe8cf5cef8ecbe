// Package board describes how an application uses the pins and DMA
// channels of a chip, and applies such a description.
//
// A board file is YAML:
//
//	pins:
//	  - pin: 8
//	    name: LED
//	    mode: out
//	    level: high
//	    drive: 40mA
//	pipes:
//	  - name: copy
//	    loopback: true
//	    channel: 0
package board

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"c3hal.dev/driver/dma"
	"c3hal.dev/driver/gpio"
	"go.yaml.in/yaml/v3"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
)

var ErrUnknownPipe = errors.New("board: unknown pipe")

type Config struct {
	Pins  []PinConfig  `yaml:"pins"`
	Pipes []PipeConfig `yaml:"pipes"`
}

// PinConfig is the initial setup of a pin.
type PinConfig struct {
	Pin int `yaml:"pin"`
	// Name is registered with gpioreg as an alias of the pin.
	Name string `yaml:"name"`
	// Mode is "in" or "out".
	Mode string `yaml:"mode"`
	// Pull is "float", "up" or "down". Inputs only.
	Pull string `yaml:"pull"`
	// Level is "low" or "high". Outputs only.
	Level string `yaml:"level"`
	// Drive is a current such as "10mA". Outputs only.
	Drive string `yaml:"drive"`
}

// PipeConfig is a DMA pipe. Loopback pipes use Channel; peripheral
// pipes use TX and RX.
type PipeConfig struct {
	Name       string `yaml:"name"`
	Loopback   bool   `yaml:"loopback"`
	Channel    *int   `yaml:"channel"`
	Peripheral string `yaml:"peripheral"`
	TX         *int   `yaml:"tx"`
	RX         *int   `yaml:"rx"`
}

// Load decodes and validates a board file. Unknown fields are errors.
func Load(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	cfg := new(Config)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("board: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFile(name string) (*Config, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return cfg, nil
}

// Validate checks the configuration without touching hardware.
func (c *Config) Validate() error {
	pins := make(map[int]bool)
	names := make(map[string]bool)
	for _, p := range c.Pins {
		if p.Pin < 0 || p.Pin >= gpio.NumPins {
			return fmt.Errorf("board: pin %d: %w", p.Pin, gpio.ErrInvalidPin)
		}
		if pins[p.Pin] {
			return fmt.Errorf("board: pin %d configured twice", p.Pin)
		}
		pins[p.Pin] = true
		if p.Name != "" {
			if names[p.Name] {
				return fmt.Errorf("board: pin name %q used twice", p.Name)
			}
			names[p.Name] = true
		}
		if _, err := p.setup(); err != nil {
			return fmt.Errorf("board: pin %d: %w", p.Pin, err)
		}
	}
	chans := make(map[int]string)
	pipes := make(map[string]bool)
	use := func(pipe string, ch *int, what string) error {
		if ch == nil {
			return fmt.Errorf("board: pipe %q: missing %s", pipe, what)
		}
		if *ch < 0 || *ch >= dma.NumChannels {
			return fmt.Errorf("board: pipe %q: %w: %d", pipe, dma.ErrInvalidChannel, *ch)
		}
		if other, ok := chans[*ch]; ok {
			return fmt.Errorf("board: pipe %q: channel %d used by pipe %q", pipe, *ch, other)
		}
		chans[*ch] = pipe
		return nil
	}
	for _, p := range c.Pipes {
		if p.Name == "" {
			return errors.New("board: pipe without a name")
		}
		if pipes[p.Name] {
			return fmt.Errorf("board: pipe %q defined twice", p.Name)
		}
		pipes[p.Name] = true
		if p.Loopback {
			if p.Peripheral != "" || p.TX != nil || p.RX != nil {
				return fmt.Errorf("board: pipe %q: loopback pipes only take a channel", p.Name)
			}
			if err := use(p.Name, p.Channel, "channel"); err != nil {
				return err
			}
			continue
		}
		if p.Channel != nil {
			return fmt.Errorf("board: pipe %q: peripheral pipes take tx and rx channels", p.Name)
		}
		if _, err := dma.ParsePeripheral(p.Peripheral); err != nil {
			return fmt.Errorf("board: pipe %q: %w", p.Name, err)
		}
		if err := use(p.Name, p.TX, "tx channel"); err != nil {
			return err
		}
		if err := use(p.Name, p.RX, "rx channel"); err != nil {
			return err
		}
	}
	return nil
}

// pinSetup is a parsed PinConfig.
type pinSetup struct {
	output bool
	pull   pgpio.Pull
	level  pgpio.Level
	drive  physic.ElectricCurrent
}

func (p PinConfig) setup() (pinSetup, error) {
	var s pinSetup
	switch strings.ToLower(p.Mode) {
	case "in":
		if p.Level != "" || p.Drive != "" {
			return s, errors.New("level and drive apply to outputs")
		}
		switch strings.ToLower(p.Pull) {
		case "", "float":
			s.pull = pgpio.Float
		case "up":
			s.pull = pgpio.PullUp
		case "down":
			s.pull = pgpio.PullDown
		default:
			return s, fmt.Errorf("invalid pull %q", p.Pull)
		}
	case "out":
		if p.Pull != "" {
			return s, errors.New("pull applies to inputs")
		}
		s.output = true
		switch strings.ToLower(p.Level) {
		case "", "low":
		case "high":
			s.level = pgpio.High
		default:
			return s, fmt.Errorf("invalid level %q", p.Level)
		}
		if p.Drive != "" {
			if err := s.drive.Set(p.Drive); err != nil {
				return s, fmt.Errorf("invalid drive %q: %w", p.Drive, err)
			}
		}
	default:
		return s, fmt.Errorf("invalid mode %q", p.Mode)
	}
	return s, nil
}

// Board is an applied configuration. It holds the pins and channels
// it uses until Close.
type Board struct {
	pins    map[int]*gpio.Pin
	pipes   map[string]*dma.Pipe
	aliases []string
	regs    []string
}

// Open reserves and sets up the pins and pipes of cfg. Pins are
// registered with gpioreg under their names.
func Open(cfg *Config, g *gpio.Controller, d *dma.Controller) (_ *Board, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Board{
		pins:  make(map[int]*gpio.Pin),
		pipes: make(map[string]*dma.Pipe),
	}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()
	for _, pc := range cfg.Pins {
		if err := b.openPin(g, pc); err != nil {
			return nil, err
		}
	}
	for _, pc := range cfg.Pipes {
		if err := b.openPipe(d, pc); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Board) openPin(g *gpio.Controller, pc PinConfig) error {
	s, err := pc.setup()
	if err != nil {
		return err
	}
	p, err := g.Reserve(pc.Pin)
	if err != nil {
		return fmt.Errorf("board: %w", err)
	}
	b.pins[pc.Pin] = p
	if s.output {
		if err := p.Out(s.level); err != nil {
			return err
		}
		if s.drive != 0 {
			if err := p.SetDrive(s.drive); err != nil {
				return fmt.Errorf("board: %s: %w", p, err)
			}
		}
	} else if err := p.In(s.pull, pgpio.NoEdge); err != nil {
		return err
	}
	if err := gpioreg.Register(p); err != nil {
		return fmt.Errorf("board: %w", err)
	}
	b.regs = append(b.regs, p.Name())
	if pc.Name != "" {
		if err := gpioreg.RegisterAlias(pc.Name, p.Name()); err != nil {
			return fmt.Errorf("board: %w", err)
		}
		b.aliases = append(b.aliases, pc.Name)
	}
	return nil
}

func (b *Board) openPipe(d *dma.Controller, pc PipeConfig) error {
	var p *dma.Pipe
	if pc.Loopback {
		cl, err := d.Reserve(dma.ChannelID(*pc.Channel))
		if err != nil {
			return fmt.Errorf("board: pipe %q: %w", pc.Name, err)
		}
		p, err = d.NewLoopbackPipe(cl)
		if err != nil {
			cl.Release()
			return fmt.Errorf("board: pipe %q: %w", pc.Name, err)
		}
	} else {
		periph, _ := dma.ParsePeripheral(pc.Peripheral)
		tx, err := d.Reserve(dma.ChannelID(*pc.TX))
		if err != nil {
			return fmt.Errorf("board: pipe %q: %w", pc.Name, err)
		}
		rx, err := d.Reserve(dma.ChannelID(*pc.RX))
		if err != nil {
			tx.Release()
			return fmt.Errorf("board: pipe %q: %w", pc.Name, err)
		}
		p, err = d.NewPeripheralPipe(tx, rx, periph)
		if err != nil {
			tx.Release()
			rx.Release()
			return fmt.Errorf("board: pipe %q: %w", pc.Name, err)
		}
	}
	b.pipes[pc.Name] = p
	return nil
}

// Pipe returns the pipe called name.
func (b *Board) Pipe(name string) (*dma.Pipe, error) {
	p, ok := b.pipes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPipe, name)
	}
	return p, nil
}

// Pin returns pin n, or nil if the board does not use it.
func (b *Board) Pin(n int) *gpio.Pin {
	return b.pins[n]
}

// Pins returns the pins of the board in pin order.
func (b *Board) Pins() []*gpio.Pin {
	pins := make([]*gpio.Pin, 0, len(b.pins))
	for _, p := range b.pins {
		pins = append(pins, p)
	}
	sort.Slice(pins, func(i, j int) bool {
		return pins[i].Number() < pins[j].Number()
	})
	return pins
}

// Close closes the pipes, releases the pins and removes them from
// gpioreg. Pins keep their configuration.
func (b *Board) Close() error {
	var errs []error
	for _, p := range b.pipes {
		errs = append(errs, p.Close())
	}
	for _, a := range b.aliases {
		errs = append(errs, gpioreg.Unregister(a))
	}
	for _, n := range b.regs {
		errs = append(errs, gpioreg.Unregister(n))
	}
	for _, p := range b.pins {
		p.Release()
	}
	b.pipes, b.pins, b.aliases, b.regs = nil, nil, nil, nil
	return errors.Join(errs...)
}
