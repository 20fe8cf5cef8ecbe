package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"periph.io/x/conn/v3/gpio"
)

func exec(t *testing.T, cmd string, args ...any) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(&stdout, &stderr, strings.Fields(fmt.Sprintf(cmd, args...)))
	return stdout.String(), err
}

func TestCopy(t *testing.T) {
	for _, n := range []int{1, 4095, 4096, 20000} {
		out, err := exec(t, "copy -n %d", n)
		if err != nil {
			t.Fatalf("copy -n %d: %v", n, err)
		}
		if want := fmt.Sprintf("copied %d bytes", n); !strings.Contains(out, want) {
			t.Errorf("copy -n %d: got %q", n, out)
		}
	}
	out, err := exec(t, "-mem heap copy -n 100 -seg 10")
	if err != nil {
		t.Fatal(err)
	}
	// 10 transmit descriptors and one receive descriptor.
	if !strings.Contains(out, "with 11 descriptors") {
		t.Errorf("got %q", out)
	}
}

func TestBench(t *testing.T) {
	out, err := exec(t, "-log-format json bench -n 512 -iter 5")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "copies: 5 failures: 0") {
		t.Errorf("got %q", out)
	}
}

func TestRegisters(t *testing.T) {
	if _, err := exec(t, "poke 0x6003f0a0 3"); err != nil {
		t.Fatal(err)
	}
	out, err := exec(t, "peek 0x6003f0a0")
	if err != nil {
		t.Fatal(err)
	}
	// Every run starts a fresh simulator.
	if want := "0x6003f0a0: 0x00000000\n"; out != want {
		t.Errorf("got %q, expected %q", out, want)
	}
	out, err = exec(t, "regs 1")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"INT_RAW", "IN_CONF0", "OUT_PERI_SEL", "0x6003f1c0"} {
		if !strings.Contains(out, name) {
			t.Errorf("regs 1: missing %s in %q", name, out)
		}
	}
}

func TestPins(t *testing.T) {
	out, err := exec(t, "-config ../../board/testdata/board.yaml pins")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d pins: %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "GPIO8") || !strings.Contains(lines[1], string(gpio.OUT_HIGH)) || !strings.Contains(lines[1], "40mA") {
		t.Errorf("unexpected LED line %q", lines[1])
	}
}

func TestErrors(t *testing.T) {
	tests := []string{
		"",
		"frobnicate",
		"-backend tape peek 0",
		"-log-format xml copy",
		"-log-level loud copy",
		"peek 0x6003f0a1",
		"peek",
		"poke 0x6003f0a0",
		"regs 3",
		"copy -n 0",
		"copy -seg 4096",
		"pins",
	}
	for _, test := range tests {
		if _, err := exec(t, "%s", test); err == nil {
			t.Errorf("%q: expected an error", test)
		}
	}
}
