//go:build !(tinygo && esp32c3)

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "dmaprobe: build with tinygo for esp32c3")
	os.Exit(2)
}
