//go:build !linux

package main

import (
	"errors"

	"c3hal.dev/dmamem"
	"github.com/sirupsen/logrus"
)

func openDevMem(l *logrus.Logger) (*backend, error) {
	return nil, errors.New("devmem: only supported on linux")
}

func newLocked(base uint32, size int) (*dmamem.Region, error) {
	return nil, errors.New("locked memory: only supported on linux")
}
