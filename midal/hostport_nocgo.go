//go:build !cgo

package main

import (
	"errors"
	"log/slog"

	"github.com/itohio/gomidal/pkg/transport/hostmidi"
)

func openHostPort(name string, log *slog.Logger) (hostmidi.SendFunc, func() error, error) {
	return nil, nil, errors.New("host MIDI ports need a cgo build (rtmidi driver)")
}

func hostPorts() []string {
	return nil
}
