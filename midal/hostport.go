//go:build cgo

package main

import (
	"fmt"
	"log/slog"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/itohio/gomidal/pkg/transport/hostmidi"
)

// openHostPort opens the named host MIDI output, creating a virtual port when
// no such port exists.
func openHostPort(name string, log *slog.Logger) (hostmidi.SendFunc, func() error, error) {
	out, err := midi.FindOutPort(name)
	if err != nil {
		drv, ok := drivers.Get().(*rtmididrv.Driver)
		if !ok {
			return nil, nil, fmt.Errorf("output port %q not found: %w", name, err)
		}
		out, err = drv.OpenVirtualOut(name)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open virtual port %q: %w", name, err)
		}
		log.Info("created virtual MIDI output", "port", name)
	}

	send, err := midi.SendTo(out)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open output port %q: %w", name, err)
	}
	log.Info("host MIDI output ready", "port", out.String())

	return send, func() error {
		midi.CloseDriver()
		return nil
	}, nil
}

// hostPorts returns the names of the host MIDI outputs.
func hostPorts() []string {
	outs := midi.GetOutPorts()
	names := make([]string, 0, len(outs))
	for _, out := range outs {
		names = append(names, out.String())
	}
	return names
}
