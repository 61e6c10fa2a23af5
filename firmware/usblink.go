//go:build tinygo

package main

import (
	"errors"
	"machine/usb/adc/midi"

	gomidal "github.com/itohio/gomidal/pkg/midi"
	"github.com/itohio/gomidal/pkg/transport"
)

var errNoMIDI1Form = errors.New("usb-midi 1.0 port cannot carry this packet")

// usbLink writes USB-MIDI 1.0 event packets to the device port.
type usbLink struct {
	port interface {
		Write(b []byte) (int, error)
	}
}

func newUSBLink() *usbLink {
	return &usbLink{port: midi.Port()}
}

func (l *usbLink) Send(p gomidal.Packet) error {
	ev, ok := p.USBMIDI1(USB_MIDI_CABLE)
	if !ok {
		return errNoMIDI1Form
	}
	n, err := l.port.Write(ev[:])
	if err != nil {
		return err
	}
	if n == 0 {
		return transport.ErrBufferFull
	}
	return nil
}
