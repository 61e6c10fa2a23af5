// Package hostmidi plays the role of the USB device port when the pipeline
// runs on a desktop: packets are converted back to MIDI 1.0 messages and
// handed to a host MIDI output.
package hostmidi

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/itohio/gomidal/pkg/midi"
)

// ErrUnsupported is returned for packets with no MIDI 1.0 equivalent.
var ErrUnsupported = errors.New("hostmidi: packet has no MIDI 1.0 form")

// SendFunc writes one message to a host port, as returned by
// gitlab.com/gomidi/midi/v2.SendTo.
type SendFunc func(msg midi.Message) error

// Link adapts a host MIDI output to the USB link interface.
type Link struct {
	send SendFunc
	sent atomic.Uint64
}

// New creates a link sending through send.
func New(send SendFunc) (*Link, error) {
	if send == nil {
		return nil, errors.New("hostmidi: no sender")
	}
	return &Link{send: send}, nil
}

// Send converts p and writes it. Only MIDI 1.0 channel voice packets are
// carried; host ports do not speak MIDI 2.0.
func (l *Link) Send(p midi.Packet) error {
	msg, ok := p.Message()
	if !ok {
		return fmt.Errorf("%w: message type %#x", ErrUnsupported, p.MessageType())
	}
	if err := l.send(msg); err != nil {
		return fmt.Errorf("hostmidi: send: %w", err)
	}
	l.sent.Add(1)
	return nil
}

// Sent returns the number of messages written.
func (l *Link) Sent() uint64 {
	return l.sent.Load()
}
