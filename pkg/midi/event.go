// Package midi holds the pipeline event type and the MIDI wire encodings
// shared by all transports.
package midi

import "fmt"

// Output value ranges.
const (
	Max7  = 127
	Max14 = 16383
)

// Kind identifies the event payload.
type Kind uint8

const (
	KindCC Kind = iota
	// KindNote and KindPitchBend are reserved; no stage produces them yet.
	KindNote
	KindPitchBend
)

func (k Kind) String() string {
	switch k {
	case KindCC:
		return "cc"
	case KindNote:
		return "note"
	case KindPitchBend:
		return "pitchbend"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Event is a single controller update. It is passed by value through the
// whole pipeline and never mutated after creation.
type Event struct {
	Kind       Kind
	Channel    uint8  // 0..15
	Controller uint8  // 0..127
	Value      uint16 // 0..127 or 0..16383 depending on resolution
	Timestamp  uint32 // Microseconds since sampler start
}

// CC creates a control change event.
func CC(channel, controller uint8, value uint16, timestamp uint32) Event {
	return Event{
		Kind:       KindCC,
		Channel:    channel & 0x0F,
		Controller: controller & 0x7F,
		Value:      value,
		Timestamp:  timestamp,
	}
}

func (e Event) String() string {
	return fmt.Sprintf("%s ch=%d cc=%d val=%d t=%dus", e.Kind, e.Channel, e.Controller, e.Value, e.Timestamp)
}
