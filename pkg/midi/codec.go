package midi

import (
	gomidi "gitlab.com/gomidi/midi/v2"
)

// Message is a MIDI 1.0 message as raw bytes.
type Message = gomidi.Message

// Scale14To7 reduces a 14-bit value to 7 bits, rounding to nearest.
func Scale14To7(v uint16) uint8 {
	if v > Max14 {
		v = Max14
	}
	r := (v + 0x40) >> 7
	if r > Max7 {
		r = Max7
	}
	return uint8(r)
}

// LSB returns the low 7 bits of a 14-bit value.
func LSB(v uint16) uint8 {
	return uint8(v & 0x7F)
}

// HasLSBPair reports whether controller has a companion LSB controller at
// controller+32. Standard MIDI pairs only controllers 0-31; pairAll extends
// the pairing to every controller whose companion number is valid.
func HasLSBPair(controller uint8, pairAll bool) bool {
	if controller < 32 {
		return true
	}
	return pairAll && controller <= Max7-32
}

// Encoding describes how a CC event becomes MIDI 1.0 messages.
type Encoding struct {
	HighRes bool // Event values span 0..16383
	Split   bool // Emit the LSB companion after the MSB
	PairAll bool // See HasLSBPair
}

// Encode appends the MIDI 1.0 messages for ev to dst. Non-CC events produce
// nothing.
//
// High resolution values are sent as a rounded MSB. With Split set the LSB
// companion is always sent, even when the value fits into 7 bits, so the
// receiver's LSB state never goes stale.
func (e Encoding) Encode(dst []Message, ev Event) []Message {
	if ev.Kind != KindCC {
		return dst
	}

	ch := ev.Channel & 0x0F
	cc := ev.Controller & 0x7F

	if !e.HighRes {
		v := ev.Value
		if v > Max7 {
			v = Max7
		}
		return append(dst, gomidi.ControlChange(ch, cc, uint8(v)))
	}

	v := ev.Value
	if v > Max14 {
		v = Max14
	}
	dst = append(dst, gomidi.ControlChange(ch, cc, Scale14To7(v)))
	if e.Split && HasLSBPair(cc, e.PairAll) {
		dst = append(dst, gomidi.ControlChange(ch, cc+32, LSB(v)))
	}
	return dst
}
