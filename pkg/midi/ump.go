package midi

import (
	"encoding/binary"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// UMP message types.
const (
	MTMIDI1ChannelVoice = 0x2
	MTMIDI2ChannelVoice = 0x4
)

const statusControlChange = 0xB

// Packet is a Universal MIDI Packet. Channel voice messages use one word
// (MIDI 1.0) or two words (MIDI 2.0).
type Packet struct {
	Words [2]uint32
	Len   uint8
}

// MIDI1CC builds a MIDI 1.0 channel voice control change packet.
func MIDI1CC(group, channel, controller, value uint8) Packet {
	w := uint32(MTMIDI1ChannelVoice)<<28 |
		uint32(group&0x0F)<<24 |
		uint32(statusControlChange)<<20 |
		uint32(channel&0x0F)<<16 |
		uint32(controller&0x7F)<<8 |
		uint32(value&0x7F)
	return Packet{Words: [2]uint32{w, 0}, Len: 1}
}

// MIDI2CC builds a MIDI 2.0 channel voice control change packet carrying a
// 32-bit value.
func MIDI2CC(group, channel, controller uint8, value uint32) Packet {
	w0 := uint32(MTMIDI2ChannelVoice)<<28 |
		uint32(group&0x0F)<<24 |
		uint32(statusControlChange)<<20 |
		uint32(channel&0x0F)<<16 |
		uint32(controller&0x7F)<<8
	return Packet{Words: [2]uint32{w0, value}, Len: 2}
}

// Scale14To16 maps 0..16383 onto 0..65535 with rounding.
func Scale14To16(v uint16) uint16 {
	if v > Max14 {
		return 0xFFFF
	}
	return uint16((uint32(v)*0xFFFF + Max14/2) / Max14)
}

// Scale7To16 maps 0..127 onto 0..65535 with rounding.
func Scale7To16(v uint16) uint16 {
	if v > Max7 {
		return 0xFFFF
	}
	return uint16((uint32(v)*0xFFFF + Max7/2) / Max7)
}

// WideValue places a 7- or 14-bit value into the MSBs of a MIDI 2.0 data word.
func WideValue(v uint16, highRes bool) uint32 {
	if highRes {
		return uint32(Scale14To16(v)) << 16
	}
	return uint32(Scale7To16(v)) << 16
}

// MessageType returns the UMP message type nibble.
func (p Packet) MessageType() uint8 {
	return uint8(p.Words[0] >> 28)
}

// Bytes returns the packet in big-endian word order.
func (p Packet) Bytes() []byte {
	out := make([]byte, 4*int(p.Len))
	for i := 0; i < int(p.Len); i++ {
		binary.BigEndian.PutUint32(out[i*4:], p.Words[i])
	}
	return out
}

// Message converts a MIDI 1.0 channel voice packet back into MIDI 1.0 bytes.
func (p Packet) Message() (Message, bool) {
	if p.Len != 1 || p.MessageType() != MTMIDI1ChannelVoice {
		return nil, false
	}
	w := p.Words[0]
	return gomidi.Message{byte(w >> 16), byte(w>>8) & 0x7F, byte(w) & 0x7F}, true
}

// USBMIDI1 converts a MIDI 1.0 channel voice packet into a USB-MIDI 1.0 event
// packet on the given cable.
func (p Packet) USBMIDI1(cable uint8) ([4]byte, bool) {
	if p.Len != 1 || p.MessageType() != MTMIDI1ChannelVoice {
		return [4]byte{}, false
	}
	w := p.Words[0]
	status := byte(w >> 16)
	return [4]byte{(cable&0x0F)<<4 | status>>4, status, byte(w>>8) & 0x7F, byte(w) & 0x7F}, true
}
