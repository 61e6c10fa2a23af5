//go:build tinygo

package main

import "machine"

const (
	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// machine.ADC.Get returns a left-aligned 16-bit value
	ADC_SHIFT = 16 - ADC_RESOLUTION

	// USB-MIDI cable number of the pedal output
	USB_MIDI_CABLE = 0
)

// Converter channel id to analog pin.
var adcPins = [...]machine.Pin{
	machine.A0,
	machine.A1,
	machine.A2,
	machine.A3,
	machine.A4,
	machine.A5,
	machine.A6,
	machine.A7,
}

// DIN MIDI output
var midiUART = machine.UART0
