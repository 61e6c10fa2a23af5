//go:build tinygo

package main

import (
	"fmt"
	"machine"

	"github.com/itohio/gomidal/pkg/adc"
)

var _ adc.Converter = (*converter)(nil)

// converter scans the pedal inputs with the on-chip ADC. Conversions are
// short enough to run inline, so ReadAsync completes before returning.
type converter struct {
	ids     []uint8
	offsets []int
	inputs  []machine.ADC
}

func newConverter(ids []uint8) (*converter, error) {
	offsets, err := adc.NewChannelMap(ids)
	if err != nil {
		return nil, err
	}

	machine.InitADC()
	c := &converter{
		ids:     ids,
		offsets: offsets,
		inputs:  make([]machine.ADC, len(ids)),
	}
	for i, id := range ids {
		if int(id) >= len(adcPins) {
			return nil, fmt.Errorf("adc channel %d has no pin", id)
		}
		pin := adcPins[id]
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
		c.inputs[i] = machine.ADC{Pin: pin}
		c.inputs[i].Configure(machine.ADCConfig{
			Reference:  ADC_REFERENCE_MV,
			Resolution: ADC_RESOLUTION,
		})
	}
	return c, nil
}

func (c *converter) Channels() []uint8 {
	return c.ids
}

func (c *converter) Read(buf []int16) error {
	for i, in := range c.inputs {
		buf[c.offsets[i]] = int16(in.Get() >> ADC_SHIFT)
	}
	return nil
}

func (c *converter) ReadAsync(buf []int16, done chan<- error) error {
	err := c.Read(buf)
	select {
	case done <- err:
	default:
	}
	return nil
}

func (c *converter) Abort() {}
