// Package filter turns raw 12-bit pedal readings into quantized controller
// values: adaptive calibration, normalization, asymmetric smoothing and
// hysteresis.
//
// A Filter is owned by a single goroutine (the sampler) and is not safe for
// concurrent use.
package filter

import (
	"github.com/chewxy/math32"

	"github.com/itohio/gomidal/pkg/config"
	"github.com/itohio/gomidal/pkg/midi"
)

const (
	alphaMin = 0.0001
	alphaMax = 1.0
)

// Calibration is the tracked input range of one channel.
type Calibration struct {
	Min         uint16
	Max         uint16
	Initialized bool
}

type channel struct {
	cal        Calibration
	state      float32 // Smoothed position in [0, 1]
	last       int32
	hasLast    bool
	hysteresis int32
}

// Filter holds the per-pedal processing state.
type Filter struct {
	channels  []channel
	full      int32 // Output full scale: 127 or 16383
	eps       float32
	alphaUp   float32
	alphaDown float32
	invert    bool
	margin    int32
	minSpan   int32
}

// New creates a filter for every configured pedal.
func New(cfg *config.Config) *Filter {
	fc := cfg.Filter

	full := int32(midi.Max7)
	if fc.Use14Bit {
		full = midi.Max14
	}

	minSpan := int32(fc.CalMinSpan)
	if minSpan < 1 {
		minSpan = 1
	}

	up, down := coefficients(fc, cfg.Sampler.PollHz)

	f := &Filter{
		channels:  make([]channel, len(cfg.Pedals)),
		full:      full,
		eps:       1.0 / float32(full),
		alphaUp:   up,
		alphaDown: down,
		invert:    fc.Invert,
		margin:    int32(fc.CalMargin),
		minSpan:   minSpan,
	}
	for i := range f.channels {
		f.channels[i].hysteresis = int32(fc.Hysteresis)
	}
	return f
}

// coefficients derives the attack and release EMA coefficients.
// With TauMs set, alpha = 1 - exp(-Ts/tau) for the sampling period Ts.
func coefficients(fc config.FilterConfig, pollHz int) (up, down float32) {
	a := fc.Alpha
	if fc.TauMs > 0 {
		if pollHz > 0 {
			ts := 1.0 / float32(pollHz)
			tau := fc.TauMs / 1000.0
			a = 1.0 - math32.Exp(-ts/tau)
		} else {
			a = alphaMax
		}
	}
	a = math32.Min(math32.Max(a, alphaMin), alphaMax)

	if !fc.Asymmetric {
		return a, a
	}
	return math32.Max(a, fc.AlphaUpMin), math32.Min(a, fc.AlphaDownMax)
}

// Channels returns the number of pedals handled.
func (f *Filter) Channels() int {
	return len(f.channels)
}

// FullScale returns the maximum output value.
func (f *Filter) FullScale() uint16 {
	return uint16(f.full)
}

// Alphas returns the attack and release coefficients in use.
func (f *Filter) Alphas() (up, down float32) {
	return f.alphaUp, f.alphaDown
}

// Apply processes one raw reading of pedal id. It returns the quantized
// output and whether it differs from the last emitted value; only changed
// values should be published.
func (f *Filter) Apply(id int, raw int32) (uint16, bool) {
	if id < 0 || id >= len(f.channels) {
		return 0, false
	}
	ch := &f.channels[id]

	if raw < 0 {
		raw = 0
	} else if raw > config.ADCMax {
		raw = config.ADCMax
	}

	f.calibrate(&ch.cal, raw)

	lo, hi := int32(ch.cal.Min), int32(ch.cal.Max)
	span := hi - lo
	if span < f.minSpan {
		span = f.minSpan
	}
	num := raw - lo
	if num < 0 {
		num = 0
	} else if num > span {
		num = span
	}

	v := float32(num) / float32(span)
	if v < f.eps {
		v = 0
	} else if v > 1-f.eps {
		v = 1
	}
	if f.invert {
		v = 1 - v
	}

	alpha := f.alphaDown
	if v > ch.state {
		alpha = f.alphaUp
	}
	ch.state += alpha * (v - ch.state)

	q := int32(ch.state*float32(f.full) + 0.5)
	if q < 0 {
		q = 0
	} else if q > f.full {
		q = f.full
	}

	if ch.hasLast {
		if q == ch.last {
			return uint16(q), false
		}
		// Endpoints bypass hysteresis so full release and full press are
		// always reachable.
		d := q - ch.last
		if d < 0 {
			d = -d
		}
		if d < ch.hysteresis && q != 0 && q != f.full {
			return uint16(ch.last), false
		}
	}

	ch.last = q
	ch.hasLast = true
	return uint16(q), true
}

// calibrate widens the tracked range when raw leaves it by more than the
// noise margin. The first reading initializes both bounds.
func (f *Filter) calibrate(cal *Calibration, raw int32) {
	if !cal.Initialized {
		cal.Min = uint16(raw)
		cal.Max = uint16(raw)
		cal.Initialized = true
		return
	}
	if raw < int32(cal.Min)-f.margin {
		cal.Min = uint16(raw)
	}
	if raw > int32(cal.Max)+f.margin {
		cal.Max = uint16(raw)
	}
}

// Calibration returns the tracked range of pedal id.
func (f *Filter) Calibration(id int) Calibration {
	if id < 0 || id >= len(f.channels) {
		return Calibration{}
	}
	return f.channels[id].cal
}

// ResetCalibration forgets the tracked range of pedal id. The next reading
// starts a new calibration; smoothing state and the last output are kept.
func (f *Filter) ResetCalibration(id int) {
	if id < 0 || id >= len(f.channels) {
		return
	}
	f.channels[id].cal = Calibration{}
}
