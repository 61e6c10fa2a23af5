package filter

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gomidal/pkg/config"
)

func newTestConfig(use14 bool, alpha float32, hysteresis uint16) *config.Config {
	cfg := config.Default()
	cfg.Filter.Use14Bit = use14
	cfg.Filter.Alpha = alpha
	cfg.Filter.TauMs = 0
	cfg.Filter.Asymmetric = false
	cfg.Filter.Hysteresis = hysteresis
	return cfg
}

func TestApply_SteadyMidpointSettlesAtZero(t *testing.T) {
	f := New(config.Default())

	var outs []uint16
	var emitted []bool
	for i := 0; i < 3; i++ {
		v, ok := f.Apply(0, 2048)
		outs = append(outs, v)
		emitted = append(emitted, ok)
	}

	cal := f.Calibration(0)
	assert.True(t, cal.Initialized)
	assert.Equal(t, uint16(2048), cal.Min)
	assert.Equal(t, uint16(2048), cal.Max)
	assert.Equal(t, []uint16{0, 0, 0}, outs)
	assert.Equal(t, []bool{true, false, false}, emitted, "only the first output is emitted")
}

func TestApply_OutputWithinRange(t *testing.T) {
	for _, use14 := range []bool{false, true} {
		cfg := newTestConfig(use14, 0.3, 1)
		cfg.Filter.Invert = use14
		f := New(cfg)
		full := f.FullScale()
		rng := rand.New(rand.NewSource(1))

		for i := 0; i < 20000; i++ {
			raw := int32(rng.Intn(4096+400)) - 200 // include out-of-range readings
			for id := 0; id < f.Channels(); id++ {
				v, _ := f.Apply(id, raw)
				require.LessOrEqual(t, v, full)
			}
		}
	}
}

func TestApply_CalibrationMonotonic(t *testing.T) {
	f := New(config.Default())
	rng := rand.New(rand.NewSource(7))

	f.Apply(0, 2000)
	prev := f.Calibration(0)
	for i := 0; i < 10000; i++ {
		f.Apply(0, int32(rng.Intn(4096)))
		cur := f.Calibration(0)
		require.LessOrEqual(t, cur.Min, prev.Min, "min must not increase")
		require.GreaterOrEqual(t, cur.Max, prev.Max, "max must not decrease")
		prev = cur
	}
}

func TestApply_CalibrationIgnoresNoiseInsideMargin(t *testing.T) {
	f := New(config.Default()) // margin 4

	f.Apply(0, 1000)
	f.Apply(0, 997)
	f.Apply(0, 1004)
	assert.Equal(t, Calibration{Min: 1000, Max: 1000, Initialized: true}, f.Calibration(0))

	f.Apply(0, 995)
	f.Apply(0, 1005)
	assert.Equal(t, Calibration{Min: 995, Max: 1005, Initialized: true}, f.Calibration(0))
}

func TestApply_Hysteresis(t *testing.T) {
	f := New(newTestConfig(false, 1, 4))

	steps := []struct {
		raw  int32
		want uint16
		emit bool
	}{
		{0, 0, true},      // first output is never suppressed
		{4095, 127, true}, // calibration widens to the full range
		{2048, 64, true},
		{2128, 64, false}, // 66 is within the band
		{2225, 69, true},
		{2225, 69, false}, // unchanged
	}
	for i, s := range steps {
		v, ok := f.Apply(0, s.raw)
		assert.Equal(t, s.want, v, "step %d", i)
		assert.Equal(t, s.emit, ok, "step %d", i)
	}
}

func TestApply_EndpointsBypassHysteresis(t *testing.T) {
	f := New(newTestConfig(false, 1, 10))

	f.Apply(0, 0)
	f.Apply(0, 4095)

	v, ok := f.Apply(0, 161)
	assert.Equal(t, uint16(5), v)
	assert.True(t, ok)

	v, ok = f.Apply(0, 0)
	assert.Equal(t, uint16(0), v)
	assert.True(t, ok, "full release must be reachable")

	v, ok = f.Apply(0, 97)
	assert.Equal(t, uint16(0), v)
	assert.False(t, ok)

	v, ok = f.Apply(0, 4000)
	assert.Equal(t, uint16(124), v)
	assert.True(t, ok)

	v, ok = f.Apply(0, 4095)
	assert.Equal(t, uint16(127), v)
	assert.True(t, ok, "full press must be reachable")
}

func TestApply_EndpointSnap(t *testing.T) {
	f := New(newTestConfig(false, 1, 1))
	f.Apply(0, 0)
	f.Apply(0, 4095)

	v, _ := f.Apply(0, 4090) // within 1/127 of full scale
	assert.Equal(t, uint16(127), v)

	v, _ = f.Apply(0, 20) // within 1/127 of zero
	assert.Equal(t, uint16(0), v)
}

func TestApply_Invert(t *testing.T) {
	cfg := newTestConfig(false, 1, 1)
	cfg.Filter.Invert = true
	f := New(cfg)

	v, ok := f.Apply(0, 2048)
	assert.Equal(t, uint16(127), v)
	assert.True(t, ok)
}

func TestApply_SmoothingConverges(t *testing.T) {
	f := New(newTestConfig(true, 0.25, 1))
	f.Apply(0, 0)

	var v uint16
	prev := uint16(0)
	for i := 0; i < 200; i++ {
		v, _ = f.Apply(0, 4095)
		assert.GreaterOrEqual(t, v, prev, "rising input must not decrease the output")
		prev = v
	}
	assert.Equal(t, uint16(16383), v)

	for i := 0; i < 200; i++ {
		v, _ = f.Apply(0, 0)
	}
	assert.Equal(t, uint16(0), v)
}

func TestApply_InvalidChannel(t *testing.T) {
	f := New(config.Default())
	v, ok := f.Apply(5, 1000)
	assert.Zero(t, v)
	assert.False(t, ok)
	v, ok = f.Apply(-1, 1000)
	assert.Zero(t, v)
	assert.False(t, ok)
}

func TestApply_ClampsRaw(t *testing.T) {
	f := New(config.Default())
	f.Apply(0, -300)
	assert.Equal(t, uint16(0), f.Calibration(0).Min)
	f.Apply(0, 9000)
	assert.Equal(t, uint16(4095), f.Calibration(0).Max)
}

func TestResetCalibration(t *testing.T) {
	f := New(config.Default())
	f.Apply(1, 100)
	f.Apply(1, 3000)
	require.Equal(t, uint16(3000), f.Calibration(1).Max)

	f.ResetCalibration(1)
	assert.False(t, f.Calibration(1).Initialized)

	f.Apply(1, 1500)
	assert.Equal(t, Calibration{Min: 1500, Max: 1500, Initialized: true}, f.Calibration(1))
}

func TestApply_Asymmetric(t *testing.T) {
	cfg := newTestConfig(true, 0.1, 0)
	cfg.Filter.Asymmetric = true
	f := New(cfg)
	full := float64(f.FullScale())

	// Released pedal, then one press step.
	v, ok := f.Apply(0, 0)
	require.True(t, ok)
	require.Equal(t, uint16(0), v)
	v, _ = f.Apply(0, config.ADCMax)
	assert.InDelta(t, 0.4*full, float64(v), 1, "attack uses alpha_up")

	// Settle at full scale, then one release step.
	for i := 0; i < 200; i++ {
		v, _ = f.Apply(0, config.ADCMax)
	}
	require.Equal(t, f.FullScale(), v)
	v, _ = f.Apply(0, 0)
	assert.InDelta(t, 0.9*full, float64(v), 1, "release uses alpha_down")
}

func TestCoefficients(t *testing.T) {
	cfg := config.Default()
	cfg.Filter.Alpha = 0.3
	up, down := New(cfg).Alphas()
	assert.Equal(t, float32(0.3), up)
	assert.Equal(t, float32(0.3), down)

	cfg.Filter.TauMs = 5
	cfg.Sampler.PollHz = 1000
	up, down = New(cfg).Alphas()
	assert.InDelta(t, 0.18127, up, 1e-4)
	assert.InDelta(t, 0.18127, down, 1e-4)

	cfg.Filter.Asymmetric = true
	up, down = New(cfg).Alphas()
	assert.InDelta(t, 0.40, up, 1e-6)
	assert.InDelta(t, 0.18127, down, 1e-4)

	cfg.Filter.TauMs = 0
	cfg.Filter.Alpha = 0
	cfg.Filter.Asymmetric = false
	up, _ = New(cfg).Alphas()
	assert.Equal(t, float32(alphaMin), up)
}
