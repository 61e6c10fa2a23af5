package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, 1000, cfg.Sampler.PollHz)
	assert.Equal(t, 5*time.Millisecond, cfg.Sampler.ADCTimeout)
	assert.Equal(t, float32(0.25), cfg.Filter.Alpha)
	assert.Equal(t, uint16(4), cfg.Filter.CalMargin)
	assert.Equal(t, uint16(32), cfg.Filter.CalMinSpan)
	assert.True(t, cfg.Filter.Use14Bit)
	assert.Len(t, cfg.Pedals, 3)
	assert.Equal(t, uint8(64), cfg.Pedals[0].Controller)
	assert.Equal(t, uint8(66), cfg.Pedals[1].Controller)
	assert.Equal(t, uint8(67), cfg.Pedals[2].Controller)
	assert.Equal(t, 64, cfg.Router.QueueSize)
	assert.Equal(t, 32, cfg.Router.RouteQueueSize)
	assert.Equal(t, "legacy14", cfg.USB.Mode)
	assert.Equal(t, 3, cfg.USB.Retries)
	assert.Equal(t, 31250, cfg.UART.BaudRate)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, 1000, cfg.Sampler.PollHz)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
sampler:
  poll_hz: 500
  adc_timeout: 2ms

filter:
  tau_ms: 5
  asymmetric: true
  hysteresis: 2
  use_14bit: false
  invert: true
  cal_margin: 8
  cal_min_span: 64

pedals:
  - name: Expression
    adc_channel: 3
    channel: 4
    controller: 11

router:
  queue_size: 16
  route_queue_size: 8
  submit_timeout: 1ms

usb:
  mode: native
  retries: 5

uart:
  port: /dev/ttyUSB0
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Sampler.PollHz)
	assert.Equal(t, 2*time.Millisecond, cfg.Sampler.ADCTimeout)
	assert.Equal(t, float32(5), cfg.Filter.TauMs)
	assert.True(t, cfg.Filter.Asymmetric)
	assert.Equal(t, uint16(2), cfg.Filter.Hysteresis)
	assert.False(t, cfg.Filter.Use14Bit)
	assert.True(t, cfg.Filter.Invert)
	assert.Equal(t, uint16(8), cfg.Filter.CalMargin)
	assert.Equal(t, uint16(64), cfg.Filter.CalMinSpan)
	require.Len(t, cfg.Pedals, 1)
	assert.Equal(t, PedalConfig{Name: "Expression", ADCChannel: 3, Channel: 4, Controller: 11}, cfg.Pedals[0])
	assert.Equal(t, 16, cfg.Router.QueueSize)
	assert.Equal(t, 8, cfg.Router.RouteQueueSize)
	assert.Equal(t, time.Millisecond, cfg.Router.SubmitTimeout)
	assert.Equal(t, "native", cfg.USB.Mode)
	assert.Equal(t, 5, cfg.USB.Retries)
	assert.Equal(t, "/dev/ttyUSB0", cfg.UART.Port)
	assert.Equal(t, 31250, cfg.UART.BaudRate) // default
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("sampler:\n  poll_hz: 250\n")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Sampler.PollHz)
	assert.Equal(t, 5*time.Millisecond, cfg.Sampler.ADCTimeout) // default
	assert.Len(t, cfg.Pedals, 3)                                // default
	assert.Equal(t, "legacy14", cfg.USB.Mode)                   // default
}

func TestLoad_StandardPairing(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("usb:\n  pair_all_controllers: false\n")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	assert.True(t, Default().USB.PairAllControllers)
	assert.False(t, cfg.USB.PairAllControllers, "false must not be replaced by the default")
	assert.Equal(t, "legacy14", cfg.USB.Mode)
	assert.Equal(t, 3, cfg.USB.Retries)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Sampler.PollHz = 200
	cfg.UART.Port = "/dev/ttyAMA0"

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	require.NoError(t, cfg.Save(tmpfile.Name()))

	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, 200, loaded.Sampler.PollHz)
	assert.Equal(t, "/dev/ttyAMA0", loaded.UART.Port)
	assert.Equal(t, cfg.Pedals, loaded.Pedals)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"zero poll rate", func(c *Config) { c.Sampler.PollHz = 0 }},
		{"alpha above one", func(c *Config) { c.Filter.Alpha = 1.5 }},
		{"zero min span", func(c *Config) { c.Filter.CalMinSpan = 0 }},
		{"no pedals", func(c *Config) { c.Pedals = nil }},
		{"channel out of range", func(c *Config) { c.Pedals[0].Channel = 16 }},
		{"controller out of range", func(c *Config) { c.Pedals[1].Controller = 128 }},
		{"duplicate adc channel", func(c *Config) { c.Pedals[2].ADCChannel = c.Pedals[0].ADCChannel }},
		{"zero route queue", func(c *Config) { c.Router.RouteQueueSize = 0 }},
		{"unknown usb mode", func(c *Config) { c.USB.Mode = "midi3" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestADCChannels(t *testing.T) {
	cfg := Default()
	assert.Equal(t, []uint8{7, 0, 5}, cfg.ADCChannels())
}
