package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Resolution limits of the 12-bit converter.
const (
	ADCMax = 4095
)

// Config represents the application configuration.
type Config struct {
	Sampler   SamplerConfig   `yaml:"sampler"`
	Filter    FilterConfig    `yaml:"filter"`
	Pedals    []PedalConfig   `yaml:"pedals"`
	Router    RouterConfig    `yaml:"router"`
	USB       USBConfig       `yaml:"usb"`
	BLE       BLEConfig       `yaml:"ble"`
	UART      UARTConfig      `yaml:"uart"`
	Host      HostConfig      `yaml:"host"`
	SerialADC SerialADCConfig `yaml:"serial_adc"`
	Mock      MockConfig      `yaml:"mock"`
	Stats     StatsConfig     `yaml:"stats"`
}

// SamplerConfig contains acquisition timing.
type SamplerConfig struct {
	PollHz      int           `yaml:"poll_hz"`
	ADCTimeout  time.Duration `yaml:"adc_timeout"`
	LogInterval time.Duration `yaml:"log_interval"` // Per-pedal diagnostic log rate (0 = disabled)
}

// FilterConfig contains calibration and smoothing parameters.
type FilterConfig struct {
	Alpha        float32 `yaml:"alpha"`          // Fixed EMA coefficient, used when TauMs is 0
	TauMs        float32 `yaml:"tau_ms"`         // Time constant; alpha = 1 - exp(-Ts/tau) when set
	Asymmetric   bool    `yaml:"asymmetric"`     // Faster attack, softer release
	AlphaUpMin   float32 `yaml:"alpha_up_min"`   // Lower bound for attack coefficient
	AlphaDownMax float32 `yaml:"alpha_down_max"` // Upper bound for release coefficient
	Hysteresis   uint16  `yaml:"hysteresis"`     // In output steps
	Use14Bit     bool    `yaml:"use_14bit"`
	Invert       bool    `yaml:"invert"`
	CalMargin    uint16  `yaml:"cal_margin"`   // ADC LSB
	CalMinSpan   uint16  `yaml:"cal_min_span"` // ADC LSB
}

// PedalConfig maps one analog input to a MIDI controller.
type PedalConfig struct {
	Name       string `yaml:"name"`
	ADCChannel uint8  `yaml:"adc_channel"`
	Channel    uint8  `yaml:"channel"`
	Controller uint8  `yaml:"controller"`
}

// RouterConfig contains event distribution queue sizing.
type RouterConfig struct {
	QueueSize      int           `yaml:"queue_size"`
	RouteQueueSize int           `yaml:"route_queue_size"`
	SubmitTimeout  time.Duration `yaml:"submit_timeout"` // 0 = non-blocking
}

// USBConfig contains USB encoder settings.
//
// PairAllControllers sends an LSB at controller+32 for every controller, not
// only 0-31. Sustain (CC64) then also emits CC96, which receivers treat as
// Data Increment; set it false for standard 14-bit pairing.
type USBConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Mode               string        `yaml:"mode"` // legacy, legacy14 or native
	PairAllControllers bool          `yaml:"pair_all_controllers"`
	Retries            int           `yaml:"retries"`
	RetryDelay         time.Duration `yaml:"retry_delay"`
}

// BLEConfig contains radio link settings.
type BLEConfig struct {
	Enabled          bool          `yaml:"enabled"`
	AdvertiseBackoff time.Duration `yaml:"advertise_backoff"`
	ConnectDelay     time.Duration `yaml:"connect_delay"` // Simulated link only
}

// UARTConfig contains serial MIDI output settings.
type UARTConfig struct {
	Port     string `yaml:"port"` // Empty disables the transport
	BaudRate int    `yaml:"baud_rate"`
}

// HostConfig contains desktop MIDI port settings for the host runner.
type HostConfig struct {
	OutPort string `yaml:"out_port"` // Empty disables the port
}

// SerialADCConfig contains settings for the serial acquisition front end.
type SerialADCConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// MockConfig contains simulated converter settings.
type MockConfig struct {
	PressPeriod time.Duration `yaml:"press_period"` // Full press/release cycle
	RestLevel   uint16        `yaml:"rest_level"`   // ADC level with pedal released
	PressLevel  uint16        `yaml:"press_level"`  // ADC level with pedal fully pressed
	NoiseLevel  uint16        `yaml:"noise_level"`  // Peak noise in ADC LSB
	Latency     time.Duration `yaml:"latency"`      // Conversion time
}

// StatsConfig contains heartbeat reporting settings.
type StatsConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Sampler: SamplerConfig{
			PollHz:      1000,
			ADCTimeout:  5 * time.Millisecond,
			LogInterval: 0,
		},
		Filter: FilterConfig{
			Alpha:        0.25,
			TauMs:        0,
			Asymmetric:   false,
			AlphaUpMin:   0.40,
			AlphaDownMax: 0.20,
			Hysteresis:   1,
			Use14Bit:     true,
			Invert:       false,
			CalMargin:    4,
			CalMinSpan:   32,
		},
		Pedals: []PedalConfig{
			{Name: "Sustain", ADCChannel: 7, Channel: 0, Controller: 64},
			{Name: "Sostenuto", ADCChannel: 0, Channel: 1, Controller: 66},
			{Name: "Soft", ADCChannel: 5, Channel: 2, Controller: 67},
		},
		Router: RouterConfig{
			QueueSize:      64,
			RouteQueueSize: 32,
			SubmitTimeout:  0,
		},
		USB: USBConfig{
			Enabled:            true,
			Mode:               "legacy14",
			PairAllControllers: true,
			Retries:            3,
			RetryDelay:         100 * time.Microsecond,
		},
		BLE: BLEConfig{
			Enabled:          true,
			AdvertiseBackoff: 100 * time.Millisecond,
			ConnectDelay:     2 * time.Second,
		},
		UART: UARTConfig{
			Port:     "",
			BaudRate: 31250,
		},
		SerialADC: SerialADCConfig{
			Port:     "",
			BaudRate: 115200,
		},
		Mock: MockConfig{
			PressPeriod: 4 * time.Second,
			RestLevel:   300,
			PressLevel:  3800,
			NoiseLevel:  3,
			Latency:     200 * time.Microsecond,
		},
		Stats: StatsConfig{
			Interval: time.Second,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Sampler.PollHz == 0 {
		c.Sampler.PollHz = def.Sampler.PollHz
	}
	if c.Sampler.ADCTimeout == 0 {
		c.Sampler.ADCTimeout = def.Sampler.ADCTimeout
	}

	if c.Filter.Alpha == 0 && c.Filter.TauMs == 0 {
		c.Filter.Alpha = def.Filter.Alpha
	}
	if c.Filter.AlphaUpMin == 0 {
		c.Filter.AlphaUpMin = def.Filter.AlphaUpMin
	}
	if c.Filter.AlphaDownMax == 0 {
		c.Filter.AlphaDownMax = def.Filter.AlphaDownMax
	}
	if c.Filter.CalMinSpan == 0 {
		c.Filter.CalMinSpan = def.Filter.CalMinSpan
	}

	if len(c.Pedals) == 0 {
		c.Pedals = def.Pedals
	}

	if c.Router.QueueSize == 0 {
		c.Router.QueueSize = def.Router.QueueSize
	}
	if c.Router.RouteQueueSize == 0 {
		c.Router.RouteQueueSize = def.Router.RouteQueueSize
	}

	if c.USB.Mode == "" {
		c.USB.Mode = def.USB.Mode
	}
	if c.USB.Retries == 0 {
		c.USB.Retries = def.USB.Retries
	}
	if c.USB.RetryDelay == 0 {
		c.USB.RetryDelay = def.USB.RetryDelay
	}

	if c.BLE.AdvertiseBackoff == 0 {
		c.BLE.AdvertiseBackoff = def.BLE.AdvertiseBackoff
	}

	if c.UART.BaudRate == 0 {
		c.UART.BaudRate = def.UART.BaudRate
	}
	if c.SerialADC.BaudRate == 0 {
		c.SerialADC.BaudRate = def.SerialADC.BaudRate
	}

	if c.Mock.PressPeriod == 0 {
		c.Mock.PressPeriod = def.Mock.PressPeriod
	}
	if c.Mock.PressLevel == 0 {
		c.Mock.PressLevel = def.Mock.PressLevel
	}

	if c.Stats.Interval == 0 {
		c.Stats.Interval = def.Stats.Interval
	}
}

// Validate reports configuration errors that must abort startup.
func (c *Config) Validate() error {
	var errs []error

	if c.Sampler.PollHz <= 0 {
		errs = append(errs, fmt.Errorf("sampler.poll_hz must be positive, got %d", c.Sampler.PollHz))
	}
	if c.Sampler.ADCTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sampler.adc_timeout must be positive, got %s", c.Sampler.ADCTimeout))
	}

	if c.Filter.TauMs < 0 {
		errs = append(errs, fmt.Errorf("filter.tau_ms must not be negative, got %g", c.Filter.TauMs))
	}
	if c.Filter.Alpha < 0 || c.Filter.Alpha > 1 {
		errs = append(errs, fmt.Errorf("filter.alpha must be within [0, 1], got %g", c.Filter.Alpha))
	}
	if c.Filter.CalMinSpan == 0 || c.Filter.CalMinSpan > ADCMax {
		errs = append(errs, fmt.Errorf("filter.cal_min_span must be within [1, %d], got %d", ADCMax, c.Filter.CalMinSpan))
	}

	if len(c.Pedals) == 0 {
		errs = append(errs, errors.New("at least one pedal must be configured"))
	}
	seen := make(map[uint8]string, len(c.Pedals))
	for i, p := range c.Pedals {
		if p.Channel > 15 {
			errs = append(errs, fmt.Errorf("pedal %d (%s): channel %d out of range 0-15", i, p.Name, p.Channel))
		}
		if p.Controller > 127 {
			errs = append(errs, fmt.Errorf("pedal %d (%s): controller %d out of range 0-127", i, p.Name, p.Controller))
		}
		if other, ok := seen[p.ADCChannel]; ok {
			errs = append(errs, fmt.Errorf("pedal %d (%s): adc channel %d already used by %s", i, p.Name, p.ADCChannel, other))
		}
		seen[p.ADCChannel] = p.Name
	}

	if c.Router.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("router.queue_size must be positive, got %d", c.Router.QueueSize))
	}
	if c.Router.RouteQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("router.route_queue_size must be positive, got %d", c.Router.RouteQueueSize))
	}

	switch c.USB.Mode {
	case "legacy", "legacy14", "native":
	default:
		errs = append(errs, fmt.Errorf("usb.mode must be legacy, legacy14 or native, got %q", c.USB.Mode))
	}
	if c.USB.Retries <= 0 {
		errs = append(errs, fmt.Errorf("usb.retries must be positive, got %d", c.USB.Retries))
	}

	return errors.Join(errs...)
}

// ADCChannels returns the converter channel of every pedal in configuration order.
func (c *Config) ADCChannels() []uint8 {
	ids := make([]uint8, len(c.Pedals))
	for i, p := range c.Pedals {
		ids[i] = p.ADCChannel
	}
	return ids
}
