// Package sampler runs the periodic acquisition loop: it triggers a
// conversion of every pedal channel, waits for it with a timeout, feeds the
// readings through the filter and publishes changed values as controller
// events.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/itohio/gomidal/pkg/adc"
	"github.com/itohio/gomidal/pkg/config"
	"github.com/itohio/gomidal/pkg/filter"
	"github.com/itohio/gomidal/pkg/midi"
	"github.com/itohio/gomidal/pkg/stats"
)

// Publisher accepts controller events. It must not block.
type Publisher interface {
	Publish(ev midi.Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ev midi.Event)

// Publish calls f(ev).
func (f PublisherFunc) Publish(ev midi.Event) { f(ev) }

// Sampler owns the filter state; nothing else may call the filter while Run
// is active.
type Sampler struct {
	cfg    config.SamplerConfig
	pedals []config.PedalConfig
	conv   adc.Converter
	filter *filter.Filter
	pub    Publisher
	col    *stats.Collector
	log    *slog.Logger

	period  time.Duration
	offsets []int
	slots   [2][]int16
	slot    int
	done    chan error
	resets  chan int
	outputs []uint16
	start   time.Time
	lastLog time.Time
}

// New creates a sampler. The converter must scan exactly the configured pedal
// channels, in pedal order, each channel once.
func New(cfg *config.Config, conv adc.Converter, f *filter.Filter, pub Publisher, col *stats.Collector, log *slog.Logger) (*Sampler, error) {
	if conv == nil || f == nil || pub == nil {
		return nil, errors.New("sampler: converter, filter and publisher are required")
	}
	if cfg.Sampler.PollHz <= 0 {
		return nil, fmt.Errorf("sampler: invalid poll rate %d Hz", cfg.Sampler.PollHz)
	}

	ids := conv.Channels()
	if len(ids) != len(cfg.Pedals) {
		return nil, fmt.Errorf("sampler: converter scans %d channels, %d pedals configured", len(ids), len(cfg.Pedals))
	}
	if f.Channels() != len(cfg.Pedals) {
		return nil, fmt.Errorf("sampler: filter handles %d channels, %d pedals configured", f.Channels(), len(cfg.Pedals))
	}
	for i, p := range cfg.Pedals {
		if ids[i] != p.ADCChannel {
			return nil, fmt.Errorf("sampler: pedal %d (%s) is on channel %d, converter slot %d scans channel %d", i, p.Name, p.ADCChannel, i, ids[i])
		}
	}
	offsets, err := adc.NewChannelMap(ids)
	if err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}

	if col == nil {
		col = stats.New()
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Sampler{
		cfg:     cfg.Sampler,
		pedals:  append([]config.PedalConfig(nil), cfg.Pedals...),
		conv:    conv,
		filter:  f,
		pub:     pub,
		col:     col,
		log:     log.With("component", "sampler"),
		period:  time.Second / time.Duration(cfg.Sampler.PollHz),
		offsets: offsets,
		done:    make(chan error, 1),
		resets:  make(chan int, adc.MaxChannels),
		outputs: make([]uint16, len(ids)),
		start:   time.Now(),
	}
	for i := range s.slots {
		s.slots[i] = make([]int16, len(ids))
	}
	return s, nil
}

// Run samples at the configured rate until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	s.log.Info("sampler started", "poll_hz", s.cfg.PollHz, "channels", len(s.offsets), "timeout", s.cfg.ADCTimeout)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sampler stopped")
			return nil
		case id := <-s.resets:
			s.filter.ResetCalibration(id)
			s.log.Info("calibration reset", "pedal", s.pedals[id].Name)
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// ResetCalibration asks the loop to forget the calibration of pedal id.
func (s *Sampler) ResetCalibration(id int) error {
	if id < 0 || id >= len(s.pedals) {
		return fmt.Errorf("sampler: no pedal %d", id)
	}
	select {
	case s.resets <- id:
		return nil
	default:
		return errors.New("sampler: too many pending calibration resets")
	}
}

// cycle performs one acquisition. Failures skip the cycle.
func (s *Sampler) cycle(ctx context.Context) error {
	s.col.Sampler.Cycles.Add(1)

	buf := s.slots[s.slot]
	s.slot ^= 1

	// A completion from an aborted conversion may still be pending.
	select {
	case <-s.done:
	default:
	}

	if err := s.conv.ReadAsync(buf, s.done); err != nil {
		if errors.Is(err, adc.ErrBusy) {
			s.col.Sampler.Busy.Add(1)
			s.log.Warn("conversion busy, cycle skipped")
		} else {
			s.col.Sampler.Errors.Add(1)
			s.log.Error("failed to start conversion", "err", err)
		}
		return err
	}

	timeout := s.cfg.ADCTimeout
	if timeout <= 0 {
		timeout = s.period
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-s.done:
		if err != nil {
			s.col.Sampler.Errors.Add(1)
			s.log.Error("conversion failed", "err", err)
			return err
		}
	case <-timer.C:
		s.conv.Abort()
		s.col.Sampler.Timeouts.Add(1)
		s.log.Warn("conversion timed out, cycle skipped", "timeout", timeout)
		return adc.ErrTimeout
	case <-ctx.Done():
		s.conv.Abort()
		return ctx.Err()
	}

	now := time.Now()
	sample := adc.RawSample{
		Timestamp: uint32(now.Sub(s.start).Microseconds()),
		N:         len(s.offsets),
	}
	for i, off := range s.offsets {
		sample.Values[i] = buf[off]
	}
	s.process(&sample)
	s.logPedals(&sample, now)
	return nil
}

// process filters a sample in logical pedal order and publishes every
// changed output.
func (s *Sampler) process(sample *adc.RawSample) {
	for i := 0; i < sample.N; i++ {
		v, changed := s.filter.Apply(i, int32(sample.Values[i]))
		s.outputs[i] = v
		if !changed {
			continue
		}
		p := s.pedals[i]
		s.pub.Publish(midi.CC(p.Channel, p.Controller, v, sample.Timestamp))
		s.col.Events.Add(1)
	}
}

func (s *Sampler) logPedals(sample *adc.RawSample, now time.Time) {
	if s.cfg.LogInterval <= 0 || now.Sub(s.lastLog) < s.cfg.LogInterval {
		return
	}
	s.lastLog = now

	for i := 0; i < sample.N; i++ {
		cal := s.filter.Calibration(i)
		s.log.Info("pedal",
			"name", s.pedals[i].Name,
			"raw", sample.Values[i],
			"out", s.outputs[i],
			"min", cal.Min,
			"max", cal.Max,
		)
	}
}
