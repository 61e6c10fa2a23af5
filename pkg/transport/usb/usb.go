// Package usb encodes controller events for the USB MIDI device port.
package usb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/itohio/gomidal/pkg/config"
	"github.com/itohio/gomidal/pkg/midi"
	"github.com/itohio/gomidal/pkg/stats"
	"github.com/itohio/gomidal/pkg/transport"
)

// Name is the router destination name of the USB transport.
const Name = "usb"

// Link sends one packet over the device port.
type Link interface {
	Send(p midi.Packet) error
}

// Mode selects the wire encoding.
type Mode int

const (
	// ModeLegacy sends one 7-bit CC per event.
	ModeLegacy Mode = iota
	// ModeLegacy14 sends an MSB CC followed by its LSB companion.
	ModeLegacy14
	// ModeNative sends a MIDI 2.0 control change with a 32-bit value.
	ModeNative
)

func (m Mode) String() string {
	switch m {
	case ModeLegacy:
		return "legacy"
	case ModeLegacy14:
		return "legacy14"
	case ModeNative:
		return "native"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a mode name as used in the configuration.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "legacy":
		return ModeLegacy, nil
	case "", "legacy14":
		return ModeLegacy14, nil
	case "native":
		return ModeNative, nil
	default:
		return 0, fmt.Errorf("usb: unknown mode %q", s)
	}
}

// Encoder converts events into packets and sends them with bounded retry.
// Transmission is gated on the enumeration flag set by NotifyReady.
type Encoder struct {
	link       Link
	mode       Mode
	enc        midi.Encoding
	group      uint8
	retries    int
	retryDelay time.Duration
	route      *stats.Route
	log        *slog.Logger

	ready atomic.Bool
}

// New creates an encoder. Event resolution comes from the filter section of
// cfg; the failure streak is kept on the collector's "usb" route.
func New(link Link, cfg *config.Config, col *stats.Collector, log *slog.Logger) (*Encoder, error) {
	if link == nil {
		return nil, errors.New("usb: no link")
	}
	mode, err := ParseMode(cfg.USB.Mode)
	if err != nil {
		return nil, err
	}
	if col == nil {
		col = stats.New()
	}
	if log == nil {
		log = slog.Default()
	}

	retries := cfg.USB.Retries
	if retries < 1 {
		retries = 1
	}

	return &Encoder{
		link: link,
		mode: mode,
		enc: midi.Encoding{
			HighRes: cfg.Filter.Use14Bit,
			Split:   mode == ModeLegacy14,
			PairAll: cfg.USB.PairAllControllers,
		},
		retries:    retries,
		retryDelay: cfg.USB.RetryDelay,
		route:      col.Route(Name),
		log:        log.With("component", "usb", "mode", mode.String()),
	}, nil
}

// NotifyReady is called by the device driver when the port is enumerated
// or detached.
func (e *Encoder) NotifyReady(ready bool) {
	if e.ready.Swap(ready) != ready {
		e.log.Info("link state changed", "ready", ready)
	}
}

// Ready reports whether the port is enumerated.
func (e *Encoder) Ready() bool {
	return e.ready.Load()
}

// Mode returns the wire encoding in use.
func (e *Encoder) Mode() Mode {
	return e.mode
}

// Tx sends ev. While the port is not enumerated, and for events other than
// control changes, nothing is sent and transport.ErrDiscarded is returned.
func (e *Encoder) Tx(ctx context.Context, ev midi.Event) error {
	if !e.ready.Load() {
		return transport.ErrDiscarded
	}
	if ev.Kind != midi.KindCC {
		return transport.ErrDiscarded
	}

	if e.mode == ModeNative {
		return e.send(ctx, midi.MIDI2CC(e.group, ev.Channel, ev.Controller, midi.WideValue(ev.Value, e.enc.HighRes)))
	}

	var buf [2]midi.Message
	for _, msg := range e.enc.Encode(buf[:0], ev) {
		var ch, cc, val uint8
		if !msg.GetControlChange(&ch, &cc, &val) {
			continue
		}
		if err := e.send(ctx, midi.MIDI1CC(e.group, ch, cc, val)); err != nil {
			return err
		}
	}
	return nil
}

// send writes p, retrying while the link reports a full buffer.
func (e *Encoder) send(ctx context.Context, p midi.Packet) error {
	var err error
	for attempt := 1; attempt <= e.retries; attempt++ {
		err = e.link.Send(p)
		if err == nil {
			e.route.FailStreak.Store(0)
			return nil
		}
		if !errors.Is(err, transport.ErrBufferFull) {
			e.route.FailStreak.Add(1)
			return fmt.Errorf("usb: send: %w", err)
		}
		if attempt < e.retries {
			if werr := spin(ctx, e.retryDelay); werr != nil {
				e.route.FailStreak.Add(1)
				return werr
			}
		}
	}

	e.route.FailStreak.Add(1)
	return fmt.Errorf("usb: send failed after %d attempts: %w: %w", e.retries, transport.ErrTransient, err)
}

// spin busy-waits for d or until ctx is done.
func spin(ctx context.Context, d time.Duration) error {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		runtime.Gosched()
	}
	return nil
}
