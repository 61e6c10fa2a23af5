// Package ble encodes controller events for the radio MIDI link and drives
// its connection state machine.
package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/itohio/gomidal/pkg/config"
	"github.com/itohio/gomidal/pkg/midi"
	"github.com/itohio/gomidal/pkg/transport"
)

// Name is the router destination name of the radio transport.
const Name = "ble"

var (
	// ErrNoResources is returned by StartAdvertising when the advertising
	// set is momentarily unavailable.
	ErrNoResources = errors.New("ble: no advertising resources")
	// ErrAlreadyAdvertising is returned by StartAdvertising when advertising
	// is already running.
	ErrAlreadyAdvertising = errors.New("ble: already advertising")
	// ErrNotConnected is returned by links with no subscribed peer.
	ErrNotConnected = errors.New("ble: not connected")
)

// State is the connection state of the link.
type State int32

const (
	StateNotConnected State = iota
	StateAdvertising
	StateReady // Connected and notifications subscribed
)

func (s State) String() string {
	switch s {
	case StateNotConnected:
		return "not-connected"
	case StateAdvertising:
		return "advertising"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Link is the radio stack boundary.
type Link interface {
	// Send notifies one MIDI message to the subscribed peer.
	Send(msg midi.Message) error
	// StartAdvertising makes the device connectable.
	StartAdvertising() error
}

const notifyQueueSize = 4

// Encoder gates transmission on the link state and encodes events as 7-bit
// or MSB/LSB control change pairs.
type Encoder struct {
	link    Link
	enc     midi.Encoding
	backoff time.Duration
	log     *slog.Logger

	state   atomic.Int32
	notify  chan State
	running atomic.Bool
}

// New creates a radio encoder. Event resolution comes from the filter
// section of cfg.
func New(link Link, cfg *config.Config, log *slog.Logger) (*Encoder, error) {
	if link == nil {
		return nil, errors.New("ble: no link")
	}
	if log == nil {
		log = slog.Default()
	}
	backoff := cfg.BLE.AdvertiseBackoff
	if backoff <= 0 {
		backoff = config.Default().BLE.AdvertiseBackoff
	}

	return &Encoder{
		link:    link,
		enc:     midi.Encoding{HighRes: cfg.Filter.Use14Bit, Split: true},
		backoff: backoff,
		log:     log.With("component", "ble"),
		notify:  make(chan State, notifyQueueSize),
	}, nil
}

// State returns the current link state.
func (e *Encoder) State() State {
	return State(e.state.Load())
}

// Notify delivers a connection state change from the radio stack. It never
// blocks; when the queue is full the oldest pending notification is
// discarded.
func (e *Encoder) Notify(s State) {
	for {
		select {
		case e.notify <- s:
			return
		default:
		}
		select {
		case <-e.notify:
		default:
		}
	}
}

// Run drives the state machine until ctx is cancelled. Advertising starts
// immediately.
func (e *Encoder) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("ble: already running")
	}
	defer e.running.Store(false)

	retry := time.NewTimer(time.Hour)
	retry.Stop()
	defer retry.Stop()

	e.enter(StateNotConnected, retry)

	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-e.notify:
			e.enter(s, retry)
		case <-retry.C:
			if e.State() == StateNotConnected {
				e.advertise(retry)
			}
		}
	}
}

func (e *Encoder) enter(s State, retry *time.Timer) {
	prev := State(e.state.Swap(int32(s)))
	if prev != s {
		e.log.Info("link state changed", "from", prev.String(), "to", s.String())
	}
	if s == StateNotConnected {
		e.advertise(retry)
	}
}

// advertise (re)starts advertising, scheduling a retry if the stack is out
// of resources.
func (e *Encoder) advertise(retry *time.Timer) {
	err := e.link.StartAdvertising()
	switch {
	case err == nil, errors.Is(err, ErrAlreadyAdvertising):
		e.state.CompareAndSwap(int32(StateNotConnected), int32(StateAdvertising))
	case errors.Is(err, ErrNoResources):
		e.log.Debug("advertising busy, retrying", "backoff", e.backoff)
		retry.Reset(e.backoff)
	default:
		e.log.Error("failed to start advertising", "err", err)
	}
}

// Tx sends ev. While the link is not ready it returns transport.ErrNotReady.
func (e *Encoder) Tx(ctx context.Context, ev midi.Event) error {
	if e.State() != StateReady {
		return transport.ErrNotReady
	}
	if ev.Kind != midi.KindCC {
		return transport.ErrDiscarded
	}

	var buf [2]midi.Message
	for _, msg := range e.enc.Encode(buf[:0], ev) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.link.Send(msg); err != nil {
			return fmt.Errorf("ble: send %s: %w", msg, err)
		}
	}
	return nil
}
