package ble

import (
	"log/slog"
	"sync"
	"time"

	"github.com/itohio/gomidal/pkg/midi"
)

var _ Link = (*Mock)(nil)

// Mock simulates a radio stack: a central connects and subscribes a fixed
// delay after advertising starts.
type Mock struct {
	delay  time.Duration
	notify func(State)
	log    *slog.Logger

	mu          sync.Mutex
	advertising bool
	connected   bool
	timer       *time.Timer
	sent        int
	last        midi.Message
}

// NewMock creates a simulated link. State changes are reported to notify,
// normally Encoder.Notify.
func NewMock(connectDelay time.Duration, notify func(State), log *slog.Logger) *Mock {
	if log == nil {
		log = slog.Default()
	}
	return &Mock{
		delay:  connectDelay,
		notify: notify,
		log:    log.With("component", "ble-mock"),
	}
}

// StartAdvertising schedules a simulated connection.
func (m *Mock) StartAdvertising() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.advertising {
		return ErrAlreadyAdvertising
	}
	m.advertising = true
	m.timer = time.AfterFunc(m.delay, m.connect)
	return nil
}

func (m *Mock) connect() {
	m.mu.Lock()
	if !m.advertising {
		m.mu.Unlock()
		return
	}
	m.advertising = false
	m.connected = true
	m.mu.Unlock()

	m.log.Info("central connected")
	if m.notify != nil {
		m.notify(StateReady)
	}
}

// Disconnect simulates the central going away.
func (m *Mock) Disconnect() {
	m.mu.Lock()
	was := m.connected
	m.connected = false
	m.mu.Unlock()

	if was && m.notify != nil {
		m.log.Info("central disconnected")
		m.notify(StateNotConnected)
	}
}

// Send records msg while a central is connected.
func (m *Mock) Send(msg midi.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	m.sent++
	m.last = msg
	m.log.Debug("notify", "msg", msg.String())
	return nil
}

// Sent returns the number of messages delivered and the last one.
func (m *Mock) Sent() (int, midi.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent, m.last
}

// Close stops a pending simulated connection.
func (m *Mock) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.advertising = false
}
