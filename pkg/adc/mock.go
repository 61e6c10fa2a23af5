package adc

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/itohio/gomidal/pkg/config"
)

var _ Converter = (*Mock)(nil)

// Mock simulates pedals being pressed and released periodically. Each pedal
// is phase shifted so they do not move in lockstep.
type Mock struct {
	cfg     config.MockConfig
	ids     []uint8
	offsets []int

	mu      sync.Mutex
	rng     *rand.Rand
	start   time.Time
	busy    bool
	aborted chan struct{}
}

// NewMock creates a simulated converter scanning ids.
func NewMock(cfg *config.MockConfig, ids []uint8) (*Mock, error) {
	if cfg == nil {
		cfg = &config.Default().Mock
	}
	offsets, err := NewChannelMap(ids)
	if err != nil {
		return nil, err
	}

	c := make([]uint8, len(ids))
	copy(c, ids)

	return &Mock{
		cfg:     *cfg,
		ids:     c,
		offsets: offsets,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		start:   time.Now(),
	}, nil
}

// Channels returns the scanned channel identifiers.
func (m *Mock) Channels() []uint8 {
	out := make([]uint8, len(m.ids))
	copy(out, m.ids)
	return out
}

// Read blocks for the configured latency and fills buf.
func (m *Mock) Read(buf []int16) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	m.mu.Unlock()

	time.Sleep(m.cfg.Latency)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fill(buf, time.Now())
	return nil
}

// ReadAsync starts a simulated conversion.
func (m *Mock) ReadAsync(buf []int16, done chan<- error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy {
		return ErrBusy
	}
	m.busy = true
	aborted := make(chan struct{})
	m.aborted = aborted

	go func() {
		timer := time.NewTimer(m.cfg.Latency)
		defer timer.Stop()

		select {
		case <-aborted:
			return
		case now := <-timer.C:
			m.mu.Lock()
			if m.aborted != aborted {
				m.mu.Unlock()
				return
			}
			m.fill(buf, now)
			m.busy = false
			m.aborted = nil
			m.mu.Unlock()

			select {
			case done <- nil:
			default:
			}
		}
	}()

	return nil
}

// Abort cancels the in-flight conversion.
func (m *Mock) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.aborted != nil {
		close(m.aborted)
		m.aborted = nil
	}
	m.busy = false
}

// fill writes one reading per channel into its converter slot.
func (m *Mock) fill(buf []int16, now time.Time) {
	elapsed := now.Sub(m.start).Seconds()
	period := m.cfg.PressPeriod.Seconds()
	if period <= 0 {
		period = 1
	}
	rest := float64(m.cfg.RestLevel)
	span := float64(m.cfg.PressLevel) - rest

	for i, off := range m.offsets {
		if off >= len(buf) {
			continue
		}
		phase := elapsed/period + float64(i)/float64(len(m.offsets))
		pos := 0.5 - 0.5*math.Cos(2*math.Pi*phase)
		v := rest + span*pos
		if n := int(m.cfg.NoiseLevel); n > 0 {
			v += float64(m.rng.Intn(2*n+1) - n)
		}
		buf[off] = int16(math.Round(v))
	}
}
