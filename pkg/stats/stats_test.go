package stats

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHighWater_Observe(t *testing.T) {
	var h HighWater
	h.Observe(3)
	h.Observe(1)
	h.Observe(7)
	h.Observe(5)
	assert.Equal(t, uint32(7), h.Load())
}

func TestHighWater_Concurrent(t *testing.T) {
	var h HighWater
	var wg sync.WaitGroup
	for i := 1; i <= 64; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h.Observe(n)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, uint32(64), h.Load())
}

func TestCollector_RouteIsShared(t *testing.T) {
	c := New()
	a := c.Route("usb")
	b := c.Route("usb")
	assert.Same(t, a, b)
	assert.Equal(t, "usb", a.Name())
	assert.NotSame(t, a, c.Route("ble"))
}

func TestCollector_Snapshot(t *testing.T) {
	c := New()
	usb := c.Route("usb")
	usb.Sent.Add(10)
	usb.Dropped.Add(2)
	usb.FailStreak.Store(1)
	usb.HighWater.Observe(5)
	c.Events.Add(12)
	c.Enqueued.Add(11)
	c.Dropped.Add(1)
	c.HighWater.Observe(4)
	c.Sampler.Cycles.Add(100)
	c.Sampler.Timeouts.Add(3)

	s := c.Snapshot()
	assert.NotEmpty(t, s.Session)
	assert.Equal(t, uint64(12), s.Events)
	assert.Equal(t, uint64(11), s.Router.Enqueued)
	assert.Equal(t, uint64(1), s.Router.Dropped)
	assert.Equal(t, uint32(4), s.Router.HighWater)
	assert.Equal(t, uint64(100), s.Sampler.Cycles)
	assert.Equal(t, uint64(3), s.Sampler.Timeouts)

	r, ok := s.Route("usb")
	require.True(t, ok)
	assert.Equal(t, RouteStats{Name: "usb", Sent: 10, Dropped: 2, FailStreak: 1, HighWater: 5}, r)

	_, ok = s.Route("uart")
	assert.False(t, ok)
}

func TestCollector_ResetKeepsHighWater(t *testing.T) {
	c := New()
	r := c.Route("ble")
	r.Sent.Add(3)
	r.HighWater.Observe(9)
	c.Events.Add(3)
	c.HighWater.Observe(6)
	before := c.Snapshot().Session

	c.Reset()

	s := c.Snapshot()
	assert.NotEqual(t, before, s.Session)
	assert.Zero(t, s.Events)
	rs, ok := s.Route("ble")
	require.True(t, ok)
	assert.Zero(t, rs.Sent)
	assert.Equal(t, uint32(9), rs.HighWater)
	assert.Equal(t, uint32(6), s.Router.HighWater)
}

func TestSnapshot_LogValue(t *testing.T) {
	c := New()
	c.Route("usb").Sent.Add(1)
	v := c.Snapshot().LogValue()
	assert.Equal(t, slog.KindGroup, v.Kind())
	attrs := v.Group()
	assert.Equal(t, "usb", attrs[len(attrs)-1].Key)
}
