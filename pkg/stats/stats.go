// Package stats aggregates pipeline counters. All hot-path updates are
// atomic; the route table is only grown during startup.
package stats

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// HighWater tracks the maximum observed queue occupancy.
type HighWater struct {
	v atomic.Uint32
}

// Observe records n if it exceeds the current mark.
func (h *HighWater) Observe(n int) {
	u := uint32(n)
	for {
		cur := h.v.Load()
		if u <= cur {
			return
		}
		if h.v.CompareAndSwap(cur, u) {
			return
		}
	}
}

// Load returns the current mark.
func (h *HighWater) Load() uint32 {
	return h.v.Load()
}

// Route holds the counters of one destination.
type Route struct {
	name       string
	Sent       atomic.Uint64
	Dropped    atomic.Uint64
	FailStreak atomic.Uint32
	HighWater  HighWater
}

// Name returns the destination name.
func (r *Route) Name() string {
	return r.name
}

// Sampler holds acquisition cycle counters.
type Sampler struct {
	Cycles   atomic.Uint64
	Busy     atomic.Uint64
	Timeouts atomic.Uint64
	Errors   atomic.Uint64
}

// Collector is the single observability sink of the pipeline.
type Collector struct {
	mu      sync.Mutex
	session uuid.UUID
	routes  []*Route

	Events     atomic.Uint64 // Events emitted by the filter stage
	Enqueued   atomic.Uint64 // Accepted by the ingress queue
	Dispatched atomic.Uint64 // Taken off the ingress queue
	Dropped    atomic.Uint64 // Ingress overflow and transmit failures
	HighWater  HighWater     // Ingress queue
	Sampler    Sampler
}

// New creates a collector with a fresh session id.
func New() *Collector {
	return &Collector{session: uuid.New()}
}

// Route returns the counters for name, creating them on first use.
func (c *Collector) Route(name string) *Route {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range c.routes {
		if r.name == name {
			return r
		}
	}
	r := &Route{name: name}
	c.routes = append(c.routes, r)
	return r
}

// RouteStats is a snapshot of one destination.
type RouteStats struct {
	Name       string `json:"name" yaml:"name"`
	Sent       uint64 `json:"sent" yaml:"sent"`
	Dropped    uint64 `json:"dropped" yaml:"dropped"`
	FailStreak uint32 `json:"fail_streak" yaml:"fail_streak"`
	HighWater  uint32 `json:"queue_high_water" yaml:"queue_high_water"`
}

// RouterStats is a snapshot of the event distribution stage.
type RouterStats struct {
	Enqueued   uint64       `json:"total_enqueued" yaml:"total_enqueued"`
	Dispatched uint64       `json:"total_dispatched" yaml:"total_dispatched"`
	Dropped    uint64       `json:"total_dropped" yaml:"total_dropped"`
	HighWater  uint32       `json:"queue_high_water" yaml:"queue_high_water"`
	Routes     []RouteStats `json:"routes" yaml:"routes"`
}

// SamplerStats is a snapshot of the acquisition loop.
type SamplerStats struct {
	Cycles   uint64 `json:"cycles" yaml:"cycles"`
	Busy     uint64 `json:"busy" yaml:"busy"`
	Timeouts uint64 `json:"timeouts" yaml:"timeouts"`
	Errors   uint64 `json:"errors" yaml:"errors"`
}

// Snapshot is a read-only copy of every counter.
type Snapshot struct {
	Session string       `json:"session" yaml:"session"`
	Events  uint64       `json:"total_events" yaml:"total_events"`
	Router  RouterStats  `json:"router" yaml:"router"`
	Sampler SamplerStats `json:"sampler" yaml:"sampler"`
}

// Route returns the stats of the named destination.
func (s Snapshot) Route(name string) (RouteStats, bool) {
	for _, r := range s.Router.Routes {
		if r.Name == name {
			return r, true
		}
	}
	return RouteStats{}, false
}

// Snapshot copies the current counter values. Individual counters are
// consistent; the set as a whole is not taken atomically.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	session := c.session
	routes := make([]*Route, len(c.routes))
	copy(routes, c.routes)
	c.mu.Unlock()

	s := Snapshot{
		Session: session.String(),
		Events:  c.Events.Load(),
		Router: RouterStats{
			Enqueued:   c.Enqueued.Load(),
			Dispatched: c.Dispatched.Load(),
			Dropped:    c.Dropped.Load(),
			HighWater:  c.HighWater.Load(),
			Routes:     make([]RouteStats, 0, len(routes)),
		},
		Sampler: SamplerStats{
			Cycles:   c.Sampler.Cycles.Load(),
			Busy:     c.Sampler.Busy.Load(),
			Timeouts: c.Sampler.Timeouts.Load(),
			Errors:   c.Sampler.Errors.Load(),
		},
	}
	for _, r := range routes {
		s.Router.Routes = append(s.Router.Routes, RouteStats{
			Name:       r.name,
			Sent:       r.Sent.Load(),
			Dropped:    r.Dropped.Load(),
			FailStreak: r.FailStreak.Load(),
			HighWater:  r.HighWater.Load(),
		})
	}
	return s
}

// Reset zeroes the cumulative counters and starts a new session. High-water
// marks are kept; they are only cleared by creating a new collector.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = uuid.New()
	c.Events.Store(0)
	c.Enqueued.Store(0)
	c.Dispatched.Store(0)
	c.Dropped.Store(0)
	c.Sampler.Cycles.Store(0)
	c.Sampler.Busy.Store(0)
	c.Sampler.Timeouts.Store(0)
	c.Sampler.Errors.Store(0)
	for _, r := range c.routes {
		r.Sent.Store(0)
		r.Dropped.Store(0)
		r.FailStreak.Store(0)
	}
}

// LogValue renders the snapshot as a compact heartbeat record.
func (s Snapshot) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("session", s.Session),
		slog.Uint64("events", s.Events),
		slog.Uint64("enqueued", s.Router.Enqueued),
		slog.Uint64("dropped", s.Router.Dropped),
		slog.Uint64("q_hw", uint64(s.Router.HighWater)),
		slog.Uint64("cycles", s.Sampler.Cycles),
		slog.Uint64("timeouts", s.Sampler.Timeouts),
	}
	for _, r := range s.Router.Routes {
		attrs = append(attrs, slog.Group(r.Name,
			slog.Uint64("sent", r.Sent),
			slog.Uint64("dropped", r.Dropped),
			slog.Uint64("q_hw", uint64(r.HighWater)),
		))
	}
	return slog.GroupValue(attrs...)
}
