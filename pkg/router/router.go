// Package router distributes controller events from the sampler to every
// registered transport.
//
// Events enter through a single bounded ingress queue. A dispatch goroutine
// copies each event, in order, into the bounded queue of every destination;
// one worker per destination drains its queue. A slow or failing transport
// only ever loses its own events.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/itohio/gomidal/pkg/config"
	"github.com/itohio/gomidal/pkg/midi"
	"github.com/itohio/gomidal/pkg/stats"
)

// MaxRoutes is the capacity of the destination registry.
const MaxRoutes = 4

var (
	// ErrNoSlots is returned when the registry is full.
	ErrNoSlots = errors.New("router: no free destination slots")
	// ErrStarted is returned by operations only valid before Start.
	ErrStarted = errors.New("router: already started")
	// ErrQueueFull is returned when the ingress queue rejects an event.
	ErrQueueFull = errors.New("router: ingress queue full")
)

// Router owns the ingress queue and the destination registry.
type Router struct {
	cfg config.RouterConfig
	col *stats.Collector
	log *slog.Logger

	ingress chan midi.Event

	mu      sync.Mutex
	routes  [MaxRoutes]*Destination
	n       int
	started bool
	wg      sync.WaitGroup
}

// New creates a router. Queue sizes come from cfg; missing values fall back
// to the defaults.
func New(cfg config.RouterConfig, col *stats.Collector, log *slog.Logger) *Router {
	def := config.Default().Router
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.RouteQueueSize <= 0 {
		cfg.RouteQueueSize = def.RouteQueueSize
	}
	if col == nil {
		col = stats.New()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		cfg:     cfg,
		col:     col,
		log:     log.With("component", "router"),
		ingress: make(chan midi.Event, cfg.QueueSize),
	}
}

// Register adds a destination. Destinations must be registered before Start.
func (r *Router) Register(name string, tx TxFunc) (*Destination, error) {
	if tx == nil {
		return nil, fmt.Errorf("router: destination %q has no transmit function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil, fmt.Errorf("register %q: %w", name, ErrStarted)
	}
	if r.n >= MaxRoutes {
		return nil, fmt.Errorf("register %q: %w", name, ErrNoSlots)
	}
	for _, d := range r.routes[:r.n] {
		if d.name == name {
			return nil, fmt.Errorf("router: destination %q already registered", name)
		}
	}

	d := newDestination(name, tx, r.cfg.RouteQueueSize, r.col, r.log)
	r.routes[r.n] = d
	r.n++

	r.log.Info("destination registered", "route", name, "queue", r.cfg.RouteQueueSize)
	return d, nil
}

// Submit enqueues ev for distribution. It waits at most the configured
// submit timeout; with no timeout it never blocks. A rejected event is
// counted as dropped and ErrQueueFull is returned.
func (r *Router) Submit(ev midi.Event) error {
	select {
	case r.ingress <- ev:
		r.accepted()
		return nil
	default:
	}

	if r.cfg.SubmitTimeout > 0 {
		timer := time.NewTimer(r.cfg.SubmitTimeout)
		defer timer.Stop()
		select {
		case r.ingress <- ev:
			r.accepted()
			return nil
		case <-timer.C:
		}
	}

	r.col.Dropped.Add(1)
	r.log.Debug("ingress full, event dropped", "event", ev)
	return ErrQueueFull
}

// Publish is Submit without the error, for producers that rely on the drop
// counters.
func (r *Router) Publish(ev midi.Event) {
	_ = r.Submit(ev)
}

func (r *Router) accepted() {
	r.col.Enqueued.Add(1)
	r.col.HighWater.Observe(len(r.ingress))
}

// Start launches the dispatch goroutine and one worker per destination. They
// run until ctx is cancelled; use Wait to block until they have exited.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrStarted
	}
	r.started = true

	for _, d := range r.routes[:r.n] {
		r.wg.Add(1)
		go func(d *Destination) {
			defer r.wg.Done()
			d.run(ctx)
		}(d)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.dispatch(ctx)
	}()

	r.log.Info("router started", "routes", r.n)
	return nil
}

// Wait blocks until every goroutine started by Start has returned.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Destinations returns the registered destinations in registration order.
func (r *Router) Destinations() []*Destination {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Destination, r.n)
	copy(out, r.routes[:r.n])
	return out
}

// Stats returns a snapshot of the distribution counters.
func (r *Router) Stats() stats.RouterStats {
	return r.col.Snapshot().Router
}

func (r *Router) dispatch(ctx context.Context) {
	// The registry is frozen once started.
	routes := r.routes[:r.n]
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.ingress:
			r.col.Dispatched.Add(1)
			fanOut(routes, ev)
		}
	}
}

// fanOut offers ev to every destination in registration order.
func fanOut(routes []*Destination, ev midi.Event) {
	for _, d := range routes {
		d.offer(ev)
	}
}
