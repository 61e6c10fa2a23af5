package router

import (
	"context"
	"log/slog"

	"github.com/itohio/gomidal/pkg/midi"
	"github.com/itohio/gomidal/pkg/stats"
	"github.com/itohio/gomidal/pkg/transport"
)

// TxFunc transmits one event on a transport. It returns nil on success,
// an error wrapping transport.ErrDiscarded when the event was skipped on
// purpose, or any other error on failure.
type TxFunc func(ctx context.Context, ev midi.Event) error

// Destination is a registered transport with its own queue and worker.
type Destination struct {
	name  string
	tx    TxFunc
	queue chan midi.Event
	stats *stats.Route
	col   *stats.Collector
	log   *slog.Logger
}

func newDestination(name string, tx TxFunc, size int, col *stats.Collector, log *slog.Logger) *Destination {
	return &Destination{
		name:  name,
		tx:    tx,
		queue: make(chan midi.Event, size),
		stats: col.Route(name),
		col:   col,
		log:   log.With("route", name),
	}
}

// Name returns the destination name.
func (d *Destination) Name() string {
	return d.name
}

// Pending returns the number of queued events.
func (d *Destination) Pending() int {
	return len(d.queue)
}

// offer enqueues ev without blocking. A full queue drops ev and counts it
// against this destination only.
func (d *Destination) offer(ev midi.Event) bool {
	select {
	case d.queue <- ev:
		d.stats.HighWater.Observe(len(d.queue))
		return true
	default:
		d.stats.Dropped.Add(1)
		d.log.Debug("queue full, event dropped", "event", ev)
		return false
	}
}

// run transmits queued events until ctx is cancelled.
func (d *Destination) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			if ctx.Err() != nil {
				d.stats.Dropped.Add(1)
				d.col.Dropped.Add(1)
				d.log.Debug("shutting down, event dropped", "event", ev)
				return
			}
			d.transmit(ctx, ev)
		}
	}
}

func (d *Destination) transmit(ctx context.Context, ev midi.Event) {
	err := d.tx(ctx, ev)
	switch {
	case err == nil:
		d.stats.Sent.Add(1)
	case transport.IsFailure(err):
		d.stats.Dropped.Add(1)
		d.col.Dropped.Add(1)
		d.log.Debug("transmit failed", "event", ev, "err", err)
	}
}
