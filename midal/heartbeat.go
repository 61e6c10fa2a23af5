package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/itohio/gomidal/pkg/stats"
)

type linkState struct {
	name  string
	ready func() bool
}

// heartbeat periodically logs the collector snapshot and link readiness.
type heartbeat struct {
	col      *stats.Collector
	interval time.Duration
	log      *slog.Logger
	links    []linkState
}

func newHeartbeat(col *stats.Collector, interval time.Duration, log *slog.Logger) *heartbeat {
	if interval <= 0 {
		interval = time.Second
	}
	return &heartbeat{
		col:      col,
		interval: interval,
		log:      log.With("component", "heartbeat"),
	}
}

// watch adds a link whose readiness is reported with every heartbeat.
func (h *heartbeat) watch(name string, ready func() bool) {
	h.links = append(h.links, linkState{name: name, ready: ready})
}

func (h *heartbeat) run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.report()
		}
	}
}

func (h *heartbeat) report() {
	args := make([]any, 0, 2+2*len(h.links))
	args = append(args, "stats", h.col.Snapshot())
	for _, l := range h.links {
		args = append(args, l.name+"_ready", l.ready())
	}
	h.log.Info("heartbeat", args...)
}
