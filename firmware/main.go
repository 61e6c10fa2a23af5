//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"context"
	"log/slog"
	"machine"
	"time"

	"github.com/itohio/gomidal/pkg/config"
	"github.com/itohio/gomidal/pkg/filter"
	"github.com/itohio/gomidal/pkg/router"
	"github.com/itohio/gomidal/pkg/sampler"
	"github.com/itohio/gomidal/pkg/stats"
	"github.com/itohio/gomidal/pkg/transport/uart"
	"github.com/itohio/gomidal/pkg/transport/usb"
)

func main() {
	log := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// The board has no radio; pedals go out over USB and DIN.
	cfg := config.Default()
	cfg.BLE.Enabled = false
	if err := cfg.Validate(); err != nil {
		halt(log, "invalid configuration", err)
	}

	col := stats.New()
	r := router.New(cfg.Router, col, log)

	usbEnc, err := usb.New(newUSBLink(), cfg, col, log)
	if err != nil {
		halt(log, "usb encoder", err)
	}
	if _, err := r.Register(usb.Name, usbEnc.Tx); err != nil {
		halt(log, "usb route", err)
	}

	midiUART.Configure(machine.UARTConfig{BaudRate: uart.DefaultBaudRate})
	uartEnc, err := uart.New(midiUART, cfg, log)
	if err != nil {
		halt(log, "uart encoder", err)
	}
	if _, err := r.Register(uart.Name, uartEnc.Tx); err != nil {
		halt(log, "uart route", err)
	}

	conv, err := newConverter(cfg.ADCChannels())
	if err != nil {
		halt(log, "adc", err)
	}
	s, err := sampler.New(cfg, conv, filter.New(cfg), r, col, log)
	if err != nil {
		halt(log, "sampler", err)
	}

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		halt(log, "router", err)
	}
	// TinyGo configures the USB device before main runs.
	usbEnc.NotifyReady(true)

	go heartbeat(ctx, col, cfg.Stats.Interval, log)

	s.Run(ctx)
}

func heartbeat(ctx context.Context, col *stats.Collector, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info("heartbeat", "stats", col.Snapshot())
		}
	}
}

// halt reports a startup failure forever.
func halt(log *slog.Logger, what string, err error) {
	for {
		log.Error("startup failed", "stage", what, "err", err)
		time.Sleep(time.Second)
	}
}
