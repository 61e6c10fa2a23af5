package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/itohio/gomidal/pkg/adc"
	"github.com/itohio/gomidal/pkg/config"
	"github.com/itohio/gomidal/pkg/filter"
	"github.com/itohio/gomidal/pkg/router"
	"github.com/itohio/gomidal/pkg/sampler"
	"github.com/itohio/gomidal/pkg/stats"
	"github.com/itohio/gomidal/pkg/transport/ble"
	"github.com/itohio/gomidal/pkg/transport/hostmidi"
	"github.com/itohio/gomidal/pkg/transport/uart"
	"github.com/itohio/gomidal/pkg/transport/usb"
)

// pipeline holds every component of a running pedal board.
type pipeline struct {
	cfg *config.Config
	log *slog.Logger

	col     *stats.Collector
	router  *router.Router
	sampler *sampler.Sampler
	usb     *usb.Encoder
	ble     *ble.Encoder
	bleLink *ble.Mock

	closeOnce sync.Once
	closers   []func() error
}

// newPipeline wires acquisition, filtering, distribution and every enabled
// transport. Any error here is a startup failure.
func newPipeline(cfg *config.Config, useMock bool, log *slog.Logger) (*pipeline, error) {
	p := &pipeline{
		cfg: cfg,
		log: log,
		col: stats.New(),
	}
	if err := p.setup(useMock); err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

func (p *pipeline) setup(useMock bool) error {
	p.router = router.New(p.cfg.Router, p.col, p.log)

	if err := p.setupUSB(); err != nil {
		return err
	}
	if err := p.setupBLE(); err != nil {
		return err
	}
	if err := p.setupUART(); err != nil {
		return err
	}

	conv, err := p.openConverter(useMock)
	if err != nil {
		return err
	}

	p.sampler, err = sampler.New(p.cfg, conv, filter.New(p.cfg), p.router, p.col, p.log)
	return err
}

func (p *pipeline) setupUSB() error {
	if !p.cfg.USB.Enabled {
		return nil
	}
	if p.cfg.Host.OutPort == "" {
		p.log.Info("usb transport disabled: no host MIDI output port configured")
		return nil
	}

	send, closeFn, err := openHostPort(p.cfg.Host.OutPort, p.log)
	if err != nil {
		return err
	}
	p.closers = append(p.closers, closeFn)

	link, err := hostmidi.New(send)
	if err != nil {
		return err
	}
	enc, err := usb.New(link, p.cfg, p.col, p.log)
	if err != nil {
		return err
	}
	if _, err := p.router.Register(usb.Name, enc.Tx); err != nil {
		return err
	}
	// An open host port is the desktop counterpart of an enumerated device.
	enc.NotifyReady(true)
	p.usb = enc
	return nil
}

func (p *pipeline) setupBLE() error {
	if !p.cfg.BLE.Enabled {
		return nil
	}

	var enc *ble.Encoder
	link := ble.NewMock(p.cfg.BLE.ConnectDelay, func(s ble.State) { enc.Notify(s) }, p.log)
	enc, err := ble.New(link, p.cfg, p.log)
	if err != nil {
		return err
	}
	if _, err := p.router.Register(ble.Name, enc.Tx); err != nil {
		return err
	}
	p.closers = append(p.closers, func() error {
		link.Close()
		return nil
	})
	p.ble = enc
	p.bleLink = link
	return nil
}

func (p *pipeline) setupUART() error {
	if p.cfg.UART.Port == "" {
		return nil
	}

	port, err := uart.Open(p.cfg.UART.Port, p.cfg.UART.BaudRate)
	if err != nil {
		return err
	}
	p.closers = append(p.closers, port.Close)

	enc, err := uart.New(port, p.cfg, p.log)
	if err != nil {
		return err
	}
	if _, err := p.router.Register(uart.Name, enc.Tx); err != nil {
		return err
	}
	return nil
}

func (p *pipeline) openConverter(useMock bool) (adc.Converter, error) {
	ids := p.cfg.ADCChannels()

	if useMock {
		p.log.Info("using simulated pedals")
		return adc.NewMock(&p.cfg.Mock, ids)
	}

	if p.cfg.SerialADC.Port == "" {
		return nil, errors.New("no acquisition port configured (use -p or -mock)")
	}
	conv := adc.NewSerial(p.cfg.SerialADC.Port, p.cfg.SerialADC.BaudRate, ids, p.log)
	if err := conv.Connect(); err != nil {
		return nil, err
	}
	p.closers = append(p.closers, conv.Close)
	return conv, nil
}

// run starts every goroutine and blocks until ctx is cancelled.
func (p *pipeline) run(ctx context.Context) error {
	if err := p.router.Start(ctx); err != nil {
		return fmt.Errorf("failed to start router: %w", err)
	}

	var wg sync.WaitGroup

	if p.ble != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.ble.Run(ctx); err != nil {
				p.log.Error("ble state machine stopped", "err", err)
			}
		}()
	}

	hb := newHeartbeat(p.col, p.cfg.Stats.Interval, p.log)
	if p.usb != nil {
		hb.watch(usb.Name, p.usb.Ready)
	}
	if p.ble != nil {
		hb.watch(ble.Name, func() bool { return p.ble.State() == ble.StateReady })
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		hb.run(ctx)
	}()

	err := p.sampler.Run(ctx)

	p.router.Wait()
	wg.Wait()
	hb.report()

	return err
}

// close releases ports and drivers. It is safe to call more than once.
func (p *pipeline) close() {
	p.closeOnce.Do(func() {
		for i := len(p.closers) - 1; i >= 0; i-- {
			if err := p.closers[i](); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				p.log.Error("error during shutdown", "err", err)
			}
		}
	})
}
