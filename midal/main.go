package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/gomidal/pkg/adc"
	"github.com/itohio/gomidal/pkg/config"
)

// logger is the process-wide logger; components receive it explicitly.
var logger = slog.Default()

func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

func main() {
	var (
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag    = flag.Bool("mock", false, "Use simulated pedals instead of the serial acquisition board")
		portFlag    = flag.String("p", "", "Acquisition board serial port override (e.g., COM3 or /dev/ttyACM0)")
		uartFlag    = flag.String("uart", "", "MIDI serial output port override")
		midiOutFlag = flag.String("midi-out", "", "Host MIDI output port override (created as a virtual port if missing)")
		saveFlag    = flag.String("save-config", "", "Write the effective configuration to this file and exit")
		listFlag    = flag.Bool("list", false, "List serial ports and host MIDI outputs and exit")
		verboseFlag = flag.Bool("v", false, "Enable debug logging")
	)
	flag.Parse()

	initLogger(*verboseFlag)

	if *listFlag {
		listPorts()
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	if *portFlag != "" {
		cfg.SerialADC.Port = *portFlag
	}
	if *uartFlag != "" {
		cfg.UART.Port = *uartFlag
	}
	if *midiOutFlag != "" {
		cfg.Host.OutPort = *midiOutFlag
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if *saveFlag != "" {
		if err := cfg.Save(*saveFlag); err != nil {
			logger.Error("failed to save configuration", "err", err)
			os.Exit(1)
		}
		logger.Info("configuration saved", "file", *saveFlag)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(cfg, *mockFlag, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer p.close()

	if err := p.run(ctx); err != nil {
		logger.Error("pipeline failed", "err", err)
		p.close()
		os.Exit(1)
	}
	logger.Info("stopped")
}

func listPorts() {
	ports, err := adc.Ports()
	if err != nil {
		logger.Error("failed to list serial ports", "err", err)
	}
	fmt.Println("Serial ports:")
	for _, p := range ports {
		fmt.Println("  " + p)
	}
	fmt.Println("MIDI outputs:")
	for _, p := range hostPorts() {
		fmt.Println("  " + p)
	}
}
