//go:build !tinygo

package adc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the line rate of the acquisition board.
	DefaultBaudRate = 115200
)

var _ Converter = (*Serial)(nil)

type request struct {
	buf  []int16
	done chan<- error
}

// Serial is a converter living on an external board that streams one line
// per scan: "micros,v0,v1,...". Readings are listed in ascending channel
// identifier order, matching the on-chip converter layout.
//
// ReadAsync arms a request that is completed by the next line received.
type Serial struct {
	port     string
	baudRate int
	ids      []uint8
	log      *slog.Logger

	mu        sync.Mutex
	conn      io.ReadCloser
	pending   *request
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	last      uint32 // Timestamp of the last line
}

// Ports returns the names of the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// NewSerial creates a serial converter for the given port and channels.
func NewSerial(port string, baudRate int, ids []uint8, log *slog.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if log == nil {
		log = slog.Default()
	}

	c := make([]uint8, len(ids))
	copy(c, ids)

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		ids:      c,
		log:      log.With("component", "adc-serial"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Connect opens the serial port and starts reading scans.
func (d *Serial) Connect() error {
	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}
	if err := d.attach(port); err != nil {
		port.Close()
		return err
	}
	return nil
}

// attach starts reading scans from conn.
func (d *Serial) attach(conn io.ReadCloser) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}
	d.conn = conn
	d.connected = true

	go d.readLines(conn)

	return nil
}

// Close stops reading and closes the port.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			d.log.Error("error closing serial port", "err", err)
		}
		d.conn = nil
	}
	d.connected = false
	d.failPending()

	return nil
}

// lost marks the converter disconnected after the reader stopped on its own.
func (d *Serial) lost(conn io.ReadCloser) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Close already released this connection.
	if d.conn != conn {
		return
	}
	if err := conn.Close(); err != nil {
		d.log.Error("error closing serial port", "err", err)
	}
	d.conn = nil
	d.connected = false
	d.failPending()
	d.log.Warn("serial port disconnected", "port", d.port)
}

// failPending completes the armed request with ErrNotConnected. d.mu must be held.
func (d *Serial) failPending() {
	if d.pending == nil {
		return
	}
	select {
	case d.pending.done <- ErrNotConnected:
	default:
	}
	d.pending = nil
}

// Channels returns the scanned channel identifiers.
func (d *Serial) Channels() []uint8 {
	out := make([]uint8, len(d.ids))
	copy(out, d.ids)
	return out
}

// Read waits for the next scan.
func (d *Serial) Read(buf []int16) error {
	done := make(chan error, 1)
	if err := d.ReadAsync(buf, done); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-d.ctx.Done():
		return ErrNotConnected
	}
}

// ReadAsync arms a request for the next scan.
func (d *Serial) ReadAsync(buf []int16, done chan<- error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return ErrNotConnected
	}
	if d.pending != nil {
		return ErrBusy
	}
	d.pending = &request{buf: buf, done: done}
	return nil
}

// Abort drops the armed request.
func (d *Serial) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
}

// readLines parses scans and completes pending requests.
func (d *Serial) readLines(conn io.ReadCloser) {
	defer d.lost(conn)
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic in readLines", "panic", r)
		}
	}()

	values := make([]int16, len(d.ids))
	scanner := bufio.NewScanner(conn)
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				d.log.Error("error reading from serial port", "err", err)
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		ts, err := parseLine(line, values)
		if err != nil {
			d.log.Warn("failed to parse line", "line", line, "err", err)
			continue
		}

		d.mu.Lock()
		d.last = ts
		if p := d.pending; p != nil {
			copy(p.buf, values)
			d.pending = nil
			select {
			case p.done <- nil:
			default:
			}
		}
		d.mu.Unlock()
	}
}

// parseLine parses "micros,v0,v1,..." into values. The number of readings
// must equal len(values).
func parseLine(line string, values []int16) (uint32, error) {
	parts := strings.Split(line, ",")
	if len(parts) != len(values)+1 {
		return 0, fmt.Errorf("invalid line format: expected %d comma-separated values, got %d", len(values)+1, len(parts))
	}

	ts, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp: %w", err)
	}

	for i, p := range parts[1:] {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid reading %d: %w", i, err)
		}
		values[i] = int16(v)
	}

	return uint32(ts % (1 << 32)), nil
}

// LastTimestamp returns the board timestamp of the most recent scan.
func (d *Serial) LastTimestamp() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Duration(d.last) * time.Microsecond
}
