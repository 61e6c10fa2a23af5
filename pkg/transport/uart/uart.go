// Package uart sends controller events as MIDI 1.0 bytes over a serial line
// (5-pin DIN or a USB-serial adapter).
package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/itohio/gomidal/pkg/config"
	"github.com/itohio/gomidal/pkg/midi"
	"github.com/itohio/gomidal/pkg/transport"
)

// Name is the router destination name of the serial transport.
const Name = "uart"

// DefaultBaudRate is the MIDI 1.0 line rate.
const DefaultBaudRate = 31250

// Encoder writes events to w. There is no readiness gate; a write error is a
// failed transmission.
type Encoder struct {
	w   io.Writer
	enc midi.Encoding
	log *slog.Logger

	mu  sync.Mutex
	buf []byte
}

// New creates a serial encoder. Event resolution comes from the filter
// section of cfg.
func New(w io.Writer, cfg *config.Config, log *slog.Logger) (*Encoder, error) {
	if w == nil {
		return nil, errors.New("uart: no writer")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Encoder{
		w:   w,
		enc: midi.Encoding{HighRes: cfg.Filter.Use14Bit, Split: true},
		log: log.With("component", "uart"),
		buf: make([]byte, 0, 6),
	}, nil
}

// Tx writes ev as one or two control change messages in a single write.
func (e *Encoder) Tx(ctx context.Context, ev midi.Event) error {
	if ev.Kind != midi.KindCC {
		return transport.ErrDiscarded
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var msgs [2]midi.Message
	e.buf = e.buf[:0]
	for _, msg := range e.enc.Encode(msgs[:0], ev) {
		e.buf = append(e.buf, msg...)
	}

	n, err := e.w.Write(e.buf)
	if err != nil {
		return fmt.Errorf("uart: write: %w", err)
	}
	if n != len(e.buf) {
		return fmt.Errorf("uart: short write %d of %d bytes: %w", n, len(e.buf), io.ErrShortWrite)
	}
	return nil
}
