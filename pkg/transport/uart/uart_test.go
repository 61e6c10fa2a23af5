package uart

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gomidal/pkg/config"
	"github.com/itohio/gomidal/pkg/midi"
	"github.com/itohio/gomidal/pkg/transport"
)

type failWriter struct {
	n   int
	err error
}

func (w failWriter) Write(p []byte) (int, error) {
	return w.n, w.err
}

func newEncoder(t *testing.T, use14 bool, w io.Writer) *Encoder {
	t.Helper()
	cfg := config.Default()
	cfg.Filter.Use14Bit = use14
	e, err := New(w, cfg, nil)
	require.NoError(t, err)
	return e
}

func TestTx_Bytes(t *testing.T) {
	tests := []struct {
		name  string
		use14 bool
		ev    midi.Event
		want  []byte
	}{
		{"7-bit", false, midi.CC(0, 64, 127, 0), []byte{0xB0, 64, 127}},
		{"14-bit paired", true, midi.CC(3, 7, 10000, 0), []byte{0xB3, 7, 78, 0xB3, 39, 16}},
		{"14-bit unpaired", true, midi.CC(1, 66, 0, 0), []byte{0xB1, 66, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			e := newEncoder(t, tt.use14, &out)
			require.NoError(t, e.Tx(context.Background(), tt.ev))
			assert.Equal(t, tt.want, out.Bytes())
		})
	}
}

func TestTx_WriteErrors(t *testing.T) {
	boom := errors.New("device disconnected")
	e := newEncoder(t, true, failWriter{err: boom})
	err := e.Tx(context.Background(), midi.CC(0, 64, 1, 0))
	assert.ErrorIs(t, err, boom)
	assert.True(t, transport.IsFailure(err))

	e = newEncoder(t, true, failWriter{n: 1})
	assert.ErrorIs(t, e.Tx(context.Background(), midi.CC(0, 64, 1, 0)), io.ErrShortWrite)
}

func TestTx_NonCC(t *testing.T) {
	var out bytes.Buffer
	e := newEncoder(t, true, &out)
	ev := midi.CC(0, 64, 1, 0)
	ev.Kind = midi.KindNote
	assert.ErrorIs(t, e.Tx(context.Background(), ev), transport.ErrDiscarded)
	assert.Zero(t, out.Len())
}

func TestTx_CancelledContext(t *testing.T) {
	var out bytes.Buffer
	e := newEncoder(t, true, &out)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Tx(ctx, midi.CC(0, 64, 1, 0)), context.Canceled)
	assert.Zero(t, out.Len())
}

func TestNew_NilWriter(t *testing.T) {
	_, err := New(nil, config.Default(), nil)
	assert.Error(t, err)
}
