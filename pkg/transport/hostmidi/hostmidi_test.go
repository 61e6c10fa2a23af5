package hostmidi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gomidal/pkg/config"
	"github.com/itohio/gomidal/pkg/midi"
	"github.com/itohio/gomidal/pkg/transport/usb"
)

func TestLink_Send(t *testing.T) {
	var got []midi.Message
	l, err := New(func(msg midi.Message) error {
		got = append(got, msg)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, l.Send(midi.MIDI1CC(0, 3, 64, 78)))
	require.Len(t, got, 1)
	assert.Equal(t, midi.Message{0xB3, 64, 78}, got[0])
	assert.Equal(t, uint64(1), l.Sent())
}

func TestLink_RejectsMIDI2(t *testing.T) {
	l, err := New(func(midi.Message) error { return nil })
	require.NoError(t, err)

	err = l.Send(midi.MIDI2CC(0, 0, 64, 0xFFFF0000))
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Zero(t, l.Sent())
}

func TestLink_SendError(t *testing.T) {
	boom := errors.New("port closed")
	l, err := New(func(midi.Message) error { return boom })
	require.NoError(t, err)
	assert.ErrorIs(t, l.Send(midi.MIDI1CC(0, 0, 1, 1)), boom)
}

func TestLink_WithUSBEncoder(t *testing.T) {
	var got []midi.Message
	l, err := New(func(msg midi.Message) error {
		got = append(got, msg)
		return nil
	})
	require.NoError(t, err)

	e, err := usb.New(l, config.Default(), nil, nil)
	require.NoError(t, err)
	e.NotifyReady(true)

	require.NoError(t, e.Tx(context.Background(), midi.CC(0, 64, 10000, 0)))
	assert.Equal(t, []midi.Message{{0xB0, 64, 78}, {0xB0, 96, 16}}, got)
}

func TestNew_NilSender(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
