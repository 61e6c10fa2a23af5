package transport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"discarded", ErrDiscarded, false},
		{"wrapped discarded", fmt.Errorf("usb: %w", ErrDiscarded), false},
		{"not ready", ErrNotReady, true},
		{"buffer full", ErrBufferFull, true},
		{"other", errors.New("boom"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFailure(tt.err))
		})
	}
}

func TestErrNotReadyIsTransient(t *testing.T) {
	assert.ErrorIs(t, ErrNotReady, ErrTransient)
	assert.NotErrorIs(t, ErrDiscarded, ErrTransient)
}
