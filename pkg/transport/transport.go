// Package transport holds the error taxonomy shared by the wire encoders and
// the event router.
package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrDiscarded means the event was intentionally not sent: the link is
	// not enumerated or the event kind is not carried. It is not a failure
	// and touches no counter.
	ErrDiscarded = errors.New("transport: event discarded")
	// ErrTransient is a link failure that may clear up on its own.
	ErrTransient = errors.New("transport: transient failure")
	// ErrNotReady is returned while a connection-oriented link is down.
	ErrNotReady = fmt.Errorf("transport: link not ready: %w", ErrTransient)
	// ErrBufferFull is returned by links whose transmit buffer is full.
	// Encoders retry it.
	ErrBufferFull = errors.New("transport: transmit buffer full")
)

// IsFailure reports whether err from a transmit function should be counted
// as a dropped event.
func IsFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrDiscarded)
}
