// Package adc defines the multi-channel acquisition boundary used by the
// sampler, together with simulated and serial-attached implementations.
package adc

import (
	"errors"
	"fmt"
	"sort"
)

// MaxChannels is the number of analog inputs a converter can scan.
const MaxChannels = 8

var (
	// ErrBusy is returned when a conversion is already in flight.
	ErrBusy = errors.New("adc: conversion in progress")
	// ErrNotConnected is returned by converters whose link is down.
	ErrNotConnected = errors.New("adc: not connected")
	// ErrTimeout is reported when a conversion does not complete in time.
	ErrTimeout = errors.New("adc: conversion timed out")
)

// Converter is a multi-channel analog converter.
//
// Results are stored in ascending channel identifier order regardless of the
// order returned by Channels; use NewChannelMap to find each channel's slot.
type Converter interface {
	// Channels returns the scanned channel identifiers in configuration order.
	Channels() []uint8
	// Read performs a blocking conversion of all channels into buf.
	Read(buf []int16) error
	// ReadAsync starts a conversion into buf and reports completion on done.
	// done must be buffered; the converter never blocks on it.
	ReadAsync(buf []int16, done chan<- error) error
	// Abort cancels an in-flight conversion. No completion is reported for it.
	Abort()
}

// RawSample is one acquisition cycle in logical pedal order.
type RawSample struct {
	Timestamp uint32 // Microseconds
	Values    [MaxChannels]int16
	N         int
}

// NewChannelMap returns, for every channel identifier in configuration order,
// the index of its result in a converter buffer.
func NewChannelMap(ids []uint8) ([]int, error) {
	if len(ids) == 0 {
		return nil, errors.New("adc: no channels configured")
	}
	if len(ids) > MaxChannels {
		return nil, fmt.Errorf("adc: %d channels configured, at most %d supported", len(ids), MaxChannels)
	}

	sorted := make([]uint8, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return nil, fmt.Errorf("adc: channel %d configured more than once", sorted[i])
		}
	}

	offsets := make([]int, len(ids))
	for i, id := range ids {
		offsets[i] = sort.Search(len(sorted), func(k int) bool { return sorted[k] >= id })
	}
	return offsets, nil
}
