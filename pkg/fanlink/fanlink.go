// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package fanlink forwards the AGX CPU temperature to the fan controller
// on the carrier board over its console UART.
package fanlink

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the carrier board console
const DefaultBaudRate = 115200

// Temperatures outside this range are rejected before they reach the wire
const (
	MinCelsius = -40.0
	MaxCelsius = 150.0
)

// ErrClosed is returned after Close
var ErrClosed = errors.New("fan link closed")

// Reporter writes one console command per reading:
//
//	fan agx_temp <celsius>\r\n
//
// It implements tegrastats.ThermalReporter.
type Reporter struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	sent   uint64
}

// NewReporter wraps an already open writer
func NewReporter(w io.Writer) *Reporter {
	r := &Reporter{w: w}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// Open opens a serial port in 8N1 mode and returns a reporter writing to it
func Open(portName string, baudRate int) (*Reporter, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return NewReporter(port), nil
}

// ReportAGXTemperature sends one reading
func (r *Reporter) ReportAGXTemperature(celsius float64) error {
	if math.IsNaN(celsius) || celsius < MinCelsius || celsius > MaxCelsius {
		return fmt.Errorf("temperature out of range: %v", celsius)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return ErrClosed
	}
	if _, err := fmt.Fprintf(r.w, "fan agx_temp %.1f\r\n", celsius); err != nil {
		return fmt.Errorf("fan link write failed: %w", err)
	}
	r.sent++
	return nil
}

// Sent returns the number of readings written
func (r *Reporter) Sent() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

// Close releases the underlying port if it is closable
func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w = nil
	if r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	return c.Close()
}
