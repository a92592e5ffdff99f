// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package recorder stores raw inbound Socket.IO frames as a CBOR stream
// so that sessions can be replayed through the codec and parser later.
//
// A recording is a header item followed by one item per frame:
//
//	{1: "agxmon-frames", 2: version, 3: source, 4: started_unix_ns}
//	{1: received_unix_ns, 2: frame bytes}
package recorder

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Format identifies recording files
const Format = "agxmon-frames"

// Version is the current recording layout
const Version = 1

// ErrBadHeader is returned when a stream does not start with a recording header
var ErrBadHeader = errors.New("not an agxmon frame recording")

// Header opens every recording
type Header struct {
	Format    string `cbor:"1,keyasint"`
	Version   int    `cbor:"2,keyasint"`
	Source    string `cbor:"3,keyasint,omitempty"`
	StartedNS int64  `cbor:"4,keyasint"`
}

// Started returns the recording start time
func (h Header) Started() time.Time {
	return time.Unix(0, h.StartedNS)
}

// Record is one received frame
type Record struct {
	ReceivedNS int64  `cbor:"1,keyasint"`
	Frame      []byte `cbor:"2,keyasint"`
}

// At returns the receive time
func (r Record) At() time.Time {
	return time.Unix(0, r.ReceivedNS)
}

// Writer appends frames to a recording. Safe for concurrent use.
type Writer struct {
	mu    sync.Mutex
	enc   *cbor.Encoder
	count uint64
}

// NewWriter writes the header for source and returns a writer
func NewWriter(w io.Writer, source string, started time.Time) (*Writer, error) {
	enc := cbor.NewEncoder(w)
	h := Header{
		Format:    Format,
		Version:   Version,
		Source:    source,
		StartedNS: started.UnixNano(),
	}
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("failed to write recording header: %w", err)
	}
	return &Writer{enc: enc}, nil
}

// Write appends one frame. The frame is copied by the encoder before
// returning, so callers may reuse the buffer.
func (w *Writer) Write(at time.Time, frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(Record{ReceivedNS: at.UnixNano(), Frame: frame}); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of frames written
func (w *Writer) Count() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Reader iterates over a recording
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads and checks the header
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(r)
	var h Header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if h.Format != Format {
		return nil, fmt.Errorf("%w: format %q", ErrBadHeader, h.Format)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("unsupported recording version %d", h.Version)
	}
	return &Reader{dec: dec, header: h}, nil
}

// Header returns the recording header
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next record, or io.EOF at the end of the recording
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to read frame: %w", err)
	}
	return rec, nil
}
