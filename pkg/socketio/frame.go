// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package socketio

import (
	"bytes"
	"fmt"
	"net"
	"strconv"

	"github.com/tidwall/gjson"
)

// Frame is the result of classifying one inbound text frame
type Frame struct {
	Kind Kind
	Len  int

	// Event is the event name for KindEvent and KindOtherEvent
	Event string

	// Payload is the JSON object of a KindEvent frame. It aliases the
	// classified buffer.
	Payload []byte

	// Reason explains a KindMalformedEvent or KindOversize classification
	Reason string
}

// Codec classifies frames against a size limit
type Codec struct {
	MaxFrameSize int
}

// NewCodec creates a codec. A non-positive maxFrameSize selects the default.
func NewCodec(maxFrameSize int) *Codec {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Codec{MaxFrameSize: maxFrameSize}
}

// Classify classifies a frame with the default size limit
func Classify(data []byte) Frame {
	return NewCodec(DefaultMaxFrameSize).Classify(data)
}

// Classify determines what a frame is and, for telemetry events, where its
// JSON payload sits.
func (c *Codec) Classify(data []byte) Frame {
	f := Frame{Len: len(data)}

	switch {
	case len(data) == 0:
		f.Kind = KindEmpty
		return f
	case len(data) > c.MaxFrameSize:
		f.Kind = KindOversize
		f.Reason = fmt.Sprintf("%d bytes exceeds limit of %d", len(data), c.MaxFrameSize)
		return f
	}

	switch {
	case bytes.HasPrefix(data, []byte(prefixEvent)):
		return parseEvent(data, f)
	case bytes.HasPrefix(data, []byte(prefixConnectAck)):
		f.Kind = KindConnectAck
	case data[0] == prefixOpen:
		f.Kind = KindOpen
	case string(data) == framePing:
		f.Kind = KindPing
	case string(data) == frameEnginePing:
		f.Kind = KindEnginePing
	case len(data) <= AbnormalMaxLen && hasStrayControl(data):
		f.Kind = KindAbnormal
	case len(data) < SuspiciousMaxLen && data[0] < 0x20:
		f.Kind = KindSuspiciousBinary
	default:
		f.Kind = KindUnknown
	}
	return f
}

// hasStrayControl reports a control byte other than \n, \r or \t
func hasStrayControl(data []byte) bool {
	for _, b := range data {
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' {
			return true
		}
	}
	return false
}

// parseEvent walks 42["name",{...}] with a cursor. The payload is the first
// object after the event name, closed by its matching brace.
func parseEvent(data []byte, f Frame) Frame {
	cur := &cursor{buf: data, pos: len(prefixEvent)}

	if !cur.seek('[') {
		return malformed(f, "no event array")
	}
	cur.pos++
	cur.skipSpace()

	name, ok := cur.readString()
	if !ok {
		return malformed(f, "event name is not a string")
	}
	f.Event = name
	if name != TelemetryEvent {
		f.Kind = KindOtherEvent
		return f
	}

	if !cur.seek('{') {
		return malformed(f, "no payload object")
	}
	start := cur.pos
	end, ok := cur.matchObject()
	if !ok {
		return malformed(f, "unterminated payload object")
	}

	f.Kind = KindEvent
	f.Payload = data[start : end+1]
	return f
}

func malformed(f Frame, reason string) Frame {
	f.Kind = KindMalformedEvent
	f.Reason = reason
	return f
}

//////////////////////////////////////////////////////////////
// Cursor
//////////////////////////////////////////////////////////////

type cursor struct {
	buf []byte
	pos int
}

// seek advances to the next occurrence of b outside a JSON string
func (c *cursor) seek(b byte) bool {
	for c.pos < len(c.buf) {
		switch c.buf[c.pos] {
		case b:
			return true
		case '"':
			if _, ok := c.skipString(); !ok {
				return false
			}
			continue
		}
		c.pos++
	}
	return false
}

func (c *cursor) skipSpace() {
	for c.pos < len(c.buf) {
		switch c.buf[c.pos] {
		case ' ', '\t', '\n', '\r':
			c.pos++
		default:
			return
		}
	}
}

// skipString moves past a JSON string starting at pos and returns the index
// of its closing quote
func (c *cursor) skipString() (int, bool) {
	if c.pos >= len(c.buf) || c.buf[c.pos] != '"' {
		return 0, false
	}
	for i := c.pos + 1; i < len(c.buf); i++ {
		switch c.buf[i] {
		case '\\':
			i++
		case '"':
			c.pos = i + 1
			return i, true
		}
	}
	return 0, false
}

// readString reads a JSON string token and returns its decoded value
func (c *cursor) readString() (string, bool) {
	start := c.pos
	end, ok := c.skipString()
	if !ok {
		return "", false
	}
	return gjson.ParseBytes(c.buf[start : end+1]).String(), true
}

// matchObject returns the index of the brace closing the object that opens
// at pos. Braces inside strings do not count.
func (c *cursor) matchObject() (int, bool) {
	depth := 0
	for c.pos < len(c.buf) {
		switch c.buf[c.pos] {
		case '"':
			if _, ok := c.skipString(); !ok {
				return 0, false
			}
			continue
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return c.pos, true
			}
		}
		c.pos++
	}
	return 0, false
}

// URL returns the Socket.IO WebSocket endpoint for a server
func URL(host string, port int, ssl bool) string {
	scheme := "ws"
	if ssl {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/socket.io/?EIO=4&transport=websocket",
		scheme, net.JoinHostPort(host, strconv.Itoa(port)))
}
