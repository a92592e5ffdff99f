// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package wsclient is a gorilla/websocket implementation of agx.Transport
package wsclient

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/agxmon/pkg/agx"
)

// ErrConnectionClosed is returned when writing to a connection that is gone
var ErrConnectionClosed = errors.New("websocket connection closed")

// ErrDestroyed is returned by every call after Destroy
var ErrDestroyed = errors.New("websocket client destroyed")

// Default timeouts used when the options leave them zero
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	closeWait               = 2 * time.Second
)

// Client keeps at most one WebSocket connection open. Events for a
// connection are delivered by that connection's reader goroutine in the
// order Connected, Data..., Disconnected.
type Client struct {
	opts    agx.TransportOptions
	handler agx.TransportHandler
	logger  *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	readerEnd chan struct{}
	destroyed bool

	// writeMu serializes writers; gorilla allows one concurrent writer
	writeMu sync.Mutex
}

// New creates a client. Zero timeouts select the defaults.
func New(opts agx.TransportOptions, handler agx.TransportHandler, logger *slog.Logger) *Client {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:    opts,
		handler: handler,
		logger:  logger.With("component", "wsclient"),
	}
}

// Factory returns an agx.TransportFactory producing Clients that log to logger
func Factory(logger *slog.Logger) agx.TransportFactory {
	return func(opts agx.TransportOptions, handler agx.TransportHandler) (agx.Transport, error) {
		return New(opts, handler, logger), nil
	}
}

// Connect dials rawURL. Any previous connection is dropped first and its
// reader is allowed to deliver Disconnected before the new dial starts.
func (c *Client) Connect(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	old, oldEnd := c.conn, c.readerEnd
	c.conn, c.readerEnd = nil, nil
	c.mu.Unlock()

	if old != nil {
		old.Close()
		<-oldEnd
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.opts.HandshakeTimeout,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: c.opts.InsecureSkipVerify,
		}
	}

	headers := http.Header{}
	if c.opts.Username != "" && c.opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(c.opts.Username + ":" + c.opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	c.emit(agx.TransportEvent{Kind: agx.TransportBeforeConnect})

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, rawURL, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("WebSocket connection failed: %w", err)
	}

	end := make(chan struct{})
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		conn.Close()
		return ErrDestroyed
	}
	c.conn, c.readerEnd = conn, end
	c.mu.Unlock()

	go c.readLoop(conn, end)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, end chan struct{}) {
	defer close(end)

	c.emit(agx.TransportEvent{Kind: agx.TransportConnected})

	var readErr error
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) {
				readErr = err
			}
			break
		}
		if messageType != websocket.TextMessage {
			// Socket.IO text framing only; binary frames go through the
			// same integrity checks
			c.logger.Debug("binary frame received", "len", len(data))
		}
		c.emit(agx.TransportEvent{Kind: agx.TransportData, Data: data})
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.readerEnd = nil
	}
	c.mu.Unlock()
	conn.Close()

	// An abnormal drop is an error first, then a disconnect
	if readErr != nil {
		c.logger.Debug("read failed", "error", readErr)
		c.emit(agx.TransportEvent{Kind: agx.TransportError, Err: fmt.Errorf("connection lost: %w", readErr)})
	}
	c.emit(agx.TransportEvent{Kind: agx.TransportDisconnected})
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, net.ErrClosed)
}

func (c *Client) emit(ev agx.TransportEvent) {
	if c.handler != nil {
		c.handler(ev)
	}
}

// SendText writes one text frame with the configured write timeout
func (c *Client) SendText(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close sends a close frame and waits briefly for the peer to end the
// connection before dropping it
func (c *Client) Close() error {
	c.mu.Lock()
	conn, end := c.conn, c.readerEnd
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout))
	c.writeMu.Unlock()

	select {
	case <-end:
	case <-time.After(closeWait):
		conn.Close()
		<-end
	}
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("failed to send close frame: %w", err)
	}
	return nil
}

// Stop drops the connection without a close handshake. The reader
// delivers Disconnected on its own goroutine.
func (c *Client) Stop() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Destroy drops any connection, waits for its reader and disables the client
func (c *Client) Destroy() error {
	c.mu.Lock()
	c.destroyed = true
	conn, end := c.conn, c.readerEnd
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
		<-end
	}
	return nil
}
