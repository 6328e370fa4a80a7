// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/bureau-foundation/tandem/hub"
)

// Router consumes connection lifecycle and inbound envelopes.
// *engine.Engine satisfies it.
type Router interface {
	Connect(conn hub.Conn, remoteAddr, userAgent string) string
	Handle(ctx context.Context, connectionID string, raw []byte)
	Disconnect(connectionID string)
}

// ErrSendQueueFull is returned by Send when the connection's outbound
// queue has no room.
var ErrSendQueueFull = errors.New("transport: send queue full")

// errConnectionClosed is returned by Send after Close.
var errConnectionClosed = errors.New("transport: connection closed")

// HandlerConfig configures a Handler. Zero values take the defaults
// noted on each field.
type HandlerConfig struct {
	Logger *slog.Logger

	// MaxMessageBytes caps one inbound frame; 10 MiB. Larger frames
	// close the connection with status 1009.
	MaxMessageBytes int64

	// SendQueueDepth is the number of outbound envelopes buffered per
	// connection; 256.
	SendQueueDepth int

	// WriteTimeout bounds a single frame write; 10s.
	WriteTimeout time.Duration

	// TrustForwardedFor takes the client address from the first
	// X-Forwarded-For entry. Enable it only behind a proxy that sets
	// the header.
	TrustForwardedFor bool

	// OriginPatterns lists additional allowed Origin hosts. See
	// websocket.AcceptOptions.
	OriginPatterns []string
}

// Handler upgrades HTTP requests to WebSocket connections served by a
// Router.
type Handler struct {
	router Router
	config HandlerConfig
	logger *slog.Logger
}

// NewHandler creates a Handler for router.
func NewHandler(router Router, config HandlerConfig) *Handler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = 10 << 20
	}
	if config.SendQueueDepth <= 0 {
		config.SendQueueDepth = 256
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	return &Handler{
		router: router,
		config: config,
		logger: config.Logger.With("component", "transport"),
	}
}

// ServeHTTP upgrades the request and serves the connection until
// either side closes it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.config.OriginPatterns,
	})
	if err != nil {
		// Accept has already written the HTTP error response.
		h.logger.Debug("websocket upgrade failed",
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		return
	}
	socket.SetReadLimit(h.config.MaxMessageBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := newConn(socket, h.config.SendQueueDepth)
	connectionID := h.router.Connect(client, remoteAddress(r, h.config.TrustForwardedFor), r.UserAgent())
	// Deferred so the leave cascade also runs when Handle panics.
	defer h.router.Disconnect(connectionID)
	logger := h.logger.With("connection_id", connectionID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		client.writeLoop(ctx, h.config.WriteTimeout, logger)
	}()
	defer func() {
		cancel()
		<-writerDone
		socket.CloseNow()
	}()

	client.readLoop(ctx, func(raw []byte) {
		h.router.Handle(ctx, connectionID, raw)
	}, logger)
}

// remoteAddress returns the client address a request came from.
func remoteAddress(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	return r.RemoteAddr
}

// conn is the hub.Conn side of one WebSocket connection.
type conn struct {
	socket *websocket.Conn
	queue  chan []byte

	mu      sync.Mutex
	closing chan struct{}
	reason  string
	closed  bool
}

func newConn(socket *websocket.Conn, depth int) *conn {
	return &conn{
		socket:  socket,
		queue:   make(chan []byte, depth),
		closing: make(chan struct{}),
	}
}

// Send queues payload for the write loop without blocking.
func (c *conn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnectionClosed
	}
	select {
	case c.queue <- payload:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close asks the write loop to send a close frame carrying reason. The
// first call wins.
func (c *conn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.reason = reason
	close(c.closing)
}

func (c *conn) closeReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// readLoop passes every inbound frame to handle until the socket fails
// or ctx is cancelled.
func (c *conn) readLoop(ctx context.Context, handle func([]byte), logger *slog.Logger) {
	for {
		_, data, err := c.socket.Read(ctx)
		if err != nil {
			switch status := websocket.CloseStatus(err); status {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				logger.Debug("client closed connection", "status", status)
			case -1:
				if ctx.Err() == nil {
					logger.Debug("read failed", "error", err)
				}
			default:
				logger.Info("connection closed", "status", status, "error", err)
			}
			return
		}
		handle(data)
	}
}

// writeLoop drains the send queue until Close is called or ctx is
// cancelled. Queued payloads are flushed before the close frame.
func (c *conn) writeLoop(ctx context.Context, timeout time.Duration, logger *slog.Logger) {
	for {
		select {
		case payload := <-c.queue:
			if err := c.write(ctx, timeout, payload); err != nil {
				if ctx.Err() == nil {
					logger.Debug("write failed", "error", err)
				}
				c.socket.CloseNow()
				return
			}
		case <-c.closing:
			c.flush(ctx, timeout)
			reason := c.closeReason()
			status := websocket.StatusPolicyViolation
			if reason == "" || reason == "server shutting down" {
				status = websocket.StatusGoingAway
			}
			// The close handshake waits for the peer; the read loop
			// observes the closed socket and returns.
			c.socket.Close(status, truncateReason(reason))
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *conn) flush(ctx context.Context, timeout time.Duration) {
	for {
		select {
		case payload := <-c.queue:
			if c.write(ctx, timeout, payload) != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *conn) write(ctx context.Context, timeout time.Duration, payload []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.socket.Write(writeCtx, websocket.MessageText, payload)
}

// Close frame reasons are limited to 123 bytes.
func truncateReason(reason string) string {
	if len(reason) <= 123 {
		return reason
	}
	return reason[:123]
}

var _ hub.Conn = (*conn)(nil)
