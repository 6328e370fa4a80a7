// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

var _ Listener = (*TCPListener)(nil)

// shutdownGrace bounds how long Serve waits for in-flight requests
// after ctx is cancelled. Upgraded WebSocket connections are hijacked
// and are not tracked by the server; the engine closes those itself.
const shutdownGrace = 5 * time.Second

// TCPListener serves HTTP, and the WebSocket upgrades riding on it,
// from a TCP socket.
type TCPListener struct {
	listener net.Listener
	server   *http.Server
}

// NewTCPListener binds address (e.g. ":8080" or "127.0.0.1:0"). The
// socket is open when NewTCPListener returns, so Address is valid
// before Serve starts.
func NewTCPListener(address string) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &TCPListener{
		listener: listener,
		server:   &http.Server{ReadHeaderTimeout: 10 * time.Second},
	}, nil
}

// Serve dispatches connections to handler until ctx is cancelled or
// Close is called.
//
// Only the header read is bounded by a timeout. A whole-request read
// or write deadline would also apply to the hijacked connection and
// cut long-lived WebSocket sessions off.
func (l *TCPListener) Serve(ctx context.Context, handler http.Handler) error {
	l.server.Handler = handler
	l.server.BaseContext = func(net.Listener) context.Context { return ctx }

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := l.server.Shutdown(shutdownCtx); err != nil {
			l.server.Close()
		}
	}()

	err := l.server.Serve(l.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Address returns the TCP address in "host:port" format.
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

// Close shuts down the listener and any idle connections.
func (l *TCPListener) Close() error {
	err := l.server.Close()
	if closeErr := l.listener.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) && err == nil {
		err = closeErr
	}
	return err
}
