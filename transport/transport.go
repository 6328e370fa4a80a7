// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net/http"
)

// Listener accepts inbound client connections and serves them with an
// HTTP handler, normally a [Handler] mounted on a mux.
type Listener interface {
	// Serve starts accepting connections and dispatches to handler.
	// Blocks until ctx is cancelled or Close is called. Returns nil
	// on clean shutdown.
	Serve(ctx context.Context, handler http.Handler) error

	// Address returns the bound address in "host:port" form. With a
	// ":0" listen address this reports the port actually chosen.
	Address() string

	// Close shuts down the listener. Subsequent calls to Serve return
	// immediately.
	Close() error
}
