// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries client envelopes between WebSocket
// connections and the collaboration engine.
//
// [Handler] upgrades HTTP requests with coder/websocket and runs two
// loops per connection. The read loop hands each text frame to the
// [Router] (normally an *engine.Engine); the write loop drains a bounded
// send queue. The queue never blocks the router: when it fills, Send
// fails and the engine closes the connection as a slow consumer. When
// the read loop exits, for any reason, the handler disconnects the
// connection from the router so its rooms see it leave.
//
// [Listener] abstracts where the HTTP server accepts connections.
// [TCPListener] is the production implementation.
package transport
