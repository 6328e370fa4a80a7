// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
)

// ErrClosed is returned by a backbone that has been closed.
var ErrClosed = errors.New("bridge: backbone closed")

// Message is one payload received from a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Backbone is a publish/subscribe transport between processes.
type Backbone interface {
	// Publish sends payload to every subscriber of channel, including
	// subscribers in this process.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe calls handler for every message on channels until ctx
	// is cancelled, returning nil, or the backbone fails, returning
	// the failure. Subscribe blocks; handler runs on its goroutine.
	Subscribe(ctx context.Context, channels []string, handler func(Message)) error

	// Close releases the backbone's resources.
	Close() error
}

// Noop is the backbone of a single-process deployment: publishes
// vanish and subscriptions never deliver.
type Noop struct{}

var _ Backbone = Noop{}

func (Noop) Publish(context.Context, string, []byte) error { return nil }

func (Noop) Subscribe(ctx context.Context, _ []string, _ func(Message)) error {
	<-ctx.Done()
	return nil
}

func (Noop) Close() error { return nil }
