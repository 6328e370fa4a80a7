// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"sync"
)

// MemoryBus connects in-process backbones to each other, standing in
// for Redis when several engines share one test.
type MemoryBus struct {
	mu          sync.Mutex
	changed     *sync.Cond
	subscribers map[*memorySubscriber]struct{}
	failure     error
}

type memorySubscriber struct {
	channels map[string]bool
	deliver  chan Message
	failed   chan error
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	bus := &MemoryBus{subscribers: make(map[*memorySubscriber]struct{})}
	bus.changed = sync.NewCond(&bus.mu)
	return bus
}

// WaitForSubscribers blocks until at least n subscriptions are live.
func (bus *MemoryBus) WaitForSubscribers(n int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for len(bus.subscribers) < n {
		bus.changed.Wait()
	}
}

// Backbone returns a new endpoint on the bus.
func (bus *MemoryBus) Backbone() *MemoryBackbone {
	return &MemoryBackbone{bus: bus}
}

// Fail makes every current and future operation on the bus return err,
// as if the server went away.
func (bus *MemoryBus) Fail(err error) {
	if err == nil {
		err = errors.New("bridge: memory bus failed")
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.failure = err
	for subscriber := range bus.subscribers {
		select {
		case subscriber.failed <- err:
		default:
		}
	}
}

// MemoryBackbone is one endpoint of a MemoryBus.
type MemoryBackbone struct {
	bus *MemoryBus

	mu     sync.Mutex
	closed bool
}

var _ Backbone = (*MemoryBackbone)(nil)

func (b *MemoryBackbone) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	b.bus.mu.Lock()
	defer b.bus.mu.Unlock()
	if b.bus.failure != nil {
		return b.bus.failure
	}
	for subscriber := range b.bus.subscribers {
		if !subscriber.channels[channel] {
			continue
		}
		// Delivery is best effort, like the real backbone: a
		// subscriber that falls this far behind loses messages.
		select {
		case subscriber.deliver <- Message{Channel: channel, Payload: append([]byte(nil), payload...)}:
		default:
		}
	}
	return nil
}

func (b *MemoryBackbone) Subscribe(ctx context.Context, channels []string, handler func(Message)) error {
	subscriber := &memorySubscriber{
		channels: make(map[string]bool, len(channels)),
		deliver:  make(chan Message, 1024),
		failed:   make(chan error, 1),
	}
	for _, channel := range channels {
		subscriber.channels[channel] = true
	}

	b.bus.mu.Lock()
	if b.bus.failure != nil {
		err := b.bus.failure
		b.bus.mu.Unlock()
		return err
	}
	b.bus.subscribers[subscriber] = struct{}{}
	b.bus.changed.Broadcast()
	b.bus.mu.Unlock()

	defer func() {
		b.bus.mu.Lock()
		delete(b.bus.subscribers, subscriber)
		b.bus.changed.Broadcast()
		b.bus.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-subscriber.failed:
			return err
		case message := <-subscriber.deliver:
			handler(message)
		}
	}
}

func (b *MemoryBackbone) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
