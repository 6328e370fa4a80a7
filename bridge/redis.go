// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configure a RedisBackbone.
type RedisOptions struct {
	Address  string
	Password string
	DB       int

	// ConnectTimeout bounds the PING that proves the server is
	// reachable. Zero means 5 seconds.
	ConnectTimeout time.Duration
}

// RedisBackbone carries frames over Redis pub/sub.
type RedisBackbone struct {
	client *redis.Client
}

var _ Backbone = (*RedisBackbone)(nil)

// DialRedis connects to Redis and proves the connection with a PING.
// The returned error means the server could not be reached within the
// timeout; no client is left open.
func DialRedis(ctx context.Context, options RedisOptions) (*RedisBackbone, error) {
	timeout := options.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        options.Address,
		Password:    options.Password,
		DB:          options.DB,
		DialTimeout: timeout,
		// One attempt: a backbone that cannot answer now is treated as
		// absent, not retried.
		MaxRetries: -1,
	})

	pingContext, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingContext).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", options.Address, err)
	}
	return &RedisBackbone{client: client}, nil
}

// Connect returns a RedisBackbone when Redis answers and Noop when it
// does not. It never fails: an unreachable backbone is logged and the
// process runs on its own.
func Connect(ctx context.Context, options RedisOptions, logger *slog.Logger) Backbone {
	backbone, err := DialRedis(ctx, options)
	if err != nil {
		logger.Warn("bridge backbone unreachable; running in single-process mode",
			"address", options.Address,
			"error", err,
		)
		return Noop{}
	}
	logger.Info("bridge backbone connected", "address", options.Address)
	return backbone
}

func (b *RedisBackbone) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

// Subscribe reads messages one at a time instead of using the
// client's channel helper, which reconnects silently. A read error is
// a backbone failure.
func (b *RedisBackbone) Subscribe(ctx context.Context, channels []string, handler func(Message)) error {
	pubsub := b.client.Subscribe(ctx, channels...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribing to %v: %w", channels, err)
	}

	for {
		message, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, redis.ErrClosed) {
				return ErrClosed
			}
			return fmt.Errorf("receiving from redis: %w", err)
		}
		handler(Message{Channel: message.Channel, Payload: []byte(message.Payload)})
	}
}

func (b *RedisBackbone) Close() error {
	return b.client.Close()
}
