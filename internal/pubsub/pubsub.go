// Package pubsub fans room events out to channel subscribers. The default
// backend is an in-process broker; Redis and a Pusher-compatible HTTP
// backend cover multi-instance deployments.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrClosed is returned by operations on a closed publisher or broker.
var ErrClosed = errors.New("pubsub: closed")

// Event is one published record on a channel.
type Event struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Handler is a callback for processing events. Broker backends invoke it
// on the subscription's delivery goroutine in publish order, so handlers
// must not block.
type Handler func(ctx context.Context, ev *Event)

// Subscription represents an active subscription that can be closed
type Subscription interface {
	// Unsubscribe removes the subscription
	Unsubscribe() error
}

// Publisher is the write side the room service depends on. Delivery is
// best-effort at-most-once.
type Publisher interface {
	// Publish marshals payload and delivers it to all current
	// subscribers of the channel.
	Publish(ctx context.Context, channel, event string, payload any) error

	// Close shuts down the publisher and releases resources.
	Close() error
}

// Broker is a Publisher whose events can also be consumed in-process.
// All implementations must be safe for concurrent use.
type Broker interface {
	Publisher

	// Subscribe registers a handler for events on the given channel.
	// Late subscribers do not receive past events.
	Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error)
}

// ChannelBuilder helps construct consistent channel names
type ChannelBuilder struct{}

// Room returns the channel for a room code
func (c ChannelBuilder) Room(code string) string {
	return "room-" + code
}

// Channels is a helper for building channel names
var Channels = ChannelBuilder{}
