package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// queueSize bounds the per-subscription backlog. A slow consumer drops
// events rather than stalling the publisher.
const queueSize = 256

// memorySubscription is a subscription to a channel. Each subscription
// drains its own queue on a dedicated goroutine, which keeps delivery
// in publish order without blocking Publish.
type memorySubscription struct {
	broker  *MemoryBroker
	channel string
	handler Handler
	id      uint64
	queue   chan *Event
	done    chan struct{}
	once    sync.Once
}

func (s *memorySubscription) Unsubscribe() error {
	s.broker.unsubscribe(s.channel, s.id)
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *memorySubscription) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			s.handler(context.Background(), ev)
		}
	}
}

// MemoryBroker implements Broker using an in-memory map.
// Suitable for single-instance deployments.
type MemoryBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[uint64]*memorySubscription
	nextID      uint64
	closed      bool
	logger      *slog.Logger
}

// NewMemoryBroker creates a new in-memory broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subscribers: make(map[string]map[uint64]*memorySubscription),
		logger:      slog.Default().With("component", "pubsub"),
	}
}

// Publish sends an event to all subscribers of the channel. Events that
// do not fit a subscriber's queue are dropped (at-most-once delivery).
func (b *MemoryBroker) Publish(ctx context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	ev := &Event{Channel: channel, Event: event, Payload: data}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := make([]*memorySubscription, 0, len(b.subscribers[channel]))
	for _, sub := range b.subscribers[channel] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug("no subscribers for channel", "channel", channel, "event", event)
		return nil
	}

	for _, sub := range subs {
		select {
		case sub.queue <- ev:
		default:
			b.logger.Warn("subscriber queue full, dropping event",
				"channel", channel, "event", event, "sub_id", sub.id)
		}
	}
	return nil
}

// Subscribe registers a handler for the given channel
func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	b.nextID++
	sub := &memorySubscription{
		broker:  b,
		channel: channel,
		handler: handler,
		id:      b.nextID,
		queue:   make(chan *Event, queueSize),
		done:    make(chan struct{}),
	}

	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[uint64]*memorySubscription)
	}
	b.subscribers[channel][sub.id] = sub

	go sub.run()

	return sub, nil
}

func (b *MemoryBroker) unsubscribe(channel string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subscribers[channel]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.subscribers, channel)
		}
	}
}

// Close shuts down the broker and stops all delivery goroutines
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subscribers {
		for _, sub := range subs {
			sub.once.Do(func() { close(sub.done) })
		}
	}
	b.subscribers = make(map[string]map[uint64]*memorySubscription)
	return nil
}

// SubscriberCount returns the number of subscribers for a channel (useful for testing)
func (b *MemoryBroker) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[channel])
}

// ChannelCount returns the number of active channels (useful for testing)
func (b *MemoryBroker) ChannelCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
