package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker on Redis pub/sub for horizontal scaling.
// Events published on one instance reach subscribers on all instances.
type RedisBroker struct {
	client        *redis.Client
	mu            sync.RWMutex
	subscriptions map[uint64]*redisSubscription
	nextID        atomic.Uint64
	closed        bool
	logger        *slog.Logger
}

// redisSubscription manages a single subscription to a Redis channel
type redisSubscription struct {
	broker  *RedisBroker
	id      uint64
	channel string
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
	handler Handler
}

func (s *redisSubscription) Unsubscribe() error {
	s.cancel()
	if s.pubsub != nil {
		s.pubsub.Close()
	}
	s.broker.removeSub(s.id)
	return nil
}

// NewRedisBroker creates a Redis-backed broker.
// url should be in the format: redis://host:port or redis://:password@host:port
func NewRedisBroker(url string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger := slog.Default().With("component", "pubsub", "backend", "redis")
	logger.Info("connected to Redis", "addr", opts.Addr)

	return &RedisBroker{
		client:        client,
		subscriptions: make(map[uint64]*redisSubscription),
		logger:        logger,
	}, nil
}

// Publish sends an event to all subscribers of the channel across all instances.
func (b *RedisBroker) Publish(ctx context.Context, channel, event string, payload any) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	b.mu.RUnlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	ev := &Event{Channel: channel, Event: event, Payload: data}
	wire, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	result := b.client.Publish(ctx, channel, wire)
	if err := result.Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}

	if result.Val() == 0 {
		b.logger.Debug("no subscribers for channel", "channel", channel, "event", event)
	}
	return nil
}

// Subscribe registers a handler for events on the given channel.
// The subscription spans all instances sharing this Redis.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}

	redisPubSub := b.client.Subscribe(ctx, channel)

	// Wait for subscription to be ready
	if _, err := redisPubSub.Receive(ctx); err != nil {
		b.mu.Unlock()
		redisPubSub.Close()
		return nil, fmt.Errorf("subscribe to redis channel: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())

	id := b.nextID.Add(1)
	sub := &redisSubscription{
		broker:  b,
		id:      id,
		channel: channel,
		pubsub:  redisPubSub,
		cancel:  cancel,
		handler: handler,
	}

	b.subscriptions[id] = sub
	b.mu.Unlock()

	go b.receiveEvents(subCtx, sub)

	b.logger.Debug("subscribed to channel", "channel", channel, "sub_id", id)

	return sub, nil
}

// receiveEvents listens on the Redis channel and dispatches to the handler.
// The handler runs inline so events keep their publish order.
func (b *RedisBroker) receiveEvents(ctx context.Context, sub *redisSubscription) {
	ch := sub.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case redisMsg, ok := <-ch:
			if !ok {
				return
			}

			var ev Event
			if err := json.Unmarshal([]byte(redisMsg.Payload), &ev); err != nil {
				b.logger.Error("failed to unmarshal event", "error", err, "channel", sub.channel)
				continue
			}

			sub.handler(ctx, &ev)
		}
	}
}

func (b *RedisBroker) removeSub(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscriptions, id)
}

// Close shuts down the broker and all subscriptions
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, sub := range b.subscriptions {
		sub.cancel()
		if sub.pubsub != nil {
			sub.pubsub.Close()
		}
	}
	b.subscriptions = make(map[uint64]*redisSubscription)

	if err := b.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}

	b.logger.Info("redis broker closed")
	return nil
}

// SubscriberCount returns the number of local subscribers for a channel.
// Note: this only counts subscribers on this instance, not across the cluster.
func (b *RedisBroker) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, sub := range b.subscriptions {
		if sub.channel == channel {
			count++
		}
	}
	return count
}
