package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/CinitSwift/divide/internal/metrics"
	"github.com/CinitSwift/divide/internal/pubsub"
)

// maxChannelsPerClient caps how many rooms one connection may watch. A
// player is in at most one room; a small multiple leaves headroom for
// spectating.
const maxChannelsPerClient = 8

// Gateway bridges the in-process broker to websocket clients. Each
// subscribe frame turns into a broker subscription whose handler fans
// the event into the client's send queue; late subscribers see nothing
// that was published before they attached.
type Gateway struct {
	broker pubsub.Broker
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
}

func NewGateway(broker pubsub.Broker, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		broker:  broker,
		logger:  logger.With("component", "websocket"),
		clients: make(map[*Client]bool),
	}
}

func (g *Gateway) register(c *Client) {
	g.mu.Lock()
	g.clients[c] = true
	g.mu.Unlock()
	metrics.ActiveWebSocketConnections.Inc()
}

func (g *Gateway) unregister(c *Client) {
	g.mu.Lock()
	if !g.clients[c] {
		g.mu.Unlock()
		return
	}
	delete(g.clients, c)
	g.mu.Unlock()

	for _, channel := range c.channels() {
		if sub := c.removeSubscription(channel); sub != nil {
			_ = sub.Unsubscribe()
		}
	}
	c.closeSend()
	metrics.ActiveWebSocketConnections.Dec()
	g.logger.Debug("client disconnected", "user", c.userID)
}

// handleFrame dispatches one client frame.
func (g *Gateway) handleFrame(ctx context.Context, c *Client, frame *ClientFrame) {
	switch frame.Type {
	case FrameSubscribe:
		g.subscribe(ctx, c, frame.Channel)
	case FrameUnsubscribe:
		g.unsubscribeChannel(c, frame.Channel)
	default:
		c.Send(errorFrame("unknown_frame", "unknown frame type: "+frame.Type))
	}
}

// subscribe attaches the client to a room channel.
func (g *Gateway) subscribe(ctx context.Context, c *Client, channel string) {
	if !ValidChannel(channel) {
		c.Send(errorFrame("invalid_channel", "channel must look like room-123456"))
		return
	}
	if c.subscriptionCount() >= maxChannelsPerClient {
		c.Send(errorFrame("too_many_channels", "subscription limit reached"))
		return
	}

	sub, err := g.broker.Subscribe(ctx, channel, func(_ context.Context, ev *pubsub.Event) {
		c.Send(&ServerFrame{
			Type:    FrameEvent,
			Channel: ev.Channel,
			Event:   ev.Event,
			Payload: ev.Payload,
		})
	})
	if err != nil {
		g.logger.Error("broker subscribe failed", "channel", channel, "error", err)
		c.Send(errorFrame("subscribe_failed", "could not subscribe"))
		return
	}

	if !c.addSubscription(channel, sub) {
		// Already attached; keep the original subscription.
		_ = sub.Unsubscribe()
	}
	c.Send(&ServerFrame{Type: FrameSubscribed, Channel: channel})
	g.logger.Debug("client subscribed", "user", c.userID, "channel", channel)
}

func (g *Gateway) unsubscribeChannel(c *Client, channel string) {
	if sub := c.removeSubscription(channel); sub != nil {
		_ = sub.Unsubscribe()
	}
	c.Send(&ServerFrame{Type: FrameUnsubscribed, Channel: channel})
}

// ClientCount reports connected clients. Used by tests.
func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}
