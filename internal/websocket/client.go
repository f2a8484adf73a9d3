package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/CinitSwift/divide/internal/pubsub"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Ping period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Subscription frames are tiny; anything bigger is a broken client.
	maxFrameSize = 1024

	// sendBuffer bounds the per-client backlog. Slow consumers drop
	// frames; the snapshot refetch path covers them.
	sendBuffer = 64
)

// Client is one gateway connection and its channel subscriptions.
type Client struct {
	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte
	userID  uuid.UUID
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	subs   map[string]pubsub.Subscription
}

func newClient(gateway *Gateway, conn *websocket.Conn, userID uuid.UUID, logger *slog.Logger) *Client {
	return &Client{
		gateway: gateway,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		userID:  userID,
		logger:  logger,
		subs:    make(map[string]pubsub.Subscription),
	}
}

// channels returns the channels the client is currently subscribed to.
func (c *Client) channels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		out = append(out, ch)
	}
	return out
}

// addSubscription stores sub under channel. Returns false if the client
// already holds a subscription for it.
func (c *Client) addSubscription(channel string, sub pubsub.Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[channel]; ok {
		return false
	}
	c.subs[channel] = sub
	return true
}

// removeSubscription detaches and returns the subscription for channel.
func (c *Client) removeSubscription(channel string) pubsub.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := c.subs[channel]
	delete(c.subs, channel)
	return sub
}

// subscriptionCount is used to enforce the per-client channel cap.
func (c *Client) subscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Send queues a frame, dropping it if the client cannot keep up or has
// already been torn down. Broker handlers keep firing briefly after
// unregister while their subscriptions drain; the closed check under
// the mutex keeps them off the closed channel.
func (c *Client) Send(frame *ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("marshal frame", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full, dropping frame",
			"user", c.userID, "frame", frame.Type)
	}
}

// closeSend shuts the send queue. Must happen under the same lock Send
// takes so no in-flight Send can race the close.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump consumes subscription frames until the connection drops, then
// tears the client down.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.gateway.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", "user", c.userID, "error", err)
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.Send(errorFrame("invalid_frame", "frame is not valid JSON"))
			continue
		}
		c.gateway.handleFrame(ctx, c, &frame)
	}
}

// writePump drains the send queue and keeps the connection alive.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
