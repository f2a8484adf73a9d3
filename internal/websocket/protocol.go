// Package websocket is the realtime gateway: clients attach to room
// channels and receive the events the room service publishes on them.
// The gateway is read-only from the client's point of view; the only
// client-initiated frames manage subscriptions.
package websocket

import (
	"encoding/json"
	"regexp"
)

// Client-initiated frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
)

// Gateway-initiated frame types.
const (
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameEvent        = "event"
	FrameError        = "error"
)

// ClientFrame is what a client may send over the socket.
type ClientFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// ServerFrame is what the gateway pushes to a client. Event and Payload
// are set on event frames, Code and Message on error frames.
type ServerFrame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

// roomChannelPattern is the only channel shape the gateway accepts:
// "room-" plus a 6-digit code with a nonzero first digit.
var roomChannelPattern = regexp.MustCompile(`^room-[1-9][0-9]{5}$`)

// ValidChannel reports whether a client may subscribe to the channel.
func ValidChannel(channel string) bool {
	return roomChannelPattern.MatchString(channel)
}

func errorFrame(code, message string) *ServerFrame {
	return &ServerFrame{Type: FrameError, Code: code, Message: message}
}
