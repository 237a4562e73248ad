package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yektayar/gateway/internal/common/cnst"
)

// Frame is one discrete message unit exchanged after the handshake. Both
// protocols carry the same JSON shape over their respective transports.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Inbound is the wire envelope of a client-sent frame. Data stays raw so
// handlers decide how to decode it.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Built-in event names.
const (
	EventPing            = "ping"
	EventPong            = "pong"
	EventStatus          = "status"
	EventStatusResponse  = "status_response"
	EventEcho            = "echo"
	EventEchoResponse    = "echo_response"
	EventInfo            = "info"
	EventInfoResponse    = "info_response"
	EventMessage         = "message"
	EventMessageReceived = "message_received"
	EventAIChat          = "ai:chat"
	EventAIStart         = "ai:response:start"
	EventAIChunk         = "ai:response:chunk"
	EventAIComplete      = "ai:response:complete"
	EventAIError         = "ai:response:error"
	EventConnected       = "connected"
	EventServerShutdown  = "server:shutdown"
	EventError           = "error"
)

// SessionRecord is the per-connection authenticated identity. The
// authentication facts are frozen at handshake time; only protocol-internal
// bookkeeping (room membership) changes afterwards.
type SessionRecord struct {
	SocketID     string
	SessionToken string
	UserID       string // empty for anonymous sessions
	IsLoggedIn   bool
	Protocol     cnst.Protocol
	Lang         string
}

// UserIDField returns the user id as it appears in frame payloads, where
// anonymous sessions are encoded as null.
func (r *SessionRecord) UserIDField() any {
	if r.UserID == "" {
		return nil
	}
	return r.UserID
}

// Sink accepts outbound frames for one connection. Frames sent through one
// sink are delivered to the client in send order.
type Sink interface {
	Send(ctx context.Context, f *Frame) error
}

// ChatMessage is one turn of AI conversation history, oldest first.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AIStreamer relays one chat request as an asynchronous sequence of
// ai:response frames pushed into the sink.
type AIStreamer interface {
	Stream(ctx context.Context, sink Sink, rec *SessionRecord, message string, history []ChatMessage)
}

// Timestamp returns the current time in the ISO 8601 shape clients expect.
func Timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}
