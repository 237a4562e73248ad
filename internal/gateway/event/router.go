package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yektayar/gateway/internal/common/cnst"
	"github.com/yektayar/gateway/pkg/utils"
	"github.com/yektayar/gateway/pkg/version"
	"go.uber.org/zap"
)

// Router maps inbound events to response frames. It is shared by every
// protocol adapter so behavior stays identical regardless of transport.
type Router struct {
	logger   *zap.Logger
	streamer AIStreamer
}

// NewRouter creates the shared event router
func NewRouter(logger *zap.Logger, streamer AIStreamer) *Router {
	return &Router{
		logger:   logger.Named("gateway.router"),
		streamer: streamer,
	}
}

// chatPayload is the expected shape of ai:chat frame data.
type chatPayload struct {
	Message             string        `json:"message"`
	ConversationHistory []ChatMessage `json:"conversationHistory"`
}

// Route handles one inbound frame and returns the synchronous response
// frames. ai:chat produces no synchronous frames; its response stream is
// pushed into the sink by the AI relay. ctx must span the connection
// lifetime so in-flight streams stop when the connection closes.
func (r *Router) Route(ctx context.Context, sink Sink, rec *SessionRecord, name string, data json.RawMessage) []*Frame {
	switch name {
	case EventPing:
		return []*Frame{{
			Event: EventPong,
			Data:  map[string]any{"timestamp": Timestamp()},
		}}

	case EventStatus:
		return []*Frame{{
			Event: EventStatusResponse,
			Data: map[string]any{
				"server": map[string]any{
					"name":      cnst.AppName,
					"version":   version.Get(),
					"status":    "running",
					"timestamp": Timestamp(),
				},
				"connection": map[string]any{
					"socketId":     rec.SocketID,
					"sessionToken": rec.SessionToken,
					"userId":       rec.UserIDField(),
					"isLoggedIn":   rec.IsLoggedIn,
					"protocol":     string(rec.Protocol),
				},
			},
		}}

	case EventEcho:
		return []*Frame{{
			Event: EventEchoResponse,
			Data: map[string]any{
				"received":  rawOrNil(data),
				"timestamp": Timestamp(),
				"socketId":  rec.SocketID,
			},
		}}

	case EventInfo:
		userID := rec.UserID
		if userID == "" {
			userID = "anonymous"
		}
		return []*Frame{{
			Event: EventInfoResponse,
			Data: map[string]any{
				"server": map[string]any{
					"name":        cnst.APIName,
					"version":     version.Get(),
					"description": "Backend API with real-time communication",
					"features": map[string]any{
						"rest":           true,
						"websocket":      true,
						"authentication": true,
						"realtime":       true,
						"protocol":       string(rec.Protocol),
					},
				},
				"websocket": map[string]any{
					"connected": true,
					"protocol":  string(rec.Protocol),
				},
				"session": map[string]any{
					"authenticated": rec.IsLoggedIn,
					"userId":        userID,
					"sessionToken":  utils.MaskToken(rec.SessionToken),
				},
				"timestamp": Timestamp(),
			},
		}}

	case EventMessage:
		r.logger.Info("message received",
			zap.String("socket_id", rec.SocketID))
		return []*Frame{{
			Event: EventMessageReceived,
			Data: map[string]any{
				"success":   true,
				"message":   "Message received successfully",
				"data":      rawOrNil(data),
				"timestamp": Timestamp(),
			},
		}}

	case EventAIChat:
		var payload chatPayload
		if len(data) > 0 {
			if err := json.Unmarshal(data, &payload); err != nil {
				r.logger.Warn("malformed ai:chat payload",
					zap.String("socket_id", rec.SocketID),
					zap.Error(err))
				return []*Frame{{
					Event: EventError,
					Data:  map[string]any{"error": "Failed to process message"},
				}}
			}
		}
		go r.streamer.Stream(ctx, sink, rec, payload.Message, payload.ConversationHistory)
		return nil

	default:
		r.logger.Warn("unknown event",
			zap.String("socket_id", rec.SocketID),
			zap.String("event", name))
		return []*Frame{{
			Event: EventError,
			Data:  map[string]any{"error": fmt.Sprintf("Unknown event type: %s", name)},
		}}
	}
}

// WelcomeFrame builds the unconditional connected frame sent before any
// client event.
func WelcomeFrame(rec *SessionRecord) *Frame {
	return &Frame{
		Event: EventConnected,
		Data: map[string]any{
			"message":    fmt.Sprintf("Connected to YektaYar server via %s", rec.Protocol),
			"socketId":   rec.SocketID,
			"isLoggedIn": rec.IsLoggedIn,
			"protocol":   string(rec.Protocol),
		},
	}
}

// ShutdownFrame tells connected clients the server is going away so they
// can back off before the transport drops.
func ShutdownFrame() *Frame {
	return &Frame{
		Event: EventServerShutdown,
		Data: map[string]any{
			"message":   "Server is shutting down",
			"timestamp": Timestamp(),
		},
	}
}

// FramingErrorFrame is the response to inbound bytes that are not valid
// frame JSON. The connection stays open.
func FramingErrorFrame() *Frame {
	return &Frame{
		Event: EventError,
		Data:  map[string]any{"error": "Failed to process message"},
	}
}

// rawOrNil embeds raw payload JSON back into a response, mapping an absent
// payload to null.
func rawOrNil(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return data
}
