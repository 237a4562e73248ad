package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yektayar/gateway/internal/common/cnst"
	"github.com/yektayar/gateway/internal/gateway/event"
	"github.com/yektayar/gateway/internal/gateway/registry"
	"github.com/yektayar/gateway/pkg/metrics"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 1 << 20
)

// NativeAdapter serves plain RFC 6455 connections speaking the JSON
// {event, data} envelope directly.
type NativeAdapter struct {
	logger   *zap.Logger
	registry *registry.Registry
	router   *event.Router
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

// NewNativeAdapter creates the native websocket protocol adapter
func NewNativeAdapter(logger *zap.Logger, reg *registry.Registry, router *event.Router, m *metrics.Metrics) *NativeAdapter {
	return &NativeAdapter{
		logger:   logger.Named("gateway.native"),
		registry: reg,
		router:   router,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from the app origins; the reverse
			// proxy in front enforces origin policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Name returns the protocol tag
func (a *NativeAdapter) Name() cnst.Protocol {
	return cnst.ProtocolNative
}

// HandleUpgrade upgrades an already-authenticated request and runs the
// connection until either side closes it. The session record must come from
// the handshake authenticator.
func (a *NativeAdapter) HandleUpgrade(w http.ResponseWriter, r *http.Request, rec *event.SessionRecord) {
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed",
			zap.String("socket_id", rec.SocketID),
			zap.Error(err))
		return
	}

	conn, err := a.registry.Register(rec)
	if err != nil {
		a.logger.Error("failed to register connection",
			zap.String("socket_id", rec.SocketID),
			zap.Error(err))
		_ = ws.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.metrics.ConnOpened(string(cnst.ProtocolNative))

	defer func() {
		cancel()
		_ = a.registry.Unregister(rec.SocketID)
		_ = ws.Close()
		a.metrics.ConnClosed(string(cnst.ProtocolNative))
		a.logger.Info("native connection closed",
			zap.String("socket_id", rec.SocketID))
	}()

	go a.writeLoop(ctx, ws, conn)

	// The welcome frame goes through the queue like any other frame so the
	// single writer preserves ordering.
	if err := conn.Send(ctx, event.WelcomeFrame(rec)); err != nil {
		a.logger.Warn("failed to queue welcome frame",
			zap.String("socket_id", rec.SocketID),
			zap.Error(err))
		return
	}

	a.readLoop(ctx, ws, conn)
}

func (a *NativeAdapter) readLoop(ctx context.Context, ws *websocket.Conn, conn *registry.Conn) {
	rec := conn.Record()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.logger.Warn("unexpected close",
					zap.String("socket_id", rec.SocketID),
					zap.Error(err))
			}
			return
		}
		a.metrics.FrameIn(string(cnst.ProtocolNative))

		var in event.Inbound
		if err := json.Unmarshal(payload, &in); err != nil || in.Event == "" {
			a.logger.Debug("malformed inbound frame",
				zap.String("socket_id", rec.SocketID),
				zap.Error(err))
			a.send(ctx, conn, event.FramingErrorFrame())
			continue
		}

		a.metrics.Event(in.Event)
		for _, f := range a.router.Route(ctx, conn, rec, in.Event, in.Data) {
			a.send(ctx, conn, f)
		}
	}
}

// writeLoop is the single writer for the connection. It drains the outbound
// queue in order and owns all calls to WriteMessage.
func (a *NativeAdapter) writeLoop(ctx context.Context, ws *websocket.Conn, conn *registry.Conn) {
	rec := conn.Record()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f := <-conn.EventQueue():
			payload, err := json.Marshal(f)
			if err != nil {
				a.logger.Error("failed to encode frame",
					zap.String("socket_id", rec.SocketID),
					zap.String("event", f.Event),
					zap.Error(err))
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				a.logger.Debug("write failed, dropping connection",
					zap.String("socket_id", rec.SocketID),
					zap.Error(err))
				_ = ws.Close()
				return
			}
			a.metrics.FrameOut(string(cnst.ProtocolNative))

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				return
			}

		case <-conn.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (a *NativeAdapter) send(ctx context.Context, conn *registry.Conn, f *event.Frame) {
	if err := conn.Send(ctx, f); err != nil {
		a.logger.Warn("dropping outbound frame",
			zap.String("socket_id", conn.Record().SocketID),
			zap.String("event", f.Event),
			zap.Error(err))
	}
}
