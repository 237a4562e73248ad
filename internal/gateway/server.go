package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yektayar/gateway/internal/ai"
	"github.com/yektayar/gateway/internal/common/cnst"
	"github.com/yektayar/gateway/internal/common/config"
	"github.com/yektayar/gateway/internal/gateway/event"
	"github.com/yektayar/gateway/internal/gateway/registry"
	"github.com/yektayar/gateway/pkg/metrics"
	"github.com/yektayar/gateway/pkg/version"
	"go.uber.org/zap"
)

// Server is the realtime gateway: one listener serving both protocol
// families plus the plain HTTP surface around them.
type Server struct {
	logger   *zap.Logger
	cfg      *config.GatewayConfig
	router   *gin.Engine
	auth     *Authenticator
	registry *registry.Registry
	native   *NativeAdapter
	socketio *SocketIOAdapter
	relay    *ai.Relay
	client   *ai.Client
	metrics  *metrics.Metrics

	httpSrv    *http.Server
	shutdownCh chan struct{}
}

// NewServer wires the gateway together
func NewServer(
	logger *zap.Logger,
	cfg *config.GatewayConfig,
	auth *Authenticator,
	reg *registry.Registry,
	router *event.Router,
	relay *ai.Relay,
	client *ai.Client,
	m *metrics.Metrics,
) *Server {
	s := &Server{
		logger:     logger.Named("gateway"),
		cfg:        cfg,
		router:     gin.New(),
		auth:       auth,
		registry:   reg,
		native:     NewNativeAdapter(logger, reg, router, m),
		socketio:   NewSocketIOAdapter(logger, reg, router, auth, m),
		relay:      relay,
		client:     client,
		metrics:    m,
		shutdownCh: make(chan struct{}),
	}

	s.router.Use(s.loggerMiddleware())
	s.router.Use(s.recoveryMiddleware())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health_check", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Health check passed.",
		})
	})

	if s.cfg.Metrics.Enabled {
		s.router.GET("/metrics", gin.WrapH(s.metrics.HTTPHandler()))
	}

	s.router.GET(cnst.SocketIOPath, s.handleSocketIO)
	s.router.POST(cnst.SocketIOPath, s.handleSocketIO)

	apiGroup := s.router.Group("/api/ai")
	apiGroup.POST("/chat", s.handleSyncChat)
	apiGroup.GET("/status", s.handleAIStatus)

	// Everything else is either a native websocket upgrade (any path) or
	// the service info page.
	s.router.NoRoute(s.handleRoot)
}

func (s *Server) handleSocketIO(c *gin.Context) {
	s.socketio.HandleRequest(c.Writer, c.Request)
}

// handleRoot serves unmatched routes: native websocket upgrades on any path,
// the service info document on plain GETs.
func (s *Server) handleRoot(c *gin.Context) {
	switch Classify(c.Request) {
	case NativeWebSocket:
		rec, err := s.auth.Authenticate(c.Request, cnst.ProtocolNative)
		if err != nil {
			// Refused before any upgrade: plain 401, no websocket.
			c.String(http.StatusUnauthorized, err.Error())
			return
		}
		s.native.HandleUpgrade(c.Writer, c.Request, rec)

	case SocketIOStyle:
		s.socketio.HandleRequest(c.Writer, c.Request)

	default:
		if c.Request.Method == http.MethodGet {
			s.handleServiceInfo(c)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	}
}

// handleServiceInfo describes both realtime endpoints for anyone probing the
// server over plain HTTP.
func (s *Server) handleServiceInfo(c *gin.Context) {
	origin := "ws://" + c.Request.Host
	c.JSON(http.StatusOK, gin.H{
		"message": "YektaYar WebSocket Server",
		"version": version.Get(),
		"status":  "running",
		"protocols": gin.H{
			"socketio": gin.H{
				"path":        cnst.SocketIOPath,
				"description": "Socket.IO endpoint with authentication",
				"transports":  []string{"websocket", "polling"},
			},
			"websocket": gin.H{
				"path":           "/",
				"description":    "Native WebSocket endpoint with authentication",
				"authentication": "Required - Pass token in query parameter or Authorization header",
			},
		},
		"usage": gin.H{
			"socketio":  fmt.Sprintf("Connect to %s%s with Socket.IO client", origin, cnst.SocketIOPath),
			"websocket": fmt.Sprintf("Connect to %s/?token=YOUR_TOKEN with native WebSocket client", origin),
		},
	})
}

type syncChatRequest struct {
	Message             string              `json:"message" binding:"required"`
	ConversationHistory []event.ChatMessage `json:"conversationHistory"`
	Lang                string              `json:"lang"`
}

// handleSyncChat is the non-streaming REST chat path. Upstream failures
// degrade to a canned supportive reply, never a bare 5xx.
func (s *Server) handleSyncChat(c *gin.Context) {
	var req syncChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Message is required",
		})
		return
	}

	lang := req.Lang
	if lang == "" {
		lang = c.GetHeader(cnst.XLang)
	}

	reply, fellBack := s.relay.Generate(c.Request.Context(), lang, req.Message, req.ConversationHistory)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"response":  reply,
		"fallback":  fellBack,
		"timestamp": event.Timestamp(),
	})
}

func (s *Server) handleAIStatus(c *gin.Context) {
	status := "operational"
	if !s.client.Healthy(c.Request.Context()) {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"status":    status,
		"provider":  s.cfg.AI.Model,
		"timestamp": event.Timestamp(),
	})
}

// Handler exposes the gin engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the listener in the background and the periodic connection
// count log until shutdown.
func (s *Server) Start() {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		s.logger.Info("gateway listening",
			zap.String("addr", addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("failed to start server", zap.Error(err))
		}
	}()

	go s.connectionLogLoop()
}

// connectionLogLoop reports the live connection count once a minute.
func (s *Server) connectionLogLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.logger.Info("active connections",
				zap.Int("count", s.registry.Len()))
		case <-s.shutdownCh:
			return
		}
	}
}

// Shutdown stops the listener and tears down all live connections. Clients
// get a best-effort shutdown notice first so they can back off before
// reconnecting.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down gateway")
	close(s.shutdownCh)

	s.registry.Broadcast(ctx, event.ShutdownFrame())
	s.flushQueues(ctx)

	s.socketio.Close()
	for _, conn := range s.registry.List() {
		_ = s.registry.Unregister(conn.Record().SocketID)
	}

	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// flushQueues waits briefly for the per-connection writers to drain their
// outbound queues before the connections are torn down.
func (s *Server) flushQueues(ctx context.Context) {
	deadline := time.After(time.Second)
	for _, conn := range s.registry.List() {
		for conn.Pending() > 0 {
			select {
			case <-deadline:
				return
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}
