package gateway

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"
	"github.com/yektayar/gateway/internal/common/cnst"
	"github.com/yektayar/gateway/internal/gateway/event"
	"github.com/yektayar/gateway/internal/gateway/registry"
	"github.com/yektayar/gateway/pkg/metrics"
	"go.uber.org/zap"
)

const (
	sioPingInterval = 25 * time.Second
	sioPingTimeout  = 20 * time.Second
	sioMaxPayload   = 1 << 20
)

// SocketIOAdapter serves the legacy Engine.IO v4 based protocol: websocket
// transport, long-polling fallback and the polling-to-websocket probe
// upgrade. Authentication happens before the open packet is issued, so
// unauthenticated clients never get a transport at all.
type SocketIOAdapter struct {
	logger   *zap.Logger
	registry *registry.Registry
	router   *event.Router
	auth     *Authenticator
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*sioSession

	stopOnce sync.Once
	stop     chan struct{}
}

// NewSocketIOAdapter creates the legacy protocol adapter and starts its
// stale-session janitor.
func NewSocketIOAdapter(logger *zap.Logger, reg *registry.Registry, router *event.Router, auth *Authenticator, m *metrics.Metrics) *SocketIOAdapter {
	a := &SocketIOAdapter{
		logger:   logger.Named("gateway.socketio"),
		registry: reg,
		router:   router,
		auth:     auth,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*sioSession),
		stop:     make(chan struct{}),
	}
	go a.janitor()
	return a
}

// Name returns the protocol tag
func (a *SocketIOAdapter) Name() cnst.Protocol {
	return cnst.ProtocolSocketIO
}

// Close tears down every live session. Used on server shutdown.
func (a *SocketIOAdapter) Close() {
	a.stopOnce.Do(func() { close(a.stop) })
	for _, sess := range a.snapshot() {
		sess.teardown()
	}
}

// HandleRequest dispatches one request on the Socket.IO path: handshake,
// long-poll, packet delivery or websocket (direct or probe upgrade).
func (a *SocketIOAdapter) HandleRequest(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")

	if isWebSocketUpgrade(r) {
		if sid == "" {
			a.handleDirectWebSocket(w, r)
			return
		}
		sess, ok := a.lookup(sid)
		if !ok {
			http.Error(w, "Unknown session", http.StatusBadRequest)
			return
		}
		a.handleProbeUpgrade(w, r, sess)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if sid == "" {
			a.handlePollingHandshake(w, r)
			return
		}
		sess, ok := a.lookup(sid)
		if !ok {
			http.Error(w, "Unknown session", http.StatusBadRequest)
			return
		}
		a.handlePoll(w, r, sess)

	case http.MethodPost:
		sess, ok := a.lookup(sid)
		if !ok {
			http.Error(w, "Unknown session", http.StatusBadRequest)
			return
		}
		a.handleDeliver(w, r, sess)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePollingHandshake authenticates and opens a long-polling session.
func (a *SocketIOAdapter) handlePollingHandshake(w http.ResponseWriter, r *http.Request) {
	rec, err := a.auth.Authenticate(r, cnst.ProtocolSocketIO)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	sess := a.newSession(rec)
	open, err := encodeOpen(openPayload{
		SID:          sess.sid,
		Upgrades:     []string{"websocket"},
		PingInterval: sioPingInterval.Milliseconds(),
		PingTimeout:  sioPingTimeout.Milliseconds(),
		MaxPayload:   sioMaxPayload,
	})
	if err != nil {
		sess.teardown()
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writePollingBody(w, open)
}

// handlePoll serves one long-poll cycle: it blocks until outbound packets
// arrive, the server-side ping is due, or the session moves to websocket.
func (a *SocketIOAdapter) handlePoll(w http.ResponseWriter, r *http.Request, sess *sioSession) {
	sess.touch()

	if sess.isUpgraded() {
		writePollingBody(w, string(eioNoop))
		return
	}

	timer := time.NewTimer(sioPingInterval)
	defer timer.Stop()

	select {
	case first := <-sess.out:
		packets := []string{first}
		for len(packets) < 16 {
			select {
			case pkt := <-sess.out:
				packets = append(packets, pkt)
			default:
				writePollingBody(w, strings.Join(packets, pollingSeparator))
				return
			}
		}
		writePollingBody(w, strings.Join(packets, pollingSeparator))

	case <-timer.C:
		writePollingBody(w, string(eioPing))

	case <-sess.pollWake:
		writePollingBody(w, string(eioNoop))

	case <-sess.done:
		writePollingBody(w, string(eioClose))

	case <-r.Context().Done():
	}
}

// handleDeliver processes client-to-server packets posted by the polling
// transport.
func (a *SocketIOAdapter) handleDeliver(w http.ResponseWriter, r *http.Request, sess *sioSession) {
	sess.touch()

	body, err := io.ReadAll(io.LimitReader(r.Body, sioMaxPayload))
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	for _, pkt := range splitPollingBody(string(body)) {
		a.handlePacket(sess.ctx, sess, pkt, func(reply string) {
			// r.Context() unblocks deliveries abandoned by a client that
			// stopped polling with a full outbound queue.
			select {
			case sess.out <- reply:
			case <-sess.done:
			case <-r.Context().Done():
			}
		})
	}

	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte("ok"))
}

// handleDirectWebSocket serves clients that start on the websocket transport
// without a polling handshake first.
func (a *SocketIOAdapter) handleDirectWebSocket(w http.ResponseWriter, r *http.Request) {
	rec, err := a.auth.Authenticate(r, cnst.ProtocolSocketIO)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("socketio websocket upgrade failed",
			zap.String("socket_id", rec.SocketID),
			zap.Error(err))
		return
	}

	sess := a.newSession(rec)
	sess.setUpgraded()

	open, err := encodeOpen(openPayload{
		SID:          sess.sid,
		Upgrades:     []string{},
		PingInterval: sioPingInterval.Milliseconds(),
		PingTimeout:  sioPingTimeout.Milliseconds(),
		MaxPayload:   sioMaxPayload,
	})
	if err != nil {
		sess.teardown()
		_ = ws.Close()
		return
	}
	if err := writeWS(ws, open); err != nil {
		sess.teardown()
		_ = ws.Close()
		return
	}

	a.serveWebSocket(ws, sess)
}

// handleProbeUpgrade moves an existing polling session onto websocket:
// 2probe/3probe exchange, then the upgrade packet.
func (a *SocketIOAdapter) handleProbeUpgrade(w http.ResponseWriter, r *http.Request, sess *sioSession) {
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("probe upgrade failed",
			zap.String("sid", sess.sid),
			zap.Error(err))
		return
	}

	_ = ws.SetReadDeadline(time.Now().Add(sioPingInterval + sioPingTimeout))
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			_ = ws.Close()
			return
		}
		pkt := string(payload)

		if pkt == string(eioPing)+"probe" {
			if err := writeWS(ws, string(eioPong)+"probe"); err != nil {
				_ = ws.Close()
				return
			}
			continue
		}
		if pkt == string(eioUpgrade) {
			sess.setUpgraded()
			sess.wakePoll()
			break
		}

		a.logger.Debug("unexpected packet during probe",
			zap.String("sid", sess.sid),
			zap.String("packet", pkt))
		_ = ws.Close()
		return
	}

	a.serveWebSocket(ws, sess)
}

// serveWebSocket runs the websocket transport for a session until either
// side closes it: one writer draining outbound packets plus the server-side
// ping, one reader feeding packets into the shared packet handler.
func (a *SocketIOAdapter) serveWebSocket(ws *websocket.Conn, sess *sioSession) {
	defer func() {
		sess.teardown()
		_ = ws.Close()
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(sioPingInterval)
		defer ticker.Stop()
		for {
			select {
			case pkt := <-sess.out:
				if err := writeWS(ws, pkt); err != nil {
					_ = ws.Close()
					return
				}
			case <-ticker.C:
				if err := writeWS(ws, string(eioPing)); err != nil {
					_ = ws.Close()
					return
				}
			case <-sess.done:
				return
			}
		}
	}()

	ws.SetReadLimit(sioMaxPayload)
	_ = ws.SetReadDeadline(time.Now().Add(sioPingInterval + sioPingTimeout))

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			break
		}
		sess.touch()
		_ = ws.SetReadDeadline(time.Now().Add(sioPingInterval + sioPingTimeout))

		a.handlePacket(sess.ctx, sess, string(payload), func(reply string) {
			select {
			case sess.out <- reply:
			case <-sess.done:
			}
		})
	}

	sess.teardown()
	<-writerDone
}

// handlePacket interprets one Engine.IO packet from the client, regardless
// of transport. Replies are handed to the transport through enqueue.
func (a *SocketIOAdapter) handlePacket(ctx context.Context, sess *sioSession, pkt string, enqueue func(string)) {
	if pkt == "" {
		return
	}
	a.metrics.FrameIn(string(cnst.ProtocolSocketIO))

	switch pkt[0] {
	case eioPing:
		enqueue(string(eioPong) + pkt[1:])

	case eioPong:
		// server ping acknowledged, touch already happened

	case eioClose:
		sess.teardown()

	case eioMessage:
		a.handleSocketIOPacket(ctx, sess, pkt[1:], enqueue)

	default:
		a.logger.Debug("ignoring unsupported packet",
			zap.String("sid", sess.sid),
			zap.String("packet", truncate(pkt, 32)))
	}
}

// handleSocketIOPacket interprets the Socket.IO layer inside a message
// packet: namespace connect, disconnect or an event.
func (a *SocketIOAdapter) handleSocketIOPacket(ctx context.Context, sess *sioSession, body string, enqueue func(string)) {
	if body == "" {
		return
	}

	switch body[0] {
	case sioConnect:
		if err := a.connectSession(sess); err != nil {
			a.logger.Error("socketio connect failed",
				zap.String("sid", sess.sid),
				zap.Error(err))
			enqueue(encodeConnectError("Connection failed"))
			return
		}
		enqueue(encodeConnectAck(sess.sid))
		sess.sendFrame(ctx, event.WelcomeFrame(sess.rec))

	case sioDisconnect:
		sess.teardown()

	case sioEvent:
		conn := sess.connection()
		if conn == nil {
			a.logger.Debug("event before connect, dropping",
				zap.String("sid", sess.sid))
			return
		}

		name, data, err := decodeEventPacket(body[1:])
		if err != nil {
			a.logger.Debug("malformed event packet",
				zap.String("sid", sess.sid),
				zap.Error(err))
			sess.sendFrame(ctx, event.FramingErrorFrame())
			return
		}

		a.metrics.Event(name)
		for _, f := range a.router.Route(ctx, conn, sess.rec, name, data) {
			sess.sendFrame(ctx, f)
		}

	default:
		a.logger.Debug("ignoring socketio packet type",
			zap.String("sid", sess.sid),
			zap.String("packet", truncate(body, 32)))
	}
}

// connectSession registers the session in the connection registry, joins the
// legacy rooms and starts the frame pump.
func (a *SocketIOAdapter) connectSession(sess *sioSession) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.conn != nil {
		return nil // duplicate connect packet
	}

	conn, err := a.registry.Register(sess.rec)
	if err != nil {
		return err
	}
	conn.Join("session:" + sess.rec.SessionToken)
	if sess.rec.UserID != "" {
		conn.Join("user:" + sess.rec.UserID)
	}

	sess.conn = conn
	a.metrics.ConnOpened(string(cnst.ProtocolSocketIO))

	go sess.pump()

	a.logger.Info("socketio client connected",
		zap.String("sid", sess.sid),
		zap.String("socket_id", sess.rec.SocketID),
		zap.Bool("is_logged_in", sess.rec.IsLoggedIn))
	return nil
}

func (a *SocketIOAdapter) newSession(rec *event.SessionRecord) *sioSession {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &sioSession{
		sid:      uuid.NewString(),
		rec:      rec,
		adapter:  a,
		ctx:      ctx,
		cancel:   cancel,
		out:      make(chan string, 256),
		pollWake: make(chan struct{}),
		done:     make(chan struct{}),
		lastSeen: time.Now(),
	}
	a.mu.Lock()
	a.sessions[sess.sid] = sess
	a.mu.Unlock()
	return sess
}

func (a *SocketIOAdapter) lookup(sid string) (*sioSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[sid]
	return sess, ok
}

func (a *SocketIOAdapter) dropSession(sess *sioSession) {
	a.mu.Lock()
	delete(a.sessions, sess.sid)
	a.mu.Unlock()
}

func (a *SocketIOAdapter) snapshot() []*sioSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*sioSession, 0, len(a.sessions))
	for _, sess := range a.sessions {
		out = append(out, sess)
	}
	return out
}

// janitor reaps polling sessions whose client silently went away.
func (a *SocketIOAdapter) janitor() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(-(sioPingInterval + sioPingTimeout))
			for _, sess := range a.snapshot() {
				if sess.seenBefore(deadline) {
					a.logger.Debug("reaping stale session",
						zap.String("sid", sess.sid))
					sess.teardown()
				}
			}
		case <-a.stop:
			return
		}
	}
}

// sioSession is one Engine.IO session across its transports. rec and sid are
// frozen at handshake; conn appears on the Socket.IO connect packet.
type sioSession struct {
	sid     string
	rec     *event.SessionRecord
	adapter *SocketIOAdapter

	// ctx spans the whole session across transport switches; AI streams
	// started from any transport live until teardown.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	conn     *registry.Conn
	upgraded bool
	lastSeen time.Time

	out      chan string
	pollWake chan struct{}
	wakeOnce sync.Once

	done      chan struct{}
	closeOnce sync.Once
}

// pump is the single writer ordering frames onto the transport: it drains
// the connection's frame queue and encodes each frame as an event packet.
func (s *sioSession) pump() {
	conn := s.connection()
	for {
		select {
		case f := <-conn.EventQueue():
			pkt, err := encodeEventPacket(f)
			if err != nil {
				s.adapter.logger.Error("failed to encode frame",
					zap.String("sid", s.sid),
					zap.String("event", f.Event),
					zap.Error(err))
				continue
			}
			select {
			case s.out <- pkt:
				s.adapter.metrics.FrameOut(string(cnst.ProtocolSocketIO))
			case <-s.done:
				return
			}
		case <-conn.Done():
			return
		case <-s.done:
			return
		}
	}
}

func (s *sioSession) sendFrame(ctx context.Context, f *event.Frame) {
	conn := s.connection()
	if conn == nil {
		return
	}
	if err := conn.Send(ctx, f); err != nil {
		s.adapter.logger.Warn("dropping outbound frame",
			zap.String("sid", s.sid),
			zap.String("event", f.Event),
			zap.Error(err))
	}
}

func (s *sioSession) connection() *registry.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *sioSession) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *sioSession) seenBefore(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen.Before(t)
}

func (s *sioSession) setUpgraded() {
	s.mu.Lock()
	s.upgraded = true
	s.mu.Unlock()
}

func (s *sioSession) isUpgraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upgraded
}

// wakePoll releases a pending long-poll with a noop so the client can switch
// transports.
func (s *sioSession) wakePoll() {
	s.wakeOnce.Do(func() { close(s.pollWake) })
}

// teardown closes the session exactly once: registry entry, metrics, map.
func (s *sioSession) teardown() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		if conn != nil {
			_ = s.adapter.registry.Unregister(s.rec.SocketID)
			s.adapter.metrics.ConnClosed(string(cnst.ProtocolSocketIO))
		}
		s.adapter.dropSession(s)

		s.adapter.logger.Info("socketio session closed",
			zap.String("sid", s.sid),
			zap.String("socket_id", s.rec.SocketID))
	})
}

func writePollingBody(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	_, _ = w.Write([]byte(body))
}

func writeWS(ws *websocket.Conn, pkt string) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, []byte(pkt))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
