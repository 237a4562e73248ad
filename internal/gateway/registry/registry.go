package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/yektayar/gateway/internal/gateway/event"
	"go.uber.org/zap"
)

// queueSize bounds the per-connection outbound frame queue. The transport's
// own buffering is the only queuing policy beyond this.
const queueSize = 256

// ErrConnNotFound is returned when a socket id has no live connection
var ErrConnNotFound = fmt.Errorf("connection not found")

// ErrQueueFull is returned when a slow client cannot keep up with its
// outbound frame queue.
var ErrQueueFull = fmt.Errorf("outbound queue is full")

// Conn is one live gateway connection. The frame queue preserves enqueue
// order; a single writer goroutine per connection drains it.
type Conn struct {
	rec   *event.SessionRecord
	queue chan *event.Frame

	closeOnce sync.Once
	done      chan struct{}

	mu    sync.Mutex
	rooms map[string]struct{}
}

var _ event.Sink = (*Conn)(nil)

// Record returns the session record frozen at handshake time.
func (c *Conn) Record() *event.SessionRecord {
	return c.rec
}

// EventQueue returns the read-only outbound frame channel.
func (c *Conn) EventQueue() <-chan *event.Frame {
	return c.queue
}

// Done is closed when the connection has been torn down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Pending reports how many queued outbound frames the connection's writer
// has not picked up yet.
func (c *Conn) Pending() int {
	return len(c.queue)
}

// Send enqueues one outbound frame. It fails once teardown began or when
// the client is too slow to drain its queue.
func (c *Conn) Send(ctx context.Context, f *event.Frame) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection closed")
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case c.queue <- f:
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed")
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Close marks the connection as torn down. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Join adds the connection to a room. Room membership is legacy-protocol
// bookkeeping and the only mutable part of a connection after handshake.
func (c *Conn) Join(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = struct{}{}
}

// InRoom reports room membership.
func (c *Conn) InRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

// Rooms returns a snapshot of the rooms this connection joined.
func (c *Conn) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Registry holds one Conn per live connection. Entries are owned by the
// connection that created them and removed by the same connection's close
// handler.
type Registry struct {
	logger *zap.Logger
	mu     sync.RWMutex
	conns  map[string]*Conn
}

// New creates an empty connection registry
func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger.Named("gateway.registry"),
		conns:  make(map[string]*Conn),
	}
}

// Register creates and tracks a connection for the session record.
func (r *Registry) Register(rec *event.SessionRecord) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[rec.SocketID]; exists {
		return nil, fmt.Errorf("connection already exists: %s", rec.SocketID)
	}

	conn := &Conn{
		rec:   rec,
		queue: make(chan *event.Frame, queueSize),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
	}
	r.conns[rec.SocketID] = conn

	return conn, nil
}

// Get retrieves a live connection by socket id.
func (r *Registry) Get(socketID string) (*Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[socketID]
	if !ok {
		return nil, ErrConnNotFound
	}
	return conn, nil
}

// Unregister removes and closes a connection.
func (r *Registry) Unregister(socketID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[socketID]
	if !ok {
		return ErrConnNotFound
	}

	conn.Close()
	delete(r.conns, socketID)
	return nil
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// List returns a snapshot of all live connections.
func (r *Registry) List() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// EmitToSession sends a frame to every connection holding the session token.
// It backs server-initiated pushes such as session revocation notices.
func (r *Registry) EmitToSession(ctx context.Context, token string, f *event.Frame) {
	for _, conn := range r.List() {
		if conn.Record().SessionToken != token {
			continue
		}
		r.emit(ctx, conn, f)
	}
}

// EmitToUser sends a frame to every connection of the user, covering all of
// their open tabs and devices. It backs per-user notification pushes.
func (r *Registry) EmitToUser(ctx context.Context, userID string, f *event.Frame) {
	if userID == "" {
		return
	}
	for _, conn := range r.List() {
		if conn.Record().UserID != userID {
			continue
		}
		r.emit(ctx, conn, f)
	}
}

// Broadcast sends a frame to every live connection.
func (r *Registry) Broadcast(ctx context.Context, f *event.Frame) {
	for _, conn := range r.List() {
		r.emit(ctx, conn, f)
	}
}

func (r *Registry) emit(ctx context.Context, conn *Conn, f *event.Frame) {
	if err := conn.Send(ctx, f); err != nil {
		r.logger.Warn("failed to emit frame",
			zap.String("socket_id", conn.Record().SocketID),
			zap.String("event", f.Event),
			zap.Error(err))
	}
}
