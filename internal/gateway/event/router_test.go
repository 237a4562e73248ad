package event

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yektayar/gateway/internal/common/cnst"
	"go.uber.org/zap"
)

type captureSink struct {
	mu     sync.Mutex
	frames []*Frame
}

func (s *captureSink) Send(_ context.Context, f *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

type stubStreamer struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func (s *stubStreamer) Stream(_ context.Context, _ Sink, _ *SessionRecord, message string, _ []ChatMessage) {
	s.mu.Lock()
	s.calls = append(s.calls, message)
	s.mu.Unlock()
	if s.done != nil {
		close(s.done)
	}
}

func testRecord(protocol cnst.Protocol) *SessionRecord {
	return &SessionRecord{
		SocketID:     "test-1700000000000-abc123def",
		SessionToken: "session-token-xyz9",
		UserID:       "user-42",
		IsLoggedIn:   true,
		Protocol:     protocol,
	}
}

func newTestRouter(streamer AIStreamer) *Router {
	if streamer == nil {
		streamer = &stubStreamer{}
	}
	return NewRouter(zap.NewNop(), streamer)
}

func dataOf(t *testing.T, f *Frame) map[string]any {
	t.Helper()
	raw, err := json.Marshal(f.Data)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestRoute_Ping(t *testing.T) {
	r := newTestRouter(nil)
	frames := r.Route(context.Background(), &captureSink{}, testRecord(cnst.ProtocolNative), EventPing, nil)

	require.Len(t, frames, 1)
	assert.Equal(t, EventPong, frames[0].Event)
	data := dataOf(t, frames[0])
	ts, ok := data["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse("2006-01-02T15:04:05.000Z", ts)
	assert.NoError(t, err)
}

func TestRoute_Status(t *testing.T) {
	r := newTestRouter(nil)
	frames := r.Route(context.Background(), &captureSink{}, testRecord(cnst.ProtocolSocketIO), EventStatus, nil)

	require.Len(t, frames, 1)
	data := dataOf(t, frames[0])
	server := data["server"].(map[string]any)
	assert.Equal(t, "YektaYar API Server", server["name"])
	assert.Equal(t, "running", server["status"])

	conn := data["connection"].(map[string]any)
	assert.Equal(t, "test-1700000000000-abc123def", conn["socketId"])
	assert.Equal(t, "session-token-xyz9", conn["sessionToken"])
	assert.Equal(t, "user-42", conn["userId"])
	assert.Equal(t, true, conn["isLoggedIn"])
	assert.Equal(t, "socketio", conn["protocol"])
}

func TestRoute_Status_AnonymousUserIsNull(t *testing.T) {
	r := newTestRouter(nil)
	rec := testRecord(cnst.ProtocolNative)
	rec.UserID = ""
	rec.IsLoggedIn = false

	frames := r.Route(context.Background(), &captureSink{}, rec, EventStatus, nil)
	require.Len(t, frames, 1)
	conn := dataOf(t, frames[0])["connection"].(map[string]any)
	assert.Nil(t, conn["userId"])
}

func TestRoute_Echo(t *testing.T) {
	r := newTestRouter(nil)
	payload := json.RawMessage(`{"hello":"world","n":3}`)

	frames := r.Route(context.Background(), &captureSink{}, testRecord(cnst.ProtocolNative), EventEcho, payload)
	require.Len(t, frames, 1)
	assert.Equal(t, EventEchoResponse, frames[0].Event)

	data := dataOf(t, frames[0])
	received := data["received"].(map[string]any)
	assert.Equal(t, "world", received["hello"])
	assert.Equal(t, float64(3), received["n"])
	assert.Equal(t, "test-1700000000000-abc123def", data["socketId"])
}

func TestRoute_Info_MasksToken(t *testing.T) {
	r := newTestRouter(nil)
	frames := r.Route(context.Background(), &captureSink{}, testRecord(cnst.ProtocolNative), EventInfo, nil)

	require.Len(t, frames, 1)
	sess := dataOf(t, frames[0])["session"].(map[string]any)
	assert.Equal(t, "***xyz9", sess["sessionToken"])
	assert.Equal(t, "user-42", sess["userId"])
	assert.Equal(t, true, sess["authenticated"])
}

func TestRoute_Message(t *testing.T) {
	r := newTestRouter(nil)
	frames := r.Route(context.Background(), &captureSink{}, testRecord(cnst.ProtocolNative), EventMessage, json.RawMessage(`{"text":"hi"}`))

	require.Len(t, frames, 1)
	assert.Equal(t, EventMessageReceived, frames[0].Event)
	data := dataOf(t, frames[0])
	assert.Equal(t, true, data["success"])
	assert.Equal(t, "hi", data["data"].(map[string]any)["text"])
}

func TestRoute_AIChat_DelegatesToStreamer(t *testing.T) {
	streamer := &stubStreamer{done: make(chan struct{})}
	r := newTestRouter(streamer)

	frames := r.Route(context.Background(), &captureSink{}, testRecord(cnst.ProtocolNative), EventAIChat,
		json.RawMessage(`{"message":"Hello","conversationHistory":[{"role":"user","content":"hi"}]}`))
	assert.Empty(t, frames)

	select {
	case <-streamer.done:
	case <-time.After(time.Second):
		t.Fatal("streamer was not invoked")
	}
	streamer.mu.Lock()
	defer streamer.mu.Unlock()
	assert.Equal(t, []string{"Hello"}, streamer.calls)
}

func TestRoute_UnknownEvent(t *testing.T) {
	r := newTestRouter(nil)
	frames := r.Route(context.Background(), &captureSink{}, testRecord(cnst.ProtocolNative), "not-a-real-event", nil)

	require.Len(t, frames, 1)
	assert.Equal(t, EventError, frames[0].Event)
	assert.Equal(t, "Unknown event type: not-a-real-event", dataOf(t, frames[0])["error"])

	// Unknown events leave the connection usable
	again := r.Route(context.Background(), &captureSink{}, testRecord(cnst.ProtocolNative), EventPing, nil)
	require.Len(t, again, 1)
	assert.Equal(t, EventPong, again[0].Event)
}

// Router parity: the same frame over each protocol yields identical payloads
// except for protocol and socket id fields.
func TestRoute_ProtocolParity(t *testing.T) {
	r := newTestRouter(nil)

	for _, name := range []string{EventPing, EventEcho, EventInfo, EventStatus} {
		recA := testRecord(cnst.ProtocolSocketIO)
		recB := testRecord(cnst.ProtocolNative)
		payload := json.RawMessage(`{"k":"v"}`)

		framesA := r.Route(context.Background(), &captureSink{}, recA, name, payload)
		framesB := r.Route(context.Background(), &captureSink{}, recB, name, payload)
		require.Len(t, framesB, len(framesA))

		for i := range framesA {
			assert.Equal(t, framesA[i].Event, framesB[i].Event)
			a := dataOf(t, framesA[i])
			b := dataOf(t, framesB[i])
			scrub(a)
			scrub(b)
			// timestamps may differ by milliseconds
			stripTimestamps(a)
			stripTimestamps(b)
			assert.Equal(t, a, b, "event %s", name)
		}
	}
}

// scrub removes the fields that legitimately differ per connection.
func scrub(m map[string]any) {
	for k, v := range m {
		switch k {
		case "protocol", "socketId":
			delete(m, k)
		default:
			if nested, ok := v.(map[string]any); ok {
				scrub(nested)
			}
		}
	}
}

func stripTimestamps(m map[string]any) {
	for k, v := range m {
		if k == "timestamp" {
			delete(m, k)
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			stripTimestamps(nested)
		}
	}
}

func TestWelcomeFrame(t *testing.T) {
	f := WelcomeFrame(testRecord(cnst.ProtocolSocketIO))
	assert.Equal(t, EventConnected, f.Event)
	data := f.Data.(map[string]any)
	assert.Equal(t, "Connected to YektaYar server via socketio", data["message"])
	assert.Equal(t, true, data["isLoggedIn"])
}
