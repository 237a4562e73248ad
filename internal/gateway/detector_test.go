package gateway

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		upgrade bool
		want    Classification
	}{
		{"plain GET root", "/", false, PlainHTTP},
		{"plain GET health", "/health_check", false, PlainHTTP},
		{"native upgrade on root", "/?token=abc", true, NativeWebSocket},
		{"native upgrade on arbitrary path", "/realtime?token=abc", true, NativeWebSocket},
		{"eio upgrade", "/socket.io/?EIO=4&transport=websocket", true, SocketIOStyle},
		{"eio upgrade off the socketio path", "/?EIO=4&transport=websocket", true, SocketIOStyle},
		{"polling handshake without upgrade", "/socket.io/?EIO=4&transport=polling", false, SocketIOStyle},
		{"socketio path without eio param", "/socket.io/", false, SocketIOStyle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			if tt.upgrade {
				r.Header.Set("Connection", "Upgrade")
				r.Header.Set("Upgrade", "websocket")
			}
			assert.Equal(t, tt.want, Classify(r))
		})
	}
}

func TestClassify_HeaderCaseInsensitive(t *testing.T) {
	r := httptest.NewRequest("GET", "/?token=abc", nil)
	r.Header.Set("Connection", "keep-alive, Upgrade")
	r.Header.Set("Upgrade", "WebSocket")
	assert.Equal(t, NativeWebSocket, Classify(r))
}

func TestClassify_UpgradeWithoutConnectionHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/?token=abc", nil)
	r.Header.Set("Upgrade", "websocket")
	assert.Equal(t, PlainHTTP, Classify(r))
}
