package gateway

import (
	"net/http"
	"strings"

	"github.com/yektayar/gateway/internal/common/cnst"
)

// Classification is the protocol family a request is routed to before any
// upgrade happens.
type Classification int

const (
	// PlainHTTP covers everything that is not a realtime connection
	// attempt: the service info page, health checks, REST endpoints.
	PlainHTTP Classification = iota
	// NativeWebSocket is an RFC 6455 upgrade without Engine.IO markers.
	NativeWebSocket
	// SocketIOStyle is the legacy Engine.IO based protocol, reached either
	// through a websocket upgrade carrying the EIO query parameter or
	// through long-polling requests on the Socket.IO path.
	SocketIOStyle
)

func (c Classification) String() string {
	switch c {
	case NativeWebSocket:
		return string(cnst.ProtocolNative)
	case SocketIOStyle:
		return string(cnst.ProtocolSocketIO)
	default:
		return "http"
	}
}

// Classify decides the protocol family from headers and query alone, without
// consuming the request body. Legacy clients are recognized by the EIO
// protocol-version parameter; polling requests on the Socket.IO path carry it
// without an Upgrade header and stay on the legacy path.
func Classify(r *http.Request) Classification {
	legacy := r.URL.Query().Has("EIO") || strings.HasPrefix(r.URL.Path, cnst.SocketIOPath)

	if isWebSocketUpgrade(r) {
		if legacy {
			return SocketIOStyle
		}
		return NativeWebSocket
	}

	if legacy {
		return SocketIOStyle
	}
	return PlainHTTP
}

func isWebSocketUpgrade(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, part := range strings.Split(r.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(part), "upgrade") {
			return true
		}
	}
	return false
}
