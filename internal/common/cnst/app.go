package cnst

const (
	// AppName is the service name reported in status frames
	AppName = "YektaYar API Server"
	// APIName is the short product name used in info frames
	APIName = "YektaYar API"
)

// Protocol identifies the wire protocol a connection was accepted with.
type Protocol string

const (
	// ProtocolSocketIO represents the legacy Engine.IO based protocol
	ProtocolSocketIO Protocol = "socketio"
	// ProtocolNative represents plain RFC 6455 WebSocket connections
	ProtocolNative Protocol = "native"
)

// SocketIOPath is the HTTP path prefix of the legacy protocol endpoint.
const SocketIOPath = "/socket.io/"

const (
	// LangEN is the English language code
	LangEN = "en"
	// LangFA is the Persian language code
	LangFA = "fa"
)

// XLang is the context key carrying the negotiated language
const XLang = "X-Lang"
