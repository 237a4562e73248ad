package cnst

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProtocol_Constants(t *testing.T) {
	assert.Equal(t, Protocol("socketio"), ProtocolSocketIO)
	assert.Equal(t, Protocol("native"), ProtocolNative)
}

func TestSocketIOPath(t *testing.T) {
	assert.Equal(t, "/socket.io/", SocketIOPath)
}

func TestLanguageCodes(t *testing.T) {
	assert.Equal(t, "en", LangEN)
	assert.Equal(t, "fa", LangFA)
}
