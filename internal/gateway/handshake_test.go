package gateway

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yektayar/gateway/internal/common/cnst"
	"github.com/yektayar/gateway/internal/session"
	"go.uber.org/zap"
)

func seededValidator(t *testing.T) *session.MemoryValidator {
	t.Helper()
	v := session.NewMemoryValidator()
	v.Put(&session.Session{
		Token:      "tok-valid-abc",
		UserID:     "user-1",
		IsLoggedIn: true,
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	v.Put(&session.Session{
		Token:     "tok-expired",
		UserID:    "user-2",
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	v.Put(&session.Session{
		Token:      "tok-anonymous",
		IsLoggedIn: false,
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	return v
}

func TestAuthenticate_QueryToken(t *testing.T) {
	auth := NewAuthenticator(zap.NewNop(), seededValidator(t))

	r := httptest.NewRequest("GET", "/?token=tok-valid-abc", nil)
	rec, err := auth.Authenticate(r, cnst.ProtocolNative)
	require.NoError(t, err)

	assert.Equal(t, "tok-valid-abc", rec.SessionToken)
	assert.Equal(t, "user-1", rec.UserID)
	assert.True(t, rec.IsLoggedIn)
	assert.Equal(t, cnst.ProtocolNative, rec.Protocol)
	assert.True(t, strings.HasPrefix(rec.SocketID, "ws-"), "socket id %q", rec.SocketID)
}

func TestAuthenticate_BearerHeader(t *testing.T) {
	auth := NewAuthenticator(zap.NewNop(), seededValidator(t))

	r := httptest.NewRequest("GET", "/socket.io/?EIO=4", nil)
	r.Header.Set("Authorization", "Bearer tok-valid-abc")
	rec, err := auth.Authenticate(r, cnst.ProtocolSocketIO)
	require.NoError(t, err)

	assert.Equal(t, cnst.ProtocolSocketIO, rec.Protocol)
	assert.True(t, strings.HasPrefix(rec.SocketID, "sio-"), "socket id %q", rec.SocketID)
}

func TestAuthenticate_QueryTokenWinsOverHeader(t *testing.T) {
	v := seededValidator(t)
	auth := NewAuthenticator(zap.NewNop(), v)

	r := httptest.NewRequest("GET", "/?token=tok-valid-abc", nil)
	r.Header.Set("Authorization", "Bearer tok-expired")
	rec, err := auth.Authenticate(r, cnst.ProtocolNative)
	require.NoError(t, err)
	assert.Equal(t, "tok-valid-abc", rec.SessionToken)
}

func TestAuthenticate_Refusals(t *testing.T) {
	auth := NewAuthenticator(zap.NewNop(), seededValidator(t))

	tests := []struct {
		name    string
		target  string
		header  string
		wantErr error
	}{
		{"no token at all", "/", "", ErrTokenRequired},
		{"unknown token", "/?token=never-issued", "", ErrInvalidSession},
		{"expired token", "/?token=tok-expired", "", ErrInvalidSession},
		{"malformed auth header", "/", "Token abc", ErrTokenRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rec, err := auth.Authenticate(r, cnst.ProtocolNative)
			assert.Nil(t, rec)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAuthenticate_AnonymousSession(t *testing.T) {
	auth := NewAuthenticator(zap.NewNop(), seededValidator(t))

	r := httptest.NewRequest("GET", "/?token=tok-anonymous", nil)
	rec, err := auth.Authenticate(r, cnst.ProtocolNative)
	require.NoError(t, err)
	assert.False(t, rec.IsLoggedIn)
	assert.Empty(t, rec.UserID)
	assert.Nil(t, rec.UserIDField())
}

func TestAuthenticate_LangNegotiation(t *testing.T) {
	auth := NewAuthenticator(zap.NewNop(), seededValidator(t))

	r := httptest.NewRequest("GET", "/?token=tok-valid-abc&lang=fa", nil)
	rec, err := auth.Authenticate(r, cnst.ProtocolNative)
	require.NoError(t, err)
	assert.Equal(t, cnst.LangFA, rec.Lang)

	r = httptest.NewRequest("GET", "/?token=tok-valid-abc", nil)
	r.Header.Set(cnst.XLang, "fa")
	rec, err = auth.Authenticate(r, cnst.ProtocolNative)
	require.NoError(t, err)
	assert.Equal(t, cnst.LangFA, rec.Lang)

	r = httptest.NewRequest("GET", "/?token=tok-valid-abc", nil)
	rec, err = auth.Authenticate(r, cnst.ProtocolNative)
	require.NoError(t, err)
	assert.Equal(t, cnst.LangEN, rec.Lang)
}
