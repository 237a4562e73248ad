package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yektayar/gateway/internal/common/config"
	"go.uber.org/zap"
)

func newTestRedisValidator(t *testing.T) (*RedisValidator, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	v, err := NewRedisValidator(zap.NewNop(), config.SessionRedisConfig{
		Addr:   mr.Addr(),
		Prefix: "session:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v, mr
}

func seedSession(t *testing.T, mr *miniredis.Miniredis, sess *Session) {
	t.Helper()
	data, err := json.Marshal(sess)
	require.NoError(t, err)
	require.NoError(t, mr.Set("session:"+sess.Token, string(data)))
}

func TestNewRedisValidator_ConnectionError(t *testing.T) {
	_, err := NewRedisValidator(zap.NewNop(), config.SessionRedisConfig{Addr: "127.0.0.1:0"})
	assert.Error(t, err)
}

func TestRedisValidator_Validate(t *testing.T) {
	v, mr := newTestRedisValidator(t)

	seedSession(t, mr, &Session{
		Token:      "tok-valid",
		UserID:     "user-1",
		IsLoggedIn: true,
		ExpiresAt:  time.Now().Add(time.Hour),
	})

	sess, err := v.Validate(context.Background(), "tok-valid")
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.UserID)
	assert.True(t, sess.IsLoggedIn)
}

func TestRedisValidator_UnknownToken(t *testing.T) {
	v, _ := newTestRedisValidator(t)

	_, err := v.Validate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = v.Validate(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisValidator_ExpiredToken(t *testing.T) {
	v, mr := newTestRedisValidator(t)

	seedSession(t, mr, &Session{
		Token:     "tok-expired",
		ExpiresAt: time.Now().Add(-time.Minute),
	})

	_, err := v.Validate(context.Background(), "tok-expired")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisValidator_CorruptRecord(t *testing.T) {
	v, mr := newTestRedisValidator(t)
	require.NoError(t, mr.Set("session:tok-bad", "{not json"))

	_, err := v.Validate(context.Background(), "tok-bad")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
