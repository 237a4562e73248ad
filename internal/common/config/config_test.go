package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ws-gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeTempConfig(t, "server:\n  host: localhost\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 3500, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "memory", cfg.Session.Type)
	assert.Equal(t, "session:", cfg.Session.Redis.Prefix)
	assert.Equal(t, 60*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 10, cfg.AI.MaxHistory)
	assert.Equal(t, "en", cfg.I18n.DefaultLang)
	assert.Equal(t, "yektayar_gateway", cfg.Metrics.Namespace)
}

func TestLoadConfig_EnvExpansion(t *testing.T) {
	t.Setenv("WS_GATEWAY_PORT", "4000")
	t.Setenv("REDIS_ADDR", "10.0.0.5:6379")

	path := writeTempConfig(t, `
server:
  port: ${WS_GATEWAY_PORT:3500}
session:
  type: redis
  redis:
    addr: ${REDIS_ADDR}
    password: ${REDIS_PASSWORD:}
ai:
  base_url: ${AI_BASE_URL:https://text.pollinations.ai}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Session.Type)
	assert.Equal(t, "10.0.0.5:6379", cfg.Session.Redis.Addr)
	assert.Equal(t, "", cfg.Session.Redis.Password)
	assert.Equal(t, "https://text.pollinations.ai", cfg.AI.BaseURL)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
