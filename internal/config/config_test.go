package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.EqualValues(t, 3000, cfg.HttpServerPort)
	require.Equal(t, 10*time.Second, cfg.WsWriteWait)
	require.Equal(t, 60*time.Second, cfg.WsPongWait)
	require.Equal(t, 54*time.Second, cfg.WsPingPeriod)
	require.EqualValues(t, 4096, cfg.WsReadLimit)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("HTTP_SERVER_PORT", "4500")
	t.Setenv("WS_PONG_WAIT", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.EqualValues(t, 4500, cfg.HttpServerPort)
	require.Equal(t, 30*time.Second, cfg.WsPongWait)
}

func TestLoadConfigRejectsInvalidPort(t *testing.T) {
	t.Setenv("HTTP_SERVER_PORT", "80")

	_, err := LoadConfig()
	require.Error(t, err)
}
