package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_DefaultsWithSecretFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "memory", cfg.Cache.Kind)
	require.Equal(t, "access_token", cfg.Auth.Cookies.AccessName)
	require.Equal(t, "refresh_token", cfg.Auth.Cookies.RefreshName)
	require.Equal(t, "csrf_token", cfg.Auth.Cookies.CSRFName)
	require.Equal(t, "X-CSRF-Token", cfg.Auth.CSRFHeader)
	require.Equal(t, 10, cfg.Rate.Login.Limit)
	require.Equal(t, "1m", cfg.Rate.Login.Window)
	require.Equal(t, 3, cfg.Rate.Forgot.Limit)
	require.Equal(t, "24h", cfg.Rate.FailureTTL)
	require.False(t, cfg.Rate.FailOpen, "fail-closed es el default")
}

func TestLoad_YAMLPlusEnvOverride(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("RATE_FAIL_OPEN", "true")
	t.Setenv("SERVER_ADDR", ":9999")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":8081"
rate:
  enabled: true
  login:
    limit: 5
    window: 30s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	// env pisa yaml
	require.Equal(t, ":9999", cfg.Server.Addr)
	require.True(t, cfg.Rate.FailOpen)
	require.Equal(t, 5, cfg.Rate.Login.Limit)
	require.Equal(t, "30s", cfg.Rate.Login.Window)
	require.True(t, cfg.Rate.Enabled)
}

func TestLoad_RejectsMissingOrShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "demasiado-corto")
	_, err = Load("")
	require.Error(t, err)
}

func TestLoad_RejectsInvalidDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("JWT_ACCESS_TTL", "quince minutos")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_RateEnabledRequiresRedisAddr(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("RATE_ENABLED", "true")
	t.Setenv("CACHE_KIND", "memory")
	t.Setenv("REDIS_ADDR", "")

	_, err := Load("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "cache.redis.addr")

	t.Setenv("REDIS_ADDR", "localhost:6379")
	cfg, err := Load("")
	require.NoError(t, err)
	require.True(t, cfg.Rate.Enabled)
}
