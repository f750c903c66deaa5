package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, EnvDevelopment, cfg.Env)
	require.Equal(t, DriverFilesystem, cfg.Storage.Driver)
	require.Equal(t, DriverMemory, cfg.Ledger.Driver)
	require.Equal(t, 10, cfg.RateLimit.Max)
	require.Equal(t, 5*time.Minute, cfg.RateLimit.Window)
	require.Equal(t, 20, cfg.Upload.MaxFiles)
	require.Equal(t, int64(10*1024*1024), cfg.Upload.MaxFileSize)
	require.Equal(t, time.Hour, cfg.Unlock.TTL)
	require.InDelta(t, 0.5, cfg.BotVerify.MinScore, 0.0001)
	require.Empty(t, cfg.TrustedProxies)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("LEDGER_DRIVER", "REDIS")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("RATE_LIMIT_MAX", "3")
	t.Setenv("PUBLIC_BASE_URL", "https://img.example/")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 172.16.0.1")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DriverRedis, cfg.Ledger.Driver)
	require.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	require.Equal(t, 3, cfg.RateLimit.Max)
	require.Equal(t, "https://img.example", cfg.PublicBaseURL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	require.Equal(t, []string{"10.0.0.0/8", "172.16.0.1"}, cfg.TrustedProxies)
}

func TestParseDurationFallback(t *testing.T) {
	require.Equal(t, time.Minute, parseDuration("", time.Minute))
	require.Equal(t, time.Minute, parseDuration("bogus", time.Minute))
	require.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
}
