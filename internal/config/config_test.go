package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every RECIBOS_ env var that Load() reads.
var allConfigKeys = []string{
	"RECIBOS_LISTEN_ADDR",
	"RECIBOS_DB_PATH",
	"RECIBOS_SECRET_KEY",
	"RECIBOS_PORTAL_BASE_URL",
	"RECIBOS_LOGIN_URL",
	"RECIBOS_PORTAL_EMAIL",
	"RECIBOS_PORTAL_PASSWORD",
	"RECIBOS_BRIDGE_URL",
	"RECIBOS_CHROME_URL",
	"RECIBOS_HEADLESS",
	"RECIBOS_DOCUMENTS_DIR",
	"RECIBOS_FILE_PREFIX",
	"RECIBOS_OPEN_DOCUMENTS",
	"RECIBOS_CORS_ORIGINS",
	"RECIBOS_TOKEN_TTL",
	"RECIBOS_LOGIN_DEADLINE",
	"RECIBOS_LOGIN_WAIT_TIMEOUT",
	"RECIBOS_PAGE_LOAD_TIMEOUT",
	"RECIBOS_FIELD_ATTEMPTS",
	"RECIBOS_FIELD_RETRY_INTERVAL",
	"RECIBOS_REDIRECT_POLL_INTERVAL",
	"RECIBOS_REDIRECT_TIMEOUT",
	"RECIBOS_PAGE_SIZE",
	"RECIBOS_PAGE_CAP",
	"RECIBOS_RESULT_LIMIT",
	"RECIBOS_CACHE_TTL",
}

// isolateConfigEnv saves and unsets all RECIBOS_ env vars so tests don't
// inherit values from the host environment (e.g. a running dev server).
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "recibos.db", cfg.DBPath)
	assert.Equal(t, "https://webapp16.sedapal.com.pe/OficinaComercialVirtual/api", cfg.PortalBaseURL)
	assert.Equal(t, "https://webapp16.sedapal.com.pe/socv/#/iniciar-sesion", cfg.LoginURL)
	assert.Equal(t, "Recibo", cfg.FilePrefix)
	assert.True(t, cfg.Headless)
	assert.False(t, cfg.OpenDocuments)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, 60*time.Second, cfg.LoginDeadline)
	assert.Equal(t, 30*time.Second, cfg.LoginWaitTimeout)
	assert.Equal(t, 20*time.Second, cfg.PageLoadTimeout)
	assert.Equal(t, 10, cfg.FieldAttempts)
	assert.Equal(t, 2*time.Second, cfg.FieldRetryInterval)
	assert.Equal(t, time.Second, cfg.RedirectPollInterval)
	assert.Equal(t, 15*time.Second, cfg.RedirectTimeout)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 20, cfg.PageCap)
	assert.Equal(t, 40, cfg.ResultLimit)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, []string{}, cfg.CORSOrigins)
	assert.Nil(t, cfg.SecretKey)
	assert.False(t, cfg.HasPortalCredentials())
	assert.False(t, cfg.BridgeMode())
}

func TestLoad_Overrides(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("RECIBOS_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("RECIBOS_DB_PATH", "/tmp/test.db")
	t.Setenv("RECIBOS_PORTAL_BASE_URL", "http://portal.test/api/")
	t.Setenv("RECIBOS_PORTAL_EMAIL", "user@example.com")
	t.Setenv("RECIBOS_PORTAL_PASSWORD", "hunter2")
	t.Setenv("RECIBOS_BRIDGE_URL", "http://bridge.test/")
	t.Setenv("RECIBOS_HEADLESS", "false")
	t.Setenv("RECIBOS_CORS_ORIGINS", "http://localhost:8081, ,http://localhost:19006")
	t.Setenv("RECIBOS_TOKEN_TTL", "30m")
	t.Setenv("RECIBOS_PAGE_CAP", "5")
	t.Setenv("RECIBOS_SECRET_KEY", "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "http://portal.test/api", cfg.PortalBaseURL)
	assert.Equal(t, "http://bridge.test", cfg.BridgeURL)
	assert.False(t, cfg.Headless)
	assert.Equal(t, []string{"http://localhost:8081", "http://localhost:19006"}, cfg.CORSOrigins)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 5, cfg.PageCap)
	assert.Len(t, cfg.SecretKey, 32)
	assert.True(t, cfg.HasPortalCredentials())
	assert.True(t, cfg.BridgeMode())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad duration", "RECIBOS_TOKEN_TTL", "soon"},
		{"negative duration", "RECIBOS_LOGIN_DEADLINE", "-5s"},
		{"bad integer", "RECIBOS_PAGE_SIZE", "lots"},
		{"zero integer", "RECIBOS_FIELD_ATTEMPTS", "0"},
		{"bad boolean", "RECIBOS_HEADLESS", "maybe"},
		{"secret not hex", "RECIBOS_SECRET_KEY", "not-hex"},
		{"secret too short", "RECIBOS_SECRET_KEY", "00ff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv(tt.key, tt.val)

			cfg, err := Load()

			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
