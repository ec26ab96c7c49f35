// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "RECIBOS_"

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	// SecretKey is the 32-byte AES-256 key for stored credentials; nil disables storage.
	SecretKey []byte

	PortalBaseURL  string
	LoginURL       string
	PortalEmail    string
	PortalPassword string
	BridgeURL      string
	ChromeURL      string
	Headless       bool

	DocumentsDir  string
	FilePrefix    string
	OpenDocuments bool
	CORSOrigins   []string

	TokenTTL         time.Duration
	LoginDeadline    time.Duration
	LoginWaitTimeout time.Duration

	PageLoadTimeout      time.Duration
	FieldAttempts        int
	FieldRetryInterval   time.Duration
	RedirectPollInterval time.Duration
	RedirectTimeout      time.Duration

	PageSize    int
	PageCap     int
	ResultLimit int
	CacheTTL    time.Duration
}

// HasPortalCredentials returns true when both portal email and password were
// provided through the environment. Credentials stored through the API take
// priority over these at runtime.
func (c *Config) HasPortalCredentials() bool {
	return c.PortalEmail != "" && c.PortalPassword != ""
}

// BridgeMode reports whether bills come from a remote bridge instead of the portal.
func (c *Config) BridgeMode() bool {
	return c.BridgeURL != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// Every variable is optional. Portal credentials may be absent at startup; login
// attempts then fail with MissingCredentials until they are stored via the API.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:     stringEnv("LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:         stringEnv("DB_PATH", "recibos.db"),
		PortalBaseURL:  strings.TrimRight(stringEnv("PORTAL_BASE_URL", "https://webapp16.sedapal.com.pe/OficinaComercialVirtual/api"), "/"),
		LoginURL:       stringEnv("LOGIN_URL", "https://webapp16.sedapal.com.pe/socv/#/iniciar-sesion"),
		PortalEmail:    os.Getenv(envPrefix + "PORTAL_EMAIL"),
		PortalPassword: os.Getenv(envPrefix + "PORTAL_PASSWORD"),
		BridgeURL:      strings.TrimRight(os.Getenv(envPrefix+"BRIDGE_URL"), "/"),
		ChromeURL:      os.Getenv(envPrefix + "CHROME_URL"),
		DocumentsDir:   stringEnv("DOCUMENTS_DIR", "recibos"),
		FilePrefix:     stringEnv("FILE_PREFIX", "Recibo"),
		CORSOrigins:    listEnv("CORS_ORIGINS"),
	}

	var err error
	if cfg.SecretKey, err = secretKeyEnv("SECRET_KEY"); err != nil {
		return nil, err
	}
	if cfg.Headless, err = boolEnv("HEADLESS", true); err != nil {
		return nil, err
	}
	if cfg.OpenDocuments, err = boolEnv("OPEN_DOCUMENTS", false); err != nil {
		return nil, err
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"TOKEN_TTL", time.Hour, &cfg.TokenTTL},
		{"LOGIN_DEADLINE", 60 * time.Second, &cfg.LoginDeadline},
		{"LOGIN_WAIT_TIMEOUT", 30 * time.Second, &cfg.LoginWaitTimeout},
		{"PAGE_LOAD_TIMEOUT", 20 * time.Second, &cfg.PageLoadTimeout},
		{"FIELD_RETRY_INTERVAL", 2 * time.Second, &cfg.FieldRetryInterval},
		{"REDIRECT_POLL_INTERVAL", time.Second, &cfg.RedirectPollInterval},
		{"REDIRECT_TIMEOUT", 15 * time.Second, &cfg.RedirectTimeout},
		{"CACHE_TTL", 10 * time.Minute, &cfg.CacheTTL},
	}
	for _, d := range durations {
		if *d.dest, err = durationEnv(d.key, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"FIELD_ATTEMPTS", 10, &cfg.FieldAttempts},
		{"PAGE_SIZE", 100, &cfg.PageSize},
		{"PAGE_CAP", 20, &cfg.PageCap},
		{"RESULT_LIMIT", 40, &cfg.ResultLimit},
	}
	for _, n := range ints {
		if *n.dest, err = positiveIntEnv(n.key, n.def); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func stringEnv(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		return v
	}
	return def
}

func listEnv(key string) []string {
	out := []string{}
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return out
	}
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s has invalid duration %q: %w", envPrefix, key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s%s must be positive, got %q", envPrefix, key, v)
	}
	return parsed, nil
}

func positiveIntEnv(key string, def int) (int, error) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s has invalid integer %q: %w", envPrefix, key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s%s must be positive, got %d", envPrefix, key, parsed)
	}
	return parsed, nil
}

// secretKeyEnv reads a hex-encoded 32-byte key (64 hex characters).
func secretKeyEnv(key string) ([]byte, error) {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return nil, nil
	}
	decoded, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s%s must be hex encoded: %w", envPrefix, key, err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("%s%s must decode to 32 bytes, got %d", envPrefix, key, len(decoded))
	}
	return decoded, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return def, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s%s has invalid boolean %q: %w", envPrefix, key, v, err)
	}
	return parsed, nil
}
