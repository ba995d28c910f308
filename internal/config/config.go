package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MuxConfig holds provider credentials and client tuning shared by the
// gateway and the worker.
type MuxConfig struct {
	BaseURL            string
	TokenID            string
	TokenSecret        string
	WebhookSecret      string
	WebhookTolerance   time.Duration
	SigningKeyID       string
	SigningKeyPrivate  string
	MinRequestInterval time.Duration
	CacheTTL           time.Duration
	UploadTimeout      time.Duration
	CORSOrigin         string
}

// GatewayConfig holds configuration for the API Gateway.
type GatewayConfig struct {
	// Server settings
	Port        int
	Environment string

	// Database
	DatabaseURL string
	DBMaxConns  int
	DBMinConns  int

	// API Keys
	APIKey string

	// Provider
	Mux MuxConfig

	// Domain events
	RedisURL               string
	EventsChannel          string
	EventWebhookURL        string
	EventWebhookSigningKey string

	// Bulk deletion
	PurgePageLimit int

	// Rate limiting of the admin API, per API key
	RateLimitRPS   float64
	RateLimitBurst int

	// Timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// WorkerConfig holds configuration for the live-stream health worker.
type WorkerConfig struct {
	Environment string
	HealthPort  int

	Mux MuxConfig

	LiveStreamIDs        []string
	PollInterval         time.Duration
	ManifestFetchTimeout time.Duration
	ProbeManifests       bool

	// Optional receiver for health snapshots.
	CallbackURL    string
	CallbackAPIKey string
}

func loadMuxConfig() MuxConfig {
	return MuxConfig{
		BaseURL:            getEnv("MUX_BASE_URL", "https://api.mux.com"),
		TokenID:            getEnv("MUX_TOKEN_ID", ""),
		TokenSecret:        getEnv("MUX_TOKEN_SECRET", ""),
		WebhookSecret:      getEnv("MUX_WEBHOOK_SECRET", ""),
		WebhookTolerance:   getEnvDuration("MUX_WEBHOOK_TOLERANCE", 5*time.Minute),
		SigningKeyID:       getEnv("MUX_SIGNING_KEY_ID", ""),
		SigningKeyPrivate:  getEnv("MUX_SIGNING_KEY_PRIVATE", ""),
		MinRequestInterval: getEnvDuration("MUX_MIN_REQUEST_INTERVAL", time.Second),
		CacheTTL:           getEnvDuration("MUX_CACHE_TTL", 10*time.Second),
		UploadTimeout:      getEnvDuration("MUX_UPLOAD_TIMEOUT", 30*time.Second),
		CORSOrigin:         getEnv("MUX_CORS_ORIGIN", "*"),
	}
}

func (m MuxConfig) validate() error {
	if m.TokenID == "" || m.TokenSecret == "" {
		return fmt.Errorf("MUX_TOKEN_ID and MUX_TOKEN_SECRET are required")
	}
	if (m.SigningKeyID == "") != (m.SigningKeyPrivate == "") {
		return fmt.Errorf("MUX_SIGNING_KEY_ID and MUX_SIGNING_KEY_PRIVATE must be set together")
	}
	return nil
}

// LoadGatewayConfig loads the gateway configuration from environment variables.
func LoadGatewayConfig() (*GatewayConfig, error) {
	cfg := &GatewayConfig{
		Port:                   getEnvInt("PORT", 8080),
		Environment:            getEnv("ENVIRONMENT", "development"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		DBMaxConns:             getEnvInt("DB_MAX_CONNS", 25),
		DBMinConns:             getEnvInt("DB_MIN_CONNS", 2),
		APIKey:                 getEnv("API_KEY", ""),
		Mux:                    loadMuxConfig(),
		RedisURL:               getEnv("REDIS_URL", ""),
		EventsChannel:          getEnv("EVENTS_CHANNEL", "media:events"),
		EventWebhookURL:        getEnv("EVENT_WEBHOOK_URL", ""),
		EventWebhookSigningKey: getEnv("EVENT_WEBHOOK_SIGNING_KEY", ""),
		PurgePageLimit:         getEnvInt("PURGE_PAGE_LIMIT", 100),
		RateLimitRPS:           getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:         getEnvInt("RATE_LIMIT_BURST", 20),
		ReadTimeout:            getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:           getEnvDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout:        getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API_KEY is required")
	}
	if err := cfg.Mux.validate(); err != nil {
		return nil, err
	}
	if cfg.Mux.WebhookSecret == "" {
		return nil, fmt.Errorf("MUX_WEBHOOK_SECRET is required")
	}
	if cfg.EventWebhookURL != "" && cfg.EventWebhookSigningKey == "" {
		return nil, fmt.Errorf("EVENT_WEBHOOK_SIGNING_KEY is required when EVENT_WEBHOOK_URL is set")
	}

	return cfg, nil
}

// LoadWorkerConfig loads the worker configuration from environment variables.
func LoadWorkerConfig() (*WorkerConfig, error) {
	cfg := &WorkerConfig{
		Environment:          getEnv("ENVIRONMENT", "development"),
		HealthPort:           getEnvInt("HEALTH_PORT", 8081),
		Mux:                  loadMuxConfig(),
		LiveStreamIDs:        getEnvList("LIVE_STREAM_IDS"),
		PollInterval:         getEnvDuration("HEALTH_POLL_INTERVAL", 15*time.Second),
		ManifestFetchTimeout: getEnvDuration("MANIFEST_FETCH_TIMEOUT", 10*time.Second),
		ProbeManifests:       getEnvBool("PROBE_MANIFESTS", true),
		CallbackURL:          getEnv("HEALTH_CALLBACK_URL", ""),
		CallbackAPIKey:       getEnv("HEALTH_CALLBACK_API_KEY", ""),
	}

	if err := cfg.Mux.validate(); err != nil {
		return nil, err
	}
	if len(cfg.LiveStreamIDs) == 0 {
		return nil, fmt.Errorf("LIVE_STREAM_IDS is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("HEALTH_POLL_INTERVAL must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
