package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func setGatewayEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/media")
	t.Setenv("API_KEY", "admin-key")
	t.Setenv("MUX_TOKEN_ID", "tid")
	t.Setenv("MUX_TOKEN_SECRET", "tsecret")
	t.Setenv("MUX_WEBHOOK_SECRET", "whsecret")
}

func TestLoadGatewayConfig_Defaults(t *testing.T) {
	setGatewayEnv(t)

	cfg, err := LoadGatewayConfig()
	if err != nil {
		t.Fatalf("LoadGatewayConfig() error = %v", err)
	}
	if cfg.Port != 8080 || cfg.Environment != "development" {
		t.Errorf("port/env = %d/%s", cfg.Port, cfg.Environment)
	}
	if cfg.Mux.MinRequestInterval != time.Second || cfg.Mux.CacheTTL != 10*time.Second || cfg.Mux.UploadTimeout != 30*time.Second {
		t.Errorf("mux tuning = %+v", cfg.Mux)
	}
	if cfg.Mux.BaseURL != "https://api.mux.com" || cfg.Mux.WebhookTolerance != 5*time.Minute {
		t.Errorf("mux = %+v", cfg.Mux)
	}
	if cfg.PurgePageLimit != 100 || cfg.EventsChannel != "media:events" {
		t.Errorf("purge/channel = %d/%s", cfg.PurgePageLimit, cfg.EventsChannel)
	}
	if cfg.DBMaxConns != 25 || cfg.DBMinConns != 2 {
		t.Errorf("pool = %d/%d, want 25/2", cfg.DBMaxConns, cfg.DBMinConns)
	}
}

func TestLoadGatewayConfig_Overrides(t *testing.T) {
	setGatewayEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("MUX_MIN_REQUEST_INTERVAL", "250ms")
	t.Setenv("MUX_CACHE_TTL", "not-a-duration")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := LoadGatewayConfig()
	if err != nil {
		t.Fatalf("LoadGatewayConfig() error = %v", err)
	}
	if cfg.Port != 9090 || cfg.Mux.MinRequestInterval != 250*time.Millisecond || cfg.RateLimitRPS != 2.5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Mux.CacheTTL != 10*time.Second {
		t.Errorf("CacheTTL = %v, want default on parse failure", cfg.Mux.CacheTTL)
	}
}

func TestLoadGatewayConfig_Required(t *testing.T) {
	tests := []struct {
		name    string
		unset   string
		set     map[string]string
		wantErr string
	}{
		{name: "database", unset: "DATABASE_URL", wantErr: "DATABASE_URL"},
		{name: "api key", unset: "API_KEY", wantErr: "API_KEY"},
		{name: "token", unset: "MUX_TOKEN_SECRET", wantErr: "MUX_TOKEN_ID"},
		{name: "webhook secret", unset: "MUX_WEBHOOK_SECRET", wantErr: "MUX_WEBHOOK_SECRET"},
		{name: "half signing key", set: map[string]string{"MUX_SIGNING_KEY_ID": "kid"}, wantErr: "MUX_SIGNING_KEY_PRIVATE"},
		{name: "event webhook without key", set: map[string]string{"EVENT_WEBHOOK_URL": "https://cms.example/hook"}, wantErr: "EVENT_WEBHOOK_SIGNING_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setGatewayEnv(t)
			if tt.unset != "" {
				t.Setenv(tt.unset, "")
			}
			for k, v := range tt.set {
				t.Setenv(k, v)
			}
			_, err := LoadGatewayConfig()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadGatewayConfig() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoadWorkerConfig(t *testing.T) {
	t.Setenv("MUX_TOKEN_ID", "tid")
	t.Setenv("MUX_TOKEN_SECRET", "tsecret")
	t.Setenv("LIVE_STREAM_IDS", " L1, ,L2 ,")
	t.Setenv("HEALTH_POLL_INTERVAL", "30s")

	cfg, err := LoadWorkerConfig()
	if err != nil {
		t.Fatalf("LoadWorkerConfig() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.LiveStreamIDs, []string{"L1", "L2"}) {
		t.Errorf("LiveStreamIDs = %v", cfg.LiveStreamIDs)
	}
	if cfg.PollInterval != 30*time.Second || !cfg.ProbeManifests || cfg.HealthPort != 8081 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadWorkerConfig_RequiresStreams(t *testing.T) {
	t.Setenv("MUX_TOKEN_ID", "tid")
	t.Setenv("MUX_TOKEN_SECRET", "tsecret")
	t.Setenv("LIVE_STREAM_IDS", "")

	if _, err := LoadWorkerConfig(); err == nil || !strings.Contains(err.Error(), "LIVE_STREAM_IDS") {
		t.Errorf("LoadWorkerConfig() error = %v, want LIVE_STREAM_IDS required", err)
	}
}
