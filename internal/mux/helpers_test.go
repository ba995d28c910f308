package mux

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xpadev-net/ott-media-sync/internal/clock"
)

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// newTestClient points a client at handler with spacing and retry delays driven by a fake clock.
func newTestClient(t *testing.T, handler http.Handler, mutate func(*Config)) (*Client, *clock.Fake) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	fake := clock.NewFake(testEpoch)
	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.TokenID = "token-id"
	cfg.TokenSecret = "token-secret"
	cfg.MinRequestInterval = 0
	cfg.HTTPClient = server.Client()
	cfg.Clock = fake
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg), fake
}
