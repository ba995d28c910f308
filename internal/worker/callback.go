package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/xpadev-net/ott-media-sync/internal/clock"
	"github.com/xpadev-net/ott-media-sync/internal/httpapi"
	"github.com/xpadev-net/ott-media-sync/internal/livehealth"
)

// CallbackClient posts health snapshots to an external receiver.
type CallbackClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
	clock      clock.Clock
}

// NewCallbackClient creates a new callback client.
func NewCallbackClient(callbackURL, apiKey string, clk clock.Clock) (*CallbackClient, error) {
	u, err := url.Parse(callbackURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid health callback url %q", callbackURL)
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &CallbackClient{
		url:        callbackURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		clock:      clk,
	}, nil
}

// HealthReport is the request body sent for each refreshed stream.
type HealthReport struct {
	Stream     livehealth.Record `json:"stream"`
	ReportedAt time.Time         `json:"reported_at"`
}

// ReportHealth sends rec to the receiver.
func (c *CallbackClient) ReportHealth(ctx context.Context, rec livehealth.Record) error {
	body, err := json.Marshal(HealthReport{Stream: rec, ReportedAt: c.clock.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set(httpapi.HeaderAPIKey, c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("health receiver returned status %d", resp.StatusCode)
	}

	return nil
}
