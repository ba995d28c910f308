package mux

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xpadev-net/ott-media-sync/internal/clock"
	"github.com/xpadev-net/ott-media-sync/internal/log"
)

const (
	// DefaultBaseURL is the provider API root.
	DefaultBaseURL = "https://api.mux.com"

	maxResponseBytes = 4 * 1024 * 1024
)

// Config configures a Client. Zero durations disable the corresponding
// mechanism; DefaultConfig returns production values.
type Config struct {
	BaseURL     string
	TokenID     string
	TokenSecret string

	WebhookSecret    string
	WebhookTolerance time.Duration

	SigningKeyID     string
	SigningKeySecret string

	MinRequestInterval time.Duration
	CacheTTL           time.Duration
	UploadTimeout      time.Duration
	UploadRetryDelays  []time.Duration

	HTTPClient *http.Client
	Clock      clock.Clock
}

// DefaultConfig returns the production defaults: 1s call spacing, 10s asset
// cache, 30s upload timeout and 2s/4s/6s upload retry backoff.
func DefaultConfig() Config {
	return Config{
		BaseURL:            DefaultBaseURL,
		WebhookTolerance:   5 * time.Minute,
		MinRequestInterval: time.Second,
		CacheTTL:           10 * time.Second,
		UploadTimeout:      30 * time.Second,
		UploadRetryDelays:  []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second},
	}
}

// Client wraps the provider HTTP API. A single Client is shared by every
// caller in the process so that the limiter and cache are shared too.
type Client struct {
	baseURL     string
	tokenID     string
	tokenSecret string

	webhookSecret    string
	webhookTolerance time.Duration
	signingKeyID     string
	signingKeySecret string

	uploadTimeout time.Duration
	retryDelays   []time.Duration

	httpClient *http.Client
	clock      clock.Clock
	limiter    *limiter
	assets     *assetCache
}

// New creates a client from cfg.
func New(cfg Config) *Client {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:          baseURL,
		tokenID:          cfg.TokenID,
		tokenSecret:      cfg.TokenSecret,
		webhookSecret:    cfg.WebhookSecret,
		webhookTolerance: cfg.WebhookTolerance,
		signingKeyID:     cfg.SigningKeyID,
		signingKeySecret: cfg.SigningKeySecret,
		uploadTimeout:    cfg.UploadTimeout,
		retryDelays:      cfg.UploadRetryDelays,
		httpClient:       httpClient,
		clock:            clk,
		limiter:          newLimiter(cfg.MinRequestInterval, clk),
		assets:           newAssetCache(cfg.CacheTTL, clk),
	}
}

type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Type     string   `json:"type"`
		Messages []string `json:"messages"`
	} `json:"error"`
}

// do performs one rate-limited API call and decodes the "data" envelope into out.
func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &ProviderError{Op: op, Err: err}
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.SetBasicAuth(c.tokenID, c.tokenSecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	log.Debug("provider call",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode >= 300 {
		return newProviderError(op, resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}

	var env dataEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: decode data: %w", op, err)
	}
	return nil
}

func newProviderError(op string, statusCode int, raw []byte) *ProviderError {
	perr := &ProviderError{Op: op, StatusCode: statusCode}
	var env errorEnvelope
	if json.Unmarshal(raw, &env) == nil {
		perr.Type = env.Error.Type
		perr.Messages = env.Error.Messages
	}
	if statusCode == http.StatusNotFound {
		perr.Err = ErrNotFound
	}
	return perr
}

// CreateDirectUpload creates a direct upload URL. Each attempt is bounded by
// the upload timeout; transient failures (timeout, 429) are retried with the
// configured backoff, anything else is returned immediately.
func (c *Client) CreateDirectUpload(ctx context.Context, opts DirectUploadOptions) (*Upload, error) {
	var lastErr error
	for attempt := 0; attempt <= len(c.retryDelays); attempt++ {
		if attempt > 0 {
			delay := c.retryDelays[attempt-1]
			log.Warn("retrying direct upload creation",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := c.clock.Sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("create direct upload: %w", err)
			}
		}

		upload, err := c.createUploadOnce(ctx, opts)
		if err == nil {
			return upload, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsTransient(err) {
			return nil, err
		}
	}

	log.Error("direct upload creation failed after all retries",
		zap.Int("total_attempts", len(c.retryDelays)+1),
		zap.Error(lastErr),
	)
	return nil, fmt.Errorf("create direct upload: retries exhausted: %w", lastErr)
}

func (c *Client) createUploadOnce(ctx context.Context, opts DirectUploadOptions) (*Upload, error) {
	attemptCtx := ctx
	if c.uploadTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.uploadTimeout)
		defer cancel()
	}

	var upload Upload
	if err := c.do(attemptCtx, "create direct upload", http.MethodPost, "/video/v1/uploads", opts, &upload); err != nil {
		return nil, err
	}
	if upload.ID == "" || upload.URL == "" {
		return nil, &ProviderError{Op: "create direct upload", Err: fmt.Errorf("response missing upload id or url")}
	}
	return &upload, nil
}

// GetAsset returns the asset with the given id, or nil if the provider does
// not know it. Fresh cached values are returned without a remote call, and
// concurrent callers for the same id share one in-flight request.
func (c *Client) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	return c.assets.load(ctx, assetID, func(ctx context.Context) (*Asset, error) {
		var asset Asset
		err := c.do(ctx, "get asset", http.MethodGet, "/video/v1/assets/"+url.PathEscape(assetID), nil, &asset)
		if err != nil {
			if IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return &asset, nil
	})
}

// UpdateAsset patches an asset. The cache entry is invalidated whether or not
// the call succeeded.
func (c *Client) UpdateAsset(ctx context.Context, assetID string, update AssetUpdate) (*Asset, error) {
	defer c.assets.invalidate(assetID)

	var asset Asset
	if err := c.do(ctx, "update asset", http.MethodPatch, "/video/v1/assets/"+url.PathEscape(assetID), update, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// DeleteAsset deletes an asset and reports success. An asset the provider no
// longer knows counts as deleted. Failures are logged, never returned, so that
// batch callers can aggregate.
func (c *Client) DeleteAsset(ctx context.Context, assetID string) bool {
	defer c.assets.invalidate(assetID)

	err := c.do(ctx, "delete asset", http.MethodDelete, "/video/v1/assets/"+url.PathEscape(assetID), nil, nil)
	if err == nil {
		return true
	}
	if IsNotFound(err) {
		log.Debug("asset already deleted remotely", zap.String("asset_id", assetID))
		return true
	}
	log.Warn("failed to delete remote asset",
		zap.String("asset_id", assetID),
		zap.Error(err),
	)
	return false
}

// ListAssets fetches a single page of at most limit assets.
func (c *Client) ListAssets(ctx context.Context, limit int) ([]Asset, error) {
	if limit <= 0 {
		limit = 100
	}
	path := "/video/v1/assets?limit=" + strconv.Itoa(limit)

	var assets []Asset
	if err := c.do(ctx, "list assets", http.MethodGet, path, nil, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// InvalidateAsset drops any cached state for assetID.
func (c *Client) InvalidateAsset(assetID string) {
	c.assets.invalidate(assetID)
}
