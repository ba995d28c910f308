package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
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

// Headers carried by every delivery.
const (
	TimestampHeader = "X-Timestamp"
	SignatureHeader = "X-Signature-256"
	DeliveryHeader  = "X-Delivery-Attempt"
)

const (
	signaturePrefix    = "sha256="
	signatureTolerance = 5 * time.Minute
	maxBackoff         = 10 * time.Second
)

// Verification failures returned by VerifyRequest.
var (
	ErrMissingTimestamp = errors.New("missing or malformed timestamp")
	ErrInvalidSignature = errors.New("invalid or expired signature")
	ErrInvalidPayload   = errors.New("invalid payload")
)

// Payload is the body of an outbound domain-event delivery.
type Payload struct {
	EventType string                 `json:"event_type"`
	AssetID   string                 `json:"asset_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// SendResult summarizes one Send call across all of its attempts.
type SendResult struct {
	Success    bool
	Attempts   int
	StatusCode int
	Error      string
}

// Sender posts signed payloads and retries transient failures with
// exponential backoff driven by the injected clock.
type Sender struct {
	httpClient *http.Client
	signingKey string
	maxRetries int
	clock      clock.Clock
}

// NewSender creates a sender with four total attempts. A nil clock uses wall time.
func NewSender(signingKey string, clk clock.Clock) *Sender {
	if clk == nil {
		clk = clock.Real{}
	}
	client := &http.Client{Timeout: 10 * time.Second}
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return fmt.Errorf("too many redirects")
		}
		if err := validateURL(req.URL.String()); err != nil {
			return fmt.Errorf("redirect url not allowed: %w", err)
		}
		return nil
	}
	return &Sender{
		httpClient: client,
		signingKey: signingKey,
		maxRetries: 4,
		clock:      clk,
	}
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// Send delivers payload to target. The body is marshalled once so every
// attempt carries identical bytes; only the timestamp and signature change.
func (s *Sender) Send(ctx context.Context, target string, payload *Payload) *SendResult {
	if err := validateURL(target); err != nil {
		return &SendResult{Error: fmt.Sprintf("invalid webhook url: %v", err)}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &SendResult{Error: fmt.Sprintf("marshal payload: %v", err)}
	}

	logger := log.With(
		zap.String("url", target),
		zap.String("event_type", payload.EventType),
		zap.String("asset_id", payload.AssetID),
	)

	result := &SendResult{}
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if delay := retryDelay(attempt); delay > 0 {
			if err := s.clock.Sleep(ctx, delay); err != nil {
				result.Error = "context canceled"
				return result
			}
		}
		result.Attempts = attempt

		status, err := s.post(ctx, target, body, attempt)
		result.StatusCode = status
		if err == nil {
			result.Success = true
			result.Error = ""
			logger.Info("event webhook delivered", zap.Int("attempt", attempt))
			return result
		}
		result.Error = err.Error()

		if !retryable(status) {
			logger.Warn("event webhook rejected", zap.Int("status", status), zap.String("error", result.Error))
			return result
		}
		logger.Warn("event webhook attempt failed", zap.Int("attempt", attempt), zap.String("error", result.Error))
	}

	logger.Error("event webhook delivery exhausted retries",
		zap.Int("total_attempts", result.Attempts),
		zap.String("last_error", result.Error),
	)
	return result
}

// retryDelay is zero before the first attempt, then 1s, 2s, 4s, ... capped at 10s.
func retryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := time.Second << (attempt - 2)
	if delay > maxBackoff || delay <= 0 {
		return maxBackoff
	}
	return delay
}

// retryable reports whether a failed attempt may be repeated. Transport
// errors (status 0), timeouts, throttling and server errors are retried;
// other client errors are final.
func retryable(status int) bool {
	switch {
	case status == 0:
		return true
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

func (s *Sender) post(ctx context.Context, target string, body []byte, attempt int) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	timestamp := s.clock.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TimestampHeader, strconv.FormatInt(timestamp, 10))
	req.Header.Set(SignatureHeader, signaturePrefix+Sign(s.signingKey, timestamp, body))
	req.Header.Set(DeliveryHeader, strconv.Itoa(attempt))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Sign returns the hex HMAC-SHA256 of "{timestamp}.{body}".
func Sign(signingKey string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex signature (with or without the "sha256="
// prefix) and rejects timestamps more than five minutes away from now.
func VerifySignature(signingKey, signature string, timestamp int64, body []byte, now time.Time) bool {
	skew := now.Sub(time.Unix(timestamp, 0))
	if skew > signatureTolerance || skew < -signatureTolerance {
		return false
	}
	expected := Sign(signingKey, timestamp, body)
	return hmac.Equal([]byte(strings.TrimPrefix(signature, signaturePrefix)), []byte(expected))
}

// VerifyRequest authenticates a received delivery and decodes its payload.
func VerifyRequest(header http.Header, body []byte, signingKey string, now time.Time) (*Payload, error) {
	timestamp, err := strconv.ParseInt(header.Get(TimestampHeader), 10, 64)
	if err != nil {
		return nil, ErrMissingTimestamp
	}
	if !VerifySignature(signingKey, header.Get(SignatureHeader), timestamp, body, now) {
		return nil, ErrInvalidSignature
	}
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &payload, nil
}
