package mux

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the header carrying the provider's webhook signature.
const SignatureHeader = "Mux-Signature"

// VerifyWebhookSignature checks a "t=<unix>,v1=<hex>" header against
// HMAC-SHA256(secret, "<t>.<body>") using the client's webhook secret.
// It never returns an error: any parse failure or mismatch is false.
func (c *Client) VerifyWebhookSignature(header string, body []byte) bool {
	if c.webhookSecret == "" {
		return false
	}
	return VerifySignature(c.webhookSecret, header, body, c.clock.Now(), c.webhookTolerance)
}

// VerifySignature is the stateless form of VerifyWebhookSignature. A zero
// tolerance disables the timestamp age check.
func VerifySignature(secret, header string, body []byte, now time.Time, tolerance time.Duration) bool {
	timestamp, signatures, ok := parseSignatureHeader(header)
	if !ok {
		return false
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return false
		}
	}

	expected := []byte(computeSignature(secret, timestamp, body))
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), expected) {
			return true
		}
	}
	return false
}

func parseSignatureHeader(header string) (int64, []string, bool) {
	var (
		timestamp  int64
		haveTime   bool
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, false
			}
			timestamp = ts
			haveTime = true
		case "v1":
			if value != "" {
				signatures = append(signatures, strings.ToLower(value))
			}
		}
	}
	if !haveTime || len(signatures) == 0 {
		return 0, nil, false
	}
	return timestamp, signatures, true
}

func computeSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", timestamp, body)))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue builds a header value for body signed at t. Used by
// test harnesses and local replay tooling.
func SignatureHeaderValue(secret string, t time.Time, body []byte) string {
	ts := t.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, computeSignature(secret, ts, body))
}
