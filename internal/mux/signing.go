package mux

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// TokenAudience selects which playback resource a signed token grants.
type TokenAudience string

const (
	AudienceVideo      TokenAudience = "v"
	AudienceThumbnail  TokenAudience = "t"
	AudienceGIF        TokenAudience = "g"
	AudienceStoryboard TokenAudience = "s"
)

// DefaultTokenExpiry is used when SignOptions.ExpiresIn is unset.
const DefaultTokenExpiry = 7 * 24 * time.Hour

// SignOptions configures a signed playback token. KeyID and KeySecret fall
// back to the client's configured signing key.
type SignOptions struct {
	ExpiresIn time.Duration
	KeyID     string
	KeySecret string
	Audience  TokenAudience
}

type playbackClaims struct {
	jwt.Claims
}

// SignPlaybackToken issues an RS256 token with claims {sub, exp, aud}.
func (c *Client) SignPlaybackToken(playbackID string, opts SignOptions) (string, error) {
	keyID := opts.KeyID
	keySecret := opts.KeySecret
	if keyID == "" && keySecret == "" {
		keyID = c.signingKeyID
		keySecret = c.signingKeySecret
	}
	if keyID == "" || keySecret == "" {
		return "", ErrSigningKeyMissing
	}
	if playbackID == "" {
		return "", errors.New("sign playback token: playback id is required")
	}

	key, err := parseSigningKey(keySecret)
	if err != nil {
		return "", fmt.Errorf("sign playback token: %w", err)
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", keyID),
	)
	if err != nil {
		return "", fmt.Errorf("sign playback token: create signer: %w", err)
	}

	expiresIn := opts.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = DefaultTokenExpiry
	}
	aud := opts.Audience
	if aud == "" {
		aud = AudienceVideo
	}

	claims := playbackClaims{Claims: jwt.Claims{
		Subject:  playbackID,
		Audience: jwt.Audience{string(aud)},
		Expiry:   jwt.NewNumericDate(c.clock.Now().Add(expiresIn)),
	}}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("sign playback token: serialize: %w", err)
	}
	return token, nil
}

// SignedPlaybackURL returns the HLS URL for playbackID carrying a video-audience token.
func (c *Client) SignedPlaybackURL(playbackID string, opts SignOptions) (string, error) {
	opts.Audience = AudienceVideo
	token, err := c.SignPlaybackToken(playbackID, opts)
	if err != nil {
		return "", err
	}
	return PlaybackURL(playbackID, token), nil
}

// parseSigningKey accepts a PEM private key, either raw or base64 encoded.
func parseSigningKey(secret string) (*rsa.PrivateKey, error) {
	data := []byte(strings.TrimSpace(secret))
	if !strings.HasPrefix(string(data), "-----BEGIN") {
		decoded, err := base64.StdEncoding.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("decode signing key: %w", err)
		}
		data = decoded
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("signing key is not PEM encoded")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing key is not an RSA key")
	}
	return key, nil
}
