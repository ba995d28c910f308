package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xpadev-net/ott-media-sync/internal/httpapi"
	"github.com/xpadev-net/ott-media-sync/internal/mux"
)

const maxTokenExpiry = 30 * 24 * time.Hour

// PlaybackResponse lists the URLs a player needs for one asset.
type PlaybackResponse struct {
	PlaybackID    string `json:"playback_id"`
	Signed        bool   `json:"signed"`
	StreamURL     string `json:"stream_url"`
	ThumbnailURL  string `json:"thumbnail_url"`
	StoryboardURL string `json:"storyboard_url"`
	AnimatedURL   string `json:"animated_url"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// GetPlayback handles GET /api/v1/assets/:asset_id/playback
//
// Query parameters: signed=true issues tokens with the configured signing key,
// expires_in sets the token lifetime in seconds, and thumbnail_time/width
// shape the public thumbnail.
func (h *Handler) GetPlayback(c *gin.Context) {
	signed := c.Query("signed") == "true"

	var expiresIn time.Duration
	if v := c.Query("expires_in"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 || time.Duration(secs)*time.Second > maxTokenExpiry {
			httpapi.RespondValidationError(c, "expires_in must be a positive number of seconds up to 30 days")
			return
		}
		expiresIn = time.Duration(secs) * time.Second
	}

	thumb := mux.ThumbnailOptions{}
	if v := c.Query("thumbnail_time"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 {
			httpapi.RespondValidationError(c, "thumbnail_time must be a non-negative number")
			return
		}
		thumb.Time = &t
	}
	if v := c.Query("width"); v != "" {
		w, err := strconv.Atoi(v)
		if err != nil || w <= 0 {
			httpapi.RespondValidationError(c, "width must be a positive integer")
			return
		}
		thumb.Width = w
	}

	asset, ok := h.loadAsset(c)
	if !ok {
		return
	}
	pid := asset.Remote.PlaybackID
	if pid == "" {
		httpapi.RespondNotFound(c, "Asset has no playback ID yet")
		return
	}

	if !signed {
		httpapi.RespondOK(c, PlaybackResponse{
			PlaybackID:    pid,
			StreamURL:     mux.PlaybackURL(pid, ""),
			ThumbnailURL:  mux.ThumbnailURL(pid, thumb),
			StoryboardURL: mux.StoryboardURL(pid, "", ""),
			AnimatedURL:   mux.AnimatedURL(pid, mux.AnimatedOptions{}),
		})
		return
	}

	tokens := make(map[mux.TokenAudience]string, 4)
	for _, aud := range []mux.TokenAudience{mux.AudienceVideo, mux.AudienceThumbnail, mux.AudienceStoryboard, mux.AudienceGIF} {
		token, err := h.videos.SignPlaybackToken(pid, mux.SignOptions{ExpiresIn: expiresIn, Audience: aud})
		if err != nil {
			respondProviderError(c, "sign playback token", err)
			return
		}
		tokens[aud] = token
	}

	if expiresIn == 0 {
		expiresIn = mux.DefaultTokenExpiry
	}
	httpapi.RespondOK(c, PlaybackResponse{
		PlaybackID:    pid,
		Signed:        true,
		StreamURL:     mux.PlaybackURL(pid, tokens[mux.AudienceVideo]),
		ThumbnailURL:  mux.ThumbnailURL(pid, mux.ThumbnailOptions{Token: tokens[mux.AudienceThumbnail]}),
		StoryboardURL: mux.StoryboardURL(pid, "", tokens[mux.AudienceStoryboard]),
		AnimatedURL:   mux.AnimatedURL(pid, mux.AnimatedOptions{Token: tokens[mux.AudienceGIF]}),
		ExpiresAt:     formatTime(h.clock.Now().Add(expiresIn)),
	})
}
