package api

import (
	"context"
	"errors"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xpadev-net/ott-media-sync/internal/httpapi"
	"github.com/xpadev-net/ott-media-sync/internal/livehealth"
	"github.com/xpadev-net/ott-media-sync/internal/log"
	"github.com/xpadev-net/ott-media-sync/internal/mux"
)

var validLatencyModes = map[string]bool{
	"low":      true,
	"reduced":  true,
	"standard": true,
}

// CreateLiveStreamRequest represents the request body for creating a live stream.
type CreateLiveStreamRequest struct {
	PlaybackPolicy  string                `json:"playback_policy,omitempty"`
	LatencyMode     string                `json:"latency_mode,omitempty"`
	ReconnectWindow float64               `json:"reconnect_window,omitempty"`
	Passthrough     string                `json:"passthrough,omitempty"`
	Record          bool                  `json:"record,omitempty"`
	Simulcast       []mux.SimulcastTarget `json:"simulcast_targets,omitempty"`
	Test            bool                  `json:"test,omitempty"`
}

// CreateLiveStream handles POST /api/v1/live-streams
func (h *Handler) CreateLiveStream(c *gin.Context) {
	var req CreateLiveStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.RespondValidationError(c, "Invalid request body: "+err.Error())
		return
	}

	policy := req.PlaybackPolicy
	if policy == "" {
		policy = mux.PolicyPublic
	}
	if policy != mux.PolicyPublic && policy != mux.PolicySigned {
		httpapi.RespondValidationError(c, "playback_policy must be public or signed")
		return
	}
	if req.LatencyMode != "" && !validLatencyModes[req.LatencyMode] {
		httpapi.RespondValidationError(c, "latency_mode must be low, reduced or standard")
		return
	}
	if req.ReconnectWindow < 0 || req.ReconnectWindow > 1800 {
		httpapi.RespondValidationError(c, "reconnect_window must be between 0 and 1800 seconds")
		return
	}
	for _, t := range req.Simulcast {
		if err := validateRTMPURL(t.URL); err != nil {
			httpapi.RespondValidationError(c, err.Error())
			return
		}
	}

	opts := mux.LiveStreamOptions{
		PlaybackPolicy:   []string{policy},
		LatencyMode:      req.LatencyMode,
		ReconnectWindow:  req.ReconnectWindow,
		Passthrough:      req.Passthrough,
		SimulcastTargets: req.Simulcast,
		Test:             req.Test,
	}
	if req.Record {
		opts.NewAssetSettings = &mux.NewAssetSettings{PlaybackPolicy: []string{policy}}
	}

	stream, err := h.liveStreams.CreateLiveStream(c.Request.Context(), opts)
	if err != nil {
		respondProviderError(c, "create live stream", err)
		return
	}

	log.Info("live stream created", zap.String("stream_id", stream.ID))
	httpapi.RespondCreated(c, stream)
}

// GetLiveStream handles GET /api/v1/live-streams/:stream_id
func (h *Handler) GetLiveStream(c *gin.Context) {
	stream, err := h.liveStreams.GetLiveStream(c.Request.Context(), c.Param("stream_id"))
	if err != nil {
		respondProviderError(c, "get live stream", err)
		return
	}
	httpapi.RespondOK(c, stream)
}

// UpdateLiveStream handles PATCH /api/v1/live-streams/:stream_id
func (h *Handler) UpdateLiveStream(c *gin.Context) {
	var req mux.LiveStreamUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.RespondValidationError(c, "Invalid request body: "+err.Error())
		return
	}
	if req.LatencyMode != nil && !validLatencyModes[*req.LatencyMode] {
		httpapi.RespondValidationError(c, "latency_mode must be low, reduced or standard")
		return
	}

	stream, err := h.liveStreams.UpdateLiveStream(c.Request.Context(), c.Param("stream_id"), req)
	if err != nil {
		respondProviderError(c, "update live stream", err)
		return
	}
	httpapi.RespondOK(c, stream)
}

// DeleteLiveStream handles DELETE /api/v1/live-streams/:stream_id
func (h *Handler) DeleteLiveStream(c *gin.Context) {
	id := c.Param("stream_id")
	if err := h.liveStreams.DeleteLiveStream(c.Request.Context(), id); err != nil {
		respondProviderError(c, "delete live stream", err)
		return
	}
	log.Info("live stream deleted", zap.String("stream_id", id))
	httpapi.RespondNoContent(c)
}

// EnableLiveStream handles POST /api/v1/live-streams/:stream_id/enable
func (h *Handler) EnableLiveStream(c *gin.Context) {
	h.streamAction(c, "enable live stream", h.liveStreams.EnableLiveStream)
}

// DisableLiveStream handles POST /api/v1/live-streams/:stream_id/disable
func (h *Handler) DisableLiveStream(c *gin.Context) {
	h.streamAction(c, "disable live stream", h.liveStreams.DisableLiveStream)
}

// CompleteLiveStream handles POST /api/v1/live-streams/:stream_id/complete
func (h *Handler) CompleteLiveStream(c *gin.Context) {
	h.streamAction(c, "complete live stream", h.liveStreams.CompleteLiveStream)
}

// streamAction runs a control call. The provider applies it asynchronously,
// so callers re-fetch the stream to observe the effect.
func (h *Handler) streamAction(c *gin.Context, op string, action func(ctx context.Context, id string) error) {
	id := c.Param("stream_id")
	if err := action(c.Request.Context(), id); err != nil {
		respondProviderError(c, op, err)
		return
	}
	log.Info(op, zap.String("stream_id", id))
	httpapi.RespondAccepted(c, gin.H{"stream_id": id, "status": "accepted"})
}

// ResetStreamKey handles POST /api/v1/live-streams/:stream_id/reset-stream-key
func (h *Handler) ResetStreamKey(c *gin.Context) {
	stream, err := h.liveStreams.ResetStreamKey(c.Request.Context(), c.Param("stream_id"))
	if err != nil {
		respondProviderError(c, "reset stream key", err)
		return
	}
	httpapi.RespondOK(c, stream)
}

// SetRecordingRequest represents the request body for toggling recording.
type SetRecordingRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetRecording handles PUT /api/v1/live-streams/:stream_id/recording
func (h *Handler) SetRecording(c *gin.Context) {
	var req SetRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.RespondValidationError(c, "Invalid request body: "+err.Error())
		return
	}

	stream, err := h.liveStreams.SetLiveStreamRecording(c.Request.Context(), c.Param("stream_id"), *req.Enabled)
	if err != nil {
		respondProviderError(c, "set live stream recording", err)
		return
	}
	httpapi.RespondOK(c, stream)
}

// CreateSimulcastTargetRequest represents the request body for adding a relay.
type CreateSimulcastTargetRequest struct {
	URL         string `json:"url" binding:"required"`
	StreamKey   string `json:"stream_key,omitempty"`
	Passthrough string `json:"passthrough,omitempty"`
}

// CreateSimulcastTarget handles POST /api/v1/live-streams/:stream_id/simulcast-targets
func (h *Handler) CreateSimulcastTarget(c *gin.Context) {
	var req CreateSimulcastTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.RespondValidationError(c, "Invalid request body: "+err.Error())
		return
	}
	if err := validateRTMPURL(req.URL); err != nil {
		httpapi.RespondValidationError(c, err.Error())
		return
	}

	target, err := h.liveStreams.CreateSimulcastTarget(c.Request.Context(), c.Param("stream_id"), mux.SimulcastTarget{
		URL:         req.URL,
		StreamKey:   req.StreamKey,
		Passthrough: req.Passthrough,
	})
	if err != nil {
		respondProviderError(c, "create simulcast target", err)
		return
	}
	httpapi.RespondCreated(c, target)
}

// DeleteSimulcastTarget handles DELETE /api/v1/live-streams/:stream_id/simulcast-targets/:target_id
func (h *Handler) DeleteSimulcastTarget(c *gin.Context) {
	if err := h.liveStreams.DeleteSimulcastTarget(c.Request.Context(), c.Param("stream_id"), c.Param("target_id")); err != nil {
		respondProviderError(c, "delete simulcast target", err)
		return
	}
	httpapi.RespondNoContent(c)
}

// GetLiveStreamHealth handles GET /api/v1/live-streams/:stream_id/health
func (h *Handler) GetLiveStreamHealth(c *gin.Context) {
	rec, err := h.health.Snapshot(c.Request.Context(), c.Param("stream_id"))
	if err != nil {
		if errors.Is(err, livehealth.ErrNoStreamID) {
			httpapi.RespondValidationError(c, "Stream ID is required")
			return
		}
		respondProviderError(c, "live stream health", err)
		return
	}
	httpapi.RespondOK(c, rec)
}

func validateRTMPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "rtmp" && u.Scheme != "rtmps") || u.Host == "" {
		return errors.New("simulcast url must be an rtmp:// or rtmps:// URL")
	}
	return nil
}
