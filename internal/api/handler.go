package api

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xpadev-net/ott-media-sync/internal/assetsync"
	"github.com/xpadev-net/ott-media-sync/internal/clock"
	"github.com/xpadev-net/ott-media-sync/internal/db"
	"github.com/xpadev-net/ott-media-sync/internal/httpapi"
	"github.com/xpadev-net/ott-media-sync/internal/livehealth"
	"github.com/xpadev-net/ott-media-sync/internal/log"
	"github.com/xpadev-net/ott-media-sync/internal/mux"
	"github.com/xpadev-net/ott-media-sync/internal/notify"
	"github.com/xpadev-net/ott-media-sync/internal/purge"
)

// AssetStore persists local video asset records.
type AssetStore interface {
	Create(ctx context.Context, params db.CreateAssetParams) (*db.VideoAsset, error)
	GetByID(ctx context.Context, id string) (*db.VideoAsset, error)
	FindByUploadID(ctx context.Context, uploadID string) (*db.VideoAsset, error)
	Update(ctx context.Context, id string, patch db.AssetPatch) (*db.VideoAsset, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, params db.ListParams) ([]*db.VideoAsset, int, error)
}

// EventLister reads the per-asset event log.
type EventLister interface {
	ListEvents(ctx context.Context, assetID string, params db.ListEventsParams) ([]*db.AssetEvent, int, error)
}

// VideoService is the part of the provider client used for assets.
type VideoService interface {
	CreateDirectUpload(ctx context.Context, opts mux.DirectUploadOptions) (*mux.Upload, error)
	GetAsset(ctx context.Context, assetID string) (*mux.Asset, error)
	UpdateAsset(ctx context.Context, assetID string, update mux.AssetUpdate) (*mux.Asset, error)
	DeleteAsset(ctx context.Context, assetID string) bool
	SignPlaybackToken(playbackID string, opts mux.SignOptions) (string, error)
	VerifyWebhookSignature(header string, body []byte) bool
}

// LiveStreamService is the part of the provider client used for live streams.
type LiveStreamService interface {
	CreateLiveStream(ctx context.Context, opts mux.LiveStreamOptions) (*mux.LiveStream, error)
	GetLiveStream(ctx context.Context, id string) (*mux.LiveStream, error)
	UpdateLiveStream(ctx context.Context, id string, update mux.LiveStreamUpdate) (*mux.LiveStream, error)
	DeleteLiveStream(ctx context.Context, id string) error
	EnableLiveStream(ctx context.Context, id string) error
	DisableLiveStream(ctx context.Context, id string) error
	ResetStreamKey(ctx context.Context, id string) (*mux.LiveStream, error)
	CompleteLiveStream(ctx context.Context, id string) error
	SetLiveStreamRecording(ctx context.Context, id string, enabled bool) (*mux.LiveStream, error)
	CreateSimulcastTarget(ctx context.Context, streamID string, target mux.SimulcastTarget) (*mux.SimulcastTarget, error)
	DeleteSimulcastTarget(ctx context.Context, streamID, targetID string) error
}

// EventProcessor reconciles local state from a verified provider webhook.
type EventProcessor interface {
	Handle(ctx context.Context, event assetsync.Event) assetsync.Outcome
}

// Purger deletes every remote asset.
type Purger interface {
	DeleteAll(ctx context.Context) (purge.Result, error)
}

// HealthSource produces the live-stream health projection.
type HealthSource interface {
	Snapshot(ctx context.Context, streamID string) (livehealth.Record, error)
}

// Deps holds the collaborators of a Handler.
type Deps struct {
	Assets      AssetStore
	Events      EventLister
	Videos      VideoService
	LiveStreams LiveStreamService
	Processor   EventProcessor
	Purger      Purger
	Health      HealthSource
	Emitter     notify.Emitter
	Clock       clock.Clock

	// CORSOrigin is passed to the provider for browser direct uploads.
	CORSOrigin string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	assets      AssetStore
	events      EventLister
	videos      VideoService
	liveStreams LiveStreamService
	processor   EventProcessor
	health      HealthSource
	emitter     notify.Emitter
	clock       clock.Clock
	corsOrigin  string
	purgeJobs   *purgeJobs
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	emitter := deps.Emitter
	if emitter == nil {
		emitter = notify.LogEmitter{}
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &Handler{
		purgeJobs:   newPurgeJobs(deps.Purger, clk),
		assets:      deps.Assets,
		events:      deps.Events,
		videos:      deps.Videos,
		liveStreams: deps.LiveStreams,
		processor:   deps.Processor,
		health:      deps.Health,
		emitter:     emitter,
		clock:       clk,
		corsOrigin:  deps.CORSOrigin,
	}
}

// Register mounts the webhook ingress and the authenticated v1 API on router.
// The middlewares guard the v1 group only; provider webhooks authenticate by
// signature.
func (h *Handler) Register(router gin.IRouter, middlewares ...gin.HandlerFunc) {
	router.POST("/webhooks/mux", h.ReceiveWebhook)

	v1 := router.Group("/api/v1")
	v1.Use(middlewares...)
	{
		v1.POST("/uploads", h.CreateUpload)
		v1.GET("/assets", h.ListAssets)
		v1.POST("/assets/purge", h.PurgeAssets)
		v1.GET("/purge-jobs/:job_id", h.GetPurgeJob)
		v1.GET("/assets/:asset_id", h.GetAsset)
		v1.PATCH("/assets/:asset_id", h.PatchAsset)
		v1.DELETE("/assets/:asset_id", h.DeleteAsset)
		v1.GET("/assets/:asset_id/events", h.ListAssetEvents)
		v1.GET("/assets/:asset_id/playback", h.GetPlayback)

		v1.POST("/live-streams", h.CreateLiveStream)
		v1.GET("/live-streams/:stream_id", h.GetLiveStream)
		v1.PATCH("/live-streams/:stream_id", h.UpdateLiveStream)
		v1.DELETE("/live-streams/:stream_id", h.DeleteLiveStream)
		v1.POST("/live-streams/:stream_id/enable", h.EnableLiveStream)
		v1.POST("/live-streams/:stream_id/disable", h.DisableLiveStream)
		v1.POST("/live-streams/:stream_id/complete", h.CompleteLiveStream)
		v1.POST("/live-streams/:stream_id/reset-stream-key", h.ResetStreamKey)
		v1.PUT("/live-streams/:stream_id/recording", h.SetRecording)
		v1.POST("/live-streams/:stream_id/simulcast-targets", h.CreateSimulcastTarget)
		v1.DELETE("/live-streams/:stream_id/simulcast-targets/:target_id", h.DeleteSimulcastTarget)
		v1.GET("/live-streams/:stream_id/health", h.GetLiveStreamHealth)
	}
}

func (h *Handler) emit(ctx context.Context, event notify.Event) {
	event.OccurredAt = h.clock.Now()
	if err := h.emitter.Emit(ctx, event); err != nil {
		log.Warn("domain event emission failed",
			zap.String("event_type", string(event.Type)),
			zap.String("asset_id", event.AssetID),
			zap.Error(err),
		)
	}
}

// respondProviderError maps a provider failure onto the HTTP error envelope.
func respondProviderError(c *gin.Context, op string, err error) {
	switch {
	case mux.IsNotFound(err):
		httpapi.RespondNotFound(c, "Remote resource not found")
	case mux.IsTransient(err):
		log.Warn("provider temporarily unavailable", zap.String("op", op), zap.Error(err))
		httpapi.RespondUnavailable(c, httpapi.ErrCodeProviderUnavailable, "Video provider is temporarily unavailable")
	case errors.Is(err, mux.ErrSigningKeyMissing):
		httpapi.RespondUnavailable(c, httpapi.ErrCodeSigningNotConfigured, "Playback signing key is not configured")
	default:
		log.Error("provider call failed", zap.String("op", op), zap.Error(err))
		httpapi.RespondBadGateway(c, "Video provider request failed")
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
