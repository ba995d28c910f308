package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xpadev-net/ott-media-sync/internal/db"
	"github.com/xpadev-net/ott-media-sync/internal/httpapi"
	"github.com/xpadev-net/ott-media-sync/internal/ids"
	"github.com/xpadev-net/ott-media-sync/internal/log"
	"github.com/xpadev-net/ott-media-sync/internal/mux"
	"github.com/xpadev-net/ott-media-sync/internal/notify"
)

const maxTitleLength = 255

var validAssetStatuses = map[db.AssetStatus]bool{
	db.StatusUploading:  true,
	db.StatusProcessing: true,
	db.StatusReady:      true,
	db.StatusError:      true,
}

// CreateUploadRequest represents the request body for starting a direct upload.
type CreateUploadRequest struct {
	Title          string `json:"title" binding:"required"`
	PlaybackPolicy string `json:"playback_policy,omitempty"`
	Passthrough    string `json:"passthrough,omitempty"`
	MaxResolution  string `json:"max_resolution_tier,omitempty"`
	CORSOrigin     string `json:"cors_origin,omitempty"`
	Test           bool   `json:"test,omitempty"`
}

// CreateUploadResponse represents the response for starting a direct upload.
type CreateUploadResponse struct {
	Asset     *db.VideoAsset `json:"asset"`
	UploadID  string         `json:"upload_id"`
	UploadURL string         `json:"upload_url"`
}

// CreateUpload handles POST /api/v1/uploads
func (h *Handler) CreateUpload(c *gin.Context) {
	var req CreateUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.RespondValidationError(c, "Invalid request body: "+err.Error())
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || len(req.Title) > maxTitleLength {
		httpapi.RespondValidationError(c, "Title must be between 1 and 255 characters")
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
	corsOrigin := req.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = h.corsOrigin
	}

	ctx := c.Request.Context()
	upload, err := h.videos.CreateDirectUpload(ctx, mux.DirectUploadOptions{
		CORSOrigin: corsOrigin,
		NewAssetSettings: mux.NewAssetSettings{
			PlaybackPolicy: []string{policy},
			Passthrough:    req.Passthrough,
			MaxResolution:  req.MaxResolution,
		},
		Test: req.Test,
	})
	if err != nil {
		respondProviderError(c, "create direct upload", err)
		return
	}

	asset, err := h.assets.Create(ctx, db.CreateAssetParams{
		ID:         ids.NewAssetID(),
		Title:      req.Title,
		SourceType: db.SourceRemote,
		UploadID:   upload.ID,
		Status:     db.StatusUploading,
	})
	if errors.Is(err, db.ErrDuplicateAsset) {
		// A provider webhook got here first and left a placeholder.
		asset, err = h.adoptPlaceholder(c, upload.ID, req.Title)
	}
	if err != nil {
		log.Error("failed to record upload",
			zap.String("upload_id", upload.ID),
			zap.Error(err),
		)
		httpapi.RespondError(c, http.StatusInternalServerError, httpapi.ErrCodeDatabase, "Failed to record upload")
		return
	}

	log.Info("direct upload created",
		zap.String("asset_id", asset.ID),
		zap.String("upload_id", upload.ID),
	)
	h.emit(ctx, notify.Event{
		Type:    notify.AssetCreated,
		AssetID: asset.ID,
		Trigger: "api.upload",
		Status:  string(asset.Remote.Status),
		Fields:  map[string]interface{}{"upload_id": upload.ID, "title": asset.Title},
	})

	httpapi.RespondCreated(c, CreateUploadResponse{
		Asset:     asset,
		UploadID:  upload.ID,
		UploadURL: upload.URL,
	})
}

func (h *Handler) adoptPlaceholder(c *gin.Context, uploadID, title string) (*db.VideoAsset, error) {
	ctx := c.Request.Context()
	existing, err := h.assets.FindByUploadID(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	return h.assets.Update(ctx, existing.ID, db.AssetPatch{Title: &title})
}

// AssetResponse is a local record with the provider's current view of it.
type AssetResponse struct {
	*db.VideoAsset
	RemoteAsset *mux.Asset `json:"remote_asset,omitempty"`
}

// GetAsset handles GET /api/v1/assets/:asset_id
func (h *Handler) GetAsset(c *gin.Context) {
	asset, ok := h.loadAsset(c)
	if !ok {
		return
	}

	resp := AssetResponse{VideoAsset: asset}
	if asset.Remote.AssetID != "" {
		remote, err := h.videos.GetAsset(c.Request.Context(), asset.Remote.AssetID)
		if err != nil {
			log.Warn("failed to fetch remote asset",
				zap.String("asset_id", asset.ID),
				zap.String("remote_asset_id", asset.Remote.AssetID),
				zap.Error(err),
			)
		}
		resp.RemoteAsset = remote
	}

	httpapi.RespondOK(c, resp)
}

// PatchAssetRequest represents the request body for updating an asset.
type PatchAssetRequest struct {
	Title       *string `json:"title,omitempty"`
	Passthrough *string `json:"passthrough,omitempty"`
}

// PatchAsset handles PATCH /api/v1/assets/:asset_id
func (h *Handler) PatchAsset(c *gin.Context) {
	var req PatchAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.RespondValidationError(c, "Invalid request body: "+err.Error())
		return
	}
	if req.Title == nil && req.Passthrough == nil {
		httpapi.RespondValidationError(c, "Nothing to update")
		return
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" || len(title) > maxTitleLength {
			httpapi.RespondValidationError(c, "Title must be between 1 and 255 characters")
			return
		}
		req.Title = &title
	}

	asset, ok := h.loadAsset(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if req.Passthrough != nil {
		if asset.Remote.AssetID == "" {
			httpapi.RespondConflict(c, httpapi.ErrCodeValidation, "Asset has not been created remotely yet")
			return
		}
		if _, err := h.videos.UpdateAsset(ctx, asset.Remote.AssetID, mux.AssetUpdate{Passthrough: req.Passthrough}); err != nil {
			respondProviderError(c, "update asset", err)
			return
		}
	}

	if req.Title != nil {
		updated, err := h.assets.Update(ctx, asset.ID, db.AssetPatch{Title: req.Title})
		if err != nil {
			if errors.Is(err, db.ErrAssetNotFound) {
				httpapi.RespondNotFound(c, "Asset not found")
				return
			}
			log.Error("failed to update asset", zap.String("asset_id", asset.ID), zap.Error(err))
			httpapi.RespondInternalError(c, "Failed to update asset")
			return
		}
		asset = updated
	}

	h.emit(ctx, notify.Event{
		Type:    notify.AssetUpdated,
		AssetID: asset.ID,
		Trigger: "api.patch",
		Status:  string(asset.Remote.Status),
		Fields:  map[string]interface{}{"title": asset.Title},
	})
	httpapi.RespondOK(c, asset)
}

// DeleteAsset handles DELETE /api/v1/assets/:asset_id
//
// The remote asset is deleted first; if that fails the local record is kept so
// the delete can be retried.
func (h *Handler) DeleteAsset(c *gin.Context) {
	asset, ok := h.loadAsset(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if asset.Remote.AssetID != "" && !h.videos.DeleteAsset(ctx, asset.Remote.AssetID) {
		httpapi.RespondBadGateway(c, "Failed to delete remote asset")
		return
	}

	if err := h.assets.Delete(ctx, asset.ID); err != nil && !errors.Is(err, db.ErrAssetNotFound) {
		log.Error("failed to delete asset", zap.String("asset_id", asset.ID), zap.Error(err))
		httpapi.RespondInternalError(c, "Failed to delete asset")
		return
	}

	log.Info("asset deleted",
		zap.String("asset_id", asset.ID),
		zap.String("remote_asset_id", asset.Remote.AssetID),
	)
	h.emit(ctx, notify.Event{
		Type:    notify.AssetDeleted,
		AssetID: asset.ID,
		Trigger: "api.delete",
		Status:  string(asset.Remote.Status),
	})
	httpapi.RespondNoContent(c)
}

// ListAssetsResponse represents the response for listing assets.
type ListAssetsResponse struct {
	Assets     []*db.VideoAsset   `json:"assets"`
	Pagination httpapi.Pagination `json:"pagination"`
}

// ListAssets handles GET /api/v1/assets
func (h *Handler) ListAssets(c *gin.Context) {
	var params db.ListParams

	if status := c.Query("status"); status != "" {
		s := db.AssetStatus(status)
		if !validAssetStatuses[s] {
			httpapi.RespondValidationError(c, "Invalid status value")
			return
		}
		params.Status = &s
	}
	params.Limit, params.Offset = pagination(c)

	assets, total, err := h.assets.List(c.Request.Context(), params)
	if err != nil {
		log.Error("failed to list assets", zap.Error(err))
		httpapi.RespondInternalError(c, "Failed to list assets")
		return
	}
	if assets == nil {
		assets = []*db.VideoAsset{}
	}

	httpapi.RespondOK(c, ListAssetsResponse{
		Assets:     assets,
		Pagination: httpapi.NewPagination(total, effectiveLimit(params.Limit), params.Offset),
	})
}

// EventSummary is one asset event in the list response.
type EventSummary struct {
	EventID   string      `json:"event_id"`
	EventType string      `json:"event_type"`
	Payload   interface{} `json:"payload"`
	CreatedAt string      `json:"created_at"`
}

// ListEventsResponse represents the response for listing asset events.
type ListEventsResponse struct {
	Events     []EventSummary     `json:"events"`
	Pagination httpapi.Pagination `json:"pagination"`
}

// ListAssetEvents handles GET /api/v1/assets/:asset_id/events
func (h *Handler) ListAssetEvents(c *gin.Context) {
	asset, ok := h.loadAsset(c)
	if !ok {
		return
	}

	var params db.ListEventsParams
	params.Limit, params.Offset = pagination(c)

	events, total, err := h.events.ListEvents(c.Request.Context(), asset.ID, params)
	if err != nil {
		log.Error("failed to list events", zap.String("asset_id", asset.ID), zap.Error(err))
		httpapi.RespondInternalError(c, "Failed to list events")
		return
	}

	summaries := make([]EventSummary, len(events))
	for i, e := range events {
		summaries[i] = EventSummary{
			EventID:   e.ID.String(),
			EventType: e.EventType,
			Payload:   e.Payload,
			CreatedAt: formatTime(e.CreatedAt),
		}
	}

	httpapi.RespondOK(c, ListEventsResponse{
		Events:     summaries,
		Pagination: httpapi.NewPagination(total, effectiveLimit(params.Limit), params.Offset),
	})
}

func (h *Handler) loadAsset(c *gin.Context) (*db.VideoAsset, bool) {
	id := c.Param("asset_id")
	if !ids.IsValidAssetID(id) {
		httpapi.RespondValidationError(c, "Invalid asset ID")
		return nil, false
	}

	asset, err := h.assets.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrAssetNotFound) {
			httpapi.RespondNotFound(c, "Asset not found")
			return nil, false
		}
		log.Error("failed to get asset", zap.String("asset_id", id), zap.Error(err))
		httpapi.RespondInternalError(c, "Failed to get asset")
		return nil, false
	}
	return asset, true
}

func pagination(c *gin.Context) (limit, offset int) {
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func effectiveLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 100:
		return 100
	default:
		return limit
	}
}
