package assetsync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xpadev-net/ott-media-sync/internal/db"
	"github.com/xpadev-net/ott-media-sync/internal/log"
	"github.com/xpadev-net/ott-media-sync/internal/notify"
)

func find(ctx context.Context, fn func(context.Context, string) (*db.VideoAsset, error), key string) (*db.VideoAsset, error) {
	if key == "" {
		return nil, nil
	}
	asset, err := fn(ctx, key)
	if errors.Is(err, db.ErrAssetNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find asset %q: %w", key, err)
	}
	return asset, nil
}

// lookup resolves the local record for a remote resource by either key.
// The asset id is tried first because it is authoritative once known.
//
// Two records can exist for one resource when a ready event without an
// upload id created a placeholder before the upload was correlated. In that
// case the upload-keyed record wins (it was created locally and carries the
// real title) and the asset-keyed placeholder is folded into it.
func (p *Processor) lookup(ctx context.Context, uploadID, assetID string) (*db.VideoAsset, error) {
	byAsset, err := find(ctx, p.repo.FindByAssetID, assetID)
	if err != nil {
		return nil, err
	}
	if byAsset != nil && (uploadID == "" || byAsset.Remote.UploadID == uploadID) {
		return byAsset, nil
	}

	byUpload, err := find(ctx, p.repo.FindByUploadID, uploadID)
	if err != nil {
		return nil, err
	}
	switch {
	case byAsset == nil:
		return byUpload, nil
	case byUpload == nil || byUpload.ID == byAsset.ID:
		return byAsset, nil
	case byAsset.Placeholder && byAsset.Remote.UploadID == "":
		return p.fold(ctx, byUpload, byAsset)
	default:
		return byAsset, nil
	}
}

// fold merges placeholder dup into keep and removes dup.
func (p *Processor) fold(ctx context.Context, keep, dup *db.VideoAsset) (*db.VideoAsset, error) {
	if err := p.repo.Delete(ctx, dup.ID); err != nil && !errors.Is(err, db.ErrAssetNotFound) {
		return nil, wrapPersist(dup.ID, fmt.Errorf("delete duplicate placeholder: %w", err))
	}

	patch := recordPatch(dup)
	preview := *keep
	if !db.ApplyPatch(&preview, patch) {
		return keep, nil
	}
	merged, err := p.repo.Update(ctx, keep.ID, patch)
	if err != nil {
		return nil, wrapPersist(keep.ID, fmt.Errorf("merge duplicate placeholder: %w", err))
	}

	log.Info("folded duplicate placeholder",
		zap.String("asset_id", keep.ID),
		zap.String("duplicate_id", dup.ID),
		zap.String("remote_asset_id", dup.Remote.AssetID),
	)
	p.emit(ctx, notify.Event{
		Type:    notify.AssetDeleted,
		AssetID: dup.ID,
		Trigger: "placeholder.merged",
		Fields:  map[string]interface{}{"merged_into": keep.ID},
	})
	return merged, nil
}

// recordPatch turns every populated field of a record into a patch.
func recordPatch(a *db.VideoAsset) db.AssetPatch {
	var patch db.AssetPatch
	if a.Remote.AssetID != "" {
		patch.AssetID = strPtr(a.Remote.AssetID)
	}
	if a.Remote.PlaybackID != "" {
		patch.PlaybackID = strPtr(a.Remote.PlaybackID)
	}
	if a.Remote.Status.IsValid() {
		patch.Status = statusPtr(a.Remote.Status)
	}
	if a.Duration > 0 {
		patch.Duration = floatPtr(a.Duration)
	}
	if a.AspectRatio != "" {
		patch.AspectRatio = strPtr(a.AspectRatio)
	}
	if a.ThumbnailURL != "" {
		patch.ThumbnailURL = strPtr(a.ThumbnailURL)
	}
	if a.NonStandardInput.Detected {
		nsi := a.NonStandardInput
		patch.NonStandardInput = &nsi
	}
	if len(a.Subtitles) > 0 {
		patch.Subtitles = a.Subtitles
	}
	if a.ErrorMessages != nil {
		patch.ErrorMessages = a.ErrorMessages
	}
	return patch
}
