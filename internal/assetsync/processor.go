// Package assetsync reconciles local video asset records with the provider's
// webhook feed. Deliveries may be duplicated, reordered or concurrent; every
// write goes through merge rules that only move state forward, so no locking
// is needed.
package assetsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xpadev-net/ott-media-sync/internal/clock"
	"github.com/xpadev-net/ott-media-sync/internal/db"
	"github.com/xpadev-net/ott-media-sync/internal/ids"
	"github.com/xpadev-net/ott-media-sync/internal/log"
	"github.com/xpadev-net/ott-media-sync/internal/mux"
	"github.com/xpadev-net/ott-media-sync/internal/notify"
)

// Repository is the document store for asset records.
type Repository interface {
	FindByUploadID(ctx context.Context, uploadID string) (*db.VideoAsset, error)
	FindByAssetID(ctx context.Context, assetID string) (*db.VideoAsset, error)
	Create(ctx context.Context, params db.CreateAssetParams) (*db.VideoAsset, error)
	Update(ctx context.Context, id string, patch db.AssetPatch) (*db.VideoAsset, error)
	Delete(ctx context.Context, id string) error
}

// CacheInvalidator drops cached remote asset views.
type CacheInvalidator interface {
	InvalidateAsset(assetID string)
}

// Processor applies provider webhook events to local asset records.
type Processor struct {
	repo    Repository
	cache   CacheInvalidator
	emitter notify.Emitter
	clock   clock.Clock
}

// NewProcessor creates a processor. A nil emitter logs events; a nil clock
// uses wall time.
func NewProcessor(repo Repository, cache CacheInvalidator, emitter notify.Emitter, clk clock.Clock) *Processor {
	if emitter == nil {
		emitter = notify.LogEmitter{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Processor{repo: repo, cache: cache, emitter: emitter, clock: clk}
}

// Handle applies one event. It never returns an error: persistence failures
// are logged and reported as an asset.error domain event, because the
// provider redelivers anything that is not acknowledged.
func (p *Processor) Handle(ctx context.Context, event Event) Outcome {
	var (
		outcome Outcome
		err     error
	)
	switch event.Type {
	case EventAssetCreated:
		outcome, err = p.handleCreated(ctx, event)
	case EventAssetReady:
		outcome, err = p.handleReady(ctx, event)
	case EventAssetErrored:
		outcome, err = p.handleErrored(ctx, event)
	case EventAssetDeleted:
		outcome, err = p.handleDeleted(ctx, event)
	case EventUploadAssetCreated:
		outcome, err = p.handleUploadAssetCreated(ctx, event)
	case EventNonStandardInputFound:
		outcome, err = p.handleNonStandardInput(ctx, event)
	default:
		log.Info("ignoring unhandled webhook event", zap.String("type", event.Type))
		return OutcomeIgnored
	}

	if err != nil {
		var decodeErr *decodeError
		if errors.As(err, &decodeErr) {
			log.Warn("malformed webhook event data",
				zap.String("type", event.Type),
				zap.Error(err),
			)
			return OutcomeIgnored
		}
		log.Error("webhook event processing failed",
			zap.String("type", event.Type),
			zap.Error(err),
		)
		p.emit(ctx, notify.Event{
			Type:    notify.AssetError,
			AssetID: failedAssetID(err),
			Trigger: event.Type,
			Error:   err.Error(),
		})
		return OutcomeFailed
	}

	log.Debug("webhook event processed",
		zap.String("type", event.Type),
		zap.String("outcome", string(outcome)),
	)
	return outcome
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "decode event data: " + e.err.Error() }

func (e *decodeError) Unwrap() error { return e.err }

// persistError carries the id of the record a failed write was aimed at.
type persistError struct {
	assetID string
	err     error
}

func (e *persistError) Error() string { return e.err.Error() }

func (e *persistError) Unwrap() error { return e.err }

func failedAssetID(err error) string {
	var pe *persistError
	if errors.As(err, &pe) {
		return pe.assetID
	}
	return ""
}

func wrapPersist(id string, err error) error {
	if err == nil {
		return nil
	}
	return &persistError{assetID: id, err: err}
}

func decodeAsset(event Event) (*mux.Asset, error) {
	var asset mux.Asset
	if err := json.Unmarshal(event.Data, &asset); err != nil {
		return nil, &decodeError{err: err}
	}
	if asset.ID == "" && asset.UploadID == "" {
		return nil, &decodeError{err: errors.New("event carries neither asset id nor upload id")}
	}
	return &asset, nil
}

func (p *Processor) emit(ctx context.Context, event notify.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.clock.Now()
	}
	if err := p.emitter.Emit(ctx, event); err != nil {
		log.Warn("domain event emission failed",
			zap.String("event_type", string(event.Type)),
			zap.String("asset_id", event.AssetID),
			zap.Error(err),
		)
	}
}

func (p *Processor) invalidate(assetID string) {
	if p.cache != nil && assetID != "" {
		p.cache.InvalidateAsset(assetID)
	}
}

func (p *Processor) handleCreated(ctx context.Context, event Event) (Outcome, error) {
	asset, err := decodeAsset(event)
	if err != nil {
		return "", err
	}

	patch := remotePatch(asset)
	patch.Status = statusPtr(db.StatusProcessing)
	return p.upsert(ctx, event.Type, asset.UploadID, asset.ID, patch, db.StatusProcessing)
}

func (p *Processor) handleReady(ctx context.Context, event Event) (Outcome, error) {
	asset, err := decodeAsset(event)
	if err != nil {
		return "", err
	}

	existing, err := p.lookup(ctx, asset.UploadID, asset.ID)
	if err != nil {
		return "", err
	}
	// ready is a no-op on a record that is already ready, and error is
	// terminal too.
	if existing != nil && existing.Remote.Status.IsTerminal() {
		return OutcomeNoop, nil
	}

	patch := remotePatch(asset)
	patch.Status = statusPtr(db.StatusReady)
	if asset.Duration > 0 {
		patch.Duration = floatPtr(asset.Duration)
	}
	if asset.AspectRatio != "" {
		patch.AspectRatio = strPtr(asset.AspectRatio)
	}

	defer p.invalidate(asset.ID)
	return p.apply(ctx, event.Type, existing, asset.UploadID, asset.ID, patch, db.StatusReady)
}

func (p *Processor) handleErrored(ctx context.Context, event Event) (Outcome, error) {
	asset, err := decodeAsset(event)
	if err != nil {
		return "", err
	}

	patch := remotePatch(asset)
	patch.Status = statusPtr(db.StatusError)
	messages := []string{}
	if asset.Errors != nil {
		messages = append(messages, asset.Errors.Messages...)
	}
	patch.ErrorMessages = messages

	existing, err := p.lookup(ctx, asset.UploadID, asset.ID)
	if err != nil {
		return "", err
	}
	if existing != nil && existing.Remote.Status.IsTerminal() {
		return OutcomeNoop, nil
	}

	defer p.invalidate(asset.ID)
	return p.apply(ctx, event.Type, existing, asset.UploadID, asset.ID, patch, db.StatusError)
}

func (p *Processor) handleDeleted(ctx context.Context, event Event) (Outcome, error) {
	asset, err := decodeAsset(event)
	if err != nil {
		return "", err
	}
	if asset.ID == "" {
		return OutcomeNoop, nil
	}

	existing, err := find(ctx, p.repo.FindByAssetID, asset.ID)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return OutcomeNoop, nil
	}

	if err := p.repo.Delete(ctx, existing.ID); err != nil {
		if errors.Is(err, db.ErrAssetNotFound) {
			// Deleted concurrently by another delivery.
			p.invalidate(asset.ID)
			return OutcomeNoop, nil
		}
		return "", wrapPersist(existing.ID, fmt.Errorf("delete asset: %w", err))
	}
	p.invalidate(asset.ID)

	p.emit(ctx, notify.Event{
		Type:    notify.AssetDeleted,
		AssetID: existing.ID,
		Trigger: event.Type,
		Fields:  map[string]interface{}{"remote_asset_id": asset.ID},
	})
	return OutcomeDeleted, nil
}

func (p *Processor) handleUploadAssetCreated(ctx context.Context, event Event) (Outcome, error) {
	var upload mux.Upload
	if err := json.Unmarshal(event.Data, &upload); err != nil {
		return "", &decodeError{err: err}
	}
	if upload.ID == "" {
		return "", &decodeError{err: errors.New("event carries no upload id")}
	}

	patch := db.AssetPatch{Status: statusPtr(db.StatusProcessing)}
	if upload.AssetID != "" {
		patch.AssetID = strPtr(upload.AssetID)
	}
	return p.upsert(ctx, event.Type, upload.ID, upload.AssetID, patch, db.StatusProcessing)
}

func (p *Processor) handleNonStandardInput(ctx context.Context, event Event) (Outcome, error) {
	asset, err := decodeAsset(event)
	if err != nil {
		return "", err
	}

	existing, err := p.lookup(ctx, asset.UploadID, asset.ID)
	if err != nil {
		return "", err
	}
	if existing == nil {
		log.Info("non-standard input reported for unknown asset",
			zap.String("upload_id", asset.UploadID),
			zap.String("remote_asset_id", asset.ID),
		)
		return OutcomeNoop, nil
	}

	nsi := &db.NonStandardInput{
		Detected: true,
		Quality:  asset.VideoQuality,
		Reasons:  asset.NonStandardInputReasons,
	}
	if len(asset.Tracks) > 0 {
		tracks, err := json.Marshal(asset.Tracks)
		if err != nil {
			return "", &decodeError{err: err}
		}
		nsi.Tracks = tracks
	}

	// Status is left alone.
	patch := db.AssetPatch{NonStandardInput: nsi}
	if asset.ID != "" {
		patch.AssetID = strPtr(asset.ID)
	}
	return p.apply(ctx, event.Type, existing, asset.UploadID, asset.ID, patch, "")
}

// upsert looks the record up by either key and applies patch, creating a
// placeholder when neither key matches.
func (p *Processor) upsert(ctx context.Context, trigger, uploadID, assetID string, patch db.AssetPatch, placeholderStatus db.AssetStatus) (Outcome, error) {
	existing, err := p.lookup(ctx, uploadID, assetID)
	if err != nil {
		return "", err
	}
	return p.apply(ctx, trigger, existing, uploadID, assetID, patch, placeholderStatus)
}

// apply merges patch into existing, or creates a placeholder when existing is
// nil and placeholderStatus is set. Writes are skipped when the merge would
// not change anything, which makes redelivery a pure no-op.
func (p *Processor) apply(ctx context.Context, trigger string, existing *db.VideoAsset, uploadID, assetID string, patch db.AssetPatch, placeholderStatus db.AssetStatus) (Outcome, error) {
	if existing == nil {
		if placeholderStatus == "" {
			return OutcomeNoop, nil
		}
		return p.createPlaceholder(ctx, trigger, uploadID, assetID, patch, placeholderStatus)
	}

	if uploadID != "" {
		patch.UploadID = strPtr(uploadID)
	}

	preview := *existing
	if !db.ApplyPatch(&preview, patch) {
		return OutcomeNoop, nil
	}

	updated, err := p.repo.Update(ctx, existing.ID, patch)
	if err != nil {
		return "", wrapPersist(existing.ID, fmt.Errorf("update asset: %w", err))
	}

	p.emitChange(ctx, trigger, existing.Remote.Status, updated)
	return OutcomeUpdated, nil
}

func (p *Processor) createPlaceholder(ctx context.Context, trigger, uploadID, assetID string, patch db.AssetPatch, status db.AssetStatus) (Outcome, error) {
	id := ids.NewAssetID()
	params := db.CreateAssetParams{
		ID:          id,
		Title:       placeholderTitle(uploadID, assetID),
		SourceType:  db.SourceRemote,
		UploadID:    uploadID,
		AssetID:     assetID,
		Status:      status,
		Placeholder: true,
	}
	// Discovered metadata goes into the insert itself. A terminal placeholder
	// turns every redelivery into a no-op, so nothing may be left for a
	// second write that could fail.
	if patch.PlaybackID != nil {
		params.PlaybackID = *patch.PlaybackID
	}
	if patch.Duration != nil {
		params.Duration = *patch.Duration
	}
	if patch.AspectRatio != nil {
		params.AspectRatio = *patch.AspectRatio
	}
	if patch.ThumbnailURL != nil {
		params.ThumbnailURL = *patch.ThumbnailURL
	}

	created, err := p.repo.Create(ctx, params)
	if errors.Is(err, db.ErrDuplicateAsset) {
		// Another delivery inserted the record between our lookup and insert.
		winner, lookupErr := p.lookup(ctx, uploadID, assetID)
		if lookupErr != nil {
			return "", lookupErr
		}
		if winner == nil {
			return "", wrapPersist(remoteKey(uploadID, assetID), fmt.Errorf("create placeholder: %w", err))
		}
		log.Info("placeholder insert lost race, merging into existing record",
			zap.String("asset_id", winner.ID),
			zap.String("upload_id", uploadID),
			zap.String("remote_asset_id", assetID),
		)
		return p.apply(ctx, trigger, winner, uploadID, assetID, patch, "")
	}
	if err != nil {
		return "", wrapPersist(remoteKey(uploadID, assetID), fmt.Errorf("create placeholder: %w", err))
	}

	// Tracks, input details and error messages have no insert columns and go
	// through the merge path.
	patch.Status = nil
	patch.UploadID = nil
	patch.AssetID = nil
	patch.PlaybackID = nil
	patch.Duration = nil
	patch.AspectRatio = nil
	patch.ThumbnailURL = nil
	preview := *created
	if db.ApplyPatch(&preview, patch) {
		updated, err := p.repo.Update(ctx, created.ID, patch)
		if err != nil {
			return "", wrapPersist(created.ID, fmt.Errorf("enrich placeholder: %w", err))
		}
		created = updated
	}

	log.Info("placeholder asset created",
		zap.String("asset_id", created.ID),
		zap.String("upload_id", uploadID),
		zap.String("remote_asset_id", assetID),
		zap.String("trigger", trigger),
	)
	p.emit(ctx, notify.Event{
		Type:    notify.AssetCreated,
		AssetID: created.ID,
		Trigger: trigger,
		Status:  string(created.Remote.Status),
		Fields:  assetFields(created),
	})
	if created.Remote.Status == db.StatusReady {
		p.emit(ctx, notify.Event{
			Type:    notify.AssetReady,
			AssetID: created.ID,
			Trigger: trigger,
			Status:  string(created.Remote.Status),
			Fields:  assetFields(created),
		})
	}
	return OutcomeCreated, nil
}

func (p *Processor) emitChange(ctx context.Context, trigger string, before db.AssetStatus, updated *db.VideoAsset) {
	event := notify.Event{
		Type:    notify.AssetUpdated,
		AssetID: updated.ID,
		Trigger: trigger,
		Status:  string(updated.Remote.Status),
		Fields:  assetFields(updated),
	}
	if before != updated.Remote.Status {
		switch updated.Remote.Status {
		case db.StatusReady:
			event.Type = notify.AssetReady
		case db.StatusError:
			event.Type = notify.AssetError
			if len(updated.ErrorMessages) > 0 {
				event.Error = updated.ErrorMessages[0]
			}
		}
	}
	p.emit(ctx, event)
}

// remoteKey names a resource that has no local record yet.
func remoteKey(uploadID, assetID string) string {
	if assetID != "" {
		return assetID
	}
	return uploadID
}

func placeholderTitle(uploadID, assetID string) string {
	switch {
	case assetID != "":
		return "Untitled video " + assetID
	case uploadID != "":
		return "Untitled upload " + uploadID
	default:
		return "Untitled video"
	}
}

func assetFields(a *db.VideoAsset) map[string]interface{} {
	fields := map[string]interface{}{}
	if a.Remote.UploadID != "" {
		fields["upload_id"] = a.Remote.UploadID
	}
	if a.Remote.AssetID != "" {
		fields["remote_asset_id"] = a.Remote.AssetID
	}
	if a.Remote.PlaybackID != "" {
		fields["playback_id"] = a.Remote.PlaybackID
	}
	if a.Duration > 0 {
		fields["duration"] = a.Duration
	}
	if a.ThumbnailURL != "" {
		fields["thumbnail_url"] = a.ThumbnailURL
	}
	return fields
}

// remotePatch maps the provider's asset view onto the set-once fields.
func remotePatch(asset *mux.Asset) db.AssetPatch {
	var patch db.AssetPatch
	if asset.ID != "" {
		patch.AssetID = strPtr(asset.ID)
	}
	if pid := asset.FirstPlaybackID(); pid != "" {
		patch.PlaybackID = strPtr(pid)
		patch.ThumbnailURL = strPtr(mux.ThumbnailURL(pid, mux.ThumbnailOptions{}))
	}
	if subs := subtitleTracks(asset.Tracks); len(subs) > 0 {
		patch.Subtitles = subs
	}
	return patch
}

func subtitleTracks(tracks []mux.Track) []db.SubtitleTrack {
	var subs []db.SubtitleTrack
	for _, t := range tracks {
		if t.Type != "text" {
			continue
		}
		subs = append(subs, db.SubtitleTrack{
			TrackID:        t.ID,
			LanguageCode:   t.LanguageCode,
			Name:           t.Name,
			ClosedCaptions: t.ClosedCaptions,
		})
	}
	return subs
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func statusPtr(s db.AssetStatus) *db.AssetStatus { return &s }
