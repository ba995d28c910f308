package db

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// SourceType says where an asset's media lives.
type SourceType string

const (
	SourceRemote   SourceType = "mux"
	SourceEmbedded SourceType = "embed"
)

// AssetStatus is the local view of the remote processing state.
// It only moves forward: uploading -> processing -> ready, or to error.
type AssetStatus string

const (
	StatusUploading  AssetStatus = "uploading"
	StatusProcessing AssetStatus = "processing"
	StatusReady      AssetStatus = "ready"
	StatusError      AssetStatus = "error"
)

func (s AssetStatus) rank() int {
	switch s {
	case StatusUploading:
		return 0
	case StatusProcessing:
		return 1
	case StatusReady, StatusError:
		return 2
	default:
		return -1
	}
}

// IsValid returns true for the four known statuses.
func (s AssetStatus) IsValid() bool {
	return s.rank() >= 0
}

// IsTerminal returns true for ready and error; neither is ever left.
func (s AssetStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusError
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s AssetStatus) CanAdvanceTo(next AssetStatus) bool {
	if !next.IsValid() || s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// RemoteRef links a local asset to its provider resources. Before AssetID is
// known UploadID is the join key; afterwards AssetID is authoritative.
type RemoteRef struct {
	UploadID   string      `json:"upload_id,omitempty"`
	AssetID    string      `json:"asset_id,omitempty"`
	PlaybackID string      `json:"playback_id,omitempty"`
	Status     AssetStatus `json:"status"`
}

// SubtitleTrack is a text track discovered on the remote asset.
type SubtitleTrack struct {
	TrackID        string `json:"track_id"`
	LanguageCode   string `json:"language_code,omitempty"`
	Name           string `json:"name,omitempty"`
	ClosedCaptions bool   `json:"closed_captions,omitempty"`
}

// NonStandardInput records the provider's report that the source file needed
// normalization.
type NonStandardInput struct {
	Detected bool              `json:"detected"`
	Quality  string            `json:"quality,omitempty"`
	Reasons  map[string]string `json:"reasons,omitempty"`
	Tracks   json.RawMessage   `json:"tracks,omitempty"`
}

// VideoAsset is the persisted local record of a video.
type VideoAsset struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	SourceType       SourceType       `json:"source_type"`
	EmbedURL         string           `json:"embed_url,omitempty"`
	Remote           RemoteRef        `json:"remote"`
	Duration         float64          `json:"duration,omitempty"`
	AspectRatio      string           `json:"aspect_ratio,omitempty"`
	ThumbnailURL     string           `json:"thumbnail_url,omitempty"`
	NonStandardInput NonStandardInput `json:"non_standard_input"`
	Subtitles        []SubtitleTrack  `json:"subtitles,omitempty"`
	ErrorMessages    []string         `json:"error_messages,omitempty"`
	Placeholder      bool             `json:"placeholder"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// AssetPatch is a partial update. Nil fields are left alone.
//
// Merge rules, shared by ApplyPatch and the SQL update:
//   - Title overwrites.
//   - UploadID, AssetID, PlaybackID, Duration, AspectRatio, ThumbnailURL and
//     Subtitles are first-writer-wins: set only while still empty.
//   - Status only advances (see AssetStatus.CanAdvanceTo).
//   - NonStandardInput overwrites; the detected flag never clears.
//   - ErrorMessages overwrite.
type AssetPatch struct {
	Title            *string
	UploadID         *string
	AssetID          *string
	PlaybackID       *string
	Status           *AssetStatus
	Duration         *float64
	AspectRatio      *string
	ThumbnailURL     *string
	NonStandardInput *NonStandardInput
	Subtitles        []SubtitleTrack
	ErrorMessages    []string
}

// IsEmpty reports whether the patch changes nothing.
func (p AssetPatch) IsEmpty() bool {
	return p.Title == nil && p.UploadID == nil && p.AssetID == nil && p.PlaybackID == nil &&
		p.Status == nil && p.Duration == nil && p.AspectRatio == nil && p.ThumbnailURL == nil &&
		p.NonStandardInput == nil && p.Subtitles == nil && p.ErrorMessages == nil
}

// ApplyPatch merges p into a and reports whether anything changed.
func ApplyPatch(a *VideoAsset, p AssetPatch) bool {
	changed := false

	if p.Title != nil && *p.Title != a.Title {
		a.Title = *p.Title
		changed = true
	}
	changed = setOnce(&a.Remote.UploadID, p.UploadID) || changed
	changed = setOnce(&a.Remote.AssetID, p.AssetID) || changed
	changed = setOnce(&a.Remote.PlaybackID, p.PlaybackID) || changed
	changed = setOnce(&a.AspectRatio, p.AspectRatio) || changed
	changed = setOnce(&a.ThumbnailURL, p.ThumbnailURL) || changed

	if p.Status != nil && a.Remote.Status.CanAdvanceTo(*p.Status) {
		a.Remote.Status = *p.Status
		changed = true
	}
	if p.Duration != nil && a.Duration == 0 && *p.Duration > 0 {
		a.Duration = *p.Duration
		changed = true
	}
	if p.NonStandardInput != nil {
		next := *p.NonStandardInput
		next.Detected = next.Detected || a.NonStandardInput.Detected
		if !reflect.DeepEqual(a.NonStandardInput, next) {
			a.NonStandardInput = next
			changed = true
		}
	}
	if len(p.Subtitles) > 0 && len(a.Subtitles) == 0 {
		a.Subtitles = append([]SubtitleTrack(nil), p.Subtitles...)
		changed = true
	}
	if p.ErrorMessages != nil && !reflect.DeepEqual(a.ErrorMessages, p.ErrorMessages) {
		a.ErrorMessages = append([]string(nil), p.ErrorMessages...)
		changed = true
	}
	return changed
}

func setOnce(dst *string, v *string) bool {
	if v == nil || *v == "" || *dst != "" {
		return false
	}
	*dst = *v
	return true
}

// AssetEvent is one entry of the asset event log.
type AssetEvent struct {
	ID        uuid.UUID       `json:"id"`
	AssetID   string          `json:"asset_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
