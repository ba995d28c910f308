package mux

import "time"

// Remote asset statuses as reported by the provider.
const (
	AssetStatusPreparing = "preparing"
	AssetStatusReady     = "ready"
	AssetStatusErrored   = "errored"
)

// Playback policies.
const (
	PolicyPublic = "public"
	PolicySigned = "signed"
)

// Live stream statuses.
const (
	LiveStatusIdle         = "idle"
	LiveStatusActive       = "active"
	LiveStatusDisconnected = "disconnected"
	LiveStatusCompleted    = "completed"
	LiveStatusDisabled     = "disabled"
)

// PlaybackID identifies a playable rendition of an asset or live stream.
type PlaybackID struct {
	ID     string `json:"id"`
	Policy string `json:"policy"`
}

// Track is an audio, video or text track on an asset.
type Track struct {
	ID             string  `json:"id"`
	Type           string  `json:"type"`
	Status         string  `json:"status,omitempty"`
	TextType       string  `json:"text_type,omitempty"`
	LanguageCode   string  `json:"language_code,omitempty"`
	Name           string  `json:"name,omitempty"`
	ClosedCaptions bool    `json:"closed_captions,omitempty"`
	MaxWidth       int     `json:"max_width,omitempty"`
	MaxHeight      int     `json:"max_height,omitempty"`
	MaxFrameRate   float64 `json:"max_frame_rate,omitempty"`
	Duration       float64 `json:"duration,omitempty"`
}

// AssetErrors holds the provider's reason for a failed asset.
type AssetErrors struct {
	Type     string   `json:"type"`
	Messages []string `json:"messages"`
}

// Asset is the provider-side processed media object.
type Asset struct {
	ID                      string            `json:"id"`
	Status                  string            `json:"status"`
	UploadID                string            `json:"upload_id,omitempty"`
	Duration                float64           `json:"duration,omitempty"`
	AspectRatio             string            `json:"aspect_ratio,omitempty"`
	MaxStoredResolution     string            `json:"max_stored_resolution,omitempty"`
	ResolutionTier          string            `json:"resolution_tier,omitempty"`
	VideoQuality            string            `json:"video_quality,omitempty"`
	Passthrough             string            `json:"passthrough,omitempty"`
	PlaybackIDs             []PlaybackID      `json:"playback_ids,omitempty"`
	Tracks                  []Track           `json:"tracks,omitempty"`
	NonStandardInputReasons map[string]string `json:"non_standard_input_reasons,omitempty"`
	Errors                  *AssetErrors      `json:"errors,omitempty"`
	LiveStreamID            string            `json:"live_stream_id,omitempty"`
	IsLive                  bool              `json:"is_live,omitempty"`
	Test                    bool              `json:"test,omitempty"`
	CreatedAt               string            `json:"created_at,omitempty"`
}

// FirstPlaybackID returns the first playback id of the asset, or "".
func (a *Asset) FirstPlaybackID() string {
	if a == nil || len(a.PlaybackIDs) == 0 {
		return ""
	}
	return a.PlaybackIDs[0].ID
}

// Upload is a provider-issued direct upload.
type Upload struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Status     string `json:"status"`
	AssetID    string `json:"asset_id,omitempty"`
	Timeout    int    `json:"timeout,omitempty"`
	CORSOrigin string `json:"cors_origin,omitempty"`
	Test       bool   `json:"test,omitempty"`
}

// NewAssetSettings configures assets the provider creates from an upload or a live recording.
type NewAssetSettings struct {
	PlaybackPolicy []string `json:"playback_policy,omitempty"`
	MP4Support     string   `json:"mp4_support,omitempty"`
	Passthrough    string   `json:"passthrough,omitempty"`
	MaxResolution  string   `json:"max_resolution_tier,omitempty"`
	NormalizeAudio bool     `json:"normalize_audio,omitempty"`
}

// DirectUploadOptions configures CreateDirectUpload.
type DirectUploadOptions struct {
	CORSOrigin       string           `json:"cors_origin,omitempty"`
	NewAssetSettings NewAssetSettings `json:"new_asset_settings"`
	Timeout          int              `json:"timeout,omitempty"`
	Test             bool             `json:"test,omitempty"`
}

// AssetUpdate is a partial update of an asset.
type AssetUpdate struct {
	Passthrough *string `json:"passthrough,omitempty"`
	MP4Support  *string `json:"mp4_support,omitempty"`
}

// StreamHealth is the provider's live ingest telemetry for a stream.
type StreamHealth struct {
	Bitrate       float64    `json:"bitrate,omitempty"`
	FrameRate     float64    `json:"frame_rate,omitempty"`
	Codec         string     `json:"codec,omitempty"`
	Resolution    string     `json:"resolution,omitempty"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
	ViewerCount   int        `json:"viewer_count,omitempty"`
	DroppedFrames int        `json:"dropped_frames,omitempty"`
	Errors        []string   `json:"errors,omitempty"`
}

// SimulcastTarget relays a live stream to another RTMP destination.
type SimulcastTarget struct {
	ID          string `json:"id,omitempty"`
	Passthrough string `json:"passthrough,omitempty"`
	URL         string `json:"url"`
	StreamKey   string `json:"stream_key,omitempty"`
	Status      string `json:"status,omitempty"`
}

// LiveStream is a provider-side ingest endpoint.
type LiveStream struct {
	ID               string            `json:"id"`
	StreamKey        string            `json:"stream_key"`
	Status           string            `json:"status"`
	PlaybackIDs      []PlaybackID      `json:"playback_ids,omitempty"`
	LatencyMode      string            `json:"latency_mode,omitempty"`
	ReconnectWindow  float64           `json:"reconnect_window,omitempty"`
	Passthrough      string            `json:"passthrough,omitempty"`
	ActiveAssetID    string            `json:"active_asset_id,omitempty"`
	RecentAssetIDs   []string          `json:"recent_asset_ids,omitempty"`
	SimulcastTargets []SimulcastTarget `json:"simulcast_targets,omitempty"`
	NewAssetSettings *NewAssetSettings `json:"new_asset_settings,omitempty"`
	Health           *StreamHealth     `json:"health,omitempty"`
	Test             bool              `json:"test,omitempty"`
	CreatedAt        string            `json:"created_at,omitempty"`
}

// FirstPlaybackID returns the first playback id of the live stream, or "".
func (l *LiveStream) FirstPlaybackID() string {
	if l == nil || len(l.PlaybackIDs) == 0 {
		return ""
	}
	return l.PlaybackIDs[0].ID
}

// LiveStreamOptions configures CreateLiveStream.
type LiveStreamOptions struct {
	PlaybackPolicy   []string          `json:"playback_policy,omitempty"`
	NewAssetSettings *NewAssetSettings `json:"new_asset_settings,omitempty"`
	LatencyMode      string            `json:"latency_mode,omitempty"`
	ReconnectWindow  float64           `json:"reconnect_window,omitempty"`
	Passthrough      string            `json:"passthrough,omitempty"`
	SimulcastTargets []SimulcastTarget `json:"simulcast_targets,omitempty"`
	Test             bool              `json:"test,omitempty"`
}

// LiveStreamUpdate is a partial update of a live stream.
type LiveStreamUpdate struct {
	LatencyMode           *string  `json:"latency_mode,omitempty"`
	ReconnectWindow       *float64 `json:"reconnect_window,omitempty"`
	Passthrough           *string  `json:"passthrough,omitempty"`
	MaxContinuousDuration *int     `json:"max_continuous_duration,omitempty"`
}
