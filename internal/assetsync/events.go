package assetsync

import "encoding/json"

// Provider webhook event types handled by the processor.
const (
	EventAssetCreated          = "video.asset.created"
	EventAssetReady            = "video.asset.ready"
	EventAssetErrored          = "video.asset.errored"
	EventAssetDeleted          = "video.asset.deleted"
	EventUploadAssetCreated    = "video.upload.asset_created"
	EventNonStandardInputFound = "video.asset.non_standard_input_detected"
)

// Event is a verified, parsed provider webhook delivery.
type Event struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Outcome reports what handling an event did to the local record.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeDeleted Outcome = "deleted"
	OutcomeNoop    Outcome = "noop"
	OutcomeIgnored Outcome = "ignored"
	OutcomeFailed  Outcome = "failed"
)
