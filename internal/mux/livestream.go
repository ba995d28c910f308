package mux

import (
	"context"
	"net/http"
	"net/url"
)

// Live stream calls go straight to the provider (rate limited, never cached).
// None of them touch local state: callers re-fetch to observe the effect.

func liveStreamPath(id string) string {
	return "/video/v1/live-streams/" + url.PathEscape(id)
}

// CreateLiveStream creates a live stream.
func (c *Client) CreateLiveStream(ctx context.Context, opts LiveStreamOptions) (*LiveStream, error) {
	var stream LiveStream
	if err := c.do(ctx, "create live stream", http.MethodPost, "/video/v1/live-streams", opts, &stream); err != nil {
		return nil, err
	}
	return &stream, nil
}

// GetLiveStream fetches a live stream.
func (c *Client) GetLiveStream(ctx context.Context, id string) (*LiveStream, error) {
	var stream LiveStream
	if err := c.do(ctx, "get live stream", http.MethodGet, liveStreamPath(id), nil, &stream); err != nil {
		return nil, err
	}
	return &stream, nil
}

// UpdateLiveStream patches a live stream.
func (c *Client) UpdateLiveStream(ctx context.Context, id string, update LiveStreamUpdate) (*LiveStream, error) {
	var stream LiveStream
	if err := c.do(ctx, "update live stream", http.MethodPatch, liveStreamPath(id), update, &stream); err != nil {
		return nil, err
	}
	return &stream, nil
}

// DeleteLiveStream deletes a live stream.
func (c *Client) DeleteLiveStream(ctx context.Context, id string) error {
	return c.do(ctx, "delete live stream", http.MethodDelete, liveStreamPath(id), nil, nil)
}

// EnableLiveStream allows the stream to accept ingest again.
func (c *Client) EnableLiveStream(ctx context.Context, id string) error {
	return c.do(ctx, "enable live stream", http.MethodPut, liveStreamPath(id)+"/enable", nil, nil)
}

// DisableLiveStream rejects further ingest on the stream.
func (c *Client) DisableLiveStream(ctx context.Context, id string) error {
	return c.do(ctx, "disable live stream", http.MethodPut, liveStreamPath(id)+"/disable", nil, nil)
}

// ResetStreamKey rotates the stream key and returns the updated stream.
func (c *Client) ResetStreamKey(ctx context.Context, id string) (*LiveStream, error) {
	var stream LiveStream
	if err := c.do(ctx, "reset stream key", http.MethodPost, liveStreamPath(id)+"/reset-stream-key", nil, &stream); err != nil {
		return nil, err
	}
	return &stream, nil
}

// CompleteLiveStream ends the current broadcast without waiting for the reconnect window.
func (c *Client) CompleteLiveStream(ctx context.Context, id string) error {
	return c.do(ctx, "complete live stream", http.MethodPut, liveStreamPath(id)+"/complete", nil, nil)
}

// SetLiveStreamRecording turns recording of future broadcasts on or off.
// Recording is on when the stream carries new-asset settings.
func (c *Client) SetLiveStreamRecording(ctx context.Context, id string, enabled bool) (*LiveStream, error) {
	body := map[string]interface{}{"new_asset_settings": nil}
	if enabled {
		body["new_asset_settings"] = NewAssetSettings{PlaybackPolicy: []string{PolicyPublic}}
	}

	var stream LiveStream
	if err := c.do(ctx, "set live stream recording", http.MethodPatch, liveStreamPath(id), body, &stream); err != nil {
		return nil, err
	}
	return &stream, nil
}

// CreateSimulcastTarget adds an RTMP relay destination to a live stream.
func (c *Client) CreateSimulcastTarget(ctx context.Context, streamID string, target SimulcastTarget) (*SimulcastTarget, error) {
	var created SimulcastTarget
	if err := c.do(ctx, "create simulcast target", http.MethodPost, liveStreamPath(streamID)+"/simulcast-targets", target, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteSimulcastTarget removes a relay destination.
func (c *Client) DeleteSimulcastTarget(ctx context.Context, streamID, targetID string) error {
	path := liveStreamPath(streamID) + "/simulcast-targets/" + url.PathEscape(targetID)
	return c.do(ctx, "delete simulcast target", http.MethodDelete, path, nil, nil)
}
