// Package livehealth projects provider live-stream telemetry onto the display
// record of a live stream. It is pull-only: every refresh re-reads the
// provider and nothing is cached between calls.
package livehealth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xpadev-net/ott-media-sync/internal/clock"
	"github.com/xpadev-net/ott-media-sync/internal/log"
	"github.com/xpadev-net/ott-media-sync/internal/mux"
)

// StreamSource reads live streams from the provider.
type StreamSource interface {
	GetLiveStream(ctx context.Context, id string) (*mux.LiveStream, error)
}

// Prober inspects a public HLS playlist.
type Prober interface {
	Probe(ctx context.Context, manifestURL string) (*ManifestInfo, error)
}

// Health is the telemetry part of a live stream record.
type Health struct {
	Bitrate       float64    `json:"bitrate,omitempty"`
	FrameRate     float64    `json:"frame_rate,omitempty"`
	Codec         string     `json:"codec,omitempty"`
	Resolution    string     `json:"resolution,omitempty"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
	ViewerCount   int        `json:"viewer_count"`
	DroppedFrames int        `json:"dropped_frames"`
	Errors        []string   `json:"errors"`
}

// SimulcastTarget is a relay destination as shown on the record.
type SimulcastTarget struct {
	RemoteTargetID string `json:"remote_target_id"`
	Name           string `json:"name,omitempty"`
	URL            string `json:"url"`
	Key            string `json:"key,omitempty"`
	Status         string `json:"status,omitempty"`
}

// Record is a live stream as embedded in its parent content record.
type Record struct {
	RemoteStreamID   string            `json:"remote_stream_id"`
	StreamKey        string            `json:"stream_key,omitempty"`
	PlaybackIDs      []string          `json:"playback_ids,omitempty"`
	Status           string            `json:"status,omitempty"`
	Health           Health            `json:"health"`
	SimulcastTargets []SimulcastTarget `json:"simulcast_targets,omitempty"`
	Manifest         *ManifestInfo     `json:"manifest,omitempty"`
	RefreshedAt      time.Time         `json:"refreshed_at"`
}

// Monitor overlays provider telemetry onto records.
type Monitor struct {
	source      StreamSource
	prober      Prober
	manifestURL func(playbackID string) string
	clock       clock.Clock
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithProber enables the HLS playlist probe for active public streams.
func WithProber(p Prober) Option {
	return func(m *Monitor) { m.prober = p }
}

// WithManifestURL overrides how a playback id maps to its playlist URL.
func WithManifestURL(fn func(playbackID string) string) Option {
	return func(m *Monitor) { m.manifestURL = fn }
}

// WithClock sets the clock used for RefreshedAt.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// NewMonitor creates a monitor.
func NewMonitor(source StreamSource, opts ...Option) *Monitor {
	m := &Monitor{
		source: source,
		manifestURL: func(playbackID string) string {
			return mux.PlaybackURL(playbackID, "")
		},
		clock: clock.Real{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ErrNoStreamID is returned when the record has no remote stream id.
var ErrNoStreamID = errors.New("record has no remote stream id")

// Refresh fetches the stream and returns rec with the provider's identity,
// status and simulcast fields laid over it and its health replaced by the
// provider's current telemetry. rec itself is not modified.
func (m *Monitor) Refresh(ctx context.Context, rec Record) (Record, error) {
	if rec.RemoteStreamID == "" {
		return rec, ErrNoStreamID
	}

	stream, err := m.source.GetLiveStream(ctx, rec.RemoteStreamID)
	if err != nil {
		return rec, fmt.Errorf("get live stream %s: %w", rec.RemoteStreamID, err)
	}

	out := overlay(rec, stream)
	out.RefreshedAt = m.clock.Now()

	if m.prober != nil && needsProbe(out, stream) {
		pid := publicPlaybackID(stream)
		info, err := m.prober.Probe(ctx, m.manifestURL(pid))
		if err != nil {
			log.Warn("manifest probe failed",
				zap.String("stream_id", rec.RemoteStreamID),
				zap.String("playback_id", pid),
				zap.Error(err),
			)
		} else {
			out.Manifest = info
			fillFromManifest(&out.Health, info)
		}
	}

	return out, nil
}

// Snapshot refreshes a record that only carries a stream id.
func (m *Monitor) Snapshot(ctx context.Context, streamID string) (Record, error) {
	return m.Refresh(ctx, Record{RemoteStreamID: streamID})
}

func overlay(rec Record, stream *mux.LiveStream) Record {
	out := rec
	out.Status = stream.Status
	if stream.StreamKey != "" {
		out.StreamKey = stream.StreamKey
	}
	if len(stream.PlaybackIDs) > 0 {
		out.PlaybackIDs = make([]string, 0, len(stream.PlaybackIDs))
		for _, p := range stream.PlaybackIDs {
			out.PlaybackIDs = append(out.PlaybackIDs, p.ID)
		}
	}

	out.SimulcastTargets = make([]SimulcastTarget, 0, len(stream.SimulcastTargets))
	for _, t := range stream.SimulcastTargets {
		out.SimulcastTargets = append(out.SimulcastTargets, SimulcastTarget{
			RemoteTargetID: t.ID,
			Name:           t.Passthrough,
			URL:            t.URL,
			Key:            t.StreamKey,
			Status:         t.Status,
		})
	}

	// Health is rebuilt from the provider on every refresh. Telemetry from
	// an earlier poll must not outlive the state that produced it.
	h := Health{Errors: []string{}}
	out.Manifest = nil
	if stream.Health != nil {
		src := stream.Health
		h.Bitrate = src.Bitrate
		h.FrameRate = src.FrameRate
		h.Codec = src.Codec
		h.Resolution = src.Resolution
		if src.LastSeenAt != nil {
			t := *src.LastSeenAt
			h.LastSeenAt = &t
		}
		h.ViewerCount = src.ViewerCount
		h.DroppedFrames = src.DroppedFrames
		h.Errors = append(h.Errors, src.Errors...)
	}
	out.Health = h
	return out
}

func needsProbe(rec Record, stream *mux.LiveStream) bool {
	if stream.Status != mux.LiveStatusActive || publicPlaybackID(stream) == "" {
		return false
	}
	return rec.Health.Resolution == "" || rec.Health.Bitrate == 0 || rec.Health.Codec == ""
}

func publicPlaybackID(stream *mux.LiveStream) string {
	for _, p := range stream.PlaybackIDs {
		if p.Policy == mux.PolicyPublic {
			return p.ID
		}
	}
	return ""
}

// fillFromManifest fills only what the provider left empty.
func fillFromManifest(h *Health, info *ManifestInfo) {
	if h.Resolution == "" {
		h.Resolution = info.Resolution
	}
	if h.Bitrate == 0 && info.Bandwidth > 0 {
		h.Bitrate = float64(info.Bandwidth)
	}
	if h.Codec == "" {
		h.Codec = info.Codecs
	}
	if h.FrameRate == 0 {
		h.FrameRate = info.FrameRate
	}
}
