package livehealth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/grafov/m3u8"
)

// ManifestInfo summarizes what the public HLS playlist says about a stream.
type ManifestInfo struct {
	Variants       int     `json:"variants"`
	Resolution     string  `json:"resolution,omitempty"`
	Bandwidth      uint32  `json:"bandwidth,omitempty"`
	Codecs         string  `json:"codecs,omitempty"`
	FrameRate      float64 `json:"frame_rate,omitempty"`
	LatestSequence uint64  `json:"latest_sequence"`
	TargetDuration float64 `json:"target_duration,omitempty"`
	Ended          bool    `json:"ended"`
}

const maxPlaylistDepth = 4

// ManifestProbe reads HLS playlists with grafov/m3u8.
type ManifestProbe struct {
	httpClient *http.Client
}

// NewManifestProbe creates a probe whose requests time out after timeout.
func NewManifestProbe(timeout time.Duration) *ManifestProbe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ManifestProbe{httpClient: &http.Client{Timeout: timeout}}
}

// Probe fetches manifestURL. For a master playlist the highest-bandwidth
// variant describes the stream and its media playlist supplies the latest
// sequence number and end-of-stream marker.
func (p *ManifestProbe) Probe(ctx context.Context, manifestURL string) (*ManifestInfo, error) {
	return p.probe(ctx, manifestURL, &ManifestInfo{}, 0)
}

func (p *ManifestProbe) probe(ctx context.Context, manifestURL string, info *ManifestInfo, depth int) (*ManifestInfo, error) {
	if depth > maxPlaylistDepth {
		return nil, fmt.Errorf("max master->media recursion depth exceeded")
	}

	playlist, listType, err := p.fetch(ctx, manifestURL)
	if err != nil {
		return nil, err
	}

	switch listType {
	case m3u8.MEDIA:
		mediapl := playlist.(*m3u8.MediaPlaylist)
		info.TargetDuration = mediapl.TargetDuration
		info.Ended = mediapl.Closed
		var lastIdx uint
		var found bool
		for i := uint(0); i < mediapl.Count(); i++ {
			if mediapl.Segments[i] != nil {
				lastIdx = i
				found = true
			}
		}
		if found {
			info.LatestSequence = mediapl.SeqNo + uint64(lastIdx)
		}
		return info, nil
	case m3u8.MASTER:
		masterpl := playlist.(*m3u8.MasterPlaylist)
		if len(masterpl.Variants) == 0 {
			return nil, fmt.Errorf("no variants in master playlist")
		}
		best := masterpl.Variants[0]
		for _, v := range masterpl.Variants[1:] {
			if v.Bandwidth > best.Bandwidth {
				best = v
			}
		}
		info.Variants = len(masterpl.Variants)
		info.Resolution = best.Resolution
		info.Bandwidth = best.Bandwidth
		info.Codecs = best.Codecs
		info.FrameRate = best.FrameRate

		baseURL, err := url.Parse(manifestURL)
		if err != nil {
			return nil, fmt.Errorf("parse manifest URL: %w", err)
		}
		mediaURL, err := resolveURL(baseURL, best.URI)
		if err != nil {
			return nil, fmt.Errorf("resolve variant URL: %w", err)
		}
		return p.probe(ctx, mediaURL, info, depth+1)
	default:
		return nil, fmt.Errorf("unknown playlist type")
	}
}

func (p *ManifestProbe) fetch(ctx context.Context, manifestURL string) (m3u8.Playlist, m3u8.ListType, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("manifest fetch failed with status %d", resp.StatusCode)
	}

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		return nil, 0, fmt.Errorf("decode manifest: %w", err)
	}
	return playlist, listType, nil
}

func resolveURL(base *url.URL, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if refURL.IsAbs() {
		return refURL.String(), nil
	}
	return base.ResolveReference(refURL).String(), nil
}
