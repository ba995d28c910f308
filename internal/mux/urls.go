package mux

import (
	"net/url"
	"strconv"
)

const (
	imageBaseURL  = "https://image.mux.com"
	streamBaseURL = "https://stream.mux.com"
)

// ThumbnailOptions controls thumbnail rendering.
type ThumbnailOptions struct {
	Time    *float64
	Width   int
	Height  int
	FitMode string // preserve, stretch, crop, smartcrop, pad
	Format  string // jpg (default), png, webp
	Token   string
}

// AnimatedOptions controls animated GIF/WebP rendering.
type AnimatedOptions struct {
	Start  *float64
	End    *float64
	Width  int
	Height int
	FPS    int
	Format string // gif (default) or webp
	Token  string
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func withQuery(base string, q url.Values) string {
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}

// ThumbnailURL builds a still-image URL for a playback id.
func ThumbnailURL(playbackID string, opts ThumbnailOptions) string {
	format := opts.Format
	if format == "" {
		format = "jpg"
	}
	q := url.Values{}
	if opts.Token != "" {
		// Signed URLs carry every parameter inside the token.
		q.Set("token", opts.Token)
		return withQuery(imageBaseURL+"/"+url.PathEscape(playbackID)+"/thumbnail."+format, q)
	}
	if opts.Time != nil {
		q.Set("time", formatSeconds(*opts.Time))
	}
	if opts.Width > 0 {
		q.Set("width", strconv.Itoa(opts.Width))
	}
	if opts.Height > 0 {
		q.Set("height", strconv.Itoa(opts.Height))
	}
	if opts.FitMode != "" {
		q.Set("fit_mode", opts.FitMode)
	}
	return withQuery(imageBaseURL+"/"+url.PathEscape(playbackID)+"/thumbnail."+format, q)
}

// StoryboardURL builds the storyboard URL; format is vtt (default), json, png or jpg.
func StoryboardURL(playbackID, format, token string) string {
	if format == "" {
		format = "vtt"
	}
	q := url.Values{}
	if token != "" {
		q.Set("token", token)
	}
	return withQuery(imageBaseURL+"/"+url.PathEscape(playbackID)+"/storyboard."+format, q)
}

// AnimatedURL builds an animated GIF/WebP URL for a playback id.
func AnimatedURL(playbackID string, opts AnimatedOptions) string {
	format := opts.Format
	if format == "" {
		format = "gif"
	}
	q := url.Values{}
	if opts.Token != "" {
		q.Set("token", opts.Token)
		return withQuery(imageBaseURL+"/"+url.PathEscape(playbackID)+"/animated."+format, q)
	}
	if opts.Start != nil {
		q.Set("start", formatSeconds(*opts.Start))
	}
	if opts.End != nil {
		q.Set("end", formatSeconds(*opts.End))
	}
	if opts.Width > 0 {
		q.Set("width", strconv.Itoa(opts.Width))
	}
	if opts.Height > 0 {
		q.Set("height", strconv.Itoa(opts.Height))
	}
	if opts.FPS > 0 {
		q.Set("fps", strconv.Itoa(opts.FPS))
	}
	return withQuery(imageBaseURL+"/"+url.PathEscape(playbackID)+"/animated."+format, q)
}

// PlaybackURL builds the HLS playback URL, signed when token is set.
func PlaybackURL(playbackID, token string) string {
	q := url.Values{}
	if token != "" {
		q.Set("token", token)
	}
	return withQuery(streamBaseURL+"/"+url.PathEscape(playbackID)+".m3u8", q)
}
