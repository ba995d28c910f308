package livehealth

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/xpadev-net/ott-media-sync/internal/clock"
	"github.com/xpadev-net/ott-media-sync/internal/mux"
)

var testEpoch = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type stubSource struct {
	stream *mux.LiveStream
	err    error
	calls  int
}

func (s *stubSource) GetLiveStream(_ context.Context, id string) (*mux.LiveStream, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := *s.stream
	out.ID = id
	return &out, nil
}

type stubProber struct {
	info *ManifestInfo
	err  error
	urls []string
}

func (p *stubProber) Probe(_ context.Context, url string) (*ManifestInfo, error) {
	p.urls = append(p.urls, url)
	return p.info, p.err
}

func TestRefresh_OverlaysHealth(t *testing.T) {
	seen := testEpoch.Add(-5 * time.Second)
	source := &stubSource{stream: &mux.LiveStream{
		Status:      mux.LiveStatusActive,
		StreamKey:   "sk-new",
		PlaybackIDs: []mux.PlaybackID{{ID: "P1", Policy: mux.PolicySigned}},
		SimulcastTargets: []mux.SimulcastTarget{
			{ID: "T1", Passthrough: "YouTube", URL: "rtmp://a.rtmp.youtube.com/live2", StreamKey: "yt", Status: "broadcasting"},
		},
		Health: &mux.StreamHealth{
			Bitrate:       4500000,
			FrameRate:     29.97,
			Codec:         "h264",
			Resolution:    "1920x1080",
			LastSeenAt:    &seen,
			ViewerCount:   12,
			DroppedFrames: 3,
			Errors:        []string{"audio desync"},
		},
	}}
	monitor := NewMonitor(source, WithClock(clock.NewFake(testEpoch)))

	rec := Record{RemoteStreamID: "L1", StreamKey: "sk-old", Status: mux.LiveStatusIdle}
	got, err := monitor.Refresh(context.Background(), rec)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if got.Status != mux.LiveStatusActive || got.StreamKey != "sk-new" || !reflect.DeepEqual(got.PlaybackIDs, []string{"P1"}) {
		t.Errorf("identity = %s %s %v", got.Status, got.StreamKey, got.PlaybackIDs)
	}
	want := Health{
		Bitrate:       4500000,
		FrameRate:     29.97,
		Codec:         "h264",
		Resolution:    "1920x1080",
		LastSeenAt:    &seen,
		ViewerCount:   12,
		DroppedFrames: 3,
		Errors:        []string{"audio desync"},
	}
	if !reflect.DeepEqual(got.Health, want) {
		t.Errorf("health = %+v\nwant %+v", got.Health, want)
	}
	if len(got.SimulcastTargets) != 1 || got.SimulcastTargets[0].RemoteTargetID != "T1" || got.SimulcastTargets[0].Name != "YouTube" {
		t.Errorf("simulcast = %+v", got.SimulcastTargets)
	}
	if !got.RefreshedAt.Equal(testEpoch) {
		t.Errorf("RefreshedAt = %v, want %v", got.RefreshedAt, testEpoch)
	}
	if rec.Status != mux.LiveStatusIdle || rec.StreamKey != "sk-old" {
		t.Error("Refresh modified its input record")
	}
}

func TestRefresh_NoStateBetweenCalls(t *testing.T) {
	source := &stubSource{stream: &mux.LiveStream{Status: mux.LiveStatusIdle}}
	monitor := NewMonitor(source)

	for i := 0; i < 3; i++ {
		if _, err := monitor.Snapshot(context.Background(), "L1"); err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
	}
	if source.calls != 3 {
		t.Errorf("provider calls = %d, want 3 (one per refresh)", source.calls)
	}
}

func TestRefresh_HealthDoesNotOutliveActivePhase(t *testing.T) {
	active := &mux.LiveStream{
		Status:      mux.LiveStatusActive,
		PlaybackIDs: []mux.PlaybackID{{ID: "P3", Policy: mux.PolicyPublic}},
		Health:      &mux.StreamHealth{Bitrate: 4500000, FrameRate: 30, Codec: "h264", Resolution: "1920x1080", ViewerCount: 40},
	}
	source := &stubSource{stream: active}
	prober := &stubProber{info: &ManifestInfo{Resolution: "1280x720", Bandwidth: 2000000, Codecs: "avc1", FrameRate: 25}}
	monitor := NewMonitor(source, WithProber(prober))

	rec, err := monitor.Snapshot(context.Background(), "L3")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if rec.Health.Bitrate != 4500000 || len(prober.urls) != 0 {
		t.Fatalf("active health = %+v, probes = %d", rec.Health, len(prober.urls))
	}

	source.stream = &mux.LiveStream{Status: mux.LiveStatusIdle}
	rec, err = monitor.Refresh(context.Background(), rec)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if want := (Health{Errors: []string{}}); !reflect.DeepEqual(rec.Health, want) {
		t.Errorf("idle health = %+v, want empty", rec.Health)
	}

	// Back to active without provider resolution: the probe fills it again.
	source.stream = &mux.LiveStream{
		Status:      mux.LiveStatusActive,
		PlaybackIDs: active.PlaybackIDs,
		Health:      &mux.StreamHealth{Codec: "h264"},
	}
	rec, err = monitor.Refresh(context.Background(), rec)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(prober.urls) != 1 || rec.Health.Resolution != "1280x720" || rec.Health.Bitrate != 2000000 {
		t.Errorf("reactivated health = %+v, probes = %d", rec.Health, len(prober.urls))
	}
}

func TestRefresh_ProbeFillsMissingFields(t *testing.T) {
	source := &stubSource{stream: &mux.LiveStream{
		Status:      mux.LiveStatusActive,
		PlaybackIDs: []mux.PlaybackID{{ID: "P2", Policy: mux.PolicyPublic}},
		Health:      &mux.StreamHealth{Codec: "h264"},
	}}
	prober := &stubProber{info: &ManifestInfo{Variants: 2, Resolution: "1280x720", Bandwidth: 2000000, Codecs: "avc1.4d401f", FrameRate: 30}}
	monitor := NewMonitor(source,
		WithProber(prober),
		WithManifestURL(func(pid string) string { return "http://probe.test/" + pid + ".m3u8" }),
	)

	got, err := monitor.Snapshot(context.Background(), "L2")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(prober.urls) != 1 || prober.urls[0] != "http://probe.test/P2.m3u8" {
		t.Errorf("probed = %v", prober.urls)
	}
	if got.Health.Resolution != "1280x720" || got.Health.Bitrate != 2000000 || got.Health.FrameRate != 30 {
		t.Errorf("health = %+v", got.Health)
	}
	if got.Health.Codec != "h264" {
		t.Errorf("Codec = %q, want provider value kept", got.Health.Codec)
	}
	if got.Manifest == nil || got.Manifest.Variants != 2 {
		t.Errorf("Manifest = %+v", got.Manifest)
	}
}

func TestRefresh_ProbeSkipped(t *testing.T) {
	tests := []struct {
		name   string
		stream *mux.LiveStream
	}{
		{"idle stream", &mux.LiveStream{Status: mux.LiveStatusIdle, PlaybackIDs: []mux.PlaybackID{{ID: "P", Policy: mux.PolicyPublic}}}},
		{"signed only", &mux.LiveStream{Status: mux.LiveStatusActive, PlaybackIDs: []mux.PlaybackID{{ID: "P", Policy: mux.PolicySigned}}}},
		{"complete telemetry", &mux.LiveStream{
			Status:      mux.LiveStatusActive,
			PlaybackIDs: []mux.PlaybackID{{ID: "P", Policy: mux.PolicyPublic}},
			Health:      &mux.StreamHealth{Bitrate: 1, Codec: "h264", Resolution: "640x360"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &stubProber{info: &ManifestInfo{}}
			monitor := NewMonitor(&stubSource{stream: tt.stream}, WithProber(prober))
			if _, err := monitor.Snapshot(context.Background(), "L"); err != nil {
				t.Fatalf("Snapshot() error = %v", err)
			}
			if len(prober.urls) != 0 {
				t.Errorf("probe called for %s", tt.name)
			}
		})
	}
}

func TestRefresh_ProbeFailureIsNotFatal(t *testing.T) {
	source := &stubSource{stream: &mux.LiveStream{
		Status:      mux.LiveStatusActive,
		PlaybackIDs: []mux.PlaybackID{{ID: "P", Policy: mux.PolicyPublic}},
	}}
	monitor := NewMonitor(source, WithProber(&stubProber{err: errors.New("timeout")}))

	got, err := monitor.Snapshot(context.Background(), "L")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got.Manifest != nil || got.Status != mux.LiveStatusActive {
		t.Errorf("record = %+v", got)
	}
}

func TestRefresh_Errors(t *testing.T) {
	monitor := NewMonitor(&stubSource{err: mux.ErrNotFound})

	if _, err := monitor.Refresh(context.Background(), Record{}); !errors.Is(err, ErrNoStreamID) {
		t.Errorf("Refresh(empty) error = %v, want ErrNoStreamID", err)
	}
	if _, err := monitor.Snapshot(context.Background(), "gone"); !errors.Is(err, mux.ErrNotFound) {
		t.Errorf("Snapshot(gone) error = %v, want ErrNotFound", err)
	}
}
