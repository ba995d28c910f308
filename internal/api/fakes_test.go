package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xpadev-net/ott-media-sync/internal/assetsync"
	"github.com/xpadev-net/ott-media-sync/internal/clock"
	"github.com/xpadev-net/ott-media-sync/internal/db"
	"github.com/xpadev-net/ott-media-sync/internal/livehealth"
	"github.com/xpadev-net/ott-media-sync/internal/mux"
	"github.com/xpadev-net/ott-media-sync/internal/notify"
	"github.com/xpadev-net/ott-media-sync/internal/purge"
)

const testWebhookSecret = "whsec"

type fakeAssets struct {
	mu      sync.Mutex
	records map[string]*db.VideoAsset
	failErr error
}

func newFakeAssets(records ...*db.VideoAsset) *fakeAssets {
	f := &fakeAssets{records: make(map[string]*db.VideoAsset)}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return f
}

func (f *fakeAssets) Create(_ context.Context, p db.CreateAssetParams) (*db.VideoAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	for _, r := range f.records {
		if p.UploadID != "" && r.Remote.UploadID == p.UploadID {
			return nil, db.ErrDuplicateAsset
		}
	}
	a := &db.VideoAsset{
		ID:         p.ID,
		Title:      p.Title,
		SourceType: p.SourceType,
		Remote:     db.RemoteRef{UploadID: p.UploadID, AssetID: p.AssetID, Status: p.Status},
	}
	f.records[a.ID] = a
	cp := *a
	return &cp, nil
}

func (f *fakeAssets) GetByID(_ context.Context, id string) (*db.VideoAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	a, ok := f.records[id]
	if !ok {
		return nil, db.ErrAssetNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAssets) FindByUploadID(_ context.Context, uploadID string) (*db.VideoAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.records {
		if a.Remote.UploadID == uploadID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, db.ErrAssetNotFound
}

func (f *fakeAssets) Update(_ context.Context, id string, patch db.AssetPatch) (*db.VideoAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.records[id]
	if !ok {
		return nil, db.ErrAssetNotFound
	}
	db.ApplyPatch(a, patch)
	cp := *a
	return &cp, nil
}

func (f *fakeAssets) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return db.ErrAssetNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeAssets) List(_ context.Context, p db.ListParams) ([]*db.VideoAsset, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*db.VideoAsset
	for _, a := range f.records {
		if p.Status != nil && a.Remote.Status != *p.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (f *fakeAssets) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[id]
	return ok
}

type fakeEvents struct {
	events []*db.AssetEvent
}

func (f *fakeEvents) ListEvents(_ context.Context, assetID string, _ db.ListEventsParams) ([]*db.AssetEvent, int, error) {
	var out []*db.AssetEvent
	for _, e := range f.events {
		if e.AssetID == assetID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

type fakeVideos struct {
	upload      *mux.Upload
	uploadErr   error
	uploadOpts  mux.DirectUploadOptions
	remote      map[string]*mux.Asset
	updates     map[string]mux.AssetUpdate
	deleted     []string
	deleteFails bool
	signErr     error
	signed      []mux.TokenAudience
}

func (f *fakeVideos) CreateDirectUpload(_ context.Context, opts mux.DirectUploadOptions) (*mux.Upload, error) {
	f.uploadOpts = opts
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.upload, nil
}

func (f *fakeVideos) GetAsset(_ context.Context, id string) (*mux.Asset, error) {
	return f.remote[id], nil
}

func (f *fakeVideos) UpdateAsset(_ context.Context, id string, u mux.AssetUpdate) (*mux.Asset, error) {
	if f.updates == nil {
		f.updates = make(map[string]mux.AssetUpdate)
	}
	f.updates[id] = u
	return &mux.Asset{ID: id}, nil
}

func (f *fakeVideos) DeleteAsset(_ context.Context, id string) bool {
	if f.deleteFails {
		return false
	}
	f.deleted = append(f.deleted, id)
	return true
}

func (f *fakeVideos) SignPlaybackToken(pid string, opts mux.SignOptions) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	f.signed = append(f.signed, opts.Audience)
	return "tok-" + string(opts.Audience), nil
}

func (f *fakeVideos) VerifyWebhookSignature(header string, body []byte) bool {
	return mux.VerifySignature(testWebhookSecret, header, body, time.Now(), 5*time.Minute)
}

type fakeStreams struct {
	calls   []string
	stream  *mux.LiveStream
	err     error
	created mux.LiveStreamOptions
	target  mux.SimulcastTarget
}

func (f *fakeStreams) record(op string) (*mux.LiveStream, error) {
	f.calls = append(f.calls, op)
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func (f *fakeStreams) CreateLiveStream(_ context.Context, opts mux.LiveStreamOptions) (*mux.LiveStream, error) {
	f.created = opts
	return f.record("create")
}

func (f *fakeStreams) GetLiveStream(_ context.Context, id string) (*mux.LiveStream, error) {
	return f.record("get " + id)
}

func (f *fakeStreams) UpdateLiveStream(_ context.Context, id string, _ mux.LiveStreamUpdate) (*mux.LiveStream, error) {
	return f.record("update " + id)
}

func (f *fakeStreams) DeleteLiveStream(_ context.Context, id string) error {
	_, err := f.record("delete " + id)
	return err
}

func (f *fakeStreams) EnableLiveStream(_ context.Context, id string) error {
	_, err := f.record("enable " + id)
	return err
}

func (f *fakeStreams) DisableLiveStream(_ context.Context, id string) error {
	_, err := f.record("disable " + id)
	return err
}

func (f *fakeStreams) ResetStreamKey(_ context.Context, id string) (*mux.LiveStream, error) {
	return f.record("reset " + id)
}

func (f *fakeStreams) CompleteLiveStream(_ context.Context, id string) error {
	_, err := f.record("complete " + id)
	return err
}

func (f *fakeStreams) SetLiveStreamRecording(_ context.Context, id string, enabled bool) (*mux.LiveStream, error) {
	if enabled {
		return f.record("record on " + id)
	}
	return f.record("record off " + id)
}

func (f *fakeStreams) CreateSimulcastTarget(_ context.Context, streamID string, t mux.SimulcastTarget) (*mux.SimulcastTarget, error) {
	f.target = t
	if _, err := f.record("simulcast " + streamID); err != nil {
		return nil, err
	}
	t.ID = "st-1"
	return &t, nil
}

func (f *fakeStreams) DeleteSimulcastTarget(_ context.Context, streamID, targetID string) error {
	_, err := f.record("unsimulcast " + streamID + " " + targetID)
	return err
}

type fakeProcessor struct {
	events  []assetsync.Event
	outcome assetsync.Outcome
}

func (f *fakeProcessor) Handle(_ context.Context, e assetsync.Event) assetsync.Outcome {
	f.events = append(f.events, e)
	return f.outcome
}

// fakePurger blocks on release when it is set, so tests can observe a job
// while it runs.
type fakePurger struct {
	result  purge.Result
	err     error
	started chan struct{}
	release chan struct{}
	calls   int32
}

func (f *fakePurger) DeleteAll(ctx context.Context) (purge.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return f.result, ctx.Err()
		}
	}
	return f.result, f.err
}

type fakeHealth struct {
	rec livehealth.Record
	err error
}

func (f *fakeHealth) Snapshot(_ context.Context, id string) (livehealth.Record, error) {
	if id == "" {
		return livehealth.Record{}, livehealth.ErrNoStreamID
	}
	if f.err != nil {
		return livehealth.Record{}, f.err
	}
	rec := f.rec
	rec.RemoteStreamID = id
	return rec, nil
}

type emitted struct {
	mu     sync.Mutex
	events []notify.Event
}

func (e *emitted) Emit(_ context.Context, ev notify.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *emitted) types() []notify.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]notify.EventType, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Type
	}
	return out
}

type testEnv struct {
	router    *gin.Engine
	handler   *Handler
	assets    *fakeAssets
	events    *fakeEvents
	videos    *fakeVideos
	streams   *fakeStreams
	processor *fakeProcessor
	purger    *fakePurger
	health    *fakeHealth
	emitted   *emitted
	clock     *clock.Fake
}

func newTestEnv(records ...*db.VideoAsset) *testEnv {
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		assets:    newFakeAssets(records...),
		events:    &fakeEvents{},
		videos:    &fakeVideos{remote: map[string]*mux.Asset{}},
		streams:   &fakeStreams{stream: &mux.LiveStream{ID: "ls-1", Status: mux.LiveStatusIdle}},
		processor: &fakeProcessor{outcome: assetsync.OutcomeUpdated},
		purger:    &fakePurger{},
		health:    &fakeHealth{},
		emitted:   &emitted{},
		clock:     clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	}
	h := NewHandler(Deps{
		Assets:      env.assets,
		Events:      env.events,
		Videos:      env.videos,
		LiveStreams: env.streams,
		Processor:   env.processor,
		Purger:      env.purger,
		Health:      env.health,
		Emitter:     env.emitted,
		Clock:       env.clock,
		CORSOrigin:  "https://admin.example.com",
	})
	env.handler = h
	env.router = gin.New()
	h.Register(env.router)
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, want, w.Body.String())
	}
}
