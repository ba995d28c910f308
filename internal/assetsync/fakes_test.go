package assetsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xpadev-net/ott-media-sync/internal/clock"
	"github.com/xpadev-net/ott-media-sync/internal/db"
	"github.com/xpadev-net/ott-media-sync/internal/notify"
)

var testEpoch = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

// memRepo is an in-memory Repository enforcing the same uniqueness and merge
// rules as the postgres repository.
type memRepo struct {
	mu      sync.Mutex
	assets  map[string]*db.VideoAsset
	writes    int
	failErr   error
	updateErr error
}

func newMemRepo() *memRepo {
	return &memRepo{assets: map[string]*db.VideoAsset{}}
}

func clone(a *db.VideoAsset) *db.VideoAsset {
	c := *a
	return &c
}

func (r *memRepo) findBy(match func(*db.VideoAsset) bool) (*db.VideoAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assets {
		if match(a) {
			return clone(a), nil
		}
	}
	return nil, db.ErrAssetNotFound
}

func (r *memRepo) FindByUploadID(_ context.Context, uploadID string) (*db.VideoAsset, error) {
	return r.findBy(func(a *db.VideoAsset) bool { return a.Remote.UploadID == uploadID })
}

func (r *memRepo) FindByAssetID(_ context.Context, assetID string) (*db.VideoAsset, error) {
	return r.findBy(func(a *db.VideoAsset) bool { return a.Remote.AssetID == assetID })
}

func (r *memRepo) conflicts(id, uploadID, assetID string) bool {
	for _, a := range r.assets {
		if a.ID == id {
			continue
		}
		if uploadID != "" && a.Remote.UploadID == uploadID {
			return true
		}
		if assetID != "" && a.Remote.AssetID == assetID {
			return true
		}
	}
	return false
}

func (r *memRepo) Create(_ context.Context, p db.CreateAssetParams) (*db.VideoAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	if r.conflicts(p.ID, p.UploadID, p.AssetID) {
		return nil, db.ErrDuplicateAsset
	}
	r.writes++
	a := &db.VideoAsset{
		ID:         p.ID,
		Title:      p.Title,
		SourceType: p.SourceType,
		Remote: db.RemoteRef{
			UploadID:   p.UploadID,
			AssetID:    p.AssetID,
			PlaybackID: p.PlaybackID,
			Status:     p.Status,
		},
		Duration:     p.Duration,
		AspectRatio:  p.AspectRatio,
		ThumbnailURL: p.ThumbnailURL,
		Placeholder:  p.Placeholder,
		CreatedAt:    testEpoch,
		UpdatedAt:    testEpoch,
	}
	r.assets[a.ID] = a
	return clone(a), nil
}

func (r *memRepo) Update(_ context.Context, id string, patch db.AssetPatch) (*db.VideoAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	a, ok := r.assets[id]
	if !ok {
		return nil, db.ErrAssetNotFound
	}
	next := clone(a)
	db.ApplyPatch(next, patch)
	if r.conflicts(id, next.Remote.UploadID, next.Remote.AssetID) {
		return nil, db.ErrDuplicateAsset
	}
	r.writes++
	r.assets[id] = next
	return clone(next), nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	if _, ok := r.assets[id]; !ok {
		return db.ErrAssetNotFound
	}
	r.writes++
	delete(r.assets, id)
	return nil
}

func (r *memRepo) seed(a *db.VideoAsset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[a.ID] = clone(a)
}

func (r *memRepo) all() []*db.VideoAsset {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*db.VideoAsset
	for _, a := range r.assets {
		out = append(out, clone(a))
	}
	return out
}

func (r *memRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *memRepo) setFailure(err error) {
	r.mu.Lock()
	r.failErr = err
	r.mu.Unlock()
}

// setUpdateFailure fails Update only; inserts and reads keep working.
func (r *memRepo) setUpdateFailure(err error) {
	r.mu.Lock()
	r.updateErr = err
	r.mu.Unlock()
}

type fakeCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *fakeCache) InvalidateAsset(id string) {
	c.mu.Lock()
	c.invalidated = append(c.invalidated, id)
	c.mu.Unlock()
}

func (c *fakeCache) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.invalidated...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (e *eventRecorder) Emit(_ context.Context, event notify.Event) error {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.mu.Unlock()
	return nil
}

func (e *eventRecorder) types() []notify.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []notify.EventType
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

func (e *eventRecorder) last() notify.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) == 0 {
		return notify.Event{}
	}
	return e.events[len(e.events)-1]
}

type harness struct {
	repo   *memRepo
	cache  *fakeCache
	events *eventRecorder
	proc   *Processor
}

func newHarness() *harness {
	h := &harness{repo: newMemRepo(), cache: &fakeCache{}, events: &eventRecorder{}}
	h.proc = NewProcessor(h.repo, h.cache, h.events, clock.NewFake(testEpoch))
	return h
}

func mustEvent(t *testing.T, typ string, data interface{}) Event {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal event data: %v", err)
	}
	return Event{Type: typ, Data: raw}
}

var errDBDown = errors.New("connection refused")
