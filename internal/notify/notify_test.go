package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/xpadev-net/ott-media-sync/internal/clock"
	"github.com/xpadev-net/ott-media-sync/internal/db"
	"github.com/xpadev-net/ott-media-sync/internal/webhook"
)

var testEpoch = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Emit(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestMulti_DeliversToAllSinks(t *testing.T) {
	failing := &recorder{err: errors.New("sink down")}
	ok := &recorder{}

	err := Multi{failing, ok}.Emit(context.Background(), Event{Type: AssetReady, AssetID: "vid-1"})
	if err == nil {
		t.Error("Multi.Emit() error = nil, want joined sink error")
	}
	if len(failing.Events()) != 1 || len(ok.Events()) != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", len(failing.Events()), len(ok.Events()))
	}
}

func TestMulti_NoErrorWhenAllSucceed(t *testing.T) {
	if err := (Multi{LogEmitter{}, &recorder{}}).Emit(context.Background(), Event{Type: AssetCreated}); err != nil {
		t.Errorf("Multi.Emit() error = %v, want nil", err)
	}
}

type stubEventStore struct {
	events []*db.AssetEvent
}

func (s *stubEventStore) CreateEvent(_ context.Context, event *db.AssetEvent) error {
	s.events = append(s.events, event)
	return nil
}

func TestEventLog_Emit(t *testing.T) {
	store := &stubEventStore{}
	sink := NewEventLog(store)

	event := Event{Type: AssetDeleted, AssetID: "vid-9", Trigger: "video.asset.deleted", OccurredAt: testEpoch}
	if err := sink.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if err := sink.Emit(context.Background(), Event{Type: AssetError}); err != nil {
		t.Fatalf("Emit() without asset error = %v", err)
	}

	if len(store.events) != 1 {
		t.Fatalf("stored events = %d, want 1 (events without asset id are skipped)", len(store.events))
	}
	stored := store.events[0]
	if stored.AssetID != "vid-9" || stored.EventType != "asset.deleted" || !stored.CreatedAt.Equal(testEpoch) {
		t.Errorf("stored = %+v", stored)
	}
	var decoded Event
	if err := json.Unmarshal(stored.Payload, &decoded); err != nil || decoded.Trigger != "video.asset.deleted" {
		t.Errorf("payload = %s (err %v)", stored.Payload, err)
	}
}

func TestWebhookEmitter_Emit(t *testing.T) {
	var got webhook.Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := webhook.NewSender("key", clock.NewFake(testEpoch))
	emitter := NewWebhookEmitter(sender, server.URL)

	err := emitter.Emit(context.Background(), Event{
		Type:       AssetReady,
		AssetID:    "vid-2",
		Trigger:    "video.asset.ready",
		Status:     "ready",
		Fields:     map[string]interface{}{"duration": 120.0},
		OccurredAt: testEpoch,
	})
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if got.EventType != "asset.ready" || got.AssetID != "vid-2" {
		t.Errorf("payload = %+v", got)
	}
	if got.Data["status"] != "ready" || got.Data["trigger"] != "video.asset.ready" || got.Data["duration"] != 120.0 {
		t.Errorf("payload data = %v", got.Data)
	}
}

func TestWebhookEmitter_EmitFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	emitter := NewWebhookEmitter(webhook.NewSender("key", clock.NewFake(testEpoch)), server.URL)
	if err := emitter.Emit(context.Background(), Event{Type: AssetError}); err == nil {
		t.Error("Emit() error = nil, want delivery failure")
	}
}

func TestAsync_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	rec := &recorder{}
	async := NewAsync(rec, 16, time.Second)

	for _, id := range []string{"a", "b", "c"} {
		if err := async.Emit(context.Background(), Event{Type: AssetUpdated, AssetID: id}); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
	}
	async.Close()
	async.Close()

	events := rec.Events()
	if len(events) != 3 {
		t.Fatalf("delivered = %d, want 3", len(events))
	}
	for i, id := range []string{"a", "b", "c"} {
		if events[i].AssetID != id {
			t.Errorf("events[%d].AssetID = %q, want %q", i, events[i].AssetID, id)
		}
	}
}

func TestAsync_EmitAfterCloseIsRejected(t *testing.T) {
	rec := &recorder{}
	async := NewAsync(rec, 4, time.Second)
	async.Close()

	if err := async.Emit(context.Background(), Event{Type: AssetError, AssetID: "late"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Emit() after Close error = %v, want ErrClosed", err)
	}
	if n := len(rec.Events()); n != 0 {
		t.Errorf("delivered = %d, want 0", n)
	}
}

func TestAsync_ConcurrentEmitAndClose(t *testing.T) {
	async := NewAsync(&recorder{}, 8, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = async.Emit(context.Background(), Event{Type: AssetUpdated})
			}
		}()
	}
	async.Close()
	wg.Wait()
}

func TestEmitterFunc(t *testing.T) {
	called := false
	var e Emitter = EmitterFunc(func(_ context.Context, event Event) error {
		called = event.AssetID == "x"
		return nil
	})
	_ = e.Emit(context.Background(), Event{AssetID: "x"})
	if !called {
		t.Error("EmitterFunc was not invoked with the event")
	}
}
