// Package worker drives the live-stream health projection on a schedule.
package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xpadev-net/ott-media-sync/internal/clock"
	"github.com/xpadev-net/ott-media-sync/internal/config"
	"github.com/xpadev-net/ott-media-sync/internal/livehealth"
	"github.com/xpadev-net/ott-media-sync/internal/log"
)

// Refresher overlays fresh provider telemetry onto a record.
type Refresher interface {
	Refresh(ctx context.Context, rec livehealth.Record) (livehealth.Record, error)
}

// Reporter receives every refreshed record.
type Reporter interface {
	ReportHealth(ctx context.Context, rec livehealth.Record) error
}

// Worker polls a fixed set of live streams. The last refreshed record of each
// stream is kept as the base for the next overlay.
type Worker struct {
	cfg       *config.WorkerConfig
	refresher Refresher
	reporter  Reporter
	clock     clock.Clock

	mu       sync.Mutex
	records  map[string]livehealth.Record
	failures map[string]int
	polled   bool
}

// NewWorker creates a worker. reporter may be nil.
func NewWorker(cfg *config.WorkerConfig, refresher Refresher, reporter Reporter, clk clock.Clock) *Worker {
	if clk == nil {
		clk = clock.Real{}
	}
	records := make(map[string]livehealth.Record, len(cfg.LiveStreamIDs))
	for _, id := range cfg.LiveStreamIDs {
		records[id] = livehealth.Record{RemoteStreamID: id}
	}
	return &Worker{
		cfg:       cfg,
		refresher: refresher,
		reporter:  reporter,
		clock:     clk,
		records:   records,
		failures:  make(map[string]int),
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	log.Info("starting live stream health polling",
		zap.Int("streams", len(w.cfg.LiveStreamIDs)),
		zap.Duration("interval", w.cfg.PollInterval),
	)
	for {
		w.PollOnce(ctx)
		if err := w.clock.Sleep(ctx, w.cfg.PollInterval); err != nil {
			log.Info("live stream health polling stopped")
			return nil
		}
	}
}

// PollOnce refreshes every configured stream once. A failing stream keeps its
// previous record and does not stop the others.
func (w *Worker) PollOnce(ctx context.Context) {
	for _, id := range w.cfg.LiveStreamIDs {
		if ctx.Err() != nil {
			return
		}
		w.pollStream(ctx, id)
	}

	w.mu.Lock()
	w.polled = true
	w.mu.Unlock()
}

func (w *Worker) pollStream(ctx context.Context, id string) {
	w.mu.Lock()
	prev := w.records[id]
	w.mu.Unlock()

	timeout := w.cfg.PollInterval
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	refreshCtx, cancel := context.WithTimeout(ctx, timeout)
	rec, err := w.refresher.Refresh(refreshCtx, prev)
	cancel()
	if err != nil {
		w.mu.Lock()
		w.failures[id]++
		failures := w.failures[id]
		w.mu.Unlock()
		log.Warn("live stream refresh failed",
			zap.String("stream_id", id),
			zap.Int("consecutive_failures", failures),
			zap.Error(err),
		)
		return
	}

	w.mu.Lock()
	w.records[id] = rec
	w.failures[id] = 0
	w.mu.Unlock()

	logTransition(prev, rec)

	if w.reporter != nil {
		if err := w.reporter.ReportHealth(ctx, rec); err != nil {
			log.Warn("failed to report live stream health",
				zap.String("stream_id", id),
				zap.Error(err),
			)
		}
	}
}

func logTransition(prev, rec livehealth.Record) {
	if prev.Status != "" && prev.Status != rec.Status {
		log.Info("live stream status changed",
			zap.String("stream_id", rec.RemoteStreamID),
			zap.String("from", prev.Status),
			zap.String("to", rec.Status),
		)
	}
	if len(rec.Health.Errors) > 0 && len(prev.Health.Errors) == 0 {
		log.Warn("live stream reported errors",
			zap.String("stream_id", rec.RemoteStreamID),
			zap.Strings("errors", rec.Health.Errors),
		)
	}
	log.Debug("live stream refreshed",
		zap.String("stream_id", rec.RemoteStreamID),
		zap.String("status", rec.Status),
		zap.Float64("bitrate", rec.Health.Bitrate),
		zap.String("resolution", rec.Health.Resolution),
	)
}

// Records returns the latest record of every stream, ordered by stream id.
func (w *Worker) Records() []livehealth.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]livehealth.Record, 0, len(w.records))
	for _, rec := range w.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemoteStreamID < out[j].RemoteStreamID })
	return out
}

// Ready reports whether a full poll has completed.
func (w *Worker) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.polled
}
