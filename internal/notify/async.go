package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xpadev-net/ott-media-sync/internal/log"
)

// ErrClosed is returned by Async.Emit once Close has been called.
var ErrClosed = errors.New("async emitter closed")

// Async delivers events to a slow emitter from a background goroutine so
// the caller never waits on network retries. Events are dropped when the
// buffer is full.
type Async struct {
	next    Emitter
	timeout time.Duration
	queue   chan Event
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts the delivery goroutine. timeout bounds each delivery.
func NewAsync(next Emitter, buffer int, timeout time.Duration) *Async {
	if buffer <= 0 {
		buffer = 64
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	a := &Async{
		next:    next,
		timeout: timeout,
		queue:   make(chan Event, buffer),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for event := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Emit(ctx, event); err != nil {
			log.Warn("async event delivery failed",
				zap.String("event_type", string(event.Type)),
				zap.String("asset_id", event.AssetID),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Emit enqueues the event without blocking. Events emitted after Close are
// rejected with ErrClosed.
func (a *Async) Emit(_ context.Context, event Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		log.Warn("event emitted after shutdown, dropping",
			zap.String("event_type", string(event.Type)),
			zap.String("asset_id", event.AssetID),
		)
		return ErrClosed
	}
	select {
	case a.queue <- event:
	default:
		log.Warn("event queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("asset_id", event.AssetID),
		)
	}
	return nil
}

// Close stops accepting events and waits for queued ones to be delivered.
// It is safe to call more than once and concurrently with Emit.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
}
