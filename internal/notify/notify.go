// Package notify emits domain events about video assets to downstream
// consumers: logs, a redis channel, a signed webhook and the event log table.
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xpadev-net/ott-media-sync/internal/log"
)

// EventType names a domain event.
type EventType string

const (
	AssetCreated EventType = "asset.created"
	AssetUpdated EventType = "asset.updated"
	AssetReady   EventType = "asset.ready"
	AssetDeleted EventType = "asset.deleted"
	AssetError   EventType = "asset.error"
)

// Event describes a change to one local asset record.
type Event struct {
	Type    EventType `json:"type"`
	AssetID string    `json:"asset_id"`
	// Trigger is the provider event type or API action that caused the change.
	Trigger    string                 `json:"trigger,omitempty"`
	Status     string                 `json:"status,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	Error      string                 `json:"error,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Emitter delivers domain events.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, event Event) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// LogEmitter writes events to the structured log.
type LogEmitter struct{}

// Emit logs the event at info level.
func (LogEmitter) Emit(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("event_type", string(event.Type)),
		zap.String("asset_id", event.AssetID),
		zap.String("trigger", event.Trigger),
	}
	if event.Status != "" {
		fields = append(fields, zap.String("status", event.Status))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	log.Info("domain event", fields...)
	return nil
}

// Multi fans an event out to every emitter. One sink failing does not stop
// the others; all failures are joined into the returned error.
type Multi []Emitter

// Emit delivers event to every emitter.
func (m Multi) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			log.Warn("event sink failed",
				zap.String("event_type", string(event.Type)),
				zap.String("asset_id", event.AssetID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
