package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xpadev-net/ott-media-sync/internal/db"
)

// EventStore persists asset events.
type EventStore interface {
	CreateEvent(ctx context.Context, event *db.AssetEvent) error
}

// EventLog records events in the asset_events table.
type EventLog struct {
	store EventStore
}

// NewEventLog creates an event log sink.
func NewEventLog(store EventStore) *EventLog {
	return &EventLog{store: store}
}

// Emit appends the event.
func (l *EventLog) Emit(ctx context.Context, event Event) error {
	if event.AssetID == "" {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return l.store.CreateEvent(ctx, &db.AssetEvent{
		AssetID:   event.AssetID,
		EventType: string(event.Type),
		Payload:   payload,
		CreatedAt: event.OccurredAt,
	})
}
