package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventRepository persists the asset event log.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateEvent appends an event to the log.
func (r *EventRepository) CreateEvent(ctx context.Context, event *AssetEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.Must(uuid.NewV7())
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	payload := event.Payload
	if payload == nil {
		payload = []byte("{}")
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO asset_events (id, asset_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ID, event.AssetID, event.EventType, payload, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert asset_event: %w", err)
	}
	return nil
}

// ListEventsParams contains parameters for listing events.
type ListEventsParams struct {
	Limit  int
	Offset int
}

// ListEvents retrieves events for an asset, newest first.
func (r *EventRepository) ListEvents(ctx context.Context, assetID string, params ListEventsParams) ([]*AssetEvent, int, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}
	if params.Limit > 100 {
		params.Limit = 100
	}

	var total int
	err := r.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM asset_events WHERE asset_id = $1`, assetID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT id, asset_id, event_type, payload, created_at
		FROM asset_events
		WHERE asset_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, assetID, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*AssetEvent
	for rows.Next() {
		var event AssetEvent
		if err := rows.Scan(&event.ID, &event.AssetID, &event.EventType, &event.Payload, &event.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate events: %w", err)
	}

	return events, total, nil
}
