package notify

import (
	"context"
	"errors"

	"github.com/xpadev-net/ott-media-sync/internal/webhook"
)

// WebhookEmitter delivers events as signed outbound webhooks.
type WebhookEmitter struct {
	sender *webhook.Sender
	url    string
}

// NewWebhookEmitter creates an emitter posting to url.
func NewWebhookEmitter(sender *webhook.Sender, url string) *WebhookEmitter {
	return &WebhookEmitter{sender: sender, url: url}
}

// Emit sends the event, retrying per the sender's policy.
func (w *WebhookEmitter) Emit(ctx context.Context, event Event) error {
	payload := &webhook.Payload{
		EventType: string(event.Type),
		AssetID:   event.AssetID,
		Timestamp: event.OccurredAt,
		Data:      make(map[string]interface{}, len(event.Fields)+2),
		Error:     event.Error,
	}
	for k, v := range event.Fields {
		payload.Data[k] = v
	}
	if event.Trigger != "" {
		payload.Data["trigger"] = event.Trigger
	}
	if event.Status != "" {
		payload.Data["status"] = event.Status
	}

	result := w.sender.Send(ctx, w.url, payload)
	if !result.Success {
		return errors.New("webhook delivery failed: " + result.Error)
	}
	return nil
}
