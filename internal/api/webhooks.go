package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xpadev-net/ott-media-sync/internal/assetsync"
	"github.com/xpadev-net/ott-media-sync/internal/httpapi"
	"github.com/xpadev-net/ott-media-sync/internal/log"
	"github.com/xpadev-net/ott-media-sync/internal/mux"
)

const (
	maxWebhookBodyBytes   = 1 << 20
	webhookProcessTimeout = 30 * time.Second
)

// WebhookResponse acknowledges a provider delivery.
type WebhookResponse struct {
	Received bool              `json:"received"`
	Type     string            `json:"type"`
	Outcome  assetsync.Outcome `json:"outcome"`
}

// ReceiveWebhook handles POST /webhooks/mux
//
// Once a delivery is authentic and parseable it is always acknowledged with
// 200. Processing faults are reported through domain events instead, since a
// non-2xx answer only makes the provider redeliver.
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpapi.RespondError(c, http.StatusRequestEntityTooLarge, httpapi.ErrCodeBadRequest, "Webhook body too large")
			return
		}
		httpapi.RespondBadRequest(c, "Failed to read webhook body")
		return
	}

	if !h.videos.VerifyWebhookSignature(c.GetHeader(mux.SignatureHeader), body) {
		log.Warn("rejected webhook with invalid signature", zap.String("client_ip", c.ClientIP()))
		httpapi.RespondError(c, http.StatusUnauthorized, httpapi.ErrCodeInvalidSignature, "Invalid webhook signature")
		return
	}

	var event assetsync.Event
	if err := json.Unmarshal(body, &event); err != nil || event.Type == "" {
		httpapi.RespondBadRequest(c, "Invalid webhook payload")
		return
	}

	// Processing continues even if the provider hangs up.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), webhookProcessTimeout)
	defer cancel()
	outcome := h.processor.Handle(ctx, event)

	httpapi.RespondOK(c, WebhookResponse{
		Received: true,
		Type:     event.Type,
		Outcome:  outcome,
	})
}
