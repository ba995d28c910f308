package main

import (
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xpadev-net/ott-media-sync/internal/httpapi"
	"github.com/xpadev-net/ott-media-sync/internal/log"
	"github.com/xpadev-net/ott-media-sync/internal/webhook"
)

const maxEventBody = 1 << 20

func main() {
	if err := log.Init("development"); err != nil {
		panic(err)
	}
	defer log.Sync()

	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}
	signingKey := os.Getenv("EVENT_WEBHOOK_SIGNING_KEY")
	if signingKey == "" {
		signingKey = "demo-signing-key"
		log.Warn("EVENT_WEBHOOK_SIGNING_KEY not set, using demo key")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		httpapi.RespondOK(c, gin.H{"status": "healthy"})
	})
	router.POST("/events", receiveEvent(signingKey))

	log.Info("domain event receiver starting", zap.String("port", port), zap.String("endpoint", "POST /events"))
	if err := router.Run(":" + port); err != nil {
		log.Fatal("receiver failed", zap.Error(err))
	}
}

func receiveEvent(signingKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxEventBody))
		if err != nil {
			httpapi.RespondBadRequest(c, "failed to read body")
			return
		}

		payload, err := webhook.VerifyRequest(c.Request.Header, body, signingKey, time.Now())
		switch {
		case errors.Is(err, webhook.ErrInvalidSignature):
			log.Warn("rejected event delivery", zap.Error(err))
			httpapi.RespondError(c, http.StatusUnauthorized, httpapi.ErrCodeInvalidSignature, err.Error())
			return
		case err != nil:
			log.Warn("malformed event delivery", zap.Error(err))
			httpapi.RespondBadRequest(c, err.Error())
			return
		}

		fields := []zap.Field{
			zap.String("event_type", payload.EventType),
			zap.String("asset_id", payload.AssetID),
			zap.Time("timestamp", payload.Timestamp),
			zap.String("attempt", c.GetHeader(webhook.DeliveryHeader)),
		}
		if payload.Error != "" {
			fields = append(fields, zap.String("error", payload.Error))
		}
		if len(payload.Data) > 0 {
			fields = append(fields, zap.Any("data", payload.Data))
		}
		log.Info("domain event received", fields...)

		httpapi.RespondOK(c, gin.H{"status": "ok"})
	}
}
