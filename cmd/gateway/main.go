package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xpadev-net/ott-media-sync/internal/api"
	"github.com/xpadev-net/ott-media-sync/internal/assetsync"
	"github.com/xpadev-net/ott-media-sync/internal/clock"
	"github.com/xpadev-net/ott-media-sync/internal/config"
	"github.com/xpadev-net/ott-media-sync/internal/db"
	"github.com/xpadev-net/ott-media-sync/internal/httpapi"
	"github.com/xpadev-net/ott-media-sync/internal/livehealth"
	"github.com/xpadev-net/ott-media-sync/internal/log"
	"github.com/xpadev-net/ott-media-sync/internal/mux"
	"github.com/xpadev-net/ott-media-sync/internal/notify"
	"github.com/xpadev-net/ott-media-sync/internal/purge"
	"github.com/xpadev-net/ott-media-sync/internal/webhook"
)

func main() {
	// Initialize logger
	if err := log.InitJSON(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API Gateway")

	// Load configuration
	cfg, err := config.LoadGatewayConfig()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	log.Info("configuration loaded",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Port),
		zap.String("mux_base_url", cfg.Mux.BaseURL),
		zap.Bool("signed_playback", cfg.Mux.SigningKeyID != ""),
	)

	// Connect to database
	ctx := context.Background()
	database, err := db.New(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: int32(cfg.DBMaxConns),
		MinConns: int32(cfg.DBMinConns),
	})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	assetRepo := db.NewAssetRepository(database)
	eventRepo := db.NewEventRepository(database)

	// One provider client per process so the limiter and cache are shared.
	muxCfg := mux.DefaultConfig()
	muxCfg.BaseURL = cfg.Mux.BaseURL
	muxCfg.TokenID = cfg.Mux.TokenID
	muxCfg.TokenSecret = cfg.Mux.TokenSecret
	muxCfg.WebhookSecret = cfg.Mux.WebhookSecret
	muxCfg.WebhookTolerance = cfg.Mux.WebhookTolerance
	muxCfg.SigningKeyID = cfg.Mux.SigningKeyID
	muxCfg.SigningKeySecret = cfg.Mux.SigningKeyPrivate
	muxCfg.MinRequestInterval = cfg.Mux.MinRequestInterval
	muxCfg.CacheTTL = cfg.Mux.CacheTTL
	muxCfg.UploadTimeout = cfg.Mux.UploadTimeout
	client := mux.New(muxCfg)

	// Domain event sinks
	sinks := notify.Multi{notify.LogEmitter{}, notify.NewEventLog(eventRepo)}

	if cfg.RedisURL != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient, err := notify.Connect(redisCtx, cfg.RedisURL)
		redisCancel()
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		sinks = append(sinks, notify.NewRedisPublisher(redisClient, cfg.EventsChannel))
		log.Info("publishing domain events to redis", zap.String("channel", cfg.EventsChannel))
	}

	var asyncWebhook *notify.Async
	if cfg.EventWebhookURL != "" {
		sender := webhook.NewSender(cfg.EventWebhookSigningKey, clock.Real{})
		asyncWebhook = notify.NewAsync(notify.NewWebhookEmitter(sender, cfg.EventWebhookURL), 256, 2*time.Minute)
		sinks = append(sinks, asyncWebhook)
		log.Info("delivering domain events to webhook", zap.String("url", cfg.EventWebhookURL))
	}

	processor := assetsync.NewProcessor(assetRepo, client, sinks, clock.Real{})
	purger := purge.NewCoordinator(client, clock.Real{}, cfg.PurgePageLimit)
	health := livehealth.NewMonitor(client,
		livehealth.WithProber(livehealth.NewManifestProbe(10*time.Second)),
	)

	// Create API handler
	handler := api.NewHandler(api.Deps{
		Assets:      assetRepo,
		Events:      eventRepo,
		Videos:      client,
		LiveStreams: client,
		Processor:   processor,
		Purger:      purger,
		Health:      health,
		Emitter:     sinks,
		CORSOrigin:  cfg.Mux.CORSOrigin,
	})

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	// Health check endpoints (no auth required)
	router.GET("/healthz", healthzHandler())
	router.GET("/readyz", readyzHandler(database))

	limiter := httpapi.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	handler.Register(router, httpapi.APIKeyAuth(cfg.APIKey), limiter.Middleware())

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info("starting HTTP server", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop background purge jobs before flushing events
	handler.Close()

	// Flush queued webhook deliveries. Requests still running after a forced
	// shutdown get ErrClosed from Emit.
	if asyncWebhook != nil {
		asyncWebhook.Close()
	}

	log.Info("server stopped")
}

func healthzHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func readyzHandler(database *db.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "database connection failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
