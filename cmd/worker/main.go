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

	"github.com/xpadev-net/ott-media-sync/internal/clock"
	"github.com/xpadev-net/ott-media-sync/internal/config"
	"github.com/xpadev-net/ott-media-sync/internal/livehealth"
	"github.com/xpadev-net/ott-media-sync/internal/log"
	"github.com/xpadev-net/ott-media-sync/internal/mux"
	"github.com/xpadev-net/ott-media-sync/internal/worker"
)

func main() {
	// Initialize logger
	if err := log.InitJSON(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting live stream health worker")

	// Load configuration
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	log.Info("configuration loaded",
		zap.Strings("live_stream_ids", cfg.LiveStreamIDs),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Bool("probe_manifests", cfg.ProbeManifests),
		zap.String("callback_url", cfg.CallbackURL),
	)

	muxCfg := mux.DefaultConfig()
	muxCfg.BaseURL = cfg.Mux.BaseURL
	muxCfg.TokenID = cfg.Mux.TokenID
	muxCfg.TokenSecret = cfg.Mux.TokenSecret
	muxCfg.MinRequestInterval = cfg.Mux.MinRequestInterval
	client := mux.New(muxCfg)

	var opts []livehealth.Option
	if cfg.ProbeManifests {
		opts = append(opts, livehealth.WithProber(livehealth.NewManifestProbe(cfg.ManifestFetchTimeout)))
	}
	monitor := livehealth.NewMonitor(client, opts...)

	var reporter worker.Reporter
	if cfg.CallbackURL != "" {
		cb, err := worker.NewCallbackClient(cfg.CallbackURL, cfg.CallbackAPIKey, clock.Real{})
		if err != nil {
			log.Fatal("invalid health callback", zap.Error(err))
		}
		reporter = cb
	}

	w := worker.NewWorker(cfg, monitor, reporter, clock.Real{})

	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	// Create router for health checks
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", healthzHandler)
	router.GET("/readyz", readyzHandler(w))
	router.GET("/streams", streamsHandler(w))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HealthPort),
		Handler: router,
	}

	// Start health check server in a goroutine
	go func() {
		log.Info("starting health check server", zap.Int("port", cfg.HealthPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health check server error", zap.Error(err))
		}
	}()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("worker error", zap.Error(err))
	}

	// Shutdown health check server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down health server", zap.Error(err))
	}

	log.Info("worker stopped")
}

func healthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func readyzHandler(w *worker.Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !w.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func streamsHandler(w *worker.Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"streams": w.Records()})
	}
}
