package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/minewatch/pitguard/internal/api"
	"github.com/minewatch/pitguard/internal/compliance"
	"github.com/minewatch/pitguard/internal/config"
	"github.com/minewatch/pitguard/internal/ingest"
	"github.com/minewatch/pitguard/internal/logging"
	"github.com/minewatch/pitguard/internal/loop"
	"github.com/minewatch/pitguard/internal/models"
	"github.com/minewatch/pitguard/internal/notify"
	"github.com/minewatch/pitguard/internal/sensorhealth"
	"github.com/minewatch/pitguard/internal/state"
	"github.com/minewatch/pitguard/internal/stream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	now := time.Now()
	store := state.NewStore(models.Thresholds{
		High:   cfg.Risk.HighThreshold,
		Medium: cfg.Risk.MediumThreshold,
	})
	store.Seed(now)

	health := sensorhealth.NewTracker(cfg.Loop.DeviceGracePeriod)
	health.Seed(now)

	var events compliance.EventLog
	if cfg.DB.Path != "" {
		sl, err := compliance.NewSQLiteLog(cfg.DB.Path)
		if err != nil {
			logging.Fatalf("Failed to initialize compliance database: %v", err)
		}
		events = sl
	} else {
		events = compliance.NewMemoryLog()
	}
	defer events.Close()

	broadcaster := stream.NewBroadcaster()

	runner := loop.NewRunner(cfg.Loop, cfg.Sim.Enabled, store, events, health, broadcaster, slog.Default())
	// The monitoring loop only runs while someone is watching. The first
	// stream attach starts it; it parks itself again once the last
	// subscriber detaches.
	broadcaster.OnSubscribe(runner.EnsureStarted)

	var consumer *ingest.Consumer
	if cfg.MQTT.Enabled {
		consumer = ingest.NewConsumer(cfg.MQTT, store, health, broadcaster, slog.Default())
		if err := consumer.Start(); err != nil {
			logging.Fatalf("MQTT consumer error: %v", err)
		}
	}

	sink := notify.NewSMSSink(cfg.Notify, slog.Default())

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(5)) // 5 req/s global limit

	handler := api.NewHandler(store, events, health, broadcaster, runner, sink, cfg.Loop.StreamHeartbeat)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	if consumer != nil {
		consumer.Stop()
	}
	runner.Stop()
	broadcaster.Close() // Close all streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
