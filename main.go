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
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"steam-inventory/internal/api"
	"steam-inventory/internal/auth"
	"steam-inventory/internal/config"
	"steam-inventory/internal/database"
	"steam-inventory/internal/logging"
	"steam-inventory/internal/metrics"
	"steam-inventory/internal/services/events"
	"steam-inventory/internal/services/inventory"
	"steam-inventory/internal/services/pump"
	"steam-inventory/internal/services/steam"
	"steam-inventory/internal/websocket"
)

// Handles older than this are reported by the leak job.
const staleResultAge = 10 * time.Minute

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	logger := logging.New(cfg.Log)
	log := logging.Component(logger, "main")
	if envErr != nil {
		log.Debug("No .env file found")
	}
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := database.Initialize(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	store := database.NewDefinitionStore(db)

	m := metrics.New()

	// Event pump and the Web API backed inventory service
	callbacks := pump.New(cfg.Pump.Capacity, logging.Component(logger, "pump"))
	steamService := steam.NewInventoryService(steam.Config{
		APIKey:          cfg.Steam.APIKey,
		AppID:           cfg.Steam.AppID,
		SteamID:         cfg.Steam.SteamID,
		BaseURL:         cfg.Steam.BaseURL,
		Timeout:         cfg.Steam.Timeout,
		BreakerTimeout:  cfg.Steam.BreakerTimeout,
		BreakerFailures: cfg.Steam.BreakerFailures,
	}, callbacks, store, m, logging.Component(logger, "steam"))

	inv := inventory.New(steamService, callbacks,
		inventory.WithLogger(logging.Component(logger, "inventory")),
		inventory.WithRecorder(m),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event fan-out
	wsHub := websocket.NewHub(logging.Component(logger, "websocket"))
	go wsHub.Run(ctx)
	events.Forward(inv, wsHub.Publish)

	natsPublisher, err := events.ConnectNATS(cfg.NATS.URL, cfg.NATS.Subject, logging.Component(logger, "nats"))
	if err != nil {
		log.WithError(err).WithField("url", cfg.NATS.URL).Warn("failed to connect to NATS, event publishing disabled")
	} else {
		defer natsPublisher.Close()
		events.Forward(inv, natsPublisher.Publish)
		log.WithField("url", cfg.NATS.URL).Info("connected to NATS")
	}

	// Scheduled jobs
	scheduler := pump.NewScheduler(logging.Component(logger, "scheduler"))
	jobs := []struct {
		spec string
		name string
		fn   func()
	}{
		{cfg.Pump.Schedule, "run-callbacks", func() { callbacks.RunCallbacks() }},
		{cfg.Catalog.RefreshSchedule, "refresh-definitions", inv.LoadItemDefinitions},
		{cfg.Catalog.LeakSchedule, "report-outstanding", func() { inv.ReportOutstanding(staleResultAge) }},
	}
	for _, job := range jobs {
		if err := scheduler.Every(job.spec, job.name, job.fn); err != nil {
			log.WithError(err).WithField("job", job.name).Fatal("Failed to schedule job")
		}
	}
	scheduler.Start()
	inv.LoadItemDefinitions()

	// HTTP surface
	router := api.NewRouter(api.Dependencies{
		Inventory: inv,
		SteamID:   inventory.SteamID(cfg.Steam.SteamID),
		Auth:      auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Metrics:   m,
		WebSocket: wsHub.Handler(),
		Log:       logging.Component(logger, "http"),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed to start")
		}
	}()
	log.Infof("Server started on port %d", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	<-scheduler.Stop().Done()
	steamService.Close()
	// deliver whatever the cancelled requests posted
	callbacks.RunCallbacks()
	inv.Close()
	cancel()

	log.Info("Server exited")
}
