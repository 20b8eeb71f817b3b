package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/keymonitor/backend/internal/api"
	"github.com/keymonitor/backend/internal/config"
	"github.com/keymonitor/backend/internal/database"
	"github.com/keymonitor/backend/internal/services"
	"github.com/keymonitor/backend/internal/store"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Initialize database
	if err := database.Initialize(filepath.Join(dataDir, "prices.db")); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Load configuration (created with defaults on first run)
	cfgManager, err := config.Load(filepath.Join(dataDir, "config.yaml"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := cfgManager.Current()
	log.Printf("Config loaded: collect every %d min, retention %d days",
		cfg.CollectInterval, cfg.DataRetentionDays)

	// Initialize services
	st := store.New(database.GetDB())
	catalog := services.NewSteampyService(cfgManager)
	pusher := services.NewPushmeService()
	alerts := services.NewAlertEngine(cfgManager, st, pusher)
	collector := services.NewCollector(st, catalog, alerts)
	analysis := services.NewAnalysisService(st)
	scheduler := services.NewScheduler(cfgManager, collector, alerts, st, analysis)

	// Create a cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler.Start(ctx)

	// Setup router
	router := api.SetupRouter(st, collector, scheduler, alerts, analysis, cfgManager)

	// Get port from environment
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	// Create HTTP server for graceful shutdown
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop the periodic jobs and let in-flight collections drain
	cancel()
	scheduler.Stop()

	// Give outstanding requests a deadline to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
