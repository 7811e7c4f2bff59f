// Plant Log server ingests moisture and temperature readings from plant
// sensors and serves the latest, history, status, and summary views over HTTP
// with SQLite or PostgreSQL persistence.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/plantlog/plantlog/internal/api"
	"github.com/plantlog/plantlog/internal/config"
	"github.com/plantlog/plantlog/internal/logging"
	"github.com/plantlog/plantlog/internal/storage"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize logger
	logger, err := logging.InitLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		Fields: cfg.Logging.Fields,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Create Prometheus registry
	registry := prometheus.NewRegistry()

	// Initialize the reading store
	store, err := storage.NewStore(&cfg.Storage, logger.WithComponent(logging.ComponentStorage))
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}

	// Create the API server
	server := api.NewServer(cfg, logger, registry, store)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	logger.Info("Plant Log started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Plant Log...")

	// Gracefully shutdown the server
	if err := server.Stop(); err != nil {
		logger.WithError(err).Error("Failed to shutdown server gracefully")
	}

	// Close the store last so in-flight requests finish first
	if err := store.Close(); err != nil {
		logger.WithError(err).Error("Failed to close storage cleanly")
	}

	logger.Info("Plant Log stopped")
}
