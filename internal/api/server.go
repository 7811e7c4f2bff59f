// Package api exposes the HTTP surface: ingest, read views, destructive
// operations, health, and Prometheus metrics.
package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/plantlog/plantlog/internal/config"
	"github.com/plantlog/plantlog/internal/logging"
	"github.com/plantlog/plantlog/internal/metrics"
	"github.com/plantlog/plantlog/internal/readings"
	"github.com/plantlog/plantlog/internal/storage"
)

// Server represents the API server
type Server struct {
	app           *fiber.App
	config        *config.Config
	logger        *logging.Logger
	service       *readings.Service
	store         storage.ReadingStore
	prometheusReg prometheus.Registerer
}

// NewServer creates a new API server bound to one reading store
func NewServer(cfg *config.Config, logger *logging.Logger, prometheusReg prometheus.Registerer, store storage.ReadingStore) *Server {
	// Create metrics instance
	metricsInstance := metrics.NewMetrics(prometheusReg)

	// Compose the readings service
	validator := readings.NewValidator(cfg.Readings.DefaultDeviceID)
	service := readings.NewService(
		store,
		validator,
		metricsInstance,
		logger.WithComponent(logging.ComponentReadings),
		cfg.Readings.StaleAfter.ToDuration(),
	)

	// Create Fiber app with configuration
	app := fiber.New(fiber.Config{
		AppName:               "Plant Log v1.0",
		DisableStartupMessage: false,
		ServerHeader:          "PlantLog",
		ErrorHandler:          errorHandler(logger),
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	s := &Server{
		app:           app,
		config:        cfg,
		logger:        logger,
		service:       service,
		store:         store,
		prometheusReg: prometheusReg,
	}

	// Setup middleware
	s.setupMiddleware()

	// Setup routes
	s.setupRoutes()

	return s
}

// setupMiddleware configures Fiber middleware
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request logger middleware
	s.app.Use(logger.New(logger.Config{
		Format: "${time} | ${status} | ${latency} | ${method} ${path}\n",
	}))

	// CORS middleware
	corsOrigins := "*"
	if len(s.config.Server.CORSOrigins) > 0 {
		corsOrigins = strings.Join(s.config.Server.CORSOrigins, ",")
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Global timeout middleware
	s.app.Use(timeout.NewWithContext(func(c *fiber.Ctx) error {
		return c.Next()
	}, 30*time.Second))
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Service endpoints
	s.app.Get("/", s.homeHandler)
	s.app.Get("/health", s.healthHandler)
	if s.config.Metrics.Enabled {
		path := s.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.app.Get(path, s.metricsHandler)
	}

	// Ingest and read views
	s.app.Post("/readings", s.saveReadingHandler)
	s.app.Get("/readings/latest", s.latestReadingHandler)
	s.app.Get("/readings/history", s.readingHistoryHandler)
	s.app.Get("/readings/summary", s.summaryHandler)
	s.app.Get("/status", s.statusHandler)

	// Destructive operations
	s.app.Post("/delete-latest", s.deleteLatestHandler)
	s.app.Post("/plant/reset", s.resetHandler)
}

// Start starts the server
func (s *Server) Start() error {
	address := s.config.Server.Host + ":" + s.config.Server.Port

	s.logger.WithComponent(logging.ComponentAPI).
		WithEvent(logging.EventServerStart).
		WithFields(map[string]interface{}{
			"address": address,
		}).
		Info("Starting HTTP server")

	return s.app.Listen(address)
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.logger.WithComponent(logging.ComponentAPI).
		WithEvent(logging.EventServerStop).
		Info("Stopping HTTP server")
	return s.app.Shutdown()
}

// errorHandler handles Fiber errors
func errorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		// Check if it's a Fiber error
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		// Log the error
		logger.WithComponent(logging.ComponentAPI).
			WithFields(map[string]interface{}{
				"method": c.Method(),
				"path":   c.Path(),
				"status": code,
			}).
			WithError(err).
			Error("HTTP request error")

		// Return error response
		return c.Status(code).JSON(fiber.Map{
			"status":  "error",
			"message": err.Error(),
		})
	}
}
