package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plantlog/plantlog/internal/logging"
	"github.com/plantlog/plantlog/internal/readings"
	"github.com/plantlog/plantlog/internal/storage"
)

// homeHandler describes the service and its endpoints
func (s *Server) homeHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"message": "Plant Monitor API is running",
		"endpoints": []string{
			"POST /readings",
			"GET /readings/latest",
			"GET /readings/history?hours=168&limit=500",
			"GET /readings/summary",
			"GET /status",
			"GET /health",
		},
	})
}

// healthHandler handles health check requests
func (s *Server) healthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

// metricsHandler handles Prometheus metrics endpoint
func (s *Server) metricsHandler(c *fiber.Ctx) error {
	// Set content type for Prometheus metrics
	c.Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Create a buffer to capture the metrics
	var buf bytes.Buffer

	// Create a fake HTTP request and response writer
	req, _ := http.NewRequest("GET", "/metrics", nil)
	rw := &responseWriter{Buffer: &buf, header: make(http.Header)}

	// Get the Prometheus handler for our custom registry and call it
	gatherer, ok := s.prometheusReg.(prometheus.Gatherer)
	if !ok {
		return c.Status(500).SendString("Error: registry does not implement Gatherer interface")
	}
	handler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	handler.ServeHTTP(rw, req)

	// Return the captured metrics
	return c.SendString(buf.String())
}

// responseWriter is a simple implementation of http.ResponseWriter for capturing metrics
type responseWriter struct {
	*bytes.Buffer
	header http.Header
}

func (rw *responseWriter) Header() http.Header {
	return rw.header
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	// Status codes are not needed for the metrics bridge
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	return rw.Buffer.Write(data)
}

// saveReadingHandler validates and stores one sensor sample
func (s *Server) saveReadingHandler(c *fiber.Ctx) error {
	reading, err := s.service.Ingest(c.UserContext(), c.Body())
	if err != nil {
		return s.renderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status":  "success",
		"message": "Reading saved successfully!",
		"reading": reading,
	})
}

// latestReadingHandler returns the most recent reading
func (s *Server) latestReadingHandler(c *fiber.Ctx) error {
	reading, err := s.service.Latest(c.UserContext())
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(reading)
}

// readingHistoryHandler returns readings inside a time window, oldest first
func (s *Server) readingHistoryHandler(c *fiber.Ctx) error {
	hours := c.QueryInt("hours", s.config.Readings.HistoryHours)
	limit := c.QueryInt("limit", s.config.Readings.HistoryLimit)

	page, err := s.service.History(c.UserContext(), hours, limit)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(page)
}

// summaryHandler returns full-history statistics
func (s *Server) summaryHandler(c *fiber.Ctx) error {
	summary, err := s.service.Summary(c.UserContext())
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(summary)
}

// statusHandler reports device freshness and the 24h moisture delta
func (s *Server) statusHandler(c *fiber.Ctx) error {
	report, err := s.service.Status(c.UserContext())
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(report)
}

// deleteLatestHandler removes the most recent reading
func (s *Server) deleteLatestHandler(c *fiber.Ctx) error {
	deleted, err := s.service.DeleteLatest(c.UserContext())
	if errors.Is(err, storage.ErrNoReadings) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":  "error",
			"message": "No readings to delete",
		})
	}
	if err != nil {
		return s.renderError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "Deleted latest reading",
		"deleted": deleted,
	})
}

// resetRequest carries the confirmation token for a bulk reset
type resetRequest struct {
	Confirm string `json:"confirm"`
}

// resetHandler deletes every reading when the confirmation token matches
func (s *Server) resetHandler(c *fiber.Ctx) error {
	var req resetRequest
	// A malformed body fails confirmation the same way a wrong token does
	_ = c.BodyParser(&req)

	result, err := s.service.Reset(c.UserContext(), req.Confirm)
	if err != nil {
		return s.renderError(c, err)
	}

	if result.DeletedCount == 0 {
		return c.JSON(fiber.Map{
			"status":        "info",
			"message":       "No readings to delete",
			"deleted_count": 0,
		})
	}

	return c.JSON(fiber.Map{
		"status":        "success",
		"message":       fmt.Sprintf("Plant data reset. Deleted %d readings", result.DeletedCount),
		"deleted_count": result.DeletedCount,
		"reset_time":    result.ResetTime,
	})
}

// renderError maps service errors to HTTP responses: validation failures are
// the client's fault, an empty store is 404, everything else is 500
func (s *Server) renderError(c *fiber.Ctx, err error) error {
	if readings.IsValidation(err) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": err.Error(),
		})
	}

	if errors.Is(err, storage.ErrNoReadings) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "No readings yet",
		})
	}

	s.logger.WithComponent(logging.ComponentAPI).
		WithFields(map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
		}).
		WithError(err).
		Error("Request failed")

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"status":  "error",
		"message": "internal server error",
	})
}
