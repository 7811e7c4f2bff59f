package api

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/plantlog/plantlog/internal/config"
	"github.com/plantlog/plantlog/internal/logging"
	"github.com/plantlog/plantlog/internal/storage"
	"github.com/plantlog/plantlog/pkg/models"
)

func createTestServer(t *testing.T) *Server {
	t.Helper()

	// Create test logger
	logger, err := logging.InitLogger(logging.Config{
		Level:  "error",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}

	// Create test config
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port: "7878",
			Host: "0.0.0.0",
		},
		Metrics: config.MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Readings: config.ReadingsConfig{
			DefaultDeviceID: models.DefaultDeviceID,
			StaleAfter:      models.Duration(0),
			HistoryHours:    168,
			HistoryLimit:    500,
			MaxHistoryLimit: 5000,
		},
	}

	// In-memory store
	store, err := storage.NewSQLiteMemoryStore(logger)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	// Create Prometheus registry
	reg := prometheus.NewRegistry()

	server := NewServer(cfg, logger, reg, store)
	return server
}

func doRequest(t *testing.T, server *Server, method, path, body string) (int, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := server.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, string(data)
}

func TestHomeHandler(t *testing.T) {
	server := createTestServer(t)
	defer server.app.Shutdown()

	status, body := doRequest(t, server, "GET", "/", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d", status)
	}
	if !contains(body, "Plant Monitor API is running") || !contains(body, "POST /readings") {
		t.Fatalf("response missing expected fields: %s", body)
	}
}

func TestHealthHandler(t *testing.T) {
	server := createTestServer(t)
	defer server.app.Shutdown()

	status, body := doRequest(t, server, "GET", "/health", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d", status)
	}
	if !contains(body, `"ok":true`) {
		t.Fatalf("response missing expected fields: %s", body)
	}
}

func TestMetricsHandler(t *testing.T) {
	server := createTestServer(t)
	defer server.app.Shutdown()

	// Ingest one reading so the instruments carry values
	status, _ := doRequest(t, server, "POST", "/readings", `{"moisture": 450, "temperature": 22.5}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected status 201, got %d", status)
	}

	status, body := doRequest(t, server, "GET", "/metrics", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d", status)
	}
	if !contains(body, "plantlog_readings_ingested_total") {
		t.Fatalf("metrics output missing expected series: %s", body)
	}
}

func TestSaveReadingHandler(t *testing.T) {
	server := createTestServer(t)
	defer server.app.Shutdown()

	status, body := doRequest(t, server, "POST", "/readings", `{"moisture": 450, "temperature": 22.5}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", status, body)
	}
	if !contains(body, "Reading saved successfully!") || !contains(body, "esp32-1") {
		t.Fatalf("response missing expected fields: %s", body)
	}
}

func TestSaveReadingValidation(t *testing.T) {
	server := createTestServer(t)
	defer server.app.Shutdown()

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"empty body", "", "No data provided"},
		{"empty object", "{}", "No data provided"},
		{"missing moisture", `{"temperature": 22.5}`, "moisture data is missing"},
		{"missing temperature", `{"moisture": 450}`, "temperature data is missing"},
		{"bad types", `{"moisture": "wet", "temperature": 22.5}`, "invalid data types"},
		{"moisture out of range", `{"moisture": 2500, "temperature": 22.5}`, "moisture levels are invalid"},
		{"temperature out of range", `{"moisture": 450, "temperature": 150}`, "temperature levels are invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, server, "POST", "/readings", tt.body)
			if status != fiber.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", status, body)
			}
			if !containsFold(body, tt.message) {
				t.Fatalf("expected message %q in response: %s", tt.message, body)
			}
		})
	}
}

func TestLatestReadingHandler(t *testing.T) {
	server := createTestServer(t)
	defer server.app.Shutdown()

	status, body := doRequest(t, server, "GET", "/readings/latest", "")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected status 404 on empty store, got %d", status)
	}
	if !contains(body, "No readings yet") {
		t.Fatalf("response missing expected message: %s", body)
	}

	doRequest(t, server, "POST", "/readings", `{"moisture": 450, "temperature": 22.5}`)

	status, body = doRequest(t, server, "GET", "/readings/latest", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d", status)
	}
	if !contains(body, `"moisture":450`) {
		t.Fatalf("response missing expected reading: %s", body)
	}
}

func TestReadingHistoryHandler(t *testing.T) {
	server := createTestServer(t)
	defer server.app.Shutdown()

	doRequest(t, server, "POST", "/readings", `{"moisture": 400, "temperature": 20}`)
	doRequest(t, server, "POST", "/readings", `{"moisture": 500, "temperature": 21}`)

	status, body := doRequest(t, server, "GET", "/readings/history?hours=24&limit=100", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", status, body)
	}
	if !contains(body, `"hours":24`) || !contains(body, `"limit":100`) || !contains(body, `"count":2`) {
		t.Fatalf("response missing expected fields: %s", body)
	}
}

func TestReadingHistoryDefaults(t *testing.T) {
	server := createTestServer(t)
	defer server.app.Shutdown()

	status, body := doRequest(t, server, "GET", "/readings/history", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", status, body)
	}
	if !contains(body, `"hours":168`) || !contains(body, `"limit":500`) || !contains(body, `"count":0`) {
		t.Fatalf("response missing expected defaults: %s", body)
	}
	if !contains(body, `"readings":[]`) {
		t.Fatalf("expected empty readings array: %s", body)
	}
}

func TestReadingHistoryInvalidParams(t *testing.T) {
	server := createTestServer(t)
	defer server.app.Shutdown()

	tests := []struct {
		query   string
		message string
	}{
		{"?hours=0", "hours must be > 0"},
		{"?hours=-5", "hours must be > 0"},
		{"?limit=0", "limit must be between 1 and 5000"},
		{"?limit=9999", "limit must be between 1 and 5000"},
	}

	for _, tt := range tests {
		status, body := doRequest(t, server, "GET", "/readings/history"+tt.query, "")
		if status != fiber.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", tt.query, status)
		}
		if !contains(body, tt.message) {
			t.Fatalf("%s: expected message %q: %s", tt.query, tt.message, body)
		}
	}
}

func TestStatusHandler(t *testing.T) {
	server := createTestServer(t)
	defer server.app.Shutdown()

	status, _ := doRequest(t, server, "GET", "/status", "")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected status 404 on empty store, got %d", status)
	}

	doRequest(t, server, "POST", "/readings", `{"moisture": 450, "temperature": 22.5}`)

	status, body := doRequest(t, server, "GET", "/status", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", status, body)
	}
	if !contains(body, `"stale":false`) {
		t.Fatalf("expected fresh device status: %s", body)
	}
	// No reading 24 hours back, the delta is null rather than zero
	if !contains(body, `"moisture_24h":null`) {
		t.Fatalf("expected null moisture delta: %s", body)
	}
}

func TestSummaryHandler(t *testing.T) {
	server := createTestServer(t)
	defer server.app.Shutdown()

	status, body := doRequest(t, server, "GET", "/readings/summary", "")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected status 404 on empty store, got %d", status)
	}

	doRequest(t, server, "POST", "/readings", `{"moisture": 400, "temperature": 20}`)
	doRequest(t, server, "POST", "/readings", `{"moisture": 500, "temperature": 24}`)

	status, body = doRequest(t, server, "GET", "/readings/summary", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", status, body)
	}
	if !contains(body, `"total_readings":2`) || !contains(body, `"days_monitored":0`) {
		t.Fatalf("response missing expected fields: %s", body)
	}
	if !contains(body, `"average":450`) {
		t.Fatalf("expected moisture average in response: %s", body)
	}
}

func TestDeleteLatestHandler(t *testing.T) {
	server := createTestServer(t)
	defer server.app.Shutdown()

	status, body := doRequest(t, server, "POST", "/delete-latest", "")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected status 404 on empty store, got %d", status)
	}
	if !contains(body, "No readings to delete") {
		t.Fatalf("response missing expected message: %s", body)
	}

	doRequest(t, server, "POST", "/readings", `{"moisture": 450, "temperature": 22.5}`)

	status, body = doRequest(t, server, "POST", "/delete-latest", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", status, body)
	}
	if !contains(body, "Deleted latest reading") || !contains(body, `"moisture":450`) {
		t.Fatalf("response missing deleted snapshot: %s", body)
	}

	// The store is empty again
	status, _ = doRequest(t, server, "GET", "/readings/latest", "")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected status 404 after delete, got %d", status)
	}
}

func TestResetHandler(t *testing.T) {
	server := createTestServer(t)
	defer server.app.Shutdown()

	doRequest(t, server, "POST", "/readings", `{"moisture": 400, "temperature": 20}`)
	doRequest(t, server, "POST", "/readings", `{"moisture": 500, "temperature": 21}`)

	// Wrong or missing confirmation leaves the data intact
	status, body := doRequest(t, server, "POST", "/plant/reset", `{"confirm": "yes"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", status, body)
	}
	status, _ = doRequest(t, server, "POST", "/plant/reset", "")
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected status 400 without body, got %d", status)
	}

	status, body = doRequest(t, server, "POST", "/plant/reset", `{"confirm": "yes-delete-all"}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", status, body)
	}
	if !contains(body, `"deleted_count":2`) || !contains(body, "reset_time") {
		t.Fatalf("response missing expected fields: %s", body)
	}

	// Identity restarts: the next reading gets id 1
	status, body = doRequest(t, server, "POST", "/readings", `{"moisture": 450, "temperature": 22.5}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected status 201, got %d", status)
	}
	if !contains(body, `"id":1`) {
		t.Fatalf("expected id sequence to restart: %s", body)
	}
}

func TestResetHandlerEmptyStore(t *testing.T) {
	server := createTestServer(t)
	defer server.app.Shutdown()

	status, body := doRequest(t, server, "POST", "/plant/reset", `{"confirm": "yes-delete-all"}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", status, body)
	}
	if !contains(body, `"status":"info"`) || !contains(body, `"deleted_count":0`) {
		t.Fatalf("response missing expected fields: %s", body)
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
