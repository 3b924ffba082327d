// Package server exposes the device's local HTTP API: health, status,
// sanitized configuration, and Prometheus metrics. The API is read-only
// except for the button endpoint, which injects gestures for bench testing.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/config"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/metrics"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/state"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/upload"
)

// HTTPServer provides HTTP API endpoints for monitoring and management
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	manager  *state.Manager
	uploader *upload.Client
	metrics  *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server. The uploader may be nil when
// frame uploads are disabled.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, manager *state.Manager, uploader *upload.Client, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		manager:   manager,
		uploader:  uploader,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/status", h.withMetrics("/status", h.handleStatus))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/button", h.withMetrics("/button", h.handleButton))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)
		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := h.manager.GetStatus()

	healthy := status.State != state.StateError.String() && status.State != state.StateShutdown.String()
	statusText := "healthy"
	if !healthy {
		statusText = "degraded"
	}

	health := map[string]interface{}{
		"status":    statusText,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "hotpin-device",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"state_machine": map[string]interface{}{
				"state":             status.State,
				"recovery_attempts": status.RecoveryAttempts,
			},
			"transport": map[string]interface{}{
				"connected":      status.Connected,
				"pipeline_stage": status.PipelineStage,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStatus implements the /status endpoint with full pipeline counters
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"device":    h.manager.GetStatus(),
		"recording": h.manager.IsRecording(),
	}
	if h.uploader != nil {
		response["upload"] = h.uploader.GetStats()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"device": map[string]interface{}{
			"id":                h.config.Device.ID,
			"lock_timeout":      h.config.Device.LockTimeout,
			"recovery_budget":   h.config.Device.RecoveryBudget,
			"recovery_interval": h.config.Device.RecoveryInterval,
		},
		"audio": map[string]interface{}{
			"sample_rate": h.config.Audio.SampleRate,
			"channels":    h.config.Audio.Channels,
			"bit_depth":   h.config.Audio.BitDepth,
		},
		"capture": map[string]interface{}{
			"ring_capacity":       h.config.Capture.RingCapacity,
			"chunk_size":          h.config.Capture.ChunkSize,
			"stream_chunk_size":   h.config.Capture.StreamChunkSize,
			"send_failure_budget": h.config.Capture.SendFailureBudget,
			"stop_timeout":        h.config.Capture.StopTimeout,
		},
		"playback": map[string]interface{}{
			"buffer_capacity": h.config.Playback.BufferCapacity,
			"header_window":   h.config.Playback.HeaderWindow,
			"chunk_size":      h.config.Playback.ChunkSize,
		},
		"transport": map[string]interface{}{
			"url": h.config.Transport.URL,
			// Note: auth token is intentionally omitted for security
		},
		"upload": map[string]interface{}{
			"enabled":        h.config.Upload.Enabled,
			"endpoint":       h.config.Upload.Endpoint,
			"max_retries":    h.config.Upload.MaxRetries,
			"max_concurrent": h.config.Upload.MaxConcurrent,
			// Note: API key is intentionally omitted for security
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleButton implements the /button endpoint: it injects button gestures
// so the device can be exercised without hardware.
func (h *HTTPServer) handleButton(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Gesture string `json:"gesture"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	var ev state.Event
	switch body.Gesture {
	case "single_click":
		ev = state.EventSingleClick
	case "double_click":
		ev = state.EventDoubleClick
	case "long_press":
		ev = state.EventLongPress
	case "long_press_release":
		ev = state.EventLongPressRelease
	default:
		http.Error(w, fmt.Sprintf("Unknown gesture %q", body.Gesture), http.StatusBadRequest)
		return
	}

	h.manager.PostEvent(ev)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"accepted": body.Gesture,
		"state":    h.manager.GetState().String(),
	})
}

// handleRoot provides API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	docs := map[string]interface{}{
		"service": "hotpin-device",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"GET /health":  "Device health summary",
			"GET /status":  "Full state machine and pipeline counters",
			"GET /config":  "Sanitized active configuration",
			"POST /button": "Inject a button gesture (single_click, double_click, long_press)",
			"GET /metrics": "Prometheus metrics",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(docs)
}
