package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the device service
type Metrics struct {
	// Capture pipeline metrics
	CaptureChunks       prometheus.Counter
	CaptureDrops        prometheus.Counter
	StreamChunksSent    prometheus.Counter
	StreamChunksDropped prometheus.Counter
	StreamSendFailures  prometheus.Counter
	RingOccupancy       prometheus.Gauge

	// Playback pipeline metrics
	PlaybackBytesReceived prometheus.Counter
	PlaybackBytesPlayed   prometheus.Counter
	PlaybackSessions      prometheus.Counter
	PlaybackParseErrors   prometheus.Counter
	PlaybackIngestDrops   prometheus.Counter

	// Mode state machine metrics
	ModeTransitions    *prometheus.CounterVec
	TransitionFailures prometheus.Counter
	TransitionDuration prometheus.Histogram
	RecoveryAttempts   prometheus.Counter

	// Photo capture and upload metrics
	FrameCaptures   prometheus.Counter
	UploadRequests  prometheus.Counter
	UploadSuccesses prometheus.Counter
	UploadFailures  prometheus.Counter
	UploadRetries   prometheus.Counter
	UploadDuration  prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Capture pipeline metrics
		CaptureChunks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_capture_chunks_total",
			Help: "Total number of microphone chunks captured",
		}),
		CaptureDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_capture_drops_total",
			Help: "Total number of captured chunks dropped because the ring buffer was full",
		}),
		StreamChunksSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_stream_chunks_sent_total",
			Help: "Total number of audio chunks sent to the backend",
		}),
		StreamChunksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_stream_chunks_dropped_total",
			Help: "Total number of audio chunks dropped while the backend pipeline was busy",
		}),
		StreamSendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_stream_send_failures_total",
			Help: "Total number of failed audio chunk transmissions",
		}),
		RingOccupancy: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hotpin_capture_ring_occupancy_bytes",
			Help: "Current number of bytes buffered in the capture ring",
		}),

		// Playback pipeline metrics
		PlaybackBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_playback_bytes_received_total",
			Help: "Total number of audio bytes received from the backend",
		}),
		PlaybackBytesPlayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_playback_bytes_played_total",
			Help: "Total number of audio bytes written to the speaker",
		}),
		PlaybackSessions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_playback_sessions_total",
			Help: "Total number of playback sessions started",
		}),
		PlaybackParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_playback_parse_errors_total",
			Help: "Total number of unrecoverable WAV header parse failures",
		}),
		PlaybackIngestDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_playback_ingest_drops_total",
			Help: "Total number of inbound audio chunks dropped because the stream buffer stayed full",
		}),

		// Mode state machine metrics
		ModeTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hotpin_mode_transitions_total",
			Help: "Total number of completed mode transitions",
		}, []string{"from", "to"}),
		TransitionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_mode_transition_failures_total",
			Help: "Total number of failed mode transitions",
		}),
		TransitionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hotpin_mode_transition_duration_seconds",
			Help:    "Duration of mode transitions",
			Buckets: prometheus.DefBuckets,
		}),
		RecoveryAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_error_recovery_attempts_total",
			Help: "Total number of automatic error recovery attempts",
		}),

		// Photo capture and upload metrics
		FrameCaptures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_frame_captures_total",
			Help: "Total number of camera frames captured",
		}),
		UploadRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_upload_requests_total",
			Help: "Total number of frame upload attempts",
		}),
		UploadSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_upload_successes_total",
			Help: "Total number of successful frame uploads",
		}),
		UploadFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_upload_failures_total",
			Help: "Total number of failed frame uploads",
		}),
		UploadRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hotpin_upload_retries_total",
			Help: "Total number of frame upload retries",
		}),
		UploadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hotpin_upload_duration_seconds",
			Help:    "Duration of frame uploads",
			Buckets: prometheus.DefBuckets,
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hotpin_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hotpin_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hotpin_http_errors_total",
			Help: "Total number of HTTP API errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordCaptureChunk increments the captured chunks counter
func (m *Metrics) RecordCaptureChunk() {
	m.CaptureChunks.Inc()
}

// RecordCaptureDrop increments the capture drop counter
func (m *Metrics) RecordCaptureDrop() {
	m.CaptureDrops.Inc()
}

// RecordStreamChunkSent increments the sent chunks counter
func (m *Metrics) RecordStreamChunkSent() {
	m.StreamChunksSent.Inc()
}

// RecordStreamChunkDropped increments the busy-drop counter
func (m *Metrics) RecordStreamChunkDropped() {
	m.StreamChunksDropped.Inc()
}

// RecordStreamSendFailure increments the send failure counter
func (m *Metrics) RecordStreamSendFailure() {
	m.StreamSendFailures.Inc()
}

// SetRingOccupancy sets the current capture ring occupancy
func (m *Metrics) SetRingOccupancy(bytes int) {
	m.RingOccupancy.Set(float64(bytes))
}

// RecordPlaybackReceived records inbound audio bytes
func (m *Metrics) RecordPlaybackReceived(bytes int) {
	m.PlaybackBytesReceived.Add(float64(bytes))
}

// RecordPlaybackPlayed records bytes written to the speaker
func (m *Metrics) RecordPlaybackPlayed(bytes int) {
	m.PlaybackBytesPlayed.Add(float64(bytes))
}

// RecordPlaybackSession increments the playback session counter
func (m *Metrics) RecordPlaybackSession() {
	m.PlaybackSessions.Inc()
}

// RecordPlaybackParseError increments the header parse failure counter
func (m *Metrics) RecordPlaybackParseError() {
	m.PlaybackParseErrors.Inc()
}

// RecordPlaybackIngestDrop increments the ingest drop counter
func (m *Metrics) RecordPlaybackIngestDrop() {
	m.PlaybackIngestDrops.Inc()
}

// RecordModeTransition records a completed mode transition
func (m *Metrics) RecordModeTransition(from, to string, durationSeconds float64) {
	m.ModeTransitions.WithLabelValues(from, to).Inc()
	m.TransitionDuration.Observe(durationSeconds)
}

// RecordTransitionFailure increments the transition failure counter
func (m *Metrics) RecordTransitionFailure() {
	m.TransitionFailures.Inc()
}

// RecordRecoveryAttempt increments the recovery attempt counter
func (m *Metrics) RecordRecoveryAttempt() {
	m.RecoveryAttempts.Inc()
}

// RecordFrameCapture increments the frame capture counter
func (m *Metrics) RecordFrameCapture() {
	m.FrameCaptures.Inc()
}

// RecordUploadRequest increments the upload request counter
func (m *Metrics) RecordUploadRequest() {
	m.UploadRequests.Inc()
}

// RecordUploadSuccess records a successful upload
func (m *Metrics) RecordUploadSuccess(durationSeconds float64) {
	m.UploadSuccesses.Inc()
	m.UploadDuration.Observe(durationSeconds)
}

// RecordUploadFailure records a failed upload
func (m *Metrics) RecordUploadFailure(durationSeconds float64) {
	m.UploadFailures.Inc()
	m.UploadDuration.Observe(durationSeconds)
}

// RecordUploadRetry increments the upload retry counter
func (m *Metrics) RecordUploadRetry() {
	m.UploadRetries.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
