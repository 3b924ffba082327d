package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/driver"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/fault"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/metrics"
)

// Config contains frame upload client configuration
type Config struct {
	Endpoint      string
	APIKey        string
	DeviceID      string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
}

// Response is the backend's acknowledgement of a stored frame.
type Response struct {
	FrameID    string    `json:"frame_id"`
	StoredAt   time.Time `json:"stored_at"`
	StorageURL string    `json:"storage_url,omitempty"`
}

// Stats represents client statistics
type Stats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// Client uploads captured frames to the ingest API
type Client struct {
	config     Config
	httpClient *http.Client
	met        *metrics.Metrics
	semaphore  chan struct{} // Rate limiting semaphore

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// NewClient creates a new frame upload client. The metrics handle may be nil.
func NewClient(config Config, met *metrics.Metrics) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint cannot be empty", fault.ErrInvalidArgument)
	}
	if config.DeviceID == "" {
		return nil, fmt.Errorf("%w: device ID cannot be empty", fault.ErrInvalidArgument)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 2
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		met:        met,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Upload sends one captured frame to the ingest API, retrying transient
// failures with exponential backoff.
func (c *Client) Upload(ctx context.Context, frame *driver.Frame) (*Response, error) {
	if frame == nil || len(frame.Data) == 0 {
		return nil, fmt.Errorf("%w: frame is empty", fault.ErrInvalidArgument)
	}

	// Acquire semaphore for rate limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()
	if c.met != nil {
		c.met.RecordUploadRequest()
	}

	requestID := uuid.New().String()
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()
			if c.met != nil {
				c.met.RecordUploadRetry()
			}

			// Exponential backoff, capped
			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoffTime > 10*time.Second {
				backoffTime = 10 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		response, err := c.doRequest(ctx, requestID, frame)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			if c.met != nil {
				c.met.RecordUploadSuccess(time.Since(startTime).Seconds())
			}
			return response, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()
	if c.met != nil {
		c.met.RecordUploadFailure(time.Since(startTime).Seconds())
	}
	return nil, fmt.Errorf("frame upload failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// doRequest performs a single multipart POST to the ingest API
func (c *Client) doRequest(ctx context.Context, requestID string, frame *driver.Frame) (*Response, error) {
	body, contentType, err := c.createMultipartRequest(requestID, frame)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "hotpin-device/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var uploadResp Response
	if err := json.Unmarshal(respBody, &uploadResp); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	if uploadResp.StoredAt.IsZero() {
		uploadResp.StoredAt = time.Now()
	}

	return &uploadResp, nil
}

// createMultipartRequest creates a multipart/form-data request body
func (c *Client) createMultipartRequest(requestID string, frame *driver.Frame) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filename := fmt.Sprintf("%s.%s", requestID, frame.Format)
	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(frame.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write frame data: %w", err)
	}

	fields := map[string]string{
		"request_id": requestID,
		"device_id":  c.config.DeviceID,
		"format":     frame.Format,
		"width":      fmt.Sprintf("%d", frame.Width),
		"height":     fmt.Sprintf("%d", frame.Height),
		"captured":   frame.Timestamp.Format(time.RFC3339),
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// isRetryableError reports whether the attempt is worth repeating. Client
// errors other than rate limiting are final.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := err.Error()
	for _, code := range []string{"HTTP error 400", "HTTP error 401", "HTTP error 403", "HTTP error 404", "HTTP error 413", "HTTP error 422"} {
		if strings.Contains(msg, code) {
			return false
		}
	}
	return true
}

// GetStats returns a snapshot of client statistics
func (c *Client) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var successRate float64
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests)
	}

	return Stats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.avgResponseTime == 0 {
		c.avgResponseTime = d
		return
	}
	// Exponential moving average
	c.avgResponseTime = time.Duration(float64(c.avgResponseTime)*0.8 + float64(d)*0.2)
}
