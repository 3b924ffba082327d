package upload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/driver"
)

func testFrame() *driver.Frame {
	return &driver.Frame{
		Data:      []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9},
		Width:     640,
		Height:    480,
		Format:    "jpeg",
		Timestamp: time.Now(),
	}
}

func testClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		Endpoint:   endpoint,
		DeviceID:   "device-test",
		APIKey:     "test-key",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestUploadSuccess(t *testing.T) {
	var gotAuth, gotDevice, gotFormat string
	var gotFileBytes int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
		}
		gotDevice = r.FormValue("device_id")
		gotFormat = r.FormValue("format")

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
		} else {
			buf := make([]byte, 64)
			n, _ := file.Read(buf)
			gotFileBytes = n
			file.Close()
		}

		json.NewEncoder(w).Encode(Response{FrameID: "frame-1", StoredAt: time.Now()})
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	resp, err := client.Upload(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if resp.FrameID != "frame-1" {
		t.Errorf("FrameID = %q, want %q", resp.FrameID, "frame-1")
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotDevice != "device-test" {
		t.Errorf("device_id = %q, want %q", gotDevice, "device-test")
	}
	if gotFormat != "jpeg" {
		t.Errorf("format = %q, want %q", gotFormat, "jpeg")
	}
	if gotFileBytes != 5 {
		t.Errorf("uploaded file bytes = %d, want 5", gotFileBytes)
	}

	stats := client.GetStats()
	if stats.SuccessRequests != 1 || stats.TotalRequests != 1 {
		t.Errorf("stats = %+v, want one successful request", stats)
	}
}

func TestUploadRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Response{FrameID: "frame-2"})
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	resp, err := client.Upload(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if resp.FrameID != "frame-2" {
		t.Errorf("FrameID = %q, want %q", resp.FrameID, "frame-2")
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
	if stats := client.GetStats(); stats.TotalRetries != 1 {
		t.Errorf("TotalRetries = %d, want 1", stats.TotalRetries)
	}
}

func TestUploadDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "bad frame", http.StatusBadRequest)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	if _, err := client.Upload(context.Background(), testFrame()); err == nil {
		t.Fatal("Upload() succeeded, want error")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (client errors are final)", got)
	}
	if stats := client.GetStats(); stats.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", stats.FailedRequests)
	}
}

func TestUploadRejectsEmptyFrame(t *testing.T) {
	client := testClient(t, "http://127.0.0.1:1/upload")
	if _, err := client.Upload(context.Background(), &driver.Frame{}); err == nil {
		t.Fatal("Upload() with empty frame succeeded, want error")
	}
}
