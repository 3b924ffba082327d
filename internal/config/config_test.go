package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		Device: DeviceConfig{
			ID:                   "hotpin-test",
			LockTimeout:          5,
			RecoveryBudget:       3,
			RecoveryInterval:     1,
			PlaybackDrainTimeout: 3,
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			BitDepth:   16,
		},
		Capture: CaptureConfig{
			RingCapacity:      64 * 1024,
			ChunkSize:         1024,
			ReadTimeout:       100,
			StreamChunkSize:   4096,
			SendFailureBudget: 5,
			StopTimeout:       5,
		},
		Playback: PlaybackConfig{
			BufferCapacity: 256 * 1024,
			HeaderWindow:   8192,
			ChunkSize:      4096,
			IngestTimeout:  5,
		},
		Transport: TransportConfig{
			URL:              "ws://backend.local:8080/ws",
			HandshakeTimeout: 10,
			WriteTimeout:     5,
		},
		Upload: UploadConfig{
			Enabled:       true,
			Endpoint:      "https://backend.local/frames",
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 2,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Port:    8090,
			Address: "0.0.0.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:        "empty device id",
			mutate:      func(c *Config) { c.Device.ID = "" },
			expectError: true,
			errorMsg:    "id cannot be empty",
		},
		{
			name:        "wrong capture sample rate",
			mutate:      func(c *Config) { c.Audio.SampleRate = 44100 },
			expectError: true,
			errorMsg:    "sample_rate must be 16000",
		},
		{
			name:        "chunk larger than ring",
			mutate:      func(c *Config) { c.Capture.ChunkSize = 128 * 1024 },
			expectError: true,
			errorMsg:    "chunk_size",
		},
		{
			name:        "header window too small",
			mutate:      func(c *Config) { c.Playback.HeaderWindow = 16 },
			expectError: true,
			errorMsg:    "header_window",
		},
		{
			name:        "playback chunk larger than header window",
			mutate:      func(c *Config) { c.Playback.ChunkSize = 16384 },
			expectError: true,
			errorMsg:    "cannot exceed header_window",
		},
		{
			name:        "zero capture stop timeout",
			mutate:      func(c *Config) { c.Capture.StopTimeout = 0 },
			expectError: true,
			errorMsg:    "stop_timeout",
		},
		{
			name:        "missing transport url",
			mutate:      func(c *Config) { c.Transport.URL = "" },
			expectError: true,
			errorMsg:    "url cannot be empty",
		},
		{
			name:        "upload enabled without endpoint",
			mutate:      func(c *Config) { c.Upload.Endpoint = "" },
			expectError: true,
			errorMsg:    "endpoint cannot be empty",
		},
		{
			name: "upload disabled ignores endpoint",
			mutate: func(c *Config) {
				c.Upload.Enabled = false
				c.Upload.Endpoint = ""
			},
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "http port",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatal("Validate() succeeded, want error")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Validate() error = %v, want containing %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	content := `
device:
  id: hotpin-test
transport:
  url: ws://backend.local:8080/ws
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Capture.RingCapacity != 64*1024 {
		t.Errorf("RingCapacity = %d, want %d", cfg.Capture.RingCapacity, 64*1024)
	}
	if cfg.Playback.BufferCapacity != 256*1024 {
		t.Errorf("BufferCapacity = %d, want %d", cfg.Playback.BufferCapacity, 256*1024)
	}
	if cfg.Device.RecoveryBudget != 3 {
		t.Errorf("RecoveryBudget = %d, want 3", cfg.Device.RecoveryBudget)
	}
	if cfg.Capture.StopTimeout != 5 {
		t.Errorf("Capture.StopTimeout = %d, want 5", cfg.Capture.StopTimeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("device: [not a mapping"), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load() succeeded on malformed YAML, want error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() succeeded on missing file, want error")
	}
}
