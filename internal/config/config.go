package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete device configuration
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Audio     AudioConfig     `yaml:"audio"`
	Capture   CaptureConfig   `yaml:"capture"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Transport TransportConfig `yaml:"transport"`
	Upload    UploadConfig    `yaml:"upload"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig contains device identity and state machine settings
type DeviceConfig struct {
	ID                   string `yaml:"id"`
	LockTimeout          int    `yaml:"lock_timeout"`           // seconds
	RecoveryBudget       int    `yaml:"recovery_budget"`        // attempts
	RecoveryInterval     int    `yaml:"recovery_interval"`      // seconds
	PlaybackDrainTimeout int    `yaml:"playback_drain_timeout"` // seconds
}

// AudioConfig contains the capture-side codec parameters
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BitDepth   int `yaml:"bit_depth"`
}

// CaptureConfig contains microphone pipeline parameters
type CaptureConfig struct {
	RingCapacity      int `yaml:"ring_capacity"`       // bytes
	ChunkSize         int `yaml:"chunk_size"`          // bytes
	ReadTimeout       int `yaml:"read_timeout"`        // milliseconds
	StreamChunkSize   int `yaml:"stream_chunk_size"`   // bytes
	SendFailureBudget int `yaml:"send_failure_budget"` // consecutive failures
	StopTimeout       int `yaml:"stop_timeout"`        // seconds
}

// PlaybackConfig contains speaker pipeline parameters
type PlaybackConfig struct {
	BufferCapacity int `yaml:"buffer_capacity"` // bytes
	HeaderWindow   int `yaml:"header_window"`   // bytes
	ChunkSize      int `yaml:"chunk_size"`      // bytes
	IngestTimeout  int `yaml:"ingest_timeout"`  // seconds
}

// TransportConfig contains backend connection configuration
type TransportConfig struct {
	URL              string `yaml:"url"`
	AuthToken        string `yaml:"auth_token"`
	HandshakeTimeout int    `yaml:"handshake_timeout"` // seconds
	WriteTimeout     int    `yaml:"write_timeout"`     // seconds
}

// UploadConfig contains frame upload API configuration
type UploadConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults fills unset fields with the device defaults.
func (c *Config) applyDefaults() {
	if c.Device.LockTimeout == 0 {
		c.Device.LockTimeout = 5
	}
	if c.Device.RecoveryBudget == 0 {
		c.Device.RecoveryBudget = 3
	}
	if c.Device.RecoveryInterval == 0 {
		c.Device.RecoveryInterval = 1
	}
	if c.Device.PlaybackDrainTimeout == 0 {
		c.Device.PlaybackDrainTimeout = 3
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.BitDepth == 0 {
		c.Audio.BitDepth = 16
	}
	if c.Capture.RingCapacity == 0 {
		c.Capture.RingCapacity = 64 * 1024
	}
	if c.Capture.ChunkSize == 0 {
		c.Capture.ChunkSize = 1024
	}
	if c.Capture.ReadTimeout == 0 {
		c.Capture.ReadTimeout = 100
	}
	if c.Capture.StreamChunkSize == 0 {
		c.Capture.StreamChunkSize = 4096
	}
	if c.Capture.SendFailureBudget == 0 {
		c.Capture.SendFailureBudget = 5
	}
	if c.Capture.StopTimeout == 0 {
		c.Capture.StopTimeout = 5
	}
	if c.Playback.BufferCapacity == 0 {
		c.Playback.BufferCapacity = 256 * 1024
	}
	if c.Playback.HeaderWindow == 0 {
		c.Playback.HeaderWindow = 8192
	}
	if c.Playback.ChunkSize == 0 {
		c.Playback.ChunkSize = 4096
	}
	if c.Playback.IngestTimeout == 0 {
		c.Playback.IngestTimeout = 5
	}
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = 10
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = 5
	}
	if c.Upload.Timeout == 0 {
		c.Upload.Timeout = 30
	}
	if c.Upload.MaxConcurrent == 0 {
		c.Upload.MaxConcurrent = 2
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Device.Validate(); err != nil {
		return fmt.Errorf("device config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport config: %w", err)
	}

	if err := c.Upload.Validate(); err != nil {
		return fmt.Errorf("upload config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates device configuration
func (d *DeviceConfig) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}

	if d.LockTimeout < 1 {
		return fmt.Errorf("lock_timeout must be at least 1 second, got %d", d.LockTimeout)
	}

	if d.RecoveryBudget < 1 {
		return fmt.Errorf("recovery_budget must be at least 1, got %d", d.RecoveryBudget)
	}

	if d.RecoveryInterval < 1 {
		return fmt.Errorf("recovery_interval must be at least 1 second, got %d", d.RecoveryInterval)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz for voice capture, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono) for voice capture, got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	return nil
}

// Validate validates capture pipeline configuration
func (c *CaptureConfig) Validate() error {
	if c.RingCapacity < 4096 {
		return fmt.Errorf("ring_capacity must be at least 4096 bytes, got %d", c.RingCapacity)
	}

	if c.ChunkSize < 1 || c.ChunkSize > c.RingCapacity {
		return fmt.Errorf("chunk_size must be between 1 and ring_capacity, got %d", c.ChunkSize)
	}

	if c.StreamChunkSize < 1 || c.StreamChunkSize > c.RingCapacity {
		return fmt.Errorf("stream_chunk_size must be between 1 and ring_capacity, got %d", c.StreamChunkSize)
	}

	if c.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 ms, got %d", c.ReadTimeout)
	}

	if c.SendFailureBudget < 1 {
		return fmt.Errorf("send_failure_budget must be at least 1, got %d", c.SendFailureBudget)
	}

	if c.StopTimeout < 1 {
		return fmt.Errorf("stop_timeout must be at least 1 second, got %d", c.StopTimeout)
	}

	return nil
}

// Validate validates playback pipeline configuration
func (p *PlaybackConfig) Validate() error {
	if p.BufferCapacity < 16384 {
		return fmt.Errorf("buffer_capacity must be at least 16384 bytes, got %d", p.BufferCapacity)
	}

	if p.HeaderWindow < 44 {
		return fmt.Errorf("header_window must be at least 44 bytes, got %d", p.HeaderWindow)
	}

	if p.ChunkSize < 1 || p.ChunkSize > p.BufferCapacity {
		return fmt.Errorf("chunk_size must be between 1 and buffer_capacity, got %d", p.ChunkSize)
	}

	if p.ChunkSize > p.HeaderWindow {
		return fmt.Errorf("chunk_size (%d) cannot exceed header_window (%d)", p.ChunkSize, p.HeaderWindow)
	}

	if p.IngestTimeout < 1 {
		return fmt.Errorf("ingest_timeout must be at least 1 second, got %d", p.IngestTimeout)
	}

	return nil
}

// Validate validates transport configuration
func (t *TransportConfig) Validate() error {
	if t.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	if t.HandshakeTimeout < 1 {
		return fmt.Errorf("handshake_timeout must be at least 1 second, got %d", t.HandshakeTimeout)
	}

	if t.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", t.WriteTimeout)
	}

	return nil
}

// Validate validates upload configuration
func (u *UploadConfig) Validate() error {
	if !u.Enabled {
		return nil
	}

	if u.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty when uploads are enabled")
	}

	if u.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", u.Timeout)
	}

	if u.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", u.MaxRetries)
	}

	if u.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", u.MaxConcurrent)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	validOutputs := map[string]bool{"stdout": true, "stderr": true}
	if !validOutputs[l.Output] {
		return fmt.Errorf("output must be 'stdout' or 'stderr', got '%s'", l.Output)
	}

	return nil
}
