package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/capture"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/config"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/driver"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/feedback"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/metrics"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/playback"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/server"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/state"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/transport"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/upload"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "hotpin-device"
	serviceVersion    = "1.0.0"
)

// deviceObserver fans inbound transport traffic out to its consumers: audio
// bytes to the playback pipeline, connection state to both the pipeline and
// the mode state machine.
type deviceObserver struct {
	playback *playback.Pipeline
	manager  *state.Manager
}

func (o *deviceObserver) OnAudioBytes(data []byte) {
	o.playback.OnAudioBytes(data)
}

func (o *deviceObserver) OnStatus(status transport.Status) {
	o.playback.OnStatus(status)
	o.manager.OnStatus(status)
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Device starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("device_id", cfg.Device.ID),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("backend_url", cfg.Transport.URL),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("ring_capacity", cfg.Capture.RingCapacity),
		slog.Int("playback_buffer", cfg.Playback.BufferCapacity),
		slog.Bool("uploads_enabled", cfg.Upload.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Hardware drivers (simulated on non-device builds)
	audioDrv := driver.NewSimAudio(uint32(cfg.Audio.SampleRate))
	cameraDrv := driver.NewSimCamera()

	// Backend connection
	sessionID := fmt.Sprintf("%s-%s", cfg.Device.ID, uuid.New().String()[:8])
	client, err := transport.NewWSClient(transport.WSConfig{
		URL:              cfg.Transport.URL,
		AuthToken:        cfg.Transport.AuthToken,
		SessionID:        sessionID,
		HandshakeTimeout: time.Duration(cfg.Transport.HandshakeTimeout) * time.Second,
		WriteTimeout:     time.Duration(cfg.Transport.WriteTimeout) * time.Second,
	}, logger)
	if err != nil {
		logger.Error("Failed to create transport client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Capture pipeline
	captureCfg := capture.DefaultConfig()
	captureCfg.RingCapacity = cfg.Capture.RingCapacity
	captureCfg.CaptureChunkSize = cfg.Capture.ChunkSize
	captureCfg.ReadTimeout = time.Duration(cfg.Capture.ReadTimeout) * time.Millisecond
	captureCfg.StreamChunkSize = cfg.Capture.StreamChunkSize
	captureCfg.SendFailureBudget = cfg.Capture.SendFailureBudget
	captureCfg.StopTimeout = time.Duration(cfg.Capture.StopTimeout) * time.Second
	capturePL, err := capture.NewPipeline(captureCfg, audioDrv, client, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create capture pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Playback pipeline
	playbackCfg := playback.DefaultConfig()
	playbackCfg.BufferCapacity = cfg.Playback.BufferCapacity
	playbackCfg.HeaderWindow = cfg.Playback.HeaderWindow
	playbackCfg.ChunkSize = cfg.Playback.ChunkSize
	playbackCfg.IngestTimeout = time.Duration(cfg.Playback.IngestTimeout) * time.Second
	playbackPL, err := playback.NewPipeline(playbackCfg, audioDrv, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create playback pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Frame uploader (optional)
	var uploader *upload.Client
	if cfg.Upload.Enabled {
		uploader, err = upload.NewClient(upload.Config{
			Endpoint:      cfg.Upload.Endpoint,
			APIKey:        cfg.Upload.APIKey,
			DeviceID:      cfg.Device.ID,
			Timeout:       time.Duration(cfg.Upload.Timeout) * time.Second,
			MaxRetries:    cfg.Upload.MaxRetries,
			MaxConcurrent: cfg.Upload.MaxConcurrent,
		}, appMetrics)
		if err != nil {
			logger.Error("Failed to create upload client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Frame uploader initialized", slog.String("endpoint", cfg.Upload.Endpoint))
	}

	// Mode state machine
	stateCfg := state.DefaultConfig()
	stateCfg.LockTimeout = time.Duration(cfg.Device.LockTimeout) * time.Second
	stateCfg.RecoveryBudget = cfg.Device.RecoveryBudget
	stateCfg.RecoveryInterval = time.Duration(cfg.Device.RecoveryInterval) * time.Second
	stateCfg.PlaybackDrainTimeout = time.Duration(cfg.Device.PlaybackDrainTimeout) * time.Second
	stateCfg.UploadTimeout = time.Duration(cfg.Upload.Timeout) * time.Second

	manager, err := state.NewManager(stateCfg, state.Deps{
		Camera:   cameraDrv,
		Audio:    audioDrv,
		Capture:  capturePL,
		Playback: playbackPL,
		Client:   client,
		Uploader: uploader,
		Notifier: feedback.NewLogNotifier(logger),
		Metrics:  appMetrics,
	}, logger)
	if err != nil {
		logger.Error("Failed to create state machine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Observer must be installed before the connection comes up.
	client.SetObserver(&deviceObserver{playback: playbackPL, manager: manager})

	if err := client.Connect(); err != nil {
		// The device still boots into camera mode; voice entry stays blocked
		// until the backend is reachable.
		logger.Warn("Backend connection failed at startup", slog.String("error", err.Error()))
	}

	// HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, manager, uploader, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Run the state machine
	managerDone := make(chan error, 1)
	go func() { managerDone <- manager.Run(ctx) }()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Device started successfully", slog.String("session_id", sessionID))

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
		<-managerDone
	case err := <-managerDone:
		if err != nil && err != context.Canceled {
			logger.Error("State machine exited", slog.String("error", err.Error()))
		} else {
			logger.Info("Device shut itself down")
		}
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Final statistics
	status := manager.GetStatus()
	logger.Info("Final device statistics",
		slog.String("state", status.State),
		slog.Uint64("chunks_sent", status.Capture.ChunksSent),
		slog.Uint64("chunks_dropped", status.Capture.ChunksDropped),
		slog.Uint64("playback_bytes", status.Playback.BytesPlayed),
	)

	logger.Info("Device stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
