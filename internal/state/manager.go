package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/capture"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/driver"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/fault"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/feedback"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/metrics"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/playback"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/transport"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/upload"
)

// Config contains state machine configuration.
type Config struct {
	// LockTimeout bounds hardware lock acquisition during a transition.
	LockTimeout time.Duration

	// RecoveryBudget is the number of failed automatic recovery attempts
	// after which the device shuts down.
	RecoveryBudget int

	// RecoveryInterval is the pause between recovery attempts.
	RecoveryInterval time.Duration

	// PlaybackDrainTimeout bounds the wait for pending speaker audio before
	// leaving the voice session.
	PlaybackDrainTimeout time.Duration

	// CaptureLockTimeout bounds hardware lock acquisition for a photo.
	CaptureLockTimeout time.Duration

	// UploadTimeout bounds one frame upload, including retries.
	UploadTimeout time.Duration

	// TickInterval is the state machine housekeeping cadence.
	TickInterval time.Duration
}

// DefaultConfig returns state machine defaults.
func DefaultConfig() Config {
	return Config{
		LockTimeout:          5 * time.Second,
		RecoveryBudget:       3,
		RecoveryInterval:     time.Second,
		PlaybackDrainTimeout: 3 * time.Second,
		CaptureLockTimeout:   2 * time.Second,
		UploadTimeout:        30 * time.Second,
		TickInterval:         100 * time.Millisecond,
	}
}

// Deps are the collaborators the state machine drives.
type Deps struct {
	Camera   driver.Camera
	Audio    driver.Audio
	Capture  *capture.Pipeline
	Playback *playback.Pipeline
	Client   transport.Client
	Uploader *upload.Client
	Notifier feedback.Notifier
	Metrics  *metrics.Metrics
}

// Status is a point-in-time view of the device for the HTTP API.
type Status struct {
	State            string         `json:"state"`
	RecoveryAttempts int            `json:"recovery_attempts"`
	Connected        bool           `json:"connected"`
	PipelineStage    string         `json:"pipeline_stage"`
	Capture          capture.Stats  `json:"capture"`
	Playback         playback.Stats `json:"playback"`
	Uptime           string         `json:"uptime"`
}

// Manager runs the device mode state machine. All state mutation happens on
// the Run goroutine; external callers only post events and read snapshots.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	cam        driver.Camera
	aud        driver.Audio
	capturePL  *capture.Pipeline
	playbackPL *playback.Pipeline
	client     transport.Client
	uploader   *upload.Client
	notifier   feedback.Notifier
	met        *metrics.Metrics

	lock   *HardwareLock
	events chan Event

	state            SystemState
	recoveryAttempts int
	lastRecovery     time.Time
	startedAt        time.Time

	uploadWG sync.WaitGroup

	mu sync.RWMutex
}

// NewManager creates the state machine.
func NewManager(cfg Config, deps Deps, logger *slog.Logger) (*Manager, error) {
	if deps.Camera == nil || deps.Audio == nil {
		return nil, fmt.Errorf("%w: camera and audio drivers are required", fault.ErrInvalidArgument)
	}
	if deps.Capture == nil || deps.Playback == nil {
		return nil, fmt.Errorf("%w: capture and playback pipelines are required", fault.ErrInvalidArgument)
	}
	if deps.Client == nil {
		return nil, fmt.Errorf("%w: transport client is required", fault.ErrInvalidArgument)
	}
	if deps.Notifier == nil {
		deps.Notifier = feedback.NewLogNotifier(logger)
	}

	return &Manager{
		cfg:        cfg,
		logger:     logger,
		cam:        deps.Camera,
		aud:        deps.Audio,
		capturePL:  deps.Capture,
		playbackPL: deps.Playback,
		client:     deps.Client,
		uploader:   deps.Uploader,
		notifier:   deps.Notifier,
		met:        deps.Metrics,
		lock:       NewHardwareLock(),
		events:     make(chan Event, 16),
		state:      StateInit,
	}, nil
}

// PostEvent queues an event for the state machine. Events posted faster than
// the machine consumes them are dropped; a stale button press is worthless.
func (m *Manager) PostEvent(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("Event queue full - dropping event", slog.String("event", ev.String()))
	}
}

// OnStatus lets the manager observe transport state changes.
func (m *Manager) OnStatus(status transport.Status) {
	if status == transport.StatusDisconnected || status == transport.StatusError {
		m.PostEvent(EventTransportLost)
	}
}

// GetState returns the current mode.
func (m *Manager) GetState() SystemState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsRecording reports whether the microphone pipeline is streaming.
func (m *Manager) IsRecording() bool {
	return m.capturePL.IsRunning()
}

// GetStatus returns a snapshot for the HTTP API.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	state := m.state
	attempts := m.recoveryAttempts
	started := m.startedAt
	m.mu.RUnlock()

	uptime := ""
	if !started.IsZero() {
		uptime = time.Since(started).Round(time.Second).String()
	}

	return Status{
		State:            state.String(),
		RecoveryAttempts: attempts,
		Connected:        m.client.IsConnected(),
		PipelineStage:    m.client.GetPipelineStage().String(),
		Capture:          m.capturePL.GetStats(),
		Playback:         m.playbackPL.GetStats(),
		Uptime:           uptime,
	}
}

// Run executes the state machine until the context is cancelled or the
// device shuts itself down.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.startedAt = time.Now()
	m.mu.Unlock()

	if err := m.initialize(); err != nil {
		m.logger.Error("Initialization failed", slog.String("error", err.Error()))
		m.enterError(err)
	}

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return ctx.Err()

		case ev := <-m.events:
			if quit := m.handleEvent(ev); quit {
				m.shutdown()
				return nil
			}

		case <-ticker.C:
			if quit := m.tick(); quit {
				m.shutdown()
				return nil
			}
		}
	}
}

// initialize brings the device into camera standby.
func (m *Manager) initialize() error {
	if err := m.lock.Acquire(m.cfg.LockTimeout); err != nil {
		return err
	}
	defer m.lock.Release()

	if err := m.cam.Init(); err != nil {
		return fmt.Errorf("camera init: %w", err)
	}

	m.setState(StateCameraStandby)
	m.logger.Info("Device ready")
	return nil
}

// handleEvent applies the mode guardrails and dispatches one event. It
// returns true when the device should shut down.
func (m *Manager) handleEvent(ev Event) bool {
	state := m.GetState()
	m.logger.Debug("Event", slog.String("event", ev.String()), slog.String("state", state.String()))

	switch ev {
	case EventShutdownRequested, EventLongPress:
		return true

	case EventLongPressRelease:
		// The shutdown fired on the press; the release is informational.
		return false

	case EventTransportLost:
		if state == StateVoiceActive {
			m.logger.Warn("Backend connection lost - leaving voice session")
			m.toggleMode()
		}
		return false

	case EventDoubleClick:
		switch state {
		case StateCameraStandby:
			m.capturePhoto()
		case StateVoiceActive:
			// The sensor can borrow the hardware mid-session, but not while
			// the backend is processing or a response is still playing.
			if m.client.IsPipelineActive() {
				m.notifier.Blocked("backend is processing the utterance")
				return false
			}
			if m.playbackPL.HasPendingAudio() {
				m.notifier.Blocked("response playback in progress")
				return false
			}
			m.capturePhotoFromVoice()
		case StateTransitioning:
			m.notifier.Blocked("mode transition in progress")
		case StateError:
			m.notifier.Blocked("device in error state")
		}
		return false

	case EventSingleClick:
		switch state {
		case StateCameraStandby:
			// Entering the voice session requires a live, idle backend;
			// leaving it never does.
			if !m.client.IsConnected() {
				m.notifier.Blocked("backend unavailable")
				return false
			}
			if m.client.IsPipelineActive() {
				m.notifier.Blocked("backend is processing the utterance")
				return false
			}
			m.toggleMode()
		case StateVoiceActive:
			m.toggleMode()
		case StateTransitioning:
			m.notifier.Blocked("mode transition in progress")
		case StateError:
			m.notifier.Blocked("device in error state")
		}
		return false
	}

	return false
}

// tick runs periodic housekeeping: ring occupancy export and error recovery.
// It returns true when the recovery budget is exhausted.
func (m *Manager) tick() bool {
	if m.met != nil {
		m.met.SetRingOccupancy(m.capturePL.GetStats().Ring.Occupied)
	}

	m.mu.RLock()
	state := m.state
	attempts := m.recoveryAttempts
	last := m.lastRecovery
	m.mu.RUnlock()

	if state != StateError {
		return false
	}
	if time.Since(last) < m.cfg.RecoveryInterval {
		return false
	}
	if attempts >= m.cfg.RecoveryBudget {
		m.logger.Error("Recovery budget exhausted - shutting down",
			slog.Int("attempts", attempts))
		return true
	}

	m.attemptRecovery()
	return false
}

// attemptRecovery tries to return the device to camera standby from the
// error state.
func (m *Manager) attemptRecovery() {
	m.mu.Lock()
	m.recoveryAttempts++
	m.lastRecovery = time.Now()
	attempt := m.recoveryAttempts
	m.mu.Unlock()

	if m.met != nil {
		m.met.RecordRecoveryAttempt()
	}
	m.logger.Info("Attempting error recovery",
		slog.Int("attempt", attempt),
		slog.Int("budget", m.cfg.RecoveryBudget),
	)

	_ = m.capturePL.Stop()
	_ = m.playbackPL.Stop()

	if err := m.lock.Acquire(m.cfg.LockTimeout); err != nil {
		m.logger.Error("Recovery failed: hardware lock", slog.String("error", err.Error()))
		return
	}

	// Tear everything down to a known state, then bring the camera back.
	if m.aud.IsInitialized() {
		_ = m.aud.Deinit()
	}
	if m.cam.IsInitialized() {
		_ = m.cam.Deinit()
	}
	err := m.cam.Init()
	m.lock.Release()

	if err != nil {
		m.logger.Error("Recovery failed: camera init", slog.String("error", err.Error()))
		return
	}

	m.mu.Lock()
	m.recoveryAttempts = 0
	m.state = StateCameraStandby
	m.mu.Unlock()

	m.logger.Info("Recovered to camera standby")
	m.notifier.ModeChanged(StateCameraStandby.String())
}

// enterError moves the device into the error state.
func (m *Manager) enterError(err error) {
	m.mu.Lock()
	m.state = StateError
	m.mu.Unlock()

	m.logger.Error("Entering error state", slog.String("error", err.Error()))
	m.notifier.ErrorAlert()
}

// setState records a state change.
func (m *Manager) setState(s SystemState) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()

	m.logger.Info("State change",
		slog.String("from", prev.String()),
		slog.String("to", s.String()),
	)
}
