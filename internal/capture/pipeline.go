package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/audio"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/driver"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/fault"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/metrics"
	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/transport"
)

// Config contains capture pipeline configuration.
type Config struct {
	// RingCapacity is the ring buffer size in bytes.
	RingCapacity int

	// CaptureChunkSize is the per-read chunk size in bytes.
	CaptureChunkSize int

	// ReadTimeout bounds each driver read so the capture task can observe a
	// stop request between chunks.
	ReadTimeout time.Duration

	// StreamChunkSize is the per-send network chunk size in bytes.
	StreamChunkSize int

	// SendTimeout bounds each network send.
	SendTimeout time.Duration

	// SendFailureBudget is the number of consecutive send failures after
	// which the streaming session aborts.
	SendFailureBudget int

	// DrainPollInterval is how often the streaming task re-checks an empty
	// ring while the session is active.
	DrainPollInterval time.Duration

	// StopTimeout bounds the wait for the capture task to exit and for the
	// streaming task to park during Stop.
	StopTimeout time.Duration
}

// DefaultConfig returns capture defaults matching the device hardware cadence:
// 1 KiB mono chunks every 32 ms at 16 kHz, streamed in 4 KiB network chunks.
func DefaultConfig() Config {
	return Config{
		RingCapacity:      64 * 1024,
		CaptureChunkSize:  1024,
		ReadTimeout:       100 * time.Millisecond,
		StreamChunkSize:   4096,
		SendTimeout:       time.Second,
		SendFailureBudget: 5,
		DrainPollInterval: 20 * time.Millisecond,
		StopTimeout:       5 * time.Second,
	}
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Running       bool   `json:"running"`
	ChunksRead    uint64 `json:"chunks_read"`
	ChunksSent    uint64 `json:"chunks_sent"`
	ChunksDropped uint64 `json:"chunks_dropped"`
	SendFailures  uint64 `json:"send_failures"`

	Ring audio.RingStats `json:"ring"`
}

// control events for the persistent streaming task. Events accumulate as a
// bitset on the channel so a stop cannot be lost behind a queued start.
type controlEvent uint32

const (
	evStart controlEvent = 1 << iota
	evStop
	evShutdown
)

// Pipeline owns the two microphone tasks. The streaming task is created once
// and parks between sessions; Start/Stop wake and park it, Shutdown retires
// it. All three are safe to call repeatedly.
type Pipeline struct {
	cfg     Config
	drv     driver.Audio
	client  transport.Client
	met     *metrics.Metrics
	logger  *slog.Logger
	ring    *audio.RingBuffer
	control chan controlEvent

	running   bool
	active    bool // streaming session should keep draining
	captureWG sync.WaitGroup
	stopCh    chan struct{} // per-session capture stop
	parked    chan struct{} // closed when the streaming session parks

	chunksRead    uint64
	chunksSent    uint64
	chunksDropped uint64
	sendFailures  uint64

	mu sync.Mutex
}

// NewPipeline creates the capture pipeline and launches the parked streaming
// task. The metrics handle may be nil.
func NewPipeline(cfg Config, drv driver.Audio, client transport.Client, met *metrics.Metrics, logger *slog.Logger) (*Pipeline, error) {
	if drv == nil {
		return nil, fmt.Errorf("%w: audio driver is required", fault.ErrInvalidArgument)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: transport client is required", fault.ErrInvalidArgument)
	}
	if cfg.CaptureChunkSize <= 0 || cfg.StreamChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk sizes must be positive", fault.ErrInvalidArgument)
	}

	ring, err := audio.NewRingBuffer(cfg.RingCapacity)
	if err != nil {
		return nil, fmt.Errorf("create capture ring: %w", err)
	}

	p := &Pipeline{
		cfg:     cfg,
		drv:     drv,
		client:  client,
		met:     met,
		logger:  logger,
		ring:    ring,
		control: make(chan controlEvent, 8),
	}

	go p.streamLoop()
	return p, nil
}

// Start begins capturing and streaming. The ring starts from clean positions
// so stale audio from a previous session can never leak into a new one.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("%w: capture pipeline already running", fault.ErrInvalidState)
	}
	if !p.drv.IsInitialized() {
		p.mu.Unlock()
		return fmt.Errorf("%w: audio driver not initialized", fault.ErrInvalidState)
	}

	p.ring.Reset()
	p.running = true
	p.active = true
	p.stopCh = make(chan struct{})
	p.parked = make(chan struct{})
	p.chunksRead = 0
	p.chunksSent = 0
	p.chunksDropped = 0
	p.sendFailures = 0

	p.captureWG.Add(1)
	go p.captureLoop(p.stopCh)
	p.mu.Unlock()

	p.control <- evStart

	p.logger.Info("Capture pipeline started",
		slog.Int("ring_capacity", p.cfg.RingCapacity),
		slog.Int("chunk_size", p.cfg.CaptureChunkSize),
	)
	return nil
}

// Stop ends the session: the capture task exits, the streaming task drains
// whatever the ring still holds, sends the end-of-stream signal, and parks.
// Idempotent; a second call returns immediately.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.active = false
	close(p.stopCh)
	parked := p.parked
	p.mu.Unlock()

	captureDone := make(chan struct{})
	go func() {
		p.captureWG.Wait()
		close(captureDone)
	}()
	select {
	case <-captureDone:
	case <-time.After(p.cfg.StopTimeout):
		p.logger.Warn("Capture task did not exit before deadline")
	}

	p.control <- evStop

	select {
	case <-parked:
	case <-time.After(p.cfg.StopTimeout):
		p.logger.Warn("Streaming task did not park before deadline")
	}

	p.ring.Reset()
	p.logger.Info("Capture pipeline stopped")
	return nil
}

// Shutdown stops any active session and retires the streaming task.
func (p *Pipeline) Shutdown() {
	_ = p.Stop()
	p.control <- evShutdown
}

// IsRunning reports whether a capture session is active.
func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// GetStats returns a snapshot of the pipeline counters.
func (p *Pipeline) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Running:       p.running,
		ChunksRead:    p.chunksRead,
		ChunksSent:    p.chunksSent,
		ChunksDropped: p.chunksDropped,
		SendFailures:  p.sendFailures,
		Ring:          p.ring.Stats(),
	}
}

// captureLoop pulls PCM from the driver on a fixed cadence. A full ring drops
// the whole chunk; the driver keeps its own cadence either way.
func (p *Pipeline) captureLoop(stop <-chan struct{}) {
	defer p.captureWG.Done()

	chunk := make([]byte, p.cfg.CaptureChunkSize)
	consecutiveErrors := 0

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := p.drv.Read(chunk, p.cfg.ReadTimeout)
		if err != nil {
			consecutiveErrors++
			p.logger.Error("Audio read failed",
				slog.String("error", err.Error()),
				slog.Int("consecutive", consecutiveErrors),
			)
			// Back off so a wedged driver does not spin the task.
			select {
			case <-stop:
				return
			case <-time.After(p.cfg.ReadTimeout):
			}
			continue
		}
		consecutiveErrors = 0
		if n == 0 {
			continue
		}

		p.mu.Lock()
		p.chunksRead++
		p.mu.Unlock()
		if p.met != nil {
			p.met.RecordCaptureChunk()
		}

		if err := p.ring.Write(chunk[:n]); err != nil {
			if errors.Is(err, fault.ErrResourceExhausted) {
				if p.met != nil {
					p.met.RecordCaptureDrop()
				}
				p.logger.Warn("Capture ring full - dropping chunk", slog.Int("bytes", n))
				continue
			}
			p.logger.Error("Ring write failed", slog.String("error", err.Error()))
		}

		if p.met != nil {
			p.met.SetRingOccupancy(p.ring.Occupied())
		}
	}
}

// streamLoop is the persistent streaming task. It parks on the control
// channel between sessions and runs one session per start event.
func (p *Pipeline) streamLoop() {
	for ev := range p.control {
		if ev&evShutdown != 0 {
			p.logger.Info("Streaming task retired")
			return
		}
		if ev&evStart == 0 {
			continue
		}

		p.mu.Lock()
		parked := p.parked
		p.mu.Unlock()

		p.streamSession()
		close(parked)
	}
}

// streamSession drains the ring into the backend until the session ends, then
// flushes the remainder and signals end-of-stream. Chunks read while the
// backend is mid-pipeline are discarded rather than queued: stale voice audio
// delivered after the fact is worse than a gap.
func (p *Pipeline) streamSession() {
	chunk := make([]byte, p.cfg.StreamChunkSize)
	consecutiveFailures := 0

	for {
		p.mu.Lock()
		active := p.active
		p.mu.Unlock()

		if !p.client.IsConnected() || !p.client.SessionReady() {
			if !active {
				// Nothing to flush to: discard the remainder and park.
				p.ring.Reset()
				p.logger.Warn("Session ended without a ready backend - remainder discarded")
				break
			}
			time.Sleep(p.cfg.DrainPollInterval)
			continue
		}

		n := p.ring.Read(chunk)
		if n == 0 {
			if !active {
				break
			}
			time.Sleep(p.cfg.DrainPollInterval)
			continue
		}
		if p.met != nil {
			p.met.SetRingOccupancy(p.ring.Occupied())
		}

		if !p.client.CanStreamAudio() {
			p.mu.Lock()
			p.chunksDropped++
			p.mu.Unlock()
			if p.met != nil {
				p.met.RecordStreamChunkDropped()
			}
			continue
		}

		if err := p.client.SendAudio(chunk[:n], p.cfg.SendTimeout); err != nil {
			consecutiveFailures++
			p.mu.Lock()
			p.sendFailures++
			p.mu.Unlock()
			if p.met != nil {
				p.met.RecordStreamSendFailure()
			}
			p.logger.Error("Audio send failed",
				slog.String("error", err.Error()),
				slog.Int("consecutive", consecutiveFailures),
			)
			if consecutiveFailures >= p.cfg.SendFailureBudget {
				p.logger.Error("Send failure budget exhausted - aborting streaming session",
					slog.Int("budget", p.cfg.SendFailureBudget))
				break
			}
			continue
		}

		consecutiveFailures = 0
		p.mu.Lock()
		p.chunksSent++
		p.mu.Unlock()
		if p.met != nil {
			p.met.RecordStreamChunkSent()
		}
	}

	// The backend delimits the utterance with the end-of-stream signal; it is
	// owed on an aborted session as much as on a normal end, as long as the
	// connection is still up.
	if p.client.IsConnected() {
		if err := p.client.SendEndOfStream(); err != nil {
			p.logger.Error("EOS send failed", slog.String("error", err.Error()))
		}
	}
	p.logger.Info("Streaming session parked")
}
