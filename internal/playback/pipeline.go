package playback

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

// Config contains playback pipeline configuration.
type Config struct {
	// BufferCapacity is the stream buffer size in bytes, sized for a whole
	// synthesized response.
	BufferCapacity int

	// HeaderWindow is the staging window limit for WAV header discovery.
	HeaderWindow int

	// ChunkSize is the per-iteration drain size in bytes.
	ChunkSize int

	// ReceiveTimeout bounds each buffer receive so the playback task can
	// observe a stop request between chunks.
	ReceiveTimeout time.Duration

	// IngestTimeout is the total budget for pushing one inbound chunk into a
	// full stream buffer before it is dropped.
	IngestTimeout time.Duration
}

// DefaultConfig returns playback defaults: a 256 KiB response buffer drained
// in 4 KiB chunks, with an 8 KiB header discovery window.
func DefaultConfig() Config {
	return Config{
		BufferCapacity: 256 * 1024,
		HeaderWindow:   8192,
		ChunkSize:      4096,
		ReceiveTimeout: 100 * time.Millisecond,
		IngestTimeout:  5 * time.Second,
	}
}

// Stats is a snapshot of pipeline counters for the status endpoint.
type Stats struct {
	Running       bool   `json:"running"`
	Playing       bool   `json:"playing"`
	Completed     bool   `json:"completed"`
	PendingBytes  int    `json:"pending_bytes"`
	BytesReceived uint64 `json:"bytes_received"`
	BytesPlayed   uint64 `json:"bytes_played"`
	IngestDrops   uint64 `json:"ingest_drops"`
	ParseErrors   uint64 `json:"parse_errors"`
}

// Pipeline owns the speaker task. It is the transport audio observer: the
// connection's read loop pushes response bytes straight into the stream
// buffer, and the playback task drains them independently.
type Pipeline struct {
	cfg    Config
	drv    driver.Audio
	met    *metrics.Metrics
	logger *slog.Logger
	buf    *audio.StreamBuffer

	running    bool
	playing    bool
	completed  bool
	discarding bool
	info       *audio.StreamInfo

	bytesReceived uint64
	bytesPlayed   uint64
	ingestDrops   uint64
	parseErrors   uint64

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu sync.Mutex
}

// NewPipeline creates the playback pipeline. The metrics handle may be nil.
func NewPipeline(cfg Config, drv driver.Audio, met *metrics.Metrics, logger *slog.Logger) (*Pipeline, error) {
	if drv == nil {
		return nil, fmt.Errorf("%w: audio driver is required", fault.ErrInvalidArgument)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive", fault.ErrInvalidArgument)
	}

	buf, err := audio.NewStreamBuffer(cfg.BufferCapacity)
	if err != nil {
		return nil, fmt.Errorf("create stream buffer: %w", err)
	}

	return &Pipeline{
		cfg:    cfg,
		drv:    drv,
		met:    met,
		logger: logger,
		buf:    buf,
	}, nil
}

// Start launches the playback task.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("%w: playback pipeline already running", fault.ErrInvalidState)
	}
	if !p.drv.IsInitialized() {
		return fmt.Errorf("%w: audio driver not initialized", fault.ErrInvalidState)
	}

	p.buf.Reset()
	p.running = true
	p.playing = false
	p.completed = false
	p.discarding = false
	p.info = nil
	p.bytesReceived = 0
	p.bytesPlayed = 0
	p.ingestDrops = 0
	p.parseErrors = 0
	p.stopCh = make(chan struct{})

	p.wg.Add(1)
	go p.playbackLoop(p.stopCh)

	p.logger.Info("Playback pipeline started",
		slog.Int("buffer_capacity", p.cfg.BufferCapacity),
		slog.Int("header_window", p.cfg.HeaderWindow),
	)
	return nil
}

// Stop forcefully ends playback: the task is unblocked via interrupt, waited
// out, and the buffer is recycled only after the task has exited. Idempotent.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.buf.Interrupt()
	p.wg.Wait()

	p.mu.Lock()
	p.buf.Reset()
	p.playing = false
	p.completed = false
	p.discarding = false
	p.info = nil
	p.mu.Unlock()

	p.logger.Info("Playback pipeline stopped")
	return nil
}

// IsRunning reports whether the playback task is active.
func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// GetStreamInfo returns the parsed format of the current response, or nil
// before header discovery.
func (p *Pipeline) GetStreamInfo() *audio.StreamInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.info == nil {
		return nil
	}
	info := *p.info
	return &info
}

// GetPendingBytes returns the number of buffered response bytes not yet
// rendered.
func (p *Pipeline) GetPendingBytes() int {
	return p.buf.Occupied()
}

// HasPendingAudio reports whether audible output is still owed. A remnant
// smaller than one sample frame cannot be rendered and does not count.
func (p *Pipeline) HasPendingAudio() bool {
	p.mu.Lock()
	unit := 2
	if p.info != nil && p.info.BlockAlign > 0 {
		unit = int(p.info.BlockAlign)
	}
	playing := p.playing
	p.mu.Unlock()

	return playing || p.buf.Occupied() >= unit
}

// GetStats returns a snapshot of the pipeline counters.
func (p *Pipeline) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Running:       p.running,
		Playing:       p.playing,
		Completed:     p.completed,
		PendingBytes:  p.buf.Occupied(),
		BytesReceived: p.bytesReceived,
		BytesPlayed:   p.bytesPlayed,
		IngestDrops:   p.ingestDrops,
		ParseErrors:   p.parseErrors,
	}
}

// WaitForIdle blocks until all pending audio has been rendered or the timeout
// expires. A response whose counters stop advancing while bytes remain is
// force-completed so a wedged stream cannot block a mode transition forever.
func (p *Pipeline) WaitForIdle(timeout time.Duration) error {
	const pollInterval = 20 * time.Millisecond
	const stuckBudget = 50 // identical samples before the stream is declared wedged

	deadline := time.Now().Add(timeout)
	var lastPending int
	var lastPlayed uint64
	stuck := 0

	for {
		p.mu.Lock()
		running := p.running
		playing := p.playing
		played := p.bytesPlayed
		p.mu.Unlock()
		pending := p.buf.Occupied()

		if !running || (!playing && pending == 0) {
			return nil
		}

		if pending == lastPending && played == lastPlayed {
			stuck++
			if stuck == stuckBudget {
				p.logger.Warn("Playback made no progress - forcing end of stream",
					slog.Int("pending_bytes", pending))
				p.buf.MarkEnd()
			}
		} else {
			stuck = 0
			lastPending = pending
			lastPlayed = played
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: playback still pending after %v", fault.ErrTimeout, timeout)
		}
		time.Sleep(pollInterval)
	}
}

// OnAudioBytes is the transport observer entry point. A nil payload means the
// connection was lost; the buffered remainder is allowed to play out. A
// non-nil empty payload is the backend's end-of-audio marker. Anything else
// is response payload pushed into the stream buffer with a bounded retry
// budget; a persistently full buffer drops the chunk rather than stalling the
// connection's read loop.
func (p *Pipeline) OnAudioBytes(data []byte) {
	if data == nil {
		p.logger.Warn("Transport lost mid-response - finishing buffered audio")
		p.buf.MarkEnd()
		return
	}
	if len(data) == 0 {
		p.logger.Info("End of audio stream", slog.Int("pending_bytes", p.buf.Occupied()))
		p.buf.MarkEnd()
		return
	}

	p.mu.Lock()
	running := p.running
	p.bytesReceived += uint64(len(data))
	p.mu.Unlock()
	if p.met != nil {
		p.met.RecordPlaybackReceived(len(data))
	}

	if !running {
		p.logger.Debug("Playback not running - dropping inbound audio", slog.Int("bytes", len(data)))
		return
	}

	deadline := time.Now().Add(p.cfg.IngestTimeout)
	for {
		err := p.buf.Send(data, 100*time.Millisecond)
		if err == nil {
			return
		}
		if errors.Is(err, fault.ErrInterrupted) {
			return
		}
		if errors.Is(err, fault.ErrInvalidState) {
			// The previous response is still finalizing; the playback task
			// recycles the buffer as soon as it observes the end marker.
			time.Sleep(5 * time.Millisecond)
		}
		if time.Now().After(deadline) {
			p.mu.Lock()
			p.ingestDrops++
			p.mu.Unlock()
			if p.met != nil {
				p.met.RecordPlaybackIngestDrop()
			}
			p.logger.Error("Stream buffer full - dropping inbound chunk",
				slog.Int("bytes", len(data)),
				slog.Int("occupied", p.buf.Occupied()),
			)
			return
		}
	}
}

// OnStatus logs transport state changes; loss of the connection itself is
// handled by the nil payload on OnAudioBytes.
func (p *Pipeline) OnStatus(status transport.Status) {
	p.logger.Info("Transport status", slog.String("status", status.String()))
}

var _ transport.Observer = (*Pipeline)(nil)

// playbackLoop drains the stream buffer: header discovery first, then PCM
// rendering until the end-of-stream marker, then recycle for the next
// response. The task survives malformed responses by discarding the rest of
// the stream; only Stop retires it.
func (p *Pipeline) playbackLoop(stop <-chan struct{}) {
	defer p.wg.Done()

	chunk := make([]byte, p.cfg.ChunkSize)
	work := make([]byte, p.cfg.ChunkSize+1)
	// The first payload slice can hold the whole header-window remainder plus
	// the drain chunk that overflowed it, so the stereo scratch is sized for
	// both together.
	scratch := make([]byte, 2*(p.cfg.ChunkSize+1+p.cfg.HeaderWindow))
	scanner := audio.NewHeaderScanner(p.cfg.HeaderWindow)
	var carry byte
	hasCarry := false

	for {
		n, err := p.buf.Receive(chunk, p.cfg.ReceiveTimeout)
		if err != nil {
			switch {
			case errors.Is(err, fault.ErrInterrupted):
				return
			case errors.Is(err, audio.ErrEndOfStream):
				p.finishResponse(scanner)
				hasCarry = false
				continue
			case fault.IsTimeout(err):
				select {
				case <-stop:
					return
				default:
				}
				continue
			default:
				p.logger.Error("Stream receive failed", slog.String("error", err.Error()))
				continue
			}
		}

		p.mu.Lock()
		discarding := p.discarding
		headerFound := p.info != nil
		p.mu.Unlock()

		if discarding {
			continue
		}

		data := chunk[:n]
		if !headerFound {
			data = p.scanHeader(scanner, data)
			if data == nil {
				continue
			}
			hasCarry = false
		}

		// 16-bit samples can split across network chunks; hold the odd byte
		// until its partner arrives.
		if hasCarry {
			work[0] = carry
			data = append(work[:1], data...)
			hasCarry = false
		}
		if len(data)%2 == 1 {
			carry = data[len(data)-1]
			hasCarry = true
			data = data[:len(data)-1]
		}
		if len(data) == 0 {
			continue
		}

		p.render(data, scratch, stop)
	}
}

// scanHeader stages inbound bytes until the WAV header is complete, then
// configures the driver and returns the payload remainder. It returns nil
// while more data is needed or after a fatal parse error.
func (p *Pipeline) scanHeader(scanner *audio.HeaderScanner, data []byte) []byte {
	// The scanner stages at most its window limit; a drain chunk crossing the
	// limit leaves an overflow that becomes payload once the header parses.
	// While the scan still wants more data the window is not full, so the
	// overflow is always empty in that case and nothing is lost.
	staged := scanner.Feed(data)
	overflow := data[staged:]

	info, consumed, err := scanner.Scan()
	if err != nil {
		if errors.Is(err, audio.ErrNeedMoreData) {
			return nil
		}
		p.failResponse(scanner, err)
		return nil
	}

	if info.Channels != 1 && info.Channels != 2 {
		p.failResponse(scanner, fmt.Errorf("%w: unsupported channel count %d", fault.ErrParse, info.Channels))
		return nil
	}
	if info.BitsPerSample != 16 {
		p.failResponse(scanner, fmt.Errorf("%w: unsupported bit depth %d", fault.ErrParse, info.BitsPerSample))
		return nil
	}

	if err := p.drv.SetSampleRate(info.SampleRate); err != nil {
		p.logger.Error("Sample rate reconfiguration failed",
			slog.Uint64("rate", uint64(info.SampleRate)),
			slog.String("error", err.Error()),
		)
		p.failResponse(scanner, err)
		return nil
	}
	_ = p.drv.ClearBuffers()

	p.mu.Lock()
	p.info = info
	p.playing = true
	p.completed = false
	p.mu.Unlock()
	if p.met != nil {
		p.met.RecordPlaybackSession()
	}

	p.logger.Info("WAV header parsed",
		slog.Uint64("sample_rate", uint64(info.SampleRate)),
		slog.Int("channels", int(info.Channels)),
		slog.Int("bits", int(info.BitsPerSample)),
		slog.Int("consumed", consumed),
	)

	remainder := scanner.Remainder(consumed)
	if len(remainder) == 0 && len(overflow) == 0 {
		scanner.Reset()
		return nil
	}
	// Copy out before resetting; the remainder aliases the staging window.
	payload := make([]byte, 0, len(remainder)+len(overflow))
	payload = append(payload, remainder...)
	payload = append(payload, overflow...)
	scanner.Reset()
	return payload
}

// render writes one even-length PCM slice to the driver, expanding mono
// sources to the stereo output layout. Speaker writes block until the driver
// accepts the whole slice; output starvation slows playback but never loses
// audio. Only the driver being torn down ends the session.
func (p *Pipeline) render(data, scratch []byte, stop <-chan struct{}) {
	p.mu.Lock()
	info := p.info
	p.mu.Unlock()
	if info == nil {
		return
	}

	out := data
	if info.Channels == 1 {
		n, err := audio.ExpandMonoToStereo(data, scratch)
		if err != nil {
			p.logger.Error("Mono expansion failed", slog.String("error", err.Error()))
			return
		}
		out = scratch[:n]
	}

	for len(out) > 0 {
		n, err := p.drv.Write(out, 0)
		if n > 0 {
			out = out[n:]
		}
		if err == nil {
			if n == 0 {
				// A zero-progress success must not spin the task.
				time.Sleep(time.Millisecond)
			}
			continue
		}
		if errors.Is(err, fault.ErrHardware) {
			// Driver torn down under us, a mode transition is in progress.
			p.logger.Warn("Audio driver gone mid-write - discarding response remainder")
			p.mu.Lock()
			p.discarding = true
			p.playing = false
			p.mu.Unlock()
			return
		}
		p.logger.Warn("Speaker write failed - retrying remainder",
			slog.Int("remaining", len(out)),
			slog.String("error", err.Error()),
		)
		select {
		case <-stop:
			return
		case <-time.After(10 * time.Millisecond):
		}
	}

	p.mu.Lock()
	p.bytesPlayed += uint64(len(data))
	p.mu.Unlock()
	if p.met != nil {
		p.met.RecordPlaybackPlayed(len(data))
	}
}

// failResponse records an unrecoverable response and switches to discard mode
// until the end-of-stream marker recycles the session.
func (p *Pipeline) failResponse(scanner *audio.HeaderScanner, err error) {
	p.logger.Error("Response unplayable - discarding until end of stream",
		slog.String("error", err.Error()))

	scanner.Reset()
	p.mu.Lock()
	p.discarding = true
	p.playing = false
	p.info = nil
	p.parseErrors++
	p.mu.Unlock()
	if p.met != nil {
		p.met.RecordPlaybackParseError()
	}
}

// finishResponse finalizes the current response and recycles the buffer and
// scanner for the next one.
func (p *Pipeline) finishResponse(scanner *audio.HeaderScanner) {
	scanner.Reset()
	p.buf.Reset()

	p.mu.Lock()
	wasDiscarding := p.discarding
	p.playing = false
	p.completed = true
	p.discarding = false
	p.info = nil
	p.mu.Unlock()

	if wasDiscarding {
		p.logger.Info("Discarded response finished")
	} else {
		p.logger.Info("Playback response finished")
	}
}
