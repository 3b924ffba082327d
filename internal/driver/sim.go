package driver

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/fault"
)

// SimAudio is a software stand-in for the full-duplex codec. Read produces a
// low-amplitude sine so the capture path carries plausible PCM; Write paces
// itself to the configured byte rate so playback timing resembles hardware.
type SimAudio struct {
	sampleRate uint32
	phase      float64

	initialized  bool
	bytesRead    uint64
	bytesWritten uint64

	mu sync.Mutex
}

// NewSimAudio creates a simulated codec at the given capture sample rate.
func NewSimAudio(sampleRate uint32) *SimAudio {
	if sampleRate == 0 {
		sampleRate = 16000
	}
	return &SimAudio{sampleRate: sampleRate}
}

func (a *SimAudio) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}
	a.initialized = true
	a.phase = 0
	return nil
}

func (a *SimAudio) Deinit() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.initialized = false
	return nil
}

func (a *SimAudio) Read(buf []byte, timeout time.Duration) (int, error) {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return 0, fmt.Errorf("%w: audio driver not initialized", fault.ErrHardware)
	}
	rate := a.sampleRate
	a.mu.Unlock()

	// Pace the read like a real capture DMA: the chunk represents
	// len/2 samples of mono 16-bit audio.
	samples := len(buf) / 2
	wait := time.Duration(samples) * time.Second / time.Duration(rate)
	if timeout > 0 && wait > timeout {
		time.Sleep(timeout)
		return 0, nil
	}
	time.Sleep(wait)

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return 0, fmt.Errorf("%w: audio driver deinitialized during read", fault.ErrHardware)
	}

	const amplitude = 2000
	step := 2 * math.Pi * 440 / float64(rate)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(a.phase))
		buf[2*i] = byte(v)
		buf[2*i+1] = byte(v >> 8)
		a.phase += step
	}
	a.bytesRead += uint64(samples * 2)
	return samples * 2, nil
}

func (a *SimAudio) Write(buf []byte, timeout time.Duration) (int, error) {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return 0, fmt.Errorf("%w: audio driver not initialized", fault.ErrHardware)
	}
	rate := a.sampleRate
	a.mu.Unlock()

	// Stereo 16-bit output: 4 bytes per frame.
	frames := len(buf) / 4
	wait := time.Duration(frames) * time.Second / time.Duration(rate)
	if timeout > 0 && wait > timeout {
		wait = timeout
	}
	time.Sleep(wait)

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return 0, fmt.Errorf("%w: audio driver deinitialized during write", fault.ErrHardware)
	}
	a.bytesWritten += uint64(len(buf))
	return len(buf), nil
}

func (a *SimAudio) SetSampleRate(hz uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return fmt.Errorf("%w: audio driver not initialized", fault.ErrHardware)
	}
	if hz == 0 {
		return fmt.Errorf("%w: sample rate must be positive", fault.ErrInvalidArgument)
	}
	a.sampleRate = hz
	return nil
}

func (a *SimAudio) ClearBuffers() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return fmt.Errorf("%w: audio driver not initialized", fault.ErrHardware)
	}
	return nil
}

func (a *SimAudio) IsInitialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// SimCamera is a software stand-in for the image sensor. CaptureFrame
// returns a minimal JPEG-tagged payload after a short exposure delay.
type SimCamera struct {
	initialized bool
	captures    uint64
	mu          sync.Mutex
}

// NewSimCamera creates a simulated camera.
func NewSimCamera() *SimCamera {
	return &SimCamera{}
}

func (c *SimCamera) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	c.initialized = true
	return nil
}

func (c *SimCamera) Deinit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.initialized = false
	return nil
}

func (c *SimCamera) CaptureFrame() (*Frame, error) {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: camera not initialized", fault.ErrHardware)
	}
	c.mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return nil, fmt.Errorf("%w: camera deinitialized during capture", fault.ErrHardware)
	}
	c.captures++

	// JPEG SOI/EOI markers around a counter byte; enough for upload tests.
	data := []byte{0xFF, 0xD8, byte(c.captures), 0xFF, 0xD9}
	return &Frame{
		Data:      data,
		Width:     640,
		Height:    480,
		Format:    "jpeg",
		Timestamp: time.Now(),
	}, nil
}

func (c *SimCamera) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}
