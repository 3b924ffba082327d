package driver

import "time"

// Audio is the full-duplex audio codec contract. Read pulls microphone PCM,
// Write pushes speaker PCM. Init/Deinit bracket exclusive ownership of the
// shared clock lines; every call reports a specific failure kind wrapped
// around the fault package sentinels.
type Audio interface {
	Init() error
	Deinit() error

	// Read fills buf with captured PCM and returns the byte count. A timeout
	// with no data is not an error; it returns (0, nil).
	Read(buf []byte, timeout time.Duration) (int, error)

	// Write renders PCM to the speaker, blocking until the driver accepts the
	// whole buffer or fails. A zero timeout means block indefinitely.
	Write(buf []byte, timeout time.Duration) (int, error)

	// SetSampleRate reconfigures the output clock to match a decoded stream.
	SetSampleRate(hz uint32) error

	// ClearBuffers drops any queued DMA data on both directions.
	ClearBuffers() error

	IsInitialized() bool
}

// Camera is the image sensor contract.
type Camera interface {
	Init() error
	Deinit() error

	// CaptureFrame blocks until one frame is available or the sensor fails.
	CaptureFrame() (*Frame, error)

	IsInitialized() bool
}

// Frame is one captured image.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Format    string // e.g. "jpeg"
	Timestamp time.Time
}
