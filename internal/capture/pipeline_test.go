package capture

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/transport"
)

// scriptedAudio returns queued chunks on demand and (0, nil) otherwise, so a
// test controls exactly how many chunks enter the pipeline and when.
type scriptedAudio struct {
	chunks chan []byte
	inited bool
	mu     sync.Mutex
}

func newScriptedAudio() *scriptedAudio {
	return &scriptedAudio{chunks: make(chan []byte, 64), inited: true}
}

func (a *scriptedAudio) feed(data []byte) { a.chunks <- data }

func (a *scriptedAudio) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inited = true
	return nil
}

func (a *scriptedAudio) Deinit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inited = false
	return nil
}

func (a *scriptedAudio) Read(buf []byte, timeout time.Duration) (int, error) {
	select {
	case chunk := <-a.chunks:
		return copy(buf, chunk), nil
	case <-time.After(timeout):
		return 0, nil
	}
}

func (a *scriptedAudio) Write(buf []byte, timeout time.Duration) (int, error) {
	return len(buf), nil
}

func (a *scriptedAudio) SetSampleRate(hz uint32) error { return nil }
func (a *scriptedAudio) ClearBuffers() error           { return nil }

func (a *scriptedAudio) IsInitialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inited
}

// recordingClient is an always-connected backend stub that records sent
// chunks. Setting busy makes CanStreamAudio report false; setting failSends
// makes every SendAudio fail.
type recordingClient struct {
	busy      bool
	failSends bool
	sends     [][]byte
	eosCount  int
	mu        sync.Mutex
}

func (c *recordingClient) Connect() error     { return nil }
func (c *recordingClient) Disconnect() error  { return nil }
func (c *recordingClient) IsConnected() bool  { return true }
func (c *recordingClient) SessionReady() bool { return true }

func (c *recordingClient) CanStreamAudio() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.busy
}

func (c *recordingClient) setBusy(busy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = busy
}

func (c *recordingClient) setFailSends(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSends = fail
}

func (c *recordingClient) SendAudio(data []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSends {
		return fmt.Errorf("backend rejected the chunk")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.sends = append(c.sends, buf)
	return nil
}

func (c *recordingClient) SendText(message string) error { return nil }

func (c *recordingClient) SendEndOfStream() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eosCount++
	return nil
}

func (c *recordingClient) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}

func (c *recordingClient) eos() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eosCount
}

func (c *recordingClient) GetPipelineStage() transport.PipelineStage { return transport.StageIdle }
func (c *recordingClient) IsPipelineActive() bool                    { return false }
func (c *recordingClient) SetObserver(obs transport.Observer)        {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() Config {
	cfg := DefaultConfig()
	// One captured chunk maps to one network chunk so counters are exact.
	cfg.CaptureChunkSize = 1024
	cfg.StreamChunkSize = 1024
	cfg.ReadTimeout = 20 * time.Millisecond
	cfg.DrainPollInterval = 5 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPipelineStreamsCapturedChunks(t *testing.T) {
	drv := newScriptedAudio()
	client := &recordingClient{}

	p, err := NewPipeline(testConfig(), drv, client, nil, testLogger())
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	defer p.Shutdown()

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	chunk := make([]byte, 1024)
	for i := 0; i < 4; i++ {
		chunk[0] = byte(i)
		drv.feed(append([]byte(nil), chunk...))
	}

	waitFor(t, "4 chunks sent", func() bool { return client.sendCount() == 4 })

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := client.eos(); got != 1 {
		t.Errorf("EOS count = %d, want 1", got)
	}
	if got := client.sendCount(); got != 4 {
		t.Errorf("sent chunks = %d, want 4", got)
	}
	for i, sent := range client.sends {
		if sent[0] != byte(i) {
			t.Errorf("chunk %d: first byte = %d, want %d (ordering broken)", i, sent[0], i)
		}
	}
}

func TestPipelineDropsWhileBackendBusy(t *testing.T) {
	drv := newScriptedAudio()
	client := &recordingClient{}

	p, err := NewPipeline(testConfig(), drv, client, nil, testLogger())
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	defer p.Shutdown()

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	chunk := make([]byte, 1024)
	feed := func(n int) {
		for i := 0; i < n; i++ {
			drv.feed(append([]byte(nil), chunk...))
		}
	}

	feed(2)
	waitFor(t, "first 2 chunks sent", func() bool { return client.sendCount() == 2 })

	client.setBusy(true)
	feed(3)
	waitFor(t, "3 chunks dropped", func() bool { return p.GetStats().ChunksDropped == 3 })

	client.setBusy(false)
	feed(5)
	waitFor(t, "remaining 5 chunks sent", func() bool { return client.sendCount() == 7 })

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	stats := p.GetStats()
	if stats.ChunksSent != 7 {
		t.Errorf("ChunksSent = %d, want 7", stats.ChunksSent)
	}
	if stats.ChunksDropped != 3 {
		t.Errorf("ChunksDropped = %d, want 3", stats.ChunksDropped)
	}
	if got := client.eos(); got != 1 {
		t.Errorf("EOS count = %d, want 1", got)
	}
}

func TestAbortedSessionStillSignalsEndOfStream(t *testing.T) {
	drv := newScriptedAudio()
	client := &recordingClient{}
	client.setFailSends(true)

	cfg := testConfig()
	cfg.SendFailureBudget = 3
	p, err := NewPipeline(cfg, drv, client, nil, testLogger())
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	defer p.Shutdown()

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		drv.feed(make([]byte, 1024))
	}

	// The budget aborts the session; the backend is still connected, so the
	// utterance must still be delimited.
	waitFor(t, "send failure budget consumed", func() bool {
		return p.GetStats().SendFailures == 3
	})
	waitFor(t, "EOS after abort", func() bool { return client.eos() == 1 })

	if got := client.sendCount(); got != 0 {
		t.Errorf("sent chunks = %d, want 0", got)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

// stuckAudio wedges every read until released, so stop-path waits can be
// exercised against a driver that never returns.
type stuckAudio struct {
	*scriptedAudio
	release chan struct{}
}

func (a *stuckAudio) Read(buf []byte, timeout time.Duration) (int, error) {
	<-a.release
	return 0, nil
}

func TestStopIsBoundedWithWedgedDriver(t *testing.T) {
	drv := &stuckAudio{scriptedAudio: newScriptedAudio(), release: make(chan struct{})}
	t.Cleanup(func() { close(drv.release) })
	client := &recordingClient{}

	cfg := testConfig()
	cfg.StopTimeout = 50 * time.Millisecond
	p, err := NewPipeline(cfg, drv, client, nil, testLogger())
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	defer p.Shutdown()

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the capture task enter the read

	start := time.Now()
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop() took %v with a wedged driver, want bounded by the stop timeout", elapsed)
	}
	if p.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestPipelineStopIsIdempotent(t *testing.T) {
	drv := newScriptedAudio()
	client := &recordingClient{}

	p, err := NewPipeline(testConfig(), drv, client, nil, testLogger())
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	defer p.Shutdown()

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := p.Stop(); err != nil {
			t.Fatalf("Stop() call %d error = %v", i+1, err)
		}
	}
	if p.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestPipelineRestartsClean(t *testing.T) {
	drv := newScriptedAudio()
	client := &recordingClient{}

	p, err := NewPipeline(testConfig(), drv, client, nil, testLogger())
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	defer p.Shutdown()

	for session := 0; session < 2; session++ {
		if err := p.Start(); err != nil {
			t.Fatalf("session %d: Start() error = %v", session, err)
		}
		want := client.sendCount() + 2
		drv.feed(make([]byte, 1024))
		drv.feed(make([]byte, 1024))
		waitFor(t, fmt.Sprintf("session %d chunks sent", session), func() bool {
			return client.sendCount() == want
		})
		if err := p.Stop(); err != nil {
			t.Fatalf("session %d: Stop() error = %v", session, err)
		}

		stats := p.GetStats()
		if stats.Ring.Occupied != 0 {
			t.Errorf("session %d: ring occupied = %d after stop, want 0", session, stats.Ring.Occupied)
		}
	}
	if got := client.eos(); got != 2 {
		t.Errorf("EOS count = %d, want 2", got)
	}
}
