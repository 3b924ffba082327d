package audio

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/fault"
)

func TestStreamBufferSendReceive(t *testing.T) {
	s, err := NewStreamBuffer(64)
	if err != nil {
		t.Fatalf("NewStreamBuffer() error = %v", err)
	}

	data := []byte{1, 2, 3, 4}
	if err := s.Send(data, time.Second); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	out := make([]byte, 16)
	n, err := s.Receive(out, time.Second)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !bytes.Equal(out[:n], data) {
		t.Errorf("Receive() = %v, want %v", out[:n], data)
	}
}

func TestStreamBufferReceiveTimesOutWhenEmpty(t *testing.T) {
	s, _ := NewStreamBuffer(64)

	_, err := s.Receive(make([]byte, 8), 30*time.Millisecond)
	if !errors.Is(err, fault.ErrTimeout) {
		t.Fatalf("Receive() on empty buffer error = %v, want ErrTimeout", err)
	}
}

func TestStreamBufferSendBlocksUntilSpace(t *testing.T) {
	s, _ := NewStreamBuffer(8)

	if err := s.Send(make([]byte, 8), time.Second); err != nil {
		t.Fatalf("fill Send() error = %v", err)
	}

	released := make(chan error, 1)
	go func() {
		released <- s.Send([]byte{9, 9}, 2*time.Second)
	}()

	// The producer must be parked, not failing.
	select {
	case err := <-released:
		t.Fatalf("Send() returned %v while buffer was full", err)
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := s.Receive(make([]byte, 4), time.Second); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	select {
	case err := <-released:
		if err != nil {
			t.Fatalf("blocked Send() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send() still blocked after space was freed")
	}
}

func TestStreamBufferEndOfStream(t *testing.T) {
	s, _ := NewStreamBuffer(64)

	_ = s.Send([]byte{1, 2, 3}, time.Second)
	s.MarkEnd()

	// Buffered bytes drain first.
	out := make([]byte, 8)
	n, err := s.Receive(out, time.Second)
	if err != nil || n != 3 {
		t.Fatalf("Receive() = %d, %v; want 3, nil", n, err)
	}

	// Then the end marker surfaces.
	if _, err := s.Receive(out, time.Second); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("Receive() after drain error = %v, want ErrEndOfStream", err)
	}

	// Late sends are rejected.
	if err := s.Send([]byte{4}, 50*time.Millisecond); !errors.Is(err, fault.ErrInvalidState) {
		t.Errorf("Send() after MarkEnd error = %v, want ErrInvalidState", err)
	}
}

func TestStreamBufferInterruptUnblocksBothSides(t *testing.T) {
	s, _ := NewStreamBuffer(8)
	_ = s.Send(make([]byte, 8), time.Second)

	empty, _ := NewStreamBuffer(8)

	var wg sync.WaitGroup
	results := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0] = s.Send([]byte{1}, 5*time.Second)
	}()
	go func() {
		defer wg.Done()
		_, results[1] = empty.Receive(make([]byte, 4), 5*time.Second)
	}()

	time.Sleep(30 * time.Millisecond)
	s.Interrupt()
	empty.Interrupt()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("interrupted operations did not return")
	}

	if !errors.Is(results[0], fault.ErrInterrupted) {
		t.Errorf("blocked Send() after Interrupt error = %v, want ErrInterrupted", results[0])
	}
	if !errors.Is(results[1], fault.ErrInterrupted) {
		t.Errorf("blocked Receive() after Interrupt error = %v, want ErrInterrupted", results[1])
	}
}

func TestStreamBufferResetRearmsAfterInterrupt(t *testing.T) {
	s, _ := NewStreamBuffer(16)

	s.Interrupt()
	if err := s.Send([]byte{1}, 50*time.Millisecond); !errors.Is(err, fault.ErrInterrupted) {
		t.Fatalf("Send() on interrupted buffer error = %v, want ErrInterrupted", err)
	}

	s.Reset()

	if err := s.Send([]byte{1, 2}, time.Second); err != nil {
		t.Fatalf("Send() after Reset error = %v", err)
	}
	out := make([]byte, 4)
	n, err := s.Receive(out, time.Second)
	if err != nil || n != 2 {
		t.Fatalf("Receive() after Reset = %d, %v; want 2, nil", n, err)
	}
	if s.Ended() {
		t.Error("Ended() = true after Reset")
	}
}

func TestStreamBufferRejectsOversizedChunk(t *testing.T) {
	s, _ := NewStreamBuffer(8)

	err := s.Send(make([]byte, 9), time.Second)
	if !errors.Is(err, fault.ErrResourceExhausted) {
		t.Fatalf("Send() larger than capacity error = %v, want ErrResourceExhausted", err)
	}
}

func TestStreamBufferOccupancyInvariant(t *testing.T) {
	s, _ := NewStreamBuffer(32)

	out := make([]byte, 5)
	for i := 0; i < 50; i++ {
		_ = s.Send([]byte{1, 2, 3, 4, 5, 6, 7}, time.Second)
		_, _ = s.Receive(out, time.Second)
		if s.Occupied()+s.Free() != s.Capacity() {
			t.Fatalf("iteration %d: occupied %d + free %d != capacity %d",
				i, s.Occupied(), s.Free(), s.Capacity())
		}
	}
}
