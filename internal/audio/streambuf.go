package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/fault"
)

// StreamBuffer is a blocking byte FIFO sized for a whole synthesized response.
// The transport ingest callback is the single producer, the playback task the
// single consumer. Send and Receive take explicit deadlines and return
// fault.ErrTimeout when they expire; Interrupt force-unblocks both sides so a
// pipeline stop never has to kill a task parked on the buffer.
//
// The occupancy invariant matches RingBuffer: occupied + free == capacity at
// every observation, and an over-capacity Send never partially applies.
type StreamBuffer struct {
	buf      []byte
	capacity int
	readPos  int
	writePos int
	occupied int

	// ended is set by MarkEnd when the producer has delivered the explicit
	// end-of-audio marker; Receive drains remaining bytes, then reports it.
	ended bool

	// interrupted force-fails all pending and future waits until Reset.
	interrupted bool

	dataReady  chan struct{} // signaled on writes and MarkEnd
	spaceReady chan struct{} // signaled on reads
	interrupt  chan struct{} // closed by Interrupt, recreated by Reset

	mu sync.Mutex
}

// ErrEndOfStream is returned by Receive once the producer has marked the end
// of the audio stream and all buffered bytes have been drained.
var ErrEndOfStream = fmt.Errorf("end of stream")

// NewStreamBuffer creates a stream buffer with the given capacity in bytes.
func NewStreamBuffer(capacity int) (*StreamBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: stream buffer capacity must be positive, got %d", fault.ErrInvalidArgument, capacity)
	}

	return &StreamBuffer{
		buf:        make([]byte, capacity),
		capacity:   capacity,
		dataReady:  make(chan struct{}, 1),
		spaceReady: make(chan struct{}, 1),
		interrupt:  make(chan struct{}),
	}, nil
}

// Send blocks until the whole chunk fits, the timeout expires, or the buffer
// is interrupted. Chunks larger than the total capacity are rejected
// immediately since they can never fit.
func (s *StreamBuffer) Send(data []byte, timeout time.Duration) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty send", fault.ErrInvalidArgument)
	}
	if len(data) > s.capacity {
		return fmt.Errorf("%w: chunk %d exceeds buffer capacity %d", fault.ErrResourceExhausted, len(data), s.capacity)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		if s.interrupted {
			s.mu.Unlock()
			return fault.ErrInterrupted
		}
		if s.ended {
			s.mu.Unlock()
			return fmt.Errorf("%w: send after end of stream", fault.ErrInvalidState)
		}
		if s.capacity-s.occupied >= len(data) {
			first := copy(s.buf[s.writePos:], data)
			if first < len(data) {
				copy(s.buf, data[first:])
			}
			s.writePos = (s.writePos + len(data)) % s.capacity
			s.occupied += len(data)
			interruptCh := s.interrupt
			s.mu.Unlock()
			s.signal(s.dataReady, interruptCh)
			return nil
		}
		interruptCh := s.interrupt
		s.mu.Unlock()

		select {
		case <-s.spaceReady:
		case <-interruptCh:
			return fault.ErrInterrupted
		case <-deadline.C:
			return fmt.Errorf("%w: stream buffer full after %v", fault.ErrTimeout, timeout)
		}
	}
}

// Receive blocks until at least one byte is available, the end-of-stream
// marker is reached with the buffer drained, the timeout expires, or the
// buffer is interrupted. It returns the number of bytes copied into p.
func (s *StreamBuffer) Receive(p []byte, timeout time.Duration) (int, error) {
	if len(p) == 0 {
		return 0, fmt.Errorf("%w: empty receive buffer", fault.ErrInvalidArgument)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		if s.interrupted {
			s.mu.Unlock()
			return 0, fault.ErrInterrupted
		}
		if s.occupied > 0 {
			n := min(len(p), s.occupied)
			first := copy(p[:n], s.buf[s.readPos:min(s.readPos+n, s.capacity)])
			if first < n {
				copy(p[first:n], s.buf)
			}
			s.readPos = (s.readPos + n) % s.capacity
			s.occupied -= n
			interruptCh := s.interrupt
			s.mu.Unlock()
			s.signal(s.spaceReady, interruptCh)
			return n, nil
		}
		if s.ended {
			s.mu.Unlock()
			return 0, ErrEndOfStream
		}
		interruptCh := s.interrupt
		s.mu.Unlock()

		select {
		case <-s.dataReady:
		case <-interruptCh:
			return 0, fault.ErrInterrupted
		case <-deadline.C:
			return 0, fmt.Errorf("%w: no stream data after %v", fault.ErrTimeout, timeout)
		}
	}
}

// MarkEnd records the producer's explicit end-of-audio marker. The consumer
// keeps draining buffered bytes; once empty, Receive returns ErrEndOfStream.
func (s *StreamBuffer) MarkEnd() {
	s.mu.Lock()
	s.ended = true
	interruptCh := s.interrupt
	s.mu.Unlock()
	s.signal(s.dataReady, interruptCh)
}

// Interrupt force-unblocks every pending Send/Receive with ErrInterrupted and
// fails all subsequent waits until the next Reset. Safe to call repeatedly.
func (s *StreamBuffer) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interrupted {
		return
	}
	s.interrupted = true
	close(s.interrupt)
}

// Reset empties the buffer and clears the end and interrupt flags, preparing
// it for the next session. Must only be called once the consumer task has
// actually exited.
func (s *StreamBuffer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readPos = 0
	s.writePos = 0
	s.occupied = 0
	s.ended = false
	if s.interrupted {
		s.interrupted = false
		s.interrupt = make(chan struct{})
	}

	// Drain stale wakeups so the next session starts clean.
	select {
	case <-s.dataReady:
	default:
	}
	select {
	case <-s.spaceReady:
	default:
	}
}

// Occupied returns the number of buffered, unread bytes.
func (s *StreamBuffer) Occupied() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occupied
}

// Free returns the number of writable bytes.
func (s *StreamBuffer) Free() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity - s.occupied
}

// Capacity returns the fixed capacity in bytes.
func (s *StreamBuffer) Capacity() int {
	return s.capacity
}

// Ended reports whether the end-of-audio marker has been recorded.
func (s *StreamBuffer) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// signal posts a non-blocking wakeup unless the buffer is being torn down.
func (s *StreamBuffer) signal(ch chan struct{}, interruptCh chan struct{}) {
	select {
	case ch <- struct{}{}:
	case <-interruptCh:
	default:
	}
}
