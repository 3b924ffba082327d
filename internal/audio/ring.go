package audio

import (
	"fmt"
	"sync"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/fault"
)

// RingBuffer is a fixed-capacity circular byte buffer for real-time
// producer/consumer handoff between the capture task and the streaming task.
// A write that exceeds the free space is rejected wholly, never partially
// applied, so the capture cadence is preserved and chunk boundaries stay
// intact. Index and occupancy mutation always happen under the buffer's own
// lock; the invariant occupied + free == capacity holds at every observation.
type RingBuffer struct {
	buf      []byte
	capacity int
	readPos  int
	writePos int
	occupied int

	// Drop accounting for backpressure visibility
	droppedWrites uint64
	droppedBytes  uint64

	mu sync.Mutex
}

// RingStats is a snapshot of ring buffer occupancy and drop counters.
type RingStats struct {
	Capacity      int    `json:"capacity"`
	Occupied      int    `json:"occupied"`
	Free          int    `json:"free"`
	DroppedWrites uint64 `json:"dropped_writes"`
	DroppedBytes  uint64 `json:"dropped_bytes"`
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
func NewRingBuffer(capacity int) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: ring capacity must be positive, got %d", fault.ErrInvalidArgument, capacity)
	}

	return &RingBuffer{
		buf:      make([]byte, capacity),
		capacity: capacity,
	}, nil
}

// Write copies data into the ring. If the free space cannot hold the whole
// chunk the write is rejected with ErrResourceExhausted and the drop counters
// are advanced; no bytes are applied.
func (r *RingBuffer) Write(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty write", fault.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capacity-r.occupied < len(data) {
		r.droppedWrites++
		r.droppedBytes += uint64(len(data))
		return fmt.Errorf("%w: ring full (%d occupied, %d requested)", fault.ErrResourceExhausted, r.occupied, len(data))
	}

	// At most two segments: tail of the buffer, then wrap to the head.
	first := copy(r.buf[r.writePos:], data)
	if first < len(data) {
		copy(r.buf, data[first:])
	}
	r.writePos = (r.writePos + len(data)) % r.capacity
	r.occupied += len(data)

	return nil
}

// Read copies up to len(p) bytes out of the ring and returns the number of
// bytes read. A read from an empty ring returns 0 without error.
func (r *RingBuffer) Read(p []byte) int {
	if len(p) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(p)
	if n > r.occupied {
		n = r.occupied
	}
	if n == 0 {
		return 0
	}

	first := copy(p[:n], r.buf[r.readPos:min(r.readPos+n, r.capacity)])
	if first < n {
		copy(p[first:n], r.buf)
	}
	r.readPos = (r.readPos + n) % r.capacity
	r.occupied -= n

	return n
}

// Occupied returns the number of readable bytes.
func (r *RingBuffer) Occupied() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.occupied
}

// Free returns the number of writable bytes.
func (r *RingBuffer) Free() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capacity - r.occupied
}

// Capacity returns the fixed capacity in bytes.
func (r *RingBuffer) Capacity() int {
	return r.capacity
}

// Reset empties the buffer and returns both positions to zero. Drop counters
// are cleared as well; every pipeline start/stop begins from a clean ring.
func (r *RingBuffer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.readPos = 0
	r.writePos = 0
	r.occupied = 0
	r.droppedWrites = 0
	r.droppedBytes = 0
}

// Stats returns a consistent snapshot of occupancy and drop counters.
func (r *RingBuffer) Stats() RingStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RingStats{
		Capacity:      r.capacity,
		Occupied:      r.occupied,
		Free:          r.capacity - r.occupied,
		DroppedWrites: r.droppedWrites,
		DroppedBytes:  r.droppedBytes,
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
