package audio

import (
	"bytes"
	"errors"
	"testing"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/fault"
)

func TestRingBufferWriteRead(t *testing.T) {
	r, err := NewRingBuffer(16)
	if err != nil {
		t.Fatalf("NewRingBuffer() error = %v", err)
	}

	data := []byte{1, 2, 3, 4, 5}
	if err := r.Write(data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := r.Occupied(); got != 5 {
		t.Errorf("Occupied() = %d, want 5", got)
	}

	out := make([]byte, 8)
	n := r.Read(out)
	if n != 5 {
		t.Fatalf("Read() = %d, want 5", n)
	}
	if !bytes.Equal(out[:n], data) {
		t.Errorf("Read() data = %v, want %v", out[:n], data)
	}
	if got := r.Occupied(); got != 0 {
		t.Errorf("Occupied() = %d after full drain, want 0", got)
	}
}

func TestRingBufferWrapAround(t *testing.T) {
	r, _ := NewRingBuffer(8)

	// Advance positions near the end, then write across the boundary.
	if err := r.Write([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out := make([]byte, 6)
	if n := r.Read(out); n != 6 {
		t.Fatalf("Read() = %d, want 6", n)
	}

	wrapped := []byte{7, 8, 9, 10, 11}
	if err := r.Write(wrapped); err != nil {
		t.Fatalf("wrapping Write() error = %v", err)
	}
	n := r.Read(out)
	if !bytes.Equal(out[:n], wrapped) {
		t.Errorf("wrapped Read() = %v, want %v", out[:n], wrapped)
	}
}

func TestRingBufferRejectsOversizedWriteWholly(t *testing.T) {
	r, _ := NewRingBuffer(8)

	if err := r.Write([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	err := r.Write([]byte{7, 8, 9})
	if !errors.Is(err, fault.ErrResourceExhausted) {
		t.Fatalf("over-capacity Write() error = %v, want ErrResourceExhausted", err)
	}

	// Nothing partial may have been applied.
	if got := r.Occupied(); got != 6 {
		t.Errorf("Occupied() = %d after rejected write, want 6", got)
	}
	stats := r.Stats()
	if stats.DroppedWrites != 1 || stats.DroppedBytes != 3 {
		t.Errorf("drop stats = %+v, want 1 write / 3 bytes", stats)
	}

	out := make([]byte, 8)
	n := r.Read(out)
	if !bytes.Equal(out[:n], []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("Read() after rejected write = %v, want original data intact", out[:n])
	}
}

func TestRingBufferOccupancyInvariant(t *testing.T) {
	r, _ := NewRingBuffer(64)

	chunk := []byte{1, 2, 3, 4, 5, 6, 7}
	out := make([]byte, 5)
	for i := 0; i < 100; i++ {
		_ = r.Write(chunk)
		r.Read(out)
		if r.Occupied()+r.Free() != r.Capacity() {
			t.Fatalf("iteration %d: occupied %d + free %d != capacity %d",
				i, r.Occupied(), r.Free(), r.Capacity())
		}
	}
}

func TestRingBufferReset(t *testing.T) {
	r, _ := NewRingBuffer(8)
	_ = r.Write([]byte{1, 2, 3})
	_ = r.Write(make([]byte, 6)) // rejected, counts a drop

	r.Reset()

	stats := r.Stats()
	if stats.Occupied != 0 || stats.DroppedWrites != 0 || stats.DroppedBytes != 0 {
		t.Errorf("stats after Reset = %+v, want all zero", stats)
	}
	if n := r.Read(make([]byte, 4)); n != 0 {
		t.Errorf("Read() after Reset = %d, want 0", n)
	}
}

func TestRingBufferInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		if _, err := NewRingBuffer(capacity); !errors.Is(err, fault.ErrInvalidArgument) {
			t.Errorf("NewRingBuffer(%d) error = %v, want ErrInvalidArgument", capacity, err)
		}
	}
}
