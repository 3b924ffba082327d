package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/fault"
)

// buildHeader assembles a minimal 44-byte PCM header.
func buildHeader(format, channels uint16, sampleRate uint32, bits uint16, dataSize uint32) []byte {
	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+dataSize))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, format)
	binary.Write(&b, binary.LittleEndian, channels)
	binary.Write(&b, binary.LittleEndian, sampleRate)
	binary.Write(&b, binary.LittleEndian, sampleRate*uint32(channels)*uint32(bits)/8)
	binary.Write(&b, binary.LittleEndian, channels*bits/8)
	binary.Write(&b, binary.LittleEndian, bits)
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, dataSize)
	return b.Bytes()
}

func TestScanMinimalHeader(t *testing.T) {
	h := NewHeaderScanner(8192)
	header := buildHeader(1, 1, 24000, 16, 1000)
	if staged := h.Feed(header); staged != len(header) {
		t.Fatalf("Feed() staged %d bytes, want %d", staged, len(header))
	}

	info, consumed, err := h.Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if consumed != 44 {
		t.Errorf("consumed = %d, want 44", consumed)
	}
	if info.SampleRate != 24000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Errorf("info = %+v, want 24 kHz mono 16-bit", info)
	}
	if info.DataSize != 1000 {
		t.Errorf("DataSize = %d, want 1000", info.DataSize)
	}
}

func TestScanHeaderAfterPrefix(t *testing.T) {
	const prefixLen = 777
	h := NewHeaderScanner(8192)

	stream := append(bytes.Repeat([]byte{0x5A}, prefixLen), buildHeader(1, 2, 44100, 16, 64)...)
	payload := []byte{1, 2, 3, 4}
	stream = append(stream, payload...)

	if staged := h.Feed(stream); staged != len(stream) {
		t.Fatalf("Feed() staged %d bytes, want %d", staged, len(stream))
	}
	info, consumed, err := h.Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if consumed != prefixLen+44 {
		t.Errorf("consumed = %d, want %d (prefix + header)", consumed, prefixLen+44)
	}
	if info.Channels != 2 || info.SampleRate != 44100 {
		t.Errorf("info = %+v, want 44.1 kHz stereo", info)
	}
	if rem := h.Remainder(consumed); !bytes.Equal(rem, payload) {
		t.Errorf("Remainder() = %v, want %v", rem, payload)
	}
}

// Feeding the header one byte at a time must come to the same result as one
// shot: the scanner may report ErrNeedMoreData at every split point but never
// a fatal error.
func TestScanSplitAtEveryPoint(t *testing.T) {
	header := buildHeader(1, 1, 16000, 16, 512)

	for split := 1; split < len(header); split++ {
		h := NewHeaderScanner(8192)

		h.Feed(header[:split])
		if _, _, err := h.Scan(); !errors.Is(err, ErrNeedMoreData) {
			t.Fatalf("split %d: partial Scan() error = %v, want ErrNeedMoreData", split, err)
		}

		h.Feed(header[split:])
		info, consumed, err := h.Scan()
		if err != nil {
			t.Fatalf("split %d: Scan() error = %v", split, err)
		}
		if consumed != 44 || info.SampleRate != 16000 {
			t.Fatalf("split %d: consumed=%d info=%+v", split, consumed, info)
		}
	}
}

func TestScanSkipsUnknownChunks(t *testing.T) {
	// RIFF/WAVE, then a LIST chunk with odd size (padded), then fmt and data.
	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(0))
	b.WriteString("WAVE")
	b.WriteString("LIST")
	binary.Write(&b, binary.LittleEndian, uint32(5))
	b.Write([]byte{1, 2, 3, 4, 5, 0}) // 5 bytes + pad

	full := buildHeader(1, 1, 22050, 16, 128)
	b.Write(full[12:]) // fmt and data chunks

	h := NewHeaderScanner(8192)
	h.Feed(b.Bytes())
	info, consumed, err := h.Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if info.SampleRate != 22050 {
		t.Errorf("SampleRate = %d, want 22050", info.SampleRate)
	}
	if consumed != b.Len() {
		t.Errorf("consumed = %d, want %d", consumed, b.Len())
	}
}

func TestScanRejectsNonPCM(t *testing.T) {
	h := NewHeaderScanner(8192)
	h.Feed(buildHeader(3, 1, 16000, 32, 100)) // IEEE float

	if _, _, err := h.Scan(); !errors.Is(err, fault.ErrParse) {
		t.Fatalf("Scan() of float stream error = %v, want ErrParse", err)
	}
}

func TestScanRejectsDataBeforeFmt(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(0))
	b.WriteString("WAVE")
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	b.Write(make([]byte, 16))

	h := NewHeaderScanner(8192)
	h.Feed(b.Bytes())

	if _, _, err := h.Scan(); !errors.Is(err, fault.ErrParse) {
		t.Fatalf("Scan() with data-before-fmt error = %v, want ErrParse", err)
	}
}

func TestScanWindowOverflowIsFatal(t *testing.T) {
	h := NewHeaderScanner(256)

	if staged := h.Feed(make([]byte, 256)); staged != 256 {
		t.Fatalf("Feed() at window limit staged %d bytes, want 256", staged)
	}
	if _, _, err := h.Scan(); !errors.Is(err, fault.ErrParse) {
		t.Fatalf("Scan() of headerless full window error = %v, want ErrParse", err)
	}

	// A full window accepts nothing more; it never grows unbounded.
	if staged := h.Feed([]byte{1}); staged != 0 {
		t.Fatalf("Feed() past window limit staged %d bytes, want 0", staged)
	}
}

// A single chunk longer than the whole staging window must not fail the scan:
// the scanner keeps as much as fits, and a header within that portion parses.
func TestScanChunkLargerThanWindow(t *testing.T) {
	h := NewHeaderScanner(256)

	stream := append(buildHeader(1, 1, 16000, 16, 4096), make([]byte, 1024)...)
	staged := h.Feed(stream)
	if staged != 256 {
		t.Fatalf("Feed() staged %d bytes, want 256 (window limit)", staged)
	}

	info, consumed, err := h.Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if consumed != 44 {
		t.Errorf("consumed = %d, want 44", consumed)
	}
	if info.SampleRate != 16000 || info.DataSize != 4096 {
		t.Errorf("info = %+v, want 16 kHz with 4096 data bytes", info)
	}
	if rem := h.Remainder(consumed); len(rem) != staged-44 {
		t.Errorf("Remainder() length = %d, want %d", len(rem), staged-44)
	}
}

func TestScanFalseSignatureCandidate(t *testing.T) {
	// "RIFF" without the WAVE tag must be skipped, the real header behind it
	// still found.
	decoy := []byte("RIFFxxxxJUNK")
	stream := append(decoy, buildHeader(1, 1, 16000, 16, 64)...)

	h := NewHeaderScanner(8192)
	h.Feed(stream)

	info, consumed, err := h.Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if consumed != len(decoy)+44 {
		t.Errorf("consumed = %d, want %d", consumed, len(decoy)+44)
	}
	if info.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", info.SampleRate)
	}
}

func TestScannerReset(t *testing.T) {
	h := NewHeaderScanner(128)
	h.Feed(make([]byte, 100))
	h.Reset()

	if got := h.BytesStaged(); got != 0 {
		t.Errorf("BytesStaged() = %d after Reset, want 0", got)
	}
	if staged := h.Feed(make([]byte, 128)); staged != 128 {
		t.Errorf("Feed() after Reset staged %d bytes, want 128", staged)
	}
}
