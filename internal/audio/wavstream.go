package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/fault"
)

// StreamInfo holds the format of a WAV audio stream, extracted once per
// session from the RIFF header and immutable until the next session reset.
type StreamInfo struct {
	AudioFormat   uint16 `json:"audio_format"`
	Channels      uint16 `json:"channels"`
	SampleRate    uint32 `json:"sample_rate"`
	ByteRate      uint32 `json:"byte_rate"`
	BlockAlign    uint16 `json:"block_align"`
	BitsPerSample uint16 `json:"bits_per_sample"`
	DataSize      uint32 `json:"data_size"`
}

// ErrNeedMoreData is reported by Scan while the staged bytes do not yet
// contain a complete header. The caller feeds more data and scans again.
var ErrNeedMoreData = errors.New("need more data")

const (
	riffChunkHeaderLen = 8
	fmtChunkMinLen     = 16
)

// HeaderScanner locates and parses a WAV header inside a fragmented byte
// stream. The stream may begin mid-payload (a stale response tail, or a
// transport resync), so the RIFF signature is searched anywhere within a
// bounded accumulating staging window rather than only at offset zero.
//
// Scan reports ErrNeedMoreData until the header is complete, then returns the
// parsed StreamInfo together with the number of staged bytes consumed
// (skipped prefix plus header), so the remainder of the window becomes
// payload immediately. Exhausting the staging window without finding a
// signature is a fatal parse error for the session.
type HeaderScanner struct {
	window    []byte
	maxWindow int
}

// NewHeaderScanner creates a scanner with the given staging window limit.
func NewHeaderScanner(maxWindow int) *HeaderScanner {
	if maxWindow <= 0 {
		maxWindow = 8192
	}
	return &HeaderScanner{
		window:    make([]byte, 0, maxWindow),
		maxWindow: maxWindow,
	}
}

// Feed stages stream bytes, at most up to the window limit, and returns the
// count staged. Bytes past the limit stay with the caller: once the header
// parses they are payload, and a full window with no header fails the next
// Scan. A single chunk larger than the window must never poison the scan.
func (h *HeaderScanner) Feed(data []byte) int {
	room := h.maxWindow - len(h.window)
	if room <= 0 {
		return 0
	}
	n := min(len(data), room)
	h.window = append(h.window, data[:n]...)
	return n
}

// BytesStaged returns the number of bytes currently staged.
func (h *HeaderScanner) BytesStaged() int {
	return len(h.window)
}

// Remainder returns the staged bytes past the given consumed count. The
// returned slice aliases the staging window and is only valid until the next
// Feed or Reset.
func (h *HeaderScanner) Remainder(consumed int) []byte {
	if consumed < 0 || consumed > len(h.window) {
		return nil
	}
	return h.window[consumed:]
}

// Reset discards all staged bytes for the next session.
func (h *HeaderScanner) Reset() {
	h.window = h.window[:0]
}

// Scan searches the staged bytes for a complete WAV header. On success it
// returns the parsed format and the count of staged bytes consumed. While the
// header is incomplete it returns ErrNeedMoreData. Malformed headers and a
// signature that never appears within the window limit are fatal and wrap
// fault.ErrParse.
func (h *HeaderScanner) Scan() (*StreamInfo, int, error) {
	sig, err := h.findSignature()
	if err != nil {
		return nil, 0, err
	}

	info, headerLen, err := parseHeader(h.window[sig:])
	if err != nil {
		if errors.Is(err, ErrNeedMoreData) && len(h.window) >= h.maxWindow {
			return nil, 0, fmt.Errorf("%w: header incomplete at staging window limit (%d bytes)", fault.ErrParse, h.maxWindow)
		}
		return nil, 0, err
	}

	return info, sig + headerLen, nil
}

// findSignature locates "RIFF....WAVE" within the window. Candidate RIFF tags
// whose WAVE check fails are skipped and the search continues behind them.
func (h *HeaderScanner) findSignature() (int, error) {
	searchFrom := 0
	for {
		idx := bytes.Index(h.window[searchFrom:], []byte("RIFF"))
		if idx < 0 {
			if len(h.window) >= h.maxWindow {
				return 0, fmt.Errorf("%w: no RIFF signature within %d-byte staging window", fault.ErrParse, h.maxWindow)
			}
			return 0, ErrNeedMoreData
		}

		pos := searchFrom + idx
		if len(h.window)-pos < 12 {
			// Possible signature at the window tail; wait for the WAVE tag.
			if len(h.window) >= h.maxWindow {
				return 0, fmt.Errorf("%w: truncated RIFF signature at staging window limit", fault.ErrParse)
			}
			return 0, ErrNeedMoreData
		}

		if bytes.Equal(h.window[pos+8:pos+12], []byte("WAVE")) {
			return pos, nil
		}
		searchFrom = pos + 4
	}
}

// parseHeader walks the RIFF sub-chunks starting at the signature. Unknown
// chunks are skipped by their declared size, honoring the even-byte padding
// rule. It requires a 16-byte-or-larger PCM fmt chunk before the data chunk.
// headerLen is the offset of the first payload byte relative to the
// signature.
func parseHeader(b []byte) (*StreamInfo, int, error) {
	offset := 12 // past "RIFF", size, "WAVE"
	var info StreamInfo
	fmtFound := false

	for {
		if len(b)-offset < riffChunkHeaderLen {
			return nil, 0, ErrNeedMoreData
		}

		chunkID := b[offset : offset+4]
		chunkSize := int(binary.LittleEndian.Uint32(b[offset+4 : offset+8]))
		dataStart := offset + riffChunkHeaderLen

		switch {
		case bytes.Equal(chunkID, []byte("fmt ")):
			if chunkSize < fmtChunkMinLen {
				return nil, 0, fmt.Errorf("%w: fmt chunk too small (%d bytes)", fault.ErrParse, chunkSize)
			}
			if len(b)-dataStart < fmtChunkMinLen {
				return nil, 0, ErrNeedMoreData
			}
			info.AudioFormat = binary.LittleEndian.Uint16(b[dataStart : dataStart+2])
			info.Channels = binary.LittleEndian.Uint16(b[dataStart+2 : dataStart+4])
			info.SampleRate = binary.LittleEndian.Uint32(b[dataStart+4 : dataStart+8])
			info.ByteRate = binary.LittleEndian.Uint32(b[dataStart+8 : dataStart+12])
			info.BlockAlign = binary.LittleEndian.Uint16(b[dataStart+12 : dataStart+14])
			info.BitsPerSample = binary.LittleEndian.Uint16(b[dataStart+14 : dataStart+16])
			fmtFound = true

		case bytes.Equal(chunkID, []byte("data")):
			if !fmtFound {
				return nil, 0, fmt.Errorf("%w: data chunk before fmt chunk", fault.ErrParse)
			}
			if info.AudioFormat != 1 {
				return nil, 0, fmt.Errorf("%w: unsupported audio format %d (only PCM)", fault.ErrParse, info.AudioFormat)
			}
			info.DataSize = uint32(chunkSize)
			return &info, dataStart, nil
		}

		// Skip the chunk body; sizes are padded to an even byte count.
		advance := chunkSize
		if advance%2 == 1 {
			advance++
		}
		next := dataStart + advance
		if next > len(b) {
			return nil, 0, ErrNeedMoreData
		}
		offset = next
	}
}
