package audio

import (
	"fmt"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/fault"
)

// ExpandMonoToStereo duplicates 16-bit mono PCM samples into an interleaved
// stereo layout, writing into dst. dst must hold 2*len(src) bytes. It returns
// the number of bytes written.
func ExpandMonoToStereo(src, dst []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	if len(src)%2 != 0 {
		return 0, fmt.Errorf("%w: mono PCM length must be even, got %d", fault.ErrInvalidArgument, len(src))
	}
	if len(dst) < len(src)*2 {
		return 0, fmt.Errorf("%w: stereo scratch too small (%d < %d)", fault.ErrInvalidArgument, len(dst), len(src)*2)
	}

	for i := 0; i < len(src); i += 2 {
		lo, hi := src[i], src[i+1]
		dst[2*i] = lo
		dst[2*i+1] = hi
		dst[2*i+2] = lo
		dst[2*i+3] = hi
	}

	return len(src) * 2, nil
}
