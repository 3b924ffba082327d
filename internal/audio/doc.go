// Package audio provides the buffering and stream-framing primitives shared
// by the capture and playback pipelines: a fixed-capacity ring buffer for the
// microphone path, a blocking byte-stream buffer for the speaker path, a
// streaming WAV header scanner that tolerates fragmented delivery, and PCM
// channel-layout conversion.
package audio
