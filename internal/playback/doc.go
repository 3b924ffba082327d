// Package playback implements the speaker pipeline: inbound audio from the
// backend is buffered whole-response in a blocking stream buffer, the WAV
// header is located and parsed out of the fragment stream, and the PCM
// payload is rendered to the audio driver with mono-to-stereo expansion when
// the stream calls for it.
package playback
