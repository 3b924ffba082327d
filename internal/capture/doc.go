// Package capture implements the microphone pipeline: a capture task pulls
// fixed-size PCM chunks from the audio driver into a ring buffer, and a
// streaming task drains the ring into the backend connection. The two tasks
// are decoupled so a slow network degrades by dropping whole chunks at the
// ring instead of stalling the capture cadence.
package capture
