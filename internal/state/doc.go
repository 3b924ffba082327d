// Package state implements the device mode state machine. The camera and the
// audio codec share clock lines and can never be initialized at the same
// time, so every mode change follows the same strict order: stop the
// pipelines, take the hardware lock, deinitialize the old owner, initialize
// the new one, release the lock, start the pipelines. Failed transitions land
// in an error state with a bounded automatic recovery budget before the
// device gives up and shuts down.
package state
