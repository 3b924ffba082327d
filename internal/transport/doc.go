// Package transport defines the voice-backend client contract consumed by
// the pipelines and the mode state machine, together with a websocket
// implementation. Outbound traffic is binary PCM plus small JSON control
// messages; inbound traffic is binary WAV audio plus JSON status messages
// carrying the backend pipeline stage.
package transport
