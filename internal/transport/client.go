package transport

import (
	"strings"
	"time"
)

// PipelineStage mirrors the backend-reported phase of a voice interaction.
// It is a read-only input to guardrails and LED policy on the device.
type PipelineStage int

const (
	StageIdle PipelineStage = iota
	StageTranscription
	StageLLM
	StageTTS
	StageComplete
	StageError
)

// String returns the wire/log name of the stage.
func (s PipelineStage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageTranscription:
		return "transcription"
	case StageLLM:
		return "llm"
	case StageTTS:
		return "tts"
	case StageComplete:
		return "complete"
	case StageError:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether the backend is mid-processing; while true the device
// must not stream fresh microphone audio into the session.
func (s PipelineStage) Active() bool {
	return s == StageTranscription || s == StageLLM || s == StageTTS
}

// ParseStage maps a wire stage name to a PipelineStage. Unknown names map to
// StageIdle so a newer backend cannot wedge the device guardrails.
func ParseStage(name string) PipelineStage {
	switch strings.ToLower(name) {
	case "transcription", "stt":
		return StageTranscription
	case "llm":
		return StageLLM
	case "tts":
		return StageTTS
	case "complete":
		return StageComplete
	case "error":
		return StageError
	default:
		return StageIdle
	}
}

// Status is a coarse connection state change reported to the observer.
type Status int

const (
	StatusConnected Status = iota
	StatusDisconnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Observer receives inbound traffic and connection state changes.
//
// OnAudioBytes distinguishes two zero-length cases that must never be
// confused: a non-nil empty payload is the backend's explicit end-of-audio
// marker, while a nil payload means the transport itself was lost.
type Observer interface {
	OnAudioBytes(data []byte)
	OnStatus(status Status)
}

// Client is the persistent connection to the voice-processing backend.
type Client interface {
	Connect() error
	Disconnect() error

	IsConnected() bool

	// SessionReady reports whether the backend acknowledged the handshake;
	// audio sent before that is discarded server-side.
	SessionReady() bool

	// CanStreamAudio gates the capture streaming task: false while the
	// backend is processing a previous utterance.
	CanStreamAudio() bool

	SendAudio(data []byte, timeout time.Duration) error
	SendText(message string) error

	// SendEndOfStream tells the backend the utterance is complete.
	SendEndOfStream() error

	GetPipelineStage() PipelineStage

	// IsPipelineActive is shorthand for GetPipelineStage().Active().
	IsPipelineActive() bool

	// SetObserver installs the inbound audio/status observer. Must be called
	// before Connect.
	SetObserver(obs Observer)
}
