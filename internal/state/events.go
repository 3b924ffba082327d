package state

// SystemState is the device mode.
type SystemState int

const (
	StateInit SystemState = iota
	StateCameraStandby
	StateVoiceActive
	StateTransitioning
	StateError
	StateShutdown
)

func (s SystemState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateCameraStandby:
		return "CAMERA_STANDBY"
	case StateVoiceActive:
		return "VOICE_ACTIVE"
	case StateTransitioning:
		return "TRANSITIONING"
	case StateError:
		return "ERROR"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// Event is an input to the state machine: button gestures from the user plus
// internal notifications.
type Event int

const (
	// EventSingleClick toggles between camera standby and the voice session.
	EventSingleClick Event = iota

	// EventDoubleClick requests a photo capture.
	EventDoubleClick

	// EventLongPress requests a device shutdown.
	EventLongPress

	// EventLongPressRelease follows a long press on hardware builds. It
	// carries no action; the shutdown already fired on the press.
	EventLongPressRelease

	// EventTransportLost reports that the backend connection dropped.
	EventTransportLost

	// EventShutdownRequested asks the device to power down (CLI/serial path).
	EventShutdownRequested
)

func (e Event) String() string {
	switch e {
	case EventSingleClick:
		return "single_click"
	case EventDoubleClick:
		return "double_click"
	case EventLongPress:
		return "long_press"
	case EventLongPressRelease:
		return "long_press_release"
	case EventTransportLost:
		return "transport_lost"
	case EventShutdownRequested:
		return "shutdown_requested"
	default:
		return "unknown"
	}
}
