// Package feedback abstracts the device's user-facing cues: confirmation
// beeps, the blocked-action buzz, and error alerts. The default notifier only
// logs; hardware builds replace it with one that drives the codec and LED.
package feedback

import "log/slog"

// Notifier emits user-perceivable feedback for device events.
type Notifier interface {
	// ModeChanged confirms a completed mode transition.
	ModeChanged(mode string)

	// CaptureConfirmed acknowledges a photo capture.
	CaptureConfirmed()

	// Blocked signals that a button press was rejected by a guardrail.
	Blocked(reason string)

	// ErrorAlert signals entry into the error state.
	ErrorAlert()

	// ShuttingDown signals that the device is powering off.
	ShuttingDown()
}

// LogNotifier is the default Notifier; it records every cue in the log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) ModeChanged(mode string) {
	n.logger.Info("Feedback: mode changed", slog.String("mode", mode))
}

func (n *LogNotifier) CaptureConfirmed() {
	n.logger.Info("Feedback: capture confirmed")
}

func (n *LogNotifier) Blocked(reason string) {
	n.logger.Warn("Feedback: action blocked", slog.String("reason", reason))
}

func (n *LogNotifier) ErrorAlert() {
	n.logger.Error("Feedback: error alert")
}

func (n *LogNotifier) ShuttingDown() {
	n.logger.Info("Feedback: shutting down")
}
