package state

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/driver"
)

// toggleMode switches between camera standby and the voice session. The
// hardware swap follows a fixed order; see the package comment. Any failure
// lands in the error state and is left to recovery.
func (m *Manager) toggleMode() {
	from := m.GetState()

	var to SystemState
	switch from {
	case StateCameraStandby:
		to = StateVoiceActive
	case StateVoiceActive:
		to = StateCameraStandby
	default:
		m.logger.Warn("Toggle ignored", slog.String("state", from.String()))
		return
	}

	m.setState(StateTransitioning)
	start := time.Now()

	if err := m.swapHardware(from, to); err != nil {
		m.logger.Error("Mode transition failed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
			slog.String("error", err.Error()),
		)
		if m.met != nil {
			m.met.RecordTransitionFailure()
		}
		m.enterError(err)
		return
	}

	if to == StateVoiceActive {
		if err := m.startVoicePipelines(); err != nil {
			if m.met != nil {
				m.met.RecordTransitionFailure()
			}
			m.enterError(err)
			return
		}
	}

	m.setState(to)
	if m.met != nil {
		m.met.RecordModeTransition(from.String(), to.String(), time.Since(start).Seconds())
	}
	m.notifier.ModeChanged(to.String())
}

// swapHardware stops the pipelines, then exchanges driver ownership under the
// hardware lock. A failed init of the new owner rolls back to the old one
// best-effort before reporting the failure.
func (m *Manager) swapHardware(from, to SystemState) error {
	// 1. Pipelines first: nothing may touch a driver while it swaps.
	if from == StateVoiceActive {
		if err := m.playbackPL.WaitForIdle(m.cfg.PlaybackDrainTimeout); err != nil {
			m.logger.Warn("Pending audio not drained before transition",
				slog.String("error", err.Error()))
		}
		if err := m.capturePL.Stop(); err != nil {
			return fmt.Errorf("stop capture pipeline: %w", err)
		}
		if err := m.playbackPL.Stop(); err != nil {
			return fmt.Errorf("stop playback pipeline: %w", err)
		}
	}

	// 2. Exclusive hardware ownership.
	if err := m.lock.Acquire(m.cfg.LockTimeout); err != nil {
		return err
	}
	defer m.lock.Release()

	// 3. Old owner out, new owner in.
	if to == StateVoiceActive {
		if err := m.cam.Deinit(); err != nil {
			return fmt.Errorf("camera deinit: %w", err)
		}
		if err := m.aud.Init(); err != nil {
			if rbErr := m.cam.Init(); rbErr != nil {
				m.logger.Error("Rollback failed - camera unavailable",
					slog.String("error", rbErr.Error()))
			}
			return fmt.Errorf("audio init: %w", err)
		}
		return nil
	}

	if err := m.aud.Deinit(); err != nil {
		return fmt.Errorf("audio deinit: %w", err)
	}
	if err := m.cam.Init(); err != nil {
		if rbErr := m.aud.Init(); rbErr != nil {
			m.logger.Error("Rollback failed - audio unavailable",
				slog.String("error", rbErr.Error()))
		}
		return fmt.Errorf("camera init: %w", err)
	}
	return nil
}

// startVoicePipelines brings up playback then capture once the codec owns
// the hardware.
func (m *Manager) startVoicePipelines() error {
	if err := m.playbackPL.Start(); err != nil {
		return fmt.Errorf("start playback pipeline: %w", err)
	}
	if err := m.capturePL.Start(); err != nil {
		_ = m.playbackPL.Stop()
		return fmt.Errorf("start capture pipeline: %w", err)
	}
	return nil
}

// capturePhoto grabs one frame and hands it to the uploader. The hardware
// lock is held only for the exposure so a queued transition is never starved.
func (m *Manager) capturePhoto() {
	if err := m.lock.Acquire(m.cfg.CaptureLockTimeout); err != nil {
		m.notifier.Blocked("camera busy")
		return
	}
	frame, err := m.cam.CaptureFrame()
	m.lock.Release()

	if err != nil {
		m.logger.Error("Frame capture failed", slog.String("error", err.Error()))
		m.notifier.Blocked("capture failed")
		return
	}

	if m.met != nil {
		m.met.RecordFrameCapture()
	}
	m.notifier.CaptureConfirmed()
	m.logger.Info("Frame captured",
		slog.Int("bytes", len(frame.Data)),
		slog.Int("width", frame.Width),
		slog.Int("height", frame.Height),
	)

	if m.uploader == nil {
		return
	}

	m.uploadWG.Add(1)
	go func() {
		defer m.uploadWG.Done()
		m.uploadFrame(frame)
	}()
}

// capturePhotoFromVoice borrows the camera mid-session: the voice pipelines
// are parked, the codec hands the hardware to the sensor for one exposure plus
// the upload, and then everything is restored. The hardware lock is held for
// the whole borrow. A failed codec restore lands in the error state.
func (m *Manager) capturePhotoFromVoice() {
	if err := m.playbackPL.WaitForIdle(m.cfg.PlaybackDrainTimeout); err != nil {
		m.logger.Warn("Pending audio not drained before capture",
			slog.String("error", err.Error()))
	}
	_ = m.capturePL.Stop()
	_ = m.playbackPL.Stop()

	if err := m.lock.Acquire(m.cfg.LockTimeout); err != nil {
		m.notifier.Blocked("camera busy")
		if err := m.startVoicePipelines(); err != nil {
			m.enterError(err)
		}
		return
	}

	captureErr := m.borrowCameraForFrame()
	if captureErr != nil {
		m.logger.Error("Mid-session capture failed", slog.String("error", captureErr.Error()))
		m.notifier.Blocked("capture failed")
	}

	// Restore the codec regardless of how the borrow went.
	restoreErr := m.aud.Init()
	m.lock.Release()
	if restoreErr != nil {
		m.enterError(fmt.Errorf("audio restore after capture: %w", restoreErr))
		return
	}

	if err := m.startVoicePipelines(); err != nil {
		m.enterError(err)
		return
	}
	m.logger.Info("Voice session resumed after capture")
}

// borrowCameraForFrame swaps the codec out for the sensor, captures and
// uploads one frame, and hands the hardware back. Caller holds the lock.
func (m *Manager) borrowCameraForFrame() error {
	if err := m.aud.Deinit(); err != nil {
		return fmt.Errorf("audio deinit: %w", err)
	}
	if err := m.cam.Init(); err != nil {
		return fmt.Errorf("camera init: %w", err)
	}

	frame, err := m.cam.CaptureFrame()
	if err != nil {
		_ = m.cam.Deinit()
		return fmt.Errorf("capture frame: %w", err)
	}

	if m.met != nil {
		m.met.RecordFrameCapture()
	}
	m.notifier.CaptureConfirmed()
	m.logger.Info("Frame captured",
		slog.Int("bytes", len(frame.Data)),
		slog.Int("width", frame.Width),
		slog.Int("height", frame.Height),
	)

	m.uploadFrame(frame)

	if err := m.cam.Deinit(); err != nil {
		return fmt.Errorf("camera deinit: %w", err)
	}
	return nil
}

// uploadFrame pushes one frame to the ingest API with a bounded deadline.
func (m *Manager) uploadFrame(frame *driver.Frame) {
	if m.uploader == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.UploadTimeout)
	defer cancel()

	resp, err := m.uploader.Upload(ctx, frame)
	if err != nil {
		m.logger.Error("Frame upload failed", slog.String("error", err.Error()))
		return
	}
	m.logger.Info("Frame uploaded", slog.String("frame_id", resp.FrameID))
}

// shutdown tears the device down in order: pipelines, connection, hardware.
func (m *Manager) shutdown() {
	m.logger.Info("Shutting down")
	m.notifier.ShuttingDown()
	m.setState(StateShutdown)

	m.capturePL.Shutdown()
	_ = m.playbackPL.Stop()
	_ = m.client.Disconnect()

	if err := m.lock.Acquire(m.cfg.LockTimeout); err == nil {
		if m.aud.IsInitialized() {
			_ = m.aud.Deinit()
		}
		if m.cam.IsInitialized() {
			_ = m.cam.Deinit()
		}
		m.lock.Release()
	} else {
		m.logger.Warn("Hardware lock unavailable at shutdown", slog.String("error", err.Error()))
	}

	m.uploadWG.Wait()
	m.logger.Info("Shutdown complete")
}
