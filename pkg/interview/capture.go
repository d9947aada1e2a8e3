package interview

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// CaptureDevice produces microphone frames of normalized float samples on a
// device-owned callback thread.
type CaptureDevice interface {
	// Start begins capture, invoking onFrame for every frame until Close.
	Start(onFrame func(samples []float32)) error

	// Close stops capture and releases the device. Idempotent.
	Close() error
}

// AudioSender is the slice of the realtime connection the input pipeline
// needs.
type AudioSender interface {
	IsOpen() bool
	AppendAudio(audio string) error
}

// InputPipeline forwards every captured frame to the connection. There is
// no local voice-activity gating and no local buffering: a frame that
// cannot be sent is dropped, since turn detection and back-pressure are
// provider-side.
type InputPipeline struct {
	device CaptureDevice
	sender AudioSender
	logger *slog.Logger

	closeOnce  sync.Once
	dropLogged atomic.Bool
}

// NewInputPipeline wires a capture device to a connection.
func NewInputPipeline(device CaptureDevice, sender AudioSender, logger *slog.Logger) *InputPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &InputPipeline{device: device, sender: sender, logger: logger}
}

// Start begins streaming microphone audio.
func (p *InputPipeline) Start() error {
	return p.device.Start(p.handleFrame)
}

// handleFrame runs on the capture thread and must not block.
func (p *InputPipeline) handleFrame(samples []float32) {
	if !p.sender.IsOpen() {
		if p.dropLogged.CompareAndSwap(false, true) {
			p.logger.Debug("dropping microphone frames, connection not open")
		}
		return
	}
	if err := p.sender.AppendAudio(EncodeAudio(FloatToPCM16(samples))); err != nil {
		if p.dropLogged.CompareAndSwap(false, true) {
			p.logger.Debug("dropping microphone frame", "error", err)
		}
	}
}

// Close stops capture. Idempotent and safe during in-flight callbacks.
func (p *InputPipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.device.Close()
	})
	return err
}
