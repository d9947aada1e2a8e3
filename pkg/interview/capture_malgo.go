package interview

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoCapture captures microphone audio as 24 kHz mono float frames.
type MalgoCapture struct {
	ctx *malgo.AllocatedContext

	mu     sync.Mutex
	device *malgo.Device
	closed bool
}

// NewMalgoCapture initializes the audio backend. The microphone itself is
// not opened until Start.
func NewMalgoCapture() (*MalgoCapture, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &MalgoCapture{ctx: ctx}, nil
}

// Start opens the default microphone and begins delivering frames. A
// permission or device failure here is surfaced to the caller.
func (c *MalgoCapture) Start(onFrame func(samples []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("capture device is closed")
	}
	if c.device != nil {
		return fmt.Errorf("capture already started")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = Channels
	deviceConfig.SampleRate = SampleRate
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			onFrame(decodeF32(input))
		},
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start microphone: %w", err)
	}
	c.device = device
	return nil
}

// Close stops capture and tears down the audio backend. Idempotent.
func (c *MalgoCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	_ = c.ctx.Uninit()
	c.ctx.Free()
	return nil
}

func decodeF32(raw []byte) []float32 {
	n := len(raw) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}
