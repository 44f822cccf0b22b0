package conversation

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/linguakid/linguakid/pkg/audio"
)

// Capture acquires the microphone and delivers encoded frames, one per
// fixed-size sample block, until the handle is stopped.
type Capture interface {
	Start(onFrame func(audio.EncodedFrame)) (CaptureHandle, error)
}

// CaptureHandle owns a running capture graph. Stop is idempotent.
type CaptureHandle interface {
	Stop()
}

// micInUse enforces exclusive microphone ownership across sessions.
// A second Start while one capture is live fails fast instead of
// silently sharing the device.
var micInUse atomic.Bool

// Microphone implements Capture on the system default input device at
// the fixed 16kHz mono capture format.
type Microphone struct {
	logger *zap.Logger
}

func NewMicrophone(logger *zap.Logger) *Microphone {
	return &Microphone{logger: logger}
}

// Start acquires the device and begins delivering one encoded frame
// per captured block. Encoding happens inline in the device callback;
// onFrame must not block.
func (m *Microphone) Start(onFrame func(audio.EncodedFrame)) (CaptureHandle, error) {
	if !micInUse.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("start capture: %w", ErrDeviceBusy)
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		micInUse.Store(false)

		return nil, fmt.Errorf("init capture context: %w: %w", ErrDeviceUnavailable, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(audio.CaptureChannels)
	deviceConfig.SampleRate = uint32(audio.CaptureSampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	chunker := NewChunker(audio.CaptureBlockSize)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			chunker.Push(bytesToFloat32(input), func(block []float32) {
				onFrame(audio.EncodeFrame(block))
			})
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		micInUse.Store(false)

		return nil, fmt.Errorf("init capture device: %w: %w", ErrDeviceUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		micInUse.Store(false)

		return nil, fmt.Errorf("start capture device: %w: %w", ErrDeviceUnavailable, err)
	}

	m.logger.Info("Microphone capture started",
		zap.Int("sample_rate", audio.CaptureSampleRate),
		zap.Int("block_size", audio.CaptureBlockSize))

	return &micHandle{logger: m.logger, ctx: ctx, device: device}, nil
}

type micHandle struct {
	logger *zap.Logger
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	once   sync.Once
}

func (h *micHandle) Stop() {
	h.once.Do(func() {
		h.device.Stop()
		h.device.Uninit()
		h.ctx.Uninit()
		micInUse.Store(false)
		h.logger.Info("Microphone capture stopped")
	})
}

// bytesToFloat32 reinterprets little-endian float32 device bytes as
// samples. A trailing partial sample is dropped.
func bytesToFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}

	return samples
}
