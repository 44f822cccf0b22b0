package audio_test

import (
	"encoding/base64"
	"encoding/binary"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linguakid/linguakid/pkg/audio"
)

func TestEncodeFrame(t *testing.T) {
	tests := map[string]struct {
		input    []float32
		expected []int16
	}{
		"silence": {
			input:    []float32{0, 0, 0},
			expected: []int16{0, 0, 0},
		},
		"half_scale": {
			input:    []float32{0.5, -0.5},
			expected: []int16{16384, -16384},
		},
		"full_scale_saturates": {
			input:    []float32{1.0, -1.0},
			expected: []int16{32767, -32768},
		},
		"out_of_range_saturates": {
			input:    []float32{1.5, -2.0},
			expected: []int16{32767, -32768},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			frame := audio.EncodeFrame(tt.input)
			assert.Equal(t, audio.CaptureMIMEType, frame.MIMEType)

			raw, err := base64.StdEncoding.DecodeString(frame.Payload)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, audio.LEToPCMInt16(raw))
		})
	}
}

func TestCodecRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	samples := make([]float32, audio.CaptureBlockSize)
	for i := range samples {
		samples[i] = rng.Float32()*2 - 1
	}

	frame := audio.EncodeFrame(samples)
	raw, err := audio.DecodeFrame(frame.Payload)
	require.NoError(t, err)

	buf, err := audio.DecodeToPlaybackBuffer(raw, audio.CaptureSampleRate, audio.CaptureChannels)
	require.NoError(t, err)
	require.Len(t, buf.Samples, len(samples))

	// Every sample must survive the int16 quantization within one step.
	for i := range samples {
		assert.InDelta(t, samples[i], buf.Samples[i], 1.0/32768, "sample %d", i)
	}
}

func TestDecodeFrame_MalformedBase64(t *testing.T) {
	_, err := audio.DecodeFrame("not-valid-base64!!!")
	require.Error(t, err)
	assert.ErrorIs(t, err, audio.ErrMalformedPayload)
}

func TestDecodeToPlaybackBuffer(t *testing.T) {
	tests := map[string]struct {
		input       []byte
		expectError bool
		expected    []int16
	}{
		"raw_pcm": {
			input:    audio.PCMInt16ToLE([]int16{100, -100, 32767}),
			expected: []int16{100, -100, 32767},
		},
		"empty_payload": {
			input:    nil,
			expected: []int16{},
		},
		"odd_length_rejected": {
			input:       []byte{0x01, 0x02, 0x03},
			expectError: true,
		},
		"wav_wrapped_pcm": {
			input:    wavBytes(t, []int16{1, 2, 3, 4}, 24000),
			expected: []int16{1, 2, 3, 4},
		},
		"wav_without_data_chunk_rejected": {
			input:       append([]byte("RIFF\x04\x00\x00\x00WAVE"), []byte("junk")...),
			expectError: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			buf, err := audio.DecodeToPlaybackBuffer(tt.input, audio.PlaybackSampleRate, audio.PlaybackChannels)

			if tt.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, audio.ErrUnsupportedFormat)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, audio.LEToPCMInt16(buf.PCM16LE()))
			assert.Equal(t, audio.PlaybackSampleRate, buf.SampleRate)
		})
	}
}

func TestPlaybackBuffer_Duration(t *testing.T) {
	tests := map[string]struct {
		samples  int
		rate     int
		channels int
		expected time.Duration
	}{
		"one_second_mono_24k": {samples: 24000, rate: 24000, channels: 1, expected: time.Second},
		"half_second":         {samples: 12000, rate: 24000, channels: 1, expected: 500 * time.Millisecond},
		"stereo_halves_count": {samples: 24000, rate: 24000, channels: 2, expected: 500 * time.Millisecond},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			buf := &audio.PlaybackBuffer{
				Samples:    make([]float32, tt.samples),
				SampleRate: tt.rate,
				Channels:   tt.channels,
			}
			assert.Equal(t, tt.expected, buf.Duration())
		})
	}
}

// wavBytes builds a minimal RIFF/WAVE container around the given samples.
func wavBytes(t *testing.T, samples []int16, rate int) []byte {
	t.Helper()

	data := audio.PCMInt16ToLE(samples)
	out := make([]byte, 0, 44+len(data))

	u32 := func(v int) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v))
		return b
	}
	u16 := func(v int) []byte {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v))
		return b
	}

	out = append(out, []byte("RIFF")...)
	out = append(out, u32(36+len(data))...)
	out = append(out, []byte("WAVE")...)
	out = append(out, []byte("fmt ")...)
	out = append(out, u32(16)...)
	out = append(out, u16(1)...) // PCM
	out = append(out, u16(1)...) // mono
	out = append(out, u32(rate)...)
	out = append(out, u32(rate*2)...)
	out = append(out, u16(2)...)
	out = append(out, u16(16)...)
	out = append(out, []byte("data")...)
	out = append(out, u32(len(data))...)
	out = append(out, data...)

	require.Len(t, out, 44+len(data))
	return out
}

func TestEncodeFrame_QuantizationStep(t *testing.T) {
	// The smallest representable increment must be exactly 1/32768.
	frame := audio.EncodeFrame([]float32{1.0 / 32768, -1.0 / 32768})
	raw, err := audio.DecodeFrame(frame.Payload)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, -1}, audio.LEToPCMInt16(raw))
}
