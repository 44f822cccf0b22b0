// Package audio implements the stateless codec between floating-point
// sample buffers and the base64 PCM16 wire format used by the realtime
// channel, plus the PlaybackBuffer type consumed by the scheduler.
package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrMalformedPayload indicates an inbound payload that is not valid base64.
	ErrMalformedPayload = errors.New("audio: malformed base64 payload")

	// ErrUnsupportedFormat indicates bytes that cannot be interpreted as
	// 16-bit PCM after any container header has been skipped.
	ErrUnsupportedFormat = errors.New("audio: unsupported audio format")
)

// EncodedFrame is one capture block encoded for transmission.
type EncodedFrame struct {
	Payload  string // base64 of little-endian PCM16
	MIMEType string
}

// EncodeFrame quantizes float samples in [-1, 1] to 16-bit PCM and
// base64-encodes the little-endian bytes. Out-of-range samples saturate
// rather than wrap.
func EncodeFrame(samples []float32) EncodedFrame {
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32768)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		pcm[i] = int16(v)
	}

	return EncodedFrame{
		Payload:  base64.StdEncoding.EncodeToString(PCMInt16ToLE(pcm)),
		MIMEType: CaptureMIMEType,
	}
}

// DecodeFrame decodes a base64 payload received from the channel into raw bytes.
func DecodeFrame(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return raw, nil
}

// DecodeToPlaybackBuffer interprets raw bytes as little-endian 16-bit PCM at
// the given rate and channel count. A RIFF/WAVE container header, if present,
// is detected and skipped; otherwise the entire payload is treated as
// headerless PCM.
func DecodeToPlaybackBuffer(raw []byte, sampleRate, channels int) (*PlaybackBuffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: rate=%d channels=%d", ErrUnsupportedFormat, sampleRate, channels)
	}

	data, err := stripRIFFHeader(raw)
	if err != nil {
		return nil, err
	}

	if len(data)%bytesPerSample != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not sample-aligned", ErrUnsupportedFormat, len(data))
	}

	pcm := LEToPCMInt16(data)
	samples := make([]float32, len(pcm))
	for i, v := range pcm {
		samples[i] = float32(v) / 32768
	}

	return &PlaybackBuffer{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}

// stripRIFFHeader returns the PCM payload of a RIFF/WAVE container, or the
// input unchanged when no container is present. Subchunks before "data" are
// walked rather than assuming the canonical 44-byte layout.
func stripRIFFHeader(raw []byte) ([]byte, error) {
	if len(raw) < 12 || !bytes.Equal(raw[0:4], []byte("RIFF")) || !bytes.Equal(raw[8:12], []byte("WAVE")) {
		return raw, nil
	}

	off := 12
	for off+8 <= len(raw) {
		id := raw[off : off+4]
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		off += 8
		if bytes.Equal(id, []byte("data")) {
			if off+size > len(raw) {
				size = len(raw) - off
			}
			return raw[off : off+size], nil
		}
		off += size
	}

	return nil, fmt.Errorf("%w: RIFF container without data chunk", ErrUnsupportedFormat)
}

// PCMInt16ToLE converts int16 samples to raw little-endian bytes.
func PCMInt16ToLE(samples []int16) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}

// LEToPCMInt16 converts raw little-endian bytes back to int16 samples.
func LEToPCMInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	_ = binary.Read(bytes.NewReader(b), binary.LittleEndian, &out)
	return out
}
