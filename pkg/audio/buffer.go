package audio

import "time"

// PlaybackBuffer is one decoded chunk of model speech, ready for the
// playback scheduler. Buffers are created on receipt of a channel audio
// event and discarded once played or flushed.
type PlaybackBuffer struct {
	Samples    []float32 // interleaved when Channels > 1
	SampleRate int
	Channels   int
}

// Duration reports the playback length of the buffer.
func (b *PlaybackBuffer) Duration() time.Duration {
	frames := len(b.Samples) / b.Channels
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}

// PCM16LE renders the buffer back to little-endian 16-bit PCM for an
// output device. Quantization saturates, matching EncodeFrame.
func (b *PlaybackBuffer) PCM16LE() []byte {
	pcm := make([]int16, len(b.Samples))
	for i, s := range b.Samples {
		v := int32(s * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		pcm[i] = int16(v)
	}
	return PCMInt16ToLE(pcm)
}
