package audio

// Format constants shared by the capture, codec and playback layers.
const (
	// Microphone capture / model input.
	CaptureSampleRate = 16_000 // Hz
	CaptureChannels   = 1
	CaptureBlockSize  = 4096 // samples per encoded frame

	// Model output.
	PlaybackSampleRate = 24_000 // Hz
	PlaybackChannels   = 1

	// Wire format descriptor for outbound frames.
	CaptureMIMEType = "audio/pcm;rate=16000"

	bytesPerSample = 2 // 16-bit PCM
)
