package conversation

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"github.com/linguakid/linguakid/pkg/audio"
)

// speakerBufferSize is ~100ms of 24kHz mono 16-bit audio. Smaller
// buffers lower latency at the cost of glitch risk.
const speakerBufferSize = 4800

// Speaker renders playback buffers on the system audio output. It
// implements Output. Only one oto context may exist per process, so a
// single Speaker serves the whole application lifetime.
type Speaker struct {
	logger *zap.Logger
	ctx    *oto.Context
}

// NewSpeaker acquires the output device. Failure wraps
// ErrDeviceUnavailable since there is nothing to retry.
func NewSpeaker(logger *zap.Logger) (*Speaker, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   audio.PlaybackSampleRate,
		ChannelCount: audio.PlaybackChannels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   speakerBufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init audio output: %w: %w", ErrDeviceUnavailable, err)
	}
	<-ready

	return &Speaker{logger: logger, ctx: ctx}, nil
}

// Play starts buf immediately and calls done once when it has fully
// drained through the device.
func (s *Speaker) Play(buf *audio.PlaybackBuffer, done func()) (Source, error) {
	player := s.ctx.NewPlayer(bytes.NewReader(buf.PCM16LE()))
	src := &otoSource{player: player}
	player.Play()

	go src.watch(buf.Duration(), done)

	return src, nil
}

// Close releases nothing beyond live players; the oto context has no
// teardown API and lives for the process.
func (s *Speaker) Close() error {
	return nil
}

type otoSource struct {
	player *oto.Player

	mu      sync.Mutex
	stopped bool
}

// watch polls the player until its buffer drains, then reports natural
// completion. d bounds the first sleep so short buffers finish promptly.
func (o *otoSource) watch(d time.Duration, done func()) {
	time.Sleep(d)
	for {
		o.mu.Lock()
		stopped := o.stopped
		playing := o.player.IsPlaying()
		o.mu.Unlock()

		if stopped {
			return
		}
		if !playing {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	o.mu.Lock()
	if !o.stopped {
		o.stopped = true
		o.player.Close()
	}
	o.mu.Unlock()

	done()
}

func (o *otoSource) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	o.stopped = true
	o.player.Pause()
	o.player.Close()
}
