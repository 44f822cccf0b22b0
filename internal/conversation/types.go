// Package conversation implements the live conversation session: it
// captures microphone audio, streams it to a realtime model channel,
// plays the model's synthesized speech back gaplessly, and keeps a
// transcript of both speakers.
package conversation

import (
	"errors"
	"time"

	"github.com/linguakid/linguakid/pkg/audio"
)

// State is the lifecycle state of a session.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
	StateError      State = "error"
)

// DefaultLeadTime is the pause inserted before the first audible chunk
// of each model turn. It masks generation latency bursts so the voice
// does not stutter mid sentence.
const DefaultLeadTime = 2500 * time.Millisecond

var (
	// ErrDeviceUnavailable indicates the microphone or speaker could
	// not be acquired. Fatal for the session, no automatic retry.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrDeviceBusy indicates another active session already holds the
	// microphone.
	ErrDeviceBusy = errors.New("audio device already in use")

	// ErrSessionActive is returned by Connect when the session is
	// already connecting or open.
	ErrSessionActive = errors.New("session already active")

	// ErrConnectAborted is returned by Connect when the session is torn
	// down before the channel handshake completes.
	ErrConnectAborted = errors.New("session closed before open")
)

// Utterance is a merged run of transcript fragments from one speaker.
type Utterance struct {
	Text   string
	IsUser bool
}

// Handlers carries the caller's event callbacks, supplied at Connect
// time. All fields are optional.
type Handlers struct {
	// StateChanged fires on every session state transition.
	StateChanged func(State)

	// Utterance fires whenever the transcript log changes, with the
	// utterance that was appended or extended.
	Utterance func(Utterance)

	// Interrupted fires when the remote side detected the user
	// speaking over the model and playback was flushed.
	Interrupted func()

	// AudioReady fires with each decoded model speech buffer before it
	// is scheduled. Playback is handled internally; this exists for
	// callers that want to render the audio themselves.
	AudioReady func(buf *audio.PlaybackBuffer)
}
