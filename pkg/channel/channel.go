// Package channel defines the consumption contract for the bidirectional
// realtime channel to a conversational speech model. The session core only
// depends on this contract; concrete providers live in subpackages.
package channel

import (
	"context"
	"errors"

	"github.com/linguakid/linguakid/pkg/audio"
)

var (
	// ErrUnavailable indicates a provider that cannot be constructed,
	// typically because no API key is configured. Call sites must handle
	// this explicitly instead of degrading to a nil client.
	ErrUnavailable = errors.New("channel: provider unavailable")

	// ErrClosed indicates a send on a channel that has already been closed.
	ErrClosed = errors.New("channel: closed")
)

// Config carries the handshake parameters for a new channel.
type Config struct {
	// Instructions is the system persona given to the model.
	Instructions string

	// Voice selects the synthesized voice, provider-specific.
	Voice string

	// InputMIMEType and OutputSampleRate describe the audio formats
	// requested from the provider.
	InputMIMEType    string
	OutputSampleRate int

	// Transcription enables speech-to-text events in both directions.
	Transcription bool
}

// Events is the typed handler set a provider delivers into. Handlers may be
// nil; providers must check before invoking. All handlers are called from the
// provider's receive goroutine, one event at a time, in arrival order.
type Events struct {
	// Opened fires once the provider handshake completes.
	Opened func()

	// Closed fires when the remote side closes the channel normally.
	Closed func()

	// Error fires on an unrecoverable channel failure.
	Error func(err error)

	// ModelAudio delivers one base64-encoded chunk of synthesized speech.
	ModelAudio func(payload string)

	// Interrupted fires when the remote side detected the user starting
	// to speak over the model's playback.
	Interrupted func()

	// UserTranscript and ModelTranscript deliver speech-to-text fragments
	// for the user's and the model's speech respectively.
	UserTranscript  func(text string)
	ModelTranscript func(text string)
}

// Channel is one live connection to the model.
type Channel interface {
	// Send transmits one encoded capture frame. Best effort: no delivery
	// acknowledgement is surfaced.
	Send(frame audio.EncodedFrame) error

	// Close releases the connection. Idempotent, and safe to call after
	// Closed or Error has already fired.
	Close() error
}

// Provider opens channels to one remote model endpoint.
type Provider interface {
	Open(ctx context.Context, cfg Config, events Events) (Channel, error)
}
