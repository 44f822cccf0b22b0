// Package openairt provides a live conversation channel backed by the
// OpenAI Realtime API. It is the alternative transport to the default
// Gemini Live channel and speaks raw PCM16 in both directions with
// server-side voice activity detection handling turn taking.
package openairt

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	openairt "github.com/WqyJh/go-openai-realtime"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/linguakid/linguakid/pkg/audio"
	"github.com/linguakid/linguakid/pkg/channel"
)

// Provider opens realtime channels against the OpenAI Realtime API.
type Provider struct {
	logger *zap.Logger
	client *openairt.Client
	model  string
}

// Option configures a Provider.
type Option func(*Provider)

// WithModel overrides the realtime model requested for new channels.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// New creates a Provider. An empty API key means the backend cannot be
// reached at all, which surfaces as channel.ErrUnavailable.
func New(logger *zap.Logger, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openairt: missing API key: %w", channel.ErrUnavailable)
	}

	p := &Provider{
		logger: logger,
		client: openairt.NewClient(apiKey),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Open establishes a realtime WebSocket session and configures it for
// duplex audio. The returned channel is live immediately for sending;
// events.Opened fires once the server acknowledges the session.
func (p *Provider) Open(ctx context.Context, cfg channel.Config, events channel.Events) (channel.Channel, error) {
	conn, err := p.client.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to realtime API: %w", err)
	}

	c := &liveChannel{
		logger: p.logger,
		conn:   conn,
		events: events,
	}

	handlerCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.handler = openairt.NewConnHandler(handlerCtx, conn, c.handleServerEvent)
	go c.handler.Start()

	if err := c.configureSession(ctx, cfg); err != nil {
		c.Close()

		return nil, fmt.Errorf("configure realtime session: %w", err)
	}

	p.logger.Info("OpenAI realtime channel opening",
		zap.String("model", p.model),
		zap.String("voice", cfg.Voice))

	return c, nil
}

type liveChannel struct {
	logger  *zap.Logger
	conn    *openairt.Conn
	handler *openairt.ConnHandler
	events  channel.Events
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func (c *liveChannel) configureSession(ctx context.Context, cfg channel.Config) error {
	session := openairt.ClientSession{
		Modalities:        []openairt.Modality{openairt.ModalityText, openairt.ModalityAudio},
		Voice:             mapVoice(cfg.Voice),
		OutputAudioFormat: openairt.AudioFormatPcm16,
	}
	if cfg.Instructions != "" {
		session.Instructions = cfg.Instructions
	}
	if cfg.Transcription {
		session.InputAudioTranscription = &openairt.InputAudioTranscription{
			Model: openai.Whisper1,
		}
	}

	return c.conn.SendMessage(ctx, &openairt.SessionUpdateEvent{Session: session})
}

// Send appends one captured audio frame to the server's input buffer.
// Server-side VAD commits the buffer and triggers responses, so no
// explicit commit follows.
func (c *liveChannel) Send(frame audio.EncodedFrame) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return channel.ErrClosed
	}

	event := &openairt.InputAudioBufferAppendEvent{
		Audio: frame.Payload,
	}

	return c.conn.SendMessage(context.Background(), event)
}

// Close tears the session down. Safe to call more than once.
func (c *liveChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	err := c.conn.Close()

	if c.events.Closed != nil {
		c.events.Closed()
	}
	if err != nil {
		c.logger.Warn("Error closing realtime connection", zap.Error(err))
	}

	return nil
}

func (c *liveChannel) handleServerEvent(ctx context.Context, event openairt.ServerEvent) {
	switch event.ServerEventType() {
	case openairt.ServerEventTypeSessionCreated:
		if c.events.Opened != nil {
			c.events.Opened()
		}

	case openairt.ServerEventTypeResponseAudioDelta:
		delta := event.(openairt.ResponseAudioDeltaEvent)
		if delta.Delta == "" {
			return
		}
		// Deltas arrive base64 encoded; validate before handing them on
		// so a corrupt frame is dropped instead of poisoning playback.
		if _, err := base64.StdEncoding.DecodeString(delta.Delta); err != nil {
			c.logger.Warn("Dropping malformed audio delta", zap.Error(err))

			return
		}
		if c.events.ModelAudio != nil {
			c.events.ModelAudio(delta.Delta)
		}

	case openairt.ServerEventTypeInputAudioBufferSpeechStarted:
		// The user started talking over the model.
		if c.events.Interrupted != nil {
			c.events.Interrupted()
		}

	case openairt.ServerEventTypeResponseAudioTranscriptDone:
		transcript := event.(openairt.ResponseAudioTranscriptDoneEvent)
		if c.events.ModelTranscript != nil && transcript.Transcript != "" {
			c.events.ModelTranscript(transcript.Transcript)
		}

	case openairt.ServerEventTypeConversationItemInputAudioTranscriptionCompleted:
		transcript := event.(openairt.ConversationItemInputAudioTranscriptionCompletedEvent)
		if c.events.UserTranscript != nil && transcript.Transcript != "" {
			c.events.UserTranscript(transcript.Transcript)
		}

	case openairt.ServerEventTypeConversationItemInputAudioTranscriptionFailed:
		failed := event.(openairt.ConversationItemInputAudioTranscriptionFailedEvent)
		c.logger.Warn("User audio transcription failed",
			zap.String("item_id", failed.ItemID),
			zap.String("error", failed.Error.Message))

	case openairt.ServerEventTypeError:
		errorEvent := event.(openairt.ErrorEvent)
		if c.events.Error != nil {
			c.events.Error(fmt.Errorf("realtime API error: %s", errorEvent.Error.Message))
		}
	}
}

func mapVoice(voice string) openairt.Voice {
	switch voice {
	case "alloy":
		return openairt.VoiceAlloy
	case "echo":
		return openairt.VoiceEcho
	case "shimmer":
		return openairt.VoiceShimmer
	default:
		return openairt.VoiceShimmer
	}
}
