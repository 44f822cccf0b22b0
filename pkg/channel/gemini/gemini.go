// Package gemini implements channel.Provider for Google's Gemini Live API.
//
// It speaks the BidiGenerateContent protocol over a WebSocket: outbound audio
// travels as base64 PCM media chunks, inbound messages carry synthesized
// audio parts, transcription fragments and the interruption flag.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/linguakid/linguakid/pkg/audio"
	"github.com/linguakid/linguakid/pkg/channel"
)

var _ channel.Provider = (*Provider)(nil)

const (
	defaultModel   = "gemini-2.0-flash-live-001"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini model used for new channels.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider opens Gemini Live channels.
type Provider struct {
	logger  *zap.Logger
	apiKey  string
	model   string
	baseURL string
}

// New creates a Gemini Live provider. ErrUnavailable is returned when no API
// key is configured so that call sites handle the no-key case explicitly.
func New(logger *zap.Logger, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing gemini api key", channel.ErrUnavailable)
	}

	p := &Provider{
		logger:  logger,
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Open dials the Live endpoint, sends the setup message and starts the
// receive loop. The Opened event fires when the server acknowledges setup.
func (p *Provider) Open(ctx context.Context, cfg channel.Config, events channel.Events) (channel.Channel, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.baseURL, p.apiKey,
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}

	liveCtx, cancel := context.WithCancel(context.Background())
	ch := &liveChannel{
		logger: p.logger,
		conn:   conn,
		events: events,
		ctx:    liveCtx,
		cancel: cancel,
	}

	if err := ch.sendSetup(p.model, cfg); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	go ch.receiveLoop()
	go ch.keepaliveLoop()

	return ch, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string             `json:"model"`
	GenerationConfig         generationConfig   `json:"generationConfig"`
	SystemInstruction        *systemInstruction `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}          `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}          `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *apiError        `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type transcription struct {
	Text string `json:"text"`
}

// ── liveChannel ───────────────────────────────────────────────────────────────

type liveChannel struct {
	logger *zap.Logger
	conn   *websocket.Conn
	events channel.Events

	mu     sync.Mutex
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSetup sends the initial BidiGenerateContent setup message.
func (c *liveChannel) sendSetup(model string, cfg channel.Config) error {
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
		},
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}

	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	if cfg.Transcription {
		msg.Setup.InputAudioTranscription = &struct{}{}
		msg.Setup.OutputAudioTranscription = &struct{}{}
	}

	return c.writeJSON(msg)
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (c *liveChannel) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

// Send transmits one encoded capture frame as a realtimeInput media chunk.
func (c *liveChannel) Send(frame audio.EncodedFrame) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return channel.ErrClosed
	}
	c.mu.Unlock()

	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{
				{MIMEType: frame.MIMEType, Data: frame.Payload},
			},
		},
	}
	return c.writeJSON(msg)
}

// Close terminates the channel and releases the connection. Idempotent.
func (c *liveChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel() // unblocks receiveLoop and keepaliveLoop
	c.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

// receiveLoop reads messages from the WebSocket and dispatches them to the
// registered event handlers, one at a time, in arrival order.
func (c *liveChannel) receiveLoop() {
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			// If the channel context was cancelled, exit cleanly.
			if c.ctx.Err() != nil {
				return
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				c.emitClosed()
				return
			}
			c.emitError(fmt.Errorf("gemini: read: %w", err))
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("Skipping malformed server frame", zap.Error(err))
			continue
		}

		c.dispatch(&msg)
	}
}

func (c *liveChannel) dispatch(msg *serverMessage) {
	if msg.SetupComplete != nil && c.events.Opened != nil {
		c.events.Opened()
	}
	if msg.Error != nil {
		detail := msg.Error.Message
		if detail == "" {
			detail = "unknown error"
		}
		c.emitError(fmt.Errorf("gemini: %s", detail))
	}
	if msg.ServerContent != nil {
		c.dispatchContent(msg.ServerContent)
	}
}

func (c *liveChannel) dispatchContent(sc *serverContent) {
	// Barge-in must be observed before any audio parts of the same message.
	if sc.Interrupted && c.events.Interrupted != nil {
		c.events.Interrupted()
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			// Validate early so a corrupt part is logged here and dropped.
			if _, err := base64.StdEncoding.DecodeString(p.InlineData.Data); err != nil {
				c.logger.Warn("Dropping undecodable audio part", zap.Error(err))
				continue
			}
			if c.events.ModelAudio != nil {
				c.events.ModelAudio(p.InlineData.Data)
			}
		}
	}

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" && c.events.UserTranscript != nil {
		c.events.UserTranscript(sc.InputTranscription.Text)
	}

	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" && c.events.ModelTranscript != nil {
		c.events.ModelTranscript(sc.OutputTranscription.Text)
	}
}

func (c *liveChannel) emitClosed() {
	if c.events.Closed != nil {
		c.events.Closed()
	}
}

func (c *liveChannel) emitError(err error) {
	if c.events.Error != nil {
		c.events.Error(err)
	}
}

// keepaliveLoop sends WebSocket pings to keep the Live connection alive.
func (c *liveChannel) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, keepaliveTimeout)
			_ = c.conn.Ping(pingCtx)
			cancel()
		}
	}
}
