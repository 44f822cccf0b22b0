package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linguakid/linguakid/pkg/audio"
	"github.com/linguakid/linguakid/pkg/channel"
)

// sendQueueDepth bounds the frames waiting for the channel writer. At
// 4096 samples per frame this is about four seconds of speech; frames
// beyond it are dropped rather than stalling the capture callback.
const sendQueueDepth = 16

// Settings carries the per-session tunables the Manager passes to the
// channel backend.
type Settings struct {
	// Instructions is the system persona for the remote model.
	Instructions string

	// Voice selects the synthesized voice profile.
	Voice string

	// Transcription enables speech-to-text fragments for both sides.
	Transcription bool

	// MaxSessionLength force-disconnects a session that runs too long.
	// Zero disables the watchdog.
	MaxSessionLength time.Duration
}

// Manager composes capture, transport, playback scheduling, and the
// transcript into one session with a connect/disconnect lifecycle. It
// owns the state machine; all component interaction goes through it.
type Manager struct {
	logger    *zap.Logger
	provider  channel.Provider
	capture   Capture
	scheduler *Scheduler
	archive   *Archive
	settings  Settings

	transcript *Transcript
	forwarding atomic.Bool

	mu            sync.Mutex
	state         State
	handlers      Handlers
	ch            channel.Channel
	captureHandle CaptureHandle
	watchdog      Timer
	clock         Clock
	id            uuid.UUID
	handshake     chan error
	sendQ         chan audio.EncodedFrame
	sendQuit      chan struct{}
	notifyq       []State
	notifying     bool
}

// NewManager wires a session manager from its collaborators. The
// session starts in the idle state.
func NewManager(logger *zap.Logger, provider channel.Provider, capture Capture, scheduler *Scheduler, archive *Archive, clock Clock, settings Settings) *Manager {
	return &Manager{
		logger:     logger,
		provider:   provider,
		capture:    capture,
		scheduler:  scheduler,
		archive:    archive,
		clock:      clock,
		settings:   settings,
		transcript: NewTranscript(),
		state:      StateIdle,
	}
}

// Connect acquires the microphone, opens the channel, and blocks until
// the session is open or has failed. Capture frames produced before
// the open acknowledgement are dropped, not queued.
func (m *Manager) Connect(ctx context.Context, handlers Handlers) error {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateOpen {
		m.mu.Unlock()

		return ErrSessionActive
	}
	m.handlers = handlers
	m.id = uuid.New()
	m.forwarding.Store(false)
	m.transcript.Reset()

	handshake := make(chan error, 1)
	m.handshake = handshake
	m.sendQ = make(chan audio.EncodedFrame, sendQueueDepth)
	m.sendQuit = make(chan struct{})
	go m.sendLoop(m.sendQ, m.sendQuit)

	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	handle, err := m.capture.Start(m.onCaptureFrame)
	if err != nil {
		m.fail(err)

		return err
	}
	m.mu.Lock()
	m.captureHandle = handle
	m.mu.Unlock()

	events := channel.Events{
		Opened:          m.onOpened,
		Closed:          m.onChannelClosed,
		Error:           m.fail,
		ModelAudio:      m.onModelAudio,
		Interrupted:     m.onInterrupted,
		UserTranscript:  func(text string) { m.onTranscript(text, true) },
		ModelTranscript: func(text string) { m.onTranscript(text, false) },
	}

	ch, err := m.provider.Open(ctx, channel.Config{
		Instructions:     m.settings.Instructions,
		Voice:            m.settings.Voice,
		InputMIMEType:    audio.CaptureMIMEType,
		OutputSampleRate: audio.PlaybackSampleRate,
		Transcription:    m.settings.Transcription,
	}, events)
	if err != nil {
		m.fail(err)

		return fmt.Errorf("open channel: %w", err)
	}
	m.mu.Lock()
	if m.state != StateConnecting && m.state != StateOpen {
		// The session already failed while the channel was opening.
		m.mu.Unlock()
		ch.Close()
	} else {
		m.ch = ch
		m.mu.Unlock()
	}

	select {
	case err := <-handshake:
		if err != nil {
			return fmt.Errorf("channel handshake: %w", err)
		}

		return nil
	case <-ctx.Done():
		m.Disconnect()

		return ctx.Err()
	}
}

// Disconnect tears the session down and leaves it closed. Safe to call
// from any state, any number of times, including on a session that
// never connected.
func (m *Manager) Disconnect() {
	m.teardown(StateClosed)
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// SessionID identifies the current (or most recent) session.
func (m *Manager) SessionID() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.id
}

// Transcript returns the utterance log in order.
func (m *Manager) Transcript() []Utterance {
	return m.transcript.Utterances()
}

func (m *Manager) onOpened() {
	m.mu.Lock()
	if m.state != StateConnecting {
		// A late or duplicate acknowledgement; the handshake outcome
		// was already decided.
		m.mu.Unlock()

		return
	}
	m.setStateLocked(StateOpen)
	if m.settings.MaxSessionLength > 0 {
		m.watchdog = m.clock.AfterFunc(m.settings.MaxSessionLength, func() {
			m.logger.Info("Session reached maximum length, disconnecting")
			m.Disconnect()
		})
	}
	m.mu.Unlock()

	// Only now do capture frames start reaching the channel.
	m.forwarding.Store(true)
	m.signalHandshake(nil)
}

// onCaptureFrame runs inside the device callback; the hand-off to the
// channel writer must never block, so a full queue drops the frame.
func (m *Manager) onCaptureFrame(frame audio.EncodedFrame) {
	if !m.forwarding.Load() {
		return
	}

	m.mu.Lock()
	q := m.sendQ
	m.mu.Unlock()
	if q == nil {
		return
	}

	select {
	case q <- frame:
	default:
		m.logger.Debug("Send queue full, dropping capture frame")
	}
}

// sendLoop drains queued capture frames into the channel so the wire
// write happens off the device callback.
func (m *Manager) sendLoop(frames <-chan audio.EncodedFrame, quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case frame := <-frames:
			m.mu.Lock()
			ch := m.ch
			m.mu.Unlock()
			if ch == nil {
				continue
			}
			if err := ch.Send(frame); err != nil && !errors.Is(err, channel.ErrClosed) {
				m.logger.Warn("Failed to send capture frame", zap.Error(err))
			}
		}
	}
}

func (m *Manager) onModelAudio(payload string) {
	raw, err := audio.DecodeFrame(payload)
	if err != nil {
		m.logger.Warn("Dropping undecodable audio chunk", zap.Error(err))

		return
	}

	buf, err := audio.DecodeToPlaybackBuffer(raw, audio.PlaybackSampleRate, audio.PlaybackChannels)
	if err != nil {
		m.logger.Warn("Dropping unsupported audio chunk", zap.Error(err))

		return
	}

	m.mu.Lock()
	h := m.handlers
	m.mu.Unlock()
	if h.AudioReady != nil {
		h.AudioReady(buf)
	}

	m.scheduler.Enqueue(buf)
}

func (m *Manager) onInterrupted() {
	m.scheduler.Flush()

	m.mu.Lock()
	h := m.handlers
	m.mu.Unlock()
	if h.Interrupted != nil {
		h.Interrupted()
	}
}

func (m *Manager) onTranscript(text string, isUser bool) {
	if text == "" {
		return
	}

	// A user fragment means the user is talking right now, so the next
	// model chunk starts a fresh turn even without a formal
	// interruption event.
	if isUser {
		m.scheduler.MarkTurnBoundary()
	}

	u := m.transcript.Append(text, isUser)

	m.mu.Lock()
	h := m.handlers
	m.mu.Unlock()
	if h.Utterance != nil {
		h.Utterance(u)
	}
}

func (m *Manager) onChannelClosed() {
	m.teardown(StateClosed)
}

func (m *Manager) fail(err error) {
	m.logger.Error("Session failed", zap.Error(err))
	m.signalHandshake(err)
	m.teardown(StateError)
}

// signalHandshake resolves a blocked Connect. The channel is buffered
// and only the first outcome counts; later signals are dropped.
func (m *Manager) signalHandshake(err error) {
	m.mu.Lock()
	hs := m.handshake
	m.mu.Unlock()
	if hs == nil {
		return
	}

	select {
	case hs <- err:
	default:
	}
}

// teardown transitions to the given terminal state and releases every
// owned resource. Terminal states are sticky: tearing down an already
// closed or failed session is a no-op.
func (m *Manager) teardown(final State) {
	m.mu.Lock()
	if m.state == StateClosed || m.state == StateError {
		m.mu.Unlock()

		return
	}
	wasConnecting := m.state == StateConnecting
	m.forwarding.Store(false)

	handle := m.captureHandle
	m.captureHandle = nil
	ch := m.ch
	m.ch = nil
	watchdog := m.watchdog
	m.watchdog = nil
	quit := m.sendQuit
	m.sendQuit = nil
	m.sendQ = nil
	id := m.id
	m.setStateLocked(final)
	m.mu.Unlock()

	// A Connect still waiting for the open acknowledgement must not
	// stay blocked once the session reaches a terminal state.
	if wasConnecting {
		m.signalHandshake(ErrConnectAborted)
	}

	if watchdog != nil {
		watchdog.Stop()
	}
	if quit != nil {
		close(quit)
	}
	if handle != nil {
		handle.Stop()
	}
	m.scheduler.Flush()
	if ch != nil {
		if err := ch.Close(); err != nil {
			m.logger.Warn("Error closing channel", zap.Error(err))
		}
	}
	if m.archive != nil {
		m.archive.Save(id, m.transcript.Utterances())
	}
}

// setStateLocked requires m.mu held. State change callbacks are queued
// and drained by a single goroutine so the caller observes transitions
// in order without being able to deadlock back into the manager.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.logger.Info("Session state changed",
		zap.String("from", string(m.state)),
		zap.String("to", string(s)))
	m.state = s

	if m.handlers.StateChanged == nil {
		return
	}
	m.notifyq = append(m.notifyq, s)
	if !m.notifying {
		m.notifying = true
		go m.notifyLoop()
	}
}

func (m *Manager) notifyLoop() {
	for {
		m.mu.Lock()
		if len(m.notifyq) == 0 {
			m.notifying = false
			m.mu.Unlock()

			return
		}
		s := m.notifyq[0]
		m.notifyq = m.notifyq[1:]
		h := m.handlers.StateChanged
		m.mu.Unlock()

		h(s)
	}
}
