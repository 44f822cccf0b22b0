package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/linguakid/linguakid/pkg/audio"
	"github.com/linguakid/linguakid/pkg/channel"
	"github.com/linguakid/linguakid/pkg/channel/gemini"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startLiveServer launches a test WebSocket server that hands the accepted
// connection to the handler. The server is closed when the test finishes.
func startLiveServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

func newProvider(t *testing.T, srv *httptest.Server) *gemini.Provider {
	t.Helper()
	p, err := gemini.New(zaptest.NewLogger(t), "test-api-key", gemini.WithBaseURL(wsURL(srv)))
	require.NoError(t, err)
	return p
}

func TestNew_MissingKey(t *testing.T) {
	_, err := gemini.New(zaptest.NewLogger(t), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, channel.ErrUnavailable)
}

func TestOpen_SendsSetup(t *testing.T) {
	setupCh := make(chan map[string]any, 1)
	srv := startLiveServer(t, func(conn *websocket.Conn) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		setupCh <- setup
		writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
		time.Sleep(200 * time.Millisecond)
	})

	opened := make(chan struct{})
	p := newProvider(t, srv)
	ch, err := p.Open(context.Background(), channel.Config{
		Instructions:  "Be a friendly teacher.",
		Voice:         "Aoede",
		Transcription: true,
	}, channel.Events{
		Opened: func() { close(opened) },
	})
	require.NoError(t, err)
	defer ch.Close()

	select {
	case setup := <-setupCh:
		inner, ok := setup["setup"].(map[string]any)
		require.True(t, ok, "setup envelope missing")
		assert.Equal(t, "models/gemini-2.0-flash-live-001", inner["model"])
		assert.Contains(t, inner, "systemInstruction")
		assert.Contains(t, inner, "inputAudioTranscription")
		assert.Contains(t, inner, "outputAudioTranscription")

		gen, ok := inner["generationConfig"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, []any{"AUDIO"}, gen["responseModalities"])
	case <-time.After(3 * time.Second):
		t.Fatal("server never received setup message")
	}

	select {
	case <-opened:
	case <-time.After(3 * time.Second):
		t.Fatal("Opened event never fired")
	}
}

func TestSend_EncodesMediaChunk(t *testing.T) {
	frameCh := make(chan map[string]any, 1)
	srv := startLiveServer(t, func(conn *websocket.Conn) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		var input map[string]any
		readJSON(t, conn, &input)
		frameCh <- input
		time.Sleep(200 * time.Millisecond)
	})

	p := newProvider(t, srv)
	ch, err := p.Open(context.Background(), channel.Config{}, channel.Events{})
	require.NoError(t, err)
	defer ch.Close()

	frame := audio.EncodeFrame([]float32{0.25, -0.25, 0.5})
	require.NoError(t, ch.Send(frame))

	select {
	case input := <-frameCh:
		ri, ok := input["realtimeInput"].(map[string]any)
		require.True(t, ok, "realtimeInput envelope missing")
		chunks, ok := ri["mediaChunks"].([]any)
		require.True(t, ok)
		require.Len(t, chunks, 1)

		chunk := chunks[0].(map[string]any)
		assert.Equal(t, audio.CaptureMIMEType, chunk["mimeType"])
		assert.Equal(t, frame.Payload, chunk["data"])
	case <-time.After(3 * time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestReceive_DispatchesServerContent(t *testing.T) {
	chunk := audio.EncodeFrame([]float32{0.1, 0.2})

	srv := startLiveServer(t, func(conn *websocket.Conn) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"interrupted": true,
			},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []any{
						map[string]any{"inlineData": map[string]any{
							"mimeType": "audio/pcm;rate=24000",
							"data":     chunk.Payload,
						}},
					},
				},
				"inputTranscription":  map[string]any{"text": "xin"},
				"outputTranscription": map[string]any{"text": "hello"},
			},
		})
		time.Sleep(500 * time.Millisecond)
	})

	var (
		gotAudio       = make(chan string, 1)
		gotInterrupted = make(chan struct{}, 1)
		gotUser        = make(chan string, 1)
		gotModel       = make(chan string, 1)
	)

	p := newProvider(t, srv)
	ch, err := p.Open(context.Background(), channel.Config{Transcription: true}, channel.Events{
		ModelAudio:      func(payload string) { gotAudio <- payload },
		Interrupted:     func() { gotInterrupted <- struct{}{} },
		UserTranscript:  func(text string) { gotUser <- text },
		ModelTranscript: func(text string) { gotModel <- text },
	})
	require.NoError(t, err)
	defer ch.Close()

	waitFor := func(name string, ok func() bool) {
		require.Eventually(t, ok, 3*time.Second, 10*time.Millisecond, name)
	}

	waitFor("interrupted", func() bool { return len(gotInterrupted) == 1 })
	waitFor("audio", func() bool { return len(gotAudio) == 1 })
	waitFor("user transcript", func() bool { return len(gotUser) == 1 })
	waitFor("model transcript", func() bool { return len(gotModel) == 1 })

	assert.Equal(t, chunk.Payload, <-gotAudio)
	assert.Equal(t, "xin", <-gotUser)
	assert.Equal(t, "hello", <-gotModel)
}

func TestClose_Idempotent(t *testing.T) {
	srv := startLiveServer(t, func(conn *websocket.Conn) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		time.Sleep(200 * time.Millisecond)
	})

	p := newProvider(t, srv)
	ch, err := p.Open(context.Background(), channel.Config{}, channel.Events{})
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	assert.ErrorIs(t, ch.Send(audio.EncodeFrame([]float32{0})), channel.ErrClosed)
}
