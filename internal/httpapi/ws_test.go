package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mferraz/profai/internal/api"
	"github.com/mferraz/profai/internal/capture"
	"github.com/mferraz/profai/internal/chat"
	"github.com/mferraz/profai/internal/config"
	"github.com/mferraz/profai/internal/ingest"
	"github.com/mferraz/profai/internal/protocol"
)

func dialWS(t *testing.T, h *harness) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/v1/ws"
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	if res != nil {
		res.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads server messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want protocol.MessageType) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q: %v", want, err)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("invalid server message %q: %v", data, err)
		}
		if env.Type == want {
			return data
		}
	}
}

func TestWebSocketSendDeliversBothMessages(t *testing.T) {
	h := newHarness(t)
	h.createConversation(t, "Frações", "Matemática")

	conn := dialWS(t, h)

	send := protocol.ClientSend{Type: protocol.TypeClientSend, Message: "quanto é 2+2?", RequestType: api.RequestAnswer}
	if err := conn.WriteJSON(send); err != nil {
		t.Fatalf("write client_send error = %v", err)
	}

	var first protocol.MessageAppended
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeMessageAppended), &first); err != nil {
		t.Fatalf("decode first message_appended: %v", err)
	}
	if first.Message.Role != api.RoleUser {
		t.Fatalf("first appended role = %q, want user", first.Message.Role)
	}
	if first.View != nil {
		t.Fatal("user message must not carry a rendered view")
	}

	var second protocol.MessageAppended
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeMessageAppended), &second); err != nil {
		t.Fatalf("decode second message_appended: %v", err)
	}
	if second.Message.Role != api.RoleTutor {
		t.Fatalf("second appended role = %q, want assistant", second.Message.Role)
	}
	if second.View == nil || !second.View.Playable {
		t.Fatalf("tutor view = %+v, want playable rendering", second.View)
	}
}

func TestWebSocketVoiceCapture(t *testing.T) {
	h := newHarness(t)
	h.createConversation(t, "Frações", "Matemática")

	conn := dialWS(t, h)

	start := protocol.ClientControl{Type: protocol.TypeClientControl, Action: protocol.ActionStartRecording, SampleRate: 16000}
	if err := conn.WriteJSON(start); err != nil {
		t.Fatalf("write start control error = %v", err)
	}

	var state protocol.RecordingState
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeRecordingState), &state); err != nil {
		t.Fatalf("decode recording_state: %v", err)
	}
	if state.State != "recording" || state.SessionID == "" {
		t.Fatalf("recording_state = %+v, want recording with session id", state)
	}

	chunk := protocol.ClientAudioChunk{
		Type:        protocol.TypeClientAudioChunk,
		SessionID:   state.SessionID,
		Seq:         1,
		PCM16Base64: base64.StdEncoding.EncodeToString([]byte{1, 0, 2, 0}),
		SampleRate:  16000,
	}
	if err := conn.WriteJSON(chunk); err != nil {
		t.Fatalf("write audio chunk error = %v", err)
	}

	stop := protocol.ClientControl{Type: protocol.TypeClientControl, Action: protocol.ActionStopRecording, SessionID: state.SessionID}
	if err := conn.WriteJSON(stop); err != nil {
		t.Fatalf("write stop control error = %v", err)
	}

	var pending protocol.PendingText
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypePendingText), &pending); err != nil {
		t.Fatalf("decode pending_text: %v", err)
	}
	if pending.Text != "quanto é dois mais dois" {
		t.Fatalf("pending text = %q, want transcript", pending.Text)
	}

	// Staged transcript does not touch the history.
	if msgs := h.srv.chat.Messages(); len(msgs) != 0 {
		t.Fatalf("history after transcription = %+v, want empty", msgs)
	}
}

func TestWebSocketPlaybackDeliversAudio(t *testing.T) {
	h := newHarness(t)
	h.createConversation(t, "Frações", "Matemática")

	res := h.postJSON(t, "/v1/send", map[string]string{"message": "quanto é 2+2?", "request_type": "help"})
	var sendOut struct {
		Messages []api.Message `json:"messages"`
	}
	decodeBody(t, res, &sendOut)
	tutorID := sendOut.Messages[1].ID

	conn := dialWS(t, h)

	play := protocol.ClientPlay{Type: protocol.TypeClientPlay, MessageID: tutorID}
	if err := conn.WriteJSON(play); err != nil {
		t.Fatalf("write client_play error = %v", err)
	}

	var audio protocol.PlaybackAudio
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypePlaybackAudio), &audio); err != nil {
		t.Fatalf("decode playback_audio: %v", err)
	}
	if audio.MessageID != tutorID || audio.Format != "mp3" {
		t.Fatalf("playback_audio = %+v", audio)
	}
	decoded, err := base64.StdEncoding.DecodeString(audio.AudioBase64)
	if err != nil || len(decoded) == 0 {
		t.Fatalf("audio payload = %q, decode err = %v", audio.AudioBase64, err)
	}
}

func TestWebSocketRejectsInvalidMessage(t *testing.T) {
	h := newHarness(t)
	conn := dialWS(t, h)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"wat"}`)); err != nil {
		t.Fatalf("write error = %v", err)
	}

	var errEvent protocol.ErrorEvent
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeErrorEvent), &errEvent); err != nil {
		t.Fatalf("decode error_event: %v", err)
	}
	if errEvent.Code != "invalid_client_message" {
		t.Fatalf("error code = %q, want invalid_client_message", errEvent.Code)
	}
}

func TestWebSocketErrorStaysOnOffendingConnection(t *testing.T) {
	h := newHarness(t)
	offender := dialWS(t, h)
	bystander := dialWS(t, h)

	if err := offender.WriteMessage(websocket.TextMessage, []byte(`{"type":"wat"}`)); err != nil {
		t.Fatalf("write error = %v", err)
	}

	var errEvent protocol.ErrorEvent
	if err := json.Unmarshal(readUntil(t, offender, protocol.TypeErrorEvent), &errEvent); err != nil {
		t.Fatalf("decode error_event: %v", err)
	}
	if errEvent.Code != "invalid_client_message" {
		t.Fatalf("error code = %q, want invalid_client_message", errEvent.Code)
	}

	_ = bystander.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, data, err := bystander.ReadMessage(); err == nil {
		t.Fatalf("bystander received %q, want nothing", data)
	}
}

func TestWebSocketOriginCheck(t *testing.T) {
	backend := newProfaiBackend()
	backendTS := httptest.NewServer(backend)
	t.Cleanup(backendTS.Close)

	cfg := config.Config{
		RequestTimeout: 5 * time.Second,
		MaxUploadBytes: 1 << 20,
		AllowAnyOrigin: false,
	}
	client := api.NewClient(backendTS.URL, "", cfg.RequestTimeout, cfg.RequestTimeout)
	metrics := newTestMetrics()
	controller := chat.NewController(client, nil, metrics)
	hub := NewHub(metrics)
	recorder := capture.NewRecorder(client, controller, metrics, 16000, 1<<20)
	player := capture.NewPlayer(client, hub, metrics)
	pipeline := ingest.NewPipeline(client, controller, metrics, cfg.MaxUploadBytes)
	srv := New(cfg, controller, recorder, player, pipeline, client, hub, metrics)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		conn.Close()
		t.Fatal("cross-origin websocket dial succeeded, want rejection")
	}
	if res != nil {
		res.Body.Close()
	}
}
