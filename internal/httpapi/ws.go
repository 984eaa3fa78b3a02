package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mferraz/profai/internal/capture"
	"github.com/mferraz/profai/internal/chat"
	"github.com/mferraz/profai/internal/protocol"
	"github.com/mferraz/profai/internal/reliability"
)

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	outbound, unregister := s.hub.Register()
	defer unregister()

	// Errors caused by this client go to this client only; shared state
	// changes still fan out through the hub.
	reply := func(msg any) {
		select {
		case outbound <- msg:
		default:
			// Keep websocket writes single-threaded; drop if the outbound
			// queue is saturated.
		}
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			reply(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		s.dispatchClientMessage(ctx, parsed, reply)
	}

	cancel()
	<-writerDone
}

// dispatchClientMessage routes one inbound websocket message. Backend calls
// run in their own goroutine so the read loop never blocks on the tutor;
// overlapping sends stay possible, as they are from the HTTP surface.
func (s *Server) dispatchClientMessage(ctx context.Context, parsed any, reply func(any)) {
	switch msg := parsed.(type) {
	case protocol.ClientAudioChunk:
		pcm, err := base64.StdEncoding.DecodeString(msg.PCM16Base64)
		if err != nil {
			reply(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "invalid_audio_chunk", Detail: err.Error()})
			return
		}
		if err := s.recorder.AddChunk(msg.SessionID, pcm); err != nil {
			reply(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "recording_failed", Detail: err.Error()})
			s.hub.Broadcast(protocol.RecordingState{Type: protocol.TypeRecordingState, State: string(s.recorder.State())})
		}
	case protocol.ClientControl:
		s.handleRecordingControl(ctx, msg, reply)
	case protocol.ClientSend:
		go func() {
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RequestTimeout)
			defer cancel()
			if _, err := s.chat.Send(sendCtx, msg.RequestType, msg.Message); err != nil {
				if errors.Is(err, chat.ErrInvalidRequestType) {
					reply(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "invalid_request_type", Detail: err.Error()})
					return
				}
				// The failure event already reached the hub via the chat
				// event hook; log the category for the operator.
				log.Printf("websocket send failed (%s): %v", reliability.Classify(err), err)
			}
		}()
	case protocol.ClientPlay:
		view, ok := s.messageView(msg.MessageID)
		if !ok || !view.Playable {
			reply(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "not_playable", Detail: "message has no speakable text"})
			return
		}
		go func() {
			playCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RequestTimeout)
			defer cancel()
			if err := s.player.Play(playCtx, msg.MessageID, view.SpeakText); err != nil {
				reply(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "playback_failed", Detail: err.Error()})
			}
		}()
	}
}

func (s *Server) handleRecordingControl(ctx context.Context, msg protocol.ClientControl, reply func(any)) {
	switch msg.Action {
	case protocol.ActionStartRecording:
		id, err := s.recorder.Start(msg.SampleRate)
		if err != nil {
			reply(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "recording_in_progress", Detail: err.Error()})
			return
		}
		s.hub.Broadcast(protocol.RecordingState{Type: protocol.TypeRecordingState, State: string(capture.StateRecording), SessionID: id})
	case protocol.ActionStopRecording:
		go func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RequestTimeout)
			defer cancel()
			s.hub.Broadcast(protocol.RecordingState{Type: protocol.TypeRecordingState, State: string(capture.StateTranscribing), SessionID: msg.SessionID})
			if err := s.recorder.Stop(stopCtx, msg.SessionID); err != nil {
				reply(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "transcription_failed", Detail: err.Error()})
			}
			s.hub.Broadcast(protocol.RecordingState{Type: protocol.TypeRecordingState, State: string(capture.StateIdle)})
		}()
	case protocol.ActionAbortRecording:
		if err := s.recorder.Abort(msg.SessionID); err != nil {
			reply(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "no_recording_session", Detail: err.Error()})
			return
		}
		s.hub.Broadcast(protocol.RecordingState{Type: protocol.TypeRecordingState, State: string(capture.StateIdle)})
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAudioChunk:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.ClientSend:
		return m.Type, true
	case protocol.ClientPlay:
		return m.Type, true
	case protocol.MessageAppended:
		return m.Type, true
	case protocol.ConversationEvent:
		return m.Type, true
	case protocol.PendingText:
		return m.Type, true
	case protocol.RecordingState:
		return m.Type, true
	case protocol.PlaybackAudio:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
