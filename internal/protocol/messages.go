package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mferraz/profai/internal/api"
	"github.com/mferraz/profai/internal/render"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// Client to server.
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeClientControl    MessageType = "client_control"
	TypeClientSend       MessageType = "client_send"
	TypeClientPlay       MessageType = "client_play"

	// Server to client.
	TypeMessageAppended      MessageType = "message_appended"
	TypeConversationSelected MessageType = "conversation_selected"
	TypeConversationCreated  MessageType = "conversation_created"
	TypePendingText          MessageType = "pending_text"
	TypeRecordingState       MessageType = "recording_state"
	TypePlaybackAudio        MessageType = "playback_audio"
	TypeErrorEvent           MessageType = "error_event"
)

// Control actions accepted inside a ClientControl message.
const (
	ActionStartRecording MessageType = "start_recording"
	ActionStopRecording  MessageType = "stop_recording"
	ActionAbortRecording MessageType = "abort_recording"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	Action    MessageType `json:"action"`
	SessionID string      `json:"session_id,omitempty"`
	// SampleRate applies to start_recording.
	SampleRate int `json:"sample_rate,omitempty"`
}

type ClientSend struct {
	Type        MessageType     `json:"type"`
	Message     string          `json:"message"`
	RequestType api.RequestType `json:"request_type"`
}

type ClientPlay struct {
	Type      MessageType `json:"type"`
	MessageID string      `json:"message_id"`
}

type MessageAppended struct {
	Type           MessageType  `json:"type"`
	ConversationID string       `json:"conversation_id"`
	Message        api.Message  `json:"message"`
	View           *render.View `json:"view,omitempty"`
}

type ConversationEvent struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
}

type PendingText struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

type RecordingState struct {
	Type      MessageType `json:"type"`
	State     string      `json:"state"`
	SessionID string      `json:"session_id,omitempty"`
}

type PlaybackAudio struct {
	Type        MessageType `json:"type"`
	MessageID   string      `json:"message_id"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

type ErrorEvent struct {
	Type     MessageType `json:"type"`
	Code     string      `json:"code"`
	Category string      `json:"category,omitempty"`
	Detail   string      `json:"detail"`
}

// ParseClientMessage decodes and validates one inbound websocket payload.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionStartRecording:
		case ActionStopRecording, ActionAbortRecording:
			if msg.SessionID == "" {
				return nil, errors.New("invalid client_control: missing session_id")
			}
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	case TypeClientSend:
		var msg ClientSend
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeClientPlay:
		var msg ClientPlay
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.MessageID == "" {
			return nil, errors.New("invalid client_play: missing message_id")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
