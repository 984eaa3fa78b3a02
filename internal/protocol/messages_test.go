package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageAudioChunk(t *testing.T) {
	raw := []byte(`{"type":"client_audio_chunk","session_id":"s1","seq":1,"pcm16_base64":"AQID","sample_rate":16000}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	audio, ok := msg.(ClientAudioChunk)
	if !ok {
		t.Fatalf("message type = %T, want ClientAudioChunk", msg)
	}
	if audio.SessionID != "s1" || audio.SampleRate != 16000 {
		t.Fatalf("unexpected audio chunk: %+v", audio)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageControl(t *testing.T) {
	raw := []byte(`{"type":"client_control","action":"stop_recording","session_id":"s1"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != ActionStopRecording || control.SessionID != "s1" {
		t.Fatalf("unexpected client control: %+v", control)
	}
}

func TestParseClientMessageControlRequiresSession(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"client_control","action":"stop_recording"}`)); err == nil {
		t.Fatal("stop_recording without session_id must fail")
	}
	if _, err := ParseClientMessage([]byte(`{"type":"client_control","action":"start_recording","sample_rate":16000}`)); err != nil {
		t.Fatalf("start_recording error = %v", err)
	}
}

func TestParseClientMessageSend(t *testing.T) {
	raw := []byte(`{"type":"client_send","message":"quanto é 2+2?","request_type":"answer"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	send, ok := msg.(ClientSend)
	if !ok {
		t.Fatalf("message type = %T, want ClientSend", msg)
	}
	if send.Message != "quanto é 2+2?" || send.RequestType != "answer" {
		t.Fatalf("unexpected client send: %+v", send)
	}
}

func TestParseClientMessagePlayRequiresMessageID(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"client_play"}`)); err == nil {
		t.Fatal("client_play without message_id must fail")
	}
	msg, err := ParseClientMessage([]byte(`{"type":"client_play","message_id":"m1"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if play := msg.(ClientPlay); play.MessageID != "m1" {
		t.Fatalf("unexpected client play: %+v", play)
	}
}

func TestParseClientMessageRejectsInvalidAudioChunk(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"client_audio_chunk","session_id":"","pcm16_base64":"","sample_rate":0}`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}
