package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mferraz/profai/internal/audio"
	"github.com/mferraz/profai/internal/observability"
)

// State is the recorder's position in its lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
)

var (
	ErrAlreadyRecording  = errors.New("a recording session is already active")
	ErrNoSession         = errors.New("no matching recording session")
	ErrRecordingTooLarge = errors.New("recording exceeds the configured size limit")
)

// Transcriber converts a finished WAV payload into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Stager receives a transcript for user review. It must not send.
type Stager interface {
	StageText(text string)
}

// Recorder owns the single microphone capture session. The physical device
// lives in the browser UI; the recorder is the authority on whether a session
// exists, buffers its PCM chunks, and drives the transcription handoff.
// Lifecycle: idle -> recording -> transcribing -> idle, and the session is
// always torn down on the way out, whatever happens to the transcription.
type Recorder struct {
	transcriber Transcriber
	stager      Stager
	metrics     *observability.Metrics
	sampleRate  int
	maxBytes    int

	mu        sync.Mutex
	state     State
	sessionID string
	buf       bytes.Buffer
	rate      int
}

func NewRecorder(transcriber Transcriber, stager Stager, metrics *observability.Metrics, sampleRate, maxBytes int) *Recorder {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if maxBytes <= 0 {
		maxBytes = 8 << 20
	}
	return &Recorder{
		transcriber: transcriber,
		stager:      stager,
		metrics:     metrics,
		sampleRate:  sampleRate,
		maxBytes:    maxBytes,
		state:       StateIdle,
	}
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start opens a new recording session and returns its id. A second Start
// while one session exists is rejected.
func (r *Recorder) Start(sampleRate int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return "", ErrAlreadyRecording
	}
	if sampleRate <= 0 {
		sampleRate = r.sampleRate
	}
	r.state = StateRecording
	r.sessionID = uuid.NewString()
	r.rate = sampleRate
	r.buf.Reset()

	r.metrics.RecordingEvents.WithLabelValues("started").Inc()
	r.metrics.ActiveRecording.Set(1)
	return r.sessionID, nil
}

// AddChunk buffers one PCM16LE chunk for the active session. An oversized
// recording aborts the session outright.
func (r *Recorder) AddChunk(sessionID string, pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording || r.sessionID != sessionID {
		return ErrNoSession
	}
	if r.buf.Len()+len(pcm) > r.maxBytes {
		r.releaseLocked("aborted")
		return ErrRecordingTooLarge
	}
	r.buf.Write(pcm)
	return nil
}

// Abort tears down the active session without transcribing, e.g. when the
// browser reports that the device was lost mid-capture.
func (r *Recorder) Abort(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording || r.sessionID != sessionID {
		return ErrNoSession
	}
	r.releaseLocked("aborted")
	return nil
}

// Stop finalizes the buffered chunks into one WAV payload, releases the
// session, and submits the payload for transcription. The transcript is
// staged for review, never auto-sent. The recorder returns to idle on every
// path, including transcription failure.
func (r *Recorder) Stop(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	if r.state != StateRecording || r.sessionID != sessionID {
		r.mu.Unlock()
		return ErrNoSession
	}
	pcm := append([]byte(nil), r.buf.Bytes()...)
	rate := r.rate
	r.state = StateTranscribing
	r.releaseSessionLocked()
	r.metrics.RecordingEvents.WithLabelValues("stopped").Inc()
	r.metrics.ActiveRecording.Set(0)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.state = StateIdle
		r.mu.Unlock()
	}()

	wav, err := audio.EncodeWAVPCM16LE(pcm, rate)
	if err != nil {
		r.metrics.RecordingEvents.WithLabelValues("transcribe_error").Inc()
		return fmt.Errorf("assemble recording: %w", err)
	}

	text, err := r.transcriber.Transcribe(ctx, wav)
	if err != nil {
		r.metrics.RecordingEvents.WithLabelValues("transcribe_error").Inc()
		log.Printf("transcription failed: %v", err)
		return fmt.Errorf("transcribe recording: %w", err)
	}

	r.metrics.RecordingEvents.WithLabelValues("transcribed").Inc()
	if strings.TrimSpace(text) != "" {
		r.stager.StageText(text)
	}
	return nil
}

func (r *Recorder) releaseLocked(event string) {
	r.state = StateIdle
	r.releaseSessionLocked()
	r.metrics.RecordingEvents.WithLabelValues(event).Inc()
	r.metrics.ActiveRecording.Set(0)
}

func (r *Recorder) releaseSessionLocked() {
	r.sessionID = ""
	r.buf.Reset()
	r.rate = 0
}
