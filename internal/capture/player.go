package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mferraz/profai/internal/observability"
)

var ErrPlaybackBusy = errors.New("playback already in progress for this message")

// Synthesizer turns text into an audio payload.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Sink delivers synthesized audio toward the speaker. The call returns when
// delivery is complete.
type Sink interface {
	PlayAudio(messageID string, audioData []byte) error
}

// Player synthesizes tutor messages on demand. At most one playback per
// message is in flight at a time; repeat requests while one is running are
// rejected, and the guard is cleared on every exit path.
type Player struct {
	synth   Synthesizer
	sink    Sink
	metrics *observability.Metrics

	mu      sync.Mutex
	playing map[string]bool
}

func NewPlayer(synth Synthesizer, sink Sink, metrics *observability.Metrics) *Player {
	return &Player{
		synth:   synth,
		sink:    sink,
		metrics: metrics,
		playing: make(map[string]bool),
	}
}

// Playing reports whether a playback for the message is currently in flight.
func (p *Player) Playing(messageID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing[messageID]
}

// Play synthesizes the text and hands the audio to the sink. While the call
// runs, further Play calls for the same message return ErrPlaybackBusy.
func (p *Player) Play(ctx context.Context, messageID, text string) error {
	p.mu.Lock()
	if p.playing[messageID] {
		p.mu.Unlock()
		return ErrPlaybackBusy
	}
	p.playing[messageID] = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.playing, messageID)
		p.mu.Unlock()
	}()

	audioData, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		p.metrics.PlaybackEvents.WithLabelValues("synthesis_error").Inc()
		return fmt.Errorf("synthesize message %s: %w", messageID, err)
	}

	if err := p.sink.PlayAudio(messageID, audioData); err != nil {
		p.metrics.PlaybackEvents.WithLabelValues("delivery_error").Inc()
		return fmt.Errorf("deliver audio for message %s: %w", messageID, err)
	}

	p.metrics.PlaybackEvents.WithLabelValues("played").Inc()
	return nil
}
