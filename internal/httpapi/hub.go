package httpapi

import (
	"encoding/base64"
	"sync"

	"github.com/mferraz/profai/internal/observability"
	"github.com/mferraz/profai/internal/protocol"
)

// Hub fans server events out to every connected websocket client. It also
// serves as the playback sink: synthesized audio is delivered to the browser
// as a playback_audio message.
type Hub struct {
	metrics *observability.Metrics

	mu      sync.Mutex
	clients map[chan any]struct{}
}

func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{
		metrics: metrics,
		clients: make(map[chan any]struct{}),
	}
}

// Register adds a client and returns its outbound channel plus an unregister
// function. The channel is buffered; slow clients drop messages instead of
// blocking the rest. The caller may also queue messages addressed to this
// client alone on the returned channel.
func (h *Hub) Register() (chan any, func()) {
	ch := make(chan any, 256)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	once := sync.Once{}
	unregister := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			h.mu.Unlock()
		})
	}
	return ch, unregister
}

// Broadcast queues one message on every connected client.
func (h *Hub) Broadcast(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
			// Keep websocket writes single-threaded; drop if the client's
			// queue is saturated.
		}
	}
}

// ClientCount reports how many websocket clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// PlayAudio delivers synthesized speech toward the browser speaker.
func (h *Hub) PlayAudio(messageID string, audioData []byte) error {
	h.Broadcast(protocol.PlaybackAudio{
		Type:        protocol.TypePlaybackAudio,
		MessageID:   messageID,
		Format:      "mp3",
		AudioBase64: base64.StdEncoding.EncodeToString(audioData),
	})
	return nil
}
