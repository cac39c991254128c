// Package feed pushes registry events to websocket subscribers.
package feed

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans session events out to subscribers. Publish never blocks: a
// subscriber whose queue is full is dropped.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
	buf  int
}

var _ core.EventSink = (*Hub)(nil)

func NewHub(buf int) *Hub {
	if buf <= 0 {
		buf = 32
	}
	return &Hub{subs: make(map[*Subscriber]struct{}), buf: buf}
}

func (h *Hub) Publish(ev core.SessionEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "feed").Msg("marshal event")
		return
	}

	h.mu.RLock()
	var slow []*Subscriber
	for s := range h.subs {
		if err := s.TrySend(b); err != nil {
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		log.Warn().Str("module", "feed").Str("event", string(ev.Type)).Msg("dropping slow subscriber")
		h.remove(s)
		s.Close()
	}
}

// ServeHTTP upgrades the request and streams events until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "feed").Msg("ws upgrade")
		return
	}

	s := newSubscriber(ws, h.buf)
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	log.Info().Str("module", "feed").Str("remote", r.RemoteAddr).Msg("event subscriber connected")

	go s.writePump()
	go s.readPump(func() { h.remove(s) })
}

func (h *Hub) remove(s *Subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*Subscriber]struct{})
	h.mu.Unlock()
	for s := range subs {
		s.Close()
	}
}
