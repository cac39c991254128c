package feed

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var errSubscriberClosed = errors.New("subscriber closed")

// Subscriber is one websocket client of the event feed.
type Subscriber struct {
	conn *websocket.Conn
	send chan core.Frame
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newSubscriber(conn *websocket.Conn, buf int) *Subscriber {
	return &Subscriber{
		conn: conn,
		send: make(chan core.Frame, buf),
		done: make(chan struct{}),
	}
}

// TrySend queues f without blocking.
func (s *Subscriber) TrySend(f core.Frame) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errSubscriberClosed
	}
	select {
	case s.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close stops the subscriber; writePump sends a close frame and releases the connection.
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
}

func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case data := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "feed").Msg("writePump set deadline")
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "feed").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "feed").Msg("writePump ping error")
				return
			}
		}
	}
}

// readPump only drains control frames; the feed is server-to-client.
func (s *Subscriber) readPump(onClose func()) {
	defer func() {
		onClose()
		s.Close()
	}()

	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "feed").Msg("readPump read error")
			}
			return
		}
	}
}
