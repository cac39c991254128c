package core

import (
	"errors"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/dkeye/voicerelay/internal/domain"
)

// Frame is a raw binary payload (an audio chunk or an encoded control envelope).
type Frame []byte

var (
	// ErrEndpointClosed is returned once the local endpoint has been closed.
	ErrEndpointClosed = errors.New("endpoint closed")
	// ErrConnectionReset means the remote deliberately reset the connection.
	ErrConnectionReset = errors.New("connection reset by peer")
	// ErrBackpressure is returned by non-blocking sends when the queue is full.
	ErrBackpressure = errors.New("backpressure")
)

// Endpoint is an unreliable, connectionless datagram transport bound to one
// local address. Owned by the adapter; the owner must Close() it.
type Endpoint interface {
	ReadFrom(buf []byte) (int, netip.AddrPort, error)
	WriteTo(f Frame, addr netip.AddrPort) error
	SetReadDeadline(t time.Time) error
	LocalAddr() netip.AddrPort
	Close() error
}

// IsTimeout reports whether err is a bounded-wait read expiring. It is a loop
// re-entry signal, not a failure.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// PublishResult reports fan-out delivery to the engine.
type PublishResult struct {
	SendTo  int
	Dropped []netip.AddrPort
}

type EventType string

const (
	EventRegistered   EventType = "registered"
	EventDisconnected EventType = "disconnected"
	EventEvicted      EventType = "evicted"
	EventExpired      EventType = "expired"
	EventReset        EventType = "reset"
)

// SessionEvent is a read-only view of a registry transition for observers.
type SessionEvent struct {
	Type EventType        `json:"type"`
	ID   domain.SessionID `json:"id"`
	Name string           `json:"name"`
	Addr string           `json:"addr"`
	At   time.Time        `json:"at"`
}

// EventSink receives session events. Publish must not block.
type EventSink interface {
	Publish(SessionEvent)
}
