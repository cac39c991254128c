// Package udp adapts *net.UDPConn to core.Endpoint and maps socket errors onto
// the core transport error taxonomy.
package udp

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"syscall"
	"time"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/rs/zerolog/log"
)

type Endpoint struct {
	conn *net.UDPConn
	once sync.Once
}

// Listen binds host:port. An empty host means all interfaces, port 0 an
// ephemeral port.
func Listen(host string, port int) (*Endpoint, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve udp address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	log.Info().Str("module", "adapters.udp").Str("addr", conn.LocalAddr().String()).Msg("endpoint bound")
	return &Endpoint{conn: conn}, nil
}

// Resolve turns host:port into the address form used as a registry key.
func Resolve(host string, port int) (netip.AddrPort, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("resolve %s:%d: %w", host, port, err)
	}
	return normalize(addr.AddrPort()), nil
}

func (e *Endpoint) ReadFrom(buf []byte) (int, netip.AddrPort, error) {
	n, from, err := e.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		return n, normalize(from), classify(err)
	}
	return n, normalize(from), nil
}

func (e *Endpoint) WriteTo(f core.Frame, addr netip.AddrPort) error {
	if _, err := e.conn.WriteToUDPAddrPort(f, addr); err != nil {
		return classify(err)
	}
	return nil
}

func (e *Endpoint) SetReadDeadline(t time.Time) error {
	return classify(e.conn.SetReadDeadline(t))
}

func (e *Endpoint) LocalAddr() netip.AddrPort {
	if ua, ok := e.conn.LocalAddr().(*net.UDPAddr); ok {
		return normalize(ua.AddrPort())
	}
	return netip.AddrPort{}
}

// Close is idempotent.
func (e *Endpoint) Close() error {
	var err error
	e.once.Do(func() {
		err = e.conn.Close()
		log.Debug().Str("module", "adapters.udp").Msg("endpoint closed")
	})
	return err
}

// normalize strips IPv4-mapped IPv6 so a peer has one key on dual-stack sockets.
func normalize(ap netip.AddrPort) netip.AddrPort {
	if !ap.IsValid() {
		return ap
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case core.IsTimeout(err):
		return err
	case errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %v", core.ErrEndpointClosed, err)
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %v", core.ErrConnectionReset, err)
	default:
		return err
	}
}
