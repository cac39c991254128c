package udp

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/dkeye/voicerelay/internal/core"
)

func listenLoopback(t *testing.T) *Endpoint {
	t.Helper()
	ep, err := Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ep.Close() })
	return ep
}

func TestEndpointRoundTrip(t *testing.T) {
	a := listenLoopback(t)
	b := listenLoopback(t)

	if err := a.WriteTo(core.Frame("hello"), b.LocalAddr()); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := b.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	buf := make([]byte, 64)
	n, from, err := b.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("payload = %q", buf[:n])
	}
	if from != a.LocalAddr() {
		t.Errorf("from = %v, want %v", from, a.LocalAddr())
	}
}

func TestEndpointReadTimeout(t *testing.T) {
	ep := listenLoopback(t)
	if err := ep.SetReadDeadline(time.Now().Add(20 * time.Millisecond)); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	_, _, err := ep.ReadFrom(make([]byte, 16))
	if !core.IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestEndpointClosed(t *testing.T) {
	ep, err := Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := ep.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ep.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
	_, _, err = ep.ReadFrom(make([]byte, 16))
	if !errors.Is(err, core.ErrEndpointClosed) {
		t.Fatalf("expected ErrEndpointClosed, got %v", err)
	}
}

func TestNormalizeUnmaps(t *testing.T) {
	mapped := netip.MustParseAddrPort("[::ffff:127.0.0.1]:9000")
	if got := normalize(mapped); got != netip.MustParseAddrPort("127.0.0.1:9000") {
		t.Errorf("normalize = %v", got)
	}
}

func TestResolve(t *testing.T) {
	ap, err := Resolve("127.0.0.1", 12345)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ap != netip.MustParseAddrPort("127.0.0.1:12345") {
		t.Errorf("resolve = %v", ap)
	}
}
