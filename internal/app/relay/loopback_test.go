package relay

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dkeye/voicerelay/internal/adapters/udp"
	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/protocol"
)

type peer struct {
	t  *testing.T
	ep *udp.Endpoint
}

func newPeer(t *testing.T) *peer {
	t.Helper()
	ep, err := udp.Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ep.Close() })
	return &peer{t: t, ep: ep}
}

func (p *peer) send(to *udp.Endpoint, data []byte) {
	p.t.Helper()
	if err := p.ep.WriteTo(data, to.LocalAddr()); err != nil {
		p.t.Fatalf("send: %v", err)
	}
}

// recv returns every datagram that arrives within d.
func (p *peer) recv(d time.Duration) [][]byte {
	var out [][]byte
	buf := make([]byte, protocol.MaxDatagramSize)
	_ = p.ep.SetReadDeadline(time.Now().Add(d))
	for {
		n, _, err := p.ep.ReadFrom(buf)
		if err != nil {
			return out
		}
		out = append(out, append([]byte(nil), buf[:n]...))
	}
}

func (p *peer) expect(t protocol.MessageType) {
	p.t.Helper()
	got := p.recv(500 * time.Millisecond)
	if len(got) != 1 {
		p.t.Fatalf("expected one %s, got %d datagrams", t, len(got))
	}
	env, err := protocol.Decode(got[0])
	if err != nil || env.Type != t {
		p.t.Fatalf("expected %s, got %q (%v)", t, got[0], err)
	}
}

func TestLoopbackRelay(t *testing.T) {
	server, err := udp.Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer server.Close()

	e := NewEngine(server, app.NewRegistry(), Config{ReadTimeout: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	alice, bob := newPeer(t), newPeer(t)

	alice.send(server, protocol.MustEncode(protocol.Register("Alice", time.Now())))
	alice.expect(protocol.TypeRegistered)
	bob.send(server, protocol.MustEncode(protocol.Register("Bob", time.Now())))
	bob.expect(protocol.TypeRegistered)

	bob.send(server, protocol.MustEncode(protocol.Heartbeat(time.Now())))
	bob.expect(protocol.TypeHeartbeatAck)

	payload := bytes.Repeat([]byte{0x01, 0x02}, 1024)
	for i := 0; i < 5; i++ {
		alice.send(server, payload)
	}

	got := bob.recv(300 * time.Millisecond)
	if len(got) != 5 {
		t.Fatalf("Bob received %d frames, want 5", len(got))
	}
	for _, f := range got {
		if !bytes.Equal(f, payload) {
			t.Fatal("relayed frame differs from the original")
		}
	}
	if echoed := alice.recv(100 * time.Millisecond); len(echoed) != 0 {
		t.Errorf("Alice received %d datagrams, want 0", len(echoed))
	}

	bob.send(server, protocol.MustEncode(protocol.Disconnect(time.Now())))
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && e.Registry().Count() != 1 {
		time.Sleep(5 * time.Millisecond)
	}
	alice.send(server, payload)
	if late := bob.recv(150 * time.Millisecond); len(late) != 0 {
		t.Errorf("Bob received %d frames after disconnect", len(late))
	}
}
