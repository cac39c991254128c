package relay

import (
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/protocol"
)

type sent struct {
	to   netip.AddrPort
	data []byte
}

type inbound struct {
	data []byte
	from netip.AddrPort
	err  error
}

var errTimeout = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeEndpoint records writes and serves reads from a channel.
type fakeEndpoint struct {
	mu       sync.Mutex
	sent     []sent
	failTo   map[netip.AddrPort]error
	in       chan inbound
	deadline time.Time
	closed   chan struct{}
	once     sync.Once
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{
		failTo: make(map[netip.AddrPort]error),
		in:     make(chan inbound, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeEndpoint) ReadFrom(buf []byte) (int, netip.AddrPort, error) {
	f.mu.Lock()
	wait := time.Until(f.deadline)
	f.mu.Unlock()
	if wait <= 0 {
		wait = time.Millisecond
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-f.closed:
		return 0, netip.AddrPort{}, core.ErrEndpointClosed
	case p := <-f.in:
		if p.err != nil {
			return 0, p.from, p.err
		}
		return copy(buf, p.data), p.from, nil
	case <-t.C:
		return 0, netip.AddrPort{}, errTimeout
	}
}

func (f *fakeEndpoint) WriteTo(fr core.Frame, addr netip.AddrPort) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failTo[addr]; ok {
		return err
	}
	f.sent = append(f.sent, sent{to: addr, data: append([]byte(nil), fr...)})
	return nil
}

func (f *fakeEndpoint) SetReadDeadline(t time.Time) error {
	f.mu.Lock()
	f.deadline = t
	f.mu.Unlock()
	return nil
}

func (f *fakeEndpoint) LocalAddr() netip.AddrPort {
	return netip.MustParseAddrPort("127.0.0.1:12345")
}

func (f *fakeEndpoint) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeEndpoint) fail(addr netip.AddrPort) {
	f.mu.Lock()
	f.failTo[addr] = errors.New("sendto: no route to host")
	f.mu.Unlock()
}

func (f *fakeEndpoint) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

func (f *fakeEndpoint) sentTo(addr netip.AddrPort) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, s := range f.sent {
		if s.to == addr {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeEndpoint) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []core.SessionEvent
}

func (r *recordingSink) Publish(ev core.SessionEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingSink) types() []core.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func control(env *protocol.Envelope) []byte {
	return protocol.MustEncode(env)
}

func decodeAll(s []sent) []protocol.MessageType {
	out := make([]protocol.MessageType, 0, len(s))
	for _, m := range s {
		env, err := protocol.Decode(m.data)
		if err != nil {
			out = append(out, "")
			continue
		}
		out = append(out, env.Type)
	}
	return out
}
