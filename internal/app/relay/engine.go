// Package relay is the server core: a single sequential receive loop that
// classifies each datagram, dispatches control envelopes against the client
// registry and fans audio frames out to every other registered address.
package relay

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/dkeye/voicerelay/internal/metrics"
	"github.com/dkeye/voicerelay/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// ReadTimeout bounds each receive so cancellation is observed.
	ReadTimeout time.Duration
	// ErrorBackoff is slept after a receive error that is not a timeout.
	ErrorBackoff time.Duration
	// SessionTimeout evicts silent sessions; zero disables the sweep.
	SessionTimeout time.Duration
	SweepInterval  time.Duration
	MaxDatagram    int
	// ErrorReplyLimit caps "register first" replies per address per second; zero disables.
	ErrorReplyLimit int
}

func DefaultConfig() Config {
	return Config{
		ReadTimeout:     time.Second,
		ErrorBackoff:    time.Second,
		SessionTimeout:  60 * time.Second,
		SweepInterval:   10 * time.Second,
		MaxDatagram:     protocol.MaxDatagramSize,
		ErrorReplyLimit: 0,
	}
}

// Engine owns the registry; all reads and writes go through the engine's
// dispatch path or the registry's locked operations.
type Engine struct {
	conn     core.Endpoint
	registry *app.Registry
	policy   app.Policy
	metrics  *metrics.Metrics
	events   core.EventSink
	limiter  *app.ReplyLimiter
	cfg      Config
	logger   zerolog.Logger
}

type Option func(*Engine)

func WithPolicy(p app.Policy) Option        { return func(e *Engine) { e.policy = p } }
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }
func WithEvents(s core.EventSink) Option    { return func(e *Engine) { e.events = s } }

func NewEngine(conn core.Endpoint, registry *app.Registry, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.ErrorBackoff < 0 {
		cfg.ErrorBackoff = 0
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.MaxDatagram <= 0 {
		cfg.MaxDatagram = def.MaxDatagram
	}
	e := &Engine{
		conn:     conn,
		registry: registry,
		policy:   app.SimplePolicy{},
		limiter:  app.NewReplyLimiter(cfg.ErrorReplyLimit, time.Second),
		cfg:      cfg,
		logger:   log.With().Str("module", "relay").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Registry() *app.Registry { return e.registry }

// Run receives until ctx is cancelled or the endpoint is closed. Datagram
// handling is inline; the liveness sweep, if enabled, runs alongside and only
// touches the registry through its locked operations.
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	if e.maintenanceEnabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.sweepLoop(ctx)
		}()
	}
	defer wg.Wait()

	e.logger.Info().
		Str("addr", e.conn.LocalAddr().String()).
		Dur("session_timeout", e.cfg.SessionTimeout).
		Int("error_reply_limit", e.cfg.ErrorReplyLimit).
		Msg("relay started")

	buf := make([]byte, e.cfg.MaxDatagram)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("relay ctx done")
			return nil
		default:
		}

		if err := e.conn.SetReadDeadline(time.Now().Add(e.cfg.ReadTimeout)); err != nil {
			if errors.Is(err, core.ErrEndpointClosed) {
				return nil
			}
			e.logger.Error().Err(err).Msg("set read deadline")
			e.backoff(ctx)
			continue
		}

		n, from, err := e.conn.ReadFrom(buf)
		if err != nil {
			if e.handleReadError(ctx, from, err) {
				return nil
			}
			continue
		}

		// The buffer is reused; broadcast payloads must not alias it.
		data := make([]byte, n)
		copy(data, buf[:n])
		e.HandleDatagram(data, from)
	}
}

// handleReadError reports whether the loop must stop.
func (e *Engine) handleReadError(ctx context.Context, from netip.AddrPort, err error) bool {
	switch {
	case core.IsTimeout(err):
		return false
	case errors.Is(err, core.ErrEndpointClosed):
		if ctx.Err() == nil {
			e.logger.Warn().Err(err).Msg("endpoint closed under relay")
		}
		return true
	case errors.Is(err, core.ErrConnectionReset):
		e.logger.Warn().Err(err).Str("addr", from.String()).Msg("client forcibly closed connection")
		if from.IsValid() {
			e.removeSession(from, core.EventReset, metrics.ReasonReset)
		}
		return false
	default:
		if ctx.Err() != nil {
			return true
		}
		e.metrics.RecordTransportError()
		e.logger.Error().Err(err).Msg("receive error")
		e.backoff(ctx)
		return false
	}
}

func (e *Engine) backoff(ctx context.Context) {
	if e.cfg.ErrorBackoff <= 0 {
		return
	}
	t := time.NewTimer(e.cfg.ErrorBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// HandleDatagram classifies and dispatches one datagram. It never panics on
// malformed input and never blocks on a single recipient.
func (e *Engine) HandleDatagram(data []byte, from netip.AddrPort) {
	kind := protocol.Classify(data)
	e.metrics.RecordDatagram(kind.String())

	if kind == protocol.KindAudio {
		e.OnFrame(from, core.Frame(data))
		return
	}

	env, err := protocol.Decode(data)
	if err != nil {
		e.metrics.RecordDecodeError()
		e.logger.Warn().Err(err).Str("addr", from.String()).Int("size", len(data)).Msg("error processing control message")
		return
	}
	e.OnControl(from, env)
}

func (e *Engine) reply(addr netip.AddrPort, env *protocol.Envelope) {
	b, err := protocol.Encode(env)
	if err != nil {
		e.logger.Error().Err(err).Msg("encode reply")
		return
	}
	if err := e.conn.WriteTo(b, addr); err != nil {
		e.logger.Error().Err(err).Str("addr", addr.String()).Str("type", string(env.Type)).Msg("send error")
	}
}

func (e *Engine) removeSession(addr netip.AddrPort, ev core.EventType, reason string) {
	s, ok := e.registry.Remove(addr)
	if !ok {
		return
	}
	e.limiter.Forget(addr)
	e.metrics.RecordRemoval(reason, e.registry.Count())
	e.publish(ev, s)
}

func (e *Engine) publish(t core.EventType, s domain.ClientSession) {
	if e.events == nil {
		return
	}
	e.events.Publish(core.SessionEvent{
		Type: t,
		ID:   s.ID,
		Name: s.Name,
		Addr: s.Addr.String(),
		At:   time.Now(),
	})
}
