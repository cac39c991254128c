// Package client is the voice client runtime: handshake, heartbeat, receive
// loop, playback consumer and capture pipeline around one UDP endpoint.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/voicerelay/internal/audio"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrHandshakeTimeout = errors.New("connection timeout, server may be offline")
	ErrRejected         = errors.New("server rejected registration")
	ErrNotConnected     = errors.New("not connected")
)

type Config struct {
	Server            netip.AddrPort
	Name              string
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	ReadTimeout       time.Duration
	// ErrorBackoff is slept after a socket error; zero means one second,
	// negative disables it.
	ErrorBackoff      time.Duration
	PlaybackQueue     int
	SendQueue         int
}

func (c *Config) setDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = time.Second
	}
	if c.ErrorBackoff == 0 {
		c.ErrorBackoff = time.Second
	}
	if c.PlaybackQueue <= 0 {
		c.PlaybackQueue = 20
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 32
	}
}

type Stats struct {
	Sent            uint64
	Received        uint64
	DroppedCapture  uint64
	DroppedPlayback uint64
}

type Client struct {
	conn   core.Endpoint
	cfg    Config
	source audio.Source
	sink   audio.Sink

	playback *audio.FrameQueue
	sendq    chan []byte
	status   chan Status

	muted     atomic.Bool
	connected atomic.Bool

	sent, received, dropped atomic.Uint64

	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	byeOnce   sync.Once
	closeOnce sync.Once
	closeErr  error
	logger    zerolog.Logger
}

func New(conn core.Endpoint, cfg Config, source audio.Source, sink audio.Sink) *Client {
	cfg.setDefaults()
	if sink == nil {
		sink = audio.DiscardSink{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:     conn,
		cfg:      cfg,
		source:   source,
		sink:     sink,
		playback: audio.NewFrameQueue(cfg.PlaybackQueue),
		sendq:    make(chan []byte, cfg.SendQueue),
		status:   make(chan Status, 16),
		runCtx:   ctx,
		cancel:   cancel,
		logger:   log.With().Str("module", "client").Str("server", cfg.Server.String()).Logger(),
	}
}

// Connect registers with the server and waits for the confirmation.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.sendControl(protocol.Register(c.cfg.Name, time.Now())); err != nil {
		return fmt.Errorf("send register: %w", err)
	}

	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return fmt.Errorf("set handshake deadline: %w", err)
		}
		n, _, err := c.conn.ReadFrom(buf)
		if err != nil {
			if core.IsTimeout(err) {
				return ErrHandshakeTimeout
			}
			return fmt.Errorf("handshake: %w", err)
		}
		if protocol.Classify(buf[:n]) == protocol.KindAudio {
			continue
		}
		env, err := protocol.Decode(buf[:n])
		if err != nil {
			return fmt.Errorf("%w: invalid response: %v", ErrRejected, err)
		}
		if env.Type == protocol.TypeRegistered && env.Status == protocol.StatusOK {
			c.connected.Store(true)
			c.logger.Info().Str("name", c.cfg.Name).Msg("successfully connected to server")
			c.notify(StatusConnected, "connected to "+c.cfg.Server.String())
			return nil
		}
		if env.Type == protocol.TypeError {
			return fmt.Errorf("%w: %s", ErrRejected, env.Message)
		}
		return fmt.Errorf("%w: unexpected %s reply", ErrRejected, env.Type)
	}
}

// Start launches the runtime goroutines. It must follow a successful Connect.
func (c *Client) Start() error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	c.startOnce.Do(func() {
		ctx := c.runCtx
		c.spawn(func() { c.receiveLoop(ctx) })
		c.spawn(func() { c.playbackLoop(ctx) })
		c.spawn(func() { c.senderLoop(ctx) })
		c.spawn(func() { c.heartbeatLoop(ctx) })
		if c.source != nil {
			c.spawn(func() {
				if err := c.source.Run(ctx, c.capture); err != nil {
					c.logger.Error().Err(err).Msg("capture source stopped")
					c.notify(StatusError, "recording error: "+err.Error())
				}
			})
		}
		c.logger.Info().Msg("client started")
	})
	return nil
}

func (c *Client) spawn(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// Done is closed once the runtime stops, either by Close or because the
// server closed the connection.
func (c *Client) Done() <-chan struct{} { return c.runCtx.Done() }

func (c *Client) Status() <-chan Status { return c.status }

func (c *Client) ToggleMute() bool {
	for {
		old := c.muted.Load()
		if c.muted.CompareAndSwap(old, !old) {
			c.logger.Info().Bool("muted", !old).Msg("mute toggled")
			return !old
		}
	}
}

func (c *Client) Muted() bool     { return c.muted.Load() }
func (c *Client) Connected() bool { return c.connected.Load() }
func (c *Client) Name() string    { return c.cfg.Name }

func (c *Client) Server() netip.AddrPort { return c.cfg.Server }

func (c *Client) Stats() Stats {
	return Stats{
		Sent:            c.sent.Load(),
		Received:        c.received.Load(),
		DroppedCapture:  c.dropped.Load(),
		DroppedPlayback: c.playback.Dropped(),
	}
}

// Disconnect tells the server we are leaving. Only the first call while
// connected sends anything.
func (c *Client) Disconnect() {
	c.byeOnce.Do(func() {
		if !c.connected.Swap(false) {
			return
		}
		if err := c.sendControl(protocol.Disconnect(time.Now())); err != nil {
			c.logger.Error().Err(err).Msg("disconnect error")
			return
		}
		c.logger.Info().Msg("disconnected")
	})
}

// Close disconnects, stops every goroutine and releases the endpoint and
// the sink. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.Disconnect()
		c.cancel()
		errs := []error{c.conn.Close()}
		c.wg.Wait()
		errs = append(errs, c.sink.Close())
		c.closeErr = errors.Join(errs...)
		c.logger.Info().Msg("client closed")
	})
	return c.closeErr
}

func (c *Client) sendControl(env *protocol.Envelope) error {
	b, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return c.conn.WriteTo(b, c.cfg.Server)
}
