package client

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/protocol"
)

func (c *Client) receiveLoop(ctx context.Context) {
	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			if errors.Is(err, core.ErrEndpointClosed) {
				return
			}
			c.logger.Error().Err(err).Msg("set read deadline")
			c.backoff(ctx)
			continue
		}

		n, _, err := c.conn.ReadFrom(buf)
		if err != nil {
			switch {
			case core.IsTimeout(err):
				continue
			case errors.Is(err, core.ErrEndpointClosed):
				return
			case errors.Is(err, core.ErrConnectionReset):
				c.logger.Warn().Err(err).Msg("server forcibly closed the connection")
				c.connected.Store(false)
				c.notify(StatusClosed, "server closed the connection")
				c.cancel()
				return
			default:
				if ctx.Err() != nil {
					return
				}
				c.logger.Error().Err(err).Msg("socket error")
				c.backoff(ctx)
				continue
			}
		}
		c.handleDatagram(buf[:n])
	}
}

func (c *Client) handleDatagram(data []byte) {
	if protocol.Classify(data) == protocol.KindAudio {
		frame := make([]byte, len(data))
		copy(frame, data)
		c.received.Add(1)
		if !c.playback.Push(frame) {
			c.logger.Debug().Int("queue", c.playback.Cap()).Msg("playback queue full, frame dropped")
		}
		return
	}

	env, err := protocol.Decode(data)
	if err != nil {
		c.logger.Warn().Err(err).Int("size", len(data)).Msg("error processing control message")
		return
	}
	switch env.Type {
	case protocol.TypeHeartbeatAck, protocol.TypeRegistered:
	case protocol.TypeError:
		c.logger.Warn().Str("message", env.Message).Msg("server error")
		c.notify(StatusError, env.Message)
	default:
		c.logger.Debug().Str("type", string(env.Type)).Msg("unexpected control message")
	}
}

// playbackLoop blocks on the queue and hands frames to the sink in order.
func (c *Client) playbackLoop(ctx context.Context) {
	for {
		frame, err := c.playback.Pop(ctx)
		if err != nil {
			return
		}
		if err := c.sink.Write(frame); err != nil {
			c.logger.Error().Err(err).Msg("playback error")
			c.notify(StatusError, "playback error: "+err.Error())
			c.backoff(ctx)
		}
	}
}

// capture runs on the source goroutine and must not block it.
func (c *Client) capture(frame []byte) {
	if c.muted.Load() || !c.connected.Load() {
		return
	}
	select {
	case c.sendq <- frame:
	default:
		c.dropped.Add(1)
	}
}

func (c *Client) senderLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.sendq:
			if err := c.conn.WriteTo(frame, c.cfg.Server); err != nil {
				if errors.Is(err, core.ErrEndpointClosed) {
					return
				}
				c.logger.Error().Err(err).Msg("send audio error")
				continue
			}
			c.sent.Add(1)
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.connected.Load() {
				continue
			}
			if err := c.sendControl(protocol.Heartbeat(time.Now())); err != nil {
				c.logger.Error().Err(err).Msg("heartbeat error")
			}
		}
	}
}

func (c *Client) backoff(ctx context.Context) {
	if c.cfg.ErrorBackoff <= 0 {
		return
	}
	t := time.NewTimer(c.cfg.ErrorBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
