package relay

import (
	"net/netip"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/metrics"
	"github.com/dkeye/voicerelay/internal/protocol"
)

// OnControl routes a decoded control envelope.
func (e *Engine) OnControl(from netip.AddrPort, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeRegister:
		e.handleRegister(from, env)
	case protocol.TypeHeartbeat:
		e.handleHeartbeat(from)
	case protocol.TypeDisconnect:
		e.handleDisconnect(from)
	default:
		e.logger.Warn().Str("addr", from.String()).Str("type", string(env.Type)).Msg("unknown control type")
	}
}

func (e *Engine) handleRegister(from netip.AddrPort, env *protocol.Envelope) {
	s, isNew := e.registry.Register(from, env.Name)
	if isNew {
		e.limiter.Forget(from)
		e.metrics.RecordRegistration(e.registry.Count())
		e.publish(core.EventRegistered, s)
		e.logger.Info().Str("sid", string(s.ID)).Str("addr", from.String()).Str("name", s.Name).Msg("client registered")
	}
	e.reply(from, protocol.Registered())
}

// handleHeartbeat never registers an unknown address; unknown senders get no reply.
func (e *Engine) handleHeartbeat(from netip.AddrPort) {
	if !e.registry.Touch(from) {
		e.metrics.RecordProtocolViolation(string(protocol.TypeHeartbeat))
		e.logger.Debug().Str("addr", from.String()).Msg("heartbeat from unregistered address ignored")
		return
	}
	e.reply(from, protocol.HeartbeatAck())
}

func (e *Engine) handleDisconnect(from netip.AddrPort) {
	s, ok := e.registry.Get(from)
	if !ok {
		return
	}
	e.removeSession(from, core.EventDisconnected, metrics.ReasonDisconnect)
	e.logger.Info().Str("sid", string(s.ID)).Str("addr", from.String()).Str("name", s.Name).Msg("client disconnected")
}

// OnFrame relays an audio frame from a registered sender. Unregistered
// senders are told to register and nothing is relayed.
func (e *Engine) OnFrame(from netip.AddrPort, frame core.Frame) {
	if !e.registry.Touch(from) {
		e.metrics.RecordProtocolViolation("audio")
		if e.limiter.Allow(from) {
			e.reply(from, protocol.Error(protocol.MsgRegisterFirst))
		}
		return
	}
	e.Broadcast(from, frame)
}
