package relay

import (
	"net/netip"

	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/metrics"
)

// Broadcast sends frame to every registered address except from, using a
// snapshot taken at dispatch time. A failed recipient never stops delivery to
// the rest; the policy decides its fate after the loop.
func (e *Engine) Broadcast(from netip.AddrPort, frame core.Frame) core.PublishResult {
	targets := e.registry.Snapshot()

	res := core.PublishResult{}
	var errs []error
	for _, dst := range targets {
		if dst == from {
			continue
		}
		if err := e.conn.WriteTo(frame, dst); err != nil {
			e.logger.Error().
				Err(err).
				Str("dst", dst.String()).
				Msg("relay send error")
			res.Dropped = append(res.Dropped, dst)
			errs = append(errs, err)
			continue
		}
		res.SendTo++
	}

	for i, dst := range res.Dropped {
		e.applyPolicy(dst, errs[i])
	}

	e.metrics.RecordBroadcast(res.SendTo, len(res.Dropped))
	e.logger.Debug().Str("from", from.String()).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (e *Engine) applyPolicy(dst netip.AddrPort, err error) {
	if e.policy == nil {
		return
	}
	switch e.policy.OnSendFailure(dst, err) {
	case app.KickMember:
		e.removeSession(dst, core.EventEvicted, metrics.ReasonSendFailure)
	case app.NoAction:
	}
}
