package relay

import (
	"context"
	"time"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/metrics"
)

func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	e.logger.Info().
		Dur("timeout", e.cfg.SessionTimeout).
		Dur("check_interval", e.cfg.SweepInterval).
		Msg("maintenance loop started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep()
		}
	}
}

// maintenanceEnabled reports whether Run needs the periodic sweep: either
// sessions expire or the reply limiter keeps per-address history to prune.
func (e *Engine) maintenanceEnabled() bool {
	return e.cfg.SessionTimeout > 0 || e.cfg.ErrorReplyLimit > 0
}

// Sweep evicts sessions silent for longer than the session timeout and
// prunes stale reply limiter history. It returns the number of evicted
// sessions.
func (e *Engine) Sweep() int {
	defer e.limiter.Prune()
	if e.cfg.SessionTimeout <= 0 {
		return 0
	}
	expired := e.registry.Expire(e.cfg.SessionTimeout)
	for _, s := range expired {
		e.limiter.Forget(s.Addr)
		e.metrics.RecordRemoval(metrics.ReasonExpired, e.registry.Count())
		e.publish(core.EventExpired, s)
	}
	if len(expired) > 0 {
		e.logger.Info().Int("expired_count", len(expired)).Msg("cleaning up expired sessions")
	}
	return len(expired)
}
