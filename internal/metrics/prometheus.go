// Package metrics holds the prometheus collectors of the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_relay"

// Eviction reasons.
const (
	ReasonDisconnect  = "disconnect"
	ReasonSendFailure = "send_failure"
	ReasonExpired     = "expired"
	ReasonReset       = "reset"
)

// Metrics contains the relay collectors. A nil *Metrics records nothing.
type Metrics struct {
	DatagramsReceived  *prometheus.CounterVec
	DecodeErrors       prometheus.Counter
	ProtocolViolations *prometheus.CounterVec
	FramesRelayed      prometheus.Counter
	SendFailures       prometheus.Counter
	TransportErrors    prometheus.Counter
	Registrations      prometheus.Counter
	Removals           *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
	FanOut             prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DatagramsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Total number of datagrams received, by kind",
		}, []string{"kind"}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total number of malformed control envelopes dropped",
		}),
		ProtocolViolations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Total number of datagrams from unregistered addresses, by kind",
		}, []string{"type"}),
		FramesRelayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_relayed_total",
			Help:      "Total number of audio frame sends to recipients",
		}),
		SendFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Total number of failed sends to recipients",
		}),
		TransportErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Total number of receive errors other than timeouts",
		}),
		Registrations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Total number of new client sessions",
		}),
		Removals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_removals_total",
			Help:      "Total number of removed client sessions, by reason",
		}, []string{"reason"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Current number of registered clients",
		}),
		FanOut: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_fanout",
			Help:      "Recipients per relayed audio frame",
			Buckets:   prometheus.LinearBuckets(0, 2, 10),
		}),
	}
}

func (m *Metrics) RecordDatagram(kind string) {
	if m == nil {
		return
	}
	m.DatagramsReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *Metrics) RecordProtocolViolation(msgType string) {
	if m == nil {
		return
	}
	m.ProtocolViolations.WithLabelValues(msgType).Inc()
}

// RecordBroadcast records one fan-out with its delivered and failed sends.
func (m *Metrics) RecordBroadcast(sent, failed int) {
	if m == nil {
		return
	}
	m.FramesRelayed.Add(float64(sent))
	m.SendFailures.Add(float64(failed))
	m.FanOut.Observe(float64(sent + failed))
}

func (m *Metrics) RecordTransportError() {
	if m == nil {
		return
	}
	m.TransportErrors.Inc()
}

func (m *Metrics) RecordRegistration(active int) {
	if m == nil {
		return
	}
	m.Registrations.Inc()
	m.ActiveSessions.Set(float64(active))
}

func (m *Metrics) RecordRemoval(reason string, active int) {
	if m == nil {
		return
	}
	m.Removals.WithLabelValues(reason).Inc()
	m.ActiveSessions.Set(float64(active))
}
